package main

import (
	"net"
	"testing"
)

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		addr, host, port string
	}{
		{"127.0.0.1:9000", "127.0.0.1", "9000"},
		{"127.0.0.1", "127.0.0.1", "8545"},
		{"localhost", "localhost", "8545"},
		{":9000", "", "9000"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			host, port, err := splitHostPort(tt.addr, defaultPort)
			if err != nil {
				t.Fatal(err)
			}
			if host != tt.host || port != tt.port {
				t.Fatalf("splitHostPort(%q) = (%q, %q), want (%q, %q)", tt.addr, host, port, tt.host, tt.port)
			}
		})
	}
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		addr string
		tls  bool
		want string
	}{
		{"127.0.0.1:8545", false, "http://127.0.0.1:8545"},
		{"0.0.0.0:8545", false, "http://127.0.0.1:8545"},
		{":9000", true, "https://127.0.0.1:9000"},
		{"lottery.lan", true, "https://lottery.lan:8545"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := baseURL(tt.addr, tt.tls)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("baseURL(%q, %v) = %q, want %q", tt.addr, tt.tls, got, tt.want)
			}
		})
	}
}

func TestSubnetOfListener(t *testing.T) {
	l, err := net.ListenTCP("tcp", &net.TCPAddr{
		IP:   net.ParseIP("127.0.0.1"),
		Port: 0,
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	ipnet, err := subnetOfListener(l)
	if err != nil {
		t.Fatalf("SubnetOfListener error: %v", err)
	}
	t.Logf("listener local addr: %v, subnet: %s", l.Addr(), ipnet.String())

	if !ipnet.Contains(net.ParseIP("127.0.0.1")) {
		t.Fatalf("expected subnet %s to contain 127.0.0.1", ipnet.String())
	}
}
