package network

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics is registered on a per-server registry so that several servers
// can live in one process.
type metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	entries     prometheus.Counter
	settlements prometheus.Counter
	payouts     prometheus.Counter
	rejected    *prometheus.CounterVec
	round       prometheus.Gauge
	players     prometheus.Gauge
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lottery_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "status"}),
		entries: factory.NewCounter(prometheus.CounterOpts{
			Name: "lottery_entries_total",
			Help: "Accepted entries",
		}),
		settlements: factory.NewCounter(prometheus.CounterOpts{
			Name: "lottery_settlements_total",
			Help: "Settled rounds",
		}),
		payouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "lottery_payout_ether_total",
			Help: "Ether paid to winners",
		}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lottery_rejected_total",
			Help: "Rejected mutating calls by error code",
		}, []string{"action", "code"}),
		round: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lottery_round",
			Help: "Identifier of the open round",
		}),
		players: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lottery_players",
			Help: "Players in the open round",
		}),
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("%T does not support hijacking", r.ResponseWriter)
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// instrument counts requests by matched route and status code.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rec := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		route := req.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}
