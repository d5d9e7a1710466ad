package network

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/luca-patrignani/mental-lottery/identity"
)

func mustKey(t *testing.T) *identity.Key {
	t.Helper()
	k, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return k
}

// TestRequestSignVerify verifies that a signed request verifies and that any
// change to a signed field breaks the signature.
func TestRequestSignVerify(t *testing.T) {
	alice := mustKey(t)
	mallory := mustKey(t)

	tests := []struct {
		name    string
		tamper  func(r *Request)
		wantErr bool
	}{
		{"untouched", func(r *Request) {}, false},
		{"value", func(r *Request) { r.Value = decimal.NewFromInt(1) }, true},
		{"action", func(r *Request) { r.Action = ActionSettle }, true},
		{"caller", func(r *Request) { r.Caller = mallory.ID() }, true},
		{"timestamp", func(r *Request) { r.Timestamp++ }, true},
		{"id", func(r *Request) { r.ID = "not-a-uuid" }, true},
		{"caller not a key", func(r *Request) { r.Caller = "alice" }, true},
		{"no signature", func(r *Request) { r.Signature = nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRequest(ActionEnter, decimal.RequireFromString("0.01"))
			if err := r.Sign(alice); err != nil {
				t.Fatal(err)
			}
			if r.Caller != alice.ID() {
				t.Fatalf("caller = %s, want %s", r.Caller, alice.ID())
			}
			tt.tamper(&r)
			if err := r.Verify(); (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestNewRequestUniqueIDs verifies that every request gets its own id.
func TestNewRequestUniqueIDs(t *testing.T) {
	a := NewRequest(ActionEnter, decimal.Zero)
	b := NewRequest(ActionEnter, decimal.Zero)
	if a.ID == b.ID {
		t.Fatalf("two requests share id %s", a.ID)
	}
}

// TestReplayGuard verifies that requests outside the window or seen before
// are refused and that old ids are forgotten.
func TestReplayGuard(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	g := newReplayGuard(30*time.Second, func() time.Time { return now })

	fresh := Request{ID: "a", Timestamp: now.UnixNano()}
	if err := g.check(fresh); err != nil {
		t.Fatalf("fresh request refused: %v", err)
	}
	if err := g.check(fresh); !errors.Is(err, ErrReplayedRequest) {
		t.Fatalf("replayed request: got %v, want ErrReplayedRequest", err)
	}

	stale := Request{ID: "b", Timestamp: now.Add(-time.Minute).UnixNano()}
	if err := g.check(stale); !errors.Is(err, ErrStaleRequest) {
		t.Fatalf("stale request: got %v, want ErrStaleRequest", err)
	}
	future := Request{ID: "c", Timestamp: now.Add(time.Minute).UnixNano()}
	if err := g.check(future); !errors.Is(err, ErrStaleRequest) {
		t.Fatalf("future request: got %v, want ErrStaleRequest", err)
	}

	now = now.Add(time.Minute)
	if err := g.check(Request{ID: "d", Timestamp: now.UnixNano()}); err != nil {
		t.Fatal(err)
	}
	if _, ok := g.seen["a"]; ok {
		t.Fatal("expired id still remembered")
	}
}
