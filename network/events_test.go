package network

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/luca-patrignani/mental-lottery/domain/lottery"
	"github.com/luca-patrignani/mental-lottery/ledger"
)

// TestEventFeed verifies that blocks recorded after a subscriber connects are
// streamed to it in order.
func TestEventFeed(t *testing.T) {
	env := newTestEnv(t, decimal.NewFromInt(100))
	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/v1/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	if _, err := env.client(env.players[1]).Enter(t.Context(), stake); err != nil {
		t.Fatal(err)
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first ledger.Block
	if err := ws.ReadJSON(&first); err != nil {
		t.Fatalf("read: %v", err)
	}
	if first.Event.Type != lottery.EventEntered || first.Event.Player != env.players[1].ID() {
		t.Fatalf("unexpected block %+v", first)
	}

	if _, err := env.client(env.players[2]).Enter(t.Context(), stake); err != nil {
		t.Fatal(err)
	}
	if _, err := env.client(env.manager).Settle(t.Context()); err != nil {
		t.Fatal(err)
	}
	for _, want := range []lottery.EventType{lottery.EventEntered, lottery.EventSettled} {
		var b ledger.Block
		if err := ws.ReadJSON(&b); err != nil {
			t.Fatalf("read: %v", err)
		}
		if b.Event.Type != want {
			t.Fatalf("event type = %s, want %s", b.Event.Type, want)
		}
	}
}

// TestEventFeedWithoutChain verifies that a server with no journal has no feed.
func TestEventFeedWithoutChain(t *testing.T) {
	env := newTestEnv(t, decimal.NewFromInt(100))
	srv := NewServer(env.ledger, env.bank)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
