package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luca-patrignani/mental-lottery/domain/lottery"
	"github.com/luca-patrignani/mental-lottery/identity"
)

type Action string

const (
	ActionEnter  Action = "enter"
	ActionSettle Action = "settle"
)

var (
	ErrBadSignature    = errors.New("invalid request signature")
	ErrStaleRequest    = errors.New("request timestamp outside the accepted window")
	ErrReplayedRequest = errors.New("request already processed")
)

// Request is a signed mutating call. Value is the amount attached to the
// call and is only meaningful for enter.
type Request struct {
	ID        string           `json:"id"`
	Action    Action           `json:"action"`
	Caller    lottery.Identity `json:"caller"`
	Value     decimal.Decimal  `json:"value"`
	Timestamp int64            `json:"ts"`
	Signature []byte           `json:"sig,omitempty"`
}

func NewRequest(action Action, value decimal.Decimal) Request {
	return Request{
		ID:     uuid.NewString(),
		Action: action,
		Value:  value,
	}
}

// serialize returns the JSON marshaled form of the Request with the Signature field cleared
// to ensure the signature is not included in signed data.
func (r *Request) serialize() ([]byte, error) {
	tmp := *r
	tmp.Signature = nil
	return json.Marshal(tmp)
}

// Sign binds the request to k: it sets the caller, the current Unix nanosecond
// timestamp and the signature over the serialized request.
func (r *Request) Sign(k *identity.Key) error {
	r.Caller = k.ID()
	r.Timestamp = time.Now().UnixNano()
	b, err := r.serialize()
	if err != nil {
		return err
	}
	r.Signature = k.Sign(b)
	return nil
}

// Verify checks that the request was signed by its caller.
func (r *Request) Verify() error {
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("invalid request id %q: %w", r.ID, err)
	}
	b, err := r.serialize()
	if err != nil {
		return err
	}
	ok, err := identity.Verify(r.Caller, b, r.Signature)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	if !ok {
		return ErrBadSignature
	}
	return nil
}

// replayGuard remembers the ids of requests seen within ttl.
type replayGuard struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

func newReplayGuard(ttl time.Duration, now func() time.Time) *replayGuard {
	return &replayGuard{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  now,
	}
}

func (g *replayGuard) check(r Request) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	ts := time.Unix(0, r.Timestamp)
	if ts.Before(now.Add(-g.ttl)) || ts.After(now.Add(g.ttl)) {
		return fmt.Errorf("%w: %s", ErrStaleRequest, ts.UTC().Format(time.RFC3339))
	}
	for id, seenAt := range g.seen {
		if seenAt.Before(now.Add(-g.ttl)) {
			delete(g.seen, id)
		}
	}
	if _, ok := g.seen[r.ID]; ok {
		return fmt.Errorf("%w: %s", ErrReplayedRequest, r.ID)
	}
	g.seen[r.ID] = ts
	return nil
}
