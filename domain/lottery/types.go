package lottery

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Identity identifies a caller. On the network it is the hex encoded ed25519
// public key of the signer.
type Identity string

func (id Identity) String() string {
	return string(id)
}

// Settlement is the outcome of a settled round.
type Settlement struct {
	Round   uint64          `json:"round"`
	Winner  Identity        `json:"winner"`
	Amount  decimal.Decimal `json:"amount"`
	Seed    []byte          `json:"seed"`
	Players []Identity      `json:"players"`
	Time    time.Time       `json:"time"`
}

type EventType string

const (
	EventEntered EventType = "entered"
	EventSettled EventType = "settled"
)

// Event is a journal entry. Entered events carry Player and Amount, settled
// events carry Player (the winner), Amount (the pool), Seed and Players.
type Event struct {
	Type    EventType       `json:"type"`
	Round   uint64          `json:"round"`
	Player  Identity        `json:"player"`
	Amount  decimal.Decimal `json:"amount"`
	Seed    []byte          `json:"seed,omitempty"`
	Players []Identity      `json:"players,omitempty"`
	Time    time.Time       `json:"time"`
}

// Payer moves value out of the pool. Pay must either transfer the whole
// amount or nothing at all.
type Payer interface {
	Pay(ctx context.Context, to Identity, amount decimal.Decimal) error
}

// Journal records committed events in order.
type Journal interface {
	Record(ev Event) error
}

// Selector picks the index of the winner among players. Implementations
// must be a deterministic function of seed and players.
type Selector interface {
	Select(seed []byte, players []string) (int, error)
}
