package lottery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/luca-patrignani/mental-lottery/domain/draw"
)

// Ledger is the round state machine. All methods are safe for concurrent use.
type Ledger struct {
	mu       sync.RWMutex
	manager  Identity
	stake    decimal.Decimal
	roundID  uint64
	players  []Identity
	entered  map[Identity]struct{}
	settling bool
	winners  map[uint64]Settlement
	// fatal is set once a settlement is paid but not recorded. The journal
	// no longer matches memory, so every later mutation is refused.
	fatal *FatalError

	payer    Payer
	selector Selector
	journal  Journal
	logger   *slog.Logger
	now      func() time.Time
}

type ledgerOption func(*Ledger)

// WithSelector replaces the default XOF based winner selection.
func WithSelector(s Selector) ledgerOption {
	return func(l *Ledger) {
		l.selector = s
	}
}

// WithJournal records every entry and settlement to j.
func WithJournal(j Journal) ledgerOption {
	return func(l *Ledger) {
		l.journal = j
	}
}

// WithLogger sets the logger, which discards everything by default.
func WithLogger(logger *slog.Logger) ledgerOption {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithClock replaces time.Now as the source of event timestamps.
func WithClock(now func() time.Time) ledgerOption {
	return func(l *Ledger) {
		l.now = now
	}
}

// New creates a ledger whose first open round is 1. The manager is the only
// identity allowed to settle rounds and cannot be changed afterwards.
func New(manager Identity, stake decimal.Decimal, payer Payer, opts ...ledgerOption) (*Ledger, error) {
	if manager == "" {
		return nil, fmt.Errorf("manager: %w", ErrInvalidIdentity)
	}
	if !stake.IsPositive() {
		return nil, fmt.Errorf("stake must be positive, got %s", stake)
	}
	if payer == nil {
		return nil, errors.New("payer is required")
	}
	l := &Ledger{
		manager:  manager,
		stake:    stake,
		roundID:  1,
		entered:  make(map[Identity]struct{}),
		winners:  make(map[uint64]Settlement),
		payer:    payer,
		selector: draw.XOFSelector{},
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Enter admits caller to the open round. staked must equal the required
// stake exactly and caller must not have entered the round already. On error
// the ledger is left untouched and the host is expected to give the staked
// value back. After a FatalError every entry is refused with that error.
func (l *Ledger) Enter(caller Identity, staked decimal.Decimal) error {
	if caller == "" {
		return ErrInvalidIdentity
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fatal != nil {
		return l.fatal
	}
	if l.settling {
		return ErrSettlementInProgress
	}
	if err := l.checkEntry(caller, staked); err != nil {
		return err
	}
	ev := Event{
		Type:   EventEntered,
		Round:  l.roundID,
		Player: caller,
		Amount: staked,
		Time:   l.now(),
	}
	if err := l.record(ev); err != nil {
		return fmt.Errorf("record entry: %w", err)
	}
	l.admit(caller)
	l.logger.Info("player entered", "round", l.roundID, "player", caller, "players", len(l.players))
	return nil
}

// Settle picks the winner of the open round using seed, pays the whole pool
// to them, records the settlement and opens the next round.
//
// Settlement happens in two phases. The first one validates the call and
// marks the round as settling, the payout then runs without holding the lock
// and the second phase commits the bookkeeping. While the payout is in flight
// every mutating call, including a nested Settle, fails with
// ErrSettlementInProgress. A failed payout leaves the ledger untouched.
//
// When the payout succeeds but the settlement cannot be recorded, Settle
// returns the settlement together with a FatalError and the ledger stops
// accepting entries and settlements. Queries keep answering from memory.
func (l *Ledger) Settle(ctx context.Context, caller Identity, seed []byte) (Settlement, error) {
	if err := ctx.Err(); err != nil {
		return Settlement{}, err
	}
	s, err := l.beginSettlement(caller, seed)
	if err != nil {
		return Settlement{}, err
	}

	if err := l.payer.Pay(ctx, s.Winner, s.Amount); err != nil {
		l.mu.Lock()
		l.settling = false
		l.mu.Unlock()
		l.logger.Warn("payout failed", "round", s.Round, "winner", s.Winner, "amount", s.Amount, "err", err)
		return Settlement{}, fmt.Errorf("%w: round %d: %w", ErrTransferFailed, s.Round, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.commit(s)
	l.settling = false
	l.logger.Info("round settled", "round", s.Round, "winner", s.Winner, "amount", s.Amount)

	if err := l.record(settledEvent(s)); err != nil {
		l.logger.Error("settlement not recorded, ledger halted", "round", s.Round, "err", err)
		l.fatal = &FatalError{Round: s.Round, Err: err}
		return s, l.fatal
	}
	return s, nil
}

func (l *Ledger) beginSettlement(caller Identity, seed []byte) (Settlement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fatal != nil {
		return Settlement{}, l.fatal
	}
	if caller != l.manager {
		return Settlement{}, fmt.Errorf("%w: %s", ErrNotManager, caller)
	}
	if l.settling {
		return Settlement{}, ErrSettlementInProgress
	}
	if len(l.players) == 0 {
		return Settlement{}, fmt.Errorf("%w: round %d", ErrEmptyRound, l.roundID)
	}

	ids := make([]string, len(l.players))
	for i, p := range l.players {
		ids[i] = string(p)
	}
	idx, err := l.selector.Select(seed, ids)
	if err != nil {
		return Settlement{}, fmt.Errorf("select winner: %w", err)
	}
	if idx < 0 || idx >= len(l.players) {
		return Settlement{}, fmt.Errorf("select winner: index %d out of range [0, %d)", idx, len(l.players))
	}

	l.settling = true
	return Settlement{
		Round:   l.roundID,
		Winner:  l.players[idx],
		Amount:  l.pool(),
		Seed:    slices.Clone(seed),
		Players: slices.Clone(l.players),
		Time:    l.now(),
	}, nil
}

// Players returns the players of the open round in admission order.
func (l *Ledger) Players() []Identity {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.players)
}

// Winner returns the winner of a settled round. Round 0, the open round and
// any later round are not found.
func (l *Ledger) Winner(round uint64) (Identity, error) {
	s, err := l.Settlement(round)
	if err != nil {
		return "", err
	}
	return s.Winner, nil
}

// Settlement returns the full record of a settled round.
func (l *Ledger) Settlement(round uint64) (Settlement, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.winners[round]
	if !ok {
		return Settlement{}, fmt.Errorf("%w: %d", ErrRoundNotFound, round)
	}
	return s, nil
}

// Winners returns every settlement ordered by round.
func (l *Ledger) Winners() []Settlement {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Settlement, 0, len(l.winners))
	for r := uint64(1); r < l.roundID; r++ {
		out = append(out, l.winners[r])
	}
	return out
}

// Manager returns the identity allowed to settle rounds.
func (l *Ledger) Manager() Identity {
	return l.manager
}

// CurrentRoundID returns the id of the open round.
func (l *Ledger) CurrentRoundID() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.roundID
}

// Stake returns the exact amount every entry must carry.
func (l *Ledger) Stake() decimal.Decimal {
	return l.stake
}

// Pool returns the value accumulated in the open round.
func (l *Ledger) Pool() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pool()
}

func (l *Ledger) pool() decimal.Decimal {
	return l.stake.Mul(decimal.NewFromInt(int64(len(l.players))))
}

func (l *Ledger) checkEntry(caller Identity, staked decimal.Decimal) error {
	if !staked.Equal(l.stake) {
		return fmt.Errorf("%w: got %s, want %s", ErrWrongStake, staked, l.stake)
	}
	if _, ok := l.entered[caller]; ok {
		return fmt.Errorf("%w: %s in round %d", ErrAlreadyEntered, caller, l.roundID)
	}
	return nil
}

func (l *Ledger) admit(caller Identity) {
	l.players = append(l.players, caller)
	l.entered[caller] = struct{}{}
}

func (l *Ledger) commit(s Settlement) {
	l.winners[s.Round] = s
	l.players = nil
	l.entered = make(map[Identity]struct{})
	l.roundID++
}

func (l *Ledger) record(ev Event) error {
	if l.journal == nil {
		return nil
	}
	return l.journal.Record(ev)
}

func settledEvent(s Settlement) Event {
	return Event{
		Type:    EventSettled,
		Round:   s.Round,
		Player:  s.Winner,
		Amount:  s.Amount,
		Seed:    s.Seed,
		Players: s.Players,
		Time:    s.Time,
	}
}
