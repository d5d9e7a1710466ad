package lottery

import (
	"fmt"
	"slices"
)

// Replay rebuilds the ledger state from a journal. It must be called on a
// fresh ledger, before any Enter or Settle, and never calls the payer or the
// journal: replayed payouts already happened.
func (l *Ledger) Replay(events []Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.roundID != 1 || len(l.players) > 0 || l.settling {
		return fmt.Errorf("replay on a ledger that is already in use")
	}
	for i, ev := range events {
		if err := l.apply(ev); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	l.logger.Info("journal replayed", "events", len(events), "round", l.roundID, "players", len(l.players))
	return nil
}

func (l *Ledger) apply(ev Event) error {
	if ev.Round != l.roundID {
		return fmt.Errorf("%s event for round %d while round %d is open", ev.Type, ev.Round, l.roundID)
	}
	switch ev.Type {
	case EventEntered:
		if ev.Player == "" {
			return ErrInvalidIdentity
		}
		if err := l.checkEntry(ev.Player, ev.Amount); err != nil {
			return err
		}
		l.admit(ev.Player)
	case EventSettled:
		if !slices.Equal(ev.Players, l.players) {
			return fmt.Errorf("settled players %v do not match entries %v", ev.Players, l.players)
		}
		if !slices.Contains(l.players, ev.Player) {
			return fmt.Errorf("winner %s did not enter round %d", ev.Player, ev.Round)
		}
		if !ev.Amount.Equal(l.pool()) {
			return fmt.Errorf("settled amount %s does not match pool %s", ev.Amount, l.pool())
		}
		l.commit(Settlement{
			Round:   ev.Round,
			Winner:  ev.Player,
			Amount:  ev.Amount,
			Seed:    ev.Seed,
			Players: ev.Players,
			Time:    ev.Time,
		})
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	return nil
}
