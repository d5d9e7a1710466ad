// Package bank keeps the balances of the accounts taking part in the
// lottery. It plays the part of the host chain: stakes are moved into an
// escrow account when a player enters and the pool is paid out of it when a
// round is settled.
package bank

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/luca-patrignani/mental-lottery/domain/lottery"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Bank holds balances in memory. Accounts other than the escrow open lazily
// with the initial balance, like the pre-funded accounts of a development
// chain.
type Bank struct {
	mu       sync.Mutex
	balances map[lottery.Identity]decimal.Decimal
	initial  decimal.Decimal
	escrow   lottery.Identity
}

func New(escrow lottery.Identity, initial decimal.Decimal) *Bank {
	return &Bank{
		balances: map[lottery.Identity]decimal.Decimal{escrow: decimal.Zero},
		initial:  initial,
		escrow:   escrow,
	}
}

// Escrow returns the identity of the account holding the pool.
func (b *Bank) Escrow() lottery.Identity {
	return b.escrow
}

func (b *Bank) Balance(id lottery.Identity) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance(id)
}

func (b *Bank) balance(id lottery.Identity) decimal.Decimal {
	bal, ok := b.balances[id]
	if !ok {
		return b.initial
	}
	return bal
}

// Transfer moves amount from one account to another. It either moves the
// whole amount or nothing.
func (b *Bank) Transfer(from, to lottery.Identity, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if from == "" || to == "" {
		return lottery.ErrInvalidIdentity
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	src := b.balance(from)
	if src.LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from, src, amount)
	}
	b.balances[from] = src.Sub(amount)
	b.balances[to] = b.balance(to).Add(amount)
	return nil
}

// Hold moves amount from id into escrow.
func (b *Bank) Hold(id lottery.Identity, amount decimal.Decimal) error {
	return b.Transfer(id, b.escrow, amount)
}

// Release gives amount held in escrow back to id.
func (b *Bank) Release(id lottery.Identity, amount decimal.Decimal) error {
	return b.Transfer(b.escrow, id, amount)
}

// Pay pays amount out of escrow. It implements lottery.Payer.
func (b *Bank) Pay(ctx context.Context, to lottery.Identity, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Transfer(b.escrow, to, amount)
}

// Apply replays the money movements of journal events: entries move the
// stake into escrow and settlements pay the pool to the winner.
func (b *Bank) Apply(events []lottery.Event) error {
	for i, ev := range events {
		var err error
		switch ev.Type {
		case lottery.EventEntered:
			err = b.Hold(ev.Player, ev.Amount)
		case lottery.EventSettled:
			err = b.Release(ev.Player, ev.Amount)
		}
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	return nil
}
