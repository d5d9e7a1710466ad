package bank

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/luca-patrignani/mental-lottery/domain/lottery"
)

var (
	hundred = decimal.NewFromInt(100)
	stake   = decimal.RequireFromString("0.01")
)

func TestNewAccountsArePreFunded(t *testing.T) {
	b := New("lottery", hundred)
	if !b.Balance("alice").Equal(hundred) {
		t.Errorf("alice balance = %s, want 100", b.Balance("alice"))
	}
	if !b.Balance(b.Escrow()).IsZero() {
		t.Errorf("escrow balance = %s, want 0", b.Balance(b.Escrow()))
	}
}

func TestTransfer(t *testing.T) {
	tests := []struct {
		name    string
		from    lottery.Identity
		amount  decimal.Decimal
		wantErr error
	}{
		{"ok", "alice", decimal.NewFromInt(40), nil},
		{"whole balance", "alice", hundred, nil},
		{"insufficient", "alice", decimal.NewFromInt(101), ErrInsufficientFunds},
		{"zero", "alice", decimal.Zero, ErrInvalidAmount},
		{"negative", "alice", decimal.NewFromInt(-1), ErrInvalidAmount},
		{"empty account", "", stake, lottery.ErrInvalidIdentity},
		{"from escrow", "lottery", stake, ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("lottery", hundred)
			before := b.Balance(tt.from).Add(b.Balance("bob"))
			err := b.Transfer(tt.from, "bob", tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			after := b.Balance(tt.from).Add(b.Balance("bob"))
			if tt.from != "" && !before.Equal(after) {
				t.Errorf("transfer did not conserve value: %s -> %s", before, after)
			}
			if err != nil && !b.Balance("bob").Equal(hundred) {
				t.Errorf("failed transfer moved funds, bob has %s", b.Balance("bob"))
			}
		})
	}
}

func TestHoldPayRelease(t *testing.T) {
	b := New("lottery", hundred)
	for _, p := range []lottery.Identity{"alice", "bob", "carol"} {
		if err := b.Hold(p, stake); err != nil {
			t.Fatal(err)
		}
	}
	pool := stake.Mul(decimal.NewFromInt(3))
	if !b.Balance("lottery").Equal(pool) {
		t.Fatalf("escrow = %s, want %s", b.Balance("lottery"), pool)
	}
	if err := b.Release("carol", stake); err != nil {
		t.Fatal(err)
	}
	if !b.Balance("carol").Equal(hundred) {
		t.Errorf("carol = %s after refund", b.Balance("carol"))
	}
	if err := b.Pay(context.Background(), "alice", pool); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overdrawn escrow paid out: %v", err)
	}
	if err := b.Pay(context.Background(), "alice", stake.Mul(decimal.NewFromInt(2))); err != nil {
		t.Fatal(err)
	}
	if !b.Balance("alice").Equal(hundred.Add(stake)) {
		t.Errorf("alice = %s", b.Balance("alice"))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Pay(ctx, "alice", stake); !errors.Is(err, context.Canceled) {
		t.Errorf("pay with cancelled context: %v", err)
	}
}

func TestBankAsPayer(t *testing.T) {
	b := New("lottery", hundred)
	l, err := lottery.New("alice", stake, b)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []lottery.Identity{"alice", "bob"} {
		if err := b.Hold(p, stake); err != nil {
			t.Fatal(err)
		}
		if err := l.Enter(p, stake); err != nil {
			t.Fatal(err)
		}
	}
	s, err := l.Settle(context.Background(), "alice", []byte("seed"))
	if err != nil {
		t.Fatal(err)
	}
	if !b.Balance(s.Winner).Equal(hundred.Add(stake)) {
		t.Errorf("winner balance = %s, want %s", b.Balance(s.Winner), hundred.Add(stake))
	}
	if !b.Balance("lottery").IsZero() {
		t.Errorf("escrow = %s after settlement", b.Balance("lottery"))
	}
}

func TestApply(t *testing.T) {
	b := New("lottery", hundred)
	events := []lottery.Event{
		{Type: lottery.EventEntered, Round: 1, Player: "alice", Amount: stake},
		{Type: lottery.EventEntered, Round: 1, Player: "bob", Amount: stake},
		{Type: lottery.EventSettled, Round: 1, Player: "bob", Amount: stake.Add(stake)},
		{Type: lottery.EventEntered, Round: 2, Player: "carol", Amount: stake},
	}
	if err := b.Apply(events); err != nil {
		t.Fatal(err)
	}
	want := map[lottery.Identity]decimal.Decimal{
		"alice":   hundred.Sub(stake),
		"bob":     hundred.Add(stake),
		"carol":   hundred.Sub(stake),
		"lottery": stake,
	}
	for id, bal := range want {
		if !b.Balance(id).Equal(bal) {
			t.Errorf("%s = %s, want %s", id, b.Balance(id), bal)
		}
	}
}
