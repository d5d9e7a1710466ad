package main

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/luca-patrignani/mental-lottery/config"
	"github.com/luca-patrignani/mental-lottery/domain/draw"
	"github.com/luca-patrignani/mental-lottery/domain/lottery"
	"github.com/luca-patrignani/mental-lottery/identity"
	"github.com/luca-patrignani/mental-lottery/ledger"
	"github.com/luca-patrignani/mental-lottery/network"
	"github.com/luca-patrignani/mental-lottery/storage"
)

func testApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		Addr:           "127.0.0.1:0",
		Stake:          "0.01 ether",
		DBPath:         filepath.Join(dir, "lottery.db"),
		KeyPath:        filepath.Join(dir, "manager.key"),
		InitialBalance: "100",
		RequestTTL:     30 * time.Second,
		LogLevel:       "info",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return &app{
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
		caPath: filepath.Join(dir, "lottery.crt"),
	}
}

// startServe runs the server in the background and returns its address and a
// function that stops it.
func startServe(t *testing.T, a *app) (string, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runServe(ctx, a, a.caPath, func(addr string, _ *lottery.Ledger) {
			addrCh <- addr
		})
	}()
	select {
	case addr := <-addrCh:
		return addr, func() {
			cancel()
			if err := <-errCh; err != nil {
				t.Errorf("serve: %v", err)
			}
		}
	case err := <-errCh:
		cancel()
		t.Fatalf("serve: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server did not start")
	}
	return "", nil
}

// TestServeSurvivesRestart verifies that a restarted server resumes the
// lottery, balances included, from its journal and that the journal verifies.
func TestServeSurvivesRestart(t *testing.T) {
	a := testApp(t)
	addr, stop := startServe(t, a)

	manager, err := identity.Load(a.cfg.KeyPath)
	if err != nil {
		t.Fatalf("server key: %v", err)
	}
	stake := decimal.RequireFromString("0.01")
	players := []*identity.Key{manager}
	for range 2 {
		k, err := identity.Generate()
		if err != nil {
			t.Fatal(err)
		}
		players = append(players, k)
	}
	for _, k := range players[1:] {
		if _, err := network.NewClient(addr, k).Enter(t.Context(), stake); err != nil {
			t.Fatalf("enter: %v", err)
		}
	}
	settled, err := network.NewClient(addr, manager).Settle(t.Context())
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if _, err := network.NewClient(addr, players[0]).Enter(t.Context(), stake); err != nil {
		t.Fatalf("enter next round: %v", err)
	}
	stop()

	addr, stop = startServe(t, a)
	defer stop()
	c := network.NewClient(addr, nil)
	info, err := c.Round(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if info.Round != 2 || info.Players != 1 {
		t.Fatalf("round after restart = %+v", info)
	}
	winner, err := c.Winner(t.Context(), 1)
	if err != nil || winner != settled.Winner {
		t.Fatalf("winner(1) after restart = (%s, %v), want %s", winner, err, settled.Winner)
	}
	bal, err := c.Balance(t.Context(), settled.Winner)
	if err != nil {
		t.Fatal(err)
	}
	if !bal.Equal(decimal.RequireFromString("100.01")) {
		t.Fatalf("winner balance after restart = %s, want 100.01", bal)
	}
	escrow, err := c.Balance(t.Context(), escrowAccount)
	if err != nil || !escrow.Equal(stake) {
		t.Fatalf("escrow after restart = (%s, %v), want %s", escrow, err, stake)
	}
}

// TestServeTLS verifies that the server writes its certificate and that a
// client trusting it can connect.
func TestServeTLS(t *testing.T) {
	a := testApp(t)
	a.cfg.TLS = true
	addr, stop := startServe(t, a)
	defer stop()

	a.cfg.Addr = addr
	c, err := a.newClient(true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Enter(t.Context(), decimal.RequireFromString("0.01")); err != nil {
		t.Fatalf("enter over tls: %v", err)
	}
	players, err := c.Players(t.Context())
	if err != nil || len(players.Players) != 1 {
		t.Fatalf("players = (%+v, %v)", players, err)
	}
}

// TestServeRejectsOtherParameters verifies that a journal cannot be reopened
// with a different stake.
func TestServeRejectsOtherParameters(t *testing.T) {
	a := testApp(t)
	_, stop := startServe(t, a)
	stop()

	a.cfg.Stake = "0.02"
	err := runServe(context.Background(), a, a.caPath, nil)
	if err == nil {
		t.Fatal("serve accepted a journal created with another stake")
	}
}

// TestVerifyJournal verifies that the journal of a played lottery passes the
// audit.
func TestVerifyJournal(t *testing.T) {
	a := testApp(t)
	addr, stop := startServe(t, a)
	manager, err := identity.Load(a.cfg.KeyPath)
	if err != nil {
		t.Fatal(err)
	}
	stake := decimal.RequireFromString("0.01")
	if _, err := network.NewClient(addr, manager).Enter(t.Context(), stake); err != nil {
		t.Fatal(err)
	}
	if _, err := network.NewClient(addr, manager).Settle(t.Context()); err != nil {
		t.Fatal(err)
	}
	stop()

	report, err := verifyJournal(a.cfg.DBPath, a.logger)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.Blocks != 3 || report.Round != 2 || len(report.Rounds) != 1 || report.Rounds[0].Err != nil {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Manager != manager.ID() {
		t.Fatalf("manager = %s, want %s", report.Manager, manager.ID())
	}
}

// TestVerifyJournalForgedWinner verifies that a settlement whose winner is not
// the one drawn from its seed fails the audit even though the chain is intact.
func TestVerifyJournalForgedWinner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forged.db")
	store, err := storage.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	stake := decimal.RequireFromString("0.01")
	bc, err := ledger.Open(store, map[string]string{ledger.MetaManager: "alice", ledger.MetaStake: stake.String()})
	if err != nil {
		t.Fatal(err)
	}
	players := []lottery.Identity{"alice", "bob"}
	seed := []byte("seed")
	idx, err := draw.XOFSelector{}.Select(seed, []string{"alice", "bob"})
	if err != nil {
		t.Fatal(err)
	}
	forged := players[1-idx]
	events := []lottery.Event{
		{Type: lottery.EventEntered, Round: 1, Player: "alice", Amount: stake},
		{Type: lottery.EventEntered, Round: 1, Player: "bob", Amount: stake},
		{Type: lottery.EventSettled, Round: 1, Player: forged, Amount: stake.Add(stake), Seed: seed, Players: slices.Clone(players)},
	}
	for _, ev := range events {
		if err := bc.Record(ev); err != nil {
			t.Fatal(err)
		}
	}
	store.Close()

	report, err := verifyJournal(path, slog.New(slog.DiscardHandler))
	if !errors.Is(err, errAuditFailed) {
		t.Fatalf("verify forged journal: got %v, want errAuditFailed", err)
	}
	if len(report.Rounds) != 1 || report.Rounds[0].Err == nil {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestVerifyMissingJournal(t *testing.T) {
	if _, err := verifyJournal(filepath.Join(t.TempDir(), "missing.db"), slog.New(slog.DiscardHandler)); err == nil {
		t.Fatal("verify of a missing journal succeeded")
	}
}
