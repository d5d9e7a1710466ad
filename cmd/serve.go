package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/luca-patrignani/mental-lottery/bank"
	"github.com/luca-patrignani/mental-lottery/domain/lottery"
	"github.com/luca-patrignani/mental-lottery/identity"
	"github.com/luca-patrignani/mental-lottery/ledger"
	"github.com/luca-patrignani/mental-lottery/network"
	"github.com/luca-patrignani/mental-lottery/storage"
)

const escrowAccount lottery.Identity = "lottery"

func newServeCmd(a *app) *cobra.Command {
	var certOut string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the lottery",
		RunE: func(cmd *cobra.Command, args []string) error {
			pterm.DefaultBigText.WithLetters(
				putils.LettersFromStringWithStyle("M", pterm.FgRed.ToStyle()),
				putils.LettersFromStringWithStyle("ental ", pterm.FgDarkGray.ToStyle()),
				putils.LettersFromStringWithStyle("L", pterm.FgRed.ToStyle()),
				putils.LettersFromStringWithStyle("ottery", pterm.FgDarkGray.ToStyle()),
			).Render()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a, certOut, func(addr string, l *lottery.Ledger) {
				pterm.Info.Printfln("Listening on %s", addr)
				pterm.Info.Printfln("Manager: %s", l.Manager())
				pterm.Info.Printfln("Stake: %s (%s)", l.Stake(), lottery.FormatWei(l.Stake()))
			})
		},
	}
	cmd.Flags().StringVar(&certOut, "cert-out", "lottery.crt", "where the self-signed certificate is written when --tls is set")
	return cmd
}

// runServe rebuilds the lottery from its journal and serves it until ctx is done.
// ready is called once the listener is bound.
func runServe(ctx context.Context, a *app, certOut string, ready func(addr string, l *lottery.Ledger)) error {
	cfg, logger := a.cfg, a.logger

	key, err := identity.LoadOrCreate(cfg.KeyPath)
	if err != nil {
		return err
	}
	manager := lottery.Identity(cfg.Manager)
	if manager == "" {
		manager = key.ID()
	}
	stake, err := cfg.StakeAmount()
	if err != nil {
		return err
	}
	initial, err := cfg.InitialBalanceAmount()
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	l, b, bc, err := restore(store, manager, stake, initial, logger)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	if tcp, ok := listener.(*net.TCPListener); ok {
		if subnet, err := subnetOfListener(tcp); err == nil {
			logger.Info("players can reach the lottery from", "subnet", subnet.String())
		}
	}

	opts := []network.ServerOption{
		network.WithLogger(logger),
		network.WithChain(bc),
		network.WithRequestTTL(cfg.RequestTTL),
	}
	if cfg.TLS {
		cert, pemBytes, err := network.GenerateSelfSignedCert(listener.Addr().String())
		if err != nil {
			listener.Close()
			return err
		}
		if err := os.WriteFile(certOut, pemBytes, 0o644); err != nil {
			listener.Close()
			return fmt.Errorf("write certificate: %w", err)
		}
		logger.Info("self-signed certificate written", "path", certOut)
		opts = append(opts, network.WithCertificate(cert))
	}

	srv := network.NewServer(l, b, opts...)
	srv.Start(listener)
	if ready != nil {
		ready(listener.Addr().String(), l)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Close(shutdownCtx)
}

// restore opens the journal kept in store and replays it into a fresh bank
// and ledger.
func restore(store *storage.Store, manager lottery.Identity, stake, initial decimal.Decimal, logger *slog.Logger) (*lottery.Ledger, *bank.Bank, *ledger.Blockchain, error) {
	meta := map[string]string{
		ledger.MetaManager: string(manager),
		ledger.MetaStake:   stake.String(),
	}
	bc, err := ledger.Open(store, meta)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open journal %s: %w", store.Path(), err)
	}
	events := bc.Events()

	b := bank.New(escrowAccount, initial)
	if err := b.Apply(events); err != nil {
		return nil, nil, nil, fmt.Errorf("restore balances: %w", err)
	}
	l, err := lottery.New(manager, stake, b, lottery.WithJournal(bc), lottery.WithLogger(logger))
	if err != nil {
		return nil, nil, nil, err
	}
	if err := l.Replay(events); err != nil {
		return nil, nil, nil, fmt.Errorf("restore ledger: %w", err)
	}
	return l, b, bc, nil
}
