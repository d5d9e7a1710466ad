package main

import (
	"log/slog"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/luca-patrignani/mental-lottery/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

// app carries what every command needs once flags and environment are parsed.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	caPath string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var flags struct {
		addr, key, level string
		tls              bool
	}
	root := &cobra.Command{
		Use:           "lottery",
		Short:         "Run or play a pooled-stake lottery",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("addr") {
				cfg.Addr = flags.addr
			}
			if f.Changed("key") {
				cfg.KeyPath = flags.key
			}
			if f.Changed("log-level") {
				cfg.LogLevel = flags.level
			}
			if f.Changed("tls") {
				cfg.TLS = flags.tls
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a.cfg = cfg
			a.logger, err = newLogger(cfg)
			return err
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.addr, "addr", "", "server address (LOTTERY_ADDR)")
	pf.StringVar(&flags.key, "key", "", "identity key file (LOTTERY_KEY)")
	pf.StringVar(&flags.level, "log-level", "", "debug, info, warn or error (LOTTERY_LOG_LEVEL)")
	pf.BoolVar(&flags.tls, "tls", false, "serve or connect over https (LOTTERY_TLS)")
	pf.StringVar(&a.caPath, "ca", "lottery.crt", "certificate the server is trusted with when --tls is set")

	root.AddCommand(
		newServeCmd(a),
		newKeygenCmd(a),
		newEnterCmd(a),
		newSettleCmd(a),
		newPlayersCmd(a),
		newWinnerCmd(a),
		newManagerCmd(a),
		newRoundCmd(a),
		newBalanceCmd(a),
		newVerifyCmd(a),
	)
	return root
}

func newLogger(cfg config.Config) (*slog.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	logger := pterm.DefaultLogger.WithLevel(ptermLevel(lvl))
	return slog.New(pterm.NewSlogHandler(logger)), nil
}

func ptermLevel(lvl slog.Level) pterm.LogLevel {
	switch {
	case lvl <= slog.LevelDebug:
		return pterm.LogLevelDebug
	case lvl <= slog.LevelInfo:
		return pterm.LogLevelInfo
	case lvl <= slog.LevelWarn:
		return pterm.LogLevelWarn
	default:
		return pterm.LogLevelError
	}
}
