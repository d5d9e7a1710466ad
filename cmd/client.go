package main

import (
	"crypto/x509"
	"fmt"
	"os"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/luca-patrignani/mental-lottery/domain/lottery"
	"github.com/luca-patrignani/mental-lottery/identity"
	"github.com/luca-patrignani/mental-lottery/network"
)

// newClient dials the configured server. Commands that mutate the lottery
// pass withKey to sign with the local identity.
func (a *app) newClient(withKey bool) (*network.Client, error) {
	url, err := baseURL(a.cfg.Addr, a.cfg.TLS)
	if err != nil {
		return nil, err
	}
	var key *identity.Key
	if withKey {
		key, err = identity.LoadOrCreate(a.cfg.KeyPath)
		if err != nil {
			return nil, err
		}
	}
	var opts []network.ClientOption
	if a.cfg.TLS {
		pemBytes, err := os.ReadFile(a.caPath)
		if err != nil {
			return nil, fmt.Errorf("read server certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemBytes) {
			return nil, fmt.Errorf("no certificate found in %s", a.caPath)
		}
		opts = append(opts, network.WithRootCAs(pool))
	}
	return network.NewClient(url, key, opts...), nil
}

func newKeygenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Create the identity key if it does not exist and print its identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := identity.LoadOrCreate(a.cfg.KeyPath)
			if err != nil {
				return err
			}
			pterm.Info.Printfln("Key file: %s", a.cfg.KeyPath)
			pterm.Success.Printfln("Identity: %s", key.ID())
			return nil
		},
	}
}

func newEnterCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "enter [amount]",
		Short: "Enter the open round, staking amount (default: the round stake)",
		Long:  "Enter the open round. amount accepts wei, gwei and ether units, e.g. \"0.01 ether\".",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newClient(true)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			info, err := c.Round(ctx)
			if err != nil {
				return err
			}
			amount := info.Stake
			if len(args) == 1 {
				if amount, err = lottery.ParseAmount(args[0]); err != nil {
					return err
				}
			}
			spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Entering round %d with %s ...", info.Round, amount))
			receipt, err := c.Enter(ctx, amount)
			if err != nil {
				spinner.Fail(err)
				return err
			}
			spinner.Success(fmt.Sprintf("Entered round %d, %d players so far", receipt.Round, receipt.Players))
			return nil
		},
	}
}

func newSettleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "settle",
		Short: "Draw the winner of the open round (manager only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newClient(true)
			if err != nil {
				return err
			}
			spinner, _ := pterm.DefaultSpinner.Start("Drawing the winner ...")
			s, err := c.Settle(cmd.Context())
			if err != nil {
				spinner.Fail(err)
				return err
			}
			spinner.Success(fmt.Sprintf("Round %d settled", s.Round))
			pterm.Println(settlementBox(s))
			return nil
		},
	}
}

func newPlayersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "players",
		Short: "List the players of the open round",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newClient(false)
			if err != nil {
				return err
			}
			resp, err := c.Players(cmd.Context())
			if err != nil {
				return err
			}
			if len(resp.Players) == 0 {
				pterm.Info.Printfln("Round %d has no players yet", resp.Round)
				return nil
			}
			return pterm.DefaultTable.WithHasHeader().WithData(playersTable(resp)).Render()
		},
	}
}

func newWinnerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "winner [round]",
		Short: "Show the winner of a settled round, or every settlement",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newClient(false)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				winners, err := c.Winners(cmd.Context())
				if err != nil {
					return err
				}
				if len(winners) == 0 {
					pterm.Info.Println("No round has been settled yet")
					return nil
				}
				return pterm.DefaultTable.WithHasHeader().WithData(winnersTable(winners)).Render()
			}
			round, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid round %q: %w", args[0], err)
			}
			s, err := c.Settlement(cmd.Context(), round)
			if err != nil {
				return err
			}
			pterm.Println(settlementBox(s))
			return nil
		},
	}
}

func newManagerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "manager",
		Short: "Show the manager identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newClient(false)
			if err != nil {
				return err
			}
			m, err := c.Manager(cmd.Context())
			if err != nil {
				return err
			}
			pterm.Info.Printfln("Manager: %s", m)
			return nil
		},
	}
}

func newRoundCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "round",
		Short: "Show the open round",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newClient(false)
			if err != nil {
				return err
			}
			info, err := c.Round(cmd.Context())
			if err != nil {
				return err
			}
			pterm.Println(roundBox(info))
			return nil
		},
	}
}

func newBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [identity]",
		Short: "Show the balance of an account (default: the local identity)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newClient(false)
			if err != nil {
				return err
			}
			var id lottery.Identity
			if len(args) == 1 {
				id = lottery.Identity(args[0])
			} else {
				key, err := identity.LoadOrCreate(a.cfg.KeyPath)
				if err != nil {
					return err
				}
				id = key.ID()
			}
			bal, err := c.Balance(cmd.Context(), id)
			if err != nil {
				return err
			}
			pterm.Info.Printfln("%s: %s ether", id, bal)
			return nil
		},
	}
}
