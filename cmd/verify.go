package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/luca-patrignani/mental-lottery/bank"
	"github.com/luca-patrignani/mental-lottery/domain/draw"
	"github.com/luca-patrignani/mental-lottery/domain/lottery"
	"github.com/luca-patrignani/mental-lottery/ledger"
	"github.com/luca-patrignani/mental-lottery/storage"
)

var errAuditFailed = errors.New("settlement audit failed")

type roundAudit struct {
	Settlement lottery.Settlement
	Err        error
}

type journalReport struct {
	Blocks  int
	Manager lottery.Identity
	Stake   string
	Round   uint64
	Players int
	Rounds  []roundAudit
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the journal hash chain and audit every settlement draw",
		RunE: func(cmd *cobra.Command, args []string) error {
			spinner, _ := pterm.DefaultSpinner.Start("Verifying " + a.cfg.DBPath + " ...")
			report, err := verifyJournal(a.cfg.DBPath, a.logger)
			if err != nil && !errors.Is(err, errAuditFailed) {
				spinner.Fail(err)
				return err
			}
			if err != nil {
				spinner.Warning("Hash chain intact, but some draws do not match")
			} else {
				spinner.Success(fmt.Sprintf("%d blocks verified", report.Blocks))
			}
			pterm.Info.Printfln("Manager: %s, stake: %s ether, open round %d with %d players",
				report.Manager, report.Stake, report.Round, report.Players)
			if len(report.Rounds) > 0 {
				if rerr := pterm.DefaultTable.WithHasHeader().WithData(auditTable(report.Rounds)).Render(); rerr != nil {
					return rerr
				}
			}
			return err
		},
	}
}

// verifyJournal reloads the journal at path, which checks every hash link,
// replays it into a fresh ledger and re-runs the draw of every settlement
// from its recorded seed.
func verifyJournal(path string, logger *slog.Logger) (journalReport, error) {
	if _, err := os.Stat(path); err != nil {
		return journalReport{}, fmt.Errorf("no journal at %s: %w", path, err)
	}
	store, err := storage.Open(path)
	if err != nil {
		return journalReport{}, err
	}
	defer store.Close()

	blocks, err := store.LoadBlocks()
	if err != nil {
		return journalReport{}, err
	}
	if len(blocks) == 0 {
		return journalReport{}, fmt.Errorf("journal %s is empty", path)
	}
	meta := blocks[0].Metadata
	bc, err := ledger.Open(store, meta)
	if err != nil {
		return journalReport{}, err
	}

	manager := lottery.Identity(meta[ledger.MetaManager])
	stake, err := lottery.ParseAmount(meta[ledger.MetaStake])
	if err != nil {
		return journalReport{}, fmt.Errorf("genesis stake: %w", err)
	}
	l, err := lottery.New(manager, stake, bank.New(escrowAccount, stake), lottery.WithLogger(logger))
	if err != nil {
		return journalReport{}, err
	}
	events := bc.Events()
	if err := l.Replay(events); err != nil {
		return journalReport{}, err
	}

	report := journalReport{
		Blocks:  bc.Len(),
		Manager: manager,
		Stake:   stake.String(),
		Round:   l.CurrentRoundID(),
		Players: len(l.Players()),
	}
	failed := 0
	for _, s := range l.Winners() {
		candidates := make([]string, len(s.Players))
		for i, p := range s.Players {
			candidates[i] = string(p)
		}
		err := draw.Audit(draw.XOFSelector{}, s.Seed, candidates, string(s.Winner))
		if err != nil {
			failed++
			logger.Warn("draw does not match", "round", s.Round, "err", err)
		}
		report.Rounds = append(report.Rounds, roundAudit{Settlement: s, Err: err})
	}
	if failed > 0 {
		return report, fmt.Errorf("%w: %d of %d rounds", errAuditFailed, failed, len(report.Rounds))
	}
	return report, nil
}

func auditTable(rounds []roundAudit) pterm.TableData {
	data := pterm.TableData{{"Round", "Winner", "Amount", "Draw"}}
	for _, r := range rounds {
		status := pterm.LightGreen("ok")
		if r.Err != nil {
			status = pterm.LightRed(r.Err.Error())
		}
		data = append(data, []string{
			strconv.FormatUint(r.Settlement.Round, 10),
			shortID(r.Settlement.Winner),
			r.Settlement.Amount.String(),
			status,
		})
	}
	return data
}
