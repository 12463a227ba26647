package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hetulpatel/cexarb/internal/engine"
	"github.com/hetulpatel/cexarb/internal/executor"
	"github.com/hetulpatel/cexarb/internal/kafka"
	"github.com/hetulpatel/cexarb/internal/logging"
	"github.com/hetulpatel/cexarb/internal/metrics"
	"github.com/hetulpatel/cexarb/internal/models"
	"github.com/hetulpatel/cexarb/internal/queue"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Serve metrics and drive the auto manager until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, func(a *app) error {
				a.ensureTopics(ctx)
				metrics.Serve(ctx, a.cfg.Infra.MetricsAddr, a.recorder.Registry, logging.L())
				flags, err := a.engine.Flags(ctx)
				if err != nil {
					return err
				}
				logging.Infof("[arbengine] running: exchanges=%v symbols=%v auto_mode=%t interval=%s tick=%s",
					a.cfg.ExchangeNames(), a.cfg.Symbols, flags.AutoMode, flags.Interval(), a.cfg.TickInterval())
				a.engine.Run(ctx, a.cfg.TickInterval())
				snap := a.engine.Snapshot()
				logging.Infof("[arbengine] stopped: scans=%d executions=%d pnl=%.4f", snap.TotalScans, snap.TotalExecutions, snap.TotalPnLUSD)
				return nil
			})
		},
	}
}

func scanCmd() *cobra.Command {
	var showRejected bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan with the stored filters and print the ranked opportunities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				res, err := a.engine.ScanNow(cmd.Context())
				if err != nil {
					return err
				}
				if !showRejected {
					res.Rejected = nil
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().BoolVar(&showRejected, "rejected", false, "include filtered proposals")
	return cmd
}

func executeCmd() *cobra.Command {
	var (
		symbol, buy, sell string
		mode, transfer    string
		pin               string
		confirm           bool
	)
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Scan, then execute the best opportunity or the one matching --symbol/--buy/--sell",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, func(a *app) error {
				res, err := a.engine.ScanNow(ctx)
				if err != nil {
					return err
				}
				opp, ok := pickOpportunity(res.Opportunities, symbol, buy, sell)
				if !ok {
					return fmt.Errorf("no opportunity matches symbol=%q buy=%q sell=%q (%d kept)", symbol, buy, sell, len(res.Opportunities))
				}
				out, err := a.engine.ExecuteByID(ctx, engine.ExecuteRequest{
					ProposalID:    opp.ProposalID,
					Mode:          models.Mode(mode),
					Transfer:      executor.TransferPreference(transfer),
					PIN:           pin,
					DoubleConfirm: confirm,
				})
				if err != nil {
					return err
				}
				return printJSON(out)
			})
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol to trade")
	cmd.Flags().StringVar(&buy, "buy", "", "buy exchange")
	cmd.Flags().StringVar(&sell, "sell", "", "sell exchange")
	cmd.Flags().StringVar(&mode, "mode", string(models.ModeDry), "dry, simulation or real")
	cmd.Flags().StringVar(&transfer, "transfer", string(executor.TransferAuto), "auto, chain or internal")
	cmd.Flags().StringVar(&pin, "pin", "", "admin PIN, required for real mode")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "double confirmation, required for real mode")
	return cmd
}

// pickOpportunity returns the first ranked opportunity matching every
// non-empty criterion.
func pickOpportunity(opps []models.Opportunity, symbol, buy, sell string) (models.Opportunity, bool) {
	for _, o := range opps {
		if symbol != "" && !strings.EqualFold(o.Symbol, symbol) {
			continue
		}
		if buy != "" && o.BuyExchange != buy {
			continue
		}
		if sell != "" && o.SellExchange != sell {
			continue
		}
		return o, true
	}
	return models.Opportunity{}, false
}

func tickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Drive the auto manager once and print its decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				d, err := a.engine.Tick(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}
}

func flagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Show or change runtime flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				flags, err := a.engine.Flags(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(flags)
			})
		},
	}

	toggle := func(use, short string, set func(ctx context.Context, e *engine.Engine, on bool) error) *cobra.Command {
		return &cobra.Command{
			Use:       use + " on|off",
			Short:     short,
			Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
			ValidArgs: []string{"on", "off"},
			RunE: func(cmd *cobra.Command, args []string) error {
				on := args[0] == "on"
				return withApp(cmd.Context(), func(a *app) error {
					if err := set(cmd.Context(), a.engine, on); err != nil {
						return err
					}
					flags, err := a.engine.Flags(cmd.Context())
					if err != nil {
						return err
					}
					return printJSON(flags)
				})
			},
		}
	}
	cmd.AddCommand(toggle("stop", "Engage or release the global stop", func(ctx context.Context, e *engine.Engine, on bool) error {
		_, err := e.SetGlobalStop(ctx, on)
		return err
	}))
	cmd.AddCommand(toggle("auto", "Turn auto mode on or off", func(ctx context.Context, e *engine.Engine, on bool) error {
		_, err := e.ToggleAutoMode(ctx, on)
		return err
	}))
	cmd.AddCommand(toggle("arb", "Turn arbitrage on or off", func(ctx context.Context, e *engine.Engine, on bool) error {
		_, err := e.SetArbOn(ctx, on)
		return err
	}))
	cmd.AddCommand(filtersCmd())
	return cmd
}

func filtersCmd() *cobra.Command {
	var (
		minROI, maxROI, minUSD float64
		topK                   int
		sortKey, sortDir       string
	)
	cmd := &cobra.Command{
		Use:   "filters",
		Short: "Patch the runtime filters; only flags that are set change",
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch models.FiltersPatch
			fs := cmd.Flags()
			if fs.Changed("min-roi") {
				patch.MinNetROIPct = &minROI
			}
			if fs.Changed("max-roi") {
				patch.MaxNetROIPct = &maxROI
			}
			if fs.Changed("min-usd") {
				patch.MinNetUSD = &minUSD
			}
			if fs.Changed("top-k") {
				patch.TopK = &topK
			}
			if fs.Changed("sort-key") {
				k := models.SortKey(sortKey)
				patch.SortKey = &k
			}
			if fs.Changed("sort-dir") {
				d := models.SortDir(sortDir)
				patch.SortDir = &d
			}
			return withApp(cmd.Context(), func(a *app) error {
				f, err := a.engine.UpdateFilters(cmd.Context(), patch)
				if err != nil {
					return err
				}
				return printJSON(f)
			})
		},
	}
	cmd.Flags().Float64Var(&minROI, "min-roi", 0, "minimum net ROI percent")
	cmd.Flags().Float64Var(&maxROI, "max-roi", 0, "maximum net ROI percent")
	cmd.Flags().Float64Var(&minUSD, "min-usd", 0, "minimum net profit in USD")
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of opportunities to keep")
	cmd.Flags().StringVar(&sortKey, "sort-key", "", "net_roi_pct or net_profit_usd")
	cmd.Flags().StringVar(&sortDir, "sort-dir", "", "asc or desc")
	return cmd
}

func historyCmd() *cobra.Command {
	var (
		limit      int
		executions bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List audited proposals or executions from SQLite",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, func(a *app) error {
				if a.store == nil {
					return fmt.Errorf("infra.sqlite_path is not configured")
				}
				if !executions {
					rows, err := a.store.ListProposals(ctx, limit)
					if err != nil {
						return err
					}
					return printJSON(rows)
				}
				rows, err := a.store.ListExecutions(ctx, limit)
				if err != nil {
					return err
				}
				pnl, err := a.store.RealizedPnL(ctx)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"executions": rows, "realized_pnl_usd": pnl})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "rows to list")
	cmd.Flags().BoolVar(&executions, "executions", false, "list executions instead of proposals")
	return cmd
}

func eventsCmd() *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "events [proposals|executions]",
		Short: "Tail audit events from Kafka",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			brokers := cfg.Infra.Kafka.Brokers
			if len(brokers) == 0 {
				brokers = kafka.Brokers()
			}
			topics := auditTopics(cfg)
			topic := topics.Executions
			if len(args) == 1 && args[0] == "proposals" {
				topic = topics.Proposals
			}
			return tail(cmd.Context(), brokers, topic, group)
		},
	}
	cmd.Flags().StringVar(&group, "group", "arbengine-events-"+strconv.Itoa(os.Getpid()), "consumer group")
	return cmd
}

func tail(ctx context.Context, brokers []string, topic, group string) error {
	reader := kafka.NewTailReader(brokers, topic, group)
	defer reader.Close()

	logging.Infof("[arbengine] tailing %s with group %s", topic, group)
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.Errorf("[arbengine] read error: %v", err)
			continue
		}
		ev, err := queue.Decode(msg)
		if err != nil {
			logging.Errorf("[arbengine] %v", err)
			continue
		}
		switch {
		case ev.Proposal != nil:
			p := ev.Proposal
			fmt.Printf("[proposal] %s %s %s->%s roi=%.4f%% net=%.4f accepted=%t reason=%s\n",
				p.ProposalID, p.Symbol, p.BuyExchange, p.SellExchange, p.NetROIPct, p.NetProfitUSD, ev.Accepted != nil && *ev.Accepted, ev.Reason)
		case ev.Execution != nil:
			x := ev.Execution
			fmt.Printf("[execution] %s proposal=%s mode=%s status=%s reason=%s pnl=%.4f fees=%.4f auto=%t\n",
				x.ExecID, x.ProposalID, x.Mode, x.Status, x.Reason, x.PnLUSD, x.FeesUSD, x.AutoTrigger)
		}
	}
}
