package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hetulpatel/cexarb/internal/config"
	"github.com/hetulpatel/cexarb/internal/logging"
)

var configPath string

func main() {
	_ = godotenv.Load()
	logging.InitFromEnv()
	defer logging.Sync()

	rootCmd := &cobra.Command{
		Use:   "arbengine",
		Short: "Cross-exchange spot arbitrage scanner and paper executor",
		Long: `arbengine scans configured exchanges for cross-venue spreads, ranks the
cost-adjusted opportunities and executes them in dry, simulation or real mode.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("ARB_CONFIG"), "YAML config path (defaults to ARB_CONFIG)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(executeCmd())
	rootCmd.AddCommand(tickCmd())
	rootCmd.AddCommand(flagsCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(collectCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// withApp loads config, wires the app and closes it after fn returns.
func withApp(ctx context.Context, fn func(*app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
