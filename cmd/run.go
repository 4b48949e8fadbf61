package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marketpulse/marketpulse-x/internal/app"
	"github.com/marketpulse/marketpulse-x/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the monitoring service",
	Long: `Starts the MarketPulse-X service, which will:
1. Poll the configured venue (or the built-in mock) for market prices
2. Evaluate the detection rules on every cycle
3. Emit signals with KPIs, audit entries and alerts
4. Serve the HTTP API for signals, KPIs and order intents`,
	RunE: runService,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
}

func runService(cmd *cobra.Command, args []string) error {
	loadDotEnv()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	application, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
