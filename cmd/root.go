package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "marketpulse-x",
	Short: "Prediction market monitoring and signal service",
	Long: `MarketPulse-X ingests prediction market prices, evaluates a set of
declarative detection rules (underpriced books, price spikes, endgame
sweeps, cross-market mispricings), and emits ranked signals.

Operators turn signals into order intents through the HTTP API; intents
pass a risk gauntlet before a mock execution fill.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadDotEnv loads a local .env file when present; a missing file is fine.
func loadDotEnv() {
	_ = godotenv.Load()
}
