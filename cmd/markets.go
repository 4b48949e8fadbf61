package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/marketpulse/marketpulse-x/internal/venue"
	"github.com/marketpulse/marketpulse-x/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "List markets from the configured venue",
	Long:  `Fetches and displays markets from the configured venue (or the built-in mock) for debugging purposes.`,
	RunE:  runMarkets,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(marketsCmd)
	marketsCmd.Flags().IntP("limit", "l", 20, "Maximum number of markets to fetch")
}

func runMarkets(cmd *cobra.Command, args []string) error {
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

	limit, _ := cmd.Flags().GetInt("limit")

	var source venue.Source
	if cfg.DataSource == "mock" {
		source = venue.NewSyntheticSource(&venue.SyntheticConfig{
			Seed:   cfg.MockSeedOrRandom(),
			Logger: logger,
		})
	} else {
		source, err = venue.NewPolymarketClient(&venue.ClientConfig{
			GammaURL:  cfg.GammaURL,
			CLOBURL:   cfg.CLOBURL,
			Timeout:   cfg.RequestTimeout,
			BookTTL:   cfg.BookTTL,
			DetailTTL: cfg.MetadataTTL,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("create venue client: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	page, err := source.ListMarkets(ctx, limit, "")
	if err != nil {
		return fmt.Errorf("fetch markets: %w", err)
	}

	if len(page.Markets) == 0 {
		fmt.Println("No markets found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "MARKET\tTITLE\tSTATUS\tOUTCOMES\tENDS\n")
	for i := range page.Markets {
		m := &page.Markets[i]

		title := m.Title
		if len(title) > 60 {
			title = title[:57] + "..."
		}
		ends := "-"
		if m.EndsAt != nil {
			ends = m.EndsAt.UTC().Format(time.RFC3339)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", m.MarketID, title, m.Status, len(m.Outcomes), ends)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d market(s)\n", len(page.Markets))
	return nil
}
