package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marketpulse/marketpulse-x/internal/rules"
	"github.com/marketpulse/marketpulse-x/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var validateRulesCmd = &cobra.Command{
	Use:   "validate-rules",
	Short: "Validate the rule definition files",
	Long:  `Parses and validates every rule YAML file without touching storage. Exits non-zero on the first invalid file.`,
	RunE:  runValidateRules,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(validateRulesCmd)
	validateRulesCmd.Flags().StringP("dir", "d", "", "Rules directory (default: RULES_DIR)")
}

func runValidateRules(cmd *cobra.Command, args []string) error {
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

	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.RulesDir
	}

	loader := rules.NewLoader(&rules.LoaderConfig{Dir: dir, Logger: logger})
	defs, err := loader.Parse()
	if err != nil {
		return fmt.Errorf("validate rules: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "NAME\tTYPE\tLEVEL\tENABLED\tCOOLDOWN\n")
	for i := range defs {
		def := &defs[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%ds\n",
			def.Name, def.Type, def.Level, def.Enabled, def.CooldownSecs)
	}
	w.Flush()

	fmt.Printf("\n%d rule(s) valid.\n", len(defs))
	return nil
}
