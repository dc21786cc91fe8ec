package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codesweep/codesweep/internal/logging"
)

var (
	flagDebug      bool
	flagConfigPath string

	log *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "codesweep",
	Short: "Multi-stage static analysis with pluggable scanners and result caching",
	Long: `codesweep runs a suite of analysis plugins over a source tree,
deduplicates their findings into a bucketed report, and caches results
per file content hash so unchanged files are never re-analyzed.

Modes:
  quick: fast static plugins only (default)
  deep:  all static plugins plus LLM-generated explanations`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		log, err = logging.New(flagDebug)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Config file (default: .codesweep.yaml in the scan root)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
