// Package main implements the slrforge CLI, a human-in-the-loop pipeline
// that turns a rough research idea into a reproducible systematic-review
// search strategy. Every stage drafts an artifact; nothing advances until
// the researcher approves it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"slrforge/internal/logging"
)

var (
	// Global flags
	cfgPath string
	baseDir string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "slrforge",
	Short: "slrforge - reviewed pipeline from research idea to search strategy",
	Long: `slrforge builds a reproducible literature-search strategy out of a
natural-language research idea, one reviewed stage at a time:

  project-setup            frame the idea as a project context
  problem-framing          problem statement, scope, and concept model
  research-questions       questions linked to concepts
  search-concept-expansion concept blocks with synonyms and variants
  database-query-plan      boolean queries per database dialect
  query-execution          run queries against open APIs, deduplicate
  screening-criteria       inclusion/exclusion criteria
  strategy-export          CSV, BibTeX, RIS, and protocol markdown

Each stage produces a draft for review. Edit it, approve it, and the next
stage unlocks.

Typical session:
  slrforge start "Systematic review of LLM hallucination mitigation"
  slrforge approve <project> project_context
  slrforge run problem-framing <project>
  ...
  slrforge export <project>`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Init(verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAudit()
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file path (default ./slrforge.yaml)")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "Project storage root (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// signalContext returns a context that is canceled on SIGINT or SIGTERM so
// long-running stages (query execution, LLM drafting) shut down cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
