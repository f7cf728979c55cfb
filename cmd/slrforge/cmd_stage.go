// Package main implements the slrforge CLI.
// This file handles stage execution: running a named pipeline stage and the
// export shortcut.
package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"slrforge/internal/artifact"
	"slrforge/internal/pipeline"
)

var (
	runDatabases  string
	runMaxResults int
	runNoDedup    bool
)

// runCmd executes one pipeline stage
var runCmd = &cobra.Command{
	Use:   "run <stage> <project>",
	Short: "Run one pipeline stage and draft its artifact",
	Long: `Runs a named stage for a project. Every artifact the stage depends on
must be approved first; the command reports which approvals are missing
otherwise.

Stages, in order:
  ` + strings.Join(pipeline.StageNames(), "\n  ") + `

Examples:
  slrforge run problem-framing 4f1c9b2a
  slrforge run database-query-plan 4f1c9b2a --databases "arxiv, openalex"
  slrforge run query-execution 4f1c9b2a --max-results 50`,
	Args: cobra.ExactArgs(2),
	RunE: runStage,
}

// exportCmd is shorthand for running strategy-export
var exportCmd = &cobra.Command{
	Use:   "export <project>",
	Short: "Run strategy-export and write the protocol bundle",
	Long: `Runs the strategy-export stage, which writes the CSV, BibTeX, RIS, and
protocol markdown files into the project's export directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	runCmd.Flags().StringVar(&runDatabases, "databases", "", "Comma-separated databases for database-query-plan")
	runCmd.Flags().IntVar(&runMaxResults, "max-results", 0, "Per-database result cap for query-execution")
	runCmd.Flags().BoolVar(&runNoDedup, "no-dedup", false, "Skip deduplication during query-execution")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(exportCmd)
}

func runStage(cmd *cobra.Command, args []string) error {
	ctl, _, err := buildController()
	if err != nil {
		return err
	}

	params := map[string]string{}
	if runDatabases != "" {
		params["databases"] = runDatabases
	}
	if runMaxResults > 0 {
		params["max_results"] = strconv.Itoa(runMaxResults)
	}
	if runNoDedup {
		params["dedup"] = "false"
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := ctl.RunStage(ctx, args[0], args[1], params)
	if err != nil {
		return err
	}
	printStageResult(res)
	if res.Failed() {
		return fmt.Errorf("stage %s produced no draft", args[0])
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctl, _, err := buildController()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := ctl.RunStage(ctx, pipeline.StageStrategyExport, args[0], nil)
	if err != nil {
		return err
	}
	printStageResult(res)
	if res.Failed() {
		return fmt.Errorf("export produced no bundle")
	}

	if bundle, ok := res.Draft.(*artifact.StrategyExportBundle); ok {
		fmt.Println("\nExported files:")
		for _, f := range bundle.ExportedFiles {
			fmt.Printf("  %s\n", f)
		}
	}
	return nil
}
