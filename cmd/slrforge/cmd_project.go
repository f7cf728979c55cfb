// Package main implements the slrforge CLI.
// This file handles project lifecycle commands: config init, project
// creation, status, and listing.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"slrforge/internal/artifact"
	"slrforge/internal/config"
)

// initCmd writes a starter config file
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default slrforge.yaml config file",
	Long: `Writes the default configuration to ./slrforge.yaml (or the --config
path) so it can be edited before the first run. Refuses to overwrite an
existing file.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

// startCmd creates a project from a research idea
var startCmd = &cobra.Command{
	Use:   "start \"<research idea>\"",
	Short: "Create a project and draft its context from a research idea",
	Long: `Creates a new project and runs the project-setup stage, which frames
the free-text idea as a reviewable project context draft.

Example:
  slrforge start "Systematic review of LLM hallucination mitigation"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStart,
}

// statusCmd shows pipeline progress for one project
var statusCmd = &cobra.Command{
	Use:   "status <project>",
	Short: "Show a project's artifacts and pipeline progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

// listCmd lists all projects in the store
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all projects",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := activeConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s, edit it or remove it first", path)
	}

	cfg := config.DefaultConfig()
	if baseDir != "" {
		cfg.BaseDir = baseDir
	}
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("✅ Wrote %s\n", path)
	fmt.Println("Edit it to pick an LLM provider, then start a project with:")
	fmt.Println("  slrforge start \"<research idea>\"")
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	ctl, _, err := buildController()
	if err != nil {
		return err
	}

	idea := strings.Join(args, " ")
	ctx, cancel := signalContext()
	defer cancel()

	res, err := ctl.StartProject(ctx, idea)
	if err != nil {
		return fmt.Errorf("failed to start project: %w", err)
	}
	if res.Draft != nil {
		fmt.Printf("✅ Project %s created\n", res.Draft.ProjectRef())
	}
	printStageResult(res)
	if res.Failed() {
		return fmt.Errorf("project setup produced no draft")
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctl, _, err := buildController()
	if err != nil {
		return err
	}

	ov, err := ctl.GetProject(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Project: %s\n", ov.ID)
	fmt.Printf("Title:   %s\n", ov.Title)
	fmt.Printf("Stage:   %s\n", ov.CurrentStage)
	fmt.Printf("Updated: %s\n", ov.UpdatedAt.Format("2006-01-02 15:04"))

	fmt.Println("\nArtifacts:")
	for _, t := range artifact.AllTypes() {
		status, ok := ov.Artifacts[t]
		if !ok {
			continue
		}
		fmt.Printf("  %-24s %s\n", t, status)
	}

	next, err := ctl.ListAvailableStages(args[0])
	if err != nil {
		return err
	}
	if len(next) > 0 {
		fmt.Println("\nRunnable stages:")
		for _, name := range next {
			fmt.Printf("  slrforge run %s %s\n", name, ov.ID)
		}
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctl, _, err := buildController()
	if err != nil {
		return err
	}

	projects, err := ctl.ListProjects()
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}
	if len(projects) == 0 {
		fmt.Println("No projects yet.")
		fmt.Println("Use: slrforge start \"<research idea>\"")
		return nil
	}

	fmt.Println("📚 Projects")
	fmt.Println(strings.Repeat("─", 78))
	for _, p := range projects {
		fmt.Printf("  %s  %-40s %s\n", p.ID, truncate(p.Title, 40), p.CurrentStatus())
	}
	fmt.Println(strings.Repeat("─", 78))
	fmt.Printf("Total: %d\n", len(projects))
	return nil
}
