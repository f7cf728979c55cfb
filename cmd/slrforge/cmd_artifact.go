// Package main implements the slrforge CLI.
// This file handles artifact inspection and the approval step that gates
// every pipeline stage.
package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"slrforge/internal/artifact"
)

var (
	approveStatus string
	approveNotes  string
	approveEdits  []string
)

// showCmd prints a stored artifact as JSON
var showCmd = &cobra.Command{
	Use:   "show <project> <artifact>",
	Short: "Print a stored artifact as JSON",
	Long: `Prints an artifact for review. Artifact names are matched loosely:
"project_context", "ProjectContext", and "project-context" all work.`,
	Args: cobra.ExactArgs(2),
	RunE: runShow,
}

// approveCmd moves an artifact out of draft
var approveCmd = &cobra.Command{
	Use:   "approve <project> <artifact>",
	Short: "Approve an artifact, optionally editing it first",
	Long: `Sets an artifact's review status, applying any --edit changes first.
Edits and the status change are validated together; nothing is saved if
validation fails. Approving unlocks the stages that depend on the artifact.

Statuses: approved (default), approved_with_notes, requires_revision

Examples:
  slrforge approve 4f1c9b2a project_context
  slrforge approve 4f1c9b2a problem_framing --status approved_with_notes --notes "scope is broad but workable"
  slrforge approve 4f1c9b2a project_context --edit title="LLM hallucination mitigation" --edit 'keywords=["llm","hallucination"]'`,
	Args: cobra.ExactArgs(2),
	RunE: runApprove,
}

func init() {
	approveCmd.Flags().StringVar(&approveStatus, "status", "", "Review status to set (default approved)")
	approveCmd.Flags().StringVar(&approveNotes, "notes", "", "Reviewer notes to record on the artifact")
	approveCmd.Flags().StringArrayVar(&approveEdits, "edit", nil, "Field edit as key=value, repeatable; values may be JSON")
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(approveCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	ctl, _, err := buildController()
	if err != nil {
		return err
	}

	t, err := artifact.ParseType(args[1])
	if err != nil {
		return err
	}
	a, err := ctl.GetArtifact(args[0], t)
	if err != nil {
		return err
	}
	return printJSON(a)
}

func runApprove(cmd *cobra.Command, args []string) error {
	ctl, _, err := buildController()
	if err != nil {
		return err
	}

	t, err := artifact.ParseType(args[1])
	if err != nil {
		return err
	}
	edits, err := editsJSON(approveEdits)
	if err != nil {
		return err
	}

	next, err := ctl.ApproveArtifact(args[0], t, edits, artifact.ApprovalStatus(approveStatus), approveNotes)
	if err != nil {
		return err
	}

	status := approveStatus
	if status == "" {
		status = string(artifact.StatusApproved)
	}
	fmt.Printf("✅ %s is now %s\n", t, status)
	if len(next) > 0 {
		fmt.Println("\nRunnable stages:")
		for _, name := range next {
			fmt.Printf("  slrforge run %s %s\n", name, args[0])
		}
	}
	return nil
}

// editsJSON turns repeated --edit key=value flags into a single JSON object.
// Values that already parse as JSON pass through unchanged so lists, numbers,
// and nested objects work; anything else is treated as a plain string.
func editsJSON(pairs []string) (json.RawMessage, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	edits := make(map[string]json.RawMessage, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed --edit %q, want key=value", pair)
		}
		raw := json.RawMessage(value)
		if !json.Valid(raw) {
			quoted, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("failed to encode edit value %q: %w", value, err)
			}
			raw = quoted
		}
		edits[key] = raw
	}
	return json.Marshal(edits)
}
