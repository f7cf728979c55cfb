// Package main implements the slrforge CLI.
// This file handles the review command: validating an artifact file on disk,
// optionally re-validating on every save so drafts can be edited in place.
package main

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"slrforge/internal/artifact"
)

var reviewWatch bool

// reviewCmd validates an artifact file, optionally watching it
var reviewCmd = &cobra.Command{
	Use:   "review <project> <artifact>",
	Short: "Validate an artifact file, re-checking on every save with --watch",
	Long: `Validates the stored artifact and reports any problems. With --watch
the file is re-validated every time an editor saves it, so a draft can be
fixed in place with immediate feedback. Stop watching with Ctrl-C.

Example:
  slrforge review 4f1c9b2a research_question_set --watch`,
	Args: cobra.ExactArgs(2),
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().BoolVar(&reviewWatch, "watch", false, "Re-validate on every file save")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}

	t, err := artifact.ParseType(args[1])
	if err != nil {
		return err
	}
	projectID := args[0]
	path := store.Path(projectID, t)

	check := func() error {
		a, err := store.Load(projectID, t)
		if err != nil {
			return err
		}
		if err := artifact.Validate(a); err != nil {
			return err
		}
		if qs, ok := a.(*artifact.ResearchQuestionSet); ok {
			if loaded, err := store.Load(projectID, artifact.TypeConceptModel); err == nil {
				if cm, ok := loaded.(*artifact.ConceptModel); ok {
					if err := artifact.ValidateQuestionLinks(qs, cm); err != nil {
						return err
					}
				}
			}
		}
		fmt.Printf("✅ %s is valid (status: %s)\n", t, a.CurrentStatus())
		return nil
	}

	if !reviewWatch {
		return check()
	}

	// The store replaces files atomically via rename, as do most editors,
	// so a watch on the file itself would be dropped on the first save.
	// Watch the directory and filter to the artifact's file name instead.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	if err := check(); err != nil {
		fmt.Printf("❌ %v\n", err)
	}
	fmt.Printf("👀 Watching %s (Ctrl-C to stop)\n", path)

	ctx, cancel := signalContext()
	defer cancel()

	target := filepath.Base(path)
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nStopped watching.")
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := check(); err != nil {
				fmt.Printf("❌ %v\n", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Printf("⚠️  watch error: %v\n", err)
		}
	}
}
