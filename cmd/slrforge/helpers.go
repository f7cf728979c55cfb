// Package main implements the slrforge CLI.
// This file wires configuration into the pipeline controller and holds
// shared output helpers for the command handlers.
package main

import (
	"encoding/json"
	"fmt"

	"slrforge/internal/artifact"
	"slrforge/internal/config"
	"slrforge/internal/dedup"
	"slrforge/internal/export"
	"slrforge/internal/llm"
	"slrforge/internal/logging"
	"slrforge/internal/pipeline"
	"slrforge/internal/search"
)

// activeConfigPath resolves the config file honoring the --config flag.
func activeConfigPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the active config, applies the --base-dir override, and
// validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(activeConfigPath())
	if err != nil {
		return nil, err
	}
	if baseDir != "" {
		cfg.BaseDir = baseDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore loads config and opens the artifact store without the rest of
// the stack. Commands that only read or validate artifacts use this.
func openStore() (*artifact.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := artifact.NewStore(cfg.BaseDir)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

// buildController wires the full pipeline stack: store, drafter, search
// executor with its provider registry and optional response cache, and the
// export bundler.
func buildController() (*pipeline.Controller, *artifact.Store, error) {
	store, cfg, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	if err := logging.InitAudit(cfg.BaseDir); err != nil {
		logging.PipelineWarn("audit trail unavailable: %v", err)
	}

	drafter, err := llm.New(cfg)
	if err != nil {
		return nil, nil, err
	}

	var cache *search.Cache
	if cfg.Cache.Enabled {
		cache, err = search.OpenCache(cfg.CachePath(), cfg.CacheTTL())
		if err != nil {
			logging.CacheWarn("search cache unavailable, continuing without it: %v", err)
			cache = nil
		}
	}

	exec := search.NewExecutor(store, search.NewRegistry(cfg), dedup.New(), cache, cfg)
	ctl := pipeline.NewController(cfg, store, drafter, exec, export.NewBundler(store))
	return ctl, store, nil
}

// printStageResult renders a stage outcome for the terminal.
func printStageResult(res *pipeline.StageResult) {
	if res.Draft != nil {
		fmt.Printf("Drafted %s (status: %s)\n", res.Draft.Type(), res.Draft.CurrentStatus())
	}
	for t := range res.Extra {
		fmt.Printf("Drafted %s alongside it\n", t)
	}
	if res.Metadata != nil {
		fmt.Printf("Generated by: %s (%s)\n", res.Metadata.ModelName, res.Metadata.Mode)
	}
	for _, e := range res.ValidationErrors {
		fmt.Printf("❌ %s\n", e)
	}
	for _, w := range res.Warnings {
		fmt.Printf("⚠️  %s\n", w)
	}
	if len(res.Prompts) > 0 {
		fmt.Println("\nNext steps:")
		for _, p := range res.Prompts {
			fmt.Printf("  → %s\n", p)
		}
	}
}

// printJSON pretty-prints any value as indented JSON.
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// truncate shortens s to at most n runes for table display.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
