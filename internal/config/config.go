// Package config holds all slrforge configuration: storage root, drafter
// backend, executor limits, per-provider rate settings, dedup and cache
// toggles. Loading order is defaults, then YAML file, then environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all slrforge configuration.
type Config struct {
	// BaseDir is the storage root; every project lives in <base_dir>/<id>/.
	BaseDir string `yaml:"base_dir" validate:"required"`

	LLM      LLMConfig                 `yaml:"llm"`
	Executor ExecutorConfig            `yaml:"executor"`
	Provider map[string]ProviderConfig `yaml:"provider"`
	Dedup    DedupConfig               `yaml:"dedup"`
	Cache    CacheConfig               `yaml:"cache"`
}

// LLMConfig configures the drafter backend.
type LLMConfig struct {
	// Provider selects the backend: openai, gemini, anthropic, mock,
	// deterministic. The deterministic backend never calls an LLM; stages
	// use their heuristic fallbacks.
	Provider          string `yaml:"provider" validate:"required,oneof=openai gemini anthropic mock deterministic"`
	APIKey            string `yaml:"api_key"`
	Model             string `yaml:"model"`
	BaseURL           string `yaml:"base_url"`
	TimeoutSeconds    int    `yaml:"timeout_seconds" validate:"gt=0"`
	MaxCritiqueRounds int    `yaml:"max_critique_rounds" validate:"gte=0,lte=5"`
}

// ExecutorConfig configures the search executor.
type ExecutorConfig struct {
	MaxResultsPerDB       int         `yaml:"max_results_per_db" validate:"gt=0"`
	Concurrency           int         `yaml:"concurrency" validate:"gt=0"`
	PerCallTimeoutSeconds int         `yaml:"per_call_timeout_seconds" validate:"gt=0"`
	OverallTimeoutSeconds int         `yaml:"overall_timeout_seconds" validate:"gt=0"`
	Retry                 RetryConfig `yaml:"retry"`
}

// RetryConfig bounds the per-call retry loop inside each provider.
type RetryConfig struct {
	Attempts    int     `yaml:"attempts" validate:"gte=1,lte=10"`
	BaseMs      int     `yaml:"base_ms" validate:"gt=0"`
	JitterRatio float64 `yaml:"jitter_ratio" validate:"gte=0,lte=1"`
}

// ProviderConfig holds per-provider settings keyed by provider name.
type ProviderConfig struct {
	Rate RateConfig `yaml:"rate"`
}

// RateConfig is a token bucket: capacity tokens, refilled at
// refill_per_second.
type RateConfig struct {
	Capacity        int     `yaml:"capacity" validate:"gt=0"`
	RefillPerSecond float64 `yaml:"refill_per_second" validate:"gt=0"`
}

// DedupConfig configures automatic deduplication after search execution.
type DedupConfig struct {
	Enabled bool `yaml:"enabled"`
}

// CacheConfig configures the sqlite search-response cache.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path"`
	TTLHours int    `yaml:"ttl_hours" validate:"gte=0"`
}

// DefaultConfig returns the default configuration. Rate defaults follow the
// published politeness guidance of each service: arXiv asks for one request
// every three seconds, Semantic Scholar allows roughly one per second
// without a key, OpenAlex and Crossref tolerate higher rates in their
// polite pools.
func DefaultConfig() *Config {
	return &Config{
		BaseDir: "slr_projects",

		LLM: LLMConfig{
			Provider:          "deterministic",
			Model:             "",
			TimeoutSeconds:    120,
			MaxCritiqueRounds: 2,
		},

		Executor: ExecutorConfig{
			MaxResultsPerDB:       100,
			Concurrency:           4,
			PerCallTimeoutSeconds: 60,
			OverallTimeoutSeconds: 300,
			Retry: RetryConfig{
				Attempts:    3,
				BaseMs:      500,
				JitterRatio: 0.2,
			},
		},

		Provider: map[string]ProviderConfig{
			"openalex":        {Rate: RateConfig{Capacity: 10, RefillPerSecond: 10}},
			"arxiv":           {Rate: RateConfig{Capacity: 1, RefillPerSecond: 0.34}},
			"crossref":        {Rate: RateConfig{Capacity: 10, RefillPerSecond: 5}},
			"semanticscholar": {Rate: RateConfig{Capacity: 1, RefillPerSecond: 1}},
		},

		Dedup: DedupConfig{Enabled: true},

		Cache: CacheConfig{
			Enabled:  false,
			TTLHours: 24,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides apply last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides. SLRFORGE_*
// variables win; the provider-specific key variable fills llm.api_key only
// when it is still empty for the active provider.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("SLRFORGE_BASE_DIR"); dir != "" {
		c.BaseDir = dir
	}
	if p := os.Getenv("SLRFORGE_LLM_PROVIDER"); p != "" {
		c.LLM.Provider = p
	}
	if key := os.Getenv("SLRFORGE_LLM_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("SLRFORGE_LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}

	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "openai":
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			c.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		case "anthropic":
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DrafterProviders lists the providers that call a real LLM and therefore
// need an API key.
var DrafterProviders = []string{"openai", "gemini", "anthropic"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	for _, p := range DrafterProviders {
		if c.LLM.Provider == p && c.LLM.APIKey == "" {
			return fmt.Errorf("llm.provider %q requires llm.api_key (or the provider's key environment variable)", p)
		}
	}

	for name, pc := range c.Provider {
		if pc.Rate.Capacity <= 0 || pc.Rate.RefillPerSecond <= 0 {
			return fmt.Errorf("provider.%s.rate requires positive capacity and refill_per_second", name)
		}
	}

	return nil
}

// LLMTimeout returns the drafter call timeout.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// PerCallTimeout returns the per-provider-call deadline.
func (c *Config) PerCallTimeout() time.Duration {
	return time.Duration(c.Executor.PerCallTimeoutSeconds) * time.Second
}

// OverallTimeout returns the whole-execution deadline.
func (c *Config) OverallTimeout() time.Duration {
	return time.Duration(c.Executor.OverallTimeoutSeconds) * time.Second
}

// RetryBase returns the initial backoff interval.
func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.Executor.Retry.BaseMs) * time.Millisecond
}

// CacheTTL returns the cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// CachePath returns the sqlite cache location, defaulting into the storage
// root when unset.
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(c.BaseDir, "search_cache.db")
}

// RateFor returns the token-bucket settings for a provider, falling back to
// a conservative one-per-second bucket for unknown names.
func (c *Config) RateFor(name string) RateConfig {
	if pc, ok := c.Provider[name]; ok && pc.Rate.Capacity > 0 {
		return pc.Rate
	}
	return RateConfig{Capacity: 1, RefillPerSecond: 1}
}

// DefaultConfigPath returns the config file location: slrforge.yaml in the
// working directory.
func DefaultConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "slrforge.yaml"
	}
	return filepath.Join(cwd, "slrforge.yaml")
}
