// Package config handles loading, saving, and validation of the smartrouter
// configuration using Viper for file and environment variable support.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mono-of-pg/llm-smart-router/internal/capability"
	"github.com/mono-of-pg/llm-smart-router/internal/llm"
	"github.com/mono-of-pg/llm-smart-router/internal/registry"
	"github.com/mono-of-pg/llm-smart-router/internal/router"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION STRUCTURES
// ═══════════════════════════════════════════════════════════════════════════════

// Config is the root configuration structure for smartrouter.
type Config struct {
	// Backend configures the upstream LLM server used for model discovery
	// and classifier calls.
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`

	// Routing configures scoring thresholds and classifier behavior.
	Routing RoutingConfig `mapstructure:"routing" yaml:"routing"`

	// Registry configures tier thresholds, model filtering, and refresh.
	Registry RegistryConfig `mapstructure:"registry" yaml:"registry"`

	// Journal configures persistent decision history.
	Journal JournalConfig `mapstructure:"journal" yaml:"journal"`

	// Logging configures log output.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// BackendConfig holds connection settings for the upstream model server.
type BackendConfig struct {
	// Endpoint is the base URL of the backend (Ollama or OpenAI-compatible).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// APIKey is an optional bearer token for authenticated backends.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`

	// TimeoutSec is the HTTP timeout for backend calls in seconds.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// MaxTokens caps completion length for backend calls made by the router.
	MaxTokens int `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// RoutingConfig holds scoring and classifier settings.
type RoutingConfig struct {
	// UncertainLow is the lower bound of the uncertainty band. Scores at or
	// above this value (up to UncertainHigh) are delegated to the classifier.
	UncertainLow float64 `mapstructure:"uncertain_low" yaml:"uncertain_low"`

	// UncertainHigh is the upper bound of the uncertainty band.
	UncertainHigh float64 `mapstructure:"uncertain_high" yaml:"uncertain_high"`

	// ClassifierModel pins the model used for classification. Empty selects
	// the smallest registered model automatically.
	ClassifierModel string `mapstructure:"classifier_model" yaml:"classifier_model"`

	// ClassifierTimeoutSec bounds a single classifier call in seconds.
	ClassifierTimeoutSec int `mapstructure:"classifier_timeout_sec" yaml:"classifier_timeout_sec"`

	// ComplexKeywords are extra literal keywords that raise the score.
	ComplexKeywords []string `mapstructure:"complex_keywords" yaml:"complex_keywords"`

	// SimpleKeywords are extra literal keywords that lower the score.
	SimpleKeywords []string `mapstructure:"simple_keywords" yaml:"simple_keywords"`
}

// RegistryConfig holds model registry settings.
type RegistryConfig struct {
	// SmallMaxB is the inclusive upper parameter bound (in billions) for the
	// small tier.
	SmallMaxB float64 `mapstructure:"small_max_b" yaml:"small_max_b"`

	// MediumMaxB is the inclusive upper parameter bound (in billions) for the
	// medium tier.
	MediumMaxB float64 `mapstructure:"medium_max_b" yaml:"medium_max_b"`

	// FilterMode selects how FilterModels is interpreted: "off", "allow",
	// or "deny".
	FilterMode string `mapstructure:"filter_mode" yaml:"filter_mode"`

	// FilterModels lists model ids for the filter.
	FilterModels []string `mapstructure:"filter_models" yaml:"filter_models"`

	// TierOverrides maps model ids to forced tiers ("small", "medium",
	// "large"), bypassing parameter-based classification.
	TierOverrides map[string]string `mapstructure:"tier_overrides" yaml:"tier_overrides"`

	// DefaultParamsB is the assumed parameter count (in billions) for models
	// whose id does not encode a size. Zero keeps the built-in default.
	DefaultParamsB float64 `mapstructure:"default_params_b" yaml:"default_params_b"`

	// RefreshIntervalSec is how often the registry re-discovers models when
	// running in watch mode, in seconds.
	RefreshIntervalSec int `mapstructure:"refresh_interval_sec" yaml:"refresh_interval_sec"`
}

// JournalConfig holds decision history settings.
type JournalConfig struct {
	// Enabled turns persistent decision journaling on or off.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// DBPath is the SQLite database file path. Supports ~ expansion.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`

	// File is an optional path for persistent logs. Supports ~ expansion.
	File string `mapstructure:"file" yaml:"file"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// DEFAULTS
// ═══════════════════════════════════════════════════════════════════════════════

// DefaultBackendConfig returns backend defaults for a local Ollama server.
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		Endpoint:   "http://127.0.0.1:11434",
		TimeoutSec: 120,
		MaxTokens:  4096,
	}
}

// DefaultRoutingConfig returns routing defaults.
func DefaultRoutingConfig() RoutingConfig {
	band := router.DefaultBand()
	return RoutingConfig{
		UncertainLow:         band.Low,
		UncertainHigh:        band.High,
		ClassifierTimeoutSec: int(router.DefaultClassifierTimeout / time.Second),
	}
}

// DefaultRegistryConfig returns registry defaults.
func DefaultRegistryConfig() RegistryConfig {
	th := capability.DefaultThresholds()
	return RegistryConfig{
		SmallMaxB:          th.SmallMaxB,
		MediumMaxB:         th.MediumMaxB,
		FilterMode:         "off",
		RefreshIntervalSec: 60,
	}
}

// DefaultJournalConfig returns journal defaults.
func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		Enabled: true,
		DBPath:  "~/.smartrouter/journal.db",
	}
}

// DefaultLoggingConfig returns logging defaults.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level: "info",
		File:  "~/.smartrouter/smartrouter.log",
	}
}

// Default returns a complete configuration with default values.
func Default() *Config {
	return &Config{
		Backend:  DefaultBackendConfig(),
		Routing:  DefaultRoutingConfig(),
		Registry: DefaultRegistryConfig(),
		Journal:  DefaultJournalConfig(),
		Logging:  DefaultLoggingConfig(),
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOADING AND SAVING
// ═══════════════════════════════════════════════════════════════════════════════

// Load reads the configuration from ~/.smartrouter/config.yaml, creating it
// with defaults if missing. Environment variables with the SMARTROUTER_
// prefix override file values.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".smartrouter", "config.yaml")
	return LoadFromPath(configPath)
}

// LoadFromPath reads the configuration from a specific file path, creating
// it with default values if missing.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SMARTROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Journal.DBPath = expandPath(cfg.Journal.DBPath)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero values that have non-zero defaults. Viper leaves
// fields missing from the file at their Go zero value.
func applyDefaults(cfg *Config) {
	if cfg.Backend.Endpoint == "" {
		cfg.Backend.Endpoint = DefaultBackendConfig().Endpoint
	}
	if cfg.Backend.TimeoutSec <= 0 {
		cfg.Backend.TimeoutSec = DefaultBackendConfig().TimeoutSec
	}
	if cfg.Backend.MaxTokens <= 0 {
		cfg.Backend.MaxTokens = DefaultBackendConfig().MaxTokens
	}
	if cfg.Routing.UncertainLow == 0 && cfg.Routing.UncertainHigh == 0 {
		band := router.DefaultBand()
		cfg.Routing.UncertainLow = band.Low
		cfg.Routing.UncertainHigh = band.High
	}
	if cfg.Routing.ClassifierTimeoutSec <= 0 {
		cfg.Routing.ClassifierTimeoutSec = DefaultRoutingConfig().ClassifierTimeoutSec
	}
	if cfg.Registry.SmallMaxB <= 0 {
		cfg.Registry.SmallMaxB = DefaultRegistryConfig().SmallMaxB
	}
	if cfg.Registry.MediumMaxB <= 0 {
		cfg.Registry.MediumMaxB = DefaultRegistryConfig().MediumMaxB
	}
	if cfg.Registry.RefreshIntervalSec <= 0 {
		cfg.Registry.RefreshIntervalSec = DefaultRegistryConfig().RefreshIntervalSec
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingConfig().Level
	}
}

// Save writes the configuration to the default path.
func (c *Config) Save() error {
	return c.SaveToPath(c.GetConfigPath())
}

// SaveToPath writes the configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return writeConfigFile(path, c)
}

// GetDataDir returns the smartrouter data directory (~/.smartrouter).
func (c *Config) GetDataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".smartrouter")
}

// GetConfigPath returns the full path to the config file.
func (c *Config) GetConfigPath() string {
	return filepath.Join(c.GetDataDir(), "config.yaml")
}

// EnsureDirectories creates the directories referenced by the configuration.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.GetDataDir()}
	if c.Journal.DBPath != "" {
		dirs = append(dirs, filepath.Dir(c.Journal.DBPath))
	}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ═══════════════════════════════════════════════════════════════════════════════

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Backend.Endpoint == "" {
		return fmt.Errorf("backend endpoint is required")
	}
	if c.Backend.TimeoutSec <= 0 {
		return fmt.Errorf("backend timeout must be positive, got %d", c.Backend.TimeoutSec)
	}

	band := router.Band{Low: c.Routing.UncertainLow, High: c.Routing.UncertainHigh}
	if err := band.Validate(); err != nil {
		return fmt.Errorf("routing band: %w", err)
	}
	if c.Routing.ClassifierTimeoutSec <= 0 {
		return fmt.Errorf("classifier timeout must be positive, got %d", c.Routing.ClassifierTimeoutSec)
	}

	th := capability.Thresholds{SmallMaxB: c.Registry.SmallMaxB, MediumMaxB: c.Registry.MediumMaxB}
	if err := th.Validate(); err != nil {
		return fmt.Errorf("registry thresholds: %w", err)
	}

	switch c.Registry.FilterMode {
	case "", "off", "allow", "deny":
	default:
		return fmt.Errorf("invalid filter mode: %s (must be off, allow, or deny)", c.Registry.FilterMode)
	}
	if c.Registry.FilterMode == "allow" && len(c.Registry.FilterModels) == 0 {
		return fmt.Errorf("filter mode allow requires at least one model id")
	}

	for id, tier := range c.Registry.TierOverrides {
		if _, ok := capability.ParseTier(tier); !ok {
			return fmt.Errorf("invalid tier override for %s: %s (must be small, medium, or large)", id, tier)
		}
	}
	if c.Registry.DefaultParamsB < 0 {
		return fmt.Errorf("default params must not be negative, got %v", c.Registry.DefaultParamsB)
	}
	if c.Registry.RefreshIntervalSec <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %d", c.Registry.RefreshIntervalSec)
	}

	if c.Journal.Enabled && c.Journal.DBPath == "" {
		return fmt.Errorf("journal enabled but db_path is empty")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// DOMAIN CONVERSIONS
// ═══════════════════════════════════════════════════════════════════════════════

// ToProviderConfig converts the backend section to an llm.ProviderConfig.
func (c *Config) ToProviderConfig() *llm.ProviderConfig {
	pc := llm.DefaultConfig("ollama")
	pc.Endpoint = c.Backend.Endpoint
	pc.APIKey = c.Backend.APIKey
	pc.Timeout = time.Duration(c.Backend.TimeoutSec) * time.Second
	if c.Backend.MaxTokens > 0 {
		pc.MaxTokens = c.Backend.MaxTokens
	}
	return &pc
}

// ToBuildOptions converts the registry section to registry.BuildOptions.
func (c *Config) ToBuildOptions() registry.BuildOptions {
	opts := registry.BuildOptions{
		Thresholds: capability.Thresholds{
			SmallMaxB:  c.Registry.SmallMaxB,
			MediumMaxB: c.Registry.MediumMaxB,
		},
	}

	switch c.Registry.FilterMode {
	case "allow":
		opts.Filter = registry.FilterPolicy{Mode: registry.FilterAllow, Models: c.Registry.FilterModels}
	case "deny":
		opts.Filter = registry.FilterPolicy{Mode: registry.FilterDeny, Models: c.Registry.FilterModels}
	}

	if len(c.Registry.TierOverrides) > 0 {
		opts.TierOverrides = make(map[string]capability.Tier, len(c.Registry.TierOverrides))
		for id, raw := range c.Registry.TierOverrides {
			if tier, ok := capability.ParseTier(raw); ok {
				opts.TierOverrides[id] = tier
			}
		}
	}

	if c.Registry.DefaultParamsB > 0 {
		opts.Extractor = capability.NewExtractor(capability.WithDefaultParams(c.Registry.DefaultParamsB))
	}

	return opts
}

// ToRouterOptions converts the routing section to router options.
func (c *Config) ToRouterOptions() []router.RouterOption {
	opts := []router.RouterOption{
		router.WithBand(c.Routing.UncertainLow, c.Routing.UncertainHigh),
	}

	if c.Routing.ClassifierModel != "" {
		opts = append(opts, router.WithClassifierModel(c.Routing.ClassifierModel))
	}
	if c.Routing.ClassifierTimeoutSec > 0 {
		opts = append(opts, router.WithClassifierCallTimeout(time.Duration(c.Routing.ClassifierTimeoutSec)*time.Second))
	}

	if len(c.Routing.ComplexKeywords) > 0 || len(c.Routing.SimpleKeywords) > 0 {
		scorerOpts := []router.ScorerOption{}
		if len(c.Routing.ComplexKeywords) > 0 {
			scorerOpts = append(scorerOpts, router.WithComplexKeywords(c.Routing.ComplexKeywords...))
		}
		if len(c.Routing.SimpleKeywords) > 0 {
			scorerOpts = append(scorerOpts, router.WithSimpleKeywords(c.Routing.SimpleKeywords...))
		}
		opts = append(opts, router.WithScorer(router.NewScorer(scorerOpts...)))
	}

	return opts
}

// RefreshInterval returns the registry refresh interval as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Registry.RefreshIntervalSec) * time.Second
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

// writeConfigFile marshals the config to YAML and writes it to disk.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
