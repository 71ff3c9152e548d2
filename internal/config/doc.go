// Package config provides configuration management for smartrouter.
//
// # Overview
//
// The config package uses Viper to load configuration from YAML files and
// environment variables. It provides a type-safe configuration structure with
// validation, default values, and automatic file creation, plus conversion
// helpers that translate config sections into the option types of the llm,
// registry, and router packages.
//
// # Configuration File
//
// The configuration is stored at ~/.smartrouter/config.yaml and is
// automatically created with sensible defaults on first use. The file
// structure mirrors the Go structs defined in this package.
//
// # Environment Variables
//
// All configuration values can be overridden using environment variables
// with the SMARTROUTER_ prefix. Nested fields are separated by underscores.
//
// Examples:
//   - SMARTROUTER_BACKEND_ENDPOINT=http://gpu-box:11434
//   - SMARTROUTER_ROUTING_CLASSIFIER_MODEL=llama3.2:1b
//   - SMARTROUTER_LOGGING_LEVEL=debug
//
// # Usage Example
//
//	package main
//
//	import (
//	    "log"
//	    "github.com/mono-of-pg/llm-smart-router/internal/config"
//	)
//
//	func main() {
//	    // Load configuration
//	    cfg, err := config.Load()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    // Ensure all directories exist
//	    if err := cfg.EnsureDirectories(); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    // Validate configuration
//	    if err := cfg.Validate(); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    // Wire into the routing stack
//	    provider := llm.NewOllamaProvider(cfg.ToProviderConfig())
//	    reg := registry.New(provider, cfg.ToBuildOptions())
//	    rt := router.New(reg, provider, cfg.ToRouterOptions()...)
//	    _ = rt
//	}
//
// # Configuration Sections
//
//   - Backend: upstream LLM server connection (endpoint, API key, timeouts)
//   - Routing: uncertainty band, classifier pin and timeout, extra keywords
//   - Registry: tier thresholds, model filter, tier overrides, refresh cadence
//   - Journal: persistent decision history (SQLite path)
//   - Logging: log level and output file configuration
//
// # Security Best Practices
//
// API keys should be stored in environment variables rather than in the
// config file to prevent accidental exposure:
//
//	export SMARTROUTER_BACKEND_API_KEY=sk-...
//
// # Path Expansion
//
// The package automatically expands ~ to the user's home directory in
// all path configurations, making config files portable across systems.
//
// # Validation
//
// The Validate() method checks configuration for common errors:
//   - Band bounds within [0, 1] and correctly ordered
//   - Tier thresholds positive and ascending
//   - Valid enum values (filter mode, tier override, log level)
//   - Required field presence
//
// # Thread Safety
//
// Config instances are not thread-safe. Load once at startup and pass the
// resulting values into the long-lived components, which manage their own
// synchronization.
package config
