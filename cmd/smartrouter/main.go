// Package main is the entry point for the smartrouter CLI application.
// smartrouter decides which local model should serve each chat-completion
// request: cheap models for simple prompts, expensive models for hard ones.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mono-of-pg/llm-smart-router/internal/capability"
	"github.com/mono-of-pg/llm-smart-router/internal/config"
	"github.com/mono-of-pg/llm-smart-router/internal/journal"
	"github.com/mono-of-pg/llm-smart-router/internal/llm"
	"github.com/mono-of-pg/llm-smart-router/internal/logging"
	"github.com/mono-of-pg/llm-smart-router/internal/registry"
	"github.com/mono-of-pg/llm-smart-router/internal/router"
)

var (
	version  = "0.1.0"
	cfgPath  string
	logLevel string
	debug    bool
	log      *logging.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "smartrouter",
		Short: "smartrouter - Complexity-aware routing for local LLMs",
		Long: `smartrouter picks the right local model for each chat request:
  • Multi-signal heuristic scoring (length, code, reasoning, tools, images)
  • Tiered model registry built from live backend discovery
  • Tiny-model classifier for prompts the heuristics can't call
  • Decision journal for offline threshold tuning

Route a request:   smartrouter route request.json
Inspect models:    smartrouter models
Configuration:     smartrouter config show`,
		PersistentPreRunE: initLogging,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.smartrouter/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "shorthand for --log-level debug")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("smartrouter v%s\n", version)
		},
	})

	// Route command
	rootCmd.AddCommand(routeCmd())

	// Models command
	rootCmd.AddCommand(modelsCmd())

	// Watch command
	rootCmd.AddCommand(watchCmd())

	// History command
	rootCmd.AddCommand(historyCmd())

	// Config command group
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOGGING INITIALIZATION
// ═══════════════════════════════════════════════════════════════════════════════

func initLogging(cmd *cobra.Command, args []string) error {
	level := "info"
	logFile := ""

	// Pull logging settings from the config file when one exists. A missing
	// file is fine here; commands that need configuration create it on use.
	if path := getConfigPath(); fileExists(path) {
		if cfg, err := config.LoadFromPath(path); err == nil {
			level = cfg.Logging.Level
			logFile = cfg.Logging.File
		}
	}

	// CLI flags override the file.
	if logLevel != "" {
		level = logLevel
	}
	if debug {
		level = "debug"
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(level)

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to create log directory: %v\n", err)
		} else {
			logCfg.FilePath = logFile
		}
	}

	log = logging.New(logCfg)
	logging.SetGlobal(log)

	// zerolog backs the journal package; keep its level in step.
	zerolog.SetGlobalLevel(zerologLevel(level))

	log.Debug("smartrouter v%s starting (config: %s)", version, getConfigPath())

	return nil
}

func zerologLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// journalLogger builds the zerolog logger handed to the journal. Journal
// events go to the session log file so the terminal stays clean; without
// a log file they fall back to stderr.
func journalLogger(cfg *config.Config) zerolog.Logger {
	if cfg.Logging.File != "" {
		if f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			w := zerolog.ConsoleWriter{Out: f, NoColor: true}
			return zerolog.New(w).With().Timestamp().Logger()
		}
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// ═══════════════════════════════════════════════════════════════════════════════
// ROUTE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func routeCmd() *cobra.Command {
	var jsonOut bool
	var promptText string

	cmd := &cobra.Command{
		Use:   "route [request.json]",
		Short: "Route a chat-completion request to a model tier",
		Long: `Route a chat-completion request and print the decision.

The request uses the OpenAI chat-completion shape. Read it from a file
argument, from stdin, or route a bare prompt:

  smartrouter route request.json
  cat request.json | smartrouter route
  smartrouter route --prompt "refactor this function to use channels"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(args, promptText)
			if err != nil {
				return err
			}

			stack, cleanup, err := initializeStack()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(context.Background(),
				time.Duration(stack.cfg.Backend.TimeoutSec)*time.Second)
			defer cancel()

			if err := stack.registry.Refresh(ctx); err != nil {
				log.Warn("model discovery failed: %v", err)
			}

			health := stack.registry.Health()
			if health.Degraded {
				log.Warn("registry degraded, routing over a stale snapshot: %s", health.LastError)
			}

			decision, err := stack.router.Route(ctx, req)
			if err != nil {
				return fmt.Errorf("routing failed: %w", err)
			}

			// Journaling is best-effort: a journal failure never fails the route.
			if stack.journal != nil {
				if err := stack.journal.Record(ctx, decision, health.Degraded); err != nil {
					log.Warn("failed to journal decision: %v", err)
				}
			}

			log.Debug("Backend usage: %s", stack.provider.Summary())

			if jsonOut {
				return printJSON(decision)
			}

			printDecision(decision)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the decision as JSON")
	cmd.Flags().StringVarP(&promptText, "prompt", "p", "", "Route a single user prompt instead of a JSON request")

	return cmd
}

// readRequest builds the routing request from --prompt, a file argument,
// or stdin, in that order. "-" as the argument also means stdin.
func readRequest(args []string, prompt string) (*router.Request, error) {
	if prompt != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("pass either a request file or --prompt, not both")
		}
		return &router.Request{
			Messages: []router.Message{{Role: "user", Content: router.TextContent(prompt)}},
		}, nil
	}

	var data []byte
	var err error
	if len(args) > 0 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read request file: %w", err)
		}
	} else {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read request from stdin: %w", err)
		}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty request: pass a JSON file, pipe JSON to stdin, or use --prompt")
	}

	var req router.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request JSON: %w", err)
	}

	return &req, nil
}

func printDecision(d *router.Decision) {
	fmt.Println("Routing Decision:")
	fmt.Println("─────────────────")
	fmt.Printf("Model:      %s\n", d.SelectedModel)
	fmt.Printf("Tier:       %s\n", d.Tier)
	fmt.Printf("Path:       %s\n", d.Path)
	if d.Score != nil {
		fmt.Printf("Score:      %.3f\n", *d.Score)
	}
	if d.Confidence != "" {
		fmt.Printf("Confidence: %s\n", d.Confidence)
	}
	if d.PreferCoder {
		fmt.Println("Coder:      preferred")
	}
	fmt.Printf("Duration:   %s\n", d.Duration.Round(time.Microsecond))

	if len(d.Reasons) > 0 {
		fmt.Println("Reasons:")
		for _, r := range d.Reasons {
			fmt.Printf("  • %s\n", r)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// MODELS COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func modelsCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Discover models and show the tier table",
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, cleanup, err := initializeStack()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := stack.registry.Refresh(ctx); err != nil {
				return fmt.Errorf("model discovery failed: %w", err)
			}

			snap := stack.registry.Current()
			health := stack.registry.Health()

			if jsonOut {
				pick, _ := classifierPick(snap, stack.cfg.Routing.ClassifierModel)
				return printJSON(struct {
					Health     registry.Health  `json:"health"`
					Classifier string           `json:"classifier,omitempty"`
					Models     []registry.Entry `json:"models"`
				}{health, pick.ID, snap.Entries()})
			}

			printSnapshot(snap, health, stack.cfg.Routing.ClassifierModel)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the snapshot as JSON")

	return cmd
}

// classifierPick resolves the model the classifier would use right now:
// the pinned model when it is registered, otherwise the smallest
// registered model.
func classifierPick(snap *registry.Snapshot, pinned string) (registry.Entry, error) {
	if pinned != "" {
		if entry, ok := snap.Find(pinned); ok {
			return entry, nil
		}
	}
	return snap.ClassifierEntry()
}

func printSnapshot(snap *registry.Snapshot, health registry.Health, pinnedClassifier string) {
	fmt.Printf("Registered Models (%d):\n", snap.Len())
	fmt.Println("───────────────────────")

	if snap.Empty() {
		fmt.Println("No eligible models. Is the backend running?")
		return
	}

	for _, tier := range capability.AllTiers() {
		entries := snap.TierEntries(tier)
		fmt.Printf("\n%s:\n", strings.ToUpper(tier.String()))
		if len(entries) == 0 {
			fmt.Println("  (empty)")
			continue
		}
		for _, e := range entries {
			marks := ""
			if e.Capability.IsCoder {
				marks += " [coder]"
			}
			if e.Capability.Degraded {
				marks += " [default params]"
			}
			fmt.Printf("  %-42s %7.1fB%s\n", e.ID, e.Capability.TotalParams, marks)
		}
	}

	if pick, err := classifierPick(snap, pinnedClassifier); err == nil {
		fmt.Printf("\nClassifier: %s\n", pick.ID)
	}

	if health.Degraded {
		fmt.Printf("\n⚠ Registry degraded: %s\n", health.LastError)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// WATCH COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func watchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the backend and keep the model registry fresh",
		Long: `Run the periodic registry refresher in the foreground. Snapshot
changes and health transitions are printed until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, cleanup, err := initializeStack()
			if err != nil {
				return err
			}
			defer cleanup()

			if interval <= 0 {
				interval = stack.cfg.RefreshInterval()
			}

			lastFingerprint := snapshotFingerprint(stack.registry.Current())
			lastDegraded := stack.registry.Health().Degraded

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			refresher := registry.NewRefresher(stack.registry, interval)
			refresher.Start(ctx)
			defer refresher.Stop()

			fmt.Printf("Watching %s (interval %s)\n", stack.cfg.Backend.Endpoint, interval)
			fmt.Println("Press Ctrl+C to stop...")

			// Wait for interrupt signal
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-sigChan:
					fmt.Println("\nStopped.")
					return nil
				case <-ticker.C:
					snap := stack.registry.Current()
					health := stack.registry.Health()

					if fp := snapshotFingerprint(snap); fp != lastFingerprint {
						lastFingerprint = fp
						fmt.Printf("[%s] snapshot: %s\n",
							time.Now().Format("15:04:05"), snapshotSummary(snap))
					}

					switch {
					case health.Degraded && !lastDegraded:
						fmt.Printf("[%s] ⚠ degraded: %s\n",
							time.Now().Format("15:04:05"), health.LastError)
					case !health.Degraded && lastDegraded:
						fmt.Printf("[%s] recovered: %d models\n",
							time.Now().Format("15:04:05"), health.Models)
					}
					lastDegraded = health.Degraded
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Refresh interval (default from config)")

	return cmd
}

// snapshotFingerprint identifies a snapshot's content so watch can tell
// real changes from mere rebuilds.
func snapshotFingerprint(snap *registry.Snapshot) string {
	entries := snap.Entries()
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.ID+":"+string(e.Tier))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func snapshotSummary(snap *registry.Snapshot) string {
	parts := make([]string, 0, 3)
	for _, tier := range capability.AllTiers() {
		parts = append(parts, fmt.Sprintf("%s %d", tier, len(snap.TierEntries(tier))))
	}
	return fmt.Sprintf("%d models (%s)", snap.Len(), strings.Join(parts, ", "))
}

// ═══════════════════════════════════════════════════════════════════════════════
// HISTORY COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func historyCmd() *cobra.Command {
	var limit int
	var days int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent routing decisions from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if !cfg.Journal.Enabled {
				return fmt.Errorf("journal is disabled; enable it in %s", getConfigPath())
			}

			store, err := journal.Open(cfg.Journal.DBPath, journal.WithLogger(journalLogger(cfg)))
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			entries, err := store.Recent(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to read journal: %w", err)
			}

			pathCounts, err := store.PathCounts(ctx, days)
			if err != nil {
				return fmt.Errorf("failed to aggregate journal paths: %w", err)
			}

			tierCounts, err := store.TierCounts(ctx, days)
			if err != nil {
				return fmt.Errorf("failed to aggregate journal tiers: %w", err)
			}

			topModels, err := store.TopModels(ctx, 5)
			if err != nil {
				return fmt.Errorf("failed to rank journal models: %w", err)
			}

			if jsonOut {
				return printJSON(struct {
					Entries []journal.Entry              `json:"entries"`
					Paths   map[string]journal.PathStats `json:"paths"`
					Tiers   map[string]int               `json:"tiers"`
					Models  []journal.ModelUsage         `json:"top_models"`
				}{entries, pathCounts, tierCounts, topModels})
			}

			printHistory(entries, pathCounts, tierCounts, topModels, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of recent decisions to show")
	cmd.Flags().IntVar(&days, "days", 30, "Aggregation window in days")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print history as JSON")

	return cmd
}

func printHistory(entries []journal.Entry, paths map[string]journal.PathStats, tiers map[string]int, models []journal.ModelUsage, days int) {
	if len(entries) == 0 {
		fmt.Println("No routing decisions recorded yet.")
		return
	}

	fmt.Printf("Recent Decisions (%d):\n", len(entries))
	fmt.Println("──────────────────────")
	for _, e := range entries {
		score := "  -  "
		if e.Score != nil {
			score = fmt.Sprintf("%.3f", *e.Score)
		}
		marks := ""
		if e.PreferCoder {
			marks += " [coder]"
		}
		if e.Degraded {
			marks += " [degraded]"
		}
		fmt.Printf("%s  %-10s %s  %s%s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Path, score, e.Model, marks)
	}

	if len(paths) > 0 {
		fmt.Printf("\nPath Usage (last %d days):\n", days)
		fmt.Println("──────────────────────────")
		for _, path := range []router.RoutingPath{router.PathExplicit, router.PathHeuristic, router.PathClassifier} {
			stats, ok := paths[string(path)]
			if !ok {
				continue
			}
			fmt.Printf("%-11s %5d decisions, avg score %.3f, %d coder-preferred\n",
				path, stats.Total, stats.AvgScore, stats.CoderCount)
		}
	}

	if len(tiers) > 0 {
		fmt.Printf("\nTier Usage (last %d days):\n", days)
		fmt.Println("──────────────────────────")
		for _, tier := range capability.AllTiers() {
			count, ok := tiers[tier.String()]
			if !ok {
				continue
			}
			fmt.Printf("%-11s %5d decisions\n", tier, count)
		}
	}

	if len(models) > 0 {
		fmt.Println("\nTop Models:")
		fmt.Println("───────────")
		for _, m := range models {
			fmt.Printf("%d. %-42s %5d decisions, avg score %.3f\n",
				m.Rank, m.Model, m.Count, m.AvgScore)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	// Init command
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := getConfigPath()

			if fileExists(path) {
				fmt.Printf("Config already exists: %s\n", path)
				return nil
			}

			cfg, err := config.LoadFromPath(path)
			if err != nil {
				return fmt.Errorf("failed to create config: %w", err)
			}

			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			fmt.Printf("✅ Created %s\n", path)
			return nil
		},
	})

	// Show command
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			classifier := cfg.Routing.ClassifierModel
			if classifier == "" {
				classifier = "(smallest registered)"
			}
			journalState := "disabled"
			if cfg.Journal.Enabled {
				journalState = cfg.Journal.DBPath
			}

			fmt.Println("Smartrouter Configuration:")
			fmt.Println("──────────────────────────")
			fmt.Printf("Backend Endpoint: %s\n", cfg.Backend.Endpoint)
			fmt.Printf("Backend Timeout:  %ds\n", cfg.Backend.TimeoutSec)
			fmt.Printf("Uncertain Band:   [%.2f, %.2f]\n", cfg.Routing.UncertainLow, cfg.Routing.UncertainHigh)
			fmt.Printf("Classifier:       %s\n", classifier)
			fmt.Printf("Tier Thresholds:  small ≤ %gB, medium ≤ %gB, large above\n",
				cfg.Registry.SmallMaxB, cfg.Registry.MediumMaxB)
			if cfg.Registry.FilterMode != "" && cfg.Registry.FilterMode != "off" {
				fmt.Printf("Model Filter:     %s (%d models)\n",
					cfg.Registry.FilterMode, len(cfg.Registry.FilterModels))
			}
			fmt.Printf("Refresh Interval: %s\n", cfg.RefreshInterval())
			fmt.Printf("Journal:          %s\n", journalState)
			fmt.Printf("Log Level:        %s\n", cfg.Logging.Level)
			return nil
		},
	})

	// Validate command
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			fmt.Printf("✅ %s is valid\n", getConfigPath())
			return nil
		},
	})

	// Path command
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(getConfigPath())
		},
	})

	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMPONENT INITIALIZATION
// ═══════════════════════════════════════════════════════════════════════════════

// routingStack bundles the long-lived components a routing command needs.
type routingStack struct {
	cfg      *config.Config
	provider *llm.MetricsProvider
	registry *registry.Registry
	router   *router.Router
	journal  *journal.Store
}

func initializeStack() (*routingStack, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, nil, err
	}

	provider := llm.NewMetricsProvider(llm.NewOllamaProvider(cfg.ToProviderConfig()))
	reg := registry.New(provider, cfg.ToBuildOptions())
	r := router.New(reg, provider, cfg.ToRouterOptions()...)

	stack := &routingStack{
		cfg:      cfg,
		provider: provider,
		registry: reg,
		router:   r,
	}

	if cfg.Journal.Enabled {
		store, err := journal.Open(cfg.Journal.DBPath, journal.WithLogger(journalLogger(cfg)))
		if err != nil {
			// Journaling is best-effort: routing works without it.
			log.Warn("journal unavailable: %v", err)
		} else {
			stack.journal = store
		}
	}

	cleanup := func() {
		if stack.journal != nil {
			if err := stack.journal.Close(); err != nil {
				log.Warn("failed to close journal: %v", err)
			}
		}
	}

	return stack, cleanup, nil
}

func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	if log != nil {
		log.Debug("Loading config from: %s", path)
	}

	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

func getConfigPath() string {
	if cfgPath != "" {
		return cfgPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".smartrouter/config.yaml"
	}
	return filepath.Join(home, ".smartrouter", "config.yaml")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
