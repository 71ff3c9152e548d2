// Package journal persists routing decisions to SQLite for history views
// and threshold tuning. It uses modernc.org/sqlite for pure-Go, CGO-free
// database access.
//
// Journaling is best-effort: callers are expected to log Record errors and
// keep routing. The store never sits on the request path's critical section.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/mono-of-pg/llm-smart-router/internal/router"
)

//go:embed schema.sql
var schemaSQL string

// ═══════════════════════════════════════════════════════════════════════════════
// TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// Entry is a journaled routing decision as read back from the store.
type Entry struct {
	ID          string    `json:"id"`
	Model       string    `json:"model"`
	Tier        string    `json:"tier"`
	Path        string    `json:"path"`
	Score       *float64  `json:"score"`
	Confidence  string    `json:"confidence,omitempty"`
	Reasons     []string  `json:"reasons"`
	PreferCoder bool      `json:"prefer_coder"`
	Degraded    bool      `json:"degraded"`
	DurationMs  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// PathStats aggregates the decisions that went through one routing path.
type PathStats struct {
	Total      int     `json:"total"`
	AvgScore   float64 `json:"avg_score"`
	CoderCount int     `json:"coder_count"`
}

// ModelUsage ranks a model by how often routing selected it.
type ModelUsage struct {
	Rank          int     `json:"rank"`
	Model         string  `json:"model"`
	Count         int     `json:"count"`
	AvgScore      float64 `json:"avg_score"`
	AvgDurationMs int     `json:"avg_duration_ms"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// STORE
// ═══════════════════════════════════════════════════════════════════════════════

// Store provides access to the decision journal database.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger replaces the store's structured event logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) {
		s.log = log.With().Str("component", "journal").Logger()
	}
}

// Open opens (or creates) the journal database at dbPath and initializes
// the schema. The path must point at a LOCAL directory; network paths are
// rejected to prevent SQLite corruption.
func Open(dbPath string, opts ...Option) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	if err := validateLocalPath(dir); err != nil {
		return nil, fmt.Errorf("validate journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{
		db:  db,
		log: zerolog.New(os.Stderr).With().Timestamp().Str("component", "journal").Logger(),
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.initPragmas(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize pragmas: %w", err)
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migration: %w", err)
	}

	store.log.Debug().Str("path", dbPath).Msg("journal opened")
	return store, nil
}

// initPragmas configures SQLite for safe concurrent reads.
func (s *Store) initPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for concurrent reads
		"PRAGMA synchronous = NORMAL", // Balance safety and performance
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000", // Wait 5 seconds if locked
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// migrate applies the embedded schema. Idempotent - safe to call on every
// open.
func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}

	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// RECORDING
// ═══════════════════════════════════════════════════════════════════════════════

// Record stores one routing decision. degraded marks decisions made while
// the registry was serving a stale snapshot.
func (s *Store) Record(ctx context.Context, d *router.Decision, degraded bool) error {
	if d == nil {
		return fmt.Errorf("record decision: decision is nil")
	}

	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}

	decidedAt := d.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now()
	}
	// Stored in UTC so the day-window queries compare correctly.
	decidedAt = decidedAt.UTC()

	reasons, err := json.Marshal(d.Reasons)
	if err != nil {
		return fmt.Errorf("encode reasons: %w", err)
	}

	var score sql.NullFloat64
	if d.Score != nil {
		score = sql.NullFloat64{Float64: *d.Score, Valid: true}
	}

	query := `
		INSERT INTO decisions (
			id, model, tier, path, score, confidence, reasons,
			prefer_coder, degraded, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		id,
		d.SelectedModel,
		string(d.Tier),
		string(d.Path),
		score,
		nullString(string(d.Confidence)),
		string(reasons),
		boolToInt(d.PreferCoder),
		boolToInt(degraded),
		d.Duration.Milliseconds(),
		decidedAt,
	)
	if err != nil {
		s.log.Error().Err(err).Str("id", id).Msg("record failed")
		return fmt.Errorf("record decision: %w", err)
	}

	s.log.Debug().
		Str("id", id).
		Str("model", d.SelectedModel).
		Str("tier", string(d.Tier)).
		Str("path", string(d.Path)).
		Msg("decision recorded")

	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ═══════════════════════════════════════════════════════════════════════════════

// Recent returns the most recent decisions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, model, tier, path, score, confidence, reasons,
		       prefer_coder, degraded, duration_ms, created_at
		FROM decisions
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent decisions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var score sql.NullFloat64
		var confidence sql.NullString
		var reasons string
		var preferCoder, degraded int

		err := rows.Scan(
			&e.ID, &e.Model, &e.Tier, &e.Path,
			&score, &confidence, &reasons,
			&preferCoder, &degraded, &e.DurationMs, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}

		if score.Valid {
			v := score.Float64
			e.Score = &v
		}
		e.Confidence = confidence.String
		e.PreferCoder = preferCoder == 1
		e.Degraded = degraded == 1

		if err := json.Unmarshal([]byte(reasons), &e.Reasons); err != nil {
			return nil, fmt.Errorf("decode reasons for %s: %w", e.ID, err)
		}
		if e.Reasons == nil {
			e.Reasons = []string{}
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}

	return entries, nil
}

// PathCounts returns per-path aggregates over the last days of decisions.
func (s *Store) PathCounts(ctx context.Context, days int) (map[string]PathStats, error) {
	if days <= 0 {
		days = 30
	}

	query := `
		SELECT path,
		       COUNT(*) as total,
		       AVG(score) as avg_score,
		       SUM(prefer_coder) as coder_count
		FROM decisions
		WHERE created_at >= DATE('now', '-' || ? || ' days')
		GROUP BY path
	`

	rows, err := s.db.QueryContext(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("query path counts: %w", err)
	}
	defer rows.Close()

	result := make(map[string]PathStats)
	for rows.Next() {
		var path string
		var stats PathStats
		var avgScore sql.NullFloat64

		if err := rows.Scan(&path, &stats.Total, &avgScore, &stats.CoderCount); err != nil {
			return nil, fmt.Errorf("scan path stats: %w", err)
		}

		if avgScore.Valid {
			stats.AvgScore = avgScore.Float64
		}

		result[path] = stats
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate path stats: %w", err)
	}

	return result, nil
}

// TierCounts returns how many decisions landed in each tier over the last
// days of decisions.
func (s *Store) TierCounts(ctx context.Context, days int) (map[string]int, error) {
	if days <= 0 {
		days = 30
	}

	query := `
		SELECT tier, COUNT(*) as total
		FROM decisions
		WHERE created_at >= DATE('now', '-' || ? || ' days')
		GROUP BY tier
	`

	rows, err := s.db.QueryContext(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("query tier counts: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var tier string
		var total int

		if err := rows.Scan(&tier, &total); err != nil {
			return nil, fmt.Errorf("scan tier count: %w", err)
		}

		result[tier] = total
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tier counts: %w", err)
	}

	return result, nil
}

// TopModels returns the most frequently selected models, busiest first.
func (s *Store) TopModels(ctx context.Context, limit int) ([]ModelUsage, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT model,
		       COUNT(*) as total,
		       AVG(score) as avg_score,
		       AVG(duration_ms) as avg_duration_ms
		FROM decisions
		GROUP BY model
		ORDER BY total DESC, model ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query top models: %w", err)
	}
	defer rows.Close()

	var rankings []ModelUsage
	rank := 1
	for rows.Next() {
		var m ModelUsage
		var avgScore, avgDuration sql.NullFloat64

		if err := rows.Scan(&m.Model, &m.Count, &avgScore, &avgDuration); err != nil {
			return nil, fmt.Errorf("scan model usage: %w", err)
		}

		m.Rank = rank
		if avgScore.Valid {
			m.AvgScore = avgScore.Float64
		}
		if avgDuration.Valid {
			m.AvgDurationMs = int(avgDuration.Float64)
		}
		rank++

		rankings = append(rankings, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate model usage: %w", err)
	}

	return rankings, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ═══════════════════════════════════════════════════════════════════════════════

// Health checks if the database connection is alive and responsive.
func (s *Store) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result != 1 {
		return fmt.Errorf("health check returned unexpected value: %d", result)
	}

	return nil
}

// Close flushes the WAL and closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close journal database: %w", err)
	}

	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

// validateLocalPath ensures the path is on a local filesystem.
// Network paths (SMB, NFS, etc.) can cause SQLite corruption.
func validateLocalPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}

	networkPrefixes := []string{
		"//",    // UNC paths (Windows)
		"\\\\",  // UNC paths (Windows alternative)
		"/mnt/", // Common Linux NFS/CIFS mount point
		"/net/", // macOS network mounts
	}

	for _, prefix := range networkPrefixes {
		if strings.HasPrefix(absPath, prefix) {
			return fmt.Errorf("network path detected: %s (SQLite requires local filesystem)", absPath)
		}
	}

	return nil
}

// nullString converts an empty string to sql.NullString for proper NULL handling.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
