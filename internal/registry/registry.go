package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mono-of-pg/llm-smart-router/internal/llm"
	"github.com/mono-of-pg/llm-smart-router/internal/logging"
)

// Registry maintains the current snapshot of routable models. Reads are
// lock-free: Current returns whatever snapshot is published at that
// instant, and every consumer works against that one value for the whole
// decision. Writes (refresh, reload) serialize on a mutex and publish the
// new snapshot in a single atomic store.
type Registry struct {
	provider llm.Provider
	log      *logging.Logger

	snapshot atomic.Pointer[Snapshot]

	// refreshMu serializes snapshot rebuilds. Concurrent refresh calls
	// are safe; they just take turns.
	refreshMu sync.Mutex

	// Guarded by stateMu: options and health bookkeeping.
	stateMu     sync.RWMutex
	opts        BuildOptions
	degraded    bool
	lastErr     error
	lastRefresh time.Time
}

// Health describes the registry's current condition for status surfaces.
type Health struct {
	// Degraded is true when the last discovery attempt failed and the
	// registry is serving a stale snapshot.
	Degraded bool `json:"degraded"`

	// Models counts eligible models in the current snapshot.
	Models int `json:"models"`

	// LastRefresh is when discovery last succeeded.
	LastRefresh time.Time `json:"last_refresh,omitempty"`

	// SnapshotBuiltAt is when the serving snapshot was constructed.
	SnapshotBuiltAt time.Time `json:"snapshot_built_at,omitempty"`

	// LastError is the most recent discovery failure, empty when healthy.
	LastError string `json:"last_error,omitempty"`
}

// New creates a registry backed by the given discovery provider. The
// registry starts with an empty snapshot; call Refresh to populate it.
func New(provider llm.Provider, opts BuildOptions) *Registry {
	r := &Registry{
		provider: provider,
		log:      logging.Global().WithComponent("registry"),
		opts:     opts,
	}
	r.snapshot.Store(BuildSnapshot(nil, opts))
	return r
}

// Current returns the published snapshot. Never nil.
func (r *Registry) Current() *Snapshot {
	return r.snapshot.Load()
}

// Refresh fetches the model list from the backend and publishes a fresh
// snapshot. On discovery failure the previous snapshot stays published,
// the registry flips to degraded, and the error wraps
// ErrDiscoveryUnavailable. Safe to call concurrently and from timers.
func (r *Registry) Refresh(ctx context.Context) error {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	models, err := r.provider.ListModels(ctx)
	if err != nil {
		r.stateMu.Lock()
		r.degraded = true
		r.lastErr = err
		r.stateMu.Unlock()

		r.log.Warn("discovery failed, keeping last snapshot (%d models): %v",
			r.Current().Len(), err)
		return fmt.Errorf("%w: %v", ErrDiscoveryUnavailable, err)
	}

	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}

	r.stateMu.Lock()
	opts := r.opts
	r.stateMu.Unlock()

	snap := BuildSnapshot(ids, opts)
	r.snapshot.Store(snap)

	r.stateMu.Lock()
	r.degraded = false
	r.lastErr = nil
	r.lastRefresh = time.Now()
	r.stateMu.Unlock()

	r.log.Info("snapshot rebuilt: %d discovered, %d eligible", len(ids), snap.Len())
	return nil
}

// Reload swaps the build options (thresholds, filter, overrides) and
// rebuilds the snapshot from fresh discovery. Non-monotonic thresholds
// reject the whole reload, leaving options and snapshot untouched. If
// discovery fails, the old snapshot, carrying its old thresholds, keeps
// serving: options take effect on the next successful refresh, so
// consumers never observe a half-applied configuration.
func (r *Registry) Reload(ctx context.Context, opts BuildOptions) error {
	if err := opts.Thresholds.Validate(); err != nil {
		return fmt.Errorf("rejecting reload: %w", err)
	}

	r.stateMu.Lock()
	r.opts = opts
	r.stateMu.Unlock()

	return r.Refresh(ctx)
}

// Options returns the build options used for the next refresh.
func (r *Registry) Options() BuildOptions {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.opts
}

// Health reports the registry's current condition.
func (r *Registry) Health() Health {
	snap := r.Current()

	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	h := Health{
		Degraded:        r.degraded,
		Models:          snap.Len(),
		LastRefresh:     r.lastRefresh,
		SnapshotBuiltAt: snap.BuiltAt(),
	}
	if r.lastErr != nil {
		h.LastError = r.lastErr.Error()
	}
	return h
}
