package registry

import (
	"context"
	"sync"
	"time"

	"github.com/mono-of-pg/llm-smart-router/internal/logging"
)

// DefaultRefreshInterval is how often the background refresher polls the
// backend when no interval is configured.
const DefaultRefreshInterval = 60 * time.Second

// Refresher polls the backend on a fixed interval and rebuilds the
// registry snapshot. Refreshes are idempotent, so an overlapping manual
// Refresh is harmless.
type Refresher struct {
	registry *Registry
	interval time.Duration
	log      *logging.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewRefresher creates a background refresher for the registry.
func NewRefresher(registry *Registry, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{
		registry: registry,
		interval: interval,
		log:      logging.Global().WithComponent("registry"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the polling loop. It performs one refresh immediately so
// the registry is populated before the first tick. Subsequent calls are
// no-ops.
func (f *Refresher) Start(ctx context.Context) {
	f.startOnce.Do(func() {
		f.started = true
		go f.run(ctx)
	})
}

func (f *Refresher) run(ctx context.Context) {
	defer close(f.doneCh)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.log.Info("refresher started with interval %v", f.interval)

	if err := f.registry.Refresh(ctx); err != nil {
		f.log.Warn("initial refresh failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			f.log.Info("refresher stopped (context cancelled)")
			return
		case <-f.stopCh:
			f.log.Info("refresher stopped (stop signal)")
			return
		case <-ticker.C:
			if err := f.registry.Refresh(ctx); err != nil {
				f.log.Warn("periodic refresh failed: %v", err)
			}
		}
	}
}

// Stop signals the loop to exit and waits for it to finish. Safe to call
// multiple times, and a no-op if Start never ran.
func (f *Refresher) Stop() {
	if !f.started {
		return
	}
	f.stopOnce.Do(func() {
		close(f.stopCh)
	})
	<-f.doneCh
}
