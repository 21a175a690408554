package server

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/EmmanuelOluwafemi/anchor-escrow/internal/trade"
)

type snapshotter interface {
	Snapshot(ctx context.Context) (*trade.Snapshot, error)
}

// refresher keeps the latest open offers snapshot, rescanning on a fixed
// interval.
type refresher struct {
	source   snapshotter
	interval time.Duration
	metrics  *metricsRegistry

	mu      sync.RWMutex
	latest  *trade.Snapshot
	lastErr error
}

func newRefresher(source snapshotter, interval time.Duration, metrics *metricsRegistry) *refresher {
	return &refresher{
		source:   source,
		interval: interval,
		metrics:  metrics,
	}
}

// Run scans once immediately, then on every tick until ctx is done.
func (r *refresher) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	log.WithField("interval", r.interval).Info("offer refresher started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("offer refresher stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *refresher) tick(ctx context.Context) {
	scanCtx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()
	if _, err := r.Refresh(scanCtx); err != nil {
		log.WithError(err).Warn("offer refresh failed")
	}
}

// Refresh scans now and stores the result. A failed scan keeps the previous
// snapshot.
func (r *refresher) Refresh(ctx context.Context) (*trade.Snapshot, error) {
	snap, err := r.source.Snapshot(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.lastErr = err
		r.metrics.recordScan("error", 0, 0)
		return nil, err
	}
	r.latest = snap
	r.lastErr = nil
	r.metrics.recordScan("ok", len(snap.Offers), len(snap.Skipped))
	return snap, nil
}

// Enabled reports whether Run keeps the snapshot current.
func (r *refresher) Enabled() bool {
	return r.interval > 0
}

// Latest returns the most recent snapshot, or nil before the first
// successful scan.
func (r *refresher) Latest() *trade.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

func (r *refresher) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}
