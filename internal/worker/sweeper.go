package worker

import (
	"log/slog"
	"time"
)

const defaultSweepInterval = 10 * time.Minute

// Sweepable is a cache that can evict expired entries on demand.
type Sweepable interface {
	Sweep() int
}

// CacheSweeper periodically evicts expired embedding cache entries so memory
// is reclaimed even for keys that are never read again.
type CacheSweeper struct {
	cache    Sweepable
	interval time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
}

func NewCacheSweeper(cache Sweepable, interval time.Duration, logger *slog.Logger) *CacheSweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &CacheSweeper{
		cache:    cache,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

func (w *CacheSweeper) Start() {
	w.logger.Info("starting_cache_sweeper", slog.Duration("interval", w.interval))
	go w.run()
}

func (w *CacheSweeper) Stop() {
	w.logger.Info("stopping_cache_sweeper")
	close(w.stopChan)
}

func (w *CacheSweeper) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			if evicted := w.cache.Sweep(); evicted > 0 {
				w.logger.Info("cache_sweep_completed", slog.Int("evicted", evicted))
			}
		}
	}
}
