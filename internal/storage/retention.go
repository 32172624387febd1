package storage

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Pruner deletes readings recorded more than days ago
type Pruner interface {
	DeleteOlderThan(days int) (int64, error)
}

// RetentionCleaner keeps the readings table inside the retention window.
// It prunes once at start and then every CleanupPeriod.
type RetentionCleaner struct {
	store   Pruner
	days    int
	period  time.Duration
	onPrune func(deleted int64)
	logger  zerolog.Logger

	runMu    sync.Mutex // serializes RunNow with the loop
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	runs        atomic.Int64
	failures    atomic.Int64
	deleted     atomic.Int64
	lastDeleted atomic.Int64
	lastRun     atomic.Int64 // unix nanos
}

// RetentionCleanerConfig holds configuration for the cleaner
type RetentionCleanerConfig struct {
	RetentionDays int           // days of readings to keep (default: 30)
	CleanupPeriod time.Duration // how often to prune (default: 1h)
	// OnPrune is called after a run that deleted at least one reading.
	OnPrune func(deleted int64)
}

// DefaultRetentionCleanerConfig returns the defaults used for zero fields
func DefaultRetentionCleanerConfig() RetentionCleanerConfig {
	return RetentionCleanerConfig{
		RetentionDays: 30,
		CleanupPeriod: time.Hour,
	}
}

// RetentionCleanerStats contains statistics about the cleaner
type RetentionCleanerStats struct {
	TotalDeleted    int64     `json:"total_deleted"`
	TotalCleanups   int64     `json:"total_cleanups"`
	TotalErrors     int64     `json:"total_errors"`
	LastCleanup     time.Time `json:"last_cleanup,omitempty"`
	LastDeleteCount int64     `json:"last_delete_count"`
	RetentionDays   int       `json:"retention_days"`
}

// NewRetentionCleaner creates and starts a cleaner
func NewRetentionCleaner(store Pruner, cfg RetentionCleanerConfig, logger zerolog.Logger) *RetentionCleaner {
	def := DefaultRetentionCleanerConfig()
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = def.RetentionDays
	}
	if cfg.CleanupPeriod <= 0 {
		logger.Warn().
			Dur("provided_period", cfg.CleanupPeriod).
			Dur("default_period", def.CleanupPeriod).
			Msg("Invalid cleanup period, using default")
		cfg.CleanupPeriod = def.CleanupPeriod
	}

	c := &RetentionCleaner{
		store:    store,
		days:     cfg.RetentionDays,
		period:   cfg.CleanupPeriod,
		onPrune:  cfg.OnPrune,
		logger:   logger.With().Str("component", "retention").Logger(),
		stopChan: make(chan struct{}),
	}

	c.wg.Add(1)
	go c.loop()

	c.logger.Info().
		Int("retention_days", c.days).
		Dur("cleanup_period", c.period).
		Msg("RetentionCleaner started")
	return c
}

func (c *RetentionCleaner) loop() {
	defer c.wg.Done()

	next := time.NewTimer(0)
	defer next.Stop()

	for {
		select {
		case <-next.C:
			c.RunNow()
			next.Reset(c.period)
		case <-c.stopChan:
			return
		}
	}
}

// RunNow prunes immediately and returns how many readings were deleted
func (c *RetentionCleaner) RunNow() int64 {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	start := time.Now()
	n, err := c.store.DeleteOlderThan(c.days)
	c.runs.Add(1)
	c.lastRun.Store(start.UnixNano())
	if err != nil {
		c.failures.Add(1)
		c.logger.Error().Err(err).Int("retention_days", c.days).Msg("Retention cleanup failed")
		return 0
	}

	c.deleted.Add(n)
	c.lastDeleted.Store(n)
	c.logger.Debug().
		Int64("deleted", n).
		Dur("took", time.Since(start)).
		Msg("Retention cleanup completed")
	if n > 0 && c.onPrune != nil {
		c.onPrune(n)
	}
	return n
}

// Stop stops the cleaner and waits for a running prune to finish
func (c *RetentionCleaner) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
		c.logger.Info().Int64("total_deleted", c.deleted.Load()).Msg("RetentionCleaner stopped")
	})
}

// Stats returns current cleaner statistics
func (c *RetentionCleaner) Stats() RetentionCleanerStats {
	stats := RetentionCleanerStats{
		TotalDeleted:    c.deleted.Load(),
		TotalCleanups:   c.runs.Load(),
		TotalErrors:     c.failures.Load(),
		LastDeleteCount: c.lastDeleted.Load(),
		RetentionDays:   c.days,
	}
	if ns := c.lastRun.Load(); ns > 0 {
		stats.LastCleanup = time.Unix(0, ns)
	}
	return stats
}
