package storage

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/hydro-monitor/internal/models"
)

// BatchInserter is the part of Store the writer needs
type BatchInserter interface {
	InsertBatch(readings []*models.Reading) error
}

// DBWriter persists device readings in batches off the request path.
// A batch is written when it reaches BatchSize or when its oldest reading has
// waited FlushPeriod. Batches the store rejects go to Fallback when set.
type DBWriter struct {
	store     BatchInserter
	fallback  *PendingBuffer
	onFlush   func(count int)
	logger    zerolog.Logger
	queue     chan *models.Reading
	batchSize int
	maxWait   time.Duration
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	written   atomic.Int64
	batches   atomic.Int64
	failures  atomic.Int64
	deferred  atomic.Int64
	rejected  atomic.Int64
	lastWrite atomic.Int64 // unix nanos
}

// DBWriterConfig holds configuration for the async writer
type DBWriterConfig struct {
	BatchSize   int           // readings per batch (default: 100)
	FlushPeriod time.Duration // max wait of a queued reading (default: 5s)
	ChannelSize int           // queue capacity (default: 1000)
	Fallback    *PendingBuffer
	OnFlush     func(count int) // called after every persisted batch
}

// DefaultDBWriterConfig returns the defaults used for zero fields
func DefaultDBWriterConfig() DBWriterConfig {
	return DBWriterConfig{
		BatchSize:   100,
		FlushPeriod: 5 * time.Second,
		ChannelSize: 1000,
	}
}

// DBWriterStats contains statistics about the writer
type DBWriterStats struct {
	TotalWritten  int64     `json:"total_written"`
	TotalBatches  int64     `json:"total_batches"`
	TotalErrors   int64     `json:"total_errors"`
	TotalDeferred int64     `json:"total_deferred"`
	TotalRejected int64     `json:"total_rejected"`
	LastWriteTime time.Time `json:"last_write_time,omitempty"`
	QueueLength   int       `json:"queue_length"`
}

// NewDBWriter creates and starts an async writer
func NewDBWriter(store BatchInserter, cfg DBWriterConfig, logger zerolog.Logger) *DBWriter {
	def := DefaultDBWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushPeriod <= 0 {
		cfg.FlushPeriod = def.FlushPeriod
	}
	if cfg.ChannelSize <= 0 {
		cfg.ChannelSize = def.ChannelSize
	}

	w := &DBWriter{
		store:     store,
		fallback:  cfg.Fallback,
		onFlush:   cfg.OnFlush,
		logger:    logger.With().Str("component", "dbwriter").Logger(),
		queue:     make(chan *models.Reading, cfg.ChannelSize),
		batchSize: cfg.BatchSize,
		maxWait:   cfg.FlushPeriod,
		stopChan:  make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()

	w.logger.Info().
		Int("batch_size", cfg.BatchSize).
		Dur("max_wait", cfg.FlushPeriod).
		Int("queue", cfg.ChannelSize).
		Msg("DBWriter started")
	return w
}

// Write queues a reading. It returns false when the reading is invalid or
// the queue is full.
func (w *DBWriter) Write(reading *models.Reading) bool {
	if reading == nil || !reading.IsValid() {
		w.rejected.Add(1)
		return false
	}
	select {
	case w.queue <- reading:
		return true
	default:
		w.rejected.Add(1)
		w.logger.Warn().Str("sensor_id", reading.SensorID).Msg("Queue full, reading rejected")
		return false
	}
}

func (w *DBWriter) run() {
	defer w.wg.Done()

	var (
		batch = make([]*models.Reading, 0, w.batchSize)
		timer *time.Timer
		due   <-chan time.Time
	)
	emit := func() {
		if timer != nil {
			timer.Stop()
			timer, due = nil, nil
		}
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = make([]*models.Reading, 0, w.batchSize)
	}

	for {
		select {
		case r := <-w.queue:
			if len(batch) == 0 {
				timer = time.NewTimer(w.maxWait)
				due = timer.C
			}
			batch = append(batch, r)
			if len(batch) >= w.batchSize {
				emit()
			}
		case <-due:
			timer, due = nil, nil
			emit()
		case <-w.stopChan:
			for n := len(w.queue); n > 0; n-- {
				batch = append(batch, <-w.queue)
				if len(batch) >= w.batchSize {
					emit()
				}
			}
			emit()
			return
		}
	}
}

func (w *DBWriter) flush(batch []*models.Reading) {
	if err := w.store.InsertBatch(batch); err != nil {
		w.failures.Add(1)
		ev := w.logger.Error().Err(err).Int("batch_size", len(batch))
		if w.fallback != nil {
			kept := w.fallback.PushAll(batch)
			w.deferred.Add(int64(kept))
			ev = ev.Int("kept", kept)
		}
		ev.Msg("Batch not persisted")
		return
	}

	w.written.Add(int64(len(batch)))
	w.batches.Add(1)
	w.lastWrite.Store(time.Now().UnixNano())
	w.logger.Debug().Int("count", len(batch)).Msg("Batch persisted")
	if w.onFlush != nil {
		w.onFlush(len(batch))
	}
}

// Stop persists everything still queued, then stops the writer
func (w *DBWriter) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
		w.logger.Info().Int64("written", w.written.Load()).Msg("DBWriter stopped")
	})
}

// Stats returns current writer statistics
func (w *DBWriter) Stats() DBWriterStats {
	stats := DBWriterStats{
		TotalWritten:  w.written.Load(),
		TotalBatches:  w.batches.Load(),
		TotalErrors:   w.failures.Load(),
		TotalDeferred: w.deferred.Load(),
		TotalRejected: w.rejected.Load(),
		QueueLength:   len(w.queue),
	}
	if ns := w.lastWrite.Load(); ns > 0 {
		stats.LastWriteTime = time.Unix(0, ns)
	}
	return stats
}
