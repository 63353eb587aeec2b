package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"EstateDesk/internal/domain/models"
	drepo "EstateDesk/internal/domain/repository"
	xlogger "EstateDesk/pkg/logger"
)

const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
	BackendNone       = "none"
)

// UpdateProcessor routes market updates to the configured backend. With a
// batch size above one, updates are accumulated and flushed when the batch
// fills or the batch timeout elapses. A failed flush keeps its updates for
// the next attempt, up to ten batches.
type UpdateProcessor struct {
	pub     drepo.UpdatePublisher
	store   drepo.UpdateStorage
	metrics drepo.Metrics
	logger  *xlogger.Logger
	backend string
	batchSz int
	batchTO time.Duration

	mu      sync.Mutex
	pending []*models.MarketUpdate

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewUpdateProcessor(
	pub drepo.UpdatePublisher,
	store drepo.UpdateStorage,
	metrics drepo.Metrics,
	logger *xlogger.Logger,
	backend string,
	batchSz int,
	batchTO time.Duration,
) *UpdateProcessor {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if batchSz < 1 {
		batchSz = 1
	}
	if batchTO <= 0 {
		batchTO = time.Second
	}
	return &UpdateProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		logger:  logger.With(xlogger.String("component", "update_processor"), xlogger.String("backend", backend)),
		backend: backend,
		batchSz: batchSz,
		batchTO: batchTO,
	}
}

// Start launches the timed flush. It is a no-op for unbatched processors.
func (p *UpdateProcessor) Start(ctx context.Context) {
	if p.batchSz == 1 || p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		t := time.NewTicker(p.batchTO)
		defer t.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := p.Flush(ctx); err != nil {
					p.logger.Warn("timed flush failed", xlogger.Error(err))
				}
			}
		}
	}()
}

// Process routes one update. Batched processors only flush once the batch
// is full.
func (p *UpdateProcessor) Process(ctx context.Context, u *models.MarketUpdate) error {
	if u == nil {
		return fmt.Errorf("update is nil")
	}
	if p.batchSz == 1 {
		return p.ProcessBatch(ctx, []*models.MarketUpdate{u})
	}

	p.mu.Lock()
	p.pending = append(p.pending, u)
	full := len(p.pending) >= p.batchSz
	p.mu.Unlock()

	if full {
		return p.Flush(ctx)
	}
	return nil
}

// Flush sends everything pending.
func (p *UpdateProcessor) Flush(ctx context.Context) error {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	err := p.ProcessBatch(ctx, batch)
	if err == nil {
		return nil
	}

	p.mu.Lock()
	p.pending = append(batch, p.pending...)
	if limit := p.batchSz * 10; len(p.pending) > limit {
		dropped := len(p.pending) - limit
		p.pending = p.pending[dropped:]
		p.metrics.RecordError("process_drop")
		p.logger.Warn("dropping oldest pending updates", xlogger.Int("dropped", dropped))
	}
	p.mu.Unlock()
	return err
}

// Pending reports updates waiting for a flush.
func (p *UpdateProcessor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// ProcessBatch writes updates to the backend immediately.
func (p *UpdateProcessor) ProcessBatch(ctx context.Context, updates []*models.MarketUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.PublishBatch(ctx, updates)
	case BackendClickHouse:
		err = p.store.StoreBatch(ctx, updates)
	case BackendNone, "":
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	for _, u := range updates {
		p.metrics.RecordMessageSent(p.backend, u.Key)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	return nil
}

// Close stops the timed flush, flushes what is left and closes the backends.
func (p *UpdateProcessor) Close(ctx context.Context) error {
	p.stopOnce.Do(func() {
		if p.stop != nil {
			close(p.stop)
			<-p.done
		}
	})
	err := p.Flush(ctx)
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
	return err
}
