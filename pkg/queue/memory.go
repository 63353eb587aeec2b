package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	xlogger "EstateDesk/pkg/logger"
)

// MemoryQueue runs jobs in process. It backs the notification pipeline when
// Redis is not configured; pending messages are lost on shutdown.
type MemoryQueue struct {
	*registry
	config *QueueConfig
	msgs   chan Message

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	retries sync.WaitGroup

	deadMu sync.Mutex
	dead   []Message
}

var _ QueueService = (*MemoryQueue)(nil)

func NewMemoryQueue(logger *xlogger.Logger, config *QueueConfig) *MemoryQueue {
	cfg := normalizeConfig(config)
	return &MemoryQueue{
		registry: newRegistry(logger),
		config:   cfg,
		msgs:     make(chan Message, cfg.QueueSize),
	}
}

func (q *MemoryQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return fmt.Errorf("queue already running")
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.running = true

	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.logger.Info("memory queue started", xlogger.Int("workers", q.config.Workers))
	return nil
}

func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		q.retries.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		q.logger.Info("memory queue stopped")
		return nil
	}
}

// PublishMessage enqueues payload for the job registered under msgType.
func (q *MemoryQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	if _, ok := q.job(msgType); !ok {
		return fmt.Errorf("%w: %s", ErrNoJob, msgType)
	}
	msg, err := newMessage(msgType, payload)
	if err != nil {
		return err
	}
	return q.push(ctx, msg)
}

func (q *MemoryQueue) push(ctx context.Context, msg Message) error {
	q.mu.RLock()
	running, qctx := q.running, q.ctx
	q.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}
	select {
	case q.msgs <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-qctx.Done():
		return ErrNotRunning
	}
}

// DeadLetters returns messages that exhausted their retries.
func (q *MemoryQueue) DeadLetters() []Message {
	q.deadMu.Lock()
	defer q.deadMu.Unlock()
	return append([]Message(nil), q.dead...)
}

func (q *MemoryQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case msg := <-q.msgs:
			q.process(msg)
		}
	}
}

func (q *MemoryQueue) process(msg Message) {
	retry, err := q.run(q.ctx, q.config, msg)
	if err == nil || q.ctx.Err() != nil {
		return
	}
	if !retry {
		q.deadMu.Lock()
		q.dead = append(q.dead, msg)
		q.deadMu.Unlock()
		q.logger.Error("max retries reached", xlogger.String("id", msg.ID), xlogger.String("type", msg.Type))
		return
	}

	msg.Attempts++
	delay := q.config.retryDelay(msg.Attempts)
	q.retries.Add(1)
	go func() {
		defer q.retries.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			if err := q.push(q.ctx, msg); err != nil {
				q.logger.Warn("requeue failed", xlogger.String("id", msg.ID), xlogger.Error(err))
			}
		case <-q.ctx.Done():
		}
	}()
}
