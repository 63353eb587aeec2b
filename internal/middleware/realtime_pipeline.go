package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"EstateDesk/internal/domain/models"
	domrepo "EstateDesk/internal/domain/repository"
)

// Proc is the downstream the pipeline forwards accepted updates to.
type Proc interface {
	Process(ctx context.Context, u *models.MarketUpdate) error
}

// RealtimePipeline sits between the simulator and the update backends. It
// validates updates, throttles each key with a token bucket and buffers
// updates the downstream rejected for a background retry.
type RealtimePipeline struct {
	proc      Proc
	metrics   domrepo.Metrics
	maxRPS    int
	burst     int
	bufSize   int
	bufCh     chan *models.MarketUpdate
	transform func(*models.MarketUpdate) *models.MarketUpdate

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	done     chan struct{}
	limiters map[string]*rate.Limiter
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the accepted updates per second per key.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBurst sets the token bucket depth per key.
func WithBurst(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.burst = n
		}
	}
}

// WithBufferSize sets how many rejected updates wait for retry.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform rewrites accepted updates before they reach the downstream.
func WithTransform(fn func(*models.MarketUpdate) *models.MarketUpdate) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   20,
		burst:    1,
		bufSize:  1000,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.MarketUpdate, p.bufSize)
	return p
}

// Start launches the retry loop for buffered updates.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	go p.drain(ctx, p.stopCh, p.done)
}

func (p *RealtimePipeline) drain(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	backoff := 50 * time.Millisecond
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case u := <-p.bufCh:
			if err := p.proc.Process(ctx, u); err == nil {
				backoff = 50 * time.Millisecond
				continue
			}
			p.metrics.RecordError("pipeline_flush")
			select {
			case <-time.After(backoff):
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
			if backoff < 2*time.Second {
				backoff *= 2
			}
			select {
			case p.bufCh <- u:
			default:
				p.metrics.RecordError("pipeline_buffer_drop")
			}
		}
	}
}

// Stop ends the retry loop and waits for it. Buffered updates are dropped.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	done := p.done
	p.mu.Unlock()
	<-done
}

// Buffered reports how many updates wait for retry.
func (p *RealtimePipeline) Buffered() int {
	return len(p.bufCh)
}

// Process validates, throttles and forwards u. Throttled updates are dropped
// without error. A downstream failure buffers u and returns the error.
func (p *RealtimePipeline) Process(ctx context.Context, u *models.MarketUpdate) error {
	start := time.Now()
	if err := ValidateUpdate(u); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		u = p.transform(u)
		if err := ValidateUpdate(u); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.allow(u.Key, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, u); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- u:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func (p *RealtimePipeline) allow(key string, now time.Time) bool {
	p.mu.Lock()
	lim, ok := p.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(p.maxRPS), p.burst)
		p.limiters[key] = lim
	}
	p.mu.Unlock()
	return lim.AllowN(now, 1)
}

// ValidateUpdate rejects updates that cannot be keyed or carry no finite
// positive value.
func ValidateUpdate(u *models.MarketUpdate) error {
	if u == nil {
		return fmt.Errorf("update nil")
	}
	if u.Key == "" {
		return fmt.Errorf("update key empty")
	}
	switch u.Kind {
	case models.UpdateKindPrice:
		if u.Data == nil {
			return fmt.Errorf("price update %s without data", u.Key)
		}
	case models.UpdateKindTicker:
		if u.Ticker == nil {
			return fmt.Errorf("ticker update %s without ticker", u.Key)
		}
	default:
		return fmt.Errorf("unknown update kind %q", u.Kind)
	}
	if v := u.Value(); v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("update %s has invalid value %v", u.Key, v)
	}
	if u.Timestamp.IsZero() {
		return fmt.Errorf("update %s timestamp missing", u.Key)
	}
	return nil
}
