package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	xlogger "EstateDesk/pkg/logger"
)

var (
	ErrNotRunning = errors.New("queue not running")
	ErrNoJob      = errors.New("no job registered")
)

// Job handles one message type. payload is the JSON encoded value given to
// PublishMessage; decode it with ParsePayload.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}

// QueueService is the producer side shared by every queue.
type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

type QueueConfig struct {
	Workers    int
	QueueSize  int           // buffer for the in-memory queue
	RetryLimit int           // retries after the first attempt
	RetryDelay time.Duration // base delay, doubled per attempt
	JobTimeout time.Duration
}

// Message is the envelope stored on the queue.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

func newMessage(msgType string, payload interface{}) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// ParsePayload decodes a job payload into T.
func ParsePayload[T any](payload interface{}) (*T, error) {
	var result T
	var data []byte

	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		data = p
	case []byte:
		data = p
	case string:
		data = []byte(p)
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("invalid payload type %T: %w", payload, err)
		}
		data = b
	}

	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &result, nil
}

func normalizeConfig(cfg *QueueConfig) *QueueConfig {
	if cfg == nil {
		cfg = &QueueConfig{}
	}
	out := *cfg
	if out.Workers <= 0 {
		out.Workers = 1
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 256
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = 10 * time.Second
	}
	if out.JobTimeout <= 0 {
		out.JobTimeout = 30 * time.Second
	}
	return &out
}

// retryDelay returns the wait before the given retry attempt (1-based).
func (c *QueueConfig) retryDelay(attempt int) time.Duration {
	d := c.RetryDelay
	for i := 1; i < attempt && d < time.Hour; i++ {
		d *= 2
	}
	return d
}

// registry is the job table shared by both queue implementations.
type registry struct {
	logger *xlogger.Logger
	mu     sync.RWMutex
	jobs   map[string]Job
}

func newRegistry(logger *xlogger.Logger) *registry {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &registry{logger: logger, jobs: make(map[string]Job)}
}

// RegisterJob registers job for its type. Duplicates are ignored.
func (r *registry) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Type()]; exists {
		r.logger.Warn("job already registered", xlogger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered",
		xlogger.String("job", job.Name()),
		xlogger.String("type", job.Type()))
}

func (r *registry) RegisterJobs(jobs []Job) {
	for _, job := range jobs {
		r.RegisterJob(job)
	}
}

func (r *registry) job(msgType string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[msgType]
	return j, ok
}

// run executes the job for msg. The returned bool reports whether the
// failure should be retried.
func (r *registry) run(ctx context.Context, cfg *QueueConfig, msg Message) (bool, error) {
	job, ok := r.job(msg.Type)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNoJob, msg.Type)
	}

	jctx, cancel := context.WithTimeout(ctx, cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	err := job.Handle(jctx, msg.Payload)
	if err == nil {
		r.logger.Debug("job done",
			xlogger.String("id", msg.ID),
			xlogger.String("job", job.Name()),
			xlogger.Duration("elapsed_ms", time.Since(start)))
		return false, nil
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return false, err
	}

	r.logger.Error("message processing error",
		xlogger.String("id", msg.ID),
		xlogger.String("job", job.Name()),
		xlogger.Int("attempt", msg.Attempts+1),
		xlogger.Error(err))
	return msg.Attempts < cfg.RetryLimit, err
}
