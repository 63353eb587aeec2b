package logger

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships digest batches. The Kafka producer satisfies it.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type DigestConfig struct {
	Topic       string // error-log topic, e.g. estate.logs
	Source      string // stamped on every batch
	Publisher   Publisher
	FlushEvery  time.Duration // default 30s
	MaxDistinct int           // distinct errors held before an early flush, default 100
}

// DigestEntry is one distinct error with its repeat count.
type DigestEntry struct {
	Fingerprint string                 `json:"fingerprint"`
	Level       string                 `json:"level"`
	Message     string                 `json:"message"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
	Caller      string                 `json:"caller"`
	Count       int                    `json:"count"`
	FirstSeen   time.Time              `json:"first_seen"`
	LastSeen    time.Time              `json:"last_seen"`
}

// DigestBatch is the message published to the error-log topic. Entries keep
// first-seen order.
type DigestBatch struct {
	Source    string        `json:"source,omitempty"`
	FlushedAt time.Time     `json:"flushed_at"`
	Entries   []DigestEntry `json:"entries"`
}

// ErrorDigest folds repeated error logs into counted entries and publishes
// them as one batch per flush.
type ErrorDigest struct {
	cfg DigestConfig
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*DigestEntry
	order   []string

	stop      chan struct{}
	done      chan struct{}
	inflight  sync.WaitGroup
	closeOnce sync.Once
}

func newErrorDigest(cfg DigestConfig) *ErrorDigest {
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 30 * time.Second
	}
	if cfg.MaxDistinct <= 0 {
		cfg.MaxDistinct = 100
	}
	d := &ErrorDigest{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*DigestEntry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *ErrorDigest) record(level, msg string, fields map[string]interface{}, caller string) {
	now := d.now()
	fp := fingerprint(level, msg, caller, fields)

	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[fp]; ok {
		e.Count++
		e.LastSeen = now
		return
	}
	d.entries[fp] = &DigestEntry{
		Fingerprint: fp,
		Level:       level,
		Message:     msg,
		Fields:      fields,
		Caller:      caller,
		Count:       1,
		FirstSeen:   now,
		LastSeen:    now,
	}
	d.order = append(d.order, fp)
	if len(d.order) >= d.cfg.MaxDistinct {
		d.ship(d.takeLocked())
	}
}

// fingerprint hashes everything that makes two errors the same error.
func fingerprint(level, msg, caller string, fields map[string]interface{}) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00%s", level, msg, caller)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "\x00%s=%v", k, fields[k])
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func (d *ErrorDigest) loop() {
	defer close(d.done)
	t := time.NewTicker(d.cfg.FlushEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			d.flush()
		case <-d.stop:
			d.flush()
			return
		}
	}
}

func (d *ErrorDigest) flush() {
	d.mu.Lock()
	b := d.takeLocked()
	d.mu.Unlock()
	d.ship(b)
}

// takeLocked empties the digest. It returns nil when nothing was recorded.
func (d *ErrorDigest) takeLocked() *DigestBatch {
	if len(d.order) == 0 {
		return nil
	}
	b := &DigestBatch{
		Source:    d.cfg.Source,
		FlushedAt: d.now(),
		Entries:   make([]DigestEntry, 0, len(d.order)),
	}
	for _, fp := range d.order {
		b.Entries = append(b.Entries, *d.entries[fp])
	}
	d.entries = make(map[string]*DigestEntry)
	d.order = nil
	return b
}

// ship publishes off the caller's goroutine. Failures go to stderr; logging
// them would feed the digest.
func (d *ErrorDigest) ship(b *DigestBatch) {
	if b == nil {
		return
	}
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := d.cfg.Publisher.PublishMessage(ctx, d.cfg.Topic, b); err != nil {
			fmt.Fprintf(os.Stderr, "error digest: publish %d entries to %s: %v\n", len(b.Entries), d.cfg.Topic, err)
		}
	}()
}

// Close flushes what is left and waits for every publish to finish.
func (d *ErrorDigest) Close() {
	d.closeOnce.Do(func() {
		close(d.stop)
		<-d.done
		d.inflight.Wait()
	})
}
