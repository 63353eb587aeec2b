package usecase

import (
	"context"
	"sync"
	"time"

	drepo "EstateDesk/internal/domain/repository"
	"EstateDesk/internal/domain/service"
	xlogger "EstateDesk/pkg/logger"
)

// SnapshotRecorder takes a market snapshot every interval and archives it.
// The snapshot also lands in the simulator's in-memory history.
type SnapshotRecorder struct {
	feed     service.MarketFeed
	archive  drepo.SnapshotArchive
	metrics  drepo.Metrics
	logger   *xlogger.Logger
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSnapshotRecorder(feed service.MarketFeed, archive drepo.SnapshotArchive, metrics drepo.Metrics, logger *xlogger.Logger, interval time.Duration) *SnapshotRecorder {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &SnapshotRecorder{
		feed:     feed,
		archive:  archive,
		metrics:  metrics,
		logger:   logger.With(xlogger.String("component", "snapshot_recorder")),
		interval: interval,
	}
}

func (r *SnapshotRecorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t := time.NewTicker(r.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_ = r.RecordOnce(ctx)
			}
		}
	}()
}

// RecordOnce takes and archives a single snapshot.
func (r *SnapshotRecorder) RecordOnce(ctx context.Context) error {
	start := time.Now()
	snap := r.feed.TakeSnapshot()
	if r.archive == nil {
		return nil
	}
	if err := r.archive.Archive(ctx, snap); err != nil {
		r.metrics.RecordError("snapshot_archive")
		r.logger.Error("archive snapshot failed", xlogger.Error(err))
		return err
	}
	r.metrics.RecordLatency("snapshot_archive", time.Since(start).Seconds())
	r.logger.Debug("snapshot archived", xlogger.Int("properties", len(snap.MarketData)))
	return nil
}

func (r *SnapshotRecorder) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	if r.archive != nil {
		_ = r.archive.Close()
	}
}
