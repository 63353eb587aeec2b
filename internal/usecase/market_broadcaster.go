package usecase

import (
	"context"
	"sync"
	"time"

	"EstateDesk/internal/domain/models"
	drepo "EstateDesk/internal/domain/repository"
	"EstateDesk/internal/domain/service"
	mid "EstateDesk/internal/middleware"
	xlogger "EstateDesk/pkg/logger"
)

// MarketBroadcaster subscribes to every tracked property and the tickers and
// forwards each change to the pipeline. Simulator callbacks only enqueue, so
// a slow backend never holds up a tick; updates beyond the buffer are dropped.
type MarketBroadcaster struct {
	feed    service.MarketFeed
	pipe    *mid.RealtimePipeline
	proc    *UpdateProcessor
	metrics drepo.Metrics
	logger  *xlogger.Logger
	now     func() time.Time

	updates chan *models.MarketUpdate
	subs    []*service.Subscription
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewMarketBroadcaster(
	feed service.MarketFeed,
	pipe *mid.RealtimePipeline,
	proc *UpdateProcessor,
	metrics drepo.Metrics,
	logger *xlogger.Logger,
	bufferSize int,
) *MarketBroadcaster {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &MarketBroadcaster{
		feed:    feed,
		pipe:    pipe,
		proc:    proc,
		metrics: metrics,
		logger:  logger.With(xlogger.String("component", "market_broadcaster")),
		now:     time.Now,
		updates: make(chan *models.MarketUpdate, bufferSize),
	}
}

func (b *MarketBroadcaster) Start(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)
	b.pipe.Start(ctx)
	if b.proc != nil {
		b.proc.Start(ctx)
	}

	b.wg.Add(1)
	go b.forward(ctx)

	data := b.feed.AllMarketData()
	for _, d := range data {
		b.subs = append(b.subs, b.feed.Subscribe(d.PropertyID, b.onPrice))
	}
	b.subs = append(b.subs, b.feed.SubscribeTickers(b.onTickers))

	b.logger.Info("market broadcaster started", xlogger.Int("properties", len(data)))
	return nil
}

func (b *MarketBroadcaster) onPrice(d models.MarketData) {
	b.metrics.RecordLastPrice(d.PropertyID, d.CurrentPrice)
	b.enqueue(&models.MarketUpdate{
		Kind:      models.UpdateKindPrice,
		Key:       d.PropertyID,
		Data:      &d,
		Timestamp: d.LastUpdate,
	})
}

func (b *MarketBroadcaster) onTickers(tickers []models.MarketTicker) {
	now := b.now()
	for i := range tickers {
		t := tickers[i]
		b.enqueue(&models.MarketUpdate{
			Kind:      models.UpdateKindTicker,
			Key:       t.Symbol,
			Ticker:    &t,
			Timestamp: now,
		})
	}
}

func (b *MarketBroadcaster) enqueue(u *models.MarketUpdate) {
	if u.Timestamp.IsZero() {
		u.Timestamp = b.now()
	}
	select {
	case b.updates <- u:
	default:
		b.metrics.RecordError("broadcast_drop")
	}
}

func (b *MarketBroadcaster) forward(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-b.updates:
			if err := b.pipe.Process(ctx, u); err != nil {
				b.logger.Debug("broadcast update failed",
					xlogger.String("key", u.Key),
					xlogger.Error(err),
				)
			}
		}
	}
}

// Shutdown unsubscribes, drains the forwarder and flushes the processor.
func (b *MarketBroadcaster) Shutdown(ctx context.Context) error {
	for _, s := range b.subs {
		s.Close()
	}
	b.subs = nil
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	b.pipe.Stop()
	if b.proc != nil {
		return b.proc.Close(ctx)
	}
	return nil
}
