package service

import (
	"sync"
	"time"

	"EstateDesk/internal/domain/models"
)

// Subscription is the handle returned by every market subscribe call.
// Close is idempotent and safe from any goroutine.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// MarketFeed is the simulated market consumed by the API, the broadcaster and
// the snapshot recorder.
type MarketFeed interface {
	Subscribe(propertyID string, fn func(models.MarketData)) *Subscription
	SubscribeTickers(fn func([]models.MarketTicker)) *Subscription
	SubscribeConfig(fn func(models.MarketConfig)) *Subscription

	MarketData(propertyID string) (models.MarketData, bool)
	AllMarketData() []models.MarketData
	Tickers() []models.MarketTicker
	Config() models.MarketConfig
	PortfolioValue(properties []models.Property) models.PortfolioValue

	Pause()
	Resume()
	SetVolatility(level float64)
	SetUpdateFrequency(multiplier float64)

	TakeSnapshot() models.MarketSnapshot
	RestoreSnapshot(snapshot models.MarketSnapshot)
	HistoricalSnapshots(within time.Duration) []models.MarketSnapshot
	ClearHistory()
}
