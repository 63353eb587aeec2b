package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"EstateDesk/internal/domain/models"
	drepo "EstateDesk/internal/domain/repository"
	"EstateDesk/internal/domain/service"
	"EstateDesk/internal/services/alerts"
	xlogger "EstateDesk/pkg/logger"
)

// MarketPrices exposes the current simulated price of every tracked property.
type MarketPrices interface {
	AllMarketData() []models.MarketData
}

var _ alerts.ListingSource = (*PricedListings)(nil)

// PricedListings serves the stored listings at their current simulated price.
type PricedListings struct {
	props  drepo.PropertyStore
	market MarketPrices
}

func NewPricedListings(props drepo.PropertyStore, market MarketPrices) *PricedListings {
	return &PricedListings{props: props, market: market}
}

func (l *PricedListings) Listings(ctx context.Context) ([]models.Property, error) {
	listed, err := l.props.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	prices := make(map[string]float64)
	for _, d := range l.market.AllMarketData() {
		prices[d.PropertyID] = d.CurrentPrice
	}
	out := make([]models.Property, len(listed))
	for i, p := range listed {
		if price, ok := prices[p.ID]; ok {
			p.Price = price
		}
		out[i] = p
	}
	return out, nil
}

// TickerSource is the part of the market the monitor listens to.
type TickerSource interface {
	SubscribeTickers(fn func([]models.MarketTicker)) *service.Subscription
}

// AlertMonitor re-evaluates price alerts in process on every ticker update,
// at most once per interval. It runs when no Kafka consumer feeds
// MarketUpdateHandler.
type AlertMonitor struct {
	market   TickerSource
	listings alerts.ListingSource
	checker  AlertChecker
	metrics  drepo.Metrics
	logger   *xlogger.Logger
	interval time.Duration
	now      func() time.Time

	kick      chan struct{}
	lastCheck time.Time // owned by the run goroutine
	sub       *service.Subscription
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewAlertMonitor(
	market TickerSource,
	listings alerts.ListingSource,
	checker AlertChecker,
	metrics drepo.Metrics,
	logger *xlogger.Logger,
	interval time.Duration,
) *AlertMonitor {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &AlertMonitor{
		market:   market,
		listings: listings,
		checker:  checker,
		metrics:  metrics,
		logger:   logger.With(xlogger.String("component", "alert_monitor")),
		interval: interval,
		now:      time.Now,
		kick:     make(chan struct{}, 1),
	}
}

// Start subscribes to ticker updates. The subscription delivers at once, so
// the first check runs right away.
func (m *AlertMonitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.run(ctx)
	m.sub = m.market.SubscribeTickers(func([]models.MarketTicker) { m.Kick() })
}

// Kick requests a check without blocking the caller.
func (m *AlertMonitor) Kick() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

func (m *AlertMonitor) run(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.kick:
			now := m.now()
			if !m.lastCheck.IsZero() && now.Sub(m.lastCheck) < m.interval {
				continue
			}
			m.lastCheck = now
			if err := m.CheckOnce(ctx); err != nil {
				m.logger.Warn("alert check failed", xlogger.Error(err))
			}
		}
	}
}

// CheckOnce evaluates every alert against the current listings.
func (m *AlertMonitor) CheckOnce(ctx context.Context) error {
	start := time.Now()
	props, err := m.listings.Listings(ctx)
	if err != nil {
		return err
	}
	if _, err := m.checker.Check(ctx, props); err != nil {
		m.metrics.RecordError("alert_check")
		return fmt.Errorf("check alerts: %w", err)
	}
	m.metrics.RecordLatency("alert_check", time.Since(start).Seconds())
	return nil
}

func (m *AlertMonitor) Stop() {
	m.sub.Close()
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
