package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"EstateDesk/internal/domain/models"
	domrepo "EstateDesk/internal/domain/repository"
	mid "EstateDesk/internal/middleware"
	"EstateDesk/internal/services/alerts"
	pkgkafka "EstateDesk/pkg/kafka"
)

var _ pkgkafka.MessageHandler = (*MarketUpdateHandler)(nil)

// AlertChecker evaluates price alerts against a priced listing set.
type AlertChecker interface {
	Check(ctx context.Context, properties []models.Property) (int, error)
}

var _ AlertChecker = (*alerts.Service)(nil)

// MarketUpdateHandler consumes the market updates topic, tracks the latest
// simulated price per property and re-evaluates price alerts at most once per
// check interval.
type MarketUpdateHandler struct {
	topic    string
	props    domrepo.PropertyStore
	checker  AlertChecker
	metrics  domrepo.Metrics
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	prices    map[string]float64
	lastCheck time.Time
}

func NewMarketUpdateHandler(topic string, props domrepo.PropertyStore, checker AlertChecker, metrics domrepo.Metrics, interval time.Duration) *MarketUpdateHandler {
	return &MarketUpdateHandler{
		topic:    topic,
		props:    props,
		checker:  checker,
		metrics:  metrics,
		interval: interval,
		now:      time.Now,
		prices:   make(map[string]float64),
	}
}

func (h *MarketUpdateHandler) Topic() string { return h.topic }

func (h *MarketUpdateHandler) Handle(ctx context.Context, b []byte) error {
	var u models.MarketUpdate
	if err := json.Unmarshal(b, &u); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode market update: %w", err)
	}
	if err := mid.ValidateUpdate(&u); err != nil {
		// malformed payloads would fail every retry; skip them
		h.metrics.RecordError("consumer_invalid")
		return nil
	}
	now := h.now()
	h.metrics.RecordLatency("consume_e2e", now.Sub(u.Timestamp).Seconds())
	if u.Kind != models.UpdateKindPrice {
		return nil
	}

	h.mu.Lock()
	h.prices[u.Key] = u.Data.CurrentPrice
	due := now.Sub(h.lastCheck) >= h.interval
	if due {
		h.lastCheck = now
	}
	h.mu.Unlock()

	if !due {
		return nil
	}
	return h.check(ctx)
}

func (h *MarketUpdateHandler) check(ctx context.Context) error {
	start := time.Now()
	listed, err := h.props.List(ctx)
	if err != nil {
		return fmt.Errorf("list properties: %w", err)
	}
	priced := h.Priced(listed)
	if _, err := h.checker.Check(ctx, priced); err != nil {
		h.metrics.RecordError("alert_check")
		return fmt.Errorf("check alerts: %w", err)
	}
	h.metrics.RecordLatency("alert_check", time.Since(start).Seconds())
	return nil
}

// Priced returns a copy of properties with the latest consumed price
// substituted where one is known.
func (h *MarketUpdateHandler) Priced(properties []models.Property) []models.Property {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.Property, len(properties))
	for i, p := range properties {
		if price, ok := h.prices[p.ID]; ok {
			p.Price = price
		}
		out[i] = p
	}
	return out
}
