package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"EstateDesk/internal/domain/models"
	"EstateDesk/internal/domain/repository"
	"EstateDesk/pkg/cache"
)

var _ repository.DeliveryLedger = (*CacheDeliveryLedger)(nil)

// DefaultDeliveryTTL outlives every queue retry schedule.
const DefaultDeliveryTTL = 24 * time.Hour

// CacheDeliveryLedger stores the delivered channels of a notification under
// notify:delivered:<id>.
type CacheDeliveryLedger struct {
	cache cache.Service
	ttl   time.Duration
}

func NewCacheDeliveryLedger(c cache.Service, ttl time.Duration) *CacheDeliveryLedger {
	if ttl <= 0 {
		ttl = DefaultDeliveryTTL
	}
	return &CacheDeliveryLedger{cache: c, ttl: ttl}
}

func deliveryKey(notificationID string) string {
	return cache.Key("notify", "delivered", notificationID)
}

func (l *CacheDeliveryLedger) Delivered(ctx context.Context, notificationID string) ([]models.Channel, error) {
	chs, err := cache.GetTyped[[]models.Channel](ctx, l.cache, deliveryKey(notificationID))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load deliveries %s: %w", notificationID, err)
	}
	return chs, nil
}

// MarkDelivered is not atomic; one queue worker owns a notification at a time.
func (l *CacheDeliveryLedger) MarkDelivered(ctx context.Context, notificationID string, ch models.Channel) error {
	chs, err := l.Delivered(ctx, notificationID)
	if err != nil {
		return err
	}
	if slices.Contains(chs, ch) {
		return nil
	}
	if err := l.cache.Set(ctx, deliveryKey(notificationID), append(chs, ch), l.ttl); err != nil {
		return fmt.Errorf("mark delivery %s: %w", notificationID, err)
	}
	return nil
}
