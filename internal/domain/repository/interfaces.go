package repository

import (
	"context"
	"errors"

	"EstateDesk/internal/domain/models"
)

var ErrPropertyNotFound = errors.New("property not found")

// PropertyStore serves the listing catalogue. Returned properties carry no
// compliance flags; those are always derived.
type PropertyStore interface {
	List(ctx context.Context) ([]models.Property, error)
	Get(ctx context.Context, id string) (models.Property, error)
	// Portfolio returns the properties held by userID.
	Portfolio(ctx context.Context, userID string) ([]models.Property, error)
}

type PreferenceStore interface {
	// Get returns the stored preferences or the defaults when none exist.
	Get(ctx context.Context, userID string) (models.UserPreferences, error)
	Save(ctx context.Context, userID string, prefs models.UserPreferences) error
}

type AlertStore interface {
	// List returns alerts for userID, or every alert when userID is empty.
	List(ctx context.Context, userID string) ([]models.PriceAlert, error)
	Save(ctx context.Context, alert models.PriceAlert) error
	// Update applies fn to the stored alert under the store lock and returns
	// the result. A missing alert is not recreated.
	Update(ctx context.Context, userID, id string, fn func(*models.PriceAlert)) (models.PriceAlert, error)
	Delete(ctx context.Context, userID, id string) error
}

type UpdatePublisher interface {
	Publish(ctx context.Context, u *models.MarketUpdate) error
	PublishBatch(ctx context.Context, updates []*models.MarketUpdate) error
	Close() error
}

type UpdateStorage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, u *models.MarketUpdate) error
	StoreBatch(ctx context.Context, updates []*models.MarketUpdate) error
	Health(ctx context.Context) error
	Close() error
}

type SnapshotArchive interface {
	Archive(ctx context.Context, snapshot models.MarketSnapshot) error
	Close() error
}

// Notifier delivers a notification on one channel.
type Notifier interface {
	Deliver(ctx context.Context, channel models.Channel, destination string, n models.Notification) error
}

// DeliveryLedger remembers which channels already accepted a notification so
// a retried delivery skips them.
type DeliveryLedger interface {
	Delivered(ctx context.Context, notificationID string) ([]models.Channel, error)
	MarkDelivered(ctx context.Context, notificationID string, ch models.Channel) error
}

// NotificationQueue enqueues asynchronous notification work.
type NotificationQueue interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

type Metrics interface {
	RecordMessageSent(backend, key string)
	RecordError(kind string)
	RecordLastPrice(key string, price float64)
	RecordLatency(op string, seconds float64)
}
