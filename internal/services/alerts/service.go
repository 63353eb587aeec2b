package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"EstateDesk/internal/domain/models"
	"EstateDesk/internal/domain/repository"
	xlogger "EstateDesk/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrAlertNotFound = errors.New("alert not found")
	ErrInvalidRange  = errors.New("minimum price must be less than maximum price")
)

// NotificationType is the queue message type for price alert notifications.
const NotificationType = "notify.price_alert"

// ListingSource returns the listings alerts are matched against, priced at
// the current simulated value.
type ListingSource interface {
	Listings(ctx context.Context) ([]models.Property, error)
}

type Service struct {
	store    repository.AlertStore
	queue    repository.NotificationQueue
	listings ListingSource
	logger   *xlogger.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithListings makes Create evaluate a new alert right away.
func WithListings(src ListingSource) Option {
	return func(s *Service) {
		s.listings = src
	}
}

func NewService(store repository.AlertStore, queue repository.NotificationQueue, logger *xlogger.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = xlogger.Nop()
	}
	s := &Service{
		store:  store,
		queue:  queue,
		logger: logger.With(xlogger.String("component", "price_alerts")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, req models.CreateAlertRequest) (models.PriceAlert, error) {
	if req.MinPrice >= req.MaxPrice {
		return models.PriceAlert{}, ErrInvalidRange
	}
	alert := models.PriceAlert{
		ID:                uuid.NewString(),
		UserID:            req.User,
		MinPrice:          req.MinPrice,
		MaxPrice:          req.MaxPrice,
		Bedrooms:          req.Bedrooms,
		Bathrooms:         req.Bathrooms,
		Location:          req.Location,
		Enabled:           true,
		CreatedAt:         s.now(),
		MatchedProperties: []string{},
	}
	if s.listings != nil {
		alert = s.evaluateNew(ctx, alert)
	}
	if err := s.store.Save(ctx, alert); err != nil {
		return models.PriceAlert{}, fmt.Errorf("save alert: %w", err)
	}
	s.logger.Info("price alert created",
		xlogger.String("alert_id", alert.ID),
		xlogger.String("user", alert.UserID),
	)
	return alert, nil
}

// evaluateNew matches a just created alert against the current listings. On
// any failure the alert is returned unevaluated and the next check picks it up.
func (s *Service) evaluateNew(ctx context.Context, alert models.PriceAlert) models.PriceAlert {
	props, err := s.listings.Listings(ctx)
	if err != nil {
		s.logger.Warn("initial alert evaluation skipped", xlogger.String("alert_id", alert.ID), xlogger.Error(err))
		return alert
	}
	updated, note := Evaluate(alert, props, s.now())
	if note == nil {
		return updated
	}
	note.ID = uuid.NewString()
	if err := s.queue.PublishMessage(ctx, NotificationType, note); err != nil {
		s.logger.Error("enqueue notification failed", xlogger.String("alert_id", alert.ID), xlogger.Error(err))
		return alert
	}
	return updated
}

func (s *Service) List(ctx context.Context, userID string) ([]models.PriceAlert, error) {
	return s.store.List(ctx, userID)
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.store.Delete(ctx, userID, id)
}

// SetEnabled switches an alert on or off.
func (s *Service) SetEnabled(ctx context.Context, userID, id string, enabled bool) (models.PriceAlert, error) {
	a, err := s.store.Update(ctx, userID, id, func(a *models.PriceAlert) {
		a.Enabled = enabled
	})
	if err != nil {
		return models.PriceAlert{}, err
	}
	return a, nil
}

// Check evaluates every enabled alert against properties, enqueues
// notifications and merges the new match sets into the stored alerts. It
// returns the number enqueued.
func (s *Service) Check(ctx context.Context, properties []models.Property) (int, error) {
	alerts, err := s.store.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list alerts: %w", err)
	}

	now := s.now()
	sent := 0
	var errs []error
	for _, a := range alerts {
		updated, note := Evaluate(a, properties, now)
		if !a.Enabled {
			continue
		}
		if note != nil {
			note.ID = uuid.NewString()
			if err := s.queue.PublishMessage(ctx, NotificationType, note); err != nil {
				s.logger.Error("enqueue notification failed", xlogger.String("alert_id", a.ID), xlogger.Error(err))
				errs = append(errs, err)
				// keep the previous state so the next batch retries
				continue
			}
			sent++
		} else if sameIDs(a.MatchedProperties, updated.MatchedProperties) {
			continue
		}
		// merge into the stored alert; a concurrent toggle or delete wins
		_, err := s.store.Update(ctx, a.UserID, a.ID, func(cur *models.PriceAlert) {
			cur.MatchedProperties = updated.MatchedProperties
			cur.LastNotified = updated.LastNotified
		})
		if err != nil && !errors.Is(err, ErrAlertNotFound) {
			errs = append(errs, err)
		}
	}

	if sent > 0 {
		s.logger.Info("price alerts triggered", xlogger.Int("count", sent))
	}
	return sent, errors.Join(errs...)
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
