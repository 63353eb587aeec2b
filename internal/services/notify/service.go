package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"EstateDesk/internal/domain/models"
	"EstateDesk/internal/domain/repository"
	xlogger "EstateDesk/pkg/logger"
	"EstateDesk/pkg/util"

	"github.com/google/uuid"
)

// MaxDeliveryLogs caps the in-memory delivery history.
const MaxDeliveryLogs = 100

// channelOrder is the order channels are attempted in.
var channelOrder = []models.Channel{models.ChannelEmail, models.ChannelSMS, models.ChannelWebhook}

// DefaultPreferences mirrors the product defaults: everything disabled,
// email for critical and high, sms for critical only.
func DefaultPreferences() map[models.Channel]models.ChannelPreference {
	return map[models.Channel]models.ChannelPreference{
		models.ChannelEmail:   {Priorities: []models.Priority{models.PriorityCritical, models.PriorityHigh}},
		models.ChannelSMS:     {Priorities: []models.Priority{models.PriorityCritical}},
		models.ChannelWebhook: {Priorities: []models.Priority{models.PriorityCritical, models.PriorityHigh}},
	}
}

// Service fans notifications out to the enabled channels and keeps a bounded
// delivery log, newest first.
type Service struct {
	notifier repository.Notifier
	ledger   repository.DeliveryLedger
	logger   *xlogger.Logger
	now      func() time.Time

	mu    sync.RWMutex
	prefs map[models.Channel]models.ChannelPreference
	logs  []models.DeliveryLog
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPreferences overrides the defaults for the given channels.
func WithPreferences(prefs map[models.Channel]models.ChannelPreference) Option {
	return func(s *Service) {
		for ch, p := range prefs {
			s.prefs[ch] = p
		}
	}
}

// WithLedger makes Deliver skip channels that already accepted a
// notification id.
func WithLedger(l repository.DeliveryLedger) Option {
	return func(s *Service) {
		s.ledger = l
	}
}

func NewService(notifier repository.Notifier, logger *xlogger.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = xlogger.Nop()
	}
	s := &Service{
		notifier: notifier,
		logger:   logger.With(xlogger.String("component", "notify")),
		now:      time.Now,
		prefs:    DefaultPreferences(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type target struct {
	ch   models.Channel
	pref models.ChannelPreference
}

// Deliver sends n on every channel whose preference accepts its priority and
// that has not accepted n before. Every attempt is logged. The returned error
// joins the failed attempts.
func (s *Service) Deliver(ctx context.Context, n models.Notification) ([]models.DeliveryLog, error) {
	s.mu.RLock()
	targets := make([]target, 0, len(channelOrder))
	for _, ch := range channelOrder {
		if p, ok := s.prefs[ch]; ok && p.Accepts(n.Priority) {
			targets = append(targets, target{ch: ch, pref: p})
		}
	}
	s.mu.RUnlock()

	done := s.delivered(ctx, n.ID)
	var (
		attempts []models.DeliveryLog
		errs     []error
	)
	for _, t := range targets {
		if done[t.ch] {
			continue
		}
		entry := models.DeliveryLog{
			ID:             uuid.NewString(),
			NotificationID: n.ID,
			Channel:        t.ch,
			Destination:    maskDestination(t.ch, t.pref.Destination),
			Timestamp:      s.now(),
			Status:         models.DeliverySent,
		}
		if err := s.notifier.Deliver(ctx, t.ch, t.pref.Destination, n); err != nil {
			entry.Status = models.DeliveryFailed
			entry.ErrorMessage = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", t.ch, err))
			s.logger.Warn("notification delivery failed",
				xlogger.String("channel", string(t.ch)),
				xlogger.String("notification_id", n.ID),
				xlogger.Error(err),
			)
		} else {
			s.markDelivered(ctx, n.ID, t.ch)
		}
		attempts = append(attempts, entry)
	}

	if len(attempts) > 0 {
		s.record(attempts)
	}
	return attempts, errors.Join(errs...)
}

func (s *Service) delivered(ctx context.Context, id string) map[models.Channel]bool {
	if s.ledger == nil || id == "" {
		return nil
	}
	chs, err := s.ledger.Delivered(ctx, id)
	if err != nil {
		// at-least-once: resend rather than drop
		s.logger.Warn("delivery ledger read failed", xlogger.String("notification_id", id), xlogger.Error(err))
		return nil
	}
	out := make(map[models.Channel]bool, len(chs))
	for _, ch := range chs {
		out[ch] = true
	}
	return out
}

func (s *Service) markDelivered(ctx context.Context, id string, ch models.Channel) {
	if s.ledger == nil || id == "" {
		return
	}
	if err := s.ledger.MarkDelivered(ctx, id, ch); err != nil {
		s.logger.Warn("delivery ledger write failed",
			xlogger.String("notification_id", id),
			xlogger.String("channel", string(ch)),
			xlogger.Error(err),
		)
	}
}

func (s *Service) record(attempts []models.DeliveryLog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]models.DeliveryLog, 0, len(attempts)+len(s.logs))
	for i := len(attempts) - 1; i >= 0; i-- {
		merged = append(merged, attempts[i])
	}
	merged = append(merged, s.logs...)
	if len(merged) > MaxDeliveryLogs {
		merged = merged[:MaxDeliveryLogs]
	}
	s.logs = merged
}

// Logs returns the delivery history, newest first.
func (s *Service) Logs() []models.DeliveryLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DeliveryLog, len(s.logs))
	copy(out, s.logs)
	return out
}

func (s *Service) ClearLogs() {
	s.mu.Lock()
	s.logs = nil
	s.mu.Unlock()
}

func (s *Service) Preferences() map[models.Channel]models.ChannelPreference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[models.Channel]models.ChannelPreference, len(s.prefs))
	for ch, p := range s.prefs {
		out[ch] = p
	}
	return out
}

// MaskedPreferences is Preferences with destinations obfuscated for display.
func (s *Service) MaskedPreferences() map[models.Channel]models.ChannelPreference {
	out := s.Preferences()
	for ch, p := range out {
		if p.Destination != "" {
			p.Destination = maskDestination(ch, p.Destination)
			out[ch] = p
		}
	}
	return out
}

func (s *Service) UpdatePreference(ch models.Channel, pref models.ChannelPreference) {
	s.mu.Lock()
	s.prefs[ch] = pref
	s.mu.Unlock()
}

func maskDestination(ch models.Channel, dest string) string {
	switch ch {
	case models.ChannelEmail:
		return util.MaskEmail(dest)
	case models.ChannelSMS:
		return util.MaskTail(dest, 4)
	case models.ChannelWebhook:
		u, err := url.Parse(dest)
		if err != nil || u.Host == "" {
			return util.MaskTail(dest, 4)
		}
		return u.Scheme + "://" + u.Host + "/***"
	}
	return util.MaskTail(dest, 4)
}
