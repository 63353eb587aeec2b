package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"EstateDesk/internal/domain/models"
	"EstateDesk/internal/domain/repository"
	"EstateDesk/internal/services/alerts"
	"EstateDesk/pkg/cache"
)

var _ repository.AlertStore = (*CacheAlertStore)(nil)

const (
	alertIndexKey  = "alerts:index"
	alertLockTTL   = 5 * time.Second
	alertLockTries = 50
	alertLockWait  = 20 * time.Millisecond
)

// CacheAlertStore keeps each user's alerts as one list under alerts:<user>
// and the set of users with alerts under alerts:index. Writers serialise on
// a cache lock per key so several instances can share a Redis backend.
type CacheAlertStore struct {
	cache cache.Service
	ttl   time.Duration
}

func NewCacheAlertStore(c cache.Service, ttl time.Duration) *CacheAlertStore {
	return &CacheAlertStore{cache: c, ttl: ttl}
}

func alertKey(userID string) string {
	return cache.Key("alerts", userID)
}

func (s *CacheAlertStore) List(ctx context.Context, userID string) ([]models.PriceAlert, error) {
	if userID != "" {
		return s.userAlerts(ctx, userID)
	}
	users, err := s.users(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.PriceAlert, 0)
	for _, u := range users {
		list, err := s.userAlerts(ctx, u)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

// Save inserts the alert or replaces the one with the same id.
func (s *CacheAlertStore) Save(ctx context.Context, alert models.PriceAlert) error {
	if alert.UserID == "" {
		return fmt.Errorf("save alert %s: user id empty", alert.ID)
	}
	key := alertKey(alert.UserID)
	err := s.withLock(ctx, key, func() error {
		list, err := s.userAlerts(ctx, alert.UserID)
		if err != nil {
			return err
		}
		replaced := false
		for i := range list {
			if list[i].ID == alert.ID {
				list[i] = alert
				replaced = true
				break
			}
		}
		if !replaced {
			list = append(list, alert)
		}
		return s.cache.Set(ctx, key, list, s.ttl)
	})
	if err != nil {
		return fmt.Errorf("save alert %s: %w", alert.ID, err)
	}
	return s.index(ctx, alert.UserID, true)
}

// Update returns alerts.ErrAlertNotFound when the alert is gone.
func (s *CacheAlertStore) Update(ctx context.Context, userID, id string, fn func(*models.PriceAlert)) (models.PriceAlert, error) {
	var out models.PriceAlert
	key := alertKey(userID)
	err := s.withLock(ctx, key, func() error {
		list, err := s.userAlerts(ctx, userID)
		if err != nil {
			return err
		}
		for i := range list {
			if list[i].ID != id {
				continue
			}
			fn(&list[i])
			list[i].ID, list[i].UserID = id, userID
			out = list[i]
			return s.cache.Set(ctx, key, list, s.ttl)
		}
		return alerts.ErrAlertNotFound
	})
	if err != nil {
		return models.PriceAlert{}, fmt.Errorf("update alert %s: %w", id, err)
	}
	return out, nil
}

// Delete returns alerts.ErrAlertNotFound when the user has no such alert.
func (s *CacheAlertStore) Delete(ctx context.Context, userID, id string) error {
	key := alertKey(userID)
	empty := false
	err := s.withLock(ctx, key, func() error {
		list, err := s.userAlerts(ctx, userID)
		if err != nil {
			return err
		}
		kept := list[:0]
		for _, a := range list {
			if a.ID != id {
				kept = append(kept, a)
			}
		}
		if len(kept) == len(list) {
			return alerts.ErrAlertNotFound
		}
		if len(kept) == 0 {
			empty = true
			return s.cache.Delete(ctx, key)
		}
		return s.cache.Set(ctx, key, kept, s.ttl)
	})
	if err != nil {
		return fmt.Errorf("delete alert %s: %w", id, err)
	}
	if empty {
		return s.index(ctx, userID, false)
	}
	return nil
}

func (s *CacheAlertStore) userAlerts(ctx context.Context, userID string) ([]models.PriceAlert, error) {
	list, err := cache.GetTyped[[]models.PriceAlert](ctx, s.cache, alertKey(userID))
	if errors.Is(err, cache.ErrCacheMiss) {
		return []models.PriceAlert{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load alerts %s: %w", userID, err)
	}
	return list, nil
}

func (s *CacheAlertStore) users(ctx context.Context) ([]string, error) {
	users, err := cache.GetTyped[[]string](ctx, s.cache, alertIndexKey)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load alert index: %w", err)
	}
	return users, nil
}

func (s *CacheAlertStore) index(ctx context.Context, userID string, present bool) error {
	return s.withLock(ctx, alertIndexKey, func() error {
		users, err := s.users(ctx)
		if err != nil {
			return err
		}
		set := make(map[string]struct{}, len(users)+1)
		for _, u := range users {
			set[u] = struct{}{}
		}
		_, had := set[userID]
		if had == present {
			return nil
		}
		if present {
			set[userID] = struct{}{}
		} else {
			delete(set, userID)
		}
		out := make([]string, 0, len(set))
		for u := range set {
			out = append(out, u)
		}
		sort.Strings(out)
		return s.cache.Set(ctx, alertIndexKey, out, s.ttl)
	})
}

func (s *CacheAlertStore) withLock(ctx context.Context, key string, fn func() error) error {
	lock := cache.Key("lock", key)
	for i := 0; i < alertLockTries; i++ {
		ok, err := s.cache.TryLock(ctx, lock, alertLockTTL)
		if err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			defer func() { _ = s.cache.Unlock(context.WithoutCancel(ctx), lock) }()
			return fn()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(alertLockWait):
		}
	}
	return fmt.Errorf("lock %s: busy", key)
}
