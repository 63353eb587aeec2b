package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"EstateDesk/internal/domain/models"
	"EstateDesk/internal/domain/repository"
	"EstateDesk/internal/services/recommendation"
	"EstateDesk/pkg/cache"
)

var _ repository.PreferenceStore = (*CachePreferenceStore)(nil)

// CachePreferenceStore keeps user preferences in the key/value cache under
// prefs:<user>.
type CachePreferenceStore struct {
	cache cache.Service
	ttl   time.Duration
}

func NewCachePreferenceStore(c cache.Service, ttl time.Duration) *CachePreferenceStore {
	return &CachePreferenceStore{cache: c, ttl: ttl}
}

func preferenceKey(userID string) string {
	return cache.Key("prefs", userID)
}

func (s *CachePreferenceStore) Get(ctx context.Context, userID string) (models.UserPreferences, error) {
	prefs, err := cache.GetTyped[models.UserPreferences](ctx, s.cache, preferenceKey(userID))
	if errors.Is(err, cache.ErrCacheMiss) {
		return recommendation.DefaultPreferences(), nil
	}
	if err != nil {
		return models.UserPreferences{}, fmt.Errorf("get preferences %s: %w", userID, err)
	}
	return prefs, nil
}

func (s *CachePreferenceStore) Save(ctx context.Context, userID string, prefs models.UserPreferences) error {
	if err := s.cache.Set(ctx, preferenceKey(userID), prefs, s.ttl); err != nil {
		return fmt.Errorf("save preferences %s: %w", userID, err)
	}
	return nil
}
