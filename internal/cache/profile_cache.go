package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pklhub/pklhub-api/internal/models"
	"github.com/pklhub/pklhub-api/pkg/logger"
	"github.com/pklhub/pklhub-api/pkg/metrics"
	"go.uber.org/zap"
)

// ProfileSource defines where profiles are loaded from on a cache miss
type ProfileSource interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

const (
	profileKeyPrefix = "profile:id:"
	cacheCheckPeriod = 60 * time.Second
)

// ProfileCache is a read-through TTL cache in front of the profile store.
// Writers must invalidate or overwrite entries after a mutation, so a cached
// profile is never older than the last write plus the TTL.
type ProfileCache struct {
	cache  *gocache.Cache
	source ProfileSource
	ttl    time.Duration
}

// NewProfileCache creates a profile cache with the given TTL in seconds
func NewProfileCache(source ProfileSource, ttlSeconds int) *ProfileCache {
	ttl := time.Duration(ttlSeconds) * time.Second
	return &ProfileCache{
		cache:  gocache.New(ttl, cacheCheckPeriod),
		source: source,
		ttl:    ttl,
	}
}

// Get returns the profile for a user, loading it from the source on a miss.
// The returned value is a copy, safe for the caller to mutate.
func (pc *ProfileCache) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	key := profileKeyPrefix + userID

	if data, found := pc.cache.Get(key); found {
		if profile, ok := data.(*models.UserProfile); ok {
			metrics.CacheHits.WithLabelValues("profile").Inc()
			return profile.Clone(), nil
		}
		// Wrong type means a corrupted entry, drop it and fall through
		logger.Error("Invalid cache data type", zap.String("user_id", userID))
		pc.cache.Delete(key)
	}

	metrics.CacheMisses.WithLabelValues("profile").Inc()

	profile, err := pc.source.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	pc.cache.Set(key, profile.Clone(), pc.ttl)
	return profile, nil
}

// Set overwrites the cached entry after a successful write
func (pc *ProfileCache) Set(profile *models.UserProfile) {
	if profile == nil {
		return
	}
	pc.cache.Set(profileKeyPrefix+profile.ID, profile.Clone(), pc.ttl)
}

// Invalidate drops the cached entry for a user
func (pc *ProfileCache) Invalidate(userID string) {
	pc.cache.Delete(profileKeyPrefix + userID)
}

// Clear clears the entire cache
func (pc *ProfileCache) Clear() {
	pc.cache.Flush()
	logger.Info("Profile cache cleared")
}
