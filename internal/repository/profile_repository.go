package repository

import (
	"context"

	"github.com/pklhub/pklhub-api/internal/cache"
	"github.com/pklhub/pklhub-api/internal/database/postgres"
	"github.com/pklhub/pklhub-api/internal/models"
	"github.com/pklhub/pklhub-api/internal/session"
)

// ProfileRepository is the profile store used by the session manager. Reads
// go through the in-memory cache; writes hit PostgreSQL and refresh or drop
// the cached entry so readers never see a stale row after a mutation.
type ProfileRepository struct {
	client *postgres.Client
	cache  *cache.ProfileCache
}

// NewProfileRepository creates a profile repository over a database client
// and its read cache
func NewProfileRepository(client *postgres.Client, profileCache *cache.ProfileCache) *ProfileRepository {
	return &ProfileRepository{
		client: client,
		cache:  profileCache,
	}
}

// GetProfile fetches a profile, preferring the cache
func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	return r.cache.Get(ctx, userID)
}

// InsertProfile provisions the profile row and seeds the cache with the
// persisted result
func (r *ProfileRepository) InsertProfile(ctx context.Context, profile *models.UserProfile) (*models.UserProfile, error) {
	created, err := r.client.InsertProfile(ctx, profile)
	if err != nil {
		return nil, err
	}
	r.cache.Set(created)
	return created, nil
}

// UpdateProfile applies a partial update and invalidates the cached entry.
// The next read loads the row as persisted, including any database-side
// normalization.
func (r *ProfileRepository) UpdateProfile(ctx context.Context, userID string, updates map[string]interface{}) error {
	if err := r.client.UpdateProfile(ctx, userID, updates); err != nil {
		return err
	}
	r.cache.Invalidate(userID)
	return nil
}

// Ensure ProfileRepository implements the session manager's store contract
var _ session.ProfileStore = (*ProfileRepository)(nil)
