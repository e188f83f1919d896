package cache_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pklhub/pklhub-api/internal/cache"
	"github.com/pklhub/pklhub-api/internal/models"
	"github.com/pklhub/pklhub-api/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = logger.Initialize(logger.Config{Level: "error", Environment: "development"})
}

type countingSource struct {
	calls   int
	profile *models.UserProfile
	err     error
}

func (s *countingSource) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.profile.Clone(), nil
}

func TestProfileCache_ReadThrough(t *testing.T) {
	source := &countingSource{profile: &models.UserProfile{ID: "u1", Name: "Ani"}}
	pc := cache.NewProfileCache(source, 300)

	first, err := pc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ani", first.Name)
	assert.Equal(t, 1, source.calls)

	second, err := pc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ani", second.Name)
	assert.Equal(t, 1, source.calls, "second read should be served from cache")
}

func TestProfileCache_ReturnsCopies(t *testing.T) {
	source := &countingSource{profile: &models.UserProfile{ID: "u1", Name: "Ani"}}
	pc := cache.NewProfileCache(source, 300)

	first, err := pc.Get(context.Background(), "u1")
	require.NoError(t, err)
	first.Name = "mutated"

	second, err := pc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ani", second.Name)
}

func TestProfileCache_InvalidateForcesReload(t *testing.T) {
	source := &countingSource{profile: &models.UserProfile{ID: "u1", Name: "Ani"}}
	pc := cache.NewProfileCache(source, 300)

	_, err := pc.Get(context.Background(), "u1")
	require.NoError(t, err)

	source.profile.Name = "Budi"
	pc.Invalidate("u1")

	reloaded, err := pc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Budi", reloaded.Name)
	assert.Equal(t, 2, source.calls)
}

func TestProfileCache_SetOverwrites(t *testing.T) {
	source := &countingSource{profile: &models.UserProfile{ID: "u1", Name: "Ani"}}
	pc := cache.NewProfileCache(source, 300)

	pc.Set(&models.UserProfile{ID: "u1", Name: "Citra"})

	got, err := pc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Citra", got.Name)
	assert.Equal(t, 0, source.calls)
}

func TestProfileCache_SourceErrorNotCached(t *testing.T) {
	source := &countingSource{err: errors.New("db down")}
	pc := cache.NewProfileCache(source, 300)

	_, err := pc.Get(context.Background(), "u1")
	require.Error(t, err)

	source.err = nil
	source.profile = &models.UserProfile{ID: "u1", Name: "Ani"}

	got, err := pc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ani", got.Name)
}
