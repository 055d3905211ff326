package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedLinkRepository_GetByCode(t *testing.T) {
	ctx := context.Background()
	db := NewLinkRepository(testDB.Pool)
	repo := NewCachedLinkRepository(db, testCache.Client, time.Minute, nil)

	t.Run("miss populates cache, second read hits", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		var hits, misses int
		repo.SetLookupHooks(func() { hits++ }, func() { misses++ })
		defer repo.SetLookupHooks(nil, nil)

		link := newLink("abc1234")
		require.NoError(t, repo.Create(ctx, link))

		first, err := repo.GetByCode(ctx, "abc1234")
		require.NoError(t, err)
		assert.Equal(t, link.ID, first.ID)
		assert.Equal(t, 0, hits)
		assert.Equal(t, 1, misses)

		exists, err := testCache.Client.Exists(ctx, "link:abc1234").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists, "miss populates the cache")

		second, err := repo.GetByCode(ctx, "abc1234")
		require.NoError(t, err)
		assert.Equal(t, link.ID, second.ID)
		assert.Equal(t, 1, hits)
		assert.Equal(t, 1, misses)
	})

	t.Run("cache hit keeps policy fields", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		var hits int
		repo.SetLookupHooks(func() { hits++ }, nil)
		defer repo.SetLookupHooks(nil, nil)

		expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		maxClicks := int64(5)
		link := newLink("abc1234")
		link.PasswordHash = strPtr("$2a$10$secret-hash")
		link.ExpiresAt = &expiry
		link.MaxClicks = &maxClicks
		link.Countries = []string{"DE", "US"}
		link.DeviceTypes = []string{"mobile"}
		require.NoError(t, repo.Create(ctx, link))

		// Warm the cache, then read again so the result comes from Redis.
		_, err := repo.GetByCode(ctx, "abc1234")
		require.NoError(t, err)

		cached, err := repo.GetByCode(ctx, "abc1234")
		require.NoError(t, err)
		require.Equal(t, 1, hits, "second read must be served from the cache")

		assert.True(t, cached.PasswordProtected(), "cache hit must still require the password")
		require.NotNil(t, cached.PasswordHash)
		assert.Equal(t, "$2a$10$secret-hash", *cached.PasswordHash)
		require.NotNil(t, cached.ExpiresAt)
		assert.True(t, expiry.Equal(*cached.ExpiresAt))
		require.NotNil(t, cached.MaxClicks)
		assert.Equal(t, maxClicks, *cached.MaxClicks)
		assert.Equal(t, []string{"DE", "US"}, cached.Countries)
		assert.Equal(t, []string{"mobile"}, cached.DeviceTypes)
	})

	t.Run("not found is not cached", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		_, err := repo.GetByCode(ctx, "missing")
		require.ErrorIs(t, err, ErrNotFound)

		exists, err := testCache.Client.Exists(ctx, "link:missing").Result()
		require.NoError(t, err)
		assert.Zero(t, exists)
	})

	t.Run("nil cache client degrades to store reads", func(t *testing.T) {
		testDB.Cleanup(ctx)

		uncached := NewCachedLinkRepository(db, nil, time.Minute, nil)
		link := newLink("abc1234")
		require.NoError(t, uncached.Create(ctx, link))

		found, err := uncached.GetByCode(ctx, "abc1234")
		require.NoError(t, err)
		assert.Equal(t, link.ID, found.ID)
	})
}

func TestCachedLinkRepository_GetByCodeFresh(t *testing.T) {
	ctx := context.Background()
	db := NewLinkRepository(testDB.Pool)
	repo := NewCachedLinkRepository(db, testCache.Client, time.Minute, nil)

	testDB.Cleanup(ctx)
	testCache.Cleanup(ctx)

	link := newLink("abc1234")
	require.NoError(t, repo.Create(ctx, link))

	// Warm the cache, then bump the counter behind its back.
	_, err := repo.GetByCode(ctx, "abc1234")
	require.NoError(t, err)
	require.NoError(t, db.IncrementClicks(ctx, link.ID, false))

	cached, err := repo.GetByCode(ctx, "abc1234")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cached.ClickCount, "cached copy lags the store")

	fresh, err := repo.GetByCodeFresh(ctx, "abc1234")
	require.NoError(t, err)
	assert.Equal(t, int64(1), fresh.ClickCount, "fresh read sees the authoritative counter")
}

func TestCachedLinkRepository_Invalidation(t *testing.T) {
	ctx := context.Background()
	db := NewLinkRepository(testDB.Pool)
	repo := NewCachedLinkRepository(db, testCache.Client, time.Minute, nil)

	t.Run("update invalidates code and alias entries", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		link := newLink("abc1234")
		link.CustomAlias = strPtr("my-alias")
		require.NoError(t, repo.Create(ctx, link))

		// Warm both entries.
		_, err := repo.GetByCode(ctx, "abc1234")
		require.NoError(t, err)
		_, err = repo.GetByCode(ctx, "my-alias")
		require.NoError(t, err)

		link.IsActive = false
		require.NoError(t, repo.Update(ctx, link))

		for _, key := range []string{"link:abc1234", "link:my-alias"} {
			exists, err := testCache.Client.Exists(ctx, key).Result()
			require.NoError(t, err)
			assert.Zero(t, exists, "stale entry %s must be deleted", key)
		}

		found, err := repo.GetByCode(ctx, "abc1234")
		require.NoError(t, err)
		assert.False(t, found.IsActive, "lookup after update sees the new state")
	})

	t.Run("delete invalidates code and alias entries", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		link := newLink("abc1234")
		link.CustomAlias = strPtr("my-alias")
		require.NoError(t, repo.Create(ctx, link))

		_, err := repo.GetByCode(ctx, "my-alias")
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, "abc1234"))

		for _, key := range []string{"link:abc1234", "link:my-alias"} {
			exists, err := testCache.Client.Exists(ctx, key).Result()
			require.NoError(t, err)
			assert.Zero(t, exists)
		}

		_, err = repo.GetByCode(ctx, "my-alias")
		require.ErrorIs(t, err, ErrNotFound)
	})
}
