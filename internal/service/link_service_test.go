package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shortloop/gateway/internal/model"
	"github.com/shortloop/gateway/internal/repository"
	"github.com/shortloop/gateway/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testDB    *testutil.TestDB
	testCache *testutil.TestCache
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	testDB, err = testutil.SetupTestDB(ctx)
	if err != nil {
		panic("failed to setup test database: " + err.Error())
	}

	testCache, err = testutil.SetupTestCache(ctx)
	if err != nil {
		panic("failed to setup test cache: " + err.Error())
	}

	code := m.Run()

	testCache.Teardown(ctx)
	testDB.Teardown(ctx)
	os.Exit(code)
}

func newTestLinkService() *LinkService {
	db := repository.NewLinkRepository(testDB.Pool)
	repo := repository.NewCachedLinkRepository(db, testCache.Client, time.Minute, nil)
	clicks := repository.NewClickRepository(testDB.Pool)
	generator := NewShortCodeGenerator(7, 3, 30, UnambiguousChars)
	checker := NewURLChecker(false)
	return NewLinkService(repo, db, clicks, generator, checker, "http://sho.rt", 10)
}

func TestLinkService_CreateLink(t *testing.T) {
	ctx := context.Background()
	service := newTestLinkService()
	owner := uuid.New()

	t.Run("creates link with generated code", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		resp, err := service.CreateLink(ctx, owner, &model.CreateLinkRequest{
			URL: "https://example.com/very/long/url",
		})
		require.NoError(t, err)

		assert.Len(t, resp.ShortCode, 7)
		assert.Equal(t, "http://sho.rt/"+resp.ShortCode, resp.ShortURL)
		assert.Empty(t, resp.ExpiresAt)
		assert.Empty(t, resp.Warnings)
	})

	t.Run("creates link with custom alias", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		resp, err := service.CreateLink(ctx, owner, &model.CreateLinkRequest{
			URL:         "https://example.com/page",
			CustomAlias: "my-campaign",
		})
		require.NoError(t, err)
		assert.Equal(t, "my-campaign", resp.ShortCode)
		assert.Equal(t, "http://sho.rt/my-campaign", resp.ShortURL)
	})

	t.Run("rejects taken alias", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		_, err := service.CreateLink(ctx, owner, &model.CreateLinkRequest{
			URL:         "https://example.com/first",
			CustomAlias: "taken",
		})
		require.NoError(t, err)

		_, err = service.CreateLink(ctx, owner, &model.CreateLinkRequest{
			URL:         "https://example.com/second",
			CustomAlias: "taken",
		})
		require.ErrorIs(t, err, ErrCodeExists)
	})

	t.Run("rejects alias matching an existing code", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		first, err := service.CreateLink(ctx, owner, &model.CreateLinkRequest{
			URL: "https://example.com/first",
		})
		require.NoError(t, err)

		_, err = service.CreateLink(ctx, owner, &model.CreateLinkRequest{
			URL:         "https://example.com/second",
			CustomAlias: first.ShortCode,
		})
		require.ErrorIs(t, err, ErrCodeExists)
	})

	t.Run("rejects invalid destination", func(t *testing.T) {
		_, err := service.CreateLink(ctx, owner, &model.CreateLinkRequest{
			URL: "javascript:alert(1)",
		})
		require.ErrorIs(t, err, ErrInvalidURL)
	})

	t.Run("rejects invalid alias", func(t *testing.T) {
		_, err := service.CreateLink(ctx, owner, &model.CreateLinkRequest{
			URL:         "https://example.com",
			CustomAlias: "a",
		})
		require.ErrorIs(t, err, ErrInvalidAlias)
	})

	t.Run("rejects bad redirect status", func(t *testing.T) {
		_, err := service.CreateLink(ctx, owner, &model.CreateLinkRequest{
			URL:            "https://example.com",
			RedirectStatus: 308,
		})
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("rejects unknown device type", func(t *testing.T) {
		_, err := service.CreateLink(ctx, owner, &model.CreateLinkRequest{
			URL:         "https://example.com",
			DeviceTypes: []string{"toaster"},
		})
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("expiry and password are applied", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		resp, err := service.CreateLink(ctx, owner, &model.CreateLinkRequest{
			URL:       "https://example.com",
			ExpiresIn: 7,
			Password:  "opensesame",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.ExpiresAt)

		stored, err := service.repo.GetByCodeFresh(ctx, resp.ShortCode)
		require.NoError(t, err)
		assert.True(t, stored.PasswordProtected())
		require.NotNil(t, stored.ExpiresAt)
		assert.WithinDuration(t, time.Now().AddDate(0, 0, 7), *stored.ExpiresAt, time.Minute)
	})

	t.Run("passes destination warnings through", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		resp, err := service.CreateLink(ctx, owner, &model.CreateLinkRequest{
			URL: "http://example.com/insecure",
		})
		require.NoError(t, err)
		assert.Contains(t, resp.Warnings, "destination uses insecure http")
	})
}

func TestLinkService_GetLink(t *testing.T) {
	ctx := context.Background()
	service := newTestLinkService()
	owner := uuid.New()

	testDB.Cleanup(ctx)
	testCache.Cleanup(ctx)

	created, err := service.CreateLink(ctx, owner, &model.CreateLinkRequest{
		URL: "https://example.com/page",
	})
	require.NoError(t, err)

	t.Run("owner sees the link", func(t *testing.T) {
		resp, err := service.GetLink(ctx, owner, created.ShortCode)
		require.NoError(t, err)
		assert.Equal(t, created.ShortCode, resp.ShortCode)
		assert.Equal(t, "https://example.com/page", resp.OriginalURL)
		assert.True(t, resp.IsActive)
	})

	t.Run("foreign owner gets not found", func(t *testing.T) {
		_, err := service.GetLink(ctx, uuid.New(), created.ShortCode)
		require.ErrorIs(t, err, ErrLinkNotFound)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := service.GetLink(ctx, owner, "missing")
		require.ErrorIs(t, err, ErrLinkNotFound)
	})
}

func TestLinkService_UpdateLink(t *testing.T) {
	ctx := context.Background()
	service := newTestLinkService()
	owner := uuid.New()

	testDB.Cleanup(ctx)
	testCache.Cleanup(ctx)

	created, err := service.CreateLink(ctx, owner, &model.CreateLinkRequest{
		URL: "https://example.com/old",
	})
	require.NoError(t, err)

	t.Run("partial update touches only given fields", func(t *testing.T) {
		newURL := "https://example.com/new"
		resp, err := service.UpdateLink(ctx, owner, created.ShortCode, &model.UpdateLinkRequest{
			URL: &newURL,
		})
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/new", resp.OriginalURL)
		assert.True(t, resp.IsActive, "untouched fields keep their value")
	})

	t.Run("update is visible on the next resolution lookup", func(t *testing.T) {
		// Warm the cache like a redirect would.
		_, err := service.repo.GetByCode(ctx, created.ShortCode)
		require.NoError(t, err)

		inactive := false
		_, err = service.UpdateLink(ctx, owner, created.ShortCode, &model.UpdateLinkRequest{
			IsActive: &inactive,
		})
		require.NoError(t, err)

		link, err := service.repo.GetByCode(ctx, created.ShortCode)
		require.NoError(t, err)
		assert.False(t, link.IsActive, "stale cache entry must not survive the update")
	})

	t.Run("foreign owner cannot update", func(t *testing.T) {
		active := true
		_, err := service.UpdateLink(ctx, uuid.New(), created.ShortCode, &model.UpdateLinkRequest{
			IsActive: &active,
		})
		require.ErrorIs(t, err, ErrLinkNotFound)
	})
}

func TestLinkService_DeactivateAndDelete(t *testing.T) {
	ctx := context.Background()
	service := newTestLinkService()
	owner := uuid.New()

	t.Run("deactivate keeps the record", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		created, err := service.CreateLink(ctx, owner, &model.CreateLinkRequest{
			URL: "https://example.com",
		})
		require.NoError(t, err)

		require.NoError(t, service.DeactivateLink(ctx, owner, created.ShortCode))

		resp, err := service.GetLink(ctx, owner, created.ShortCode)
		require.NoError(t, err)
		assert.False(t, resp.IsActive)
	})

	t.Run("delete removes the record", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		created, err := service.CreateLink(ctx, owner, &model.CreateLinkRequest{
			URL: "https://example.com",
		})
		require.NoError(t, err)

		require.NoError(t, service.DeleteLink(ctx, owner, created.ShortCode))

		_, err = service.GetLink(ctx, owner, created.ShortCode)
		require.ErrorIs(t, err, ErrLinkNotFound)
	})

	t.Run("foreign owner cannot delete", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		created, err := service.CreateLink(ctx, owner, &model.CreateLinkRequest{
			URL: "https://example.com",
		})
		require.NoError(t, err)

		err = service.DeleteLink(ctx, uuid.New(), created.ShortCode)
		require.ErrorIs(t, err, ErrLinkNotFound)
	})
}

func TestLinkService_Analytics(t *testing.T) {
	ctx := context.Background()
	service := newTestLinkService()
	owner := uuid.New()

	testDB.Cleanup(ctx)
	testCache.Cleanup(ctx)

	created, err := service.CreateLink(ctx, owner, &model.CreateLinkRequest{
		URL: "https://example.com",
	})
	require.NoError(t, err)

	link, err := service.repo.GetByCodeFresh(ctx, created.ShortCode)
	require.NoError(t, err)

	clicks := repository.NewClickRepository(testDB.Pool)
	for i, device := range []string{model.DeviceMobile, model.DeviceDesktop} {
		click := &model.Click{
			ID:         uuid.New(),
			LinkID:     link.ID,
			ClickedAt:  time.Now(),
			IPHash:     "hash",
			Country:    "DE",
			DeviceType: device,
			IsUnique:   i == 0,
		}
		require.NoError(t, clicks.Insert(ctx, click))
	}

	resp, err := service.Analytics(ctx, owner, created.ShortCode, 30)
	require.NoError(t, err)

	assert.Equal(t, created.ShortCode, resp.ShortCode)
	assert.Equal(t, int64(2), resp.Summary.TotalClicks)
	assert.Equal(t, int64(1), resp.Summary.UniqueClicks)
	require.Len(t, resp.Daily, 1)
	assert.Equal(t, int64(2), resp.Daily[0].Clicks)
	assert.Len(t, resp.Devices, 2)
	require.Len(t, resp.Countries, 1)
	assert.Equal(t, "DE", resp.Countries[0].Key)

	t.Run("foreign owner gets not found", func(t *testing.T) {
		_, err := service.Analytics(ctx, uuid.New(), created.ShortCode, 30)
		require.ErrorIs(t, err, ErrLinkNotFound)
	})
}
