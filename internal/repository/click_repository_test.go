package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shortloop/gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClick(linkID uuid.UUID, ipHash string) *model.Click {
	return &model.Click{
		ID:         uuid.New(),
		LinkID:     linkID,
		ClickedAt:  time.Now(),
		IPHash:     ipHash,
		DeviceType: model.DeviceDesktop,
	}
}

func TestClickRepository_Insert(t *testing.T) {
	ctx := context.Background()
	links := NewLinkRepository(testDB.Pool)
	clicks := NewClickRepository(testDB.Pool)

	testDB.Cleanup(ctx)
	link := newLink("abc1234")
	require.NoError(t, links.Create(ctx, link))

	click := newClick(link.ID, "hash-1")
	click.Country = "DE"
	click.Browser = "Firefox"
	click.OS = "Linux"
	click.IsUnique = true
	require.NoError(t, clicks.Insert(ctx, click))

	var count int
	testDB.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM clicks WHERE link_id = $1", link.ID).Scan(&count)
	assert.Equal(t, 1, count)

	t.Run("error - unknown link id", func(t *testing.T) {
		err := clicks.Insert(ctx, newClick(uuid.New(), "hash-x"))
		require.Error(t, err, "clicks require an existing link")
	})
}

func TestClickRepository_SeenWithin(t *testing.T) {
	ctx := context.Background()
	links := NewLinkRepository(testDB.Pool)
	clicks := NewClickRepository(testDB.Pool)

	testDB.Cleanup(ctx)
	link := newLink("abc1234")
	require.NoError(t, links.Create(ctx, link))

	old := newClick(link.ID, "hash-old")
	old.ClickedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, clicks.Insert(ctx, old))

	recent := newClick(link.ID, "hash-recent")
	require.NoError(t, clicks.Insert(ctx, recent))

	t.Run("recent hash inside window", func(t *testing.T) {
		seen, err := clicks.SeenWithin(ctx, link.ID, "hash-recent", 24*time.Hour)
		require.NoError(t, err)
		assert.True(t, seen)
	})

	t.Run("old hash outside window", func(t *testing.T) {
		seen, err := clicks.SeenWithin(ctx, link.ID, "hash-old", 24*time.Hour)
		require.NoError(t, err)
		assert.False(t, seen)
	})

	t.Run("unknown hash", func(t *testing.T) {
		seen, err := clicks.SeenWithin(ctx, link.ID, "hash-never", 24*time.Hour)
		require.NoError(t, err)
		assert.False(t, seen)
	})

	t.Run("same hash on another link", func(t *testing.T) {
		other := newLink("other11")
		require.NoError(t, links.Create(ctx, other))

		seen, err := clicks.SeenWithin(ctx, other.ID, "hash-recent", 24*time.Hour)
		require.NoError(t, err)
		assert.False(t, seen, "uniqueness is per link")
	})
}

func TestClickRepository_Stats(t *testing.T) {
	ctx := context.Background()
	links := NewLinkRepository(testDB.Pool)
	clicks := NewClickRepository(testDB.Pool)

	testDB.Cleanup(ctx)
	link := newLink("abc1234")
	require.NoError(t, links.Create(ctx, link))

	human1 := newClick(link.ID, "h1")
	human1.IsUnique = true
	human2 := newClick(link.ID, "h1")
	bot := newClick(link.ID, "b1")
	bot.IsBot = true
	bot.DeviceType = model.DeviceBot
	for _, c := range []*model.Click{human1, human2, bot} {
		require.NoError(t, clicks.Insert(ctx, c))
	}

	stats, err := clicks.Stats(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalClicks)
	assert.Equal(t, int64(1), stats.UniqueClicks)
	assert.Equal(t, int64(2), stats.HumanClicks)
	assert.Equal(t, int64(1), stats.BotClicks)

	t.Run("no clicks yields zeroes", func(t *testing.T) {
		empty := newLink("empty11")
		require.NoError(t, links.Create(ctx, empty))

		stats, err := clicks.Stats(ctx, empty.ID)
		require.NoError(t, err)
		assert.Zero(t, stats.TotalClicks)
	})
}

func TestClickRepository_Daily(t *testing.T) {
	ctx := context.Background()
	links := NewLinkRepository(testDB.Pool)
	clicks := NewClickRepository(testDB.Pool)

	testDB.Cleanup(ctx)
	link := newLink("abc1234")
	require.NoError(t, links.Create(ctx, link))

	today1 := newClick(link.ID, "h1")
	today1.IsUnique = true
	today2 := newClick(link.ID, "h1")
	yesterday := newClick(link.ID, "h2")
	yesterday.ClickedAt = time.Now().Add(-24 * time.Hour)
	yesterday.IsUnique = true
	ancient := newClick(link.ID, "h3")
	ancient.ClickedAt = time.Now().Add(-40 * 24 * time.Hour)
	for _, c := range []*model.Click{today1, today2, yesterday, ancient} {
		require.NoError(t, clicks.Insert(ctx, c))
	}

	series, err := clicks.Daily(ctx, link.ID, 30)
	require.NoError(t, err)
	require.Len(t, series, 2, "clicks outside the window are excluded")

	assert.Equal(t, int64(1), series[0].Clicks, "series is ordered oldest first")
	assert.Equal(t, int64(2), series[1].Clicks)
	assert.Equal(t, int64(1), series[1].Unique)
}

func TestClickRepository_Breakdown(t *testing.T) {
	ctx := context.Background()
	links := NewLinkRepository(testDB.Pool)
	clicks := NewClickRepository(testDB.Pool)

	testDB.Cleanup(ctx)
	link := newLink("abc1234")
	require.NoError(t, links.Create(ctx, link))

	for _, device := range []string{model.DeviceMobile, model.DeviceMobile, model.DeviceDesktop} {
		c := newClick(link.ID, "h1")
		c.DeviceType = device
		c.Country = "DE"
		require.NoError(t, clicks.Insert(ctx, c))
	}
	bot := newClick(link.ID, "b1")
	bot.IsBot = true
	bot.DeviceType = model.DeviceBot
	require.NoError(t, clicks.Insert(ctx, bot))

	t.Run("by device", func(t *testing.T) {
		entries, err := clicks.Breakdown(ctx, link.ID, "device")
		require.NoError(t, err)
		require.Len(t, entries, 2, "bot clicks are excluded")
		assert.Equal(t, model.DeviceMobile, entries[0].Key, "ordered by count descending")
		assert.Equal(t, int64(2), entries[0].Clicks)
	})

	t.Run("by country", func(t *testing.T) {
		entries, err := clicks.Breakdown(ctx, link.ID, "country")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "DE", entries[0].Key)
		assert.Equal(t, int64(3), entries[0].Clicks)
	})

	t.Run("unknown dimension rejected", func(t *testing.T) {
		_, err := clicks.Breakdown(ctx, link.ID, "ip_hash; DROP TABLE clicks")
		require.Error(t, err)
	})
}
