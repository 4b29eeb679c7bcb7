package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdx/nerdx-notify/internal/model"
)

func newCache(t *testing.T) *SQLiteCache {
	t.Helper()
	c, err := NewSQLiteCache(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func recipient(id string, createdAt time.Time) model.Recipient {
	return model.Recipient{
		ID:             id,
		NotificationID: "n-" + id,
		UserID:         "user-1",
		CreatedAt:      createdAt,
		Notification: &model.Notification{
			ID:       "n-" + id,
			Title:    "Title " + id,
			Type:     model.NotificationUpdate,
			Metadata: map[string]any{"action_url": "https://nerdx.example/" + id},
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	read := now.Add(-time.Minute)

	records := []model.Recipient{recipient("b", now), recipient("a", now.Add(-time.Hour))}
	records[1].ReadAt = &read
	require.NoError(t, c.SaveSnapshot(ctx, "user-1", records))

	got, err := c.LoadSnapshot(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	assert.True(t, got[0].CreatedAt.Equal(now))
	require.NotNil(t, got[1].ReadAt)
	assert.True(t, got[1].ReadAt.Equal(read))
	require.NotNil(t, got[0].Notification)
	assert.Equal(t, "https://nerdx.example/b", got[0].Notification.ActionURL())

	limited, err := c.LoadSnapshot(ctx, "user-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSaveSnapshotReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	now := time.Now().UTC()

	require.NoError(t, c.SaveSnapshot(ctx, "user-1", []model.Recipient{recipient("a", now), recipient("b", now)}))
	require.NoError(t, c.SaveSnapshot(ctx, "user-1", []model.Recipient{recipient("c", now)}))
	require.NoError(t, c.SaveSnapshot(ctx, "user-2", []model.Recipient{recipient("z", now)}))

	got, err := c.LoadSnapshot(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)
}

func TestClearSnapshot(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	require.NoError(t, c.SaveSnapshot(ctx, "user-1", []model.Recipient{recipient("a", time.Now())}))
	require.NoError(t, c.ClearSnapshot(ctx, "user-1"))

	got, err := c.LoadSnapshot(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPushTokens(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	token, err := c.LastPushToken(ctx, "user-1", "desktop")
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, c.SavePushToken(ctx, "user-1", "desktop", "tok-1"))
	require.NoError(t, c.SavePushToken(ctx, "user-1", "desktop", "tok-2"))
	require.NoError(t, c.SavePushToken(ctx, "user-1", "android", "tok-a"))

	token, err = c.LastPushToken(ctx, "user-1", "desktop")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)

	token, err = c.LastPushToken(ctx, "user-1", "android")
	require.NoError(t, err)
	assert.Equal(t, "tok-a", token)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := NewSQLiteCache(path)
	require.NoError(t, err)
	require.NoError(t, c.SaveSnapshot(context.Background(), "user-1", []model.Recipient{recipient("a", time.Now())}))
	require.NoError(t, c.Close())

	c, err = NewSQLiteCache(path)
	require.NoError(t, err)
	defer c.Close()

	got, err := c.LoadSnapshot(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	var version int
	require.NoError(t, c.db.Get(&version, "SELECT MAX(version) FROM schema_version"))
	assert.Equal(t, len(migrations), version)
}
