package bolt

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-client/internal/core"
)

func newTestCache(t *testing.T, limit int) *Cache {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "cache.db"), limit)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func seq(n int) []core.Message {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]core.Message, 0, n)
	for i := range n {
		out = append(out, core.Message{
			ID:        fmt.Sprintf("m%03d", i),
			ChatID:    "r1",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	return out
}

func TestSaveLoadKeepsOrderAndBound(t *testing.T) {
	c := newTestCache(t, 5)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, "r1", seq(300)))

	got, err := c.Load(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 5)
	require.Equal(t, "m295", got[0].ID)
	require.Equal(t, "m299", got[4].ID)
}

func TestSaveEmptyDropsRoom(t *testing.T) {
	c := newTestCache(t, 5)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, "r1", seq(3)))
	require.NoError(t, c.Save(ctx, "r1", nil))

	got, err := c.Load(ctx, "r1")
	require.NoError(t, err)
	require.Empty(t, got)

	rooms, err := c.Rooms(ctx)
	require.NoError(t, err)
	require.Empty(t, rooms)
}

func TestClearUnknownRoom(t *testing.T) {
	c := newTestCache(t, 5)
	require.NoError(t, c.Clear(context.Background(), "missing"))
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	c, err := New(path, 10)
	require.NoError(t, err)
	require.NoError(t, c.Save(ctx, "r1", seq(3)))
	require.NoError(t, c.Close())

	c, err = New(path, 10)
	require.NoError(t, err)
	defer c.Close()

	got, err := c.Load(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 3)
}
