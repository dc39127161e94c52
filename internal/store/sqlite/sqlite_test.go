package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/core"
)

func newTestCache(t *testing.T, limit int) *Cache {
	t.Helper()
	c, err := New(":memory:", limit)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func seq(n int) []core.Message {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]core.Message, 0, n)
	for i := range n {
		out = append(out, core.Message{
			ID:        fmt.Sprintf("m%02d", i),
			ChatID:    "r1",
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	return out
}

func TestSaveLoad(t *testing.T) {
	c := newTestCache(t, 10)
	ctx := context.Background()

	tests := []struct {
		name      string
		save      []core.Message
		wantFirst string
		wantLen   int
	}{
		{name: "small room", save: seq(3), wantFirst: "m00", wantLen: 3},
		{name: "bounded", save: seq(25), wantFirst: "m15", wantLen: 10},
		{name: "overwrite with fewer", save: seq(2), wantFirst: "m00", wantLen: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Save(ctx, "r1", tt.save); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			got, err := c.Load(ctx, "r1")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if len(got) != tt.wantLen {
				t.Fatalf("expected %d messages, got %d", tt.wantLen, len(got))
			}
			if got[0].ID != tt.wantFirst {
				t.Fatalf("expected first %s, got %s", tt.wantFirst, got[0].ID)
			}
		})
	}
}

func TestPendingNotCached(t *testing.T) {
	c := newTestCache(t, 10)
	ctx := context.Background()

	msgs := append(seq(2), core.Message{ID: "tmp-1", ChatID: "r1", Pending: true, CorrelationID: "c"})
	if err := c.Save(ctx, "r1", msgs); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, _ := c.Load(ctx, "r1")
	if len(got) != 2 {
		t.Fatalf("expected pending message to be skipped, got %d rows", len(got))
	}
}

func TestLoadUnknownRoomAndClear(t *testing.T) {
	c := newTestCache(t, 10)
	ctx := context.Background()

	got, err := c.Load(ctx, "nope")
	if err != nil || len(got) != 0 {
		t.Fatalf("Load(unknown) = %v, %v", got, err)
	}

	if err := c.Save(ctx, "r1", seq(3)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	rooms, err := c.Rooms(ctx)
	if err != nil || len(rooms) != 1 || rooms[0] != "r1" {
		t.Fatalf("Rooms() = %v, %v", rooms, err)
	}

	if err := c.Clear(ctx, "r1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	got, _ = c.Load(ctx, "r1")
	if len(got) != 0 {
		t.Fatalf("expected empty room after Clear, got %d", len(got))
	}
}
