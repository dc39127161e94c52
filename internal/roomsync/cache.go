package roomsync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

const cacheFlushTimeout = 2 * time.Second

// cacheWriter persists store snapshots off the Run goroutine. Only the latest
// snapshot of each room is written.
type cacheWriter struct {
	cache store.Cache
	log   *zerolog.Logger

	mu      sync.Mutex
	pending map[string][]core.Message
	wake    chan struct{}
}

func newCacheWriter(cache store.Cache, logger *zerolog.Logger) *cacheWriter {
	return &cacheWriter{
		cache:   cache,
		log:     logger,
		pending: make(map[string][]core.Message),
		wake:    make(chan struct{}, 1),
	}
}

func (w *cacheWriter) save(roomID string, messages []core.Message) {
	w.mu.Lock()
	w.pending[roomID] = messages
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// forget drops a queued write for roomID.
func (w *cacheWriter) forget(roomID string) {
	w.mu.Lock()
	delete(w.pending, roomID)
	w.mu.Unlock()
}

func (w *cacheWriter) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), cacheFlushTimeout)
			w.flush(flushCtx)
			cancel()
			return
		case <-w.wake:
			w.flush(ctx)
		}
	}
}

func (w *cacheWriter) flush(ctx context.Context) {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string][]core.Message)
	w.mu.Unlock()

	for roomID, messages := range batch {
		if err := w.cache.Save(ctx, roomID, messages); err != nil {
			w.log.Warn().Err(err).Str("room_id", roomID).Msg("cache write failed")
		}
	}
}
