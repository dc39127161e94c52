// Package bolt implements the message cache on a bbolt file.
package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

var bucketRooms = []byte("rooms")

// Cache implements store.Cache with one nested bucket per room.
type Cache struct {
	db    *bbolt.DB
	limit int
}

var _ store.Cache = (*Cache)(nil)

// New opens the cache file at path.
func New(path string, limit int) (*Cache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRooms)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	if limit <= 0 {
		limit = store.DefaultLimit
	}
	return &Cache{db: db, limit: limit}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Save replaces the room bucket; keys are big-endian positions so a cursor walk
// returns canonical order.
func (c *Cache) Save(ctx context.Context, roomID string, messages []core.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	keep := store.Prepare(messages, c.limit)

	return c.db.Update(func(tx *bbolt.Tx) error {
		rooms := tx.Bucket(bucketRooms)
		if err := rooms.DeleteBucket([]byte(roomID)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("drop room %s: %w", roomID, err)
		}
		if len(keep) == 0 {
			return nil
		}
		room, err := rooms.CreateBucket([]byte(roomID))
		if err != nil {
			return fmt.Errorf("create room %s: %w", roomID, err)
		}
		for i, m := range keep {
			data, err := store.Encode(m)
			if err != nil {
				return err
			}
			if err := room.Put(positionKey(i), data); err != nil {
				return fmt.Errorf("put message %s: %w", m.ID, err)
			}
		}
		return nil
	})
}

func (c *Cache) Load(ctx context.Context, roomID string) ([]core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []core.Message
	err := c.db.View(func(tx *bbolt.Tx) error {
		room := tx.Bucket(bucketRooms).Bucket([]byte(roomID))
		if room == nil {
			return nil
		}
		cur := room.Cursor()
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			m, err := store.Decode(v)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	return out, nil
}

func (c *Cache) Clear(ctx context.Context, roomID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket(bucketRooms).DeleteBucket([]byte(roomID))
		if err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("drop room %s: %w", roomID, err)
		}
		return nil
	})
}

// Rooms lists room ids that have cached messages.
func (c *Cache) Rooms(ctx context.Context) ([]string, error) {
	var out []string
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRooms).ForEachBucket(func(k []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

func positionKey(i int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(i))
	return key
}
