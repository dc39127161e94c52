package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

// Schema creates the cache table.
const Schema = `
CREATE TABLE IF NOT EXISTS cached_messages (
	room_id    TEXT    NOT NULL,
	message_id TEXT    NOT NULL,
	position   INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	payload    BLOB    NOT NULL,
	PRIMARY KEY (room_id, message_id)
);
CREATE INDEX IF NOT EXISTS idx_cached_messages_room ON cached_messages (room_id, position);
`

// Cache implements store.Cache on SQLite.
type Cache struct {
	db    *sql.DB
	limit int
}

var _ store.Cache = (*Cache)(nil)

// New opens (or creates) the cache database at dbPath.
func New(dbPath string, limit int) (*Cache, error) {
	return NewWithSetup(dbPath, limit, applySchema)
}

// NewWithSetup opens the database and runs setup instead of the default schema.
// Useful for tests that want a custom layout.
func NewWithSetup(dbPath string, limit int, setup func(*sql.DB) error) (*Cache, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if limit <= 0 {
		limit = store.DefaultLimit
	}
	return &Cache{db: db, limit: limit}, nil
}

func applySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// Close closes the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Save replaces the room's rows with the newest confirmed messages.
func (c *Cache) Save(ctx context.Context, roomID string, messages []core.Message) error {
	keep := store.Prepare(messages, c.limit)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_messages WHERE room_id = ?`, roomID); err != nil {
		return fmt.Errorf("clear room %s: %w", roomID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO cached_messages (room_id, message_id, position, created_at, payload)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range keep {
		payload, err := store.Encode(m)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, roomID, m.ID, i, m.CreatedAt.UnixNano(), payload); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns the cached messages of a room in stored order.
func (c *Cache) Load(ctx context.Context, roomID string) ([]core.Message, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT payload
		FROM cached_messages
		WHERE room_id = ?
		ORDER BY position ASC
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query cached messages: %w", err)
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan cached message: %w", err)
		}
		m, err := store.Decode(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached messages: %w", err)
	}
	return out, nil
}

// Clear removes every cached message of a room.
func (c *Cache) Clear(ctx context.Context, roomID string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cached_messages WHERE room_id = ?`, roomID); err != nil {
		return fmt.Errorf("clear room %s: %w", roomID, err)
	}
	return nil
}

// Rooms lists room ids that have cached messages.
func (c *Cache) Rooms(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT room_id FROM cached_messages ORDER BY room_id`)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
