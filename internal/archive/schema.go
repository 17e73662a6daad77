package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS chat_messages (
	message_id  TEXT PRIMARY KEY,
	room_id     TEXT NOT NULL,
	sender      TEXT NOT NULL,
	content     TEXT NOT NULL,
	msg_type    TEXT NOT NULL,
	is_system   BOOLEAN NOT NULL DEFAULT FALSE,
	sent_at     TIMESTAMPTZ,
	received_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS chat_messages_room_sent_idx ON chat_messages (room_id, sent_at);
`

const insertSQL = `
	INSERT INTO chat_messages (message_id, room_id, sender, content, msg_type, is_system, sent_at, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (message_id) DO NOTHING
`

// Execer runs a statement. *pgxpool.Pool and *pgx.Conn satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureSchema creates the chat_messages table and its index if missing.
func EnsureSchema(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create chat_messages: %w", err)
	}
	return nil
}
