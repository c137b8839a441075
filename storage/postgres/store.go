package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/adwski/watchparty/model"

	_ "github.com/lib/pq"
)

// Store records room lifecycle and chat history in Postgres. Expected schema:
//
//	CREATE TABLE rooms (
//	    id            BIGSERIAL PRIMARY KEY,
//	    code          TEXT        NOT NULL,
//	    host_identity TEXT        NOT NULL DEFAULT '',
//	    media_ref     TEXT        NOT NULL DEFAULT '',
//	    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE TABLE visits (
//	    id           BIGSERIAL PRIMARY KEY,
//	    room_code    TEXT        NOT NULL,
//	    identity     TEXT        NOT NULL DEFAULT '',
//	    display_name TEXT        NOT NULL,
//	    joined_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    left_at      TIMESTAMPTZ
//	);
//	CREATE TABLE messages (
//	    id          BIGSERIAL PRIMARY KEY,
//	    room_code   TEXT        NOT NULL,
//	    sender_name TEXT        NOT NULL,
//	    body        TEXT        NOT NULL,
//	    sent_at     TIMESTAMPTZ NOT NULL
//	);
//
// Room codes repeat across room lifetimes, so rooms rows are plain inserts.
type Store struct {
	db *sql.DB
}

func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) RecordRoomCreated(ctx context.Context, roomCode, hostIdentity, mediaRef string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO rooms (code, host_identity, media_ref) VALUES ($1, $2, $3)",
		roomCode, hostIdentity, mediaRef,
	)
	return err
}

func (s *Store) RecordParticipantJoined(ctx context.Context, roomCode, identity, displayName string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO visits (room_code, identity, display_name) VALUES ($1, $2, $3) RETURNING id",
		roomCode, identity, displayName,
	).Scan(&id)
	return id, err
}

func (s *Store) RecordParticipantLeft(ctx context.Context, recordID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE visits SET left_at = now() WHERE id = $1",
		recordID,
	)
	return err
}

func (s *Store) AppendChatMessage(ctx context.Context, roomCode, senderName, body string, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (room_code, sender_name, body, sent_at) VALUES ($1, $2, $3, $4)",
		roomCode, senderName, body, sentAt,
	)
	return err
}

// RecentMessages serves chat history that has already fallen out of the
// in-memory tail.
func (s *Store) RecentMessages(ctx context.Context, roomCode string, limit int) ([]model.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, sender_name, body, sent_at FROM messages WHERE room_code = $1 ORDER BY sent_at DESC LIMIT $2",
		roomCode, limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var msgs []model.ChatMessage
	for rows.Next() {
		var (
			id int64
			m  model.ChatMessage
		)
		if err = rows.Scan(&id, &m.SenderName, &m.Body, &m.SentAt); err != nil {
			return nil, err
		}
		m.ID = strconv.FormatInt(id, 10)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
