package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"
)

const pgUniqueViolation = "23505"

// Schema for the gateway's slice of the database. The users table is
// owned by the credential service; the gateway only reads display names
// from it.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS rooms (
    id         BIGSERIAL PRIMARY KEY,
    slug       TEXT NOT NULL UNIQUE,
    admin_id   TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS room_members (
    room_id    BIGINT NOT NULL REFERENCES rooms(id),
    user_id    TEXT NOT NULL,
    PRIMARY KEY (room_id, user_id)
);
CREATE TABLE IF NOT EXISTS messages (
    id         BIGSERIAL PRIMARY KEY,
    room_id    BIGINT NOT NULL REFERENCES rooms(id),
    author_id  TEXT NOT NULL,
    body       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS messages_room_idx ON messages (room_id, id DESC);
`

// PostgresStore implements Store on a pgx pool. The UNIQUE constraint
// on rooms.slug is the arbiter for the create race.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, pkgerrors.Wrap(err, "ping postgres")
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema creates the gateway tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return pkgerrors.Wrap(err, "ensure schema")
}

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) FindRoomBySlug(ctx context.Context, slug string) (*Room, error) {
	var (
		id        int64
		adminID   string
		createdAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, admin_id, created_at FROM rooms WHERE slug = $1`, slug,
	).Scan(&id, &adminID, &createdAt)
	if err == pgx.ErrNoRows {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "find room")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM room_members WHERE room_id = $1`, id)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list room members")
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, pkgerrors.Wrap(err, "scan room member")
		}
		members = append(members, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "iterate room members")
	}

	return &Room{
		ID:        strconv.FormatInt(id, 10),
		Slug:      slug,
		AdminID:   adminID,
		MemberIDs: members,
		CreatedAt: createdAt,
	}, nil
}

func (s *PostgresStore) CreateRoom(ctx context.Context, slug, adminID string) (*Room, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "begin create room")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		id        int64
		createdAt time.Time
	)
	err = tx.QueryRow(ctx,
		`INSERT INTO rooms (slug, admin_id) VALUES ($1, $2) RETURNING id, created_at`,
		slug, adminID,
	).Scan(&id, &createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if pkgerrors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrRoomExists
		}
		return nil, pkgerrors.Wrap(err, "insert room")
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)`, id, adminID,
	); err != nil {
		return nil, pkgerrors.Wrap(err, "insert admin member")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, pkgerrors.Wrap(err, "commit create room")
	}

	return &Room{
		ID:        strconv.FormatInt(id, 10),
		Slug:      slug,
		AdminID:   adminID,
		MemberIDs: []string{adminID},
		CreatedAt: createdAt,
	}, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, roomSlug, authorID, text string) (*StoredMessage, error) {
	var (
		id        int64
		createdAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`WITH r AS (SELECT id FROM rooms WHERE slug = $1)
		 INSERT INTO messages (room_id, author_id, body)
		 SELECT r.id, $2, $3 FROM r
		 RETURNING id, created_at`,
		roomSlug, authorID, text,
	).Scan(&id, &createdAt)
	if err == pgx.ErrNoRows {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "append message")
	}

	name := authorID
	var dbName string
	err = s.pool.QueryRow(ctx,
		`SELECT name FROM users WHERE id = $1`, authorID,
	).Scan(&dbName)
	if err == nil && dbName != "" {
		name = dbName
	} else if err != nil && err != pgx.ErrNoRows {
		return nil, pkgerrors.Wrap(err, "resolve author name")
	}

	return &StoredMessage{
		ID:         id,
		RoomSlug:   roomSlug,
		AuthorID:   authorID,
		AuthorName: name,
		Text:       text,
		CreatedAt:  createdAt,
	}, nil
}

func (s *PostgresStore) ListRecentMessages(ctx context.Context, roomSlug string, limit int) ([]StoredMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.author_id, COALESCE(u.name, m.author_id), m.body, m.created_at
		 FROM messages m
		 JOIN rooms r ON r.id = m.room_id
		 LEFT JOIN users u ON u.id = m.author_id
		 WHERE r.slug = $1
		 ORDER BY m.id DESC
		 LIMIT $2`,
		roomSlug, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list recent messages")
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		msg := StoredMessage{RoomSlug: roomSlug}
		if err := rows.Scan(&msg.ID, &msg.AuthorID, &msg.AuthorName, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, pkgerrors.Wrap(err, "scan message")
		}
		out = append(out, msg)
	}
	return out, pkgerrors.Wrap(rows.Err(), "iterate messages")
}
