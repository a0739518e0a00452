package storage

import (
	"context"
	"errors"
	"time"
)

// The gateway never owns durable state; it talks to a Store through
// exactly four operations. Rooms and messages outlive any connection.

var (
	ErrRoomNotFound = errors.New("storage: room not found")
	ErrRoomExists   = errors.New("storage: room already exists")
)

// Room is a durable named channel. Slug is the primary lookup key and
// is unique store-wide; the store's uniqueness constraint is the single
// arbiter for concurrent creates of the same slug.
type Room struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	AdminID   string    `json:"adminId"`
	MemberIDs []string  `json:"memberIds"`
	CreatedAt time.Time `json:"createdAt"`
}

// StoredMessage is a persisted chat message enriched with the author's
// display name. ID is totally ordered within a room. Immutable.
type StoredMessage struct {
	ID         int64     `json:"id"`
	RoomSlug   string    `json:"roomId"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Text       string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Store interface {
	// FindRoomBySlug returns ErrRoomNotFound when no room has the slug.
	FindRoomBySlug(ctx context.Context, slug string) (*Room, error)

	// CreateRoom creates a room with adminID as admin and sole member.
	// Returns ErrRoomExists when the slug is already taken, so a lost
	// create race can be retried as a find.
	CreateRoom(ctx context.Context, slug, adminID string) (*Room, error)

	// AppendMessage appends to the room's message log and returns the
	// stored message with author display data resolved. Returns
	// ErrRoomNotFound when the room no longer exists.
	AppendMessage(ctx context.Context, roomSlug, authorID, text string) (*StoredMessage, error)

	// ListRecentMessages returns up to limit messages, newest first.
	ListRecentMessages(ctx context.Context, roomSlug string, limit int) ([]StoredMessage, error)
}
