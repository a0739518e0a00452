package storage

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used for development and tests.
// It enforces the same slug uniqueness and message ordering contract as
// the durable backends.
type MemoryStore struct {
	mu        sync.Mutex
	rooms     map[string]*Room
	messages  map[string][]StoredMessage
	userNames map[string]string
	nextRoom  int64
	nextMsg   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:     make(map[string]*Room),
		messages:  make(map[string][]StoredMessage),
		userNames: make(map[string]string),
	}
}

// SetUserName registers a display name for authors; unknown authors
// fall back to their raw ID, same as the durable backends.
func (s *MemoryStore) SetUserName(userID, name string) {
	s.mu.Lock()
	s.userNames[userID] = name
	s.mu.Unlock()
}

func (s *MemoryStore) FindRoomBySlug(_ context.Context, slug string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[slug]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *room
	cp.MemberIDs = append([]string(nil), room.MemberIDs...)
	return &cp, nil
}

func (s *MemoryStore) CreateRoom(_ context.Context, slug, adminID string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[slug]; ok {
		return nil, ErrRoomExists
	}
	s.nextRoom++
	room := &Room{
		ID:        strconv.FormatInt(s.nextRoom, 10),
		Slug:      slug,
		AdminID:   adminID,
		MemberIDs: []string{adminID},
		CreatedAt: time.Now().UTC(),
	}
	s.rooms[slug] = room
	cp := *room
	cp.MemberIDs = append([]string(nil), room.MemberIDs...)
	return &cp, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, roomSlug, authorID, text string) (*StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomSlug]; !ok {
		return nil, ErrRoomNotFound
	}
	s.nextMsg++
	name := s.userNames[authorID]
	if name == "" {
		name = authorID
	}
	msg := StoredMessage{
		ID:         s.nextMsg,
		RoomSlug:   roomSlug,
		AuthorID:   authorID,
		AuthorName: name,
		Text:       text,
		CreatedAt:  time.Now().UTC(),
	}
	s.messages[roomSlug] = append(s.messages[roomSlug], msg)
	return &msg, nil
}

func (s *MemoryStore) ListRecentMessages(_ context.Context, roomSlug string, limit int) ([]StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.messages[roomSlug]
	if limit <= 0 || limit > len(log) {
		limit = len(log)
	}
	out := make([]StoredMessage, 0, limit)
	for i := len(log) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, log[i])
	}
	return out, nil
}
