package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatgate/service/chat"
	"chatgate/service/storage"
)

type fakeConn struct{}

func (fakeConn) WriteMessage(int, []byte) error            { return nil }
func (fakeConn) WriteControl(int, []byte, time.Time) error { return nil }
func (fakeConn) SetWriteDeadline(time.Time) error          { return nil }
func (fakeConn) Close() error                              { return nil }

func nextFrame(t *testing.T, c *chat.Client) map[string]any {
	t.Helper()
	select {
	case b := <-c.Send:
		var m map[string]any
		require.NoError(t, json.Unmarshal(b, &m))
		return m
	case <-time.After(time.Second):
		t.Fatal("no frame enqueued")
		return nil
	}
}

func TestJoin_CreatesRoom(t *testing.T) {
	req := require.New(t)
	mgr := chat.NewConnManager(chat.ManagerConf{})
	store := storage.NewMemoryStore()
	h := NewJoinHandler(mgr, store, time.Second)

	c := mgr.Register(fakeConn{}, "u1")
	req.NoError(h.Handle(c, &chat.JoinRoomFrame{Slug: "general"}))

	ack := nextFrame(t, c)
	req.Equal(chat.TypeRoomCreated, ack["type"])
	req.Equal("general", ack["slug"])
	req.True(mgr.InRoom(c.ConnID, "general"))

	room, err := store.FindRoomBySlug(context.Background(), "general")
	req.NoError(err)
	req.Equal("u1", room.AdminID)
	req.Equal([]string{"u1"}, room.MemberIDs)
}

func TestJoin_ExistingRoom(t *testing.T) {
	req := require.New(t)
	mgr := chat.NewConnManager(chat.ManagerConf{})
	store := storage.NewMemoryStore()
	_, err := store.CreateRoom(context.Background(), "general", "u1")
	req.NoError(err)
	h := NewJoinHandler(mgr, store, time.Second)

	c := mgr.Register(fakeConn{}, "u2")
	req.NoError(h.Handle(c, &chat.JoinRoomFrame{Slug: "general"}))

	ack := nextFrame(t, c)
	req.Equal(chat.TypeJoinedExisting, ack["type"])
	req.Equal("general", ack["slug"])
	req.True(mgr.InRoom(c.ConnID, "general"))
}

func TestJoin_SameRoomTwiceIsAckedOnce(t *testing.T) {
	req := require.New(t)
	mgr := chat.NewConnManager(chat.ManagerConf{})
	store := storage.NewMemoryStore()
	h := NewJoinHandler(mgr, store, time.Second)

	c := mgr.Register(fakeConn{}, "u1")
	req.NoError(h.Handle(c, &chat.JoinRoomFrame{Slug: "general"}))
	req.Equal(chat.TypeRoomCreated, nextFrame(t, c)["type"])

	req.NoError(h.Handle(c, &chat.JoinRoomFrame{Slug: "general"}))
	req.Equal(chat.TypeJoinedExisting, nextFrame(t, c)["type"])

	// exactly one durable room, still with one member
	room, err := store.FindRoomBySlug(context.Background(), "general")
	req.NoError(err)
	req.Equal([]string{"u1"}, room.MemberIDs)
}

func TestJoin_MissingSlug(t *testing.T) {
	req := require.New(t)
	mgr := chat.NewConnManager(chat.ManagerConf{})
	store := storage.NewMemoryStore()
	h := NewJoinHandler(mgr, store, time.Second)

	c := mgr.Register(fakeConn{}, "u1")
	req.NoError(h.Handle(c, &chat.JoinRoomFrame{Slug: "   "}))

	errFrame := nextFrame(t, c)
	req.Contains(errFrame["error"], "slug")
	req.False(mgr.InRoom(c.ConnID, "general"))
	req.Empty(mgr.SubscribersOf("general"))
}

// raceStore loses the first create: the slug appears between find and
// create, the way a concurrent join from another gateway goroutine
// would make it.
type raceStore struct {
	*storage.MemoryStore
	raced bool
}

func (s *raceStore) CreateRoom(ctx context.Context, slug, adminID string) (*storage.Room, error) {
	if !s.raced {
		s.raced = true
		_, _ = s.MemoryStore.CreateRoom(ctx, slug, "rival")
		return nil, storage.ErrRoomExists
	}
	return s.MemoryStore.CreateRoom(ctx, slug, adminID)
}

func TestJoin_CreateRaceRetriesAsFind(t *testing.T) {
	req := require.New(t)
	mgr := chat.NewConnManager(chat.ManagerConf{})
	store := &raceStore{MemoryStore: storage.NewMemoryStore()}
	h := NewJoinHandler(mgr, store, time.Second)

	c := mgr.Register(fakeConn{}, "u1")
	req.NoError(h.Handle(c, &chat.JoinRoomFrame{Slug: "general"}))

	// the race loser still joins, acked as an existing room
	ack := nextFrame(t, c)
	req.Equal(chat.TypeJoinedExisting, ack["type"])
	req.True(mgr.InRoom(c.ConnID, "general"))

	room, err := store.FindRoomBySlug(context.Background(), "general")
	req.NoError(err)
	req.Equal("rival", room.AdminID)
}

// failingStore simulates the persistence collaborator being down.
type failingStore struct {
	*storage.MemoryStore
}

func (s *failingStore) FindRoomBySlug(context.Context, string) (*storage.Room, error) {
	return nil, context.DeadlineExceeded
}

func TestJoin_StoreFailureIsReportedOnly(t *testing.T) {
	req := require.New(t)
	mgr := chat.NewConnManager(chat.ManagerConf{})
	h := NewJoinHandler(mgr, &failingStore{storage.NewMemoryStore()}, time.Second)

	c := mgr.Register(fakeConn{}, "u1")
	req.NoError(h.Handle(c, &chat.JoinRoomFrame{Slug: "general"}))

	errFrame := nextFrame(t, c)
	req.Contains(errFrame["error"], "room unavailable")
	req.False(mgr.InRoom(c.ConnID, "general"))
	// the session is untouched and usable
	req.NotNil(mgr.Get(c.ConnID))
}
