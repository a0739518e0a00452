package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeWindow is an in-memory recentWindow with switchable failures.
type fakeWindow struct {
	lists map[string][]string
	fail  bool
}

func newFakeWindow() *fakeWindow {
	return &fakeWindow{lists: make(map[string][]string)}
}

func (w *fakeWindow) push(_ context.Context, slug string, payload []byte, keep int) error {
	if w.fail {
		return errors.New("window down")
	}
	list := append([]string{string(payload)}, w.lists[slug]...)
	if len(list) > keep {
		list = list[:keep]
	}
	w.lists[slug] = list
	return nil
}

func (w *fakeWindow) read(_ context.Context, slug string, limit int) ([]string, error) {
	if w.fail {
		return nil, errors.New("window down")
	}
	list := w.lists[slug]
	if limit < len(list) {
		list = list[:limit]
	}
	return append([]string(nil), list...), nil
}

// countingStore counts durable reads so tests can tell cache hits from
// fall-throughs.
type countingStore struct {
	*MemoryStore
	listCalls int
}

func (s *countingStore) ListRecentMessages(ctx context.Context, roomSlug string, limit int) ([]StoredMessage, error) {
	s.listCalls++
	return s.MemoryStore.ListRecentMessages(ctx, roomSlug, limit)
}

func texts(msgs []StoredMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestCachedStoreAgreesWithInner(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	inner := NewMemoryStore()
	cached := newCachedStore(inner, newFakeWindow(), 10)

	_, err := cached.CreateRoom(ctx, "general", "u1")
	req.NoError(err)
	for i := 0; i < 6; i++ {
		_, err = cached.AppendMessage(ctx, "general", "u1", fmt.Sprintf("m%d", i))
		req.NoError(err)
	}

	for _, limit := range []int{1, 3, 6, 10} {
		fromCache, err := cached.ListRecentMessages(ctx, "general", limit)
		req.NoError(err)
		fromInner, err := inner.ListRecentMessages(ctx, "general", limit)
		req.NoError(err)
		req.Equal(texts(fromInner), texts(fromCache), "limit=%d", limit)
	}
}

func TestCachedStoreColdCacheFallsThrough(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	inner := NewMemoryStore()

	// durable history predating this process: the window never saw it
	_, err := inner.CreateRoom(ctx, "general", "u1")
	req.NoError(err)
	for i := 0; i < 5; i++ {
		_, err = inner.AppendMessage(ctx, "general", "u1", fmt.Sprintf("old%d", i))
		req.NoError(err)
	}

	cached := newCachedStore(inner, newFakeWindow(), 10)
	_, err = cached.AppendMessage(ctx, "general", "u1", "fresh")
	req.NoError(err)

	// the window holds 1 entry; a larger request must not be served
	// from it as if complete
	msgs, err := cached.ListRecentMessages(ctx, "general", 6)
	req.NoError(err)
	req.Equal([]string{"fresh", "old4", "old3", "old2", "old1", "old0"}, texts(msgs))
}

func TestCachedStoreServesFullWindow(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	cached := newCachedStore(inner, newFakeWindow(), 10)

	_, err := cached.CreateRoom(ctx, "general", "u1")
	req.NoError(err)
	for i := 0; i < 4; i++ {
		_, err = cached.AppendMessage(ctx, "general", "u1", fmt.Sprintf("m%d", i))
		req.NoError(err)
	}

	msgs, err := cached.ListRecentMessages(ctx, "general", 4)
	req.NoError(err)
	req.Equal([]string{"m3", "m2", "m1", "m0"}, texts(msgs))
	req.Zero(inner.listCalls)

	// asking for more than the window holds goes durable
	_, err = cached.ListRecentMessages(ctx, "general", 5)
	req.NoError(err)
	req.Equal(1, inner.listCalls)
}

func TestCachedStoreWindowFailureDegrades(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	inner := NewMemoryStore()
	win := newFakeWindow()
	win.fail = true
	cached := newCachedStore(inner, win, 10)

	_, err := cached.CreateRoom(ctx, "general", "u1")
	req.NoError(err)
	_, err = cached.AppendMessage(ctx, "general", "u1", "hello")
	req.NoError(err)

	msgs, err := cached.ListRecentMessages(ctx, "general", 5)
	req.NoError(err)
	req.Equal([]string{"hello"}, texts(msgs))
}
