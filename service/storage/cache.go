package storage

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"chatgate/logger"
)

// recentWindow is the per-room rolling window of recent message
// payloads, newest first. The redis implementation is the production
// one; tests use an in-memory fake.
type recentWindow interface {
	push(ctx context.Context, slug string, payload []byte, keep int) error
	read(ctx context.Context, slug string, limit int) ([]string, error)
}

type redisWindow struct {
	rdb *redis.Client
}

func recentKey(slug string) string { return "chat:room:" + slug + ":recent" }

func (w *redisWindow) push(ctx context.Context, slug string, payload []byte, keep int) error {
	// LPUSH + LTRIM keeps the newest entries, newest at index 0.
	pipe := w.rdb.TxPipeline()
	pipe.LPush(ctx, recentKey(slug), payload)
	pipe.LTrim(ctx, recentKey(slug), 0, int64(keep-1))
	_, err := pipe.Exec(ctx)
	return err
}

func (w *redisWindow) read(ctx context.Context, slug string, limit int) ([]string, error) {
	return w.rdb.LRange(ctx, recentKey(slug), 0, int64(limit-1)).Result()
}

// CachedStore wraps a Store with a rolling per-room window of recent
// messages in redis. The window only sees messages appended through
// this process, so a read is served from it only when it can satisfy
// the full limit; anything short of that may be a cold cache over older
// durable history and falls through to the inner store. Cache failures
// degrade to the inner store; the cache is never authoritative.
type CachedStore struct {
	inner  Store
	recent recentWindow
	window int
}

func NewCachedStore(inner Store, rdb *redis.Client, window int) *CachedStore {
	return newCachedStore(inner, &redisWindow{rdb: rdb}, window)
}

func newCachedStore(inner Store, recent recentWindow, window int) *CachedStore {
	if window <= 0 {
		window = 100
	}
	return &CachedStore{inner: inner, recent: recent, window: window}
}

func (c *CachedStore) FindRoomBySlug(ctx context.Context, slug string) (*Room, error) {
	return c.inner.FindRoomBySlug(ctx, slug)
}

func (c *CachedStore) CreateRoom(ctx context.Context, slug, adminID string) (*Room, error) {
	return c.inner.CreateRoom(ctx, slug, adminID)
}

func (c *CachedStore) AppendMessage(ctx context.Context, roomSlug, authorID, text string) (*StoredMessage, error) {
	msg, err := c.inner.AppendMessage(ctx, roomSlug, authorID, text)
	if err != nil {
		return nil, err
	}

	b, merr := json.Marshal(msg)
	if merr != nil {
		return msg, nil
	}
	if perr := c.recent.push(ctx, roomSlug, b, c.window); perr != nil {
		logger.Warnf("[cache] recent-window update failed room=%s err=%v", roomSlug, perr)
	}
	return msg, nil
}

func (c *CachedStore) ListRecentMessages(ctx context.Context, roomSlug string, limit int) ([]StoredMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit <= c.window {
		vals, err := c.recent.read(ctx, roomSlug, limit)
		if err != nil {
			logger.Warnf("[cache] recent-window read failed room=%s err=%v", roomSlug, err)
		} else if len(vals) >= limit {
			// The window can only prove completeness when it holds the
			// full limit; fewer entries may just mean a cold cache.
			out := make([]StoredMessage, 0, len(vals))
			ok := true
			for _, v := range vals {
				var msg StoredMessage
				if uerr := json.Unmarshal([]byte(v), &msg); uerr != nil {
					ok = false
					break
				}
				out = append(out, msg)
			}
			if ok {
				return out, nil
			}
		}
	}
	return c.inner.ListRecentMessages(ctx, roomSlug, limit)
}
