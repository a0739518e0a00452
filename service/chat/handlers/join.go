package handlers

import (
	"context"
	"strings"
	"time"

	"chatgate/logger"
	"chatgate/service/chat"
	"chatgate/service/storage"
)

// JoinHandler implements the join-room protocol: resolve or create the
// room durably, then subscribe this connection to it. The store's slug
// uniqueness constraint arbitrates concurrent creates; a lost race is
// retried as a find, never surfaced to the client.
type JoinHandler struct {
	mgr     *chat.ConnManager
	store   storage.Store
	timeout time.Duration
}

func NewJoinHandler(mgr *chat.ConnManager, store storage.Store, timeout time.Duration) *JoinHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &JoinHandler{mgr: mgr, store: store, timeout: timeout}
}

func (h *JoinHandler) Type() string { return chat.TypeJoinRoom }

func (h *JoinHandler) Handle(c *chat.Client, f chat.Inbound) error {
	req, ok := f.(*chat.JoinRoomFrame)
	if !ok {
		c.Enqueue(chat.BuildError("malformed join-room request"))
		return nil
	}
	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		c.Enqueue(chat.BuildError("join-room requires a slug"))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	created := false
	room, err := h.store.FindRoomBySlug(ctx, slug)
	if err == storage.ErrRoomNotFound {
		room, err = h.store.CreateRoom(ctx, slug, c.UserID)
		if err == storage.ErrRoomExists {
			// lost the create race; the room exists now
			room, err = h.store.FindRoomBySlug(ctx, slug)
		} else if err == nil {
			created = true
		}
	}
	if err != nil {
		logger.Errorf("[join] room resolve failed slug=%s user=%s err=%v", slug, c.UserID, err)
		c.Enqueue(chat.BuildError("room unavailable"))
		return nil
	}

	// Re-joining is a durable no-op but still acknowledged.
	if _, ok := h.mgr.JoinRoom(c.ConnID, slug); !ok {
		// session already unregistered; nothing to acknowledge
		return nil
	}

	if created {
		logger.Infof("[join] room created slug=%s admin=%s", slug, c.UserID)
		c.Enqueue(chat.BuildRoomCreated(room))
	} else {
		c.Enqueue(chat.BuildJoinedExisting(slug))
	}
	return nil
}
