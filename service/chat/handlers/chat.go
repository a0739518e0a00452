package handlers

import (
	"context"
	"strings"
	"time"

	"chatgate/logger"
	"chatgate/service/chat"
	"chatgate/service/storage"
)

// EventSink receives every persisted message for consumers beyond this
// process (archival, push, search). natsx.Producer is the production
// sink. Publish failures are the sink's problem: they never affect the
// durable write or WebSocket delivery.
type EventSink interface {
	PublishStored(msg *storage.StoredMessage) error
}

// ChatHandler implements the chat-submission protocol: persist first,
// then fan out to every connection subscribed to the room at that
// moment. Persistence is authoritative; fan-out is a best-effort
// convenience on top of it, and a broadcast without a persisted write
// never happens.
type ChatHandler struct {
	mgr     *chat.ConnManager
	store   storage.Store
	fanout  *chat.Fanout
	events  EventSink // optional
	timeout time.Duration
}

func NewChatHandler(mgr *chat.ConnManager, store storage.Store, fanout *chat.Fanout, events EventSink, timeout time.Duration) *ChatHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ChatHandler{mgr: mgr, store: store, fanout: fanout, events: events, timeout: timeout}
}

func (h *ChatHandler) Type() string { return chat.TypeChat }

func (h *ChatHandler) Handle(c *chat.Client, f chat.Inbound) error {
	req, ok := f.(*chat.ChatFrame)
	if !ok {
		c.Enqueue(chat.BuildError("malformed chat request"))
		return nil
	}
	slug := strings.TrimSpace(req.RoomID)
	if slug == "" {
		c.Enqueue(chat.BuildError("chat requires a roomId"))
		return nil
	}
	if req.Message == "" {
		c.Enqueue(chat.BuildError("chat requires a message"))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	// Identity comes from the session, never from the frame.
	stored, err := h.store.AppendMessage(ctx, slug, c.UserID, req.Message)
	if err != nil {
		if err == storage.ErrRoomNotFound {
			c.Enqueue(chat.BuildError("room not found"))
		} else {
			logger.Errorf("[chat] persist failed room=%s user=%s err=%v", slug, c.UserID, err)
			c.Enqueue(chat.BuildError("message not persisted"))
		}
		return nil
	}

	subscribers := h.mgr.SubscribersOf(slug)
	h.fanout.Broadcast(subscribers, chat.BuildNewMessage(stored))

	if h.events != nil {
		if perr := h.events.PublishStored(stored); perr != nil {
			logger.Warnf("[chat] event publish failed room=%s msg=%d err=%v", slug, stored.ID, perr)
		}
	}
	return nil
}
