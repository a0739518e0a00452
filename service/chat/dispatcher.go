package chat

import (
	"fmt"
)

// Handler processes one inbound frame type for one connection. Handlers
// report recoverable trouble to the client themselves; a returned error
// means the frame could not be dispatched at all.
type Handler interface {
	Type() string
	Handle(c *Client, f Inbound) error
}

type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Type()] = h }

func (d *Dispatcher) Dispatch(c *Client, f Inbound) error {
	h, ok := d.handlers[f.FrameType()]
	if !ok {
		return fmt.Errorf("no handler for type=%q", f.FrameType())
	}
	return h.Handle(c, f)
}
