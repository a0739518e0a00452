package natsx

import (
	"encoding/json"

	"chatgate/service/storage"
)

// Producer publishes persisted chat messages on a fixed subject for
// downstream consumers (archival, push, search). Delivery through NATS
// is best-effort and decoupled from the gateway's own fan-out: a failed
// publish never affects WebSocket delivery or the durable write.
type Producer struct {
	c       *Client
	subject string
}

func NewProducer(c *Client, subject string) *Producer {
	return &Producer{c: c, subject: subject}
}

func (p *Producer) PublishStored(msg *storage.StoredMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.c.Publish(p.subject, b)
}
