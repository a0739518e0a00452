package chat

import (
	"encoding/json"
	"fmt"

	"chatgate/service/storage"
)

// Wire protocol: JSON text frames with a case-sensitive "type"
// discriminator, decoded once at the boundary into a sum type. Unknown
// types are a malformed-request error, not silently ignored.

const (
	TypeJoinRoom       = "join-room"
	TypeChat           = "chat"
	TypeWelcome        = "welcome"
	TypeJoinedExisting = "joined-existing-room"
	TypeRoomCreated    = "room-created"
	TypeNewMessage     = "new message"
)

// Inbound is the decoded form of a client frame.
type Inbound interface {
	FrameType() string
}

type JoinRoomFrame struct {
	Slug string `json:"slug"`
}

func (*JoinRoomFrame) FrameType() string { return TypeJoinRoom }

type ChatFrame struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

func (*ChatFrame) FrameType() string { return TypeChat }

type frameEnvelope struct {
	Type *string `json:"type"`
}

// DecodeInbound parses one client frame. Any failure here is a
// malformed request: reported to the sender, connection stays open.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env frameEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("undecodable frame: %w", err)
	}
	if env.Type == nil {
		return nil, fmt.Errorf("frame has no type")
	}
	switch *env.Type {
	case TypeJoinRoom:
		f := &JoinRoomFrame{}
		if err := json.Unmarshal(raw, f); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", TypeJoinRoom, err)
		}
		return f, nil
	case TypeChat:
		f := &ChatFrame{}
		if err := json.Unmarshal(raw, f); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", TypeChat, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown frame type %q", *env.Type)
	}
}

// ---- outbound frame builders ----

type welcomeFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type joinedFrame struct {
	Type string `json:"type"`
	Slug string `json:"slug"`
}

type roomCreatedFrame struct {
	Type string        `json:"type"`
	Slug string        `json:"slug"`
	Room *storage.Room `json:"room"`
}

type newMessageFrame struct {
	Type string                 `json:"type"`
	Chat *storage.StoredMessage `json:"chat"`
}

type errorFrame struct {
	Error string `json:"error"`
}

func BuildWelcome() []byte {
	return mustJSON(welcomeFrame{Type: TypeWelcome, Message: "Welcome to the chat gateway"})
}

func BuildJoinedExisting(slug string) []byte {
	return mustJSON(joinedFrame{Type: TypeJoinedExisting, Slug: slug})
}

func BuildRoomCreated(room *storage.Room) []byte {
	return mustJSON(roomCreatedFrame{Type: TypeRoomCreated, Slug: room.Slug, Room: room})
}

func BuildNewMessage(msg *storage.StoredMessage) []byte {
	return mustJSON(newMessageFrame{Type: TypeNewMessage, Chat: msg})
}

func BuildError(msg string) []byte {
	return mustJSON(errorFrame{Error: msg})
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// every frame shape above marshals; reaching this is a bug
		panic(err)
	}
	return b
}
