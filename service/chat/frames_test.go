package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatgate/service/storage"
)

func TestDecodeInbound_JoinRoom(t *testing.T) {
	req := require.New(t)

	f, err := DecodeInbound([]byte(`{"type":"join-room","slug":"general"}`))
	req.NoError(err)
	join, ok := f.(*JoinRoomFrame)
	req.True(ok)
	req.Equal("general", join.Slug)
}

func TestDecodeInbound_Chat(t *testing.T) {
	req := require.New(t)

	f, err := DecodeInbound([]byte(`{"type":"chat","roomId":"general","message":"hi"}`))
	req.NoError(err)
	msg, ok := f.(*ChatFrame)
	req.True(ok)
	req.Equal("general", msg.RoomID)
	req.Equal("hi", msg.Message)
}

func TestDecodeInbound_Malformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{"type":`},
		{"no type", `{"slug":"general"}`},
		{"unknown type", `{"type":"leave-room","slug":"general"}`},
		{"wrong case", `{"type":"Join-Room","slug":"general"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeInbound([]byte(tc.raw))
			require.Error(t, err)
		})
	}
}

func TestBuildNewMessage_Shape(t *testing.T) {
	req := require.New(t)

	stored := &storage.StoredMessage{
		ID:         7,
		RoomSlug:   "general",
		AuthorID:   "u1",
		AuthorName: "Alice",
		Text:       "hello",
		CreatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	var got struct {
		Type string `json:"type"`
		Chat struct {
			ID         int64  `json:"id"`
			RoomID     string `json:"roomId"`
			Message    string `json:"message"`
			AuthorID   string `json:"authorId"`
			AuthorName string `json:"authorName"`
		} `json:"chat"`
	}
	req.NoError(json.Unmarshal(BuildNewMessage(stored), &got))
	req.Equal(TypeNewMessage, got.Type)
	req.Equal(int64(7), got.Chat.ID)
	req.Equal("general", got.Chat.RoomID)
	req.Equal("hello", got.Chat.Message)
	req.Equal("u1", got.Chat.AuthorID)
	req.Equal("Alice", got.Chat.AuthorName)
}

func TestBuildAcks_Shape(t *testing.T) {
	req := require.New(t)

	var joined struct {
		Type string `json:"type"`
		Slug string `json:"slug"`
	}
	req.NoError(json.Unmarshal(BuildJoinedExisting("general"), &joined))
	req.Equal(TypeJoinedExisting, joined.Type)
	req.Equal("general", joined.Slug)

	room := &storage.Room{ID: "1", Slug: "general", AdminID: "u1", MemberIDs: []string{"u1"}}
	var created struct {
		Type string        `json:"type"`
		Slug string        `json:"slug"`
		Room *storage.Room `json:"room"`
	}
	req.NoError(json.Unmarshal(BuildRoomCreated(room), &created))
	req.Equal(TypeRoomCreated, created.Type)
	req.Equal("general", created.Slug)
	req.Equal("u1", created.Room.AdminID)

	var e struct {
		Error string `json:"error"`
	}
	req.NoError(json.Unmarshal(BuildError("boom"), &e))
	req.Equal("boom", e.Error)
}
