package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoomID(t *testing.T) {
	req := require.New(t)

	for _, raw := range []string{"channel:general", "conversation:alice-bob", "call:standup"} {
		id, err := ParseRoomID(raw)
		req.NoError(err)
		req.Equal(RoomID(raw), id)
	}

	_, err := ParseRoomID("")
	req.ErrorIs(err, ErrRoomIDEmpty)

	_, err = ParseRoomID("channel:" + strings.Repeat("x", MaxRoomIDLen))
	req.ErrorIs(err, ErrRoomIDTooLong)

	for _, raw := range []string{"general", "dm:alice", "channel:", ":general"} {
		_, err := ParseRoomID(raw)
		req.ErrorIs(err, ErrRoomKind, "raw %q", raw)
	}
}

func TestRoomIDKind(t *testing.T) {
	req := require.New(t)
	req.Equal(RoomChannel, RoomID("channel:general").Kind())
	req.Equal(RoomConversation, RoomID("conversation:a-b").Kind())
	req.Equal(RoomCall, RoomID("call:standup").Kind())
}

func TestRoomIDSequenced(t *testing.T) {
	req := require.New(t)
	req.True(RoomID("channel:general").Sequenced())
	req.True(RoomID("conversation:a-b").Sequenced())
	req.False(RoomID("call:standup").Sequenced())
}
