package domain

import (
	"errors"
	"strings"
)

type RoomID string

// RoomKind is the namespace prefix of a RoomID. The kind decides how
// events in the room behave: channels and conversations carry an
// ordered message stream, call rooms only carry a roster and signaling.
type RoomKind string

const (
	RoomChannel      RoomKind = "channel"
	RoomConversation RoomKind = "conversation"
	RoomCall         RoomKind = "call"
)

const MaxRoomIDLen = 128

var (
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
	ErrRoomKind      = errors.New("unknown room kind")
)

// ParseRoomID checks the "<kind>:<name>" form used everywhere on the wire.
func ParseRoomID(raw string) (RoomID, error) {
	if raw == "" {
		return "", ErrRoomIDEmpty
	}
	if len(raw) > MaxRoomIDLen {
		return "", ErrRoomIDTooLong
	}
	kind, name, ok := strings.Cut(raw, ":")
	if !ok || name == "" {
		return "", ErrRoomKind
	}
	switch RoomKind(kind) {
	case RoomChannel, RoomConversation, RoomCall:
		return RoomID(raw), nil
	}
	return "", ErrRoomKind
}

func (id RoomID) Kind() RoomKind {
	kind, _, _ := strings.Cut(string(id), ":")
	return RoomKind(kind)
}

// Sequenced reports whether the room carries an ordered message stream.
func (id RoomID) Sequenced() bool {
	k := id.Kind()
	return k == RoomChannel || k == RoomConversation
}
