// Package protocol defines the frames the gateway pushes to clients.
// Inbound payloads are decoded next to their handlers in the ws adapter.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Pulse/internal/domain"
)

const (
	TypeError   = "error"
	TypePong    = "pong"
	TypeRoomAck = "channel:ack"

	TypeMemberJoined = "member-joined"
	TypeMemberLeft   = "member-left"

	TypeMessageAck     = "message:ack"
	TypeMessageNew     = "message:new"
	TypeMessageUpdated = "message:updated"
	TypeMessageDeleted = "message:deleted"

	TypePresenceChanged = "presence:changed"

	TypeTypingActive   = "typing:active"
	TypeTypingInactive = "typing:inactive"

	TypeCallJoined   = "call:joined"
	TypeCallSignal   = "call:signal"
	TypeCallPeerLeft = "call:peer-left"
	TypeCallEnded    = "call:ended"
)

type Error struct {
	Type    string `json:"type"`
	Op      string `json:"op,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewError(op string, err error) Error {
	return Error{Type: TypeError, Op: op, Code: domain.CodeOf(err), Message: err.Error()}
}

type Pong struct {
	Type string `json:"type"`
}

func NewPong() Pong { return Pong{Type: TypePong} }

// RoomAck answers a join or leave. Members and Seq are the room
// snapshot and only travel on joins.
type RoomAck struct {
	Type    string          `json:"type"`
	Op      string          `json:"op"`
	Room    domain.RoomID   `json:"roomId"`
	Members []domain.UserID `json:"members,omitempty"`
	Count   int             `json:"count,omitempty"`
	Seq     uint64          `json:"sequence,omitempty"`
}

func NewJoinAck(room domain.RoomID, members []domain.UserID, seq uint64) RoomAck {
	return RoomAck{Type: TypeRoomAck, Op: "join", Room: room, Members: members, Count: len(members), Seq: seq}
}

func NewLeaveAck(room domain.RoomID) RoomAck {
	return RoomAck{Type: TypeRoomAck, Op: "leave", Room: room}
}

type MemberEvent struct {
	Type string        `json:"type"`
	Room domain.RoomID `json:"roomId"`
	User domain.UserID `json:"userId"`
	At   time.Time     `json:"at"`
}

func NewMemberJoined(room domain.RoomID, user domain.UserID, at time.Time) MemberEvent {
	return MemberEvent{Type: TypeMemberJoined, Room: room, User: user, At: at}
}

func NewMemberLeft(room domain.RoomID, user domain.UserID, at time.Time) MemberEvent {
	return MemberEvent{Type: TypeMemberLeft, Room: room, User: user, At: at}
}

// MessageAck confirms a send to its author. Duplicate marks a replay
// answered with the originally accepted message.
type MessageAck struct {
	Type      string        `json:"type"`
	Room      domain.RoomID `json:"roomId"`
	ID        string        `json:"id"`
	Key       string        `json:"key,omitempty"`
	Seq       uint64        `json:"sequence"`
	Duplicate bool          `json:"duplicate,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

func NewMessageAck(msg domain.Message, duplicate bool) MessageAck {
	return MessageAck{
		Type:      TypeMessageAck,
		Room:      msg.Room,
		ID:        msg.ID,
		Key:       msg.Key,
		Seq:       msg.Seq,
		Duplicate: duplicate,
		CreatedAt: msg.Created,
	}
}

// MessageEvent is the room-wide push for a stream record. The embedded
// message is stripped of its idempotency key, which is private to the
// author.
type MessageEvent struct {
	Type string `json:"type"`
	domain.Message
}

func NewMessageEvent(msg domain.Message) MessageEvent {
	msg.Key = ""
	t := TypeMessageNew
	switch msg.Op {
	case domain.OpEdit:
		t = TypeMessageUpdated
	case domain.OpDelete:
		t = TypeMessageDeleted
	}
	return MessageEvent{Type: t, Message: msg}
}

type PresenceChanged struct {
	Type   string        `json:"type"`
	User   domain.UserID `json:"userId"`
	Status domain.Status `json:"status"`
	At     time.Time     `json:"at"`
}

func NewPresenceChanged(user domain.UserID, status domain.Status, at time.Time) PresenceChanged {
	return PresenceChanged{Type: TypePresenceChanged, User: user, Status: status, At: at}
}

type TypingEvent struct {
	Type string        `json:"type"`
	Room domain.RoomID `json:"roomId"`
	User domain.UserID `json:"userId"`
}

func NewTypingActive(room domain.RoomID, user domain.UserID) TypingEvent {
	return TypingEvent{Type: TypeTypingActive, Room: room, User: user}
}

func NewTypingInactive(room domain.RoomID, user domain.UserID) TypingEvent {
	return TypingEvent{Type: TypeTypingInactive, Room: room, User: user}
}

type CallJoined struct {
	Type         string               `json:"type"`
	Room         domain.RoomID        `json:"roomId"`
	User         domain.UserID        `json:"userId"`
	Participants []domain.Participant `json:"participants"`
}

func NewCallJoined(room domain.RoomID, user domain.UserID, roster []domain.Participant) CallJoined {
	return CallJoined{Type: TypeCallJoined, Room: room, User: user, Participants: roster}
}

// CallSignal relays one signaling payload between two call participants.
// Kind is offer, answer or ice; the payload passes through opaque.
type CallSignal struct {
	Type    string          `json:"type"`
	Room    domain.RoomID   `json:"roomId"`
	From    domain.UserID   `json:"fromUserId"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func NewCallSignal(room domain.RoomID, from domain.UserID, kind string, payload json.RawMessage) CallSignal {
	return CallSignal{Type: TypeCallSignal, Room: room, From: from, Kind: kind, Payload: payload}
}

type CallPeerLeft struct {
	Type string        `json:"type"`
	Room domain.RoomID `json:"roomId"`
	User domain.UserID `json:"userId"`
}

func NewCallPeerLeft(room domain.RoomID, user domain.UserID) CallPeerLeft {
	return CallPeerLeft{Type: TypeCallPeerLeft, Room: room, User: user}
}

type CallEnded struct {
	Type   string        `json:"type"`
	Room   domain.RoomID `json:"roomId"`
	Reason string        `json:"reason"`
}

func NewCallEnded(room domain.RoomID, reason string) CallEnded {
	return CallEnded{Type: TypeCallEnded, Room: room, Reason: reason}
}
