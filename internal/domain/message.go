package domain

import "time"

// Op tells what a message record does to the stream.
type Op string

const (
	OpCreate Op = "create"
	OpEdit   Op = "edit"
	OpDelete Op = "delete"
)

// Message is one record in a room's ordered stream. Edits and deletes
// are records of their own: Ref points at the message they act on and
// Seq is freshly assigned, so the stream stays append-only.
type Message struct {
	ID      string    `json:"id"`
	Room    RoomID    `json:"roomId"`
	Sender  UserID    `json:"senderId"`
	Op      Op        `json:"op"`
	Ref     string    `json:"ref,omitempty"`
	Key     string    `json:"key,omitempty"`
	Seq     uint64    `json:"sequence"`
	Payload string    `json:"payload,omitempty"`
	Created time.Time `json:"createdAt"`
}
