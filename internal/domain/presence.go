package domain

import "time"

// Status is the user-visible presence state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusIdle    Status = "idle"
	StatusOffline Status = "offline"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusIdle, StatusOffline:
		return true
	}
	return false
}

// PresenceEntry is one user's liveness record. Deadline is the moment
// the entry expires unless a heartbeat renews it first.
type PresenceEntry struct {
	User     UserID    `json:"userId"`
	Status   Status    `json:"status"`
	RoomHint RoomID    `json:"roomHint,omitempty"`
	LastBeat time.Time `json:"lastBeat"`
	Deadline time.Time `json:"-"`
}
