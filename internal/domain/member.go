package domain

import "time"

// Participant represents user's participation meta for a call session.
// No transport or lifecycle logic here.
type Participant struct {
	User     UserID    `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// NewParticipant avoids raw literals in services and keeps construction obvious.
func NewParticipant(user UserID, at time.Time) Participant {
	return Participant{User: user, JoinedAt: at}
}
