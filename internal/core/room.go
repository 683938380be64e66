package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Pulse/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Room is a threadsafe in-memory fan-out domain: membership of one
// channel, conversation or call roster, plus the stream state for
// sequenced kinds. It never closes adapter-owned resources.
type Room struct {
	id domain.RoomID

	mu     sync.RWMutex
	byConn map[ConnID]domain.UserID

	// sendMu serializes the accept path. A room has exactly one writer
	// at a time: dedup lookup, sequence assignment and persistence all
	// happen inside it.
	sendMu    sync.Mutex
	seq       uint64
	seeded    bool
	delivered uint64
	dedup     map[string]dedupEntry
	window    time.Duration

	// pending counts in-flight sends so the manager never reclaims a
	// room that still references stream state.
	pending atomic.Int32
}

type dedupEntry struct {
	msg  domain.Message
	seen time.Time
}

func NewRoom(id domain.RoomID, dedupWindow time.Duration) *Room {
	return &Room{
		id:     id,
		byConn: make(map[ConnID]domain.UserID),
		dedup:  make(map[string]dedupEntry),
		window: dedupWindow,
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

// Add registers a connection as a member. Re-joining is a no-op and
// reports false so callers skip the announce.
func (r *Room) Add(conn ConnID, user domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byConn[conn]; ok {
		return false
	}
	r.byConn[conn] = user
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("conn", string(conn)).Str("user", string(user)).Msg("member added")
	return true
}

func (r *Room) Remove(conn ConnID) (domain.UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byConn[conn]
	if !ok {
		return "", false
	}
	delete(r.byConn, conn)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("conn", string(conn)).Msg("member removed")
	return user, true
}

func (r *Room) Has(conn ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byConn[conn]
	return ok
}

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

func (r *Room) Conns() []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.byConn)
}

// UserConns lists the member connections belonging to one user.
func (r *Room) UserConns(user domain.UserID) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ConnID
	for cid, uid := range r.byConn {
		if uid == user {
			out = append(out, cid)
		}
	}
	return out
}

// Users is the roster snapshot: every distinct member user.
func (r *Room) Users() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Uniq(lo.Values(r.byConn))
}

// EnsureSeeded loads the last persisted sequence once, lazily, so a
// reclaimed room resumes its stream instead of restarting at one.
func (r *Room) EnsureSeeded(last func() (uint64, error)) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	if r.seeded {
		return nil
	}
	n, err := last()
	if err != nil {
		return err
	}
	if n > r.seq {
		r.seq = n
	}
	r.seeded = true
	return nil
}

// Accept runs one message through the room's single-writer section:
// dedup lookup, next sequence, persist, commit. The second return is
// true when the idempotency key was already spent, in which case the
// original message comes back instead of a new one. The sequence is
// consumed only when persist succeeds, so the stream never gaps.
func (r *Room) Accept(msg domain.Message, persist func(domain.Message) error) (domain.Message, bool, error) {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	r.prune(msg.Created)
	if msg.Key != "" {
		if prior, ok := r.dedup[msg.Key]; ok {
			return prior.msg, true, nil
		}
	}

	next := r.seq + 1
	msg.Seq = next
	if err := persist(msg); err != nil {
		return domain.Message{}, false, err
	}
	r.seq = next
	if msg.Key != "" {
		r.dedup[msg.Key] = dedupEntry{msg: msg, seen: msg.Created}
	}
	return msg, false, nil
}

// Sequence answers the last assigned sequence, zero until seeded.
func (r *Room) Sequence() uint64 {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	return r.seq
}

// MarkDelivered reports whether seq is new for local delivery and
// records it. The bus redelivers, so stale marks come back false and
// the frame must be dropped.
func (r *Room) MarkDelivered(seq uint64) bool {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	if seq <= r.delivered {
		return false
	}
	r.delivered = seq
	return true
}

// StreamIdle reports whether the dedup window holds no live entries.
// A room with recent sends keeps its window until it drains.
func (r *Room) StreamIdle(now time.Time) bool {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	r.prune(now)
	return len(r.dedup) == 0
}

func (r *Room) prune(now time.Time) {
	if r.window <= 0 {
		return
	}
	cut := now.Add(-r.window)
	for key, e := range r.dedup {
		if e.seen.Before(cut) {
			delete(r.dedup, key)
		}
	}
}

func (r *Room) AddPending()  { r.pending.Add(1) }
func (r *Room) DonePending() { r.pending.Add(-1) }

// Idle reports whether the room holds no members and no in-flight
// sends, i.e. it is safe to reclaim.
func (r *Room) Idle() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn) == 0 && r.pending.Load() == 0
}
