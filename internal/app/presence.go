package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pulse/internal/domain"
	"github.com/dkeye/Pulse/internal/protocol"
)

// Presence tracks per-user liveness on this instance. Entries renew on
// heartbeat and lapse to offline when the deadline passes. Only status
// transitions fan out, renewals that keep the status stay quiet.
type Presence struct {
	mu      sync.Mutex
	entries map[domain.UserID]*domain.PresenceEntry

	reg     *Registry
	cluster *Cluster
	ttl     time.Duration
	sweep   time.Duration
	now     func() time.Time
}

func NewPresence(reg *Registry, cluster *Cluster, ttl, sweep time.Duration) *Presence {
	return &Presence{
		entries: make(map[domain.UserID]*domain.PresenceEntry),
		reg:     reg,
		cluster: cluster,
		ttl:     ttl,
		sweep:   sweep,
		now:     time.Now,
	}
}

// Heartbeat renews the user's entry with the reported status. The most
// recent heartbeat wins, whichever device it came from.
func (p *Presence) Heartbeat(ctx context.Context, user domain.UserID, status domain.Status, hint domain.RoomID) error {
	if !status.Valid() {
		return fmt.Errorf("%w: status %q", domain.ErrValidation, status)
	}
	now := p.now()
	p.mu.Lock()
	e, ok := p.entries[user]
	if !ok {
		e = &domain.PresenceEntry{User: user}
		p.entries[user] = e
	}
	changed := !ok || e.Status != status
	e.Status = status
	e.RoomHint = hint
	e.LastBeat = now
	e.Deadline = now.Add(p.ttl)
	p.mu.Unlock()

	if changed {
		p.announce(ctx, user, status, now)
	}
	return nil
}

// Status answers the local view. An entry past its deadline reads as
// offline even before the sweeper gets to it.
func (p *Presence) Status(user domain.UserID) domain.PresenceEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[user]; ok && p.now().Before(e.Deadline) {
		return *e
	}
	return domain.PresenceEntry{User: user, Status: domain.StatusOffline}
}

// Sweep evicts lapsed entries and announces the offline transition for
// any that were still visible.
func (p *Presence) Sweep(ctx context.Context) {
	now := p.now()
	p.mu.Lock()
	var lapsed []domain.UserID
	for user, e := range p.entries {
		if now.Before(e.Deadline) {
			continue
		}
		delete(p.entries, user)
		if e.Status != domain.StatusOffline {
			lapsed = append(lapsed, user)
		}
	}
	p.mu.Unlock()

	for _, user := range lapsed {
		log.Info().Str("module", "app.presence").Str("user", string(user)).Msg("presence lapsed")
		p.announce(ctx, user, domain.StatusOffline, now)
	}
}

// RunSweeper sweeps on the configured interval until ctx ends.
func (p *Presence) RunSweeper(ctx context.Context) {
	t := time.NewTicker(p.sweep)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Sweep(ctx)
		}
	}
}

// ApplyRemote pushes a transition announced by a peer to local clients.
// No entry is mirrored, the owning instance keeps the state.
func (p *Presence) ApplyRemote(user domain.UserID, status domain.Status, at time.Time) {
	if frame, ok := encode(protocol.NewPresenceChanged(user, status, at)); ok {
		p.reg.Broadcast(frame)
	}
}

func (p *Presence) announce(ctx context.Context, user domain.UserID, status domain.Status, at time.Time) {
	if frame, ok := encode(protocol.NewPresenceChanged(user, status, at)); ok {
		p.reg.Broadcast(frame)
	}
	p.cluster.Publish(ctx, subjectPresence, presenceEnvelope{
		Origin: p.cluster.Origin(),
		User:   user,
		Status: status,
		At:     at,
	})
}
