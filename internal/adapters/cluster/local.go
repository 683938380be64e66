// Package cluster provides the bus implementations that link gateway
// instances: NATS for real fleets and an in-process exchange for
// single-binary runs and tests.
package cluster

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/dkeye/Pulse/internal/core"
)

var ErrNoResponder = errors.New("no responder for subject")

type localSub struct {
	owner *Local
	fn    func([]byte)
}

type localResp struct {
	owner *Local
	fn    func([]byte) []byte
}

// Exchange is an in-process hub. Every Local joined to the same
// Exchange sees the others' publishes, never its own. Delivery is
// synchronous, which keeps multi-instance tests deterministic.
type Exchange struct {
	mu   sync.RWMutex
	subs map[string][]localSub
	resp map[string]localResp
}

func NewExchange() *Exchange {
	return &Exchange{
		subs: make(map[string][]localSub),
		resp: make(map[string]localResp),
	}
}

// Join attaches one instance to the exchange.
func (e *Exchange) Join(name string) *Local {
	return &Local{ex: e, name: name}
}

// Local is one instance's handle on the exchange.
type Local struct {
	ex   *Exchange
	name string

	mu     sync.Mutex
	closed bool
}

var _ core.Bus = (*Local)(nil)

func (l *Local) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.isClosed() {
		return errors.New("bus closed")
	}
	l.ex.mu.RLock()
	subs := append([]localSub(nil), l.ex.subs[subject]...)
	l.ex.mu.RUnlock()
	for _, s := range subs {
		if s.owner == l || s.owner.isClosed() {
			continue
		}
		s.fn(bytes.Clone(data))
	}
	return nil
}

func (l *Local) Subscribe(subject string, fn func(data []byte)) error {
	l.ex.mu.Lock()
	defer l.ex.mu.Unlock()
	l.ex.subs[subject] = append(l.ex.subs[subject], localSub{owner: l, fn: fn})
	return nil
}

func (l *Local) Respond(subject string, fn func(data []byte) []byte) error {
	l.ex.mu.Lock()
	defer l.ex.mu.Unlock()
	l.ex.resp[subject] = localResp{owner: l, fn: fn}
	return nil
}

func (l *Local) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.ex.mu.RLock()
	r, ok := l.ex.resp[subject]
	l.ex.mu.RUnlock()
	if !ok || r.owner.isClosed() {
		return nil, ErrNoResponder
	}
	return r.fn(bytes.Clone(data)), nil
}

func (l *Local) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

func (l *Local) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
