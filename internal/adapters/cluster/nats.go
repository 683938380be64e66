package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pulse/internal/core"
)

// NATS adapts a nats.Conn onto the bus contract. Core NATS gives
// at-least-once fan-out for subscribers that are up, which is exactly
// the contract the services are written against.
type NATS struct {
	conn *nats.Conn
	subs []*nats.Subscription
}

var _ core.Bus = (*NATS)(nil)

func Connect(url, instance string) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("pulse-"+instance),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Str("module", "cluster.nats").Err(err).Msg("disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("module", "cluster.nats").Str("url", c.ConnectedUrl()).Msg("reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	log.Info().Str("module", "cluster.nats").Str("url", conn.ConnectedUrl()).Msg("connected")
	return &NATS{conn: conn}, nil
}

func (n *NATS) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.conn.Publish(subject, data)
}

func (n *NATS) Subscribe(subject string, fn func(data []byte)) error {
	sub, err := n.conn.Subscribe(subject, func(m *nats.Msg) { fn(m.Data) })
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	n.subs = append(n.subs, sub)
	return nil
}

func (n *NATS) Respond(subject string, fn func(data []byte) []byte) error {
	sub, err := n.conn.Subscribe(subject, func(m *nats.Msg) {
		if err := m.Respond(fn(m.Data)); err != nil {
			log.Warn().Str("module", "cluster.nats").Str("subject", subject).Err(err).Msg("respond failed")
		}
	})
	if err != nil {
		return fmt.Errorf("respond %s: %w", subject, err)
	}
	n.subs = append(n.subs, sub)
	return nil
}

func (n *NATS) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	msg, err := n.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, err
	}
	return msg.Data, nil
}

func (n *NATS) Close() {
	for _, s := range n.subs {
		_ = s.Unsubscribe()
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}
