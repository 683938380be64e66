package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Pulse/internal/adapters/cluster"
	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
)

// flakyBus fails the first n publishes, then behaves.
type flakyBus struct {
	core.Bus
	fails int
}

func (b *flakyBus) Publish(ctx context.Context, subject string, data []byte) error {
	if b.fails > 0 {
		b.fails--
		return errors.New("bus down")
	}
	return b.Bus.Publish(ctx, subject, data)
}

func TestClusterPublishRetriesTransientFailure(t *testing.T) {
	req := require.New(t)
	ex := cluster.NewExchange()
	a, b := ex.Join("a"), ex.Join("b")

	var got [][]byte
	req.NoError(b.Subscribe("pulse.test", func(data []byte) { got = append(got, data) }))

	clu := NewCluster(&flakyBus{Bus: a, fails: 2}, "a", 3, time.Millisecond)
	clu.Publish(context.Background(), "pulse.test", map[string]string{"k": "v"})

	req.Len(got, 1, "two transient failures still land within the configured retries")
	req.JSONEq(`{"k":"v"}`, string(got[0]))
}

func TestClusterPublishDropsOnExhaustedRetries(t *testing.T) {
	req := require.New(t)
	ex := cluster.NewExchange()
	a, b := ex.Join("a"), ex.Join("b")

	var got int
	req.NoError(b.Subscribe("pulse.test", func([]byte) { got++ }))

	clu := NewCluster(&flakyBus{Bus: a, fails: 10}, "a", 2, time.Millisecond)
	clu.Publish(context.Background(), "pulse.test", map[string]string{"k": "v"})

	req.Zero(got, "exhausted retries drop the publish instead of blocking the sender")
}

func TestClusterRequestRoundtrip(t *testing.T) {
	req := require.New(t)
	ex := cluster.NewExchange()
	a, b := ex.Join("a"), ex.Join("b")

	req.NoError(b.Respond(sendSubject("b"), func(data []byte) []byte {
		return []byte(`{"duplicate":true,"message":{"id":"m1","sequence":7}}`)
	}))

	clu := NewCluster(a, "a", 1, time.Millisecond)
	var rep sendReply
	err := clu.Request(context.Background(), sendSubject("b"), sendRequest{User: "alice", Room: "channel:dev"}, &rep)
	req.NoError(err)
	req.True(rep.Duplicate)
	req.Equal(uint64(7), rep.Message.Seq)
}

func TestClusterRequestWithoutResponder(t *testing.T) {
	req := require.New(t)
	ex := cluster.NewExchange()
	clu := NewCluster(ex.Join("a"), "a", 1, time.Millisecond)
	var rep sendReply
	err := clu.Request(context.Background(), sendSubject("ghost"), sendRequest{}, &rep)
	req.ErrorIs(err, domain.ErrTransientCluster)
}

func TestClusterSingleNodeModeIsNoop(t *testing.T) {
	req := require.New(t)
	clu := NewCluster(nil, "solo", 1, time.Millisecond)
	req.False(clu.Enabled())
	req.Equal("solo", clu.Origin())

	clu.Publish(context.Background(), "pulse.test", map[string]string{})
	req.NoError(clu.Subscribe("pulse.test", func([]byte) {}))
	req.NoError(clu.Respond("pulse.test", func([]byte) []byte { return nil }))

	var rep sendReply
	err := clu.Request(context.Background(), sendSubject("b"), sendRequest{}, &rep)
	req.ErrorIs(err, domain.ErrTransientCluster, "forwarding needs a bus")
}
