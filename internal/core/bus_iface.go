package core

import "context"

// Bus connects gateway instances. Publish and Subscribe are
// fire-and-forget fan-out with at-least-once delivery, so consumers
// must tolerate duplicates. Request and Respond are one-to-one and
// carry forwarded sends to a room's owning instance.
type Bus interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(subject string, fn func(data []byte)) error
	Respond(subject string, fn func(data []byte) []byte) error
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
	Close()
}
