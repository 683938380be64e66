package core

// Frame is a raw binary payload.
type Frame []byte

// ConnID identifies one live connection. A user may hold several at once.
type ConnID string

// Conn abstracts a connection's outbound transport endpoint.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	TrySend(Frame) error
	Close()
}
