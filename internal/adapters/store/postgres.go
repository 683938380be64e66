package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
)

const messagesSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	room_id    TEXT        NOT NULL,
	sender_id  TEXT        NOT NULL,
	op         TEXT        NOT NULL,
	ref        TEXT        NOT NULL DEFAULT '',
	idem_key   TEXT        NOT NULL DEFAULT '',
	seq        BIGINT      NOT NULL,
	payload    TEXT        NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (room_id, seq)
)`

// Postgres is the driver for fleets: every instance appends to the same
// table, and the unique (room_id, seq) pair backs up the owner's
// gapless sequencing at the database.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ core.MessageStore = (*Postgres)(nil)

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, messagesSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Append(ctx context.Context, msg domain.Message) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO messages (id, room_id, sender_id, op, ref, idem_key, seq, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.ID, string(msg.Room), string(msg.Sender), string(msg.Op), msg.Ref, msg.Key, int64(msg.Seq), msg.Payload, msg.Created,
	)
	if err != nil {
		return fmt.Errorf("%w: append %s: %v", domain.ErrStore, msg.ID, err)
	}
	return nil
}

func (p *Postgres) Find(ctx context.Context, id string) (domain.Message, error) {
	var (
		msg  domain.Message
		room string
		from string
		op   string
		seq  int64
	)
	err := p.pool.QueryRow(ctx,
		`SELECT id, room_id, sender_id, op, ref, idem_key, seq, payload, created_at
		 FROM messages WHERE id = $1`, id,
	).Scan(&msg.ID, &room, &from, &op, &msg.Ref, &msg.Key, &seq, &msg.Payload, &msg.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, fmt.Errorf("%w: message %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: find %s: %v", domain.ErrStore, id, err)
	}
	msg.Room = domain.RoomID(room)
	msg.Sender = domain.UserID(from)
	msg.Op = domain.Op(op)
	msg.Seq = uint64(seq)
	return msg, nil
}

func (p *Postgres) LastSequence(ctx context.Context, room domain.RoomID) (uint64, error) {
	var last int64
	err := p.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE room_id = $1`, string(room),
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("%w: last sequence of %s: %v", domain.ErrStore, room, err)
	}
	return uint64(last), nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
