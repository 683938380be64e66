package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"

	"github.com/dkeye/Pulse/internal/core"
	"github.com/dkeye/Pulse/internal/domain"
)

// Badger persists the stream in an embedded key-value store. Records
// are written twice: once under their id for lookups, once under a
// zero-padded sequence key so the last sequence of a room is one
// reverse seek away.
type Badger struct {
	db *badger.DB
}

var _ core.MessageStore = (*Badger)(nil)

func OpenBadger(dir string) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return &Badger{db: db}, nil
}

func idKey(id string) []byte {
	return []byte("id/" + id)
}

// seqPrefix ends with a zero byte so one room's keys can never run into
// another's.
func seqPrefix(room domain.RoomID) []byte {
	return append([]byte("seq/"+room), 0)
}

func seqKey(room domain.RoomID, seq uint64) []byte {
	return append(seqPrefix(room), []byte(fmt.Sprintf("%019d", seq))...)
}

func (b *Badger) Append(ctx context.Context, msg domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", domain.ErrStore, msg.ID, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(idKey(msg.ID), data); err != nil {
			return err
		}
		return txn.Set(seqKey(msg.Room, msg.Seq), []byte(msg.ID))
	})
	if err != nil {
		return fmt.Errorf("%w: append %s: %v", domain.ErrStore, msg.ID, err)
	}
	return nil
}

func (b *Badger) Find(ctx context.Context, id string) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	var msg domain.Message
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(idKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &msg)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, fmt.Errorf("%w: message %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: find %s: %v", domain.ErrStore, id, err)
	}
	return msg, nil
}

func (b *Badger) LastSequence(ctx context.Context, room domain.RoomID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var last uint64
	prefix := seqPrefix(room)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		// seek past the largest possible key of this prefix, then the
		// first valid position is the highest sequence
		it.Seek(append(append([]byte{}, prefix...), 0xFF))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		key := it.Item().Key()
		n, err := strconv.ParseUint(string(key[len(prefix):]), 10, 64)
		if err != nil {
			return err
		}
		last = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: last sequence of %s: %v", domain.ErrStore, room, err)
	}
	return last, nil
}

func (b *Badger) Close() error { return b.db.Close() }
