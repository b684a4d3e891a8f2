package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/optiforge/platform/optiforge/internal/models"
)

const runKeyPrefix = "run/"

// BadgerStore keeps each run as one JSON value under run/<id>. Every
// operation runs in its own transaction.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens a store in dir, or an in-memory one for ":memory:".
func OpenBadger(dir string) (*BadgerStore, error) {
	var opts badger.Options
	if dir == ":memory:" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir).WithSyncWrites(true)
	}
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func runKey(id string) []byte {
	return []byte(runKeyPrefix + id)
}

func (b *BadgerStore) CreateRun(ctx context.Context, rec models.RunRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode run: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(runKey(rec.ID)); err == nil {
			return ErrConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(runKey(rec.ID), val)
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return "", err
		}
		return "", fmt.Errorf("insert run: %w", err)
	}
	return rec.ID, nil
}

func (b *BadgerStore) GetRun(ctx context.Context, id string) (models.RunRecord, error) {
	var rec models.RunRecord
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return models.RunRecord{}, ErrNotFound
		}
		return models.RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	return rec, nil
}

func (b *BadgerStore) PutRun(ctx context.Context, rec models.RunRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(runKey(rec.ID)); err != nil {
			return err
		}
		return txn.Set(runKey(rec.ID), val)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func (b *BadgerStore) Ping(ctx context.Context) error {
	if b.db.IsClosed() {
		return errors.New("badger is closed")
	}
	return nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}
