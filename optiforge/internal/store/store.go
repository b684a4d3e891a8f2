package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/optiforge/platform/optiforge/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Store is a key-addressed run record store. Every write replaces the whole
// record; readers never see a partially updated run.
type Store interface {
	// CreateRun persists a new record and returns its id. An empty rec.ID is
	// assigned by the store.
	CreateRun(ctx context.Context, rec models.RunRecord) (string, error)
	GetRun(ctx context.Context, id string) (models.RunRecord, error)
	// PutRun overwrites an existing record. It returns ErrNotFound when no
	// record with rec.ID exists.
	PutRun(ctx context.Context, rec models.RunRecord) error
	Ping(ctx context.Context) error
	Close() error
}

// Open returns the store addressed by databaseURL:
//
//	memory://                  in-process map
//	sqlite:///data/runs.db     SQLite file, relative path (four slashes for absolute)
//	postgres://user@host/db    PostgreSQL
//	badger:///data/runs        Badger directory, badger:///:memory: for in-memory
func Open(ctx context.Context, databaseURL string) (Store, error) {
	scheme, rest, ok := strings.Cut(databaseURL, "://")
	if !ok {
		return nil, fmt.Errorf("database url %q has no scheme", databaseURL)
	}
	switch scheme {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		path, err := localPath(databaseURL, rest)
		if err != nil {
			return nil, err
		}
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		s, err := OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres", "postgresql":
		s, err := OpenPostgres(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "badger":
		path, err := localPath(databaseURL, rest)
		if err != nil {
			return nil, err
		}
		s, err := OpenBadger(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database scheme %q", scheme)
	}
}

// localPath takes the part after "scheme://". It must start with "/"; that
// slash is dropped so sqlite:///data/x.db names data/x.db.
func localPath(databaseURL, rest string) (string, error) {
	if !strings.HasPrefix(rest, "/") || len(rest) < 2 {
		return "", fmt.Errorf("database url %q must look like scheme:///path", databaseURL)
	}
	return rest[1:], nil
}
