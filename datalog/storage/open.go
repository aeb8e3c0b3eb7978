package storage

import (
	"errors"
	"fmt"
)

// Backend kinds accepted by Open.
const (
	KindMemory = "memory"
	KindBadger = "badger"
	KindPebble = "pebble"
	KindSQLite = "sqlite"
)

// ErrUnknownBackend is returned by Open for an unrecognised kind.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Kinds lists the backend kinds in a stable order.
var Kinds = []string{KindMemory, KindBadger, KindPebble, KindSQLite}

// NeedsPath reports whether the backend kind persists to disk.
func NeedsPath(kind string) bool {
	return kind == KindBadger || kind == KindPebble || kind == KindSQLite
}

// Open creates a store of the given kind. path is ignored for memory.
func Open(kind, path string) (Store, error) {
	switch kind {
	case KindMemory, "":
		return NewMemoryStore(), nil
	case KindBadger:
		return NewBadgerStore(path)
	case KindPebble:
		return NewPebbleStore(path)
	case KindSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
}
