package storage

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/query"
)

// BadgerStore implements Store using BadgerDB. Each fact is written as three
// keys, one per permutation; values are empty.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) a BadgerDB-backed store at path. An
// empty path opens an in-memory database.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable BadgerDB logs
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	// Keys only: keep everything in the LSM tree
	opts.DetectConflicts = false
	opts.NumCompactors = 2

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// SetFact writes the fact to all indices
func (s *BadgerStore) SetFact(f datalog.Fact) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, idx := range AllIndexes {
			if err := txn.Set(EncodeKey(idx, f), []byte{}); err != nil {
				return fmt.Errorf("failed to write to %v index: %w", idx, err)
			}
		}
		return nil
	})
}

// UnsetFact removes the fact from all indices
func (s *BadgerStore) UnsetFact(f datalog.Fact) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, idx := range AllIndexes {
			if err := txn.Delete(EncodeKey(idx, f)); err != nil && err != badger.ErrKeyNotFound {
				return fmt.Errorf("failed to delete from %v index: %w", idx, err)
			}
		}
		return nil
	})
}

// EvaluateExpression runs a key-only prefix scan on the planned index.
func (s *BadgerStore) EvaluateExpression(e query.Expression) (query.Result, error) {
	plan := PlanExpression(e)
	prefix := EncodePrefix(plan.Index, plan.Prefix...)

	var facts []datalog.Fact
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // KEY ONLY
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			_, f, err := DecodeKey(it.Item().Key())
			if err != nil {
				return err
			}
			facts = append(facts, f)
		}
		return nil
	})
	if err != nil {
		return query.Result{}, fmt.Errorf("badger scan %s: %w", plan.Index, err)
	}
	return BindFacts(e, facts), nil
}

// Close closes the store
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
