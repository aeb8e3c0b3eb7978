package storage

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/query"
)

// PebbleStore implements Store using Pebble with the same key layout as
// BadgerStore.
type PebbleStore struct {
	db *pebble.DB
}

var _ Store = (*PebbleStore)(nil)

// NewPebbleStore opens (or creates) a Pebble-backed store at path.
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// SetFact writes the fact to all indices in one batch.
func (s *PebbleStore) SetFact(f datalog.Fact) error {
	b := s.db.NewBatch()
	defer b.Close()
	for _, idx := range AllIndexes {
		if err := b.Set(EncodeKey(idx, f), nil, nil); err != nil {
			return fmt.Errorf("failed to write to %v index: %w", idx, err)
		}
	}
	return b.Commit(pebble.Sync)
}

// UnsetFact removes the fact from all indices in one batch.
func (s *PebbleStore) UnsetFact(f datalog.Fact) error {
	b := s.db.NewBatch()
	defer b.Close()
	for _, idx := range AllIndexes {
		if err := b.Delete(EncodeKey(idx, f), nil); err != nil {
			return fmt.Errorf("failed to delete from %v index: %w", idx, err)
		}
	}
	return b.Commit(pebble.Sync)
}

// EvaluateExpression iterates the planned index between the prefix bounds.
func (s *PebbleStore) EvaluateExpression(e query.Expression) (query.Result, error) {
	plan := PlanExpression(e)
	lower, upper := EncodePrefixRange(plan.Index, plan.Prefix...)

	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return query.Result{}, fmt.Errorf("pebble iterator: %w", err)
	}

	var facts []datalog.Fact
	for valid := it.First(); valid; valid = it.Next() {
		_, f, err := DecodeKey(it.Key())
		if err != nil {
			_ = it.Close()
			return query.Result{}, fmt.Errorf("pebble scan %s: %w", plan.Index, err)
		}
		facts = append(facts, f)
	}
	if err := it.Close(); err != nil {
		return query.Result{}, fmt.Errorf("pebble scan %s: %w", plan.Index, err)
	}
	return BindFacts(e, facts), nil
}

// Close closes the store
func (s *PebbleStore) Close() error {
	return s.db.Close()
}
