package storage

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"
	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/index"
	"github.com/wbrown/janus-reactive/datalog/query"
)

// arena holds one copy of every live fact. Indexes store slot numbers into
// it instead of their own copies of the payload.
type arena struct {
	facts []datalog.Fact
	slots map[datalog.Fact]uint32
	free  []uint32
	live  *roaring.Bitmap
}

func newArena() *arena {
	return &arena{
		slots: make(map[datalog.Fact]uint32),
		live:  roaring.New(),
	}
}

func (a *arena) lookup(f datalog.Fact) (uint32, bool) {
	slot, ok := a.slots[f]
	return slot, ok
}

func (a *arena) alloc(f datalog.Fact) uint32 {
	var slot uint32
	if n := len(a.free); n > 0 {
		slot = a.free[n-1]
		a.free = a.free[:n-1]
		a.facts[slot] = f
	} else {
		slot = uint32(len(a.facts))
		a.facts = append(a.facts, f)
	}
	a.slots[f] = slot
	a.live.Add(slot)
	return slot
}

func (a *arena) release(slot uint32) {
	delete(a.slots, a.facts[slot])
	a.facts[slot] = datalog.Fact{}
	a.free = append(a.free, slot)
	a.live.Remove(slot)
}

// MemoryStore keeps the fact set as sorted arrays, one per permutation, all
// referencing a shared arena. It is not safe for concurrent use: callers
// serialize access (see transactor.Engine).
type MemoryStore struct {
	arena   *arena
	indexes [numIndexes]*index.Index[uint32]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{arena: newArena()}
	dirs := []datalog.Direction{datalog.Ascending, datalog.Ascending, datalog.Ascending}
	for _, idx := range AllIndexes {
		perm := permutations[idx]
		s.indexes[idx] = index.New(dirs, func(slot uint32, i int) datalog.Value {
			return s.arena.facts[slot][perm[i]]
		})
	}
	return s
}

// SetFact adds the fact to every permutation.
func (s *MemoryStore) SetFact(f datalog.Fact) error {
	if _, ok := s.arena.lookup(f); ok {
		return nil
	}
	slot := s.arena.alloc(f)
	for _, ix := range s.indexes {
		ix.Add(slot)
	}
	return nil
}

// UnsetFact removes the fact from every permutation.
func (s *MemoryStore) UnsetFact(f datalog.Fact) error {
	slot, ok := s.arena.lookup(f)
	if !ok {
		return nil
	}
	for _, ix := range s.indexes {
		ix.Remove(slot)
	}
	s.arena.release(slot)
	return nil
}

// EvaluateExpression scans the permutation chosen by PlanExpression.
func (s *MemoryStore) EvaluateExpression(e query.Expression) (query.Result, error) {
	plan := PlanExpression(e)
	slots, err := s.indexes[plan.Index].Scan(index.Prefix(plan.Prefix...))
	if err != nil {
		return query.Result{}, fmt.Errorf("scan %s: %w", plan.Index, err)
	}
	facts := make([]datalog.Fact, len(slots))
	for i, slot := range slots {
		facts[i] = s.arena.facts[slot]
	}
	return BindFacts(e, facts), nil
}

// Len returns the number of facts.
func (s *MemoryStore) Len() int {
	return int(s.arena.live.GetCardinality())
}

// Facts returns every fact in the order of the given permutation.
func (s *MemoryStore) Facts(idx IndexType) []datalog.Fact {
	slots := s.indexes[idx].Rows()
	facts := make([]datalog.Fact, len(slots))
	for i, slot := range slots {
		facts[i] = s.arena.facts[slot]
	}
	return facts
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
