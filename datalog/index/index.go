// Package index implements a sorted array of fixed-arity tuples with
// binary-search insert, remove and range scan.
//
// An Index does not own tuple storage: rows are opaque handles of type R and
// a column accessor projects a row onto its tuple columns. The in-memory store
// uses arena slot numbers as rows, so every permutation shares one copy of
// each fact; Tuple rows are available for standalone use through NewTupleIndex.
package index

import (
	"errors"
	"fmt"

	"github.com/wbrown/janus-reactive/datalog"
)

// ErrInvalidBounds is returned by Scan when the lower bound sorts after the
// upper bound.
var ErrInvalidBounds = errors.New("invalid bounds")

// Tuple is a row of values. Bound tuples may also contain datalog.Min and
// datalog.Max.
type Tuple []datalog.Value

// Column returns column i of row.
type Column[R any] func(row R, i int) datalog.Value

// Index keeps rows sorted by their projected tuple under a per-column
// directional comparator. It holds no duplicates.
type Index[R any] struct {
	directions []datalog.Direction
	column     Column[R]
	rows       []R
}

// New creates an empty index over rows projected through column.
func New[R any](directions []datalog.Direction, column Column[R]) *Index[R] {
	if len(directions) == 0 {
		panic("index: at least one column is required")
	}
	dirs := make([]datalog.Direction, len(directions))
	copy(dirs, directions)
	return &Index[R]{directions: dirs, column: column}
}

// NewTupleIndex creates an index whose rows are the tuples themselves.
func NewTupleIndex(directions ...datalog.Direction) *Index[Tuple] {
	return New(directions, func(t Tuple, i int) datalog.Value { return t[i] })
}

// Arity returns the number of columns.
func (ix *Index[R]) Arity() int {
	return len(ix.directions)
}

// Len returns the number of rows.
func (ix *Index[R]) Len() int {
	return len(ix.rows)
}

// Rows returns a copy of the rows in index order.
func (ix *Index[R]) Rows() []R {
	out := make([]R, len(ix.rows))
	copy(out, ix.rows)
	return out
}

// Add inserts row at its sorted position. Adding a row whose tuple is
// already present is a no-op. Reports whether the row was inserted.
func (ix *Index[R]) Add(row R) bool {
	pos, found := ix.search(func(other R) int { return ix.compareRows(row, other) })
	if found {
		return false
	}
	var zero R
	ix.rows = append(ix.rows, zero)
	copy(ix.rows[pos+1:], ix.rows[pos:])
	ix.rows[pos] = row
	return true
}

// Remove deletes the row whose tuple equals row's tuple. Removing an absent
// tuple is a no-op. Reports whether a row was removed.
func (ix *Index[R]) Remove(row R) bool {
	pos, found := ix.search(func(other R) int { return ix.compareRows(row, other) })
	if !found {
		return false
	}
	copy(ix.rows[pos:], ix.rows[pos+1:])
	var zero R
	ix.rows[len(ix.rows)-1] = zero
	ix.rows = ix.rows[:len(ix.rows)-1]
	return true
}

// search binary-searches rows with cmp, which compares the probe against a
// row. It returns the matching position, or the insertion position when
// nothing matches.
func (ix *Index[R]) search(cmp func(R) int) (int, bool) {
	lo, hi := 0, len(ix.rows)-1
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		dir := cmp(ix.rows[mid])
		if dir > 0 {
			lo = mid + 1
		} else if dir < 0 {
			hi = mid - 1
		} else {
			return mid, true
		}
	}
	return lo, false
}

func (ix *Index[R]) compareRows(a, b R) int {
	for i, dir := range ix.directions {
		if c := datalog.CompareValues(ix.column(a, i), ix.column(b, i)) * int(dir); c != 0 {
			return c
		}
	}
	return 0
}

func (ix *Index[R]) compareBound(t Tuple, row R) int {
	for i, dir := range ix.directions {
		if c := datalog.CompareValues(t[i], ix.column(row, i)) * int(dir); c != 0 {
			return c
		}
	}
	return 0
}

// strictlyIncreasing reports whether rows are sorted with no duplicates.
func (ix *Index[R]) strictlyIncreasing() bool {
	for i := 1; i < len(ix.rows); i++ {
		if ix.compareRows(ix.rows[i-1], ix.rows[i]) >= 0 {
			return false
		}
	}
	return true
}

func (ix *Index[R]) String() string {
	return fmt.Sprintf("Index(arity=%d, rows=%d)", len(ix.directions), len(ix.rows))
}
