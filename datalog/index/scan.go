package index

import (
	"fmt"

	"github.com/wbrown/janus-reactive/datalog"
)

// Bounds frames a range scan. At most one of Gt/Gte and one of Lt/Lte may be
// set. A bound may name fewer columns than the index has; the missing
// trailing columns are padded with sentinels so that a partial bound behaves
// as a prefix range. A nil bound on either side leaves that side open.
type Bounds struct {
	Gt    Tuple
	Gte   Tuple
	Lt    Tuple
	Lte   Tuple
	Limit int // 0 means unlimited
}

// Prefix returns inclusive bounds matching every row whose leading columns
// equal prefix.
func Prefix(prefix ...datalog.Value) Bounds {
	return Bounds{Gte: prefix, Lte: prefix}
}

// Scan returns the rows within bounds, in index order.
func (ix *Index[R]) Scan(b Bounds) ([]R, error) {
	if b.Gt != nil && b.Gte != nil {
		return nil, fmt.Errorf("%w: both gt and gte given", ErrInvalidBounds)
	}
	if b.Lt != nil && b.Lte != nil {
		return nil, fmt.Errorf("%w: both lt and lte given", ErrInvalidBounds)
	}

	exclusiveLower := b.Gt != nil
	exclusiveUpper := b.Lt != nil

	lowerKey := b.Gte
	if exclusiveLower {
		lowerKey = b.Gt
	}
	upperKey := b.Lte
	if exclusiveUpper {
		upperKey = b.Lt
	}

	// An exclusive lower bound skips every row sharing its prefix, so it is
	// padded with the column's last sentinel; an exclusive upper bound stops
	// before the prefix, so it is padded with the first.
	lower, err := ix.pad(lowerKey, exclusiveLower)
	if err != nil {
		return nil, err
	}
	upper, err := ix.pad(upperKey, !exclusiveUpper)
	if err != nil {
		return nil, err
	}

	if datalog.CompareTuples(ix.directions, lower, upper) > 0 {
		return nil, fmt.Errorf("%w: lower %v sorts after upper %v", ErrInvalidBounds, lower, upper)
	}

	// Start at lower bound.
	i, found := ix.search(func(row R) int { return ix.compareBound(lower, row) })
	if found && exclusiveLower {
		i++
	}

	var results []R
	for ; i < len(ix.rows); i++ {
		if b.Limit > 0 && len(results) >= b.Limit {
			break
		}
		row := ix.rows[i]
		dir := -ix.compareBound(upper, row)
		if exclusiveUpper && dir >= 0 {
			break
		}
		if !exclusiveUpper && dir > 0 {
			break
		}
		results = append(results, row)
	}
	return results, nil
}

// pad copies t and fills the missing trailing columns. last selects the
// sentinel that sorts after every value in the column's direction; otherwise
// the one that sorts before.
func (ix *Index[R]) pad(t Tuple, last bool) (Tuple, error) {
	if len(t) > len(ix.directions) {
		return nil, fmt.Errorf("%w: bound %v has %d columns, index has %d",
			ErrInvalidBounds, t, len(t), len(ix.directions))
	}
	out := make(Tuple, len(ix.directions))
	copy(out, t)
	for i := len(t); i < len(ix.directions); i++ {
		out[i] = sentinel(ix.directions[i], last)
	}
	return out, nil
}

func sentinel(dir datalog.Direction, last bool) datalog.Value {
	if (dir == datalog.Ascending) == last {
		return datalog.Max
	}
	return datalog.Min
}
