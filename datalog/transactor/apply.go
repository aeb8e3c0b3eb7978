// Package transactor applies transactions to a store and computes the
// broadcast each subscriber needs to keep its mirror in sync.
package transactor

import (
	"fmt"
	"time"

	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/annotations"
	"github.com/wbrown/janus-reactive/datalog/executor"
	"github.com/wbrown/janus-reactive/datalog/subscription"
)

// Apply runs one transaction against exec's backend:
//
//  1. impact of the unsets, evaluated before any write, while the removed
//     facts can still confirm their own relevance
//  2. all sets, then all unsets
//  3. impact of the sets, evaluated after the writes, once the new facts
//     exist to confirm the inverse queries
//
// Set impacts contribute their confirming facts to the subscriber's sets.
// Unset impacts contribute only the triggering fact to its unsets.
func Apply(exec *executor.Executor, registry *subscription.Registry, tx datalog.Transaction) (datalog.Broadcast, error) {
	unsetImpacts, err := impact(exec, registry, tx.Unsets)
	if err != nil {
		return nil, fmt.Errorf("unset impact: %w", err)
	}

	backend := exec.Backend()
	for _, f := range tx.Sets {
		if err := backend.SetFact(f); err != nil {
			return nil, fmt.Errorf("set %s: %w", f, err)
		}
	}
	for _, f := range tx.Unsets {
		if err := backend.UnsetFact(f); err != nil {
			return nil, fmt.Errorf("unset %s: %w", f, err)
		}
	}

	setImpacts, err := impact(exec, registry, tx.Sets)
	if err != nil {
		return nil, fmt.Errorf("set impact: %w", err)
	}

	b := newBroadcastBuilder()
	for _, imp := range setImpacts {
		b.set(imp.Subscriber, imp.Facts...)
	}
	for _, imp := range unsetImpacts {
		b.unset(imp.Subscriber, imp.Fact)
	}
	return b.broadcast, nil
}

func impact(exec *executor.Executor, registry *subscription.Registry, facts []datalog.Fact) ([]subscription.Impact, error) {
	if len(facts) == 0 {
		return nil, nil
	}
	candidates, err := registry.ImpactedSubscriptions(facts)
	if err != nil {
		return nil, err
	}
	return registry.ConfirmImpact(exec, candidates)
}

// broadcastBuilder merges impacts per subscriber without repeating a fact.
type broadcastBuilder struct {
	broadcast datalog.Broadcast
	seen      map[string]map[datalog.Fact]bool
}

func newBroadcastBuilder() *broadcastBuilder {
	return &broadcastBuilder{
		broadcast: make(datalog.Broadcast),
		seen:      make(map[string]map[datalog.Fact]bool),
	}
}

func (b *broadcastBuilder) set(subscriber string, facts ...datalog.Fact) {
	tx := b.broadcast[subscriber]
	for _, f := range facts {
		if b.mark(subscriber, "set", f) {
			tx.Sets = append(tx.Sets, f)
		}
	}
	b.broadcast[subscriber] = tx
}

func (b *broadcastBuilder) unset(subscriber string, f datalog.Fact) {
	tx := b.broadcast[subscriber]
	if b.mark(subscriber, "unset", f) {
		tx.Unsets = append(tx.Unsets, f)
	}
	b.broadcast[subscriber] = tx
}

// mark reports whether f is new for subscriber's sets or unsets.
func (b *broadcastBuilder) mark(subscriber, op string, f datalog.Fact) bool {
	key := op + "\x00" + subscriber
	seen := b.seen[key]
	if seen == nil {
		seen = make(map[datalog.Fact]bool)
		b.seen[key] = seen
	}
	if seen[f] {
		return false
	}
	seen[f] = true
	return true
}

// recordApplied emits the transaction/applied event.
func recordApplied(c *annotations.Collector, start time.Time, tx datalog.Transaction, b datalog.Broadcast) {
	if !c.Enabled() {
		return
	}
	c.AddTiming(annotations.TransactionApplied, start, map[string]interface{}{
		"sets.count":        len(tx.Sets),
		"unsets.count":      len(tx.Unsets),
		"subscribers.count": len(b),
	})
}
