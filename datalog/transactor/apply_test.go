package transactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/executor"
	"github.com/wbrown/janus-reactive/datalog/query"
	"github.com/wbrown/janus-reactive/datalog/storage"
	"github.com/wbrown/janus-reactive/datalog/subscription"
)

type fixture struct {
	store    *storage.MemoryStore
	exec     *executor.Executor
	registry *subscription.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := subscription.NewRegistry()
	require.NoError(t, err)
	store := storage.NewMemoryStore()
	return &fixture{store: store, exec: executor.NewExecutor(store), registry: reg}
}

func (fx *fixture) subscribe(t *testing.T, js, subscriber string) query.Query {
	t.Helper()
	q, err := query.ParseQuery([]byte(js))
	require.NoError(t, err)
	_, err = fx.registry.CreateSubscription(q, subscriber)
	require.NoError(t, err)
	return q
}

func (fx *fixture) apply(t *testing.T, tx datalog.Transaction) datalog.Broadcast {
	t.Helper()
	b, err := Apply(fx.exec, fx.registry, tx)
	require.NoError(t, err)
	return b
}

func sets(facts ...datalog.Fact) datalog.Transaction   { return datalog.Transaction{Sets: facts} }
func unsets(facts ...datalog.Fact) datalog.Transaction { return datalog.Transaction{Unsets: facts} }

func TestSubscriptionPositiveMatch(t *testing.T) {
	fx := newFixture(t)
	fx.subscribe(t, `{"statements": [["?id", "type", "todo"]]}`, "alice")

	todo := datalog.MustFact("t1", "type", "todo")
	b := fx.apply(t, sets(todo))

	require.Contains(t, b, "alice")
	assert.Equal(t, []datalog.Fact{todo}, b["alice"].Sets)
	assert.Empty(t, b["alice"].Unsets)
}

func TestSubscriptionNegativeMatch(t *testing.T) {
	fx := newFixture(t)
	fx.subscribe(t, `{"statements": [["?id", "type", "todo"]]}`, "alice")

	b := fx.apply(t, sets(
		datalog.MustFact("t1", "title", "todo"),
		datalog.MustFact("p1", "type", "page"),
	))
	assert.NotContains(t, b, "alice")
	assert.Empty(t, b)
	assert.Equal(t, 2, fx.store.Len(), "writes still land")
}

func TestUnsetOrdering(t *testing.T) {
	fx := newFixture(t)
	fx.subscribe(t, `{"statements": [["?id", "type", "todo"]]}`, "alice")

	todo := datalog.MustFact("t1", "type", "todo")
	fx.apply(t, sets(todo))

	b := fx.apply(t, unsets(todo))
	require.Contains(t, b, "alice")
	assert.Equal(t, []datalog.Fact{todo}, b["alice"].Unsets)
	assert.Empty(t, b["alice"].Sets)
	assert.NotContains(t, fx.store.Facts(storage.EAV), todo)
}

func TestUnsetOfAbsentFactNotBroadcast(t *testing.T) {
	fx := newFixture(t)
	fx.subscribe(t, `{"statements": [["?id", "type", "todo"]]}`, "alice")

	b := fx.apply(t, unsets(datalog.MustFact("t1", "type", "todo")))
	assert.Empty(t, b)
}

func TestJoinSetBroadcastsConfirmingFacts(t *testing.T) {
	fx := newFixture(t)
	fx.subscribe(t, `{"statements": [["?id", "type", "todo"], ["?id", "title", "?title"]]}`, "alice")

	typ := datalog.MustFact("t1", "type", "todo")
	b := fx.apply(t, sets(typ))
	assert.Empty(t, b, "no title yet, inverse query has no rows")

	title := datalog.MustFact("t1", "title", "Buy milk")
	b = fx.apply(t, sets(title))
	require.Contains(t, b, "alice")
	assert.ElementsMatch(t, []datalog.Fact{typ, title}, b["alice"].Sets)
}

func TestUnsetForwardsOnlyTriggeringFact(t *testing.T) {
	fx := newFixture(t)
	fx.subscribe(t, `{"statements": [["?id", "type", "todo"], ["?id", "title", "?title"]]}`, "alice")

	typ := datalog.MustFact("t1", "type", "todo")
	title := datalog.MustFact("t1", "title", "Buy milk")
	fx.apply(t, sets(typ, title))

	b := fx.apply(t, unsets(title))
	require.Contains(t, b, "alice")
	assert.Equal(t, []datalog.Fact{title}, b["alice"].Unsets)
	assert.Empty(t, b["alice"].Sets)
}

func TestSetsDeduplicatedPerSubscriber(t *testing.T) {
	fx := newFixture(t)
	fx.subscribe(t, `{"statements": [["?id", "type", "todo"], ["?id", "title", "?title"]]}`, "alice")

	typ := datalog.MustFact("t1", "type", "todo")
	title := datalog.MustFact("t1", "title", "Buy milk")
	b := fx.apply(t, sets(typ, title))

	// Both facts confirm the same row; each is sent once.
	require.Contains(t, b, "alice")
	assert.ElementsMatch(t, []datalog.Fact{typ, title}, b["alice"].Sets)
}

func TestBroadcastPerSubscriber(t *testing.T) {
	fx := newFixture(t)
	fx.subscribe(t, `{"statements": [["?id", "type", "todo"]]}`, "alice")
	fx.subscribe(t, `{"statements": [["?id", "type", "todo"]]}`, "bob")
	fx.subscribe(t, `{"statements": [["?id", "type", "page"]]}`, "carol")

	todo := datalog.MustFact("t1", "type", "todo")
	b := fx.apply(t, sets(todo))
	assert.Equal(t, []string{"alice", "bob"}, b.Subscribers())
}

func TestSetAndUnsetSameFact(t *testing.T) {
	fx := newFixture(t)
	fx.subscribe(t, `{"statements": [["?id", "type", "todo"]]}`, "alice")

	todo := datalog.MustFact("t1", "type", "todo")
	b := fx.apply(t, datalog.Transaction{Sets: []datalog.Fact{todo}, Unsets: []datalog.Fact{todo}})

	// Sets apply before unsets, so the fact ends up absent and was absent
	// before: nothing to broadcast.
	assert.NotContains(t, fx.store.Facts(storage.EAV), todo)
	assert.Empty(t, b)
}

func TestIdempotentSet(t *testing.T) {
	fx := newFixture(t)
	f := datalog.MustFact("t1", "type", "todo")
	fx.apply(t, sets(f, f))
	fx.apply(t, sets(f))
	assert.Equal(t, 1, fx.store.Len())
	for _, idx := range storage.AllIndexes {
		assert.Equal(t, []datalog.Fact{f}, fx.store.Facts(idx))
	}
}
