// Package subscription keeps the registry of standing queries and answers
// which of them a written fact affects.
//
// Each statement of a subscribed query becomes a Listener: a pattern with
// wildcards for its variables, plus the inverse binding that maps a matching
// fact back onto those variables. Finding the listeners of a fact is an
// exact lookup of its 8 wildcard projections. A candidate is then confirmed
// by substituting the fact into the query and evaluating what remains.
package subscription

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/annotations"
	"github.com/wbrown/janus-reactive/datalog/executor"
	"github.com/wbrown/janus-reactive/datalog/query"
	"github.com/wbrown/janus-reactive/datalog/storage"
)

// Registry facts. The registry is itself a fact store:
//
//	[queryId    "query"          <query json>]
//	[queryId    "subscriber"     subscriberId]
//	[queryId    "listener"       listenerId]
//	[listenerId "pattern"        <pattern key>]
//	[listenerId "inverseBinding" <inverse binding json>]
const (
	AttrQuery          = "query"
	AttrSubscriber     = "subscriber"
	AttrListener       = "listener"
	AttrPattern        = "pattern"
	AttrInverseBinding = "inverseBinding"
)

// DefaultQueryCacheSize bounds the cache of decoded queries.
const DefaultQueryCacheSize = 1024

// queryNamespace seeds content-addressed query ids.
var queryNamespace = uuid.MustParse("6f1c63e4-8a4e-4c55-9d0f-5b0c3f7c1a2e")

// QueryID returns the content-addressed id of a query: a name-based (MD5)
// UUID over its canonical JSON. Identical queries share an id, as do queries
// whose variable names differ only in Unicode normalization.
func QueryID(q query.Query) string {
	return uuid.NewMD5(queryNamespace, []byte(q.Canonical().String())).String()
}

// listenerID is deterministic in the query and the statement position.
func listenerID(queryID string, ordinal int) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(queryID+"#"+strconv.Itoa(ordinal)))
}

// Candidate is a standing query whose listener pattern matches a fact.
type Candidate struct {
	Subscriber     string
	QueryID        string
	Query          query.Query
	InverseBinding InverseBinding
	Fact           datalog.Fact
}

// Impact is a confirmed candidate: Facts are the facts read while
// evaluating the inverse query.
type Impact struct {
	Subscriber string
	QueryID    string
	Fact       datalog.Fact
	Facts      []datalog.Fact
}

// Registry stores subscriptions as facts in a private MemoryStore. It is not
// safe for concurrent use; transactor.Engine serializes access.
type Registry struct {
	store     *storage.MemoryStore
	exec      *executor.Executor
	queries   *lru.Cache[string, query.Query]
	logger    *slog.Logger
	collector *annotations.Collector
}

// Option configures a Registry.
type Option func(*registryOptions)

type registryOptions struct {
	cacheSize int
	logger    *slog.Logger
	collector *annotations.Collector
}

// WithQueryCacheSize sets the number of decoded queries kept in memory.
func WithQueryCacheSize(n int) Option {
	return func(o *registryOptions) { o.cacheSize = n }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *registryOptions) { o.logger = l }
}

// WithCollector records subscription events on c.
func WithCollector(c *annotations.Collector) Option {
	return func(o *registryOptions) { o.collector = c }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) (*Registry, error) {
	o := registryOptions{cacheSize: DefaultQueryCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	cache, err := lru.New[string, query.Query](o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}

	store := storage.NewMemoryStore()
	return &Registry{
		store:     store,
		exec:      executor.NewExecutor(store),
		queries:   cache,
		logger:    o.logger,
		collector: o.collector,
	}, nil
}

// CreateSubscription registers subscriber for q and returns the query id.
// Listeners are written when the first subscriber of the query arrives;
// later subscribers share them.
func (r *Registry) CreateSubscription(q query.Query, subscriber string) (string, error) {
	start := time.Now()
	id := QueryID(q)

	first, err := r.isEmpty(stmt(lit(id), lit(AttrQuery), variable("query")))
	if err != nil {
		return "", err
	}

	facts := []datalog.Fact{
		{id, AttrQuery, q.Canonical().String()},
		{id, AttrSubscriber, subscriber},
	}
	if first {
		for i, l := range ListenersForQuery(q) {
			ib, err := json.Marshal(l.InverseBinding)
			if err != nil {
				return "", fmt.Errorf("encode inverse binding: %w", err)
			}
			lid := listenerID(id, i)
			facts = append(facts,
				datalog.Fact{id, AttrListener, lid},
				datalog.Fact{lid, AttrPattern, l.Pattern.Key()},
				datalog.Fact{lid, AttrInverseBinding, string(ib)},
			)
		}
	}
	for _, f := range facts {
		if err := r.store.SetFact(f); err != nil {
			return "", err
		}
	}
	r.queries.Add(id, q)

	r.logger.Debug("subscription created",
		"query_id", id, "subscriber", subscriber, "first", first)
	r.collector.AddTiming(annotations.SubscriptionCreated, start, map[string]interface{}{
		"query.id":   id,
		"subscriber": subscriber,
	})
	return id, nil
}

// DestroySubscription removes subscriber from q. When no subscriber is left
// the query and all its listeners are removed. Unknown queries and repeated
// calls are no-ops.
func (r *Registry) DestroySubscription(q query.Query, subscriber string) error {
	return r.destroy(QueryID(q), subscriber)
}

// DestroyAllSubscriptions removes subscriber from every query it is
// registered to and returns the affected query ids.
func (r *Registry) DestroyAllSubscriptions(subscriber string) ([]string, error) {
	res, err := r.exec.EvaluateClause([]query.Expression{
		stmt(variable("queryId"), lit(AttrSubscriber), lit(subscriber)),
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Bindings))
	for _, b := range res.Bindings {
		id := b["queryId"].(string)
		if err := r.destroy(id, subscriber); err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *Registry) destroy(id, subscriber string) error {
	start := time.Now()
	if err := r.store.UnsetFact(datalog.Fact{id, AttrSubscriber, subscriber}); err != nil {
		return err
	}

	last, err := r.isEmpty(stmt(lit(id), lit(AttrSubscriber), variable("subscriber")))
	if err != nil {
		return err
	}
	if last {
		if err := r.teardown(id); err != nil {
			return err
		}
	}

	r.logger.Debug("subscription destroyed",
		"query_id", id, "subscriber", subscriber, "last", last)
	r.collector.AddTiming(annotations.SubscriptionDestroyed, start, map[string]interface{}{
		"query.id":   id,
		"subscriber": subscriber,
	})
	return nil
}

// teardown removes the query fact and every listener record of id.
func (r *Registry) teardown(id string) error {
	res, err := r.exec.EvaluateClause([]query.Expression{
		stmt(lit(id), lit(AttrListener), variable("listenerId")),
		stmt(variable("listenerId"), variable("attr"), variable("value")),
	})
	if err != nil {
		return err
	}
	owned, err := r.exec.EvaluateClause([]query.Expression{
		stmt(lit(id), variable("attr"), variable("value")),
	})
	if err != nil {
		return err
	}
	for _, f := range append(res.Facts, owned.Facts...) {
		if err := r.store.UnsetFact(f); err != nil {
			return err
		}
	}
	r.queries.Remove(id)
	return nil
}

// ImpactedSubscriptions finds, for each fact, every (subscriber, query,
// listener) whose pattern equals one of the fact's projections.
func (r *Registry) ImpactedSubscriptions(facts []datalog.Fact) ([]Candidate, error) {
	var out []Candidate
	for _, f := range facts {
		for _, p := range ListenPatternsForFact(f) {
			res, err := r.exec.EvaluateClause([]query.Expression{
				stmt(variable("listenerId"), lit(AttrPattern), lit(p.Key())),
				stmt(variable("queryId"), lit(AttrListener), variable("listenerId")),
				stmt(variable("listenerId"), lit(AttrInverseBinding), variable("inverseBinding")),
				stmt(variable("queryId"), lit(AttrSubscriber), variable("subscriber")),
			})
			if err != nil {
				return nil, err
			}
			for _, b := range res.Bindings {
				c, err := r.candidate(b, f)
				if err != nil {
					return nil, err
				}
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (r *Registry) candidate(b query.Binding, f datalog.Fact) (Candidate, error) {
	id := b["queryId"].(string)
	q, err := r.lookupQuery(id)
	if err != nil {
		return Candidate{}, err
	}
	var ib InverseBinding
	if err := json.Unmarshal([]byte(b["inverseBinding"].(string)), &ib); err != nil {
		return Candidate{}, fmt.Errorf("listener %v: %w", b["listenerId"], err)
	}
	return Candidate{
		Subscriber:     b["subscriber"].(string),
		QueryID:        id,
		Query:          q,
		InverseBinding: ib,
		Fact:           f,
	}, nil
}

// lookupQuery returns the decoded query, reading the registry on a cache
// miss.
func (r *Registry) lookupQuery(id string) (query.Query, error) {
	if q, ok := r.queries.Get(id); ok {
		return q, nil
	}
	res, err := r.store.EvaluateExpression(stmt(lit(id), lit(AttrQuery), variable("query")))
	if err != nil {
		return query.Query{}, err
	}
	if len(res.Bindings) == 0 {
		return query.Query{}, fmt.Errorf("query %s not registered", id)
	}
	q, err := query.ParseQuery([]byte(res.Bindings[0]["query"].(string)))
	if err != nil {
		return query.Query{}, fmt.Errorf("query %s: %w", id, err)
	}
	r.queries.Add(id, q)
	return q, nil
}

// ConfirmImpact keeps the candidates whose inverse query, evaluated
// against exec's backend, still yields at least one binding. That proves
// the fact satisfies every other statement of the query, not just the one
// whose pattern matched.
func (r *Registry) ConfirmImpact(exec *executor.Executor, candidates []Candidate) ([]Impact, error) {
	start := time.Now()
	var out []Impact
	for _, c := range candidates {
		impact, ok, err := confirm(exec, c)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, impact)
		}
	}
	r.collector.AddTiming(annotations.SubscriptionImpact, start, map[string]interface{}{
		"candidates.count": len(candidates),
		"confirmed.count":  len(out),
	})
	return out, nil
}

func confirm(exec *executor.Executor, c Candidate) (Impact, bool, error) {
	resolved, ok := c.InverseBinding.Resolve(c.Fact)
	if !ok {
		return Impact{}, false, nil
	}
	clause := query.ParseStatements(c.Query.Statements)
	for i, e := range clause {
		clause[i] = e.Substitute(resolved)
	}
	res, err := exec.EvaluateClause(clause)
	if err != nil {
		return Impact{}, false, fmt.Errorf("inverse query %s: %w", c.QueryID, err)
	}
	if len(res.Bindings) == 0 {
		return Impact{}, false, nil
	}
	return Impact{
		Subscriber: c.Subscriber,
		QueryID:    c.QueryID,
		Fact:       c.Fact,
		Facts:      res.Facts,
	}, true, nil
}

// Subscribers returns the subscribers of a query id.
func (r *Registry) Subscribers(id string) ([]string, error) {
	res, err := r.store.EvaluateExpression(stmt(lit(id), lit(AttrSubscriber), variable("subscriber")))
	if err != nil {
		return nil, err
	}
	subs := make([]string, len(res.Bindings))
	for i, b := range res.Bindings {
		subs[i] = b["subscriber"].(string)
	}
	return subs, nil
}

// Stats counts registered queries and listeners.
func (r *Registry) Stats() (queries, listeners int, err error) {
	res, err := r.store.EvaluateExpression(stmt(variable("queryId"), lit(AttrQuery), variable("query")))
	if err != nil {
		return 0, 0, err
	}
	ls, err := r.store.EvaluateExpression(stmt(variable("queryId"), lit(AttrListener), variable("listenerId")))
	if err != nil {
		return 0, 0, err
	}
	return len(res.Bindings), len(ls.Bindings), nil
}

func (r *Registry) isEmpty(e query.Expression) (bool, error) {
	res, err := r.store.EvaluateExpression(e)
	if err != nil {
		return false, err
	}
	return len(res.Bindings) == 0, nil
}

// stmt builds a registry lookup from explicit terms. Registry ids are
// always lit terms, so an id that starts with the variable sigil is still
// matched literally.
func stmt(e, a, v query.Term) query.Expression {
	return query.Expression{Entity: e, Attribute: a, Value: v}
}

func lit(v datalog.Value) query.Term { return query.Known(v) }

func variable(name string) query.Term { return query.Unknown(name) }
