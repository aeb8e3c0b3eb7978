package transactor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/annotations"
	"github.com/wbrown/janus-reactive/datalog/executor"
	"github.com/wbrown/janus-reactive/datalog/query"
	"github.com/wbrown/janus-reactive/datalog/storage"
	"github.com/wbrown/janus-reactive/datalog/subscription"
)

// ErrEngineClosed is returned for work submitted after Close.
var ErrEngineClosed = errors.New("engine closed")

// DefaultQueueSize bounds the number of jobs waiting for the worker.
const DefaultQueueSize = 256

// Engine owns a store and its subscription registry and runs every
// operation on them, reads included, on one worker goroutine in FIFO
// order. A caller's context bounds only the wait for a queue slot: once a
// job is queued it runs to completion and the caller waits for its result.
type Engine struct {
	store     storage.Store
	registry  *subscription.Registry
	exec      *executor.Executor
	logger    *slog.Logger
	metrics   *Metrics
	collector *annotations.Collector

	jobs      chan *job
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

type job struct {
	run  func() error
	err  error
	done chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCollector records query and transaction events on c.
func WithCollector(c *annotations.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// WithQueueSize bounds the job queue.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.jobs = make(chan *job, n)
		}
	}
}

// NewEngine starts an engine over store and registry. The engine takes
// ownership of store and closes it in Close.
func NewEngine(store storage.Store, registry *subscription.Registry, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		registry: registry,
		jobs:     make(chan *job, DefaultQueueSize),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	e.exec = executor.NewExecutor(store, executor.WithCollector(e.collector))

	go e.run()
	return e
}

func (e *Engine) run() {
	defer close(e.stopped)
	for {
		select {
		case j := <-e.jobs:
			j.err = j.run()
			close(j.done)
		case <-e.quit:
			return
		}
	}
}

// do queues fn and waits for it to finish. ctx is not consulted after the
// job is queued, so a caller never reports failure for a write that lands.
func (e *Engine) do(ctx context.Context, fn func() error) error {
	j := &job{run: fn, done: make(chan struct{})}

	select {
	case <-e.quit:
		return ErrEngineClosed
	default:
	}

	select {
	case e.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.quit:
		return ErrEngineClosed
	}

	select {
	case <-j.done:
		return j.err
	case <-e.stopped:
		// The job may have finished just before the worker stopped.
		select {
		case <-j.done:
			return j.err
		default:
			return ErrEngineClosed
		}
	}
}

// Submit applies a transaction and returns the broadcast for its
// subscribers.
func (e *Engine) Submit(ctx context.Context, tx datalog.Transaction) (datalog.Broadcast, error) {
	return e.SubmitNotify(ctx, tx, nil)
}

// SubmitNotify is Submit with a callback run on the worker right after the
// transaction applies, before any later job starts. notify must not block
// or call back into the engine; it is how callers hand the broadcast to
// outbound queues in commit order.
func (e *Engine) SubmitNotify(ctx context.Context, tx datalog.Transaction, notify func(datalog.Broadcast)) (datalog.Broadcast, error) {
	var b datalog.Broadcast
	err := e.do(ctx, func() error {
		start := time.Now()
		var err error
		b, err = Apply(e.exec, e.registry, tx)
		if err != nil {
			e.metrics.Errors.WithLabelValues("submit").Inc()
			e.logger.Error("transaction failed",
				"sets", len(tx.Sets), "unsets", len(tx.Unsets), "error", err)
			return err
		}

		e.metrics.Transactions.Inc()
		e.metrics.Facts.WithLabelValues("set").Add(float64(len(tx.Sets)))
		e.metrics.Facts.WithLabelValues("unset").Add(float64(len(tx.Unsets)))
		e.metrics.Recipients.Add(float64(len(b)))
		e.metrics.ApplyDuration.Observe(time.Since(start).Seconds())
		recordApplied(e.collector, start, tx, b)

		e.logger.Debug("transaction applied",
			"sets", len(tx.Sets), "unsets", len(tx.Unsets), "recipients", b.Subscribers())
		if notify != nil {
			notify(b)
		}
		return nil
	})
	return b, err
}

// SetFact writes one fact as a transaction.
func (e *Engine) SetFact(ctx context.Context, f datalog.Fact) (datalog.Broadcast, error) {
	return e.Submit(ctx, datalog.Transaction{Sets: []datalog.Fact{f}})
}

// UnsetFact removes one fact as a transaction.
func (e *Engine) UnsetFact(ctx context.Context, f datalog.Fact) (datalog.Broadcast, error) {
	return e.Submit(ctx, datalog.Transaction{Unsets: []datalog.Fact{f}})
}

// Query evaluates q against the current store.
func (e *Engine) Query(ctx context.Context, q query.Query) (query.Result, error) {
	var res query.Result
	err := e.do(ctx, func() error {
		var err error
		res, err = e.exec.EvaluateQuery(q)
		return err
	})
	return res, err
}

// Subscribe registers subscriber for q and returns the query id with the
// query's current result, which seeds the subscriber's mirror.
func (e *Engine) Subscribe(ctx context.Context, q query.Query, subscriber string) (string, query.Result, error) {
	return e.SubscribeNotify(ctx, q, subscriber, nil)
}

// SubscribeNotify is Subscribe with a callback that receives the seed result
// on the worker, so the seed is queued ahead of any broadcast from a later
// transaction. The same rules as SubmitNotify apply to notify.
func (e *Engine) SubscribeNotify(ctx context.Context, q query.Query, subscriber string, notify func(query.Result)) (string, query.Result, error) {
	var (
		id  string
		res query.Result
	)
	err := e.do(ctx, func() error {
		var err error
		if id, err = e.registry.CreateSubscription(q, subscriber); err != nil {
			return err
		}
		if res, err = e.exec.EvaluateQuery(q); err != nil {
			return err
		}
		e.updateQueryGauge()
		e.logger.Debug("subscribed", "subscriber", subscriber, "query_id", id, "facts", len(res.Facts))
		if notify != nil {
			notify(res)
		}
		return nil
	})
	return id, res, err
}

// Unsubscribe removes subscriber from q.
func (e *Engine) Unsubscribe(ctx context.Context, q query.Query, subscriber string) error {
	return e.do(ctx, func() error {
		if err := e.registry.DestroySubscription(q, subscriber); err != nil {
			return err
		}
		e.updateQueryGauge()
		e.logger.Debug("unsubscribed", "subscriber", subscriber, "query_id", subscription.QueryID(q))
		return nil
	})
}

// Disconnect removes every subscription of subscriber.
func (e *Engine) Disconnect(ctx context.Context, subscriber string) error {
	return e.do(ctx, func() error {
		ids, err := e.registry.DestroyAllSubscriptions(subscriber)
		if err != nil {
			return err
		}
		e.updateQueryGauge()
		e.logger.Debug("subscriber disconnected", "subscriber", subscriber, "queries", len(ids))
		return nil
	})
}

func (e *Engine) updateQueryGauge() {
	queries, _, err := e.registry.Stats()
	if err != nil {
		e.logger.Warn("registry stats failed", "error", err)
		return
	}
	e.metrics.Queries.Set(float64(queries))
}

// Close stops the worker and closes the store. Queued jobs that have not
// started fail with ErrEngineClosed.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.quit)
		<-e.stopped
		err = e.store.Close()
	})
	return err
}
