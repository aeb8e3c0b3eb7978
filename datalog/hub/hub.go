// Package hub connects peers to an Engine. Each peer is also a subscriber:
// its subscriptions live in the engine's registry under the peer id, and
// broadcasts for it are queued and delivered in batches.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/protocol"
	"github.com/wbrown/janus-reactive/datalog/query"
	"github.com/wbrown/janus-reactive/datalog/transactor"
)

const (
	DefaultBatchSize = 64
	DefaultParallel  = 1
)

var (
	ErrPeerExists  = errors.New("peer already connected")
	ErrUnknownPeer = errors.New("unknown peer")
)

// Peer is the outbound side of a connection. Send receives one encoded
// message, which may be a batch envelope.
type Peer interface {
	ID() string
	Send(data []byte) error
}

type session struct {
	peer Peer
	out  *protocol.BatchedQueue[protocol.Message, struct{}]
}

// Hub routes inbound messages to the engine and fans broadcasts out to
// connected peers.
type Hub struct {
	engine    *transactor.Engine
	peers     *xsync.MapOf[string, *session]
	batchSize int
	parallel  int
	logger    *slog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithBatchSize caps the number of messages coalesced into one envelope.
func WithBatchSize(n int) Option {
	return func(h *Hub) { h.batchSize = n }
}

// WithParallel caps concurrent deliveries per peer.
func WithParallel(n int) Option {
	return func(h *Hub) { h.parallel = n }
}

// New creates a hub over engine. The hub does not own the engine.
func New(engine *transactor.Engine, opts ...Option) *Hub {
	h := &Hub{
		engine:    engine,
		peers:     xsync.NewMapOf[string, *session](),
		batchSize: DefaultBatchSize,
		parallel:  DefaultParallel,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Connect registers p. Its id must not already be connected.
func (h *Hub) Connect(p Peer) error {
	s := &session{peer: p}
	s.out = protocol.NewBatchedQueue(h.deliverer(p), h.batchSize, h.parallel)
	if _, loaded := h.peers.LoadOrStore(p.ID(), s); loaded {
		return fmt.Errorf("%w: %s", ErrPeerExists, p.ID())
	}
	h.logger.Info("peer connected", "peer", p.ID())
	return nil
}

// Disconnect forgets the peer and destroys all of its subscriptions.
// Messages already queued for it are still delivered. Disconnecting an
// unknown peer only tears down its subscriptions.
func (h *Hub) Disconnect(ctx context.Context, id string) error {
	h.peers.Delete(id)
	if err := h.engine.Disconnect(ctx, id); err != nil {
		return fmt.Errorf("disconnect %s: %w", id, err)
	}
	h.logger.Info("peer disconnected", "peer", id)
	return nil
}

// Peers returns the number of connected peers.
func (h *Hub) Peers() int {
	return h.peers.Size()
}

// Receive decodes one inbound message from peer id and handles it.
func (h *Hub) Receive(ctx context.Context, id string, data []byte) error {
	m, err := protocol.Decode(data)
	if err != nil {
		return fmt.Errorf("peer %s: %w", id, err)
	}
	return h.Handle(ctx, id, m)
}

// Handle dispatches a decoded message from peer id.
func (h *Hub) Handle(ctx context.Context, id string, m protocol.Message) error {
	if _, ok := h.peers.Load(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, id)
	}
	return protocol.Dispatch(&handler{ctx: ctx, hub: h, peer: id}, m)
}

// Publish queues each transaction of b for its subscriber. Subscribers
// that are not connected are skipped. Messages reach a peer in the order
// they were queued only while the hub runs with one delivery per peer.
func (h *Hub) Publish(b datalog.Broadcast) {
	for _, sub := range b.Subscribers() {
		h.send(sub, protocol.TransactionMessage{Transaction: b[sub]})
	}
}

// Flush waits until every connected peer's outbound queue is drained.
func (h *Hub) Flush(ctx context.Context) error {
	var err error
	h.peers.Range(func(_ string, s *session) bool {
		err = s.out.Wait(ctx)
		return err == nil
	})
	return err
}

func (h *Hub) send(id string, m protocol.Message) {
	s, ok := h.peers.Load(id)
	if !ok {
		h.logger.Debug("dropping message for disconnected peer", "peer", id, "type", m.Type())
		return
	}
	// Delivery errors are logged by the deliverer
	s.out.Enqueue(m)
}

func (h *Hub) deliverer(p Peer) protocol.DequeueFunc[protocol.Message, struct{}] {
	return func(batch []protocol.Message) ([]struct{}, error) {
		data, err := protocol.Encode(protocol.Coalesce(batch))
		if err == nil {
			err = p.Send(data)
		}
		if err != nil {
			h.logger.Warn("delivery failed", "peer", p.ID(), "messages", len(batch), "error", err)
			return nil, err
		}
		return make([]struct{}, len(batch)), nil
	}
}

// handler binds a message to the peer it came from.
type handler struct {
	ctx  context.Context
	hub  *Hub
	peer string
}

func (h *handler) HandleSubscribe(m protocol.SubscribeMessage) error {
	// The seed is queued on the engine worker so no broadcast from a later
	// transaction can overtake it.
	_, _, err := h.hub.engine.SubscribeNotify(h.ctx, m.Query, h.peer, func(res query.Result) {
		h.hub.send(h.peer, protocol.TransactionMessage{
			Transaction: datalog.Transaction{Sets: res.Facts},
		})
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func (h *handler) HandleUnsubscribe(m protocol.UnsubscribeMessage) error {
	if err := h.hub.engine.Unsubscribe(h.ctx, m.Query, h.peer); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

func (h *handler) HandleTransaction(m protocol.TransactionMessage) error {
	if _, err := h.hub.engine.SubmitNotify(h.ctx, m.Transaction, h.hub.Publish); err != nil {
		return fmt.Errorf("transaction: %w", err)
	}
	return nil
}
