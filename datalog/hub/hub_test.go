package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/protocol"
	"github.com/wbrown/janus-reactive/datalog/query"
	"github.com/wbrown/janus-reactive/datalog/storage"
	"github.com/wbrown/janus-reactive/datalog/subscription"
	"github.com/wbrown/janus-reactive/datalog/transactor"
)

type fakePeer struct {
	id string

	// started is closed on the first Send, which then blocks until gate
	// is closed. Both are optional.
	started chan struct{}
	gate    chan struct{}
	once    sync.Once

	mu   sync.Mutex
	sent []protocol.Message
}

func newPeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(data []byte) error {
	if p.gate != nil {
		p.once.Do(func() {
			close(p.started)
			<-p.gate
		})
	}
	m, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.sent = append(p.sent, m)
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) messages() []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Message(nil), p.sent...)
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	p.sent = nil
	p.mu.Unlock()
}

func newHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	reg, err := subscription.NewRegistry()
	require.NoError(t, err)
	engine := transactor.NewEngine(storage.NewMemoryStore(), reg)
	t.Cleanup(func() { engine.Close() })
	return New(engine, opts...)
}

func flush(t *testing.T, h *Hub) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Flush(ctx))
}

var todos = query.Query{Statements: []query.Statement{datalog.MustFact("?id", "type", "todo")}}

func setTodo(id string) protocol.Message {
	return protocol.TransactionMessage{Transaction: datalog.Transaction{
		Sets: []datalog.Fact{datalog.MustFact(id, "type", "todo")},
	}}
}

func sets(t *testing.T, m protocol.Message) []datalog.Fact {
	t.Helper()
	tm, ok := m.(protocol.TransactionMessage)
	require.True(t, ok, "expected TransactionMessage, got %T", m)
	return tm.Transaction.Sets
}

func TestHubFanOut(t *testing.T) {
	ctx := context.Background()
	h := newHub(t)
	alice, bob, carol := newPeer("alice"), newPeer("bob"), newPeer("carol")
	for _, p := range []*fakePeer{alice, bob, carol} {
		require.NoError(t, h.Connect(p))
	}
	assert.Equal(t, 3, h.Peers())

	// Seed the store before anyone subscribes
	require.NoError(t, h.Handle(ctx, "carol", setTodo("t0")))

	for _, p := range []*fakePeer{alice, bob} {
		require.NoError(t, h.Handle(ctx, p.ID(), protocol.SubscribeMessage{Query: todos}))
	}
	flush(t, h)

	for _, p := range []*fakePeer{alice, bob} {
		msgs := p.messages()
		require.Len(t, msgs, 1, "%s seed", p.ID())
		assert.Equal(t, []datalog.Fact{datalog.MustFact("t0", "type", "todo")}, sets(t, msgs[0]))
		p.reset()
	}

	require.NoError(t, h.Handle(ctx, "carol", setTodo("t1")))
	flush(t, h)

	for _, p := range []*fakePeer{alice, bob} {
		msgs := p.messages()
		require.Len(t, msgs, 1, "%s broadcast", p.ID())
		assert.Equal(t, []datalog.Fact{datalog.MustFact("t1", "type", "todo")}, sets(t, msgs[0]))
		p.reset()
	}
	assert.Empty(t, carol.messages(), "carol has no subscription")

	require.NoError(t, h.Disconnect(ctx, "bob"))
	require.NoError(t, h.Handle(ctx, "carol", setTodo("t2")))
	flush(t, h)

	require.Len(t, alice.messages(), 1)
	assert.Empty(t, bob.messages())
	assert.Equal(t, 2, h.Peers())
}

func TestHubUnsubscribe(t *testing.T) {
	ctx := context.Background()
	h := newHub(t)
	alice := newPeer("alice")
	require.NoError(t, h.Connect(alice))

	require.NoError(t, h.Handle(ctx, "alice", protocol.SubscribeMessage{Query: todos}))
	require.NoError(t, h.Handle(ctx, "alice", protocol.UnsubscribeMessage{Query: todos}))
	require.NoError(t, h.Handle(ctx, "alice", setTodo("t1")))
	flush(t, h)

	// Only the seed
	require.Len(t, alice.messages(), 1)
	assert.Empty(t, sets(t, alice.messages()[0]))
}

func TestHubBatchesQueuedMessages(t *testing.T) {
	ctx := context.Background()
	h := newHub(t)
	alice := newPeer("alice")
	alice.started = make(chan struct{})
	alice.gate = make(chan struct{})
	require.NoError(t, h.Connect(alice))
	require.NoError(t, h.Connect(newPeer("carol")))

	require.NoError(t, h.Handle(ctx, "alice", protocol.SubscribeMessage{Query: todos}))
	select {
	case <-alice.started:
	case <-time.After(5 * time.Second):
		t.Fatal("seed was never sent")
	}

	// The seed delivery is blocked, so these two queue up behind it
	require.NoError(t, h.Handle(ctx, "carol", setTodo("t1")))
	require.NoError(t, h.Handle(ctx, "carol", setTodo("t2")))
	close(alice.gate)
	flush(t, h)

	msgs := alice.messages()
	require.Len(t, msgs, 2)
	batch, ok := msgs[1].(protocol.BatchMessage)
	require.True(t, ok, "expected a batch, got %T", msgs[1])
	require.Len(t, batch.Messages, 2)
	assert.Equal(t, []datalog.Fact{datalog.MustFact("t1", "type", "todo")}, sets(t, batch.Messages[0]))
	assert.Equal(t, []datalog.Fact{datalog.MustFact("t2", "type", "todo")}, sets(t, batch.Messages[1]))
}

func TestHubReceive(t *testing.T) {
	ctx := context.Background()
	h := newHub(t)
	alice := newPeer("alice")
	require.NoError(t, h.Connect(alice))

	require.NoError(t, h.Receive(ctx, "alice", []byte(`{"type":"subscribe","query":{"statements":[["?id","type","todo"]]}}`)))
	require.NoError(t, h.Receive(ctx, "alice", []byte(`{"type":"batch","messages":[
		{"type":"transaction","transaction":{"sets":[["t1","type","todo"]],"unsets":[]}},
		{"type":"transaction","transaction":{"sets":[["t2","type","todo"]],"unsets":[]}}
	]}`)))
	flush(t, h)

	var got []datalog.Fact
	for _, m := range alice.messages() {
		if b, ok := m.(protocol.BatchMessage); ok {
			for _, inner := range b.Messages {
				got = append(got, sets(t, inner)...)
			}
			continue
		}
		got = append(got, sets(t, m)...)
	}
	assert.Equal(t, []datalog.Fact{
		datalog.MustFact("t1", "type", "todo"),
		datalog.MustFact("t2", "type", "todo"),
	}, got)

	err := h.Receive(ctx, "alice", []byte(`{"type":"ping"}`))
	assert.True(t, errors.Is(err, protocol.ErrUnknownMessage), "got %v", err)
}

// replay applies every transaction p received, batches unwrapped, to a
// mirror keyed by fact.
func replay(t *testing.T, p *fakePeer) map[datalog.Fact]bool {
	t.Helper()
	mirror := map[datalog.Fact]bool{}
	var apply func(m protocol.Message)
	apply = func(m protocol.Message) {
		switch m := m.(type) {
		case protocol.BatchMessage:
			for _, inner := range m.Messages {
				apply(inner)
			}
		case protocol.TransactionMessage:
			for _, f := range m.Transaction.Sets {
				mirror[f] = true
			}
			for _, f := range m.Transaction.Unsets {
				delete(mirror, f)
			}
		default:
			t.Fatalf("unexpected %T", m)
		}
	}
	for _, m := range p.messages() {
		apply(m)
	}
	return mirror
}

func TestHubSeedNeverOvertakesBroadcast(t *testing.T) {
	ctx := context.Background()
	todo := datalog.MustFact("t1", "type", "todo")

	for i := 0; i < 200; i++ {
		h := newHub(t)
		alice, bob := newPeer("alice"), newPeer("bob")
		require.NoError(t, h.Connect(alice))
		require.NoError(t, h.Connect(bob))
		require.NoError(t, h.Handle(ctx, "bob", setTodo("t1")))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.Handle(ctx, "alice", protocol.SubscribeMessage{Query: todos}))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, h.Handle(ctx, "bob", protocol.TransactionMessage{
				Transaction: datalog.Transaction{Unsets: []datalog.Fact{todo}},
			}))
		}()
		wg.Wait()
		flush(t, h)

		mirror := replay(t, alice)
		if mirror[todo] {
			t.Fatalf("iteration %d: alice's mirror kept %v after it was unset", i, todo)
		}
		res, err := h.engine.Query(ctx, todos)
		require.NoError(t, err)
		assert.Empty(t, res.Facts)
	}
}

func TestHubPeerErrors(t *testing.T) {
	ctx := context.Background()
	h := newHub(t)
	require.NoError(t, h.Connect(newPeer("alice")))

	err := h.Connect(newPeer("alice"))
	assert.ErrorIs(t, err, ErrPeerExists)

	err = h.Handle(ctx, "mallory", setTodo("t1"))
	assert.ErrorIs(t, err, ErrUnknownPeer)

	// Disconnecting twice is fine
	require.NoError(t, h.Disconnect(ctx, "alice"))
	require.NoError(t, h.Disconnect(ctx, "alice"))
}
