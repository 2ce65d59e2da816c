package indexing

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Tangerg/weave/errs"
	"github.com/Tangerg/weave/node"
)

// fakeTracer records every span name it's asked to start, used to assert the
// pipeline actually reports through the telemetry seam rather than silently
// no-opping.
type fakeTracer struct {
	mu    sync.Mutex
	names []string
}

func (t *fakeTracer) StartSpan(ctx context.Context, name string, _ ...attribute.KeyValue) (context.Context, func(error)) {
	t.mu.Lock()
	t.names = append(t.names, name)
	t.mu.Unlock()
	return ctx, func(error) {}
}

func (t *fakeTracer) spanNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.names...)
}

// fakeCache is an in-memory NodeCache, hand-written per the teacher's
// fakes-over-mocks test style.
type fakeCache struct {
	mu   sync.Mutex
	seen map[uint64]bool
}

func newFakeCache() *fakeCache { return &fakeCache{seen: make(map[uint64]bool)} }

func (c *fakeCache) Name() string { return "fake-cache" }

func (c *fakeCache) Get(_ context.Context, n *node.Node) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[n.ID()], nil
}

func (c *fakeCache) Set(_ context.Context, n *node.Node) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[n.ID()] = true
	return nil
}

func (c *fakeCache) has(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[id]
}

// fakePersist stores nodes in memory; failWith marks specific chunks (by
// chunk text) as failing with the given error.
type fakePersist struct {
	mu       sync.Mutex
	stored   []*node.Node
	failWith map[string]error // keyed by Chunk text
}

func newFakePersist() *fakePersist { return &fakePersist{failWith: map[string]error{}} }

func (p *fakePersist) Name() string               { return "fake-persist" }
func (p *fakePersist) Setup(context.Context) error { return nil }
func (p *fakePersist) BatchSize() int              { return 0 }

func (p *fakePersist) Store(_ context.Context, n *node.Node) (*node.Node, error) {
	if err, bad := p.failWith[n.Chunk]; bad {
		return nil, err
	}
	p.mu.Lock()
	p.stored = append(p.stored, n)
	p.mu.Unlock()
	return n, nil
}

func (p *fakePersist) BatchStore(ctx context.Context, batch []*node.Node) IndexingStream {
	out := make(chan Item, len(batch))
	for _, n := range batch {
		stored, err := p.Store(ctx, n)
		if err != nil {
			out <- Item{Err: err, Node: n}
		} else {
			out <- ok(stored)
		}
	}
	close(out)
	return FromChan(out)
}

func (p *fakePersist) all() []*node.Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*node.Node(nil), p.stored...)
}

type fakeTransformer struct {
	BaseStage
	fn func(context.Context, *node.Node) (*node.Node, error)
}

func (f fakeTransformer) Transform(ctx context.Context, n *node.Node) (*node.Node, error) {
	return f.fn(ctx, n)
}

// concurrencyCountingTransformer tracks the maximum number of in-flight
// Transform calls, used to test backpressure (Testable Property 5).
type concurrencyCountingTransformer struct {
	BaseStage
	inFlight int32
	maxSeen  int32
}

func (c *concurrencyCountingTransformer) Transform(ctx context.Context, n *node.Node) (*node.Node, error) {
	cur := atomic.AddInt32(&c.inFlight, 1)
	for {
		max := atomic.LoadInt32(&c.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&c.maxSeen, max, cur) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	atomic.AddInt32(&c.inFlight, -1)
	return n, nil
}

func TestS1_SingleFileDenseOnly(t *testing.T) {
	n := node.New("fn main() { println!(\"Hello, World!\"); }")
	n.OriginPath = "main.rs"

	transform := fakeTransformer{
		fn: func(_ context.Context, n *node.Node) (*node.Node, error) {
			n.Metadata.Set("Questions and Answers", "Hello there, how may I assist you today?")
			return n, nil
		},
	}

	cache := newFakeCache()
	persist := newFakePersist()

	pipeline := New(FromNodes(n)).
		Then(transform).
		FilterCached(cache).
		ThenStoreWith(persist)

	err := pipeline.Run(context.Background())
	require.NoError(t, err)

	stored := persist.all()
	require.Len(t, stored, 1)
	assert.Contains(t, stored[0].OriginPath, "main.rs")
	assert.Equal(t, n.Chunk, stored[0].Chunk)
	v, _ := stored[0].Metadata.Get("Questions and Answers")
	assert.Equal(t, "Hello there, how may I assist you today?", v)
}

func TestS2_DeferredCacheOnPartialFailure(t *testing.T) {
	parent := node.New(string(make([]byte, 200)))
	parent.OriginPath = "doc.txt"

	chunker := ChunkerFunc{
		Fn: func(ctx context.Context, n *node.Node) IndexingStream {
			out := make(chan Item, 5)
			for i := 0; i < 5; i++ {
				child := node.New(fmt.Sprintf("chunk-%d", i))
				child.OriginPath = n.OriginPath
				child.SetParent(n.ID())
				out <- ok(child)
			}
			close(out)
			return FromChan(out)
		},
	}

	persist := newFakePersist()
	persist.failWith["chunk-4"] = assertErr

	cache := newFakeCache()

	pipeline := New(FromNodes(parent)).
		FilterCached(cache).
		ThenChunk(chunker).
		ThenStoreWith(persist)

	err := pipeline.Run(context.Background())
	require.Error(t, err)

	committed, cacheErr := cache.Get(context.Background(), parent)
	require.NoError(t, cacheErr)
	assert.False(t, committed, "parent must not be committed when a chunk-child persist fails")
}

var assertErr = fmt.Errorf("simulated store failure")

func TestS3_ChunkerChildrenParentID(t *testing.T) {
	parent := node.New("parent text")
	parent.OriginPath = "p.rs"
	parentID := parent.ID()

	chunker := ChunkerFunc{
		Fn: func(ctx context.Context, n *node.Node) IndexingStream {
			out := make(chan Item, 3)
			for i := 0; i < 3; i++ {
				child := node.New("child-" + strconv.Itoa(i))
				child.OriginPath = n.OriginPath
				child.SetParent(n.ID())
				out <- ok(child)
			}
			close(out)
			return FromChan(out)
		},
	}

	var mu sync.Mutex
	var seenIDs []uint64

	collector := fakeTransformer{
		fn: func(_ context.Context, n *node.Node) (*node.Node, error) {
			mu.Lock()
			seenIDs = append(seenIDs, n.ID())
			mu.Unlock()
			assert.True(t, n.HasParent)
			assert.Equal(t, parentID, n.ParentID)
			assert.NotEqual(t, parentID, n.ID())
			return n, nil
		},
	}

	persist := newFakePersist()
	cache := newFakeCache()

	pipeline := New(FromNodes(parent)).
		ThenChunk(chunker).
		Then(collector).
		FilterCached(cache).
		ThenStoreWith(persist)

	require.NoError(t, pipeline.Run(context.Background()))
	require.Len(t, seenIDs, 3)
	assert.NotEqual(t, seenIDs[0], seenIDs[1])
	assert.NotEqual(t, seenIDs[1], seenIDs[2])
}

func TestBackpressure_ConcurrencyNeverExceedsLimit(t *testing.T) {
	const n = 40
	const limit = 4

	var nodes []*node.Node
	for i := 0; i < n; i++ {
		nd := node.New(strconv.Itoa(i))
		nd.OriginPath = "f"
		nodes = append(nodes, nd)
	}

	counter := &concurrencyCountingTransformer{BaseStage: BaseStage{StageConcurrency: limit}}
	persist := newFakePersist()
	cache := newFakeCache()

	pipeline := New(FromNodes(nodes...)).
		Then(counter).
		FilterCached(cache).
		ThenStoreWith(persist)

	require.NoError(t, pipeline.Run(context.Background()))
	assert.LessOrEqual(t, int(counter.maxSeen), limit)
	assert.Len(t, persist.all(), n)
}

func TestSplitMerge_Completeness(t *testing.T) {
	const n = 30
	var nodes []*node.Node
	for i := 0; i < n; i++ {
		nd := node.New(strconv.Itoa(i))
		nd.OriginPath = "f"
		nodes = append(nodes, nd)
	}

	cache := newFakeCache()
	persist := newFakePersist()

	base := New(FromNodes(nodes...))
	left, right := base.SplitBy(func(nd *node.Node) bool {
		i, _ := strconv.Atoi(nd.Chunk)
		return i%2 == 0
	})
	merged := left.Merge(right).FilterCached(cache).ThenStoreWith(persist)

	require.NoError(t, merged.Run(context.Background()))
	assert.Len(t, persist.all(), n)

	seen := make(map[string]bool)
	for _, nd := range persist.all() {
		seen[nd.Chunk] = true
	}
	assert.Len(t, seen, n)
}

func TestRun_NoStoresIsConfigurationError(t *testing.T) {
	pipeline := New(FromNodes(node.New("x")))
	err := pipeline.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindConfiguration))
}

func TestWithTracer_SpansStageAndStoreByName(t *testing.T) {
	n := node.New("hello")
	n.OriginPath = "f"

	transform := fakeTransformer{
		BaseStage: BaseStage{StageName: "uppercase"},
		fn:        func(_ context.Context, n *node.Node) (*node.Node, error) { return n, nil },
	}

	persist := newFakePersist()
	tracer := &fakeTracer{}

	pipeline := New(FromNodes(n)).WithTracer(tracer).Then(transform).ThenStoreWith(persist)
	require.NoError(t, pipeline.Run(context.Background()))

	names := tracer.spanNames()
	assert.Contains(t, names, "uppercase")
	assert.Contains(t, names, "fake-persist")
}

func TestSplitBy_PredicatePanicIsFatal(t *testing.T) {
	nodes := []*node.Node{node.New("a"), node.New("b")}
	for _, nd := range nodes {
		nd.OriginPath = "f"
	}

	cache := newFakeCache()
	persist := newFakePersist()

	left, right := New(FromNodes(nodes...)).SplitBy(func(*node.Node) bool {
		panic("boom")
	})
	merged := left.Merge(right).FilterCached(cache).ThenStoreWith(persist)

	err := merged.Run(context.Background())
	require.Error(t, err)
}
