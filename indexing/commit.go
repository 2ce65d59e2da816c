package indexing

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Tangerg/weave/node"
)

// commitToken is a reference-counted pending cache entry for one node.id.
// A chunker child increments its parent's token; each successful persist of
// the token's own node, plus each child committing in turn, decrements it;
// reaching zero triggers cache.Set. An erroring persist poisons the token so
// it never commits, and a poisoned or merely-never-finished child leaves its
// parent's count above zero forever, which keeps the parent from committing
// too — poisoning propagates by omission rather than by an explicit flag
// walk up the tree.
type commitToken struct {
	cache     NodeCache
	node      *node.Node
	hasParent bool
	parentID  uint64
	pending   int
	poisoned  bool
	done      bool
}

// commitTracker owns the commit map described in spec.md §4.5: node.id ->
// pending commit token. It is the pipeline driver's single source of truth
// for "has this node's downstream lineage finished". Access is guarded by
// a mutex because decrements race across persist-completion callbacks.
type commitTracker struct {
	mu        sync.Mutex
	tokens    map[uint64]*commitToken
	committed map[uint64]struct{}
	logger    *slog.Logger
}

func newCommitTracker(logger *slog.Logger) *commitTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &commitTracker{
		tokens:    make(map[uint64]*commitToken),
		committed: make(map[uint64]struct{}),
		logger:    logger,
	}
}

// register records a cache miss for n, creating its pending token. Safe to
// call once per node; a node already committed or already registered in
// this run is a no-op (duplicate arrivals are dropped without a second
// cache.Set).
func (t *commitTracker) register(cache NodeCache, n *node.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := n.ID()
	if _, already := t.committed[id]; already {
		return
	}
	if _, exists := t.tokens[id]; exists {
		return
	}
	t.tokens[id] = &commitToken{
		cache:     cache,
		node:      n,
		hasParent: n.HasParent,
		parentID:  n.ParentID,
		pending:   1,
	}
}

// addChild increments the parent token's pending count for a chunker child,
// called at chunk time before the child itself enters filter_cached. If the
// parent has no token (it was not itself subject to filter_cached), this is
// a no-op: there is nothing to gate the child's commit against.
func (t *commitTracker) addChild(parentID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tok, ok := t.tokens[parentID]; ok {
		tok.pending++
	}
}

// targetFor resolves which token a persist outcome for n applies against:
// n's own token if n was itself registered (passed through filter_cached
// directly), otherwise its parent's token (n is a chunker child that was
// never separately registered, so its persist counts against the unit its
// parent's addChild call reserved for it). A node with neither its own
// token nor a parent has nothing to commit.
func (t *commitTracker) targetFor(n *node.Node) (id uint64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ownID := n.ID()
	if _, exists := t.tokens[ownID]; exists {
		return ownID, true
	}
	if n.HasParent {
		return n.ParentID, true
	}
	return 0, false
}

// succeed records a successful persist for n. When the resolved token
// reaches zero it commits (cache.Set is invoked), possibly cascading a
// parent's own commit in turn.
func (t *commitTracker) succeed(ctx context.Context, n *node.Node) {
	id, applicable := t.targetFor(n)
	if !applicable {
		return
	}
	t.decrement(ctx, id)
}

func (t *commitTracker) decrement(ctx context.Context, nodeID uint64) {
	t.mu.Lock()
	tok, exists := t.tokens[nodeID]
	if !exists {
		t.mu.Unlock()
		return
	}
	tok.pending--
	ready := tok.pending <= 0 && !tok.poisoned && !tok.done
	if ready {
		tok.done = true
		delete(t.tokens, nodeID)
		t.committed[nodeID] = struct{}{}
	}
	t.mu.Unlock()

	if !ready {
		return
	}

	if err := tok.cache.Set(ctx, tok.node); err != nil {
		t.logger.Error("cache commit failed",
			slog.String("cache", tok.cache.Name()),
			slog.Uint64("node_id", nodeID),
			slog.String("err", err.Error()))
	} else {
		t.logger.Info("cache commit",
			slog.String("cache", tok.cache.Name()),
			slog.Uint64("node_id", nodeID))
	}

	if tok.hasParent {
		t.decrement(ctx, tok.parentID)
	}
}

// chunkedAway cancels out the "pending self-persist" unit registered for a
// node that a chunker consumed entirely: since the node itself is replaced
// by children rather than persisted directly, its own registration count
// of 1 is released once all of its children have been fanned out, leaving
// the token's remaining pending count equal to exactly its child count.
func (t *commitTracker) chunkedAway(ctx context.Context, parentID uint64) {
	t.decrement(ctx, parentID)
}

// fail poisons the token that would have owned a successful persist of n,
// so it never commits. A poisoned ancestor token's pending count is simply
// never fully decremented, which is sufficient to also keep any of its own
// ancestors from reaching zero — poisoning propagates by omission rather
// than an explicit flag walk up the tree.
func (t *commitTracker) fail(n *node.Node) {
	id, applicable := t.targetFor(n)
	if !applicable {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if tok, ok := t.tokens[id]; ok {
		tok.poisoned = true
	}
}

// isCommitted reports whether id has been committed in this tracker's
// lifetime. Exposed for tests that want to assert on commit state directly
// rather than through a fake cache's Set calls.
func (t *commitTracker) isCommitted(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.committed[id]
	return ok
}
