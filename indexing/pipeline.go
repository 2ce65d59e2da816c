package indexing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/Tangerg/weave/errs"
	"github.com/Tangerg/weave/node"
	"github.com/Tangerg/weave/telemetry"
)

// pipelineCore holds the state shared across every branch of a pipeline
// built with SplitBy: the store set, concurrency/batch-size config, the
// commit tracker, and the injected defaults bag. Both branches of a split
// and the merged result all point at the same core, matching spec.md
// §4.4's "both sides share the same storage set, concurrency, and batch
// size".
type pipelineCore struct {
	mu       sync.Mutex
	config   Config
	stores   []Persist
	tracker  *commitTracker
	defaults Defaults
	logger   *slog.Logger
	tracer   telemetry.Tracer
}

func newCore(logger *slog.Logger) *pipelineCore {
	if logger == nil {
		logger = slog.Default()
	}
	return &pipelineCore{
		config:  defaultConfig(),
		tracker: newCommitTracker(logger),
		logger:  logger,
		tracer:  telemetry.NoOp,
	}
}

func (c *pipelineCore) addStore(p Persist) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores = append(c.stores, p)
}

// Pipeline is a builder that threads an IndexingStream through stages. Every
// stage method returns a new Pipeline that shares the receiver's core (store
// set, config, commit tracker, defaults, logger, tracer), so a partially
// built Pipeline can be reused as the basis for more than one branch (as
// SplitBy does). WithLogger, WithTracer and WithDefaultLLMClient modify that
// shared core and return the receiver itself, and ThenStoreWith registers
// its store in the shared core.
type Pipeline struct {
	core  *pipelineCore
	build func(ctx context.Context) IndexingStream
}

// New starts a pipeline from a loader stream.
func New(loader IndexingStream) *Pipeline {
	core := newCore(nil)
	return &Pipeline{
		core:  core,
		build: func(context.Context) IndexingStream { return loader },
	}
}

// WithLogger overrides the pipeline's structured logger (defaults to
// slog.Default()).
func (p *Pipeline) WithLogger(logger *slog.Logger) *Pipeline {
	p.core.logger = logger
	p.core.tracker.logger = logger
	return p
}

// WithTracer overrides the pipeline's span tracer (defaults to
// telemetry.NoOp). Each Then, ThenChunk and per-item Store call opens one
// span named after the stage or store and carrying a node.id attribute; each
// ThenInBatch and BatchStore call opens one span carrying batch.size instead.
// The other stages open no span.
func (p *Pipeline) WithTracer(tracer telemetry.Tracer) *Pipeline {
	p.core.tracer = tracer
	return p
}

func (c *pipelineCore) traced(stageName string, fn func(ctx context.Context, n *node.Node) (*node.Node, error)) func(context.Context, *node.Node) (*node.Node, error) {
	return func(ctx context.Context, n *node.Node) (*node.Node, error) {
		spanCtx, end := c.tracer.StartSpan(ctx, stageName, attribute.Int64("node.id", int64(n.ID())))
		out, err := fn(spanCtx, n)
		end(err)
		return out, err
	}
}

func (p *Pipeline) next(build func(ctx context.Context, in IndexingStream) IndexingStream) *Pipeline {
	prev := p.build
	return &Pipeline{
		core: p.core,
		build: func(ctx context.Context) IndexingStream {
			return build(ctx, prev(ctx))
		},
	}
}

// Then fans each upstream node through t.Transform, bounded by t's
// concurrency override or the pipeline default. Order is not preserved.
func (p *Pipeline) Then(t Transformer) *Pipeline {
	return p.next(func(ctx context.Context, in IndexingStream) IndexingStream {
		conc := p.core.config.concurrencyOr(t.Concurrency())
		return mapConcurrent(ctx, in, conc, p.core.traced(t.Name(), t.Transform))
	})
}

// ThenInBatch chunks the upstream into groups sized by t's batch-size
// override or the pipeline default, runs up to t's (or the pipeline's)
// concurrency worth of BatchTransform calls concurrently, and flattens
// their output streams unordered.
func (p *Pipeline) ThenInBatch(t BatchableTransformer) *Pipeline {
	return p.next(func(ctx context.Context, in IndexingStream) IndexingStream {
		size := p.core.config.batchSizeOr(t.BatchSize())
		conc := p.core.config.concurrencyOr(t.Concurrency())
		traced := func(ctx context.Context, batch []*node.Node) IndexingStream {
			spanCtx, end := p.core.tracer.StartSpan(ctx, t.Name(), attribute.Int("batch.size", len(batch)))
			out := t.BatchTransform(spanCtx, batch)
			end(nil)
			return out
		}
		return flattenBatches(ctx, in, size, conc, traced)
	})
}

// ThenChunk fans each upstream node through c.Transform (same concurrency
// rule as Then), flattening the resulting per-node child streams unordered.
// Each child is expected to carry ParentID set to its parent's id; ThenChunk
// additionally registers the parent/child relationship with the commit
// tracker so a chunker's children gate their parent's cache commit.
func (p *Pipeline) ThenChunk(c ChunkerTransformer) *Pipeline {
	return p.next(func(ctx context.Context, in IndexingStream) IndexingStream {
		conc := p.core.config.concurrencyOr(c.Concurrency())
		return flattenUnordered(ctx, in, conc, func(ctx context.Context, n *node.Node) (IndexingStream, error) {
			parentID := n.ID()
			spanCtx, end := p.core.tracer.StartSpan(ctx, c.Name(), attribute.Int64("node.id", int64(parentID)))
			children := c.Transform(spanCtx, n)
			end(nil)
			out := make(chan Item, splitChannelCapacity)
			go func() {
				defer close(out)
				for it := range children.Chan() {
					if !it.isErr() && it.Node.HasParent && it.Node.ParentID == it.Node.ID() {
						it = fail(errs.Configurationf("chunker %q emitted node %d as its own parent", c.Name(), it.Node.ID()))
					} else if !it.isErr() && it.Node.HasParent && it.Node.ParentID == parentID {
						p.core.tracker.addChild(parentID)
					}
					select {
					case out <- it:
					case <-ctx.Done():
						return
					}
				}
				p.core.tracker.chunkedAway(ctx, parentID)
			}()
			return FromChan(out), nil
		})
	})
}

// FilterCached drops any upstream node for which k.Get reports true, and
// for every forwarded node registers a pending commit token keyed by the
// node's id. The token is resolved later by the terminal persist stage(s)
// via the shared commit tracker.
func (p *Pipeline) FilterCached(k NodeCache) *Pipeline {
	return p.next(func(ctx context.Context, in IndexingStream) IndexingStream {
		out := make(chan Item, splitChannelCapacity)
		go func() {
			defer close(out)
			for it := range in.Chan() {
				if it.isErr() {
					select {
					case out <- it:
					case <-ctx.Done():
						return
					}
					continue
				}
				cached, err := k.Get(ctx, it.Node)
				if err != nil {
					select {
					case out <- fail(err):
					case <-ctx.Done():
						return
					}
					continue
				}
				if cached {
					continue
				}
				p.core.tracker.register(k, it.Node)
				select {
				case out <- it:
				case <-ctx.Done():
					return
				}
			}
		}()
		return FromChan(out)
	})
}

// ThenStoreWith registers p (the store) in this pipeline's store set so its
// Setup runs at Run time, and wires a terminal persist stage: BatchStore if
// p declares a non-zero BatchSize, otherwise Store per item. Every
// successful or failed persist is reported to the commit tracker.
func (p *Pipeline) ThenStoreWith(store Persist) *Pipeline {
	p.core.addStore(store)
	return p.next(func(ctx context.Context, in IndexingStream) IndexingStream {
		if store.BatchSize() > 0 {
			return p.storeBatched(ctx, in, store)
		}
		return p.storeSingle(ctx, in, store)
	})
}

func (p *Pipeline) storeSingle(ctx context.Context, in IndexingStream, store Persist) IndexingStream {
	conc := p.core.config.Concurrency
	out := make(chan Item, splitChannelCapacity)
	go func() {
		defer close(out)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(conc)
		for it := range in.Chan() {
			it := it
			if it.isErr() {
				select {
				case out <- it:
				case <-ctx.Done():
					return
				}
				continue
			}
			g.Go(func() error {
				spanCtx, end := p.core.tracer.StartSpan(gctx, store.Name(), attribute.Int64("node.id", int64(it.Node.ID())))
				stored, err := store.Store(spanCtx, it.Node)
				end(err)
				if err != nil {
					p.core.tracker.fail(it.Node)
					select {
					case out <- fail(err):
					case <-ctx.Done():
					}
					return nil
				}
				p.core.tracker.succeed(gctx, stored)
				select {
				case out <- ok(stored):
				case <-ctx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
	return FromChan(out)
}

func (p *Pipeline) storeBatched(ctx context.Context, in IndexingStream, store Persist) IndexingStream {
	conc := p.core.config.Concurrency
	size := p.core.config.batchSizeOr(store.BatchSize())
	out := make(chan Item, splitChannelCapacity)
	go func() {
		defer close(out)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(conc)
		for batch := range chunks(in, size) {
			batch := batch
			g.Go(func() error {
				var nodes []*node.Node
				for _, it := range batch {
					if it.isErr() {
						select {
						case out <- it:
						case <-ctx.Done():
							return nil
						}
						continue
					}
					nodes = append(nodes, it.Node)
				}
				if len(nodes) == 0 {
					return nil
				}
				byID := make(map[uint64]*node.Node, len(nodes))
				for _, n := range nodes {
					byID[n.ID()] = n
				}

				spanCtx, end := p.core.tracer.StartSpan(gctx, store.Name(), attribute.Int("batch.size", len(nodes)))
				result := store.BatchStore(spanCtx, nodes)
				end(nil)
				seen := make(map[uint64]bool, len(nodes))
				for item := range result.Chan() {
					if item.isErr() {
						if item.Node != nil {
							id := item.Node.ID()
							p.core.tracker.fail(item.Node)
							seen[id] = true
						}
						select {
						case out <- item:
						case <-ctx.Done():
							return nil
						}
						continue
					}
					id := item.Node.ID()
					p.core.tracker.succeed(gctx, item.Node)
					seen[id] = true
					select {
					case out <- item:
					case <-ctx.Done():
						return nil
					}
				}
				for id, n := range byID {
					if !seen[id] {
						p.core.tracker.fail(n)
					}
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
	return FromChan(out)
}

// SplitBy drives the upstream once, shipping each item to either the left
// or right branch based on pred. Both branches share this pipeline's
// storage set, concurrency, and batch size (they share core). Building
// both branches (for example via Merge and Run) drives the shared upstream
// exactly once thanks to internal memoization.
func (p *Pipeline) SplitBy(pred func(*node.Node) bool) (left, right *Pipeline) {
	prev := p.build
	var once sync.Once
	var leftStream, rightStream IndexingStream
	compute := func(ctx context.Context) {
		once.Do(func() {
			leftStream, rightStream = splitBy(ctx, prev(ctx), pred)
		})
	}
	left = &Pipeline{core: p.core, build: func(ctx context.Context) IndexingStream {
		compute(ctx)
		return leftStream
	}}
	right = &Pipeline{core: p.core, build: func(ctx context.Context) IndexingStream {
		compute(ctx)
		return rightStream
	}}
	return left, right
}

// Merge concatenates this pipeline's stream with other's, preserving
// per-source order but not interleaving order across the two sources. The
// merged pipeline keeps this pipeline's core (store set, config, tracker);
// other's core is not consulted, so Merge is normally used to rejoin two
// branches produced by the same SplitBy call.
func (p *Pipeline) Merge(other *Pipeline) *Pipeline {
	prevA, prevB := p.build, other.build
	return &Pipeline{core: p.core, build: func(ctx context.Context) IndexingStream {
		return mergeStreams(ctx, prevA(ctx), prevB(ctx))
	}}
}

// Throttle forwards at most one item per duration d, preserving upstream
// order.
func (p *Pipeline) Throttle(d time.Duration) *Pipeline {
	return p.next(func(ctx context.Context, in IndexingStream) IndexingStream {
		return throttleStream(ctx, in, d)
	})
}

// Filter keeps only items for which keep returns true. keep sees both
// successful nodes and errors (it receives the full Item).
func (p *Pipeline) Filter(keep func(n *node.Node, err error) bool) *Pipeline {
	return p.next(func(ctx context.Context, in IndexingStream) IndexingStream {
		return filterStream(in, func(it Item) bool { return keep(it.Node, it.Err) })
	})
}

// FilterErrors silently drops error items from the stream.
func (p *Pipeline) FilterErrors() *Pipeline {
	return p.next(func(ctx context.Context, in IndexingStream) IndexingStream {
		return filterErrorsStream(in)
	})
}

// LogAll logs every item (node or error) at Debug/Warn respectively without
// altering the stream.
func (p *Pipeline) LogAll() *Pipeline {
	return p.next(func(ctx context.Context, in IndexingStream) IndexingStream {
		return inspect(in,
			func(n *node.Node) {
				p.core.logger.Debug("node", slog.Uint64("node_id", n.ID()), slog.String("origin_path", n.OriginPath))
			},
			func(err error) {
				p.core.logger.Warn("pipeline error", slog.String("err", err.Error()))
			})
	})
}

// LogNodes logs successful nodes only.
func (p *Pipeline) LogNodes() *Pipeline {
	return p.next(func(ctx context.Context, in IndexingStream) IndexingStream {
		return inspect(in, func(n *node.Node) {
			p.core.logger.Debug("node", slog.Uint64("node_id", n.ID()), slog.String("origin_path", n.OriginPath))
		}, nil)
	})
}

// LogErrors logs error items only.
func (p *Pipeline) LogErrors() *Pipeline {
	return p.next(func(ctx context.Context, in IndexingStream) IndexingStream {
		return inspect(in, nil, func(err error) {
			p.core.logger.Warn("pipeline error", slog.String("err", err.Error()))
		})
	})
}

// WithEmbedMode sets EmbedMode on every node passing through this point in
// the pipeline. Idempotent: setting the same mode twice has no additional
// effect.
func (p *Pipeline) WithEmbedMode(mode node.EmbedMode) *Pipeline {
	return p.next(func(ctx context.Context, in IndexingStream) IndexingStream {
		out := make(chan Item, splitChannelCapacity)
		go func() {
			defer close(out)
			for it := range in.Chan() {
				if !it.isErr() {
					it.Node.EmbedMode = mode
				}
				select {
				case out <- it:
				case <-ctx.Done():
					return
				}
			}
		}()
		return FromChan(out)
	})
}

// WithDefaultLLMClient stores c in this pipeline's Defaults bag, available
// to any stage built against the same core that opts in to reading it.
func (p *Pipeline) WithDefaultLLMClient(c any) *Pipeline {
	p.core.defaults.LLMClient = c
	return p
}

// Defaults returns the pipeline's current defaults bag.
func (p *Pipeline) Defaults() Defaults {
	return p.core.defaults
}

// Run calls Setup on every registered store in parallel (fail-fast), then
// drains the terminal stream, returning the first fatal error it
// encounters. A pipeline with zero registered stores is a fatal
// configuration error. Successful nodes are cache-committed as their
// downstream lineage resolves; in-flight nodes at the time of an aborting
// error are not.
func (p *Pipeline) Run(ctx context.Context) error {
	if len(p.core.stores) == 0 {
		return errs.Configurationf("pipeline has no registered stores")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	setupGroup, setupCtx := errgroup.WithContext(runCtx)
	for _, store := range p.core.stores {
		store := store
		setupGroup.Go(func() error {
			if err := store.Setup(setupCtx); err != nil {
				return errs.Configurationf("store %q setup failed: %w", store.Name(), err)
			}
			return nil
		})
	}
	if err := setupGroup.Wait(); err != nil {
		return err
	}

	p.core.logger.Info("pipeline run started")

	stream := p.build(runCtx)
	count := 0
	for item := range stream.Chan() {
		if item.isErr() {
			p.core.logger.Error("pipeline aborted", slog.String("err", item.Err.Error()))
			return item.Err
		}
		count++
	}

	p.core.logger.Info("pipeline run finished", slog.Int("nodes_processed", count))
	return nil
}
