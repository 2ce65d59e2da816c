// Package indexing builds staged, concurrent, backpressured transformation
// pipelines over a lazy sequence of node.Node values: load, transform,
// chunk, embed, and persist, with deferred cache commits gated on
// successful persistence.
package indexing

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Tangerg/weave/errs"
	"github.com/Tangerg/weave/node"
)

// splitChannelCapacity is the bounded channel size used wherever the
// pipeline fans a stream out to multiple consumers (split_by, stage
// boundaries). Producers suspend once a receiver's buffer is full.
const splitChannelCapacity = 1024

// Item is one element of an IndexingStream: either a successfully produced
// Node or a PipelineError. Errors are first-class stream items, not
// out-of-band signals — a stage must not swallow one unless explicitly
// asked to (FilterErrors, a user Filter).
type Item struct {
	Node *node.Node
	Err  error
}

func ok(n *node.Node) Item  { return Item{Node: n} }
func fail(err error) Item   { return Item{Err: err} }
func (it Item) isErr() bool { return it.Err != nil }

// IndexingStream is a lazy, fallible, single-consumer sequence of Items
// delivered over a channel. The zero value is not usable; construct one
// with FromChan, FromNodes, or a pipeline stage.
type IndexingStream struct {
	ch <-chan Item
}

// FromChan wraps an existing channel as an IndexingStream.
func FromChan(ch <-chan Item) IndexingStream {
	return IndexingStream{ch: ch}
}

// FromNodes constructs a stream that yields the given nodes and then closes.
// Useful for loaders and in tests.
func FromNodes(nodes ...*node.Node) IndexingStream {
	out := make(chan Item, len(nodes))
	for _, n := range nodes {
		out <- ok(n)
	}
	close(out)
	return FromChan(out)
}

// FromItems constructs a stream from pre-built items, preserving order.
func FromItems(items ...Item) IndexingStream {
	out := make(chan Item, len(items))
	for _, it := range items {
		out <- it
	}
	close(out)
	return FromChan(out)
}

// Chan exposes the underlying receive channel for a terminal consumer.
func (s IndexingStream) Chan() <-chan Item {
	return s.ch
}

// mapConcurrent runs fn over every upstream item with at most `concurrency`
// calls in flight at once (the "then" stage rule). Order is not preserved.
// Upstream errors pass through untouched without invoking fn.
func mapConcurrent(ctx context.Context, in IndexingStream, concurrency int, fn func(context.Context, *node.Node) (*node.Node, error)) IndexingStream {
	if concurrency <= 0 {
		concurrency = 1
	}
	out := make(chan Item, splitChannelCapacity)

	go func() {
		defer close(out)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		for it := range in.ch {
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
				n, err := fn(gctx, it.Node)
				var res Item
				if err != nil {
					res = fail(err)
				} else {
					res = ok(n)
				}
				select {
				case out <- res:
				case <-ctx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	return FromChan(out)
}

// flattenUnordered runs fn over every upstream item (bounded by
// concurrency), each producing a child IndexingStream, and flattens all
// children into a single unordered output stream. Used by then_chunk.
func flattenUnordered(ctx context.Context, in IndexingStream, concurrency int, fn func(context.Context, *node.Node) (IndexingStream, error)) IndexingStream {
	if concurrency <= 0 {
		concurrency = 1
	}
	out := make(chan Item, splitChannelCapacity)

	go func() {
		defer close(out)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		for it := range in.ch {
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
				child, err := fn(gctx, it.Node)
				if err != nil {
					select {
					case out <- fail(err):
					case <-ctx.Done():
					}
					return nil
				}
				for childItem := range child.ch {
					select {
					case out <- childItem:
					case <-ctx.Done():
						return nil
					}
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	return FromChan(out)
}

// flattenBatches chunks the upstream into groups of at most size items (an
// error item closes the current chunk early), runs up to concurrency
// batchFn calls concurrently, and flattens their output streams unordered.
// Used by then_in_batch.
func flattenBatches(ctx context.Context, in IndexingStream, size, concurrency int, batchFn func(context.Context, []*node.Node) IndexingStream) IndexingStream {
	if concurrency <= 0 {
		concurrency = 1
	}
	out := make(chan Item, splitChannelCapacity)

	go func() {
		defer close(out)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

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
				child := batchFn(gctx, nodes)
				for childItem := range child.ch {
					select {
					case out <- childItem:
					case <-ctx.Done():
						return nil
					}
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	return FromChan(out)
}

// chunks groups upstream items into slices of at most size elements. An
// error item terminates the current chunk early (the chunk built so far,
// including the error, is emitted) and starts a fresh chunk for subsequent
// items, per spec: "errors terminate the current chunk early".
func chunks(in IndexingStream, size int) <-chan []Item {
	if size <= 0 {
		size = 1
	}
	out := make(chan []Item)
	go func() {
		defer close(out)
		var buf []Item
		for it := range in.ch {
			buf = append(buf, it)
			if it.isErr() || len(buf) >= size {
				out <- buf
				buf = nil
			}
		}
		if len(buf) > 0 {
			out <- buf
		}
	}()
	return out
}

// throttleStream forwards at most one item per interval d, preserving
// upstream order. Uses a token-bucket limiter of rate 1/d and burst 1, so
// the first item is forwarded immediately and suspension happens between
// forwarded items after that.
func throttleStream(ctx context.Context, in IndexingStream, d time.Duration) IndexingStream {
	if d <= 0 {
		return in
	}
	out := make(chan Item)
	go func() {
		defer close(out)
		limiter := rate.NewLimiter(rate.Every(d), 1)
		for it := range in.ch {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			select {
			case out <- it:
			case <-ctx.Done():
				return
			}
		}
	}()
	return FromChan(out)
}

// inspect calls onOK/onErr for their respective item kinds without altering
// the stream, for log_nodes/log_errors/log_all.
func inspect(in IndexingStream, onOK func(*node.Node), onErr func(error)) IndexingStream {
	out := make(chan Item, splitChannelCapacity)
	go func() {
		defer close(out)
		for it := range in.ch {
			if it.isErr() {
				if onErr != nil {
					onErr(it.Err)
				}
			} else if onOK != nil {
				onOK(it.Node)
			}
			out <- it
		}
	}()
	return FromChan(out)
}

// filterStream applies a user predicate over raw Items (keep/drop), used by
// Pipeline.Filter.
func filterStream(in IndexingStream, keep func(Item) bool) IndexingStream {
	out := make(chan Item, splitChannelCapacity)
	go func() {
		defer close(out)
		for it := range in.ch {
			if keep(it) {
				out <- it
			}
		}
	}()
	return FromChan(out)
}

// filterErrorsStream silently drops error items.
func filterErrorsStream(in IndexingStream) IndexingStream {
	return filterStream(in, func(it Item) bool { return !it.isErr() })
}

// splitBy drives in once, routing each item to left or right based on pred.
// A panic inside pred is recovered and converted into a single
// errs.Configuration fatal item sent to the left branch, then both branches
// are closed; the spec treats predicate panics as fatal pipeline errors.
func splitBy(ctx context.Context, in IndexingStream, pred func(*node.Node) bool) (left, right IndexingStream) {
	lch := make(chan Item, splitChannelCapacity)
	rch := make(chan Item, splitChannelCapacity)

	go func() {
		defer close(lch)
		defer close(rch)
		for it := range in.ch {
			if it.isErr() {
				select {
				case lch <- it:
				case <-ctx.Done():
					return
				}
				continue
			}

			goLeft, failed := safePredicate(pred, it.Node)
			if failed != nil {
				select {
				case lch <- fail(failed):
				case <-ctx.Done():
				}
				return
			}

			dst := rch
			if goLeft {
				dst = lch
			}
			select {
			case dst <- it:
			case <-ctx.Done():
				return
			}
		}
	}()

	return FromChan(lch), FromChan(rch)
}

func safePredicate(pred func(*node.Node) bool, n *node.Node) (result bool, panicErr error) {
	defer func() {
		if r := recover(); r != nil {
			panicErr = errs.Configurationf("split_by predicate panicked: %v", r)
		}
	}()
	return pred(n), nil
}

// mergeStreams concatenates multiple streams' items into one channel,
// preserving per-source order but not interleaving order across sources.
func mergeStreams(ctx context.Context, streams ...IndexingStream) IndexingStream {
	out := make(chan Item, splitChannelCapacity)
	go func() {
		defer close(out)
		g, gctx := errgroup.WithContext(ctx)
		for _, s := range streams {
			s := s
			g.Go(func() error {
				for it := range s.ch {
					select {
					case out <- it:
					case <-gctx.Done():
						return nil
					}
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
	return FromChan(out)
}
