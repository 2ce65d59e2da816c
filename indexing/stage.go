package indexing

import (
	"context"

	"github.com/Tangerg/weave/node"
)

// Transformer turns one Node into one Node. Concurrency, if non-zero,
// overrides the pipeline's default concurrency for this stage.
type Transformer interface {
	Name() string
	Transform(ctx context.Context, n *node.Node) (*node.Node, error)
	Concurrency() int
}

// BatchableTransformer turns a batch of Nodes into a stream of Nodes.
// BatchSize, if non-zero, overrides the pipeline's default batch size;
// Concurrency, if non-zero, overrides the pipeline's default concurrency.
type BatchableTransformer interface {
	Name() string
	BatchTransform(ctx context.Context, batch []*node.Node) IndexingStream
	BatchSize() int
	Concurrency() int
}

// ChunkerTransformer turns one Node into zero or more child Nodes, each
// carrying ParentID set to the input node's id.
type ChunkerTransformer interface {
	Name() string
	Transform(ctx context.Context, n *node.Node) IndexingStream
	Concurrency() int
}

// NodeCache records which nodes have already been processed by a prior run.
// Set must be idempotent: calling it twice for the same node has the same
// effect as calling it once.
type NodeCache interface {
	Name() string
	Get(ctx context.Context, n *node.Node) (bool, error)
	Set(ctx context.Context, n *node.Node) error
}

// Persist writes Nodes to a durable store. Setup is called once per run,
// in parallel with every other registered store's Setup, before any item
// flows through the pipeline. BatchSize, if non-zero, causes the pipeline
// to prefer BatchStore over Store.
type Persist interface {
	Name() string
	Setup(ctx context.Context) error
	Store(ctx context.Context, n *node.Node) (*node.Node, error)
	BatchStore(ctx context.Context, batch []*node.Node) IndexingStream
	BatchSize() int
}

// NodeBatcher groups a slice of Nodes into batches sized by some cost
// function other than raw item count (e.g. a token budget). It is an
// internal helper an embedding or persist stage may use to re-batch its own
// input before calling out to a model or store; the pipeline itself only
// ever batches by count (ThenInBatch, ThenStoreWith).
type NodeBatcher interface {
	Batch(nodes []*node.Node) [][]*node.Node
}

// BaseStage provides a default Name/Concurrency/BatchSize implementation
// that adapters can embed to avoid repeating boilerplate, matching the
// teacher's pattern of small embeddable base structs (ai/rag's nop types).
type BaseStage struct {
	StageName        string
	StageConcurrency int
	StageBatchSize   int
}

func (b BaseStage) Name() string     { return b.StageName }
func (b BaseStage) Concurrency() int { return b.StageConcurrency }
func (b BaseStage) BatchSize() int   { return b.StageBatchSize }

// TransformerFunc adapts a plain function to the Transformer interface with
// pipeline-default concurrency.
type TransformerFunc struct {
	BaseStage
	Fn func(ctx context.Context, n *node.Node) (*node.Node, error)
}

func (f TransformerFunc) Transform(ctx context.Context, n *node.Node) (*node.Node, error) {
	return f.Fn(ctx, n)
}

// ChunkerFunc adapts a plain function to ChunkerTransformer. The function is
// responsible for calling n.Clone().SetParent(parentID) on each child it
// produces; this adapter does not set ParentID itself so that chunkers
// which legitimately emit zero children (filters) are representable.
type ChunkerFunc struct {
	BaseStage
	Fn func(ctx context.Context, n *node.Node) IndexingStream
}

func (f ChunkerFunc) Transform(ctx context.Context, n *node.Node) IndexingStream {
	return f.Fn(ctx, n)
}
