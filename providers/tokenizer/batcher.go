// Package tokenizer sizes node batches by token budget instead of raw
// count, for stages that call out to a model with a fixed context window.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/Tangerg/weave/indexing"
	"github.com/Tangerg/weave/node"
)

// Batcher groups Nodes so that no batch's total token count (summed over
// each node's Chunk) exceeds MaxTokensPerBatch. A single node whose Chunk
// alone exceeds the budget still gets its own one-node batch rather than
// being dropped or split.
type Batcher struct {
	MaxTokensPerBatch int
	encoding          *tiktoken.Tiktoken
}

var _ indexing.NodeBatcher = (*Batcher)(nil)

// NewBatcher builds a Batcher using the named tiktoken encoding (e.g.
// "cl100k_base") to estimate token counts.
func NewBatcher(encodingName string, maxTokensPerBatch int) (*Batcher, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load encoding %q: %w", encodingName, err)
	}
	return &Batcher{
		MaxTokensPerBatch: maxTokensPerBatch,
		encoding:          enc,
	}, nil
}

func (b *Batcher) countTokens(n *node.Node) int {
	return len(b.encoding.Encode(n.Chunk, nil, nil))
}

// Batch implements indexing.NodeBatcher.
func (b *Batcher) Batch(nodes []*node.Node) [][]*node.Node {
	var batches [][]*node.Node
	var current []*node.Node
	currentTokens := 0

	for _, n := range nodes {
		tokens := b.countTokens(n)

		if len(current) > 0 && currentTokens+tokens > b.MaxTokensPerBatch {
			batches = append(batches, current)
			current = nil
			currentTokens = 0
		}

		current = append(current, n)
		currentTokens += tokens
	}

	if len(current) > 0 {
		batches = append(batches, current)
	}

	return batches
}
