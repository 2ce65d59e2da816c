package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tangerg/weave/node"
)

func TestBatcher_SplitsOnTokenBudget(t *testing.T) {
	b, err := NewBatcher("cl100k_base", 8)
	require.NoError(t, err)

	nodes := []*node.Node{
		node.New("one two three"),
		node.New("four five six"),
		node.New("seven eight nine ten"),
	}

	batches := b.Batch(nodes)
	require.NotEmpty(t, batches)

	var total int
	for _, batch := range batches {
		total += len(batch)
		tokens := 0
		for _, n := range batch {
			tokens += b.countTokens(n)
		}
		assert.True(t, tokens <= 8 || len(batch) == 1, "batch exceeded budget without being a single oversized node")
	}
	assert.Equal(t, len(nodes), total)
}

func TestBatcher_OversizedNodeGetsOwnBatch(t *testing.T) {
	b, err := NewBatcher("cl100k_base", 2)
	require.NoError(t, err)

	nodes := []*node.Node{node.New("this chunk alone has many more than two tokens in it")}
	batches := b.Batch(nodes)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 1)
}

func TestBatcher_EmptyInputProducesNoBatches(t *testing.T) {
	b, err := NewBatcher("cl100k_base", 100)
	require.NoError(t, err)
	assert.Empty(t, b.Batch(nil))
}
