package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type questionMarkTransformer struct{}

func (questionMarkTransformer) Transform(_ context.Context, q *Query[Pending]) (*Query[Pending], error) {
	q.Current = q.Current + "?"
	return q, nil
}

type fakeStore struct {
	dense  []*Document
	sparse []*Document
}

func (s *fakeStore) SimilaritySearch(_ context.Context, _ []float32, topK int, _ map[string]any) ([]*Document, error) {
	if topK > 0 && topK < len(s.dense) {
		return s.dense[:topK], nil
	}
	return s.dense, nil
}

func (s *fakeStore) SparseSearch(_ context.Context, _ *SparseEmbedding, topK int) ([]*Document, error) {
	if topK > 0 && topK < len(s.sparse) {
		return s.sparse[:topK], nil
	}
	return s.sparse, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) { return []float32{0.1, 0.2}, nil }
func (fakeEmbedder) EmbedQuerySparse(_ context.Context, _ string) (*SparseEmbedding, error) {
	return &SparseEmbedding{Indices: []uint32{1, 2}, Values: []float32{0.5, 0.5}}, nil
}

type echoAnswerer struct{}

func (echoAnswerer) Answer(_ context.Context, q *Query[Retrieved]) (string, error) {
	return "answer for: " + q.Current, nil
}

func TestPipeline_S5_FullRoundTrip(t *testing.T) {
	store := &fakeStore{
		dense:  []*Document{{Content: "doc-a"}, {Content: "doc-b"}},
		sparse: []*Document{{Content: "doc-b"}, {Content: "doc-c"}},
	}
	retriever := &StoreRetriever{Store: store, Dense: fakeEmbedder{}, Sparse: fakeEmbedder{}}

	p := &Pipeline{
		QueryTransformers: []QueryTransformer{questionMarkTransformer{}},
		Strategy:          SimilarityDense{TopK: 2},
		Retriever:         retriever,
		Answerer:          echoAnswerer{},
	}

	answered, err := p.Run(context.Background(), "how does this work")
	require.NoError(t, err)
	assert.Equal(t, "answer for: how does this work?", answered.Answer)
	assert.Len(t, answered.Documents, 2)

	var kinds []EventKind
	for _, e := range answered.History {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []EventKind{EventQueryTransformed, EventRetrieved, EventAnswered}, kinds)
}

func TestPipeline_HybridFusesRankings(t *testing.T) {
	store := &fakeStore{
		dense:  []*Document{{Content: "a"}, {Content: "b"}, {Content: "c"}},
		sparse: []*Document{{Content: "b"}, {Content: "d"}, {Content: "a"}},
	}
	retriever := &StoreRetriever{Store: store, Dense: fakeEmbedder{}, Sparse: fakeEmbedder{}}

	p := &Pipeline{
		Strategy:  Hybrid{TopK: 3, RRFK: 60, CandidatePoolSize: 3},
		Retriever: retriever,
		Answerer:  echoAnswerer{},
	}

	answered, err := p.Run(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, answered.Documents, 3)
	// "b" appears rank 1 in sparse and rank 1 in dense-adjacent (rank 2) — it
	// should outrank anything present in only one leg.
	assert.Equal(t, "b", answered.Documents[0].Content)
}

func TestPipeline_RetrieveRequiresStrategy(t *testing.T) {
	p := &Pipeline{
		Retriever: &StoreRetriever{Store: &fakeStore{}, Dense: fakeEmbedder{}},
		Answerer:  echoAnswerer{},
	}
	_, err := p.Run(context.Background(), "q")
	require.Error(t, err)
}

func TestPipeline_HybridWithoutSparseEmbedderErrors(t *testing.T) {
	p := &Pipeline{
		Strategy:  Hybrid{TopK: 2},
		Retriever: &StoreRetriever{Store: &fakeStore{}, Dense: fakeEmbedder{}},
		Answerer:  echoAnswerer{},
	}
	_, err := p.Run(context.Background(), "q")
	require.Error(t, err)
}
