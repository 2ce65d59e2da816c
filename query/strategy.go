package query

import "context"

// SearchStrategy is an immutable configuration object carried by a query
// pipeline and consumed by a Retriever at retrieval time. It never changes
// once a pipeline is built; swapping search behavior means swapping the
// strategy value, not mutating one in place.
type SearchStrategy interface {
	searchStrategy()
}

// SimilarityDense retrieves the TopK nearest neighbors by dense vector
// similarity alone.
type SimilarityDense struct {
	TopK int
}

func (SimilarityDense) searchStrategy() {}

// SimilarityDenseFiltered is SimilarityDense plus a metadata filter applied
// by the underlying store before or during the similarity search.
type SimilarityDenseFiltered struct {
	TopK   int
	Filter map[string]any
}

func (SimilarityDenseFiltered) searchStrategy() {}

// Hybrid runs a dense search and a sparse search independently and fuses
// their rankings with reciprocal-rank fusion: RRFK is the fusion constant
// (spec default 60), TopK bounds the fused result count, and each leg's own
// candidate pool is widened to CandidatePoolSize before fusion so the fused
// top-K isn't starved by a leg's own top-K truncation.
type Hybrid struct {
	TopK              int
	RRFK              int
	CandidatePoolSize int
}

func (Hybrid) searchStrategy() {}

// Embedder turns query text into a dense vector. Sparse vectors come from
// a separate SparseEmbedder.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SparseEmbedder turns query text into a sparse vector for Hybrid.
type SparseEmbedder interface {
	EmbedQuerySparse(ctx context.Context, text string) (*SparseEmbedding, error)
}

// Store is the minimal vector-search surface a Retriever needs: similarity
// search by dense vector (with an optional metadata filter) and, for
// Hybrid, a parallel sparse search.
type Store interface {
	SimilaritySearch(ctx context.Context, dense []float32, topK int, filter map[string]any) ([]*Document, error)
	SparseSearch(ctx context.Context, sparse *SparseEmbedding, topK int) ([]*Document, error)
}
