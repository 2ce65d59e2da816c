package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/Tangerg/weave/errs"
)

// Retriever consumes a strategy and a pending query and produces the
// document list that transitions the query into Retrieved.
type Retriever interface {
	Retrieve(ctx context.Context, strategy SearchStrategy, q *Query[Pending]) ([]*Document, error)
}

// StoreRetriever is the built-in Retriever: it embeds the query's current
// text and dispatches to a Store according to the strategy's concrete type.
// Custom retrievers (e.g. a keyword-search backend) implement Retriever
// directly instead of going through a Store.
type StoreRetriever struct {
	Store  Store
	Dense  Embedder
	Sparse SparseEmbedder // only required for Hybrid
}

func (r *StoreRetriever) Retrieve(ctx context.Context, strategy SearchStrategy, q *Query[Pending]) ([]*Document, error) {
	switch s := strategy.(type) {
	case SimilarityDense:
		dense, err := r.Dense.EmbedQuery(ctx, q.Current)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		return r.Store.SimilaritySearch(ctx, dense, s.TopK, nil)

	case SimilarityDenseFiltered:
		dense, err := r.Dense.EmbedQuery(ctx, q.Current)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		return r.Store.SimilaritySearch(ctx, dense, s.TopK, s.Filter)

	case Hybrid:
		return r.retrieveHybrid(ctx, s, q)

	default:
		return nil, errs.Configurationf("unsupported search strategy %T", strategy)
	}
}

func (r *StoreRetriever) retrieveHybrid(ctx context.Context, s Hybrid, q *Query[Pending]) ([]*Document, error) {
	if r.Sparse == nil {
		return nil, errs.Configurationf("hybrid strategy requires a sparse embedder")
	}

	pool := s.CandidatePoolSize
	if pool <= 0 {
		pool = s.TopK * 3
	}
	rrfK := s.RRFK
	if rrfK <= 0 {
		rrfK = 60
	}

	dense, err := r.Dense.EmbedQuery(ctx, q.Current)
	if err != nil {
		return nil, fmt.Errorf("embed query (dense): %w", err)
	}
	sparse, err := r.Sparse.EmbedQuerySparse(ctx, q.Current)
	if err != nil {
		return nil, fmt.Errorf("embed query (sparse): %w", err)
	}

	denseDocs, err := r.Store.SimilaritySearch(ctx, dense, pool, nil)
	if err != nil {
		return nil, fmt.Errorf("dense leg: %w", err)
	}
	sparseDocs, err := r.Store.SparseSearch(ctx, sparse, pool)
	if err != nil {
		return nil, fmt.Errorf("sparse leg: %w", err)
	}

	return rrfFuse(denseDocs, sparseDocs, rrfK, s.TopK), nil
}

// rrfFuse combines two ranked document lists into one via reciprocal-rank
// fusion: score(d) = sum over legs containing d of 1/(k + rank), rank
// 1-indexed. Documents are deduplicated by Content; a document present in
// both legs accumulates both legs' contributions. The fused list is sorted
// by descending score and truncated to topK.
func rrfFuse(dense, sparse []*Document, k, topK int) []*Document {
	type scored struct {
		doc   *Document
		score float64
	}
	byContent := make(map[string]*scored)
	var order []string

	add := func(docs []*Document) {
		for rank, d := range docs {
			s, exists := byContent[d.Content]
			if !exists {
				s = &scored{doc: d}
				byContent[d.Content] = s
				order = append(order, d.Content)
			}
			s.score += 1.0 / float64(k+rank+1)
		}
	}
	add(dense)
	add(sparse)

	results := lo.Map(order, func(c string, _ int) *scored { return byContent[c] })
	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return lo.Map(results, func(s *scored, _ int) *Document { return s.doc })
}
