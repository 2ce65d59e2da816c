// Package qdrant adapts github.com/qdrant/go-client to this module's
// storage contracts: indexing.Persist for writing embedded Nodes, and
// query.Store for similarity search at retrieval time.
package qdrant

import (
	"context"
	"fmt"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/Tangerg/weave/indexing"
	"github.com/Tangerg/weave/node"
	"github.com/Tangerg/weave/query"
)

const (
	payloadChunk      = "chunk"
	payloadOriginPath = "origin_path"
	payloadParentID   = "parent_id"
)

// Store writes Nodes to a Qdrant collection with one named dense vector
// per configured DenseFields entry and one named sparse vector per
// SparseFields entry (named field.String() and field.SparseName()
// respectively), and answers query.Store similarity searches against
// DenseSearchField/SparseSearchField.
type Store struct {
	Client         *qdrant.Client
	CollectionName string

	// DenseFields/SparseFields are the node.Field keys this store expects
	// every stored Node to carry an embedding for; Setup provisions one
	// named vector per field. Dense vectors are sized DenseDims; sparse
	// vectors carry no fixed size.
	DenseFields  []node.Field
	SparseFields []node.Field
	DenseDims    uint64

	// DenseSearchField/SparseSearchField select which named vector
	// SimilaritySearch/SparseSearch run against.
	DenseSearchField  node.Field
	SparseSearchField node.Field

	StoreBatchSize int
}

var _ indexing.Persist = (*Store)(nil)
var _ query.Store = (*Store)(nil)

func (s *Store) Name() string   { return "qdrant:" + s.CollectionName }
func (s *Store) BatchSize() int { return s.StoreBatchSize }

func (s *Store) Setup(ctx context.Context) error {
	exists, err := s.Client.CollectionExists(ctx, s.CollectionName)
	if err != nil {
		return fmt.Errorf("qdrant: check collection %q: %w", s.CollectionName, err)
	}
	if exists {
		return nil
	}

	vectorParams := make(map[string]*qdrant.VectorParams, len(s.DenseFields))
	for _, f := range s.DenseFields {
		vectorParams[f.String()] = &qdrant.VectorParams{
			Size:     s.DenseDims,
			Distance: qdrant.Distance_Cosine,
		}
	}

	create := &qdrant.CreateCollection{
		CollectionName: s.CollectionName,
		VectorsConfig:  qdrant.NewVectorsConfigMap(vectorParams),
	}

	if len(s.SparseFields) > 0 {
		sparseParams := make(map[string]*qdrant.SparseVectorParams, len(s.SparseFields))
		for _, f := range s.SparseFields {
			sparseParams[f.SparseName()] = &qdrant.SparseVectorParams{}
		}
		create.SparseVectorsConfig = qdrant.NewSparseVectorsConfig(sparseParams)
	}

	if err := s.Client.CreateCollection(ctx, create); err != nil {
		return fmt.Errorf("qdrant: create collection %q: %w", s.CollectionName, err)
	}
	return nil
}

func pointID(n *node.Node) *qdrant.PointId {
	return qdrant.NewID(strconv.FormatUint(n.ID(), 10))
}

func (s *Store) buildPoint(n *node.Node) (*qdrant.PointStruct, error) {
	named := make(map[string]*qdrant.Vector, len(s.DenseFields)+len(s.SparseFields))

	for _, f := range s.DenseFields {
		vec, ok := n.Dense[f]
		if !ok {
			return nil, fmt.Errorf("qdrant: node missing dense embedding for field %q", f.String())
		}
		named[f.String()] = qdrant.NewVector(vec...)
	}

	for _, f := range s.SparseFields {
		vec, ok := n.Sparse[f]
		if !ok {
			return nil, fmt.Errorf("qdrant: node missing sparse embedding for field %q", f.String())
		}
		named[f.SparseName()] = qdrant.NewVectorSparse(vec.Indices, vec.Values)
	}

	payload := map[string]*qdrant.Value{
		payloadChunk:      qdrant.NewValueString(n.Chunk),
		payloadOriginPath: qdrant.NewValueString(n.OriginPath),
	}
	if n.HasParent {
		payload[payloadParentID] = qdrant.NewValueInteger(int64(n.ParentID))
	}
	for pair := n.Metadata.Oldest(); pair != nil; pair = pair.Next() {
		v, err := qdrant.NewValue(pair.Value)
		if err != nil {
			return nil, fmt.Errorf("qdrant: metadata key %q: %w", pair.Key, err)
		}
		payload[pair.Key] = v
	}

	return &qdrant.PointStruct{
		Id:      pointID(n),
		Vectors: qdrant.NewVectorsMap(named),
		Payload: payload,
	}, nil
}

func (s *Store) Store(ctx context.Context, n *node.Node) (*node.Node, error) {
	point, err := s.buildPoint(n)
	if err != nil {
		return nil, err
	}
	_, err = s.Client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.CollectionName,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: upsert point: %w", err)
	}
	return n, nil
}

func (s *Store) BatchStore(ctx context.Context, batch []*node.Node) indexing.IndexingStream {
	points := make([]*qdrant.PointStruct, 0, len(batch))
	items := make([]indexing.Item, 0, len(batch))

	stored := make([]*node.Node, 0, len(batch))
	for _, n := range batch {
		point, err := s.buildPoint(n)
		if err != nil {
			items = append(items, indexing.Item{Err: err})
			continue
		}
		points = append(points, point)
		stored = append(stored, n)
	}

	if len(points) > 0 {
		_, err := s.Client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.CollectionName,
			Points:         points,
		})
		if err != nil {
			wrapped := fmt.Errorf("qdrant: batch upsert %d points: %w", len(points), err)
			for range points {
				items = append(items, indexing.Item{Err: wrapped})
			}
			return indexing.FromItems(items...)
		}
	}

	for _, n := range stored {
		items = append(items, indexing.Item{Node: n})
	}
	return indexing.FromItems(items...)
}

// convertValue unwraps a scalar Qdrant payload value (double, integer,
// string, bool) into a plain Go value; integers come back as int64. List,
// struct and null values come back as nil.
func convertValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.Kind.(type) {
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return nil
	}
}

func documentsFromScoredPoints(points []*qdrant.ScoredPoint) []*query.Document {
	docs := make([]*query.Document, 0, len(points))
	for _, p := range points {
		meta := make(map[string]any, len(p.Payload))
		var content string
		for k, v := range p.Payload {
			if k == payloadChunk {
				content, _ = convertValue(v).(string)
				continue
			}
			meta[k] = convertValue(v)
		}
		docs = append(docs, &query.Document{Content: content, Metadata: meta})
	}
	return docs
}

func (s *Store) SimilaritySearch(ctx context.Context, dense []float32, topK int, filter map[string]any) ([]*query.Document, error) {
	qdrantFilter, err := buildFilter(filter)
	if err != nil {
		return nil, err
	}

	points, err := s.Client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.CollectionName,
		Using:          qdrant.PtrOf(s.DenseSearchField.String()),
		Query:          qdrant.NewQuery(dense...),
		Filter:         qdrantFilter,
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: similarity search: %w", err)
	}
	return documentsFromScoredPoints(points), nil
}

func (s *Store) SparseSearch(ctx context.Context, sparse *query.SparseEmbedding, topK int) ([]*query.Document, error) {
	points, err := s.Client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.CollectionName,
		Using:          qdrant.PtrOf(s.SparseSearchField.SparseName()),
		Query:          qdrant.NewQuerySparse(sparse.Indices, sparse.Values),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: sparse search: %w", err)
	}
	return documentsFromScoredPoints(points), nil
}
