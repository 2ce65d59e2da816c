package qdrant

import (
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"github.com/spf13/cast"
)

// buildFilter converts a flat metadata-equality map into a Qdrant filter
// ANDing one match condition per key. It is deliberately simpler than a
// full expression DSL: query.SearchStrategy only ever carries equality
// filters (see query.SimilarityDenseFiltered).
func buildFilter(filter map[string]any) (*qdrant.Filter, error) {
	if len(filter) == 0 {
		return nil, nil
	}

	must := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		cond, err := matchCondition(key, value)
		if err != nil {
			return nil, err
		}
		must = append(must, cond)
	}

	return &qdrant.Filter{Must: must}, nil
}

func matchCondition(key string, value any) (*qdrant.Condition, error) {
	switch value.(type) {
	case string:
		return qdrant.NewMatchKeyword(key, cast.ToString(value)), nil
	case bool:
		return qdrant.NewMatchBool(key, cast.ToBool(value)), nil
	case int, int64, float64:
		return qdrant.NewMatchInt(key, cast.ToInt64(value)), nil
	default:
		return nil, fmt.Errorf("qdrant: unsupported filter value type %T for key %q", value, key)
	}
}
