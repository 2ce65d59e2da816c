package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/Tangerg/weave/llm"
)

// Embedder implements llm.EmbeddingModel over the OpenAI embeddings
// endpoint. Dimensions, if non-zero, is passed through to models that
// support truncating their native dimensionality (text-embedding-3-*).
type Embedder struct {
	Model      string
	Dimensions int64
	c          *client
}

var _ llm.EmbeddingModel = (*Embedder)(nil)

func NewEmbedder(apiKey, model string, opts ...option.RequestOption) (*Embedder, error) {
	c, err := newClient(apiKey, opts...)
	if err != nil {
		return nil, err
	}
	return &Embedder{Model: model, c: c}, nil
}

func (e *Embedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	req := openai.EmbeddingNewParams{
		Model: e.Model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
	}
	if e.Dimensions > 0 {
		req.Dimensions = openai.Int(e.Dimensions)
	}

	resp, err := e.c.embeddings(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("openai: embedding response length %d does not match input length %d", len(resp.Data), len(inputs))
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}
