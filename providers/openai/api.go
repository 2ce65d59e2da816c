// Package openai adapts github.com/openai/openai-go/v3 to the llm package's
// provider-neutral contracts: Prompt for single-shot text completions,
// Embedder for dense vectors, and Chat for multi-turn tool-calling
// completions.
package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/Tangerg/weave/errs"
)

// client wraps the generated SDK client with the thin surface the three
// adapters in this package need.
type client struct {
	api *openai.Client
}

func newClient(apiKey string, opts ...option.RequestOption) (*client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	requestOpts := append(append([]option.RequestOption{}, opts...), option.WithAPIKey(apiKey))
	c := openai.NewClient(requestOpts...)
	return &client{api: &c}, nil
}

func (c *client) chatCompletion(ctx context.Context, req openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	resp, err := c.api.Chat.Completions.New(ctx, req)
	if err != nil {
		return nil, classifyError(err)
	}
	return resp, nil
}

func (c *client) embeddings(ctx context.Context, req openai.EmbeddingNewParams) (*openai.CreateEmbeddingResponse, error) {
	resp, err := c.api.Embeddings.New(ctx, req)
	if err != nil {
		return nil, classifyError(err)
	}
	return resp, nil
}

// classifyError maps an openai-go SDK error onto the shared error taxonomy:
// 5xx and 429s whose message has no quota marker are transient, a
// context-length rejection gets its own kind, and everything else (other
// 4xx including quota 429s, malformed request, non-API errors) is permanent.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return errs.Permanent(err)
	}

	msg := strings.ToLower(apiErr.Message)
	if strings.Contains(msg, "maximum context length") || strings.Contains(msg, "context_length_exceeded") {
		return errs.ContextLengthExceeded(err)
	}

	switch {
	case apiErr.StatusCode == 429 && !strings.Contains(msg, "quota"):
		return errs.Transient(err)
	case apiErr.StatusCode >= 500:
		return errs.Transient(err)
	default:
		return errs.Permanent(err)
	}
}
