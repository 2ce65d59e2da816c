package openai

import (
	"context"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/Tangerg/weave/llm"
)

// Prompt implements llm.SimplePrompt: render the template, send it as the
// sole user message, return the first choice's text.
type Prompt struct {
	Model string
	c     *client
}

// NewPrompt builds a Prompt using model for every call.
func NewPrompt(apiKey, model string, opts ...option.RequestOption) (*Prompt, error) {
	c, err := newClient(apiKey, opts...)
	if err != nil {
		return nil, err
	}
	return &Prompt{Model: model, c: c}, nil
}

func (p *Prompt) Prompt(ctx context.Context, prompt llm.Prompt) (string, error) {
	rendered, err := prompt.Render()
	if err != nil {
		return "", err
	}

	resp, err := p.c.chatCompletion(ctx, openai.ChatCompletionNewParams{
		Model:    p.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(rendered)},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
