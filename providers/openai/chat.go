package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/Tangerg/weave/llm"
)

// Chat implements llm.ChatCompletion over the OpenAI chat completions
// endpoint, translating between the provider-neutral message/tool types
// and the SDK's param unions.
type Chat struct {
	Model string
	c     *client
}

var _ llm.ChatCompletion = (*Chat)(nil)

func NewChat(apiKey, model string, opts ...option.RequestOption) (*Chat, error) {
	c, err := newClient(apiKey, opts...)
	if err != nil {
		return nil, err
	}
	return &Chat{Model: model, c: c}, nil
}

func buildToolParams(tools []llm.ToolDefinition) ([]openai.ChatCompletionToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	params := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if t.InputSchema != "" {
			if err := json.Unmarshal([]byte(t.InputSchema), &schema); err != nil {
				return nil, fmt.Errorf("openai: tool %q has invalid input schema: %w", t.Name, err)
			}
		}
		params = append(params, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  schema,
				},
			},
		})
	}
	return params, nil
}

func buildMessageParam(msg llm.ChatMessage) openai.ChatCompletionMessageParamUnion {
	switch msg.Kind {
	case llm.MessageSystem:
		return openai.SystemMessage(msg.Text)
	case llm.MessageUser:
		return openai.UserMessage(msg.Text)
	case llm.MessageAssistant:
		param := openai.AssistantMessage(msg.Text)
		for _, tc := range msg.ToolCalls {
			param.OfAssistant.ToolCalls = append(param.OfAssistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				},
			})
		}
		return param
	case llm.MessageToolOutput:
		return openai.ToolMessage(msg.Text, msg.ToolCallID)
	case llm.MessageSummary:
		return openai.SystemMessage(msg.Text)
	default:
		return openai.UserMessage(msg.Text)
	}
}

func (c *Chat) buildRequest(req llm.ChatCompletionRequest) (openai.ChatCompletionNewParams, error) {
	toolParams, err := buildToolParams(req.Tools)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	model := req.Model
	if model == "" {
		model = c.Model
	}

	params := openai.ChatCompletionNewParams{
		Model: model,
		Tools: toolParams,
	}
	for _, msg := range req.Messages {
		params.Messages = append(params.Messages, buildMessageParam(msg))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(*req.MaxTokens)
	}

	return params, nil
}

func buildResponseMessage(msg openai.ChatCompletionMessage) llm.ChatMessage {
	out := llm.ChatMessage{Kind: llm.MessageAssistant, Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

func (c *Chat) Complete(ctx context.Context, req llm.ChatCompletionRequest) (llm.ChatCompletionResponse, error) {
	params, err := c.buildRequest(req)
	if err != nil {
		return llm.ChatCompletionResponse{}, err
	}

	resp, err := c.c.chatCompletion(ctx, params)
	if err != nil {
		return llm.ChatCompletionResponse{}, err
	}

	if len(resp.Choices) == 0 {
		return llm.ChatCompletionResponse{}, fmt.Errorf("openai: chat completion returned no choices")
	}
	choice := resp.Choices[0]

	return llm.ChatCompletionResponse{
		Message:      buildResponseMessage(choice.Message),
		FinishReason: string(choice.FinishReason),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
