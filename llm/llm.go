// Package llm declares the model contracts the indexing and query
// pipelines program against: a text prompt, dense and sparse embedders,
// and a chat-completion endpoint with tool calling. Concrete providers
// live under providers/.
package llm

import (
	"context"

	"github.com/Tangerg/weave/pkg/text"
)

// Prompt is a template rendered against a variable mapping before it is
// sent to a SimplePrompt implementation.
type Prompt struct {
	Template  string
	Variables map[string]any
}

// Render expands the template. An empty Template renders to "".
func (p Prompt) Render() (string, error) {
	return text.Render(p.Template, p.Variables)
}

// SimplePrompt is the minimal text-in, text-out model call used by
// transformers that don't need full chat history or tool calling.
type SimplePrompt interface {
	Prompt(ctx context.Context, p Prompt) (string, error)
}

// EmbeddingModel produces one dense vector per input string, in order.
// Every returned vector has the same length, the model's fixed
// dimensionality.
type EmbeddingModel interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// SparseEmbedding is a sparse vector: Values[i] is the weight at
// Indices[i]. len(Indices) == len(Values).
type SparseEmbedding struct {
	Indices []uint32
	Values  []float32
}

// SparseEmbeddingModel produces one SparseEmbedding per input string, in
// order.
type SparseEmbeddingModel interface {
	SparseEmbed(ctx context.Context, inputs []string) ([]SparseEmbedding, error)
}

// MessageKind distinguishes the variants of ChatMessage.
type MessageKind int

const (
	MessageSystem MessageKind = iota
	MessageUser
	MessageAssistant
	MessageToolOutput
	MessageSummary
)

// ToolCall is one function call an assistant message asked the caller to
// make; Arguments is the raw JSON the model produced, not yet parsed.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ChatMessage is one turn in a ChatCompletionRequest. Only the fields
// relevant to Kind are meaningful: Assistant carries optional Text and
// ToolCalls, ToolOutput carries ToolCallID and Text (the tool's result).
type ChatMessage struct {
	Kind       MessageKind
	Text       string
	ToolCalls  []ToolCall
	ToolCallID string
}

func SystemMessage(text string) ChatMessage { return ChatMessage{Kind: MessageSystem, Text: text} }
func UserMessage(text string) ChatMessage   { return ChatMessage{Kind: MessageUser, Text: text} }

func AssistantMessage(text string, calls ...ToolCall) ChatMessage {
	return ChatMessage{Kind: MessageAssistant, Text: text, ToolCalls: calls}
}

func ToolOutputMessage(callID, output string) ChatMessage {
	return ChatMessage{Kind: MessageToolOutput, ToolCallID: callID, Text: output}
}

func SummaryMessage(text string) ChatMessage { return ChatMessage{Kind: MessageSummary, Text: text} }

// ToolDefinition describes one function an assistant may call; InputSchema
// is a JSON Schema object describing the arguments.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema string
}

// ChatCompletionRequest is one call to a ChatCompletion model.
type ChatCompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	Tools       []ToolDefinition
	Temperature *float64
	MaxTokens   *int64
}

// ChatCompletionResponse is what the model returned: a single assistant
// turn plus usage accounting.
type ChatCompletionResponse struct {
	Message      ChatMessage
	FinishReason string
	Usage        Usage
}

// Usage is the token accounting for one chat completion call.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// ChatCompletion runs a multi-turn chat request, including tool calls.
type ChatCompletion interface {
	Complete(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error)
}
