package openai

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tangerg/weave/errs"
	"github.com/Tangerg/weave/llm"
)

func TestBuildMessageParam_RoundTripsEachKind(t *testing.T) {
	sys := buildMessageParam(llm.SystemMessage("be terse"))
	require.NotNil(t, sys.OfSystem)

	usr := buildMessageParam(llm.UserMessage("hello"))
	require.NotNil(t, usr.OfUser)

	asst := buildMessageParam(llm.AssistantMessage("hi", llm.ToolCall{ID: "call_1", Name: "lookup", Arguments: `{"q":"go"}`}))
	require.NotNil(t, asst.OfAssistant)
	require.Len(t, asst.OfAssistant.ToolCalls, 1)
	assert.Equal(t, "call_1", asst.OfAssistant.ToolCalls[0].OfFunction.ID)

	out := buildMessageParam(llm.ToolOutputMessage("call_1", "42 degrees"))
	require.NotNil(t, out.OfTool)
}

func TestBuildToolParams_ParsesInputSchema(t *testing.T) {
	params, err := buildToolParams([]llm.ToolDefinition{{
		Name:        "lookup",
		Description: "looks something up",
		InputSchema: `{"type":"object","properties":{"q":{"type":"string"}}}`,
	}})
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Equal(t, "lookup", params[0].OfFunction.Function.Name)
}

func TestBuildToolParams_InvalidSchemaErrors(t *testing.T) {
	_, err := buildToolParams([]llm.ToolDefinition{{Name: "bad", InputSchema: "not json"}})
	require.Error(t, err)
}

func TestClassifyError_UnrecognizedErrorIsPermanent(t *testing.T) {
	err := classifyError(errors.New("boom"))
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindPermanent, kind)
}

func TestClassifyError_NilIsNil(t *testing.T) {
	assert.NoError(t, classifyError(nil))
}
