package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrompt_RenderSubstitutesVariables(t *testing.T) {
	p := Prompt{
		Template:  "summarize {{.topic}} in {{.words}} words",
		Variables: map[string]any{"topic": "rust vs go", "words": 20},
	}

	out, err := p.Render()
	require.NoError(t, err)
	assert.Equal(t, "summarize rust vs go in 20 words", out)
}

func TestPrompt_EmptyTemplateRendersEmpty(t *testing.T) {
	out, err := (Prompt{}).Render()
	require.NoError(t, err)
	assert.Equal(t, "", out)
}
