package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoOp_StartSpanIsTransparent(t *testing.T) {
	ctx := context.Background()
	spanCtx, end := NoOp.StartSpan(ctx, "stage")
	assert.Equal(t, ctx, spanCtx)
	end(errors.New("boom")) // must not panic
}

func TestNoOpUsageRecorder_DiscardsSilently(t *testing.T) {
	assert.NotPanics(t, func() {
		NoOpUsageRecorder.Record(context.Background(), Usage{Model: "gpt", PromptTokens: 10})
	})
}
