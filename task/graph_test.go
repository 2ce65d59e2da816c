package task

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fnNode[I, O any] struct {
	fn func(context.Context, I) (O, error)
}

func (n fnNode[I, O]) Run(ctx context.Context, input I) (O, error) {
	return n.fn(ctx, input)
}

func TestTask_LinearRun(t *testing.T) {
	g := NewGraph()

	parseNode := RegisterNode[string, int](g, "parse", fnNode[string, int]{
		fn: func(_ context.Context, s string) (int, error) { return strconv.Atoi(s) },
	})
	doubleNode := RegisterNode[int, int](g, "double", fnNode[int, int]{
		fn: func(_ context.Context, n int) (int, error) { return n * 2, nil },
	})

	RegisterTransition(g, parseNode, func(_ context.Context, _ int) (Step[int], error) {
		return Continue(doubleNode), nil
	})
	RegisterTransition(g, doubleNode, func(_ context.Context, _ int) (Step[int], error) {
		return Continue(Done[int](g)), nil
	})

	require.NoError(t, g.ValidateTransitions())

	tsk := NewTask[string, int](g, parseNode)
	out, done, err := tsk.Run(context.Background(), "21")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 42, out)
}

func TestTask_MissingTransitionFailsValidation(t *testing.T) {
	g := NewGraph()
	RegisterNode[string, int](g, "parse", fnNode[string, int]{
		fn: func(_ context.Context, s string) (int, error) { return strconv.Atoi(s) },
	})
	require.Error(t, g.ValidateTransitions())
}

func TestTask_Branching(t *testing.T) {
	g := NewGraph()

	classify := RegisterNode[int, int](g, "classify", fnNode[int, int]{
		fn: func(_ context.Context, n int) (int, error) { return n, nil },
	})
	even := RegisterNode[int, string](g, "even", fnNode[int, string]{
		fn: func(_ context.Context, n int) (string, error) { return "even", nil },
	})
	odd := RegisterNode[int, string](g, "odd", fnNode[int, string]{
		fn: func(_ context.Context, n int) (string, error) { return "odd", nil },
	})

	RegisterTransition(g, classify, func(_ context.Context, n int) (Step[int], error) {
		if n%2 == 0 {
			return Continue(NodeId[int]{idx: even.Index()}), nil
		}
		return Continue(NodeId[int]{idx: odd.Index()}), nil
	})
	RegisterTransition(g, even, func(_ context.Context, _ string) (Step[string], error) {
		return Continue(Done[string](g)), nil
	})
	RegisterTransition(g, odd, func(_ context.Context, _ string) (Step[string], error) {
		return Continue(Done[string](g)), nil
	})

	tskEven := NewTask[int, string](g, classify)
	out, done, err := tskEven.Run(context.Background(), 4)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "even", out)

	tskOdd := NewTask[int, string](g, classify)
	out, done, err = tskOdd.Run(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "odd", out)
}

func TestTask_PauseAndResume(t *testing.T) {
	g := NewGraph()

	var gate bool
	step := RegisterNode[int, int](g, "step", fnNode[int, int]{
		fn: func(_ context.Context, n int) (int, error) { return n + 1, nil },
	})
	RegisterTransition(g, step, func(_ context.Context, n int) (Step[int], error) {
		if !gate {
			return PauseStep[int](), nil
		}
		return Continue(Done[int](g)), nil
	})

	tsk := NewTask[int, int](g, step)
	out, done, err := tsk.Run(context.Background(), 10)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 0, out)

	gate = true
	out, done, err = tsk.Resume(context.Background())
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 11, out)
}

func TestTask_InputTypeMismatchFailsLoudly(t *testing.T) {
	g := NewGraph()
	strNode := RegisterNode[string, int](g, "parse", fnNode[string, int]{
		fn: func(_ context.Context, s string) (int, error) { return strconv.Atoi(s) },
	})
	RegisterTransition(g, strNode, func(_ context.Context, _ int) (Step[int], error) {
		return Continue(Done[int](g)), nil
	})

	// Force a type mismatch by feeding the runner a wrong-typed context
	// directly, bypassing NewTask's normal string entry point.
	tsk := NewTask[string, int](g, strNode)
	tsk.currentNode = strNode.Index()
	tsk.currentValue = 42 // not a string

	_, _, err := tsk.Resume(context.Background())
	require.Error(t, err)
}
