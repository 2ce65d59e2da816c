// Package task builds small dataflow graphs out of typed nodes: each node
// declares its own input and output types, and a transition decides, from a
// node's output, which node runs next. A Graph is the reusable definition;
// a Task is one running instance of it, which can pause mid-run and be
// resumed later.
package task

import (
	"context"
	"fmt"

	"github.com/Tangerg/weave/errs"
)

// Node is one typed processing step in a Graph.
type Node[I, O any] interface {
	Run(ctx context.Context, input I) (O, error)
}

// NodeId is a typed handle to a registered node, carrying its Output type
// as a phantom parameter so a transition's destination type is checked at
// the call site that constructs it.
type NodeId[T any] struct {
	idx int
}

// Index exposes the underlying graph index, for diagnostics.
func (id NodeId[T]) Index() int { return id.idx }

// Step is what a transition function returns: either route to Next (with
// the evaluated node's output forwarded unchanged as the next node's
// input), or Pause to suspend the task without advancing.
type Step[To any] struct {
	Next  NodeId[To]
	Pause bool
}

// Continue builds a Step that advances to next.
func Continue[To any](next NodeId[To]) Step[To] {
	return Step[To]{Next: next}
}

// PauseStep builds a Step that suspends the task at its current node.
func PauseStep[To any]() Step[To] {
	return Step[To]{Pause: true}
}

type nodeRunner interface {
	run(ctx context.Context, input any) (any, error)
}

type typedNode[I, O any] struct {
	node Node[I, O]
}

func (t typedNode[I, O]) run(ctx context.Context, input any) (any, error) {
	typed, ok := input.(I)
	if !ok {
		var zero I
		return nil, errs.Configurationf("task: expected input of type %T, got %T", zero, input)
	}
	return t.node.Run(ctx, typed)
}

type doneNode struct{}

func (doneNode) run(context.Context, any) (any, error) {
	panic("task: done node should never be evaluated")
}

type transitionResult struct {
	nextIdx   int
	nextValue any
	pause     bool
}

type transitionFn func(ctx context.Context, output any) (transitionResult, error)

type registeredNode struct {
	name       string
	runner     nodeRunner
	transition transitionFn
	set        bool
}

// Graph is an ordered registry of nodes and the transitions between them.
// Index 0 is always a terminal "done" sink that is never evaluated;
// reaching it ends a Task's run.
type Graph struct {
	nodes []registeredNode
}

// NewGraph creates an empty graph with its done sink already registered at
// index 0.
func NewGraph() *Graph {
	return &Graph{nodes: []registeredNode{{name: "done", runner: doneNode{}, set: true}}}
}

// Done returns the typed handle to the graph's terminal sink.
func Done[O any](g *Graph) NodeId[O] {
	return NodeId[O]{idx: 0}
}

// RegisterNode adds n to the graph under name (used only in error messages)
// and returns a typed handle to it. RegisterNode is a package-level
// function rather than a Graph method because Go methods cannot introduce
// new type parameters of their own.
func RegisterNode[I, O any](g *Graph, name string, n Node[I, O]) NodeId[O] {
	idx := len(g.nodes)
	g.nodes = append(g.nodes, registeredNode{name: name, runner: typedNode[I, O]{node: n}})
	return NodeId[O]{idx: idx}
}

// RegisterTransition wires what happens after from's node produces an
// output: fn inspects the output and chooses the next node (or pauses). The
// node's own output is forwarded unchanged as the chosen next node's input,
// so To's declared Input type must match From.
func RegisterTransition[From, To any](g *Graph, from NodeId[From], fn func(ctx context.Context, output From) (Step[To], error)) {
	g.nodes[from.idx].transition = func(ctx context.Context, output any) (transitionResult, error) {
		typed, ok := output.(From)
		if !ok {
			return transitionResult{}, errs.Configurationf("task: transition at node %d got output of unexpected type %T", from.idx, output)
		}
		step, err := fn(ctx, typed)
		if err != nil {
			return transitionResult{}, err
		}
		if step.Pause {
			return transitionResult{pause: true}, nil
		}
		return transitionResult{nextIdx: step.Next.idx, nextValue: typed}, nil
	}
	g.nodes[from.idx].set = true
}

// ValidateTransitions rejects any non-terminal node whose transition was
// never registered.
func (g *Graph) ValidateTransitions() error {
	for i, n := range g.nodes {
		if i == 0 {
			continue
		}
		if !n.set {
			return errs.Configurationf("task: node %q (index %d) has no registered transition", n.name, i)
		}
	}
	return nil
}

// Task is one running instance of a Graph: the current node index and the
// value in flight between nodes. Input and Output type the entry and exit
// points of the whole run.
type Task[Input, Output any] struct {
	graph        *Graph
	startIdx     int
	currentNode  int
	currentValue any
}

// NewTask creates a Task over g starting at start. StartOut is the start
// node's output type, as carried by its NodeId; Input is the type Run feeds
// to that node.
func NewTask[Input, Output, StartOut any](g *Graph, start NodeId[StartOut]) *Task[Input, Output] {
	return &Task[Input, Output]{graph: g, startIdx: start.idx, currentNode: start.idx}
}

// Run sets the task's current context to input and runs it to completion or
// the first pause. done is false when the run paused; Resume continues it.
func (t *Task[Input, Output]) Run(ctx context.Context, input Input) (output Output, done bool, err error) {
	t.currentNode = t.startIdx
	t.currentValue = input
	return t.Resume(ctx)
}

// Resume continues a paused task from where it left off. Calling Resume on
// a task that was never Run, or that already ran to completion, is an
// error.
func (t *Task[Input, Output]) Resume(ctx context.Context) (output Output, done bool, err error) {
	var zero Output
	if err := t.graph.ValidateTransitions(); err != nil {
		return zero, false, err
	}
	if t.currentValue == nil {
		return zero, false, errs.Configurationf("task: Resume called before Run")
	}
	if t.currentNode == 0 {
		return zero, false, errs.Configurationf("task: Resume called on a completed task")
	}

	for t.currentNode != 0 {
		n := t.graph.nodes[t.currentNode]

		nodeOutput, err := n.runner.run(ctx, t.currentValue)
		if err != nil {
			return zero, false, fmt.Errorf("task node %q (index %d): %w", n.name, t.currentNode, err)
		}

		result, err := n.transition(ctx, nodeOutput)
		if err != nil {
			return zero, false, fmt.Errorf("task transition at node %q (index %d): %w", n.name, t.currentNode, err)
		}
		if result.pause {
			return zero, false, nil
		}

		t.currentNode = result.nextIdx
		t.currentValue = result.nextValue
	}

	final, ok := t.currentValue.(Output)
	if !ok {
		return zero, false, errs.Configurationf("task: final output type mismatch")
	}
	return final, true, nil
}
