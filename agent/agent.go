// Package agent schedules concurrent agent runs behind a Backend: a bounded
// pool of in-flight agents, cooperative cancellation, and first-error
// reporting across the whole pool.
package agent

import (
	"context"

	"github.com/Tangerg/weave/tool"
)

// StopReason explains why an Agent's Run returned without completing the
// work it was given.
type StopReason int

const (
	StopCompleted StopReason = iota
	StopAborted
	StopError
)

func (r StopReason) String() string {
	switch r {
	case StopCompleted:
		return "completed"
	case StopAborted:
		return "aborted"
	case StopError:
		return "error"
	default:
		return "unknown"
	}
}

// Agent is one unit of scheduled work. Run should return promptly once ctx
// is cancelled; Stop is the Backend's cooperative request to wind down,
// called from a separate goroutine than the one running Run, so
// implementations must make it safe to call concurrently with Run.
type Agent interface {
	Name() string
	Run(ctx context.Context, instructions string) error
	Stop(reason StopReason)
}

// AgentFunc adapts a plain function to the Agent interface for agents that
// have no Stop-specific behavior beyond context cancellation.
type AgentFunc struct {
	AgentName string
	Fn        func(ctx context.Context, instructions string) error
}

func (f AgentFunc) Name() string { return f.AgentName }

func (f AgentFunc) Run(ctx context.Context, instructions string) error {
	return f.Fn(ctx, instructions)
}

func (f AgentFunc) Stop(StopReason) {}

// ToolExecutor runs the commands an agent's tool calls resolve to. Agents
// depend on this interface rather than any concrete executor so a sandboxed
// or remote implementation can stand in for tool.LocalExecutor.
type ToolExecutor interface {
	Exec(ctx context.Context, cmd tool.Command) (tool.Output, error)
}
