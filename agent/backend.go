package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/Tangerg/weave/errs"
	"github.com/Tangerg/weave/pkg/safe"
	"github.com/Tangerg/weave/telemetry"
)

// Backend owns the concurrency and cancellation policy for a pool of
// running agents: how many run at once, how to cancel them all, and how to
// surface the first failure across the pool.
type Backend interface {
	// SpawnAgent starts a, blocking until a concurrency permit is free (or
	// ctx is cancelled first), and returns a CancelFunc that stops just this
	// agent. Spawned agents are also cancelled if the backend itself is
	// aborted.
	SpawnAgent(ctx context.Context, a Agent, instructions string) (context.CancelFunc, error)

	// JoinAll blocks until every spawned agent has finished, returning the
	// first error reported by any of them (nil if all succeeded).
	JoinAll(ctx context.Context) error

	// JoinNext blocks for at most one completion notification and then
	// reports the first error recorded so far (nil if none).
	JoinNext(ctx context.Context) error

	// Abort cancels every currently running agent and resets the backend's
	// cancellation tree so it can keep accepting new SpawnAgent calls.
	Abort()

	// Outstanding reports how many spawned agents have not yet finished.
	Outstanding() int
}

// DefaultBackend spawns agents as goroutines with optional bounded
// concurrency. A nil or non-positive max passed to NewDefaultBackend means
// unbounded concurrency.
type DefaultBackend struct {
	mu          sync.Mutex
	outstanding int
	sem         *semaphore.Weighted // nil => unbounded
	notify      *notifier
	cancelCtx   context.Context
	cancelFn    context.CancelFunc
	firstErr    error
	logger      *slog.Logger
	tracer      telemetry.Tracer
}

// NewDefaultBackend creates a backend capped at maxConcurrent simultaneous
// agents; maxConcurrent <= 0 means unbounded.
func NewDefaultBackend(maxConcurrent int) *DefaultBackend {
	ctx, cancel := context.WithCancel(context.Background())
	b := &DefaultBackend{
		notify:    newNotifier(),
		cancelCtx: ctx,
		cancelFn:  cancel,
		logger:    slog.Default(),
		tracer:    telemetry.NoOp,
	}
	if maxConcurrent > 0 {
		b.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return b
}

func (b *DefaultBackend) WithLogger(logger *slog.Logger) *DefaultBackend {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithTracer overrides the backend's span tracer (defaults to
// telemetry.NoOp). One span covers each spawned agent's full run.
func (b *DefaultBackend) WithTracer(tracer telemetry.Tracer) *DefaultBackend {
	if tracer != nil {
		b.tracer = tracer
	}
	return b
}

func (b *DefaultBackend) backendCtx() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelCtx
}

func (b *DefaultBackend) SpawnAgent(ctx context.Context, a Agent, instructions string) (context.CancelFunc, error) {
	if b.sem != nil {
		if err := b.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}

	b.mu.Lock()
	b.outstanding++
	b.mu.Unlock()

	child, childCancel := context.WithCancel(b.backendCtx())
	runID := uuid.NewString()

	safe.Go(func() {
		spanCtx, end := b.tracer.StartSpan(child, "agent."+a.Name(),
			attribute.String("agent.name", a.Name()),
			attribute.String("agent.run_id", runID))
		var runErr error
		defer func() {
			end(runErr)
			if b.sem != nil {
				b.sem.Release(1)
			}
			b.mu.Lock()
			b.outstanding--
			b.mu.Unlock()
			b.notify.notifyAll()
		}()

		done := make(chan error, 1)
		safe.Go(func() { done <- a.Run(spanCtx, instructions) })

		select {
		case <-child.Done():
			a.Stop(StopAborted)
			runErr = <-done
		case err := <-done:
			runErr = err
			if err != nil {
				b.recordFailure(a, runID, err)
			}
		}
	}, func(panicErr error) {
		b.recordFailure(a, runID, panicErr)
	})

	return childCancel, nil
}

func (b *DefaultBackend) recordFailure(a Agent, runID string, err error) {
	classified := err
	if _, ok := errs.KindOf(err); !ok {
		classified = errs.Permanent(fmt.Errorf("agent %q: %w", a.Name(), err))
	}
	b.mu.Lock()
	if b.firstErr == nil {
		b.firstErr = classified
	}
	b.mu.Unlock()
	b.logger.Error("agent failed",
		slog.String("agent", a.Name()),
		slog.String("run_id", runID),
		slog.String("err", err.Error()))
}

func (b *DefaultBackend) firstErrorOrNil() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.firstErr
}

func (b *DefaultBackend) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outstanding
}

func (b *DefaultBackend) JoinAll(ctx context.Context) error {
	for {
		if err := b.firstErrorOrNil(); err != nil {
			return err
		}
		if b.Outstanding() == 0 {
			return nil
		}
		if err := b.notify.wait(ctx); err != nil {
			return err
		}
	}
}

func (b *DefaultBackend) JoinNext(ctx context.Context) error {
	if err := b.firstErrorOrNil(); err != nil {
		return err
	}
	if b.Outstanding() == 0 {
		return nil
	}
	if err := b.notify.wait(ctx); err != nil {
		return err
	}
	return b.firstErrorOrNil()
}

func (b *DefaultBackend) Abort() {
	b.mu.Lock()
	b.cancelFn()
	b.cancelCtx, b.cancelFn = context.WithCancel(context.Background())
	b.mu.Unlock()
}
