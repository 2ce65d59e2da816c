package agent

import (
	"context"
	"sync"
)

// notifier is a broadcast condition variable built on a channel that gets
// closed and replaced on every notify, the standard Go substitute for a
// condition variable that also composes with context cancellation.
type notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{})}
}

// wait blocks until the next notifyAll or until ctx is done.
func (n *notifier) wait(ctx context.Context) error {
	n.mu.Lock()
	ch := n.ch
	n.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *notifier) notifyAll() {
	n.mu.Lock()
	close(n.ch)
	n.ch = make(chan struct{})
	n.mu.Unlock()
}
