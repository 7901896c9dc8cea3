package server

import (
	"context"
	"sync"
	"time"

	"gossip_node/internal/dataType"
)

// CompletionFunc receives the reply message, or a nil message and the error
// the RPC failed with.
type CompletionFunc func(reply dataType.Message, err error)

// Completion is the handle of one outstanding RPC. It resolves at most once;
// later Resolve calls are ignored.
type Completion struct {
	mu        sync.Mutex
	resolved  bool
	reply     dataType.Message
	err       error
	callbacks []CompletionFunc
	done      chan struct{}
}

func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Resolve settles the completion and runs the registered callbacks on the
// calling goroutine. It reports whether this call was the one that settled it.
func (c *Completion) Resolve(reply dataType.Message, err error) bool {
	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		return false
	}
	c.resolved = true
	c.reply = reply
	c.err = err
	callbacks := c.callbacks
	c.callbacks = nil
	close(c.done)
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn(reply, err)
	}
	return true
}

// OnComplete registers fn. If the completion is already settled fn runs
// immediately on the caller's goroutine.
func (c *Completion) OnComplete(fn CompletionFunc) {
	c.mu.Lock()
	if !c.resolved {
		c.callbacks = append(c.callbacks, fn)
		c.mu.Unlock()
		return
	}
	reply, err := c.reply, c.err
	c.mu.Unlock()
	fn(reply, err)
}

func (c *Completion) Done() <-chan struct{} {
	return c.done
}

func (c *Completion) IsResolved() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolved
}

// Wait blocks until the completion settles or ctx ends.
func (c *Completion) Wait(ctx context.Context) (dataType.Message, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.reply, c.err
	case <-ctx.Done():
		return dataType.Message{}, ctx.Err()
	}
}

// ScheduleTimeoutCheck runs remediate once delay has passed if c is still
// unresolved by then. The completion itself is left open so a late reply can
// still settle it.
func ScheduleTimeoutCheck(c *Completion, delay time.Duration, remediate func()) *time.Timer {
	return time.AfterFunc(delay, func() {
		if !c.IsResolved() {
			remediate()
		}
	})
}
