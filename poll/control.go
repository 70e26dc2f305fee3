package poll

import (
	"context"
	"errors"
	"sync"
)

// Control lets a caller hold or stop an Until loop between polls.
type Control interface {
	WaitIfPaused(ctx context.Context) error
	Done() <-chan struct{}
	CancelCause() error
}

type noopControl struct{}

func (noopControl) WaitIfPaused(ctx context.Context) error { return ctx.Err() }
func (noopControl) Done() <-chan struct{}                  { return nil }
func (noopControl) CancelCause() error                     { return nil }

// ErrPollCanceled is the cause reported when Cancel is called without one.
var ErrPollCanceled = errors.New("poll canceled")

// ManualControl is a Control driven by explicit Pause, Resume and Cancel
// calls. The gate channel is closed while polling may proceed.
type ManualControl struct {
	mu    sync.Mutex
	gate  chan struct{}
	open  bool
	done  chan struct{}
	cause error
}

func NewManualControl() *ManualControl {
	gate := make(chan struct{})
	close(gate)
	return &ManualControl{gate: gate, open: true, done: make(chan struct{})}
}

func (c *ManualControl) channels() (gate, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate, c.done
}

func (c *ManualControl) WaitIfPaused(ctx context.Context) error {
	for {
		gate, done := c.channels()
		select {
		case <-done:
			return c.CancelCause()
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return c.CancelCause()
		case <-gate:
			// a Pause between reading the gate and now swaps it
			if current, _ := c.channels(); current == gate {
				return ctx.Err()
			}
		}
	}
}

func (c *ManualControl) Done() <-chan struct{} {
	_, done := c.channels()
	return done
}

func (c *ManualControl) CancelCause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// Pause holds the loop before its next poll until Resume or Cancel.
func (c *ManualControl) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || c.cause != nil {
		return
	}
	c.gate = make(chan struct{})
	c.open = false
}

func (c *ManualControl) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openGate()
}

// Cancel stops the loop. A nil cause is reported as ErrPollCanceled.
func (c *ManualControl) Cancel(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cause != nil {
		return
	}
	if cause == nil {
		cause = ErrPollCanceled
	}
	c.cause = cause
	c.openGate()
	close(c.done)
}

func (c *ManualControl) openGate() {
	if c.open {
		return
	}
	close(c.gate)
	c.open = true
}
