// Package poll drives a manager: one Advance per Poll, serialized, bounded by
// timeouts and poll ceilings, with panics in collaborators recovered.
package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	autogen "github.com/goliatone/go-autogen"
)

// Target is what a Handler drives. Every manager.Manager is a Target.
type Target interface {
	Advance(ctx context.Context) error
	Status(ctx context.Context) (autogen.Status, error)
	Completed() bool
}

type Handler struct {
	mu sync.Mutex

	target        Target
	name          string
	logger        autogen.Logger
	errorHandler  func(error)
	doneHandler   func(*Handler)
	panicHandler  func(*error, string, ...map[string]any)
	retryStrategy RetryStrategy
	control       Control

	polls             int
	retryObservations int
	finished          bool

	maxPolls             int
	maxRetryObservations int
	maxRetries           int
	timeout              time.Duration
	deadline             time.Time
}

// NewHandler wraps target with the given options, applying defaults if unset.
func NewHandler(target Target, opts ...Option) *Handler {
	h := &Handler{
		target:        target,
		name:          fmt.Sprintf("%T", target),
		retryStrategy: NoDelayStrategy{},
	}
	for _, o := range opts {
		if o != nil {
			o(h)
		}
	}
	h.logger = autogen.LoggerWithFields(h.logger, map[string]any{"job": h.name})
	if h.errorHandler == nil {
		h.errorHandler = func(err error) {
			h.logger.Error("poll error: %v", err)
		}
	}
	if h.doneHandler == nil {
		h.doneHandler = func(h *Handler) {
			h.logger.Info("job done after %d poll(s)", h.Polls())
		}
	}
	if h.panicHandler == nil {
		h.panicHandler = autogen.MakePanicHandler(autogen.LoggerPanicLogger(h.logger))
	}
	return h
}

// Poll advances the target once and reports its status. Calls are
// serialized, so a single target never sees concurrent Advance calls.
func (h *Handler) Poll(ctx context.Context) (autogen.Status, error) {
	status, finished, err := h.poll(ctx)
	if err != nil {
		h.errorHandler(err)
	}
	if finished {
		h.doneHandler(h)
	}
	return status, err
}

func (h *Handler) poll(ctx context.Context) (autogen.Status, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.target.Completed() {
		return autogen.StatusOK, h.markFinished(), nil
	}

	if h.maxPolls > 0 && h.polls >= h.maxPolls {
		return autogen.StatusNotFinished, false, h.limitError("max polls reached", h.polls)
	}

	ctx, cancel := h.contextWithSettings(ctx)
	defer cancel()

	h.polls++
	status, err := h.advance(ctx)
	if err != nil {
		return status, false, err
	}
	h.logger.Debug("poll %d status: %s", h.polls, status)

	if status == autogen.StatusRetry {
		h.retryObservations++
		if h.maxRetryObservations > 0 && h.retryObservations >= h.maxRetryObservations {
			return status, false, h.limitError("job keeps asking for restarts", h.retryObservations)
		}
	} else {
		h.retryObservations = 0
	}

	if h.target.Completed() {
		return status, h.markFinished(), nil
	}
	return status, false, nil
}

// Until polls every interval until the target completes, a poll limit is
// hit, more than maxRetries consecutive polls fail, or ctx ends.
func (h *Handler) Until(ctx context.Context, interval time.Duration) (autogen.Status, error) {
	ctl := h.control
	if ctl == nil {
		ctl = noopControl{}
	}

	failures := 0
	for {
		if err := ctl.WaitIfPaused(ctx); err != nil {
			return autogen.StatusNotFinished, err
		}

		status, err := h.Poll(ctx)
		wait := interval
		switch {
		case err == nil && status == autogen.StatusOK:
			return status, nil
		case err == nil:
			failures = 0
		case autogen.ErrorCode(err) == autogen.ErrCodePollLimit:
			return status, err
		default:
			if failures >= h.maxRetries {
				return status, err
			}
			decision := DecideRetry(h.retryStrategy, failures, err)
			if !decision.ShouldRetry {
				return status, err
			}
			failures++
			if decision.Delay > wait {
				wait = decision.Delay
			}
		}

		if err := sleep(ctx, ctl, wait); err != nil {
			return status, err
		}
	}
}

// Polls is how many times Advance has been called.
func (h *Handler) Polls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.polls
}

// RetryObservations is the current run of consecutive retry statuses.
func (h *Handler) RetryObservations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.retryObservations
}

func (h *Handler) Name() string { return h.name }

func (h *Handler) advance(ctx context.Context) (status autogen.Status, err error) {
	status = autogen.StatusNotFinished
	defer h.panicHandler(&err, "Advance", map[string]any{"job": h.name})

	if err = h.target.Advance(ctx); err != nil {
		return status, err
	}
	return h.target.Status(ctx)
}

// markFinished reports true only the first time the target is seen completed.
func (h *Handler) markFinished() bool {
	if h.finished {
		return false
	}
	h.finished = true
	return true
}

func (h *Handler) limitError(msg string, count int) error {
	return autogen.NewError(autogen.ErrPollLimit, msg, nil, map[string]any{
		"job":   h.name,
		"count": count,
	})
}

func (h *Handler) contextWithSettings(parent context.Context) (context.Context, context.CancelFunc) {
	switch {
	case h.timeout != 0 && !h.deadline.IsZero():
		ctx, cancelTimeout := context.WithTimeout(parent, h.timeout)
		ctxDeadline, cancelDeadline := context.WithDeadline(ctx, h.deadline)
		return ctxDeadline, func() {
			cancelDeadline()
			cancelTimeout()
		}
	case h.timeout != 0:
		return context.WithTimeout(parent, h.timeout)
	case !h.deadline.IsZero():
		return context.WithDeadline(parent, h.deadline)
	default:
		return parent, func() {}
	}
}

func sleep(ctx context.Context, ctl Control, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ctl.Done():
		if cause := ctl.CancelCause(); cause != nil {
			return cause
		}
		return context.Canceled
	case <-timer.C:
		return nil
	}
}
