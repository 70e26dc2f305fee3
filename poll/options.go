package poll

import (
	"time"

	autogen "github.com/goliatone/go-autogen"
)

type Option func(*Handler)

// WithName labels log lines and errors, usually with the job id.
func WithName(name string) Option {
	return func(h *Handler) {
		h.name = name
	}
}

// WithTimeout bounds a single poll.
func WithTimeout(t time.Duration) Option {
	return func(h *Handler) {
		h.timeout = t
	}
}

func WithDeadline(d time.Time) Option {
	return func(h *Handler) {
		h.deadline = d
	}
}

// WithMaxPolls stops polling after max polls. Zero means unlimited.
func WithMaxPolls(max int) Option {
	return func(h *Handler) {
		h.maxPolls = max
	}
}

// WithMaxRetryObservations gives up after max consecutive retry statuses.
// Zero means unlimited.
func WithMaxRetryObservations(max int) Option {
	return func(h *Handler) {
		h.maxRetryObservations = max
	}
}

// WithMaxRetries sets how many consecutive failed polls Until tolerates.
func WithMaxRetries(max int) Option {
	return func(h *Handler) {
		h.maxRetries = max
	}
}

func WithErrorHandler(fn func(error)) Option {
	return func(h *Handler) {
		if fn == nil {
			fn = func(error) {}
		}
		h.errorHandler = fn
	}
}

// WithDoneHandler is called once, when the target first reports completion.
func WithDoneHandler(fn func(*Handler)) Option {
	return func(h *Handler) {
		if fn == nil {
			fn = func(*Handler) {}
		}
		h.doneHandler = fn
	}
}

func WithLogger(l autogen.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithRetryStrategy sets the backoff between failed polls in Until.
func WithRetryStrategy(s RetryStrategy) Option {
	return func(h *Handler) {
		h.retryStrategy = s
	}
}

// WithPanicHandler replaces the recovery used around Advance.
func WithPanicHandler(fn func(*error, string, ...map[string]any)) Option {
	return func(h *Handler) {
		h.panicHandler = fn
	}
}

// WithControl lets a caller pause, resume or stop an Until loop.
func WithControl(ctl Control) Option {
	return func(h *Handler) {
		h.control = ctl
	}
}
