// Package manager sequences pipeline stages through their lifecycle.
//
// A manager is driven by repeated Advance calls. Each call polls the current
// lifecycle state once, reacts (write inputs, submit, collect) and returns; it
// never waits for an external job. A single manager must not be advanced by two
// callers at the same time, poll.Handler serializes calls when that matters.
package manager

import (
	"context"
	"fmt"
	"io"

	autogen "github.com/goliatone/go-autogen"
)

// Manager is the surface every pipeline manager exposes.
type Manager interface {
	Advance(ctx context.Context) error
	Status(ctx context.Context) (autogen.Status, error)
	Completed() bool
	WriteSummary(w io.Writer) error
}

// Stage is one Writer/Runner/Reader triple and its default filenames.
// Writer may be nil for stages whose inputs already exist.
type Stage struct {
	Writer autogen.Writer
	Runner autogen.Runner
	Reader autogen.Reader
	Files  autogen.StageFiles
}

func (s Stage) validate(name string, needWriter bool) error {
	missing := ""
	switch {
	case needWriter && s.Writer == nil:
		missing = "writer"
	case s.Runner == nil:
		missing = "runner"
	case s.Reader == nil:
		missing = "reader"
	}
	if missing == "" {
		return nil
	}
	return autogen.NewError(autogen.ErrInvalidConfig, fmt.Sprintf("%s required", missing), nil, map[string]any{
		"manager": name,
	})
}

// Option customizes a manager.
type Option func(*options)

type options struct {
	name     string
	resolver *autogen.Resolver
	logger   autogen.Logger
}

// WithName labels log lines and errors.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithResolver sets the status resolver.
func WithResolver(r *autogen.Resolver) Option {
	return func(o *options) {
		if r != nil {
			o.resolver = r
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger autogen.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(kind string, opts []Option) *options {
	o := &options{name: kind}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = autogen.NopLogger{}
	}
	if o.resolver == nil {
		o.resolver = autogen.NewResolver(autogen.WithResolverLogger(o.logger))
	}
	o.logger = autogen.LoggerWithFields(o.logger, map[string]any{"manager": o.name})
	return o
}

// IsFinished reports whether a coarse status is terminal.
func IsFinished(status autogen.Status) bool {
	return status == autogen.StatusOK
}

func summarize(w io.Writer, name string, reader autogen.Reader) error {
	if s, ok := reader.(autogen.Summarizer); ok {
		return s.WriteSummary(w)
	}
	_, err := fmt.Fprintf(w, "%s: completed=%t\n", name, reader.Completed())
	return err
}
