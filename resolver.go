package autogen

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
)

// Resolver classifies a stage's real-world progress from collaborator evidence.
// State is never cached, every call recomputes it.
type Resolver struct {
	fs     afero.Fs
	logger Logger
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithFs sets the filesystem used for output existence checks.
func WithFs(fs afero.Fs) ResolverOption {
	return func(r *Resolver) {
		if fs != nil {
			r.fs = fs
		}
	}
}

// WithResolverLogger sets the resolver logger.
func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = NormalizeLogger(logger)
	}
}

// NewResolver builds a resolver over the OS filesystem by default.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		fs:     afero.NewOsFs(),
		logger: NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Fs returns the filesystem the resolver checks.
func (r *Resolver) Fs() afero.Fs {
	return r.fs
}

// Resolve applies, in order: reader completion, runner probe, output
// existence, restart check (only for readers implementing RestartChecker).
func (r *Resolver) Resolve(ctx context.Context, runner Runner, reader Reader, outputs []string) (LifecycleState, error) {
	if reader.Completed() {
		return StateDone, nil
	}

	status, err := runner.CheckStatus(ctx)
	if err != nil {
		return StateError, WrapCollaborator(err, "check status", map[string]any{
			"runner": fmt.Sprintf("%T", runner),
		})
	}
	r.logger.Debug("current %T status: %s", runner, status)
	if status == RunStatusRunning {
		return StateRunning, nil
	}

	for _, out := range outputs {
		ok, err := afero.Exists(r.fs, out)
		if err != nil {
			return StateError, WrapCollaborator(err, "stat output", map[string]any{"file": out})
		}
		if !ok {
			return StateNotStarted, nil
		}
	}

	if rc, ok := reader.(RestartChecker); ok {
		restart, err := rc.CheckRestart(ctx, outputs)
		if err != nil {
			return StateError, WrapCollaborator(err, "check restart", map[string]any{
				"reader": fmt.Sprintf("%T", reader),
			})
		}
		if restart {
			return StateRetry, nil
		}
	}

	return StateReadyForAnalysis, nil
}

var defaultResolver = NewResolver()

// Resolve runs the default OS-filesystem resolver.
func Resolve(ctx context.Context, runner Runner, reader Reader, outputs []string) (LifecycleState, error) {
	return defaultResolver.Resolve(ctx, runner, reader, outputs)
}
