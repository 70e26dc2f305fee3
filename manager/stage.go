package manager

import (
	"context"

	autogen "github.com/goliatone/go-autogen"
)

// stageState is a Stage plus what the manager learned about it so far.
type stageState struct {
	Stage
	files autogen.StageFiles
	state autogen.LifecycleState
}

func newStageState(s Stage) *stageState {
	return &stageState{Stage: s, files: s.Files.Clone(), state: autogen.StateNotStarted}
}

// write produces inputs unless the writer already did.
func (s *stageState) write(ctx context.Context, name string) error {
	if s.Writer == nil || s.Writer.Completed() {
		return nil
	}
	files, err := s.Writer.Write(ctx, s.Files.Clone())
	if err != nil {
		return autogen.WrapCollaborator(err, "write inputs", map[string]any{"manager": name})
	}
	s.files = files
	return nil
}

// poll resolves and reacts until the stage either collected its output
// (proceed is true) or has nothing more to do this cycle. At most one fresh
// submission happens per call, so a runner that never becomes visible cannot
// make a call spin.
func (s *stageState) poll(ctx context.Context, o *options) (bool, error) {
	submitted := false
	for {
		state, err := o.resolver.Resolve(ctx, s.Runner, s.Reader, s.files.Outputs)
		if err != nil {
			s.state = autogen.StateError
			return false, err
		}
		s.state = state
		o.logger.Info("%s status: %s", o.name, state)

		switch state {
		case autogen.StateRunning:
			return false, nil
		case autogen.StateNotStarted:
			if submitted {
				return false, nil
			}
			if err := s.Runner.Run(ctx, s.files.Inputs, s.files.RunTargets()); err != nil {
				return false, autogen.WrapCollaborator(err, "run", map[string]any{"manager": o.name})
			}
			submitted = true
		case autogen.StateReadyForAnalysis:
			if err := s.collect(ctx, o.name); err != nil {
				return false, err
			}
			return true, nil
		case autogen.StateDone:
			return true, nil
		case autogen.StateRetry:
			o.logger.Warn("%s restarting from %v", o.name, s.files.RetryInputs())
			if err := s.Runner.Run(ctx, s.files.RetryInputs(), s.files.RunTargets()); err != nil {
				return false, autogen.WrapCollaborator(err, "restart", map[string]any{"manager": o.name})
			}
			return false, nil
		default:
			return false, nil
		}
	}
}

// runAndCollect runs the stage synchronously and collects its output, for
// short stages that need no status polling.
func (s *stageState) runAndCollect(ctx context.Context, name string) error {
	if err := s.Runner.Run(ctx, s.files.Inputs, s.files.RunTargets()); err != nil {
		return autogen.WrapCollaborator(err, "run", map[string]any{"manager": name})
	}
	return s.collect(ctx, name)
}

func (s *stageState) collect(ctx context.Context, name string) error {
	if err := s.Reader.Collect(ctx, s.files.Outputs, s.files.Extras...); err != nil {
		return autogen.WrapCollaborator(err, "collect", map[string]any{"manager": name})
	}
	return nil
}

// status maps the resolved state to the coarse outward status.
func (s *stageState) status(ctx context.Context, o *options) (autogen.Status, error) {
	state, err := o.resolver.Resolve(ctx, s.Runner, s.Reader, s.files.Outputs)
	if err != nil {
		return autogen.StatusNotFinished, err
	}
	switch state {
	case autogen.StateDone:
		return autogen.StatusOK, nil
	case autogen.StateRetry:
		return autogen.StatusRetry, nil
	default:
		return autogen.StatusNotFinished, nil
	}
}
