package manager

import (
	"context"
	"io"

	autogen "github.com/goliatone/go-autogen"
)

// RunManager drives a single stage: write inputs, submit, poll, collect.
// The stage is restart capable when its Reader implements
// autogen.RestartChecker; a detected restart resubmits the restart inputs.
type RunManager struct {
	opts      *options
	stage     *stageState
	completed bool
}

var _ Manager = (*RunManager)(nil)

// NewRunManager builds a manager around already configured collaborators.
func NewRunManager(stage Stage, opts ...Option) (*RunManager, error) {
	o := buildOptions("run", opts)
	if err := stage.validate(o.name, true); err != nil {
		return nil, err
	}
	return &RunManager{opts: o, stage: newStageState(stage)}, nil
}

// Advance polls the stage once and reacts.
func (m *RunManager) Advance(ctx context.Context) error {
	if err := m.stage.write(ctx, m.opts.name); err != nil {
		return err
	}
	if _, err := m.stage.poll(ctx, m.opts); err != nil {
		return err
	}
	if m.stage.Reader.Completed() {
		m.completed = true
	}
	return nil
}

// Status reports ok, retry or not_finished.
func (m *RunManager) Status(ctx context.Context) (autogen.Status, error) {
	if m.completed {
		return autogen.StatusOK, nil
	}
	return m.stage.status(ctx, m.opts)
}

// Completed is the terminal marker; once true it stays true.
func (m *RunManager) Completed() bool {
	return m.completed
}

// State is the lifecycle state seen by the last poll.
func (m *RunManager) State() autogen.LifecycleState {
	return m.stage.state
}

// Files returns the filenames currently in use.
func (m *RunManager) Files() autogen.StageFiles {
	return m.stage.files.Clone()
}

func (m *RunManager) WriteSummary(w io.Writer) error {
	return summarize(w, m.opts.name, m.stage.Reader)
}

// UpdateOptions merges newer's collaborator settings into this manager.
// Writer changes invalidate previously generated inputs.
func (m *RunManager) UpdateOptions(newer *RunManager) (bool, error) {
	if newer == nil {
		return false, nil
	}
	return updateStage(m.stage, newer.stage, m.opts)
}

// IsConsistent reports whether newer's writer settings match this manager's.
func (m *RunManager) IsConsistent(newer *RunManager) (bool, error) {
	if newer == nil {
		return false, nil
	}
	return consistentStage(m.stage, newer.stage)
}
