package manager

import (
	"context"
	"io"

	autogen "github.com/goliatone/go-autogen"
)

// TwoStageManager drives a primary stage through the regular poll loop and,
// once the primary output is collected, a short dependent stage that is run
// and collected synchronously.
type TwoStageManager struct {
	opts      *options
	primary   *stageState
	dependent *stageState
	completed bool
}

var _ Manager = (*TwoStageManager)(nil)

// NewTwoStageManager builds a manager for a primary and a dependent stage.
// The dependent Writer is optional; when present it writes alongside the primary.
func NewTwoStageManager(primary, dependent Stage, opts ...Option) (*TwoStageManager, error) {
	o := buildOptions("two_stage", opts)
	if err := primary.validate(o.name, true); err != nil {
		return nil, err
	}
	if err := dependent.validate(o.name+"/dependent", false); err != nil {
		return nil, err
	}
	return &TwoStageManager{
		opts:      o,
		primary:   newStageState(primary),
		dependent: newStageState(dependent),
	}, nil
}

func (m *TwoStageManager) Advance(ctx context.Context) error {
	if err := m.primary.write(ctx, m.opts.name); err != nil {
		return err
	}
	if err := m.dependent.write(ctx, m.opts.name); err != nil {
		return err
	}

	proceed, err := m.primary.poll(ctx, m.opts)
	if err != nil || !proceed {
		return err
	}

	if m.primary.Reader.Completed() && !m.dependent.Reader.Completed() {
		if err := m.dependent.runAndCollect(ctx, m.opts.name); err != nil {
			return err
		}
	}
	m.opts.logger.Info("%s dependent stage done: %t", m.opts.name, m.dependent.Reader.Completed())

	if m.primary.Reader.Completed() && m.dependent.Reader.Completed() {
		m.completed = true
	}
	return nil
}

func (m *TwoStageManager) Status(ctx context.Context) (autogen.Status, error) {
	if m.completed {
		return autogen.StatusOK, nil
	}
	status, err := m.primary.status(ctx, m.opts)
	if err != nil || status != autogen.StatusOK {
		return status, err
	}
	return autogen.StatusNotFinished, nil
}

// Completed is true only once both stages collected their output.
func (m *TwoStageManager) Completed() bool {
	return m.completed
}

// State is the primary stage's last polled state.
func (m *TwoStageManager) State() autogen.LifecycleState {
	return m.primary.state
}

// Files returns primary and dependent filenames.
func (m *TwoStageManager) Files() (primary, dependent autogen.StageFiles) {
	return m.primary.files.Clone(), m.dependent.files.Clone()
}

// WriteSummary delegates to the primary reader.
func (m *TwoStageManager) WriteSummary(w io.Writer) error {
	return summarize(w, m.opts.name, m.primary.Reader)
}

// UpdateOptions merges settings stage by stage.
func (m *TwoStageManager) UpdateOptions(newer *TwoStageManager) (bool, error) {
	if newer == nil {
		return false, nil
	}
	changed, err := updateStage(m.primary, newer.primary, m.opts)
	if err != nil {
		return changed, err
	}
	dep, err := updateStage(m.dependent, newer.dependent, m.opts)
	return changed || dep, err
}
