package manager

import (
	"context"
	"io"

	autogen "github.com/goliatone/go-autogen"
)

// ConvertManager runs a fast, non-queued conversion step: if the reader has
// not completed, run then collect. There is no writer and no status polling.
type ConvertManager struct {
	opts  *options
	stage *stageState
}

var _ Manager = (*ConvertManager)(nil)

func NewConvertManager(runner autogen.Runner, reader autogen.Reader, files autogen.StageFiles, opts ...Option) (*ConvertManager, error) {
	o := buildOptions("convert", opts)
	stage := Stage{Runner: runner, Reader: reader, Files: files}
	if err := stage.validate(o.name, false); err != nil {
		return nil, err
	}
	return &ConvertManager{opts: o, stage: newStageState(stage)}, nil
}

func (m *ConvertManager) Advance(ctx context.Context) error {
	if m.stage.Reader.Completed() {
		return nil
	}
	return m.stage.runAndCollect(ctx, m.opts.name)
}

func (m *ConvertManager) Status(context.Context) (autogen.Status, error) {
	if m.stage.Reader.Completed() {
		return autogen.StatusOK, nil
	}
	return autogen.StatusNotFinished, nil
}

func (m *ConvertManager) Completed() bool {
	return m.stage.Reader.Completed()
}

func (m *ConvertManager) WriteSummary(w io.Writer) error {
	return summarize(w, m.opts.name, m.stage.Reader)
}

// UpdateOptions merges newer's runner and reader settings. Safe runner keys
// such as the queue may change after the conversion was configured.
func (m *ConvertManager) UpdateOptions(newer *ConvertManager) (bool, error) {
	if newer == nil {
		return false, nil
	}
	return updateStage(m.stage, newer.stage, m.opts)
}

// IsConsistent compares runner settings, conversions have no writer.
func (m *ConvertManager) IsConsistent(newer *ConvertManager) (bool, error) {
	if newer == nil {
		return false, nil
	}
	return consistentSettings(m.stage.Runner, newer.stage.Runner)
}
