package manager

import (
	"context"
	"errors"
	"fmt"
	"io"

	autogen "github.com/goliatone/go-autogen"
	"github.com/spf13/afero"
)

type fakeSettings struct {
	Basis    string `yaml:"basis"`
	MaxCycle int    `yaml:"max_cycle" reconcile:"safe"`
	Queue    string `yaml:"queue" reconcile:"safe"`
	QueueID  string `yaml:"queueid" reconcile:"skip"`
}

type fakeWriter struct {
	completed   bool
	files       autogen.StageFiles
	writes      int
	invalidated int
	settings    fakeSettings
	err         error
}

func (w *fakeWriter) Completed() bool { return w.completed }

func (w *fakeWriter) Write(_ context.Context, defaults autogen.StageFiles) (autogen.StageFiles, error) {
	w.writes++
	if w.err != nil {
		return autogen.StageFiles{}, w.err
	}
	w.completed = true
	if len(w.files.Inputs) == 0 && len(w.files.Outputs) == 0 {
		return defaults, nil
	}
	return w.files, nil
}

func (w *fakeWriter) Invalidate()   { w.invalidated++; w.completed = false }
func (w *fakeWriter) Settings() any { return &w.settings }

type runCall struct {
	inputs  []string
	outputs []string
}

type fakeRunner struct {
	status   autogen.RunStatus
	runs     []runCall
	probes   int
	onRun    func(inputs, outputs []string)
	err      error
	settings fakeSettings
}

func (r *fakeRunner) CheckStatus(context.Context) (autogen.RunStatus, error) {
	r.probes++
	if r.status == "" {
		return autogen.RunStatusNotRunning, nil
	}
	return r.status, nil
}

func (r *fakeRunner) Run(_ context.Context, inputs, outputs []string) error {
	r.runs = append(r.runs, runCall{inputs: inputs, outputs: outputs})
	if r.err != nil {
		return r.err
	}
	if r.onRun != nil {
		r.onRun(inputs, outputs)
	}
	return nil
}

func (r *fakeRunner) Settings() any { return &r.settings }

type collectCall struct {
	outputs []string
	extras  []string
}

type fakeReader struct {
	completed bool
	collects  []collectCall
	failWith  error
	summary   string
}

func (r *fakeReader) Completed() bool { return r.completed }

func (r *fakeReader) Collect(_ context.Context, outputs []string, extras ...string) error {
	r.collects = append(r.collects, collectCall{outputs: outputs, extras: extras})
	if r.failWith != nil {
		return r.failWith
	}
	r.completed = true
	return nil
}

func (r *fakeReader) WriteSummary(w io.Writer) error {
	_, err := fmt.Fprint(w, r.summary)
	return err
}

type fakeRestartReader struct {
	fakeReader
	restart bool
	checks  int
}

func (r *fakeRestartReader) CheckRestart(context.Context, []string) (bool, error) {
	r.checks++
	return r.restart, nil
}

var errBoom = errors.New("boom")

func touch(fs afero.Fs, names ...string) {
	for _, n := range names {
		_ = afero.WriteFile(fs, n, []byte("output\n"), 0o644)
	}
}

func newTestResolver(fs afero.Fs) *autogen.Resolver {
	return autogen.NewResolver(autogen.WithFs(fs))
}

// fixedWriter produces inputs but has no way to drop them.
type fixedWriter struct {
	w *fakeWriter
}

func (f fixedWriter) Completed() bool { return f.w.Completed() }

func (f fixedWriter) Write(ctx context.Context, defaults autogen.StageFiles) (autogen.StageFiles, error) {
	return f.w.Write(ctx, defaults)
}

func (f fixedWriter) Settings() any { return f.w.Settings() }

type markerSettings struct {
	DoneMarker   string `yaml:"done_marker"`
	SummaryLines int    `yaml:"summary_lines" reconcile:"safe"`
}

type configuredReader struct {
	fakeReader
	settings markerSettings
}

func (r *configuredReader) Settings() any { return &r.settings }
