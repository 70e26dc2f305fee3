package manager

import (
	"bytes"
	"context"
	"testing"

	autogen "github.com/goliatone/go-autogen"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func qmcFiles() autogen.StageFiles {
	return autogen.StageFiles{
		Inputs:        []string{"qw_0.dmc"},
		RestartInputs: []string{"qw_0.restart.dmc"},
		Outputs:       []string{"qw_0.dmc.log"},
		Extras:        []string{"qw_0.chk"},
	}
}

func newRunFixture(t *testing.T, reader autogen.Reader) (*RunManager, *fakeWriter, *fakeRunner, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	writer := &fakeWriter{}
	runner := &fakeRunner{}
	m, err := NewRunManager(Stage{
		Writer: writer,
		Runner: runner,
		Reader: reader,
		Files:  qmcFiles(),
	}, WithResolver(newTestResolver(fs)), WithName("dmc"))
	require.NoError(t, err)
	return m, writer, runner, fs
}

func TestRunManagerFirstAdvanceWritesAndSubmits(t *testing.T) {
	reader := &fakeReader{}
	m, writer, runner, _ := newRunFixture(t, reader)

	require.NoError(t, m.Advance(context.Background()))

	assert.Equal(t, 1, writer.writes)
	require.Len(t, runner.runs, 1)
	assert.Equal(t, []string{"qw_0.dmc"}, runner.runs[0].inputs)
	assert.Equal(t, []string{"qw_0.dmc.log"}, runner.runs[0].outputs)
	assert.Empty(t, reader.collects)
	assert.False(t, m.Completed())
	assert.Equal(t, autogen.StateNotStarted, m.State())
}

func TestRunManagerSecondAdvanceCollects(t *testing.T) {
	reader := &fakeReader{}
	m, writer, runner, fs := newRunFixture(t, reader)
	ctx := context.Background()

	require.NoError(t, m.Advance(ctx))
	touch(fs, "qw_0.dmc.log")
	require.NoError(t, m.Advance(ctx))

	assert.Equal(t, 1, writer.writes, "writer is not asked again once completed")
	assert.Len(t, runner.runs, 1)
	require.Len(t, reader.collects, 1)
	assert.Equal(t, []string{"qw_0.dmc.log"}, reader.collects[0].outputs)
	assert.Equal(t, []string{"qw_0.chk"}, reader.collects[0].extras)
	assert.True(t, m.Completed())

	status, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, autogen.StatusOK, status)
}

func TestRunManagerSynchronousRunCollectsInOneCall(t *testing.T) {
	reader := &fakeReader{}
	m, _, runner, fs := newRunFixture(t, reader)
	runner.onRun = func(_, outputs []string) { touch(fs, outputs...) }

	require.NoError(t, m.Advance(context.Background()))

	assert.Len(t, runner.runs, 1)
	assert.Len(t, reader.collects, 1)
	assert.True(t, m.Completed())
}

func TestRunManagerRunningReturnsWithoutAction(t *testing.T) {
	reader := &fakeReader{}
	m, _, runner, fs := newRunFixture(t, reader)
	runner.status = autogen.RunStatusRunning
	touch(fs, "qw_0.dmc.log")

	require.NoError(t, m.Advance(context.Background()))

	assert.Empty(t, runner.runs)
	assert.Empty(t, reader.collects)
	assert.Equal(t, autogen.StateRunning, m.State())
	assert.False(t, m.Completed())
}

func TestRunManagerRetryResubmitsRestartInputs(t *testing.T) {
	reader := &fakeRestartReader{restart: true}
	m, _, runner, fs := newRunFixture(t, reader)
	touch(fs, "qw_0.dmc.log")
	ctx := context.Background()

	require.NoError(t, m.Advance(ctx))

	require.Len(t, runner.runs, 1)
	assert.Equal(t, []string{"qw_0.restart.dmc"}, runner.runs[0].inputs)
	assert.Equal(t, []string{"qw_0.dmc.log"}, runner.runs[0].outputs)
	assert.Empty(t, reader.collects)
	assert.Equal(t, autogen.StateRetry, m.State())
	assert.False(t, m.Completed())

	status, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, autogen.StatusRetry, status)

	reader.restart = false
	require.NoError(t, m.Advance(ctx))
	assert.Len(t, runner.runs, 1)
	assert.Len(t, reader.collects, 1)
	assert.True(t, m.Completed())
}

func TestRunManagerRetryWithoutRestartSetReusesInputs(t *testing.T) {
	fs := afero.NewMemMapFs()
	runner := &fakeRunner{}
	reader := &fakeRestartReader{restart: true}
	m, err := NewRunManager(Stage{
		Writer: &fakeWriter{},
		Runner: runner,
		Reader: reader,
		Files:  autogen.StageFiles{Inputs: []string{"in"}, Outputs: []string{"out"}},
	}, WithResolver(newTestResolver(fs)))
	require.NoError(t, err)
	touch(fs, "out")

	require.NoError(t, m.Advance(context.Background()))
	require.Len(t, runner.runs, 1)
	assert.Equal(t, []string{"in"}, runner.runs[0].inputs)
}

func TestRunManagerCompletedIsIdempotent(t *testing.T) {
	reader := &fakeReader{completed: true}
	m, _, runner, _ := newRunFixture(t, reader)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Advance(context.Background()))
	}

	assert.Zero(t, runner.probes, "a completed reader short-circuits the runner probe")
	assert.Empty(t, runner.runs)
	assert.True(t, m.Completed())
}

func TestRunManagerUsesWriterFilenames(t *testing.T) {
	fs := afero.NewMemMapFs()
	writer := &fakeWriter{files: autogen.StageFiles{
		Inputs:  []string{"gen_0.vmc", "gen_1.vmc"},
		Outputs: []string{"gen_0.vmc.log", "gen_1.vmc.log"},
		Stdout:  autogen.StdoutFor([]string{"gen_0.vmc", "gen_1.vmc"}),
	}}
	runner := &fakeRunner{}
	m, err := NewRunManager(Stage{Writer: writer, Runner: runner, Reader: &fakeReader{}},
		WithResolver(newTestResolver(fs)))
	require.NoError(t, err)

	require.NoError(t, m.Advance(context.Background()))
	require.Len(t, runner.runs, 1)
	assert.Equal(t, []string{"gen_0.vmc.stdout", "gen_1.vmc.stdout"}, runner.runs[0].outputs)
	assert.Equal(t, writer.files.Outputs, m.Files().Outputs)
}

func TestRunManagerCollaboratorErrors(t *testing.T) {
	t.Run("writer", func(t *testing.T) {
		m, writer, runner, _ := newRunFixture(t, &fakeReader{})
		writer.err = errBoom
		err := m.Advance(context.Background())
		require.Error(t, err)
		assert.Equal(t, autogen.ErrCodeCollaborator, autogen.ErrorCode(err))
		assert.Empty(t, runner.runs)
	})
	t.Run("runner", func(t *testing.T) {
		m, _, runner, _ := newRunFixture(t, &fakeReader{})
		runner.err = errBoom
		require.Error(t, m.Advance(context.Background()))
	})
	t.Run("reader", func(t *testing.T) {
		reader := &fakeReader{failWith: errBoom}
		m, _, _, fs := newRunFixture(t, reader)
		touch(fs, "qw_0.dmc.log")
		err := m.Advance(context.Background())
		require.Error(t, err)
		assert.Equal(t, autogen.ErrCodeCollaborator, autogen.ErrorCode(err))
		assert.False(t, m.Completed())
	})
}

func TestNewRunManagerRequiresCollaborators(t *testing.T) {
	_, err := NewRunManager(Stage{Runner: &fakeRunner{}, Reader: &fakeReader{}})
	require.Error(t, err)
	assert.Equal(t, autogen.ErrCodeInvalidConfig, autogen.ErrorCode(err))

	_, err = NewRunManager(Stage{Writer: &fakeWriter{}, Reader: &fakeReader{}})
	require.Error(t, err)
}

func TestRunManagerWriteSummaryDelegatesToReader(t *testing.T) {
	m, _, _, _ := newRunFixture(t, &fakeReader{summary: "energy -1.17"})
	var buf bytes.Buffer
	require.NoError(t, m.WriteSummary(&buf))
	assert.Equal(t, "energy -1.17", buf.String())
}

func TestRunManagerRetryWritesStdoutTargets(t *testing.T) {
	fs := afero.NewMemMapFs()
	runner := &fakeRunner{}
	reader := &fakeRestartReader{restart: true}
	files := qmcFiles()
	files.Stdout = autogen.StdoutFor(files.Inputs)
	m, err := NewRunManager(Stage{Writer: &fakeWriter{}, Runner: runner, Reader: reader, Files: files},
		WithResolver(newTestResolver(fs)))
	require.NoError(t, err)
	touch(fs, "qw_0.dmc.log")

	require.NoError(t, m.Advance(context.Background()))
	require.Len(t, runner.runs, 1)
	assert.Equal(t, []string{"qw_0.restart.dmc"}, runner.runs[0].inputs)
	assert.Equal(t, files.Stdout, runner.runs[0].outputs)
}
