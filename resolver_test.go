package autogen

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	status RunStatus
	err    error
	probed bool
}

func (r *stubRunner) CheckStatus(context.Context) (RunStatus, error) {
	r.probed = true
	return r.status, r.err
}

func (r *stubRunner) Run(context.Context, []string, []string) error { return nil }

type stubReader struct{ completed bool }

func (r *stubReader) Completed() bool                                    { return r.completed }
func (r *stubReader) Collect(context.Context, []string, ...string) error { return nil }

type stubRestartReader struct {
	stubReader
	restart bool
	err     error
}

func (r *stubRestartReader) CheckRestart(context.Context, []string) (bool, error) {
	return r.restart, r.err
}

func TestResolvePriority(t *testing.T) {
	outputs := []string{"crys.in.o"}

	tests := []struct {
		name   string
		runner *stubRunner
		reader Reader
		files  []string
		want   LifecycleState
	}{
		{
			name:   "completed reader wins over a running job",
			runner: &stubRunner{status: RunStatusRunning},
			reader: &stubReader{completed: true},
			want:   StateDone,
		},
		{
			name:   "running job",
			runner: &stubRunner{status: RunStatusRunning},
			reader: &stubReader{},
			files:  outputs,
			want:   StateRunning,
		},
		{
			name:   "missing output",
			runner: &stubRunner{status: RunStatusNotRunning},
			reader: &stubReader{},
			want:   StateNotStarted,
		},
		{
			name:   "output present",
			runner: &stubRunner{status: RunStatusNotRunning},
			reader: &stubReader{},
			files:  outputs,
			want:   StateReadyForAnalysis,
		},
		{
			name:   "restart requested",
			runner: &stubRunner{status: RunStatusNotRunning},
			reader: &stubRestartReader{restart: true},
			files:  outputs,
			want:   StateRetry,
		},
		{
			name:   "restart capable reader without restart",
			runner: &stubRunner{status: RunStatusNotRunning},
			reader: &stubRestartReader{},
			files:  outputs,
			want:   StateReadyForAnalysis,
		},
		{
			name:   "restart check skipped without outputs",
			runner: &stubRunner{status: RunStatusNotRunning},
			reader: &stubRestartReader{restart: true},
			want:   StateNotStarted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			for _, f := range tt.files {
				require.NoError(t, afero.WriteFile(fs, f, []byte("x"), 0o644))
			}
			r := NewResolver(WithFs(fs))

			got, err := r.Resolve(context.Background(), tt.runner, tt.reader, outputs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDoneSkipsRunnerProbe(t *testing.T) {
	runner := &stubRunner{status: RunStatusRunning}
	got, err := NewResolver(WithFs(afero.NewMemMapFs())).
		Resolve(context.Background(), runner, &stubReader{completed: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateDone, got)
	assert.False(t, runner.probed)
}

func TestResolveAllOutputsMustExist(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "a.o", []byte("x"), 0o644))

	got, err := NewResolver(WithFs(fs)).Resolve(context.Background(),
		&stubRunner{status: RunStatusNotRunning}, &stubReader{}, []string{"a.o", "b.o"})
	require.NoError(t, err)
	assert.Equal(t, StateNotStarted, got)
}

func TestResolveCollaboratorErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "out", []byte("x"), 0o644))
	r := NewResolver(WithFs(fs))

	got, err := r.Resolve(context.Background(), &stubRunner{err: errors.New("qstat failed")}, &stubReader{}, []string{"out"})
	require.Error(t, err)
	assert.Equal(t, StateError, got)
	assert.Equal(t, ErrCodeCollaborator, ErrorCode(err))

	got, err = r.Resolve(context.Background(), &stubRunner{status: RunStatusNotRunning},
		&stubRestartReader{err: errors.New("unreadable")}, []string{"out"})
	require.Error(t, err)
	assert.Equal(t, StateError, got)
}

func TestNewResolverDefaultsToOsFs(t *testing.T) {
	r := NewResolver(WithFs(nil))
	_, ok := r.Fs().(*afero.OsFs)
	assert.True(t, ok)
}
