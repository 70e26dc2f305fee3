package autogen

import (
	"context"
	"io"
)

// Writer materializes the input files of a stage.
//
// Write receives the manager's default filenames (possibly empty) and returns
// the files actually produced. Writers own their "already produced valid input"
// check: once Completed reports true the manager stops calling Write.
type Writer interface {
	Completed() bool
	Write(ctx context.Context, defaults StageFiles) (StageFiles, error)
}

// Runner submits work and probes whether it is active.
// Run is fire-and-forget, it never waits for the job to finish.
type Runner interface {
	CheckStatus(ctx context.Context) (RunStatus, error)
	Run(ctx context.Context, inputs, outputs []string) error
}

// Reader parses stage output. Collect sets Completed on success and may fail
// loudly on malformed output.
type Reader interface {
	Completed() bool
	Collect(ctx context.Context, outputs []string, extras ...string) error
}

// RestartChecker is implemented by readers of restart-capable pipelines.
// Having the capability is what makes a stage eligible for StateRetry.
type RestartChecker interface {
	CheckRestart(ctx context.Context, outputs []string) (bool, error)
}

// Summarizer emits a human readable summary of collected results.
type Summarizer interface {
	WriteSummary(w io.Writer) error
}

// Configured exposes the settings value a collaborator was built from. The
// returned value must be a pointer so option updates can merge in place.
type Configured interface {
	Settings() any
}

// Invalidator is implemented by writers whose generated inputs can go stale.
type Invalidator interface {
	Invalidate()
}
