// Package local provides a collaborator set for jobs that run as scripts on
// the local machine: a template Writer, a process Runner and a marker Reader.
package local

import (
	autogen "github.com/goliatone/go-autogen"
	"github.com/spf13/afero"
)

// DefaultPidFile is the pid file name used when none is configured.
const DefaultPidFile = "autogen.pid"

// DefaultSummaryLines is how many trailing output lines a summary shows.
const DefaultSummaryLines = 5

// Option customizes local collaborators.
type Option func(*options)

type options struct {
	fs         afero.Fs
	logger     autogen.Logger
	workdir    string
	background bool
	pidFile    string
}

// WithFs sets the filesystem used for inputs, run targets, pid files and
// collected outputs. Started processes still read their input from the OS.
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		if fs != nil {
			o.fs = fs
		}
	}
}

func WithLogger(logger autogen.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithWorkdir sets the working directory of started processes.
func WithWorkdir(dir string) Option {
	return func(o *options) {
		o.workdir = dir
	}
}

// WithBackground makes Run start processes and return without waiting.
func WithBackground(background bool) Option {
	return func(o *options) {
		o.background = background
	}
}

// WithPidFile overrides where background process ids are recorded.
func WithPidFile(path string) Option {
	return func(o *options) {
		o.pidFile = path
	}
}

func buildOptions(opts []Option) *options {
	o := &options{fs: afero.NewOsFs()}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = autogen.NopLogger{}
	}
	return o
}
