// Package jobconfig declares job descriptions and their per-role settings.
//
// Settings structs carry `reconcile` tags so a freshly loaded description can be
// merged into a running one without touching numerically significant fields.
package jobconfig

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	autogen "github.com/goliatone/go-autogen"
)

// Pipeline selects the manager variant for a job.
type Pipeline string

const (
	PipelineRun      Pipeline = "run"
	PipelineTwoStage Pipeline = "two_stage"
	PipelineConvert  Pipeline = "convert"
)

// Default filenames of the two stage DFT pipeline.
const (
	DefaultPrimaryInput    = "crys.in"
	DefaultPrimaryOutput   = "crys.in.o"
	DefaultDependentInput  = "prop.in"
	DefaultDependentOutput = "prop.in.o"
)

// StageConfig groups the collaborator settings of one stage.
type StageConfig struct {
	Runner RunnerConfig `yaml:"runner" json:"runner"`
	Writer WriterConfig `yaml:"writer" json:"writer"`
	Reader ReaderConfig `yaml:"reader" json:"reader"`
}

// JobDescription is one job of a job set.
type JobDescription struct {
	ID        string       `yaml:"id" json:"id"`
	Pipeline  Pipeline     `yaml:"pipeline" json:"pipeline"`
	Workdir   string       `yaml:"workdir,omitempty" json:"workdir,omitempty"`
	Stage     StageConfig  `yaml:",inline" json:"stage"`
	Dependent *StageConfig `yaml:"dependent,omitempty" json:"dependent,omitempty"`
}

// PollConfig controls how often and how long jobs are polled. MaxRetries
// bounds consecutive restart requests from a job, MaxErrors bounds
// consecutive failed polls while waiting for a job.
type PollConfig struct {
	Schedule   string        `yaml:"schedule,omitempty" json:"schedule,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxPolls   int           `yaml:"max_polls,omitempty" json:"max_polls,omitempty"`
	MaxRetries int           `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	MaxErrors  int           `yaml:"max_errors,omitempty" json:"max_errors,omitempty"`
}

// StoreConfig selects where job records are kept.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty" json:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

// JobSet is the root of a job description file.
type JobSet struct {
	Poll  PollConfig       `yaml:"poll,omitempty" json:"poll,omitempty"`
	Store StoreConfig      `yaml:"store,omitempty" json:"store,omitempty"`
	Jobs  []JobDescription `yaml:"jobs" json:"jobs"`
}

// Validate checks ids, pipelines and required settings.
func (s *JobSet) Validate() error {
	if s == nil {
		return autogen.NewError(autogen.ErrInvalidConfig, "job set is nil", nil, nil)
	}
	seen := make(map[string]struct{}, len(s.Jobs))
	for i := range s.Jobs {
		job := &s.Jobs[i]
		if err := job.Validate(); err != nil {
			return err
		}
		if _, dup := seen[job.ID]; dup {
			return autogen.NewError(autogen.ErrInvalidConfig, "duplicate job id", nil, map[string]any{"id": job.ID})
		}
		seen[job.ID] = struct{}{}
	}
	return nil
}

// Job returns the description with the given id.
func (s *JobSet) Job(id string) (*JobDescription, bool) {
	for i := range s.Jobs {
		if s.Jobs[i].ID == id {
			return &s.Jobs[i], true
		}
	}
	return nil, false
}

// Validate checks a single job description.
func (j *JobDescription) Validate() error {
	fail := func(msg string) error {
		return autogen.NewError(autogen.ErrInvalidConfig, msg, nil, map[string]any{"id": j.ID})
	}
	if strings.TrimSpace(j.ID) == "" {
		return fail("job id required")
	}
	switch j.Pipeline {
	case PipelineRun, PipelineConvert:
	case PipelineTwoStage:
		if j.Dependent == nil {
			return fail("two_stage pipeline requires a dependent stage")
		}
		if len(j.Dependent.Runner.Command) == 0 {
			return fail("dependent stage runner command required")
		}
	case "":
		j.Pipeline = PipelineRun
	default:
		return fail(fmt.Sprintf("unknown pipeline %q", j.Pipeline))
	}
	if len(j.Stage.Runner.Command) == 0 {
		return fail("runner command required")
	}
	if j.Pipeline == PipelineRun && len(j.Stage.Writer.Outputs) == 0 {
		return fail("run pipeline requires writer outputs")
	}
	return nil
}

// PrimaryFiles returns the default filenames of the first stage.
func (j *JobDescription) PrimaryFiles() autogen.StageFiles {
	files := j.Stage.Files(j.Workdir)
	if j.Pipeline == PipelineTwoStage {
		if len(files.Inputs) == 0 {
			files.Inputs = []string{j.path(DefaultPrimaryInput)}
		}
		if len(files.Outputs) == 0 {
			files.Outputs = []string{j.path(DefaultPrimaryOutput)}
		}
	}
	return files
}

// DependentFiles returns the default filenames of the dependent stage.
func (j *JobDescription) DependentFiles() autogen.StageFiles {
	if j.Dependent == nil {
		return autogen.StageFiles{}
	}
	files := j.Dependent.Files(j.Workdir)
	if len(files.Inputs) == 0 {
		files.Inputs = []string{j.path(DefaultDependentInput)}
	}
	if len(files.Outputs) == 0 {
		files.Outputs = []string{j.path(DefaultDependentOutput)}
	}
	return files
}

func (j *JobDescription) path(name string) string {
	if j.Workdir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(j.Workdir, name)
}

// Files resolves the writer's filenames against workdir.
func (c StageConfig) Files(workdir string) autogen.StageFiles {
	join := func(names []string) []string {
		if len(names) == 0 {
			return nil
		}
		out := make([]string, 0, len(names))
		for _, n := range names {
			if workdir != "" && !filepath.IsAbs(n) {
				n = filepath.Join(workdir, n)
			}
			out = append(out, n)
		}
		return out
	}
	files := autogen.StageFiles{
		Inputs:  join(c.Writer.Inputs),
		Outputs: join(c.Writer.Outputs),
		Extras:  join(c.Writer.Extras),
	}
	if c.Writer.RestartTemplate != "" {
		for _, in := range files.Inputs {
			files.RestartInputs = append(files.RestartInputs, RestartName(in))
		}
	}
	if c.Writer.CaptureStdout {
		files.Stdout = autogen.StdoutFor(files.Inputs)
	}
	return files
}

// RestartName derives the restart input filename for an input.
func RestartName(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".restart" + ext
}
