package autogen

import (
	"fmt"
	"strings"
)

// LifecycleState is the resolver's classification of a job at a given poll.
type LifecycleState int

const (
	StateNotStarted LifecycleState = iota
	StateRunning
	StateReadyForAnalysis
	StateDone
	StateRetry
	StateError
)

var lifecycleStateNames = [...]string{
	StateNotStarted:       "not_started",
	StateRunning:          "running",
	StateReadyForAnalysis: "ready_for_analysis",
	StateDone:             "done",
	StateRetry:            "retry",
	StateError:            "error",
}

func (s LifecycleState) String() string {
	if !s.Valid() {
		return fmt.Sprintf("lifecycle_state(%d)", int(s))
	}
	return lifecycleStateNames[s]
}

// Valid reports whether s is one of the six known states.
func (s LifecycleState) Valid() bool {
	return s >= StateNotStarted && s <= StateError
}

func (s LifecycleState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, unknownStateError(s.String())
	}
	return []byte(s.String()), nil
}

func (s *LifecycleState) UnmarshalText(text []byte) error {
	parsed, err := ParseLifecycleState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseLifecycleState converts a snake_case state name.
func ParseLifecycleState(name string) (LifecycleState, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range lifecycleStateNames {
		if n == name {
			return LifecycleState(i), nil
		}
	}
	return StateError, unknownStateError(name)
}

// Status is the coarse outward status of a manager.
type Status string

const (
	StatusOK          Status = "ok"
	StatusNotFinished Status = "not_finished"
	StatusRetry       Status = "retry"
)

// RunStatus is what a Runner reports when probed.
type RunStatus string

const (
	RunStatusRunning    RunStatus = "running"
	RunStatusNotRunning RunStatus = "not_running"
)

// StageFiles holds the well-known filenames of one pipeline stage.
type StageFiles struct {
	Inputs        []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	RestartInputs []string `json:"restart_inputs,omitempty" yaml:"restart_inputs,omitempty"`
	Outputs       []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Stdout        []string `json:"stdout,omitempty" yaml:"stdout,omitempty"`
	Extras        []string `json:"extras,omitempty" yaml:"extras,omitempty"`
}

// RunTargets returns the filenames a Runner should write process output to.
// Stdout wins when set, QMC codes write their own output next to captured stdout.
func (f StageFiles) RunTargets() []string {
	if len(f.Stdout) > 0 {
		return f.Stdout
	}
	return f.Outputs
}

// RetryInputs returns the restart input set, or the regular inputs when the
// writer produced no restart set.
func (f StageFiles) RetryInputs() []string {
	if len(f.RestartInputs) > 0 {
		return f.RestartInputs
	}
	return f.Inputs
}

// StdoutFor derives "<input>.stdout" names for every input.
func StdoutFor(inputs []string) []string {
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, in+".stdout")
	}
	return out
}

// Clone returns a deep copy.
func (f StageFiles) Clone() StageFiles {
	return StageFiles{
		Inputs:        cloneStrings(f.Inputs),
		RestartInputs: cloneStrings(f.RestartInputs),
		Outputs:       cloneStrings(f.Outputs),
		Stdout:        cloneStrings(f.Stdout),
		Extras:        cloneStrings(f.Extras),
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}
