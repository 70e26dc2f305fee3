package local

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	autogen "github.com/goliatone/go-autogen"
	"github.com/goliatone/go-autogen/jobconfig"
	"github.com/spf13/afero"
)

// Runner starts the configured command once per input, with the process
// output written to the matching run target. In background mode the process
// ids are recorded in a pid file and CheckStatus reports running while any
// of them is alive.
type Runner struct {
	cfg  *jobconfig.RunnerConfig
	opts *options
}

var (
	_ autogen.Runner     = (*Runner)(nil)
	_ autogen.Configured = (*Runner)(nil)
)

func NewRunner(cfg *jobconfig.RunnerConfig, opts ...Option) (*Runner, error) {
	if cfg == nil || len(cfg.Command) == 0 {
		return nil, autogen.NewError(autogen.ErrInvalidConfig, "runner command required", nil, nil)
	}
	return &Runner{cfg: cfg, opts: buildOptions(opts)}, nil
}

func (r *Runner) Settings() any { return r.cfg }

// PidFile returns the path background process ids are written to.
func (r *Runner) PidFile() string {
	if r.opts.pidFile != "" {
		return r.opts.pidFile
	}
	return filepath.Join(r.opts.workdir, DefaultPidFile)
}

func (r *Runner) CheckStatus(context.Context) (autogen.RunStatus, error) {
	data, err := afero.ReadFile(r.opts.fs, r.PidFile())
	if err != nil {
		if os.IsNotExist(err) {
			return autogen.RunStatusNotRunning, nil
		}
		return autogen.RunStatusNotRunning, err
	}
	for _, field := range strings.Fields(string(data)) {
		pid, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		if processAlive(pid) {
			return autogen.RunStatusRunning, nil
		}
	}
	return autogen.RunStatusNotRunning, nil
}

// Run executes the command for every input. targets[i], when present,
// receives the combined stdout and stderr of input i. In background mode the
// processes started before a failing input are still recorded, so they are
// reported running and never submitted twice.
func (r *Runner) Run(ctx context.Context, inputs, targets []string) error {
	if len(inputs) == 0 {
		return autogen.NewError(autogen.ErrInvalidConfig, "nothing to run", nil, nil)
	}

	pids := make([]string, 0, len(inputs))
	for i, in := range inputs {
		target := ""
		if i < len(targets) {
			target = targets[i]
		}
		pid, err := r.start(ctx, in, target)
		if err != nil {
			if len(pids) > 0 {
				if recErr := r.recordPids(inputs[:i], pids); recErr != nil {
					r.opts.logger.Error("%v", recErr)
				}
			}
			return err
		}
		if pid > 0 {
			pids = append(pids, strconv.Itoa(pid))
		}
	}

	if r.opts.background {
		return r.recordPids(inputs, pids)
	}
	return nil
}

func (r *Runner) recordPids(inputs, pids []string) error {
	if err := afero.WriteFile(r.opts.fs, r.PidFile(), []byte(strings.Join(pids, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	r.cfg.QueueID = strings.Join(pids, ",")
	r.opts.logger.Info("submitted %s as pid(s) %s", strings.Join(inputs, ", "), r.cfg.QueueID)
	return nil
}

func (r *Runner) start(ctx context.Context, input, target string) (int, error) {
	args, err := r.commandLine(input)
	if err != nil {
		return 0, err
	}

	var cmd *exec.Cmd
	if r.opts.background {
		cmd = exec.Command(args[0], args[1:]...)
		detach(cmd)
	} else {
		cmd = exec.CommandContext(ctx, args[0], args[1:]...)
	}
	cmd.Dir = r.opts.workdir
	cmd.Env = r.environ()

	var out afero.File
	if target != "" {
		if out, err = r.opts.fs.Create(target); err != nil {
			return 0, fmt.Errorf("create run target: %w", err)
		}
		cmd.Stdout = out
		cmd.Stderr = out
	}
	closeOut := func() {
		if out != nil {
			_ = out.Close()
		}
	}

	r.opts.logger.Debug("exec %s", strings.Join(args, " "))

	if !r.opts.background {
		defer closeOut()
		if err := cmd.Run(); err != nil {
			return 0, fmt.Errorf("run %s: %w", args[0], err)
		}
		return 0, nil
	}

	if err := cmd.Start(); err != nil {
		closeOut()
		return 0, fmt.Errorf("start %s: %w", args[0], err)
	}
	// reap so the pid stops reporting alive once the process exits
	go func() {
		_ = cmd.Wait()
		closeOut()
	}()
	return cmd.Process.Pid, nil
}

// commandLine builds prefix + command + input + postfix. The input is made
// absolute because the process runs inside the workdir.
func (r *Runner) commandLine(input string) ([]string, error) {
	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, err
	}
	args := strings.Fields(r.cfg.Prefix)
	args = append(args, r.cfg.Command...)
	args = append(args, abs)
	args = append(args, strings.Fields(r.cfg.Postfix)...)
	return args, nil
}

func (r *Runner) environ() []string {
	env := os.Environ()
	keys := make([]string, 0, len(r.cfg.Env))
	for k := range r.cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, r.cfg.Env[k]))
	}
	return env
}
