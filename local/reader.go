package local

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	autogen "github.com/goliatone/go-autogen"
	"github.com/goliatone/go-autogen/jobconfig"
	"github.com/spf13/afero"
)

// Reader treats an output as finished once it contains the done marker. An
// empty marker accepts any existing output.
type Reader struct {
	cfg       *jobconfig.ReaderConfig
	opts      *options
	completed bool
	collected []collected
}

type collected struct {
	file   string
	tail   []string
	extras []string
}

var (
	_ autogen.Reader     = (*Reader)(nil)
	_ autogen.Summarizer = (*Reader)(nil)
	_ autogen.Configured = (*Reader)(nil)
)

// RestartReader is a Reader that also asks for a restart when an output
// matches the restart pattern.
type RestartReader struct {
	*Reader
	pattern *regexp.Regexp
}

var _ autogen.RestartChecker = (*RestartReader)(nil)

// NewReader returns a *RestartReader when cfg carries a restart pattern and a
// plain *Reader otherwise.
func NewReader(cfg *jobconfig.ReaderConfig, opts ...Option) (autogen.Reader, error) {
	if cfg == nil {
		cfg = &jobconfig.ReaderConfig{}
	}
	r := &Reader{cfg: cfg, opts: buildOptions(opts)}
	if cfg.RestartPattern == "" {
		return r, nil
	}
	pattern, err := regexp.Compile(cfg.RestartPattern)
	if err != nil {
		return nil, autogen.NewError(autogen.ErrInvalidConfig, "invalid restart pattern", err, map[string]any{
			"restart_pattern": cfg.RestartPattern,
		})
	}
	return &RestartReader{Reader: r, pattern: pattern}, nil
}

func (r *Reader) Completed() bool { return r.completed }

func (r *Reader) Settings() any { return r.cfg }

// SetCompleted restores completion persisted by an earlier process.
func (r *Reader) SetCompleted(done bool) { r.completed = done }

func (r *Reader) Collect(ctx context.Context, outputs []string, extras ...string) error {
	results := make([]collected, 0, len(outputs))
	for _, out := range outputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := afero.ReadFile(r.opts.fs, out)
		if err != nil {
			return fmt.Errorf("read output %s: %w", out, err)
		}
		text := string(data)
		if r.cfg.DoneMarker != "" && !strings.Contains(text, r.cfg.DoneMarker) {
			r.opts.logger.Warn("%s: done marker %q not found, output left uncollected", out, r.cfg.DoneMarker)
			return nil
		}
		results = append(results, collected{file: out, tail: tailLines(text, r.summaryLines())})
	}

	var present []string
	for _, extra := range extras {
		ok, err := afero.Exists(r.opts.fs, extra)
		if err != nil {
			return err
		}
		if !ok {
			r.opts.logger.Warn("extra file %s missing", extra)
			continue
		}
		present = append(present, extra)
	}
	if len(results) > 0 {
		results[0].extras = present
	}

	r.collected = results
	r.completed = true
	r.opts.logger.Info("collected %d output(s)", len(results))
	return nil
}

// WriteSummary prints the tail of every collected output.
func (r *Reader) WriteSummary(w io.Writer) error {
	if !r.completed {
		_, err := fmt.Fprintln(w, "not collected")
		return err
	}
	for _, c := range r.collected {
		if _, err := fmt.Fprintf(w, "== %s\n", c.file); err != nil {
			return err
		}
		for _, line := range c.tail {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		for _, extra := range c.extras {
			if _, err := fmt.Fprintf(w, "extra: %s\n", extra); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reader) summaryLines() int {
	if r.cfg.SummaryLines > 0 {
		return r.cfg.SummaryLines
	}
	return DefaultSummaryLines
}

// CheckRestart reports whether any output matches the restart pattern.
func (r *RestartReader) CheckRestart(_ context.Context, outputs []string) (bool, error) {
	for _, out := range outputs {
		data, err := afero.ReadFile(r.opts.fs, out)
		if err != nil {
			return false, fmt.Errorf("read output %s: %w", out, err)
		}
		if r.pattern.Match(data) {
			r.opts.logger.Info("%s requests a restart", out)
			return true, nil
		}
	}
	return false, nil
}

func tailLines(text string, n int) []string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
