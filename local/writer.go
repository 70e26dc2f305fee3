package local

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	autogen "github.com/goliatone/go-autogen"
	"github.com/goliatone/go-autogen/jobconfig"
	"github.com/spf13/afero"
)

// TemplateData is what input templates render against.
type TemplateData struct {
	Input      string
	Output     string
	Index      int
	Restart    bool
	Files      autogen.StageFiles
	Vars       map[string]string
	PySCF      jobconfig.PySCFConfig
	QWalk      jobconfig.QWalkConfig
	Crystal    jobconfig.CrystalConfig
	Properties jobconfig.PropertiesConfig
}

// Writer renders one input file per input name from a text template.
// Its settings are the job's WriterConfig, so option updates merge straight
// into what the next Write renders.
type Writer struct {
	cfg  *jobconfig.WriterConfig
	opts *options
}

var (
	_ autogen.Writer      = (*Writer)(nil)
	_ autogen.Configured  = (*Writer)(nil)
	_ autogen.Invalidator = (*Writer)(nil)
)

func NewWriter(cfg *jobconfig.WriterConfig, opts ...Option) (*Writer, error) {
	if cfg == nil {
		return nil, autogen.NewError(autogen.ErrInvalidConfig, "writer config required", nil, nil)
	}
	if cfg.Template == "" && cfg.TemplateFile == "" {
		return nil, autogen.NewError(autogen.ErrInvalidConfig, "writer template or template_file required", nil, nil)
	}
	return &Writer{cfg: cfg, opts: buildOptions(opts)}, nil
}

func (w *Writer) Completed() bool { return w.cfg.Completed }

func (w *Writer) Settings() any { return w.cfg }

// Invalidate forces the next Write to regenerate every input.
func (w *Writer) Invalidate() { w.cfg.Completed = false }

// Write renders the inputs named in defaults, and the restart inputs when a
// restart template is configured. The filenames are returned unchanged.
func (w *Writer) Write(ctx context.Context, defaults autogen.StageFiles) (autogen.StageFiles, error) {
	files := defaults.Clone()
	if len(files.Inputs) == 0 {
		return files, autogen.NewError(autogen.ErrInvalidConfig, "writer has no inputs to render", nil, nil)
	}

	body, err := w.templateBody()
	if err != nil {
		return files, err
	}
	tmpl, err := parseTemplate("input", body)
	if err != nil {
		return files, err
	}
	for i, in := range files.Inputs {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		if err := w.render(tmpl, in, w.data(files, in, i, false)); err != nil {
			return files, err
		}
	}

	if w.cfg.RestartTemplate != "" && len(files.RestartInputs) > 0 {
		restart, err := parseTemplate("restart", w.cfg.RestartTemplate)
		if err != nil {
			return files, err
		}
		for i, in := range files.RestartInputs {
			if err := w.render(restart, in, w.data(files, in, i, true)); err != nil {
				return files, err
			}
		}
	}

	w.cfg.Completed = true
	w.opts.logger.Info("wrote %d input file(s): %s", len(files.Inputs), strings.Join(files.Inputs, ", "))
	return files, nil
}

func (w *Writer) templateBody() (string, error) {
	if w.cfg.Template != "" {
		return w.cfg.Template, nil
	}
	data, err := afero.ReadFile(w.opts.fs, w.cfg.TemplateFile)
	if err != nil {
		return "", autogen.NewError(autogen.ErrInvalidConfig, "read template file", err, map[string]any{
			"template_file": w.cfg.TemplateFile,
		})
	}
	return string(data), nil
}

func (w *Writer) data(files autogen.StageFiles, input string, i int, restart bool) TemplateData {
	d := TemplateData{
		Input:      input,
		Index:      i,
		Restart:    restart,
		Files:      files,
		Vars:       w.cfg.Vars,
		PySCF:      w.cfg.PySCF,
		QWalk:      w.cfg.QWalk,
		Crystal:    w.cfg.Crystal,
		Properties: w.cfg.Properties,
	}
	if i < len(files.Outputs) {
		d.Output = files.Outputs[i]
	}
	return d
}

func (w *Writer) render(tmpl *template.Template, name string, data TemplateData) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return autogen.NewError(autogen.ErrInvalidConfig, "render template", err, map[string]any{"file": name})
	}
	if dir := filepath.Dir(name); dir != "." {
		if err := w.opts.fs.MkdirAll(dir, 0o755); err != nil {
			return autogen.WrapCollaborator(err, "create input dir", map[string]any{"dir": dir})
		}
	}
	if err := afero.WriteFile(w.opts.fs, name, buf.Bytes(), os.FileMode(0o644)); err != nil {
		return autogen.WrapCollaborator(err, "write input", map[string]any{"file": name})
	}
	return nil
}

func parseTemplate(name, body string) (*template.Template, error) {
	tmpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(template.FuncMap{"join": strings.Join}).
		Parse(body)
	if err != nil {
		return nil, autogen.NewError(autogen.ErrInvalidConfig, "parse template", err, map[string]any{"template": name})
	}
	return tmpl, nil
}
