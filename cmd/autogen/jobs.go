package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	autogen "github.com/goliatone/go-autogen"
	"github.com/goliatone/go-autogen/jobconfig"
	"github.com/goliatone/go-autogen/local"
	"github.com/goliatone/go-autogen/manager"
	"github.com/goliatone/go-autogen/store"
)

const dependentPidFile = "autogen.dependent.pid"

// stageHandle keeps the concrete collaborators of a stage so their
// completion flags can be persisted and restored.
type stageHandle struct {
	writer *local.Writer
	runner *local.Runner
	reader autogen.Reader
}

type completionSetter interface {
	SetCompleted(bool)
}

type stater interface {
	State() autogen.LifecycleState
}

// job is a manager built from a job description plus the record it is
// persisted under.
type job struct {
	desc   *jobconfig.JobDescription
	mgr    manager.Manager
	stages []stageHandle
	record *store.Record
	store  store.Store
	logger autogen.Logger
}

func buildJob(desc *jobconfig.JobDescription, logger autogen.Logger) (*job, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	logger = autogen.LoggerWithFields(logger, map[string]any{"job": desc.ID})
	j := &job{desc: desc, logger: logger}
	mopts := []manager.Option{manager.WithName(desc.ID), manager.WithLogger(logger)}

	switch desc.Pipeline {
	case jobconfig.PipelineTwoStage:
		primary, ph, err := buildStage(&desc.Stage, desc.PrimaryFiles(), desc.Workdir, local.DefaultPidFile, true, logger)
		if err != nil {
			return nil, err
		}
		dependent, dh, err := buildStage(desc.Dependent, desc.DependentFiles(), desc.Workdir, dependentPidFile, false, logger)
		if err != nil {
			return nil, err
		}
		mgr, err := manager.NewTwoStageManager(primary, dependent, mopts...)
		if err != nil {
			return nil, err
		}
		j.mgr, j.stages = mgr, []stageHandle{ph, dh}
	case jobconfig.PipelineConvert:
		stage, h, err := buildStage(&desc.Stage, desc.PrimaryFiles(), desc.Workdir, local.DefaultPidFile, false, logger)
		if err != nil {
			return nil, err
		}
		mgr, err := manager.NewConvertManager(stage.Runner, stage.Reader, stage.Files, mopts...)
		if err != nil {
			return nil, err
		}
		h.writer = nil
		j.mgr, j.stages = mgr, []stageHandle{h}
	default:
		stage, h, err := buildStage(&desc.Stage, desc.PrimaryFiles(), desc.Workdir, local.DefaultPidFile, true, logger)
		if err != nil {
			return nil, err
		}
		mgr, err := manager.NewRunManager(stage, mopts...)
		if err != nil {
			return nil, err
		}
		j.mgr, j.stages = mgr, []stageHandle{h}
	}
	return j, nil
}

func buildStage(cfg *jobconfig.StageConfig, files autogen.StageFiles, workdir, pidFile string, background bool, logger autogen.Logger) (manager.Stage, stageHandle, error) {
	opts := []local.Option{
		local.WithLogger(logger),
		local.WithWorkdir(workdir),
		local.WithBackground(background),
		local.WithPidFile(filepath.Join(workdir, pidFile)),
	}

	var h stageHandle
	var err error
	if hasTemplate(cfg.Writer) {
		if h.writer, err = local.NewWriter(&cfg.Writer, opts...); err != nil {
			return manager.Stage{}, h, err
		}
	}
	if h.runner, err = local.NewRunner(&cfg.Runner, opts...); err != nil {
		return manager.Stage{}, h, err
	}
	if h.reader, err = local.NewReader(&cfg.Reader, opts...); err != nil {
		return manager.Stage{}, h, err
	}

	stage := manager.Stage{Runner: h.runner, Reader: h.reader, Files: files}
	if h.writer != nil {
		stage.Writer = h.writer
	}
	return stage, h, nil
}

func hasTemplate(cfg jobconfig.WriterConfig) bool {
	return cfg.Template != "" || cfg.TemplateFile != ""
}

// restore applies what a previous process persisted for this job.
func (j *job) restore(rec *store.Record) {
	for i, h := range j.stages {
		sr := rec.Stage(i)
		if h.writer != nil && sr.WriterCompleted {
			if cfg, ok := h.writer.Settings().(*jobconfig.WriterConfig); ok {
				cfg.Completed = true
			}
		}
		if s, ok := h.reader.(completionSetter); ok && sr.ReaderCompleted {
			s.SetCompleted(true)
		}
		if cfg, ok := h.runner.Settings().(*jobconfig.RunnerConfig); ok && sr.QueueID != "" {
			cfg.QueueID = sr.QueueID
		}
	}
	j.record = rec
}

// resume loads the job's record. A record with stored settings is rebuilt
// from them and the freshly loaded description is merged in, so only safe
// changes reach a job that already started.
func resume(ctx context.Context, s store.Store, desc *jobconfig.JobDescription, logger autogen.Logger) (*job, error) {
	rec, err := s.Load(ctx, desc.ID)
	if err != nil {
		return nil, err
	}

	fresh, err := buildJob(desc, logger)
	if err != nil {
		return nil, err
	}
	fresh.store = s
	if rec == nil {
		fresh.record = store.NewRecord(desc.ID, string(desc.Pipeline))
		return fresh, nil
	}
	if len(rec.Settings) == 0 {
		fresh.restore(rec)
		return fresh, nil
	}

	var stored jobconfig.JobDescription
	if err := json.Unmarshal(rec.Settings, &stored); err != nil {
		return nil, autogen.NewError(autogen.ErrInvalidConfig, "decode stored job settings", err, map[string]any{"id": desc.ID})
	}
	if stored.Pipeline != desc.Pipeline {
		return nil, autogen.NewError(autogen.ErrConfigInconsistent, "pipeline changed after the job started", nil, map[string]any{
			"id":  desc.ID,
			"old": stored.Pipeline,
			"new": desc.Pipeline,
		})
	}
	if stored.Workdir != desc.Workdir {
		return nil, autogen.NewError(autogen.ErrConfigInconsistent, "workdir changed after the job started", nil, map[string]any{
			"id":  desc.ID,
			"old": stored.Workdir,
			"new": desc.Workdir,
		})
	}
	current, err := buildJob(&stored, logger)
	if err != nil {
		return nil, err
	}
	current.store = s
	current.restore(rec)

	changed, err := updateOptions(current.mgr, fresh.mgr)
	if err != nil {
		return nil, err
	}
	if changed {
		current.logger.Info("merged updated settings for %s", desc.ID)
	}
	return current, nil
}

func updateOptions(cur, newer manager.Manager) (bool, error) {
	switch m := cur.(type) {
	case *manager.RunManager:
		return m.UpdateOptions(newer.(*manager.RunManager))
	case *manager.TwoStageManager:
		return m.UpdateOptions(newer.(*manager.TwoStageManager))
	case *manager.ConvertManager:
		return m.UpdateOptions(newer.(*manager.ConvertManager))
	default:
		return false, fmt.Errorf("unsupported manager %T", cur)
	}
}

// Advance implements poll.Target and persists the outcome of every step.
func (j *job) Advance(ctx context.Context) error {
	advanceErr := j.mgr.Advance(ctx)
	if err := j.save(ctx); err != nil {
		if advanceErr != nil {
			j.logger.Error("save after failed advance: %v", err)
			return advanceErr
		}
		return err
	}
	return advanceErr
}

func (j *job) Status(ctx context.Context) (autogen.Status, error) {
	return j.mgr.Status(ctx)
}

func (j *job) Completed() bool {
	return j.mgr.Completed()
}

func (j *job) WriteSummary(w io.Writer) error {
	return j.mgr.WriteSummary(w)
}

// save snapshots the job into its record.
func (j *job) save(ctx context.Context) error {
	if j.store == nil {
		return nil
	}
	rec := j.record
	if rec == nil {
		rec = store.NewRecord(j.desc.ID, string(j.desc.Pipeline))
	}
	next := *rec
	next.Pipeline = string(j.desc.Pipeline)
	next.Completed = j.mgr.Completed()
	next.UpdatedAt = time.Now().UTC()
	if s, ok := j.mgr.(stater); ok {
		next.State = s.State().String()
	} else if next.Completed {
		next.State = autogen.StateDone.String()
	}
	if status, err := j.mgr.Status(ctx); err == nil {
		next.Status = string(status)
	} else {
		j.logger.Warn("status probe failed: %v", err)
	}

	next.Stages = make([]store.StageRecord, 0, len(j.stages))
	for _, h := range j.stages {
		sr := store.StageRecord{ReaderCompleted: h.reader.Completed()}
		if h.writer != nil {
			sr.WriterCompleted = h.writer.Completed()
		}
		if cfg, ok := h.runner.Settings().(*jobconfig.RunnerConfig); ok {
			sr.QueueID = cfg.QueueID
		}
		next.Stages = append(next.Stages, sr)
	}

	settings, err := json.Marshal(j.desc)
	if err != nil {
		return err
	}
	next.Settings = settings

	version, err := j.store.SaveIfVersion(ctx, &next, rec.Version)
	if err != nil {
		return err
	}
	next.Version = version
	j.record = &next
	return nil
}
