package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	autogen "github.com/goliatone/go-autogen"
	"github.com/goliatone/go-autogen/cron"
	"github.com/goliatone/go-autogen/jobconfig"
	"github.com/goliatone/go-autogen/poll"
	"github.com/goliatone/go-autogen/reconcile"
	"github.com/goliatone/go-autogen/store"
)

// DefaultSchedule polls watched jobs when the job file names no schedule.
const DefaultSchedule = "@every 30s"

type AdvanceCmd struct {
	IDs      []string      `arg:"" optional:"" name:"job" help:"Job ids to advance, all when omitted."`
	Summary  bool          `help:"Print a summary of completed jobs."`
	Wait     bool          `help:"Keep advancing each job until it finishes."`
	Interval time.Duration `default:"30s" help:"Pause between steps with --wait."`
}

func (c *AdvanceCmd) Run(rt *runtime) error {
	set, err := rt.loadJobs()
	if err != nil {
		return err
	}
	s, closeStore, err := rt.openStore(set)
	if err != nil {
		return err
	}
	defer closeStore()

	descs, err := selectJobs(set, c.IDs)
	if err != nil {
		return err
	}

	var failed []error
	for _, desc := range descs {
		j, err := resume(rt.ctx, s, desc, rt.logger)
		if err != nil {
			rt.logger.Error("%s: %v", desc.ID, err)
			failed = append(failed, jobError(desc.ID, err))
			continue
		}
		h := newPollHandler(j, set.Poll, rt.logger)
		var status autogen.Status
		if c.Wait {
			status, err = h.Until(rt.ctx, c.Interval)
		} else {
			status, err = h.Poll(rt.ctx)
		}
		if err != nil {
			failed = append(failed, jobError(desc.ID, err))
		}
		fmt.Fprintf(rt.out, "%s\t%s\n", desc.ID, status)
		if c.Summary && j.Completed() {
			if err := j.WriteSummary(rt.out); err != nil {
				return err
			}
		}
	}
	return errors.Join(failed...)
}

// jobError prefixes err with the job id and keeps it unwrappable, so text
// codes such as CONFIG_INCONSISTENT still reach the caller.
func jobError(id string, err error) error {
	return fmt.Errorf("job %s: %w", id, err)
}

type WatchCmd struct {
	IDs      []string      `arg:"" optional:"" name:"job" help:"Job ids to watch, all when omitted."`
	Schedule string        `help:"Cron expression overriding the job file schedule."`
	Seconds  bool          `help:"Parse schedules with a leading seconds field."`
	For      time.Duration `help:"Give up after this long, zero waits until every job finishes."`
}

func (c *WatchCmd) Run(rt *runtime) error {
	set, err := rt.loadJobs()
	if err != nil {
		return err
	}
	s, closeStore, err := rt.openStore(set)
	if err != nil {
		return err
	}
	defer closeStore()

	descs, err := selectJobs(set, c.IDs)
	if err != nil {
		return err
	}

	expression := firstNonEmpty(c.Schedule, set.Poll.Schedule, DefaultSchedule)
	parser := cron.DefaultParser
	if c.Seconds {
		parser = cron.SecondsParser
	}
	scheduler := cron.NewScheduler(
		cron.WithLogger(rt.logger),
		cron.WithLogLevel(cron.LogLevelError),
		cron.WithParser(parser),
		cron.WithErrorHandler(func(err error) { rt.logger.Error("watch: %v", err) }),
	)

	jobs := make(map[string]*job, len(descs))
	handles := make([]cron.Handle, 0, len(descs))
	ids := make(map[int64]string, len(descs))
	for _, desc := range descs {
		j, err := resume(rt.ctx, s, desc, rt.logger)
		if err != nil {
			return err
		}
		if j.Completed() {
			fmt.Fprintf(rt.out, "%s\t%s\n", desc.ID, autogen.StatusOK)
			continue
		}
		handle, err := scheduler.SchedulePoll(expression, newPollHandler(j, set.Poll, rt.logger))
		if err != nil {
			return err
		}
		jobs[desc.ID] = j
		handles = append(handles, handle)
		ids[handle.ID()] = desc.ID
	}
	if len(handles) == 0 {
		return nil
	}

	rt.logger.Info("watching %d job(s) on %q", len(handles), expression)
	if err := scheduler.Start(rt.ctx); err != nil {
		return err
	}

	ctx := rt.ctx
	if c.For > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, c.For)
		defer cancel()
	}
	waitErr := scheduler.Wait(ctx, handles...)
	if err := scheduler.Stop(rt.ctx); err != nil {
		return err
	}

	var failed []string
	for _, h := range handles {
		id := ids[h.ID()]
		fmt.Fprintf(rt.out, "%s\t%s\n", id, h.Status())
		switch h.Status() {
		case cron.ScheduleStatusCompleted:
			if err := jobs[id].WriteSummary(rt.out); err != nil {
				return err
			}
		case cron.ScheduleStatusFailed:
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("jobs failed: %s", strings.Join(failed, ", "))
	}
	return waitErr
}

type StatusCmd struct{}

func (c *StatusCmd) Run(rt *runtime) error {
	var set *jobconfig.JobSet
	if rt.cli.Store == "" {
		loaded, err := rt.loadJobs()
		if err != nil {
			return err
		}
		set = loaded
	}
	s, closeStore, err := rt.openStore(set)
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := s.List(rt.ctx)
	if err != nil {
		return err
	}
	return writeRecords(rt, records)
}

func writeRecords(rt *runtime, records []*store.Record) error {
	tw := tabwriter.NewWriter(rt.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tPIPELINE\tSTATE\tSTATUS\tVERSION\tUPDATED")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			rec.JobID, rec.Pipeline, rec.State, rec.Status, rec.Version,
			rec.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

type DiffCmd struct {
	Old string `arg:"" type:"existingfile" help:"Job file the jobs were started from."`
	New string `arg:"" type:"existingfile" help:"Updated job file."`
}

func (c *DiffCmd) Run(rt *runtime) error {
	oldSet, newSet, err := loadPair(c.Old, c.New)
	if err != nil {
		return err
	}
	for _, pair := range pairJobs(oldSet, newSet, rt) {
		for _, part := range settingsOf(pair.old, pair.new) {
			same, d, err := reconcile.Compare(part.old, part.new)
			if err != nil {
				return err
			}
			if same {
				continue
			}
			classes, err := reconcile.KeyClasses(part.old)
			if err != nil {
				return err
			}
			for _, key := range d.Keys() {
				fmt.Fprintf(rt.out, "%s\t%s\t%s\t%s\n", pair.id, part.name, key, classOf(classes, key))
			}
		}
	}
	return nil
}

type MergeCmd struct {
	Old    string `arg:"" type:"existingfile" help:"Job file the jobs were started from."`
	New    string `arg:"" type:"existingfile" help:"Updated job file."`
	Output string `short:"o" type:"path" help:"Write the merged job file here instead of stdout."`
}

func (c *MergeCmd) Run(rt *runtime) error {
	oldSet, newSet, err := loadPair(c.Old, c.New)
	if err != nil {
		return err
	}

	// validate every job first so a rejected merge leaves nothing half applied
	pairs := pairJobs(oldSet, newSet, rt)
	for _, pair := range pairs {
		for _, part := range settingsOf(pair.old, pair.new) {
			_, d, err := reconcile.Compare(part.old, part.new)
			if err != nil {
				return err
			}
			if unsafe := unsafeKeys(part.old, d); len(unsafe) > 0 {
				return autogen.NewError(autogen.ErrConfigInconsistent, "", nil, map[string]any{
					"job":         pair.id,
					"settings":    part.name,
					"unsafe_keys": unsafe,
				})
			}
		}
	}
	for _, pair := range pairs {
		for _, part := range settingsOf(pair.old, pair.new) {
			if _, err := reconcile.Merge(part.old, part.new, reconcile.WithLogger(rt.logger)); err != nil {
				return err
			}
		}
	}

	data, err := jobconfig.Encode(oldSet)
	if err != nil {
		return err
	}
	if c.Output == "" {
		_, err = rt.out.Write(data)
		return err
	}
	return os.WriteFile(c.Output, data, 0o644)
}

func newPollHandler(j *job, cfg jobconfig.PollConfig, logger autogen.Logger) *poll.Handler {
	opts := append(pollOptions(cfg), poll.WithName(j.desc.ID), poll.WithLogger(logger))
	return poll.NewHandler(j, opts...)
}

func pollOptions(cfg jobconfig.PollConfig) []poll.Option {
	return []poll.Option{
		poll.WithTimeout(cfg.Timeout),
		poll.WithMaxPolls(cfg.MaxPolls),
		poll.WithMaxRetryObservations(cfg.MaxRetries),
		poll.WithMaxRetries(cfg.MaxErrors),
		poll.WithRetryStrategy(poll.ExponentialBackoffStrategy{Base: time.Second, Factor: 2, Max: time.Minute}),
	}
}

func selectJobs(set *jobconfig.JobSet, ids []string) ([]*jobconfig.JobDescription, error) {
	if len(ids) == 0 {
		out := make([]*jobconfig.JobDescription, 0, len(set.Jobs))
		for i := range set.Jobs {
			out = append(out, &set.Jobs[i])
		}
		return out, nil
	}
	out := make([]*jobconfig.JobDescription, 0, len(ids))
	for _, id := range ids {
		desc, ok := set.Job(id)
		if !ok {
			return nil, autogen.NewError(autogen.ErrInvalidConfig, "unknown job", nil, map[string]any{"id": id})
		}
		out = append(out, desc)
	}
	return out, nil
}

func loadPair(oldPath, newPath string) (*jobconfig.JobSet, *jobconfig.JobSet, error) {
	oldSet, err := jobconfig.LoadJobsFile(oldPath)
	if err != nil {
		return nil, nil, err
	}
	newSet, err := jobconfig.LoadJobsFile(newPath)
	if err != nil {
		return nil, nil, err
	}
	return oldSet, newSet, nil
}

type jobPair struct {
	id       string
	old, new *jobconfig.JobDescription
}

// pairJobs matches jobs by id, logging jobs present on one side only.
func pairJobs(oldSet, newSet *jobconfig.JobSet, rt *runtime) []jobPair {
	var pairs []jobPair
	for i := range oldSet.Jobs {
		old := &oldSet.Jobs[i]
		newer, ok := newSet.Job(old.ID)
		if !ok {
			rt.logger.Warn("job %s only in the old file", old.ID)
			continue
		}
		pairs = append(pairs, jobPair{id: old.ID, old: old, new: newer})
	}
	for i := range newSet.Jobs {
		if _, ok := oldSet.Job(newSet.Jobs[i].ID); !ok {
			rt.logger.Warn("job %s only in the new file", newSet.Jobs[i].ID)
		}
	}
	return pairs
}

type settingsPart struct {
	name     string
	old, new any
}

// settingsOf lists the reconcilable settings of two descriptions of a job,
// runner before writer as option updates apply them.
func settingsOf(old, newer *jobconfig.JobDescription) []settingsPart {
	parts := []settingsPart{
		{name: "runner", old: &old.Stage.Runner, new: &newer.Stage.Runner},
		{name: "writer", old: &old.Stage.Writer, new: &newer.Stage.Writer},
		{name: "reader", old: &old.Stage.Reader, new: &newer.Stage.Reader},
	}
	if old.Dependent != nil && newer.Dependent != nil {
		parts = append(parts,
			settingsPart{name: "dependent.runner", old: &old.Dependent.Runner, new: &newer.Dependent.Runner},
			settingsPart{name: "dependent.writer", old: &old.Dependent.Writer, new: &newer.Dependent.Writer},
			settingsPart{name: "dependent.reader", old: &old.Dependent.Reader, new: &newer.Dependent.Reader},
		)
	}
	return parts
}

func unsafeKeys(settings any, d reconcile.Diff) []string {
	classes, err := reconcile.KeyClasses(settings)
	if err != nil {
		return d.Keys()
	}
	var out []string
	for _, key := range d.Keys() {
		if classOf(classes, key) != reconcile.ClassSafe {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// classOf looks key up, falling back to its parent keys.
func classOf(classes map[string]reconcile.Class, key string) reconcile.Class {
	for {
		if cls, ok := classes[key]; ok {
			return cls
		}
		i := strings.LastIndex(key, ".")
		if i < 0 {
			return reconcile.ClassUnsafe
		}
		key = key[:i]
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
