// Package cron triggers poll handlers on cron expressions.
package cron

import (
	"context"
	"io"
	"log"
	"os"
	"sync"
	"time"

	autogen "github.com/goliatone/go-autogen"
	"github.com/goliatone/go-autogen/poll"

	rcron "github.com/robfig/cron/v3"
)

// Runnable is one scheduled unit of work.
type Runnable func(ctx context.Context) error

// Scheduler wraps cron functionality.
type Scheduler struct {
	mu           sync.Mutex
	cron         *rcron.Cron
	location     *time.Location
	errorHandler func(error)

	logger    autogen.Logger
	parser    Parser
	logWriter io.Writer
	logLevel  LogLevel

	nextHandleID int64
	handles      map[int64]*jobHandle
}

// NewScheduler creates a new scheduler instance with the provided options.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		location: time.Local,
		parser:   DefaultParser,
		logLevel: LogLevelError,
		errorHandler: func(err error) {
			log.Printf("error: %v\n", err)
		},
		handles: make(map[int64]*jobHandle),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.cron = rcron.New(s.build()...)
	return s
}

// ScheduleCron runs fn on every tick of expression until canceled.
// A tick that fires while the previous one still runs is skipped. Err
// reports the error of the last failed tick.
func (s *Scheduler) ScheduleCron(expression string, fn Runnable) (Handle, error) {
	if fn == nil {
		return nil, autogen.NewError(autogen.ErrInvalidConfig, "cron job cannot be nil", nil, nil)
	}
	return s.schedule(expression, func(ctx context.Context, _ *jobHandle) error {
		return fn(ctx)
	})
}

// SchedulePoll polls h on every tick. The handle completes once the target
// reports ok and fails when the handler hits a poll limit. Other poll errors
// are reported and polling continues.
func (s *Scheduler) SchedulePoll(expression string, h *poll.Handler) (Handle, error) {
	if h == nil {
		return nil, autogen.NewError(autogen.ErrInvalidConfig, "poll handler cannot be nil", nil, nil)
	}
	return s.schedule(expression, func(ctx context.Context, sub *jobHandle) error {
		status, err := h.Poll(ctx)
		switch {
		case autogen.ErrorCode(err) == autogen.ErrCodePollLimit:
			s.finish(sub, ScheduleStatusFailed, err)
		case err != nil:
			return err
		case status == autogen.StatusOK:
			s.finish(sub, ScheduleStatusCompleted, nil)
		}
		return nil
	})
}

func (s *Scheduler) schedule(expression string, fn func(context.Context, *jobHandle) error) (Handle, error) {
	if expression == "" {
		return nil, autogen.NewError(autogen.ErrInvalidConfig, "cron expression cannot be empty", nil, nil)
	}

	sub := s.newHandle()
	job := rcron.FuncJob(func() {
		if !sub.begin() {
			return
		}
		err := fn(context.Background(), sub)
		// a failed tick is recorded, the schedule stays active
		sub.settle(err)
		if err != nil {
			s.errorHandler(err)
		}
	})

	entryID, err := s.cron.AddJob(expression, rcron.NewChain(rcron.SkipIfStillRunning(s.cronLogger())).Then(job))
	if err != nil {
		return nil, autogen.NewError(autogen.ErrInvalidConfig, "invalid cron expression", err, map[string]any{
			"expression": expression,
		})
	}
	s.mu.Lock()
	sub.entryID = int(entryID)
	s.mu.Unlock()
	s.storeHandle(sub)
	return sub, nil
}

// ScheduleAfter schedules one execution after delay.
func (s *Scheduler) ScheduleAfter(delay time.Duration, fn Runnable) (Handle, error) {
	if delay < 0 {
		delay = 0
	}
	return s.ScheduleAt(time.Now().Add(delay), fn)
}

// ScheduleAt schedules one execution at a specific time.
func (s *Scheduler) ScheduleAt(at time.Time, fn Runnable) (Handle, error) {
	if fn == nil {
		return nil, autogen.NewError(autogen.ErrInvalidConfig, "job cannot be nil", nil, nil)
	}

	sub := s.newHandle()
	s.storeHandle(sub)

	go func() {
		wait := time.Until(at)
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-sub.Done():
			return
		}

		if !sub.begin() {
			return
		}
		defer s.removeStoredHandle(sub.id)
		if err := fn(context.Background()); err != nil {
			sub.setTerminal(ScheduleStatusFailed, err)
			s.errorHandler(err)
			return
		}
		sub.setTerminal(ScheduleStatusCompleted, nil)
	}()

	return sub, nil
}

// Wait blocks until every handle is done or ctx ends.
func (s *Scheduler) Wait(ctx context.Context, handles ...Handle) error {
	for _, h := range handles {
		if h == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.Done():
		}
	}
	return nil
}

// Start begins executing scheduled cron jobs.
func (s *Scheduler) Start(_ context.Context) error {
	s.cron.Start()
	return nil
}

// Stop stops executing scheduled jobs and marks active handles as stopped.
func (s *Scheduler) Stop(_ context.Context) error {
	<-s.cron.Stop().Done()

	var handles []*jobHandle
	s.mu.Lock()
	for _, handle := range s.handles {
		handles = append(handles, handle)
	}
	s.handles = make(map[int64]*jobHandle)
	s.mu.Unlock()

	for _, handle := range handles {
		if handle == nil {
			continue
		}
		if handle.entryID > 0 {
			s.cron.Remove(rcron.EntryID(handle.entryID))
		}
		handle.setTerminal(ScheduleStatusStopped, nil)
	}
	return nil
}

func (s *Scheduler) finish(sub *jobHandle, status ScheduleStatus, err error) {
	if sub == nil {
		return
	}
	s.removeHandle(sub.id)
	sub.setTerminal(status, err)
	if err != nil {
		s.errorHandler(err)
	}
}

func (s *Scheduler) removeHandle(id int64) {
	handle := s.removeStoredHandle(id)
	if handle == nil {
		return
	}
	if handle.entryID > 0 {
		s.cron.Remove(rcron.EntryID(handle.entryID))
	}
}

func (s *Scheduler) removeStoredHandle(id int64) *jobHandle {
	if s == nil || id == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	handle := s.handles[id]
	delete(s.handles, id)
	return handle
}

func (s *Scheduler) storeHandle(handle *jobHandle) {
	if s == nil || handle == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handles == nil {
		s.handles = make(map[int64]*jobHandle)
	}
	s.handles[handle.id] = handle
}

func (s *Scheduler) newHandle() *jobHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandleID++
	return &jobHandle{
		scheduler: s,
		id:        s.nextHandleID,
		status:    ScheduleStatusScheduled,
		done:      make(chan struct{}),
	}
}

func makeLogger(out io.Writer, level LogLevel) rcron.Logger {
	stdLogger := log.New(out, "cron: ", log.LstdFlags)
	cronLogger := rcron.PrintfLogger(stdLogger)
	if level >= LogLevelDebug {
		cronLogger = rcron.VerbosePrintfLogger(stdLogger)
	}
	return cronLogger
}

func (s *Scheduler) cronLogger() rcron.Logger {
	switch {
	case s.logger != nil:
		return &loggerAdapter{logger: s.logger, level: s.logLevel}
	case s.logWriter != nil:
		return makeLogger(s.logWriter, s.logLevel)
	case s.logLevel > LogLevelSilent:
		return makeLogger(os.Stdout, s.logLevel)
	default:
		return rcron.DiscardLogger
	}
}

// build converts implementation-agnostic options to rcron options.
func (s *Scheduler) build() []rcron.Option {
	opts := make([]rcron.Option, 0)

	if s.location != nil {
		opts = append(opts, rcron.WithLocation(s.location))
	}

	switch s.parser {
	case StandardParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	case SecondsParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Second|rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	}

	if s.errorHandler != nil {
		opts = append(opts, rcron.WithChain(
			rcron.Recover(&errorHandlerAdapter{handler: s.errorHandler}),
		))
	}

	opts = append(opts, rcron.WithLogger(s.cronLogger()))
	return opts
}
