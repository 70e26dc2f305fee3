package cron

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	autogen "github.com/goliatone/go-autogen"
	"github.com/goliatone/go-autogen/poll"
)

type stepTarget struct {
	mu            sync.Mutex
	advances      int
	completeAfter int
	status        autogen.Status
	err           error
}

func (s *stepTarget) Advance(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advances++
	return s.err
}

func (s *stepTarget) Status(context.Context) (autogen.Status, error) {
	if s.Completed() {
		return autogen.StatusOK, nil
	}
	if s.status != "" {
		return s.status, nil
	}
	return autogen.StatusNotFinished, nil
}

func (s *stepTarget) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completeAfter > 0 && s.advances >= s.completeAfter
}

func (s *stepTarget) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advances
}

func quietScheduler(opts ...Option) *Scheduler {
	opts = append([]Option{WithErrorHandler(nil), WithParser(SecondsParser)}, opts...)
	return NewScheduler(opts...)
}

func waitDone(t *testing.T, h Handle, within time.Duration) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(within):
		t.Fatalf("handle %d not done after %s, status %s", h.ID(), within, h.Status())
	}
}

func TestScheduleAfterCompletesAndReportsStatus(t *testing.T) {
	scheduler := quietScheduler()
	var count atomic.Int32

	handle, err := scheduler.ScheduleAfter(50*time.Millisecond, func(context.Context) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("schedule after: %v", err)
	}

	waitDone(t, handle, time.Second)

	if got := count.Load(); got != 1 {
		t.Fatalf("expected one execution, got %d", got)
	}
	if status := handle.Status(); status != ScheduleStatusCompleted {
		t.Fatalf("expected completed status, got %s", status)
	}
}

func TestScheduleAfterFailureIsReported(t *testing.T) {
	var reported atomic.Int32
	scheduler := quietScheduler(WithErrorHandler(func(error) { reported.Add(1) }))
	boom := errors.New("submit failed")

	handle, err := scheduler.ScheduleAfter(0, func(context.Context) error { return boom })
	if err != nil {
		t.Fatalf("schedule after: %v", err)
	}

	waitDone(t, handle, time.Second)

	if handle.Status() != ScheduleStatusFailed {
		t.Fatalf("expected failed status, got %s", handle.Status())
	}
	if !errors.Is(handle.Err(), boom) {
		t.Fatalf("expected handle error %v, got %v", boom, handle.Err())
	}
	if reported.Load() != 1 {
		t.Fatalf("expected error handler called once, got %d", reported.Load())
	}
}

func TestScheduleAtCancelPreventsExecution(t *testing.T) {
	scheduler := quietScheduler()
	var count atomic.Int32

	handle, err := scheduler.ScheduleAt(time.Now().Add(250*time.Millisecond), func(context.Context) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("schedule at: %v", err)
	}

	handle.Cancel()
	waitDone(t, handle, time.Second)

	time.Sleep(300 * time.Millisecond)
	if got := count.Load(); got != 0 {
		t.Fatalf("expected zero executions after cancel, got %d", got)
	}
	if status := handle.Status(); status != ScheduleStatusCanceled {
		t.Fatalf("expected canceled status, got %s", status)
	}
}

func TestScheduleCronCancelableHandle(t *testing.T) {
	scheduler := quietScheduler()
	var count atomic.Int32

	handle, err := scheduler.ScheduleCron("* * * * * *", func(context.Context) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("schedule cron: %v", err)
	}

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("scheduler start: %v", err)
	}
	defer scheduler.Stop(context.Background())

	deadline := time.After(2500 * time.Millisecond)
	for count.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected at least one cron run")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	handle.Cancel()
	waitDone(t, handle, time.Second)

	if status := handle.Status(); status != ScheduleStatusCanceled {
		t.Fatalf("expected canceled status, got %s", status)
	}
}

func TestScheduleCronFailedTickKeepsSchedule(t *testing.T) {
	scheduler := quietScheduler()
	var count atomic.Int32
	boom := errors.New("tick failed")

	handle, err := scheduler.ScheduleCron("* * * * * *", func(context.Context) error {
		count.Add(1)
		return boom
	})
	if err != nil {
		t.Fatalf("schedule cron: %v", err)
	}
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("scheduler start: %v", err)
	}
	defer scheduler.Stop(context.Background())

	deadline := time.After(3500 * time.Millisecond)
	for count.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected the schedule to keep ticking, got %d runs", count.Load())
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	if !errors.Is(handle.Err(), boom) {
		t.Fatalf("expected last tick error, got %v", handle.Err())
	}
	if handle.Runs() < 2 {
		t.Errorf("expected at least 2 runs, got %d", handle.Runs())
	}
	if handle.LastRun().IsZero() {
		t.Error("expected last run time")
	}
	select {
	case <-handle.Done():
		t.Fatal("a failed tick must not end the schedule")
	default:
	}
}

func TestSchedulerStopMarksHandleStopped(t *testing.T) {
	scheduler := quietScheduler()
	handle, err := scheduler.ScheduleCron("@every 5s", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("schedule cron: %v", err)
	}

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("scheduler start: %v", err)
	}
	if err := scheduler.Stop(context.Background()); err != nil {
		t.Fatalf("scheduler stop: %v", err)
	}

	waitDone(t, handle, time.Second)

	if status := handle.Status(); status != ScheduleStatusStopped {
		t.Fatalf("expected stopped status, got %s", status)
	}
}

func TestScheduleCronValidation(t *testing.T) {
	scheduler := quietScheduler()

	if _, err := scheduler.ScheduleCron("", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected empty expression error")
	}
	if _, err := scheduler.ScheduleCron("* * * * * *", nil); err == nil {
		t.Fatal("expected nil job error")
	}

	_, err := scheduler.ScheduleCron("every now and then", func(context.Context) error { return nil })
	if autogen.ErrorCode(err) != autogen.ErrCodeInvalidConfig {
		t.Fatalf("expected invalid config error, got %v", err)
	}
	if _, err := scheduler.SchedulePoll("* * * * * *", nil); err == nil {
		t.Fatal("expected nil poll handler error")
	}
	if _, err := scheduler.ScheduleAt(time.Now(), nil); err == nil {
		t.Fatal("expected nil job error")
	}
}

func TestSchedulePollCompletesWithTarget(t *testing.T) {
	scheduler := quietScheduler()
	target := &stepTarget{completeAfter: 2}
	h := poll.NewHandler(target, poll.WithLogger(autogen.NopLogger{}))

	handle, err := scheduler.SchedulePoll("* * * * * *", h)
	if err != nil {
		t.Fatalf("schedule poll: %v", err)
	}
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("scheduler start: %v", err)
	}
	defer scheduler.Stop(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := scheduler.Wait(ctx, handle); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if handle.Status() != ScheduleStatusCompleted {
		t.Fatalf("expected completed status, got %s", handle.Status())
	}
	if target.calls() != 2 {
		t.Errorf("expected 2 advances, got %d", target.calls())
	}
}

func TestSchedulePollFailsOnPollLimit(t *testing.T) {
	scheduler := quietScheduler()
	target := &stepTarget{status: autogen.StatusRetry}
	h := poll.NewHandler(target,
		poll.WithLogger(autogen.NopLogger{}),
		poll.WithErrorHandler(nil),
		poll.WithMaxRetryObservations(1),
	)

	handle, err := scheduler.SchedulePoll("* * * * * *", h)
	if err != nil {
		t.Fatalf("schedule poll: %v", err)
	}
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("scheduler start: %v", err)
	}
	defer scheduler.Stop(context.Background())

	waitDone(t, handle, 3*time.Second)

	if handle.Status() != ScheduleStatusFailed {
		t.Fatalf("expected failed status, got %s", handle.Status())
	}
	if autogen.ErrorCode(handle.Err()) != autogen.ErrCodePollLimit {
		t.Fatalf("expected poll limit error, got %v", handle.Err())
	}
}

func TestWaitHonorsContext(t *testing.T) {
	scheduler := quietScheduler()
	handle, err := scheduler.ScheduleAfter(time.Hour, func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("schedule after: %v", err)
	}
	defer handle.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := scheduler.Wait(ctx, handle, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
