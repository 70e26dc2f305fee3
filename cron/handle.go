package cron

import (
	"sync"
	"time"
)

// ScheduleStatus reports a schedule handle state.
type ScheduleStatus string

const (
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	ScheduleStatusRunning   ScheduleStatus = "running"
	ScheduleStatusIdle      ScheduleStatus = "idle"
	ScheduleStatusCompleted ScheduleStatus = "completed"
	ScheduleStatusCanceled  ScheduleStatus = "canceled"
	ScheduleStatusFailed    ScheduleStatus = "failed"
	ScheduleStatusStopped   ScheduleStatus = "stopped"
)

// Terminal reports whether no further runs will happen.
func (s ScheduleStatus) Terminal() bool {
	switch s {
	case ScheduleStatusCompleted, ScheduleStatusCanceled, ScheduleStatusFailed, ScheduleStatusStopped:
		return true
	}
	return false
}

// Handle tracks one scheduled job. Done closes once the job reaches a
// terminal status.
type Handle interface {
	ID() int64
	Status() ScheduleStatus
	Err() error
	Runs() int
	LastRun() time.Time
	Done() <-chan struct{}
	Cancel()
}

type jobHandle struct {
	id        int64
	entryID   int
	scheduler *Scheduler
	done      chan struct{}

	mu      sync.Mutex
	status  ScheduleStatus
	err     error
	runs    int
	lastRun time.Time
}

func (h *jobHandle) ID() int64 { return h.id }

func (h *jobHandle) Status() ScheduleStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Err is the error of the last failed run, or the error that ended the job.
func (h *jobHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Runs counts started runs.
func (h *jobHandle) Runs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs
}

func (h *jobHandle) LastRun() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastRun
}

func (h *jobHandle) Done() <-chan struct{} { return h.done }

func (h *jobHandle) Cancel() {
	if h.scheduler != nil {
		h.scheduler.removeHandle(h.id)
	}
	h.setTerminal(ScheduleStatusCanceled, nil)
}

// begin marks a run as started. It reports false once the handle is terminal.
func (h *jobHandle) begin() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.Terminal() {
		return false
	}
	h.status = ScheduleStatusRunning
	h.runs++
	h.lastRun = time.Now()
	return true
}

// settle records the outcome of a run unless it already ended the handle.
func (h *jobHandle) settle(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.Terminal() {
		return
	}
	h.status = ScheduleStatusIdle
	h.err = err
}

// setTerminal ends the handle. Only the first terminal status sticks.
func (h *jobHandle) setTerminal(status ScheduleStatus, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.Terminal() {
		return
	}
	h.status = status
	h.err = err
	close(h.done)
}
