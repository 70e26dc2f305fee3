// Package store persists job records between CLI invocations so a watched
// job resumes from the lifecycle it last reached.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	autogen "github.com/goliatone/go-autogen"
	apperrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const ErrCodeVersionConflict = "RECORD_VERSION_CONFLICT"

// ErrVersionConflict indicates an optimistic-lock compare-and-set failure.
var ErrVersionConflict = apperrors.New("job record version conflict", apperrors.CategoryConflict).
	WithTextCode(ErrCodeVersionConflict)

// StageRecord is what the collaborators of one stage remember.
type StageRecord struct {
	WriterCompleted bool   `json:"writer_completed"`
	ReaderCompleted bool   `json:"reader_completed"`
	QueueID         string `json:"queue_id,omitempty"`
}

// Record is the persisted row for a job.
type Record struct {
	JobID     string
	RunID     string
	Pipeline  string
	State     string
	Status    string
	Completed bool
	Stages    []StageRecord
	Settings  json.RawMessage
	Version   int
	UpdatedAt time.Time
}

// Store persists job records with optimistic locking.
type Store interface {
	Load(ctx context.Context, jobID string) (*Record, error)
	SaveIfVersion(ctx context.Context, rec *Record, expectedVersion int) (newVersion int, err error)
	List(ctx context.Context) ([]*Record, error)
}

// NewRecord starts a record for a job with a fresh run id.
func NewRecord(jobID, pipeline string) *Record {
	return &Record{
		JobID:    jobID,
		RunID:    uuid.NewString(),
		Pipeline: pipeline,
		State:    autogen.StateNotStarted.String(),
		Status:   string(autogen.StatusNotFinished),
	}
}

// Stage returns the i-th stage record, or a zero value.
func (r *Record) Stage(i int) StageRecord {
	if r == nil || i < 0 || i >= len(r.Stages) {
		return StageRecord{}
	}
	return r.Stages[i]
}

func cloneRecord(rec *Record) *Record {
	if rec == nil {
		return nil
	}
	out := *rec
	out.Stages = append([]StageRecord(nil), rec.Stages...)
	out.Settings = append(json.RawMessage(nil), rec.Settings...)
	return &out
}

// normalize validates rec and fills defaults shared by every backend.
func normalize(rec *Record, expectedVersion int) (*Record, int, error) {
	rec = cloneRecord(rec)
	if rec == nil {
		return nil, 0, autogen.NewError(autogen.ErrInvalidConfig, "job record required", nil, nil)
	}
	rec.JobID = strings.TrimSpace(rec.JobID)
	if rec.JobID == "" {
		return nil, 0, autogen.NewError(autogen.ErrInvalidConfig, "job record id required", nil, nil)
	}
	if rec.State == "" {
		rec.State = autogen.StateNotStarted.String()
	}
	if _, err := autogen.ParseLifecycleState(rec.State); err != nil {
		return nil, 0, err
	}
	if rec.RunID == "" {
		rec.RunID = uuid.NewString()
	}
	if expectedVersion < 0 {
		expectedVersion = 0
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	return rec, expectedVersion, nil
}
