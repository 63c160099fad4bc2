package sqlite

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/relicore/toil"
	"github.com/relicore/toil/id"
	"github.com/relicore/toil/job"
)

type jobModel struct {
	bun.BaseModel `bun:"table:toil_jobs"`

	ID           string     `bun:"id,pk"`
	Type         string     `bun:"type,notnull"`
	Payload      []byte     `bun:"payload,type:blob"`
	Status       string     `bun:"status,notnull,default:'pending'"`
	Priority     int        `bun:"priority,notnull,default:10"`
	MaxRetries   int        `bun:"max_retries,notnull,default:3"`
	RetryCount   int        `bun:"retry_count,notnull,default:0"`
	LastError    string     `bun:"last_error,notnull,default:''"`
	Result       []byte     `bun:"result,type:blob"`
	DurationMS   int64      `bun:"duration_ms,notnull,default:0"`
	WorkerID     string     `bun:"worker_id,nullzero"`
	ScheduledFor time.Time  `bun:"scheduled_for,notnull"`
	StartedAt    *time.Time `bun:"started_at"`
	CompletedAt  *time.Time `bun:"completed_at"`
	TimeoutMS    int64      `bun:"timeout_ms,notnull,default:0"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:           j.ID.String(),
		Type:         j.Type,
		Payload:      j.Payload,
		Status:       string(j.State),
		Priority:     int(j.Priority),
		MaxRetries:   j.MaxRetries,
		RetryCount:   j.RetryCount,
		LastError:    j.LastError,
		Result:       j.Result,
		DurationMS:   j.Duration.Milliseconds(),
		WorkerID:     j.WorkerID.String(),
		ScheduledFor: j.RunAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		TimeoutMS:    j.Timeout.Milliseconds(),
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("toil/sqlite: parse job id %q: %w", m.ID, err)
	}

	j := &job.Job{
		Entity: toil.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		Type:        m.Type,
		Payload:     m.Payload,
		State:       job.State(m.Status),
		Priority:    job.Priority(m.Priority),
		MaxRetries:  m.MaxRetries,
		RetryCount:  m.RetryCount,
		LastError:   m.LastError,
		Result:      m.Result,
		Duration:    time.Duration(m.DurationMS) * time.Millisecond,
		RunAt:       m.ScheduledFor,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		Timeout:     time.Duration(m.TimeoutMS) * time.Millisecond,
	}

	if m.WorkerID != "" {
		parsedWorker, wErr := id.ParseWorkerID(m.WorkerID)
		if wErr == nil {
			j.WorkerID = parsedWorker
		}
	}

	return j, nil
}
