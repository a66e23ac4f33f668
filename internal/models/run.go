package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunPartial   = "partial"
	RunFailed    = "failed"
)

// Run matches the ops_runs table: one row per command execution against the target.
type Run struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Kind       string     `gorm:"type:text;not null;index" json:"kind"`
	RunKey     string     `gorm:"type:text" json:"run_key,omitempty"`
	Status     string     `gorm:"type:text;not null" json:"status"`
	StartedAt  time.Time  `gorm:"type:timestamptz;not null" json:"started_at"`
	FinishedAt *time.Time `gorm:"type:timestamptz" json:"finished_at,omitempty"`
	Summary    *string    `gorm:"type:jsonb" json:"summary,omitempty"`
	Error      string     `gorm:"type:text" json:"error,omitempty"`
}

func (Run) TableName() string {
	return "ops_runs"
}

func (r *Run) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = RunRunning
	}
	return
}
