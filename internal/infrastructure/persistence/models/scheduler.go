package models

import (
	"time"

	"github.com/google/uuid"
)

// JobRunModel is one attempt of a scheduled job
type JobRunModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key"`
	JobID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	Kind        string     `gorm:"type:varchar(30);not null;index:idx_job_runs_kind_started,priority:1"`
	Period      string     `gorm:"type:varchar(7)"`
	Attempt     int        `gorm:"not null;default:1"`
	Status      string     `gorm:"type:varchar(20);not null"`
	Summary     string     `gorm:"type:text"`
	Error       string     `gorm:"type:text"`
	StartedAt   time.Time  `gorm:"not null;index:idx_job_runs_kind_started,priority:2"`
	CompletedAt *time.Time `gorm:""`
}

// TableName returns the table name for GORM
func (JobRunModel) TableName() string {
	return "scheduler_job_runs"
}
