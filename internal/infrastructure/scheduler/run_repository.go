package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/utilitybilling/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormJobRecorder stores job runs in scheduler_job_runs
type GormJobRecorder struct {
	db *gorm.DB
}

// NewGormJobRecorder creates a new GormJobRecorder
func NewGormJobRecorder(db *gorm.DB) *GormJobRecorder {
	return &GormJobRecorder{db: db}
}

// RecordStart inserts a row for the attempt that is starting
func (r *GormJobRecorder) RecordStart(ctx context.Context, job *Job) error {
	rec := models.JobRunModel{
		ID:        runID(job),
		JobID:     job.ID,
		Kind:      string(job.Kind),
		Attempt:   job.RetryCount + 1,
		Status:    string(job.Status),
		StartedAt: derefTime(job.StartedAt),
	}
	if job.Kind == JobGenerateBills {
		rec.Period = job.Period.String()
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("record job start: %w", err)
	}
	return nil
}

// RecordFinish stores the outcome of the current attempt
func (r *GormJobRecorder) RecordFinish(ctx context.Context, job *Job) error {
	err := r.db.WithContext(ctx).Model(&models.JobRunModel{}).
		Where("id = ?", runID(job)).
		Updates(map[string]any{
			"status":       string(job.Status),
			"summary":      job.Summary,
			"error":        job.Error,
			"completed_at": job.CompletedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("record job finish: %w", err)
	}
	return nil
}

// LastRun returns the most recent attempt of kind, or nil if it never ran
func (r *GormJobRecorder) LastRun(ctx context.Context, kind JobKind) (*models.JobRunModel, error) {
	var rec models.JobRunModel
	err := r.db.WithContext(ctx).
		Where("kind = ?", string(kind)).
		Order("started_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load last job run: %w", err)
	}
	return &rec, nil
}

// History returns the latest attempts of every kind, newest first
func (r *GormJobRecorder) History(ctx context.Context, limit int) ([]models.JobRunModel, error) {
	if limit <= 0 {
		limit = 20
	}
	var recs []models.JobRunModel
	err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("load job runs: %w", err)
	}
	return recs, nil
}

// runID is stable per attempt so start and finish address the same row
func runID(job *Job) uuid.UUID {
	return uuid.NewSHA1(job.ID, fmt.Appendf(nil, "attempt-%d", job.RetryCount+1))
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Now().UTC()
	}
	return *t
}

var _ JobRecorder = (*GormJobRecorder)(nil)
