package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jdziat/firmware-jobs/pkg/core"
	"github.com/jdziat/firmware-jobs/pkg/security"
)

// GormStorage implements core.Storage using GORM.
type GormStorage struct {
	db *gorm.DB
}

var _ core.Storage = (*GormStorage)(nil)

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// DB returns the underlying connection.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// IsSQLite reports whether the connection uses the sqlite dialect.
func (s *GormStorage) IsSQLite() bool {
	return s.db != nil && s.db.Dialector != nil && s.db.Dialector.Name() == "sqlite"
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Job{}, &core.Result{})
}

// CreateJob inserts a new job. An empty ID is replaced by a random UUID.
func (s *GormStorage) CreateJob(ctx context.Context, job *core.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = core.StatusPending
	}
	return s.db.WithContext(ctx).Create(job).Error
}

// GetJob retrieves a job by ID.
func (s *GormStorage) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJob writes every column of job.
func (s *GormStorage) UpdateJob(ctx context.Context, job *core.Job) error {
	return s.db.WithContext(ctx).Save(job).Error
}

// SetPID records the process id of a started job and marks it running.
func (s *GormStorage) SetPID(ctx context.Context, jobID string, pid int) error {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"pid":    pid,
			"status": core.StatusRunning,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotFound
	}
	return nil
}

// FinishJob finalizes a job. Only the first call for a job takes effect;
// later calls return ErrJobAlreadyFinished.
// Error messages are sanitized before storage.
func (s *GormStorage) FinishJob(ctx context.Context, jobID string, update core.FinishUpdate) error {
	endedAt := update.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now()
	}

	values := map[string]any{
		"finished":   true,
		"ended_at":   endedAt,
		"duration":   update.Duration,
		"status":     update.Status,
		"outcome":    update.Outcome,
		"last_error": security.SanitizeErrorMessage(update.Error),
	}
	if !update.StartedAt.IsZero() {
		values["started_at"] = update.StartedAt
	}

	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND finished = ?", jobID, false).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// Distinguish a missing row from one that was already finalized.
	var count int64
	if err := s.db.WithContext(ctx).Model(&core.Job{}).Where("id = ?", jobID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return core.ErrJobNotFound
	}
	return core.ErrJobAlreadyFinished
}

// CreateResult stores the parsed report of a job. The unique index on
// job_id rejects a second result for the same job.
func (s *GormStorage) CreateResult(ctx context.Context, result *core.Result) error {
	return s.db.WithContext(ctx).Create(result).Error
}

// GetResult retrieves the result linked to a job.
func (s *GormStorage) GetResult(ctx context.Context, jobID string) (*core.Result, error) {
	var result core.Result
	err := s.db.WithContext(ctx).First(&result, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListJobs returns the most recent jobs, optionally filtered by status.
// An empty status matches every job.
func (s *GormStorage) ListJobs(ctx context.Context, status core.JobStatus, limit int) ([]*core.Job, error) {
	var jobList []*core.Job
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&jobList).Error
	return jobList, err
}
