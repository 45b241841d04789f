package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/resume-coach/internal/models"
)

var ErrNotFound = errors.New("record not found")

type GenerationJobRepository interface {
	Create(job *models.GenerationJob) error
	FindByID(id uuid.UUID) (*models.GenerationJob, error)
	Claim(id uuid.UUID) (bool, error)
	Requeue(id uuid.UUID) error
	UpdateResult(id uuid.UUID, result string) error
	UpdateError(id uuid.UUID, kind, errorMsg string) error
	FindPendingJobs(limit int) ([]models.GenerationJob, error)
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

type generationJobRepository struct {
	db *gorm.DB
}

func NewGenerationJobRepository(db *gorm.DB) GenerationJobRepository {
	return &generationJobRepository{db: db}
}

func (r *generationJobRepository) Create(job *models.GenerationJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.StatusQueued
	}
	if err := r.db.Create(job).Error; err != nil {
		return fmt.Errorf("failed to create generation job: %w", err)
	}
	return nil
}

func (r *generationJobRepository) FindByID(id uuid.UUID) (*models.GenerationJob, error) {
	var job models.GenerationJob
	if err := r.db.Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("generation job %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find generation job: %w", err)
	}
	return &job, nil
}

// Claim moves a queued job to processing. It reports false when another
// worker got there first.
func (r *generationJobRepository) Claim(id uuid.UUID) (bool, error) {
	result := r.db.Model(&models.GenerationJob{}).
		Where("id = ? AND status = ?", id, models.StatusQueued).
		Updates(map[string]interface{}{
			"status":     models.StatusProcessing,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return false, fmt.Errorf("failed to claim job: %w", result.Error)
	}

	return result.RowsAffected == 1, nil
}

func (r *generationJobRepository) Requeue(id uuid.UUID) error {
	return r.update(id, map[string]interface{}{
		"status":     models.StatusQueued,
		"updated_at": time.Now(),
	})
}

func (r *generationJobRepository) UpdateResult(id uuid.UUID, result string) error {
	return r.update(id, map[string]interface{}{
		"status":        models.StatusCompleted,
		"result":        result,
		"error_kind":    nil,
		"error_message": nil,
		"updated_at":    time.Now(),
	})
}

func (r *generationJobRepository) UpdateError(id uuid.UUID, kind, errorMsg string) error {
	return r.update(id, map[string]interface{}{
		"status":        models.StatusFailed,
		"error_kind":    kind,
		"error_message": errorMsg,
		"updated_at":    time.Now(),
	})
}

func (r *generationJobRepository) FindPendingJobs(limit int) ([]models.GenerationJob, error) {
	var jobs []models.GenerationJob
	err := r.db.
		Where("status = ?", models.StatusQueued).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error

	if err != nil {
		return nil, fmt.Errorf("failed to find pending jobs: %w", err)
	}

	return jobs, nil
}

// DeleteOlderThan purges finished jobs last touched before cutoff.
func (r *generationJobRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := r.db.
		Where("status IN ? AND updated_at < ?", []models.JobStatus{models.StatusCompleted, models.StatusFailed}, cutoff).
		Delete(&models.GenerationJob{})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge generation jobs: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func (r *generationJobRepository) update(id uuid.UUID, updates map[string]interface{}) error {
	result := r.db.Model(&models.GenerationJob{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		return fmt.Errorf("failed to update generation job: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("generation job %s: %w", id, ErrNotFound)
	}

	return nil
}
