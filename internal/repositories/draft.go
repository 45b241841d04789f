package repositories

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alfredoptarigan/resume-coach/internal/models"
)

type DraftRepository interface {
	Upsert(draft *models.Draft) error
	FindBySessionID(sessionID string) (*models.Draft, error)
	Delete(sessionID string) error
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

type draftRepository struct {
	db *gorm.DB
}

func NewDraftRepository(db *gorm.DB) DraftRepository {
	return &draftRepository{db: db}
}

// Upsert implements DraftRepository.
func (d *draftRepository) Upsert(draft *models.Draft) error {
	err := d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(draft).Error
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}

	return nil
}

// FindBySessionID implements DraftRepository.
func (d *draftRepository) FindBySessionID(sessionID string) (*models.Draft, error) {
	var draft models.Draft
	if err := d.db.Where("session_id = ?", sessionID).First(&draft).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("draft %s: %w", sessionID, ErrNotFound)
		}

		return nil, fmt.Errorf("failed to find draft: %w", err)
	}

	return &draft, nil
}

// Delete implements DraftRepository. Deleting a missing draft is not an error.
func (d *draftRepository) Delete(sessionID string) error {
	if err := d.db.Where("session_id = ?", sessionID).Delete(&models.Draft{}).Error; err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}

	return nil
}

// DeleteOlderThan implements DraftRepository.
func (d *draftRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := d.db.Where("updated_at < ?", cutoff).Delete(&models.Draft{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge drafts: %w", result.Error)
	}

	return result.RowsAffected, nil
}
