package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"property-reconciliation-backend/internal/models"
)

type ImportBatchRepository struct {
	db *gorm.DB
}

func NewImportBatchRepository(db *gorm.DB) *ImportBatchRepository {
	return &ImportBatchRepository{db: db}
}

// Start records a new batch in the processing state.
func (r *ImportBatchRepository) Start(ctx context.Context, companyID uuid.UUID, kind, source, filename string) (*models.ImportBatch, error) {
	now := time.Now().UTC()
	batch := &models.ImportBatch{
		ID:        uuid.New(),
		CompanyID: companyID,
		Kind:      kind,
		Source:    source,
		Filename:  filename,
		Status:    models.ImportStatusProcessing,
		StartedAt: now,
		CreatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(batch).Error; err != nil {
		return nil, fmt.Errorf("create import batch: %w", err)
	}
	return batch, nil
}

func (r *ImportBatchRepository) UpdateProgress(ctx context.Context, id uuid.UUID, total, imported, skipped int) error {
	return r.db.WithContext(ctx).Model(&models.ImportBatch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_rows":     total,
			"imported_count": imported,
			"skipped_count":  skipped,
		}).Error
}

// Complete stores the final counts. A non-nil cause marks the batch failed.
func (r *ImportBatchRepository) Complete(ctx context.Context, id uuid.UUID, total, imported, skipped int, cause error) error {
	status, msg := models.ImportStatusCompleted, ""
	if cause != nil {
		status, msg = models.ImportStatusFailed, cause.Error()
	}
	return r.db.WithContext(ctx).Model(&models.ImportBatch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_rows":     total,
			"imported_count": imported,
			"skipped_count":  skipped,
			"status":         status,
			"error_message":  msg,
			"completed_at":   time.Now().UTC(),
		}).Error
}

func (r *ImportBatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get import batch %s: %w", id, err)
	}
	return &batch, nil
}
