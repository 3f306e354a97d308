package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"property-reconciliation-backend/internal/models"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts payments, skipping any already present for the same
// company, contract and due date.
func (r *PaymentRepository) Create(ctx context.Context, payments []models.Payment) (int64, error) {
	if len(payments) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&payments)
	if res.Error != nil {
		return 0, fmt.Errorf("insert payments: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// FindUnmatched returns open (pending or overdue) payments without a bank
// transaction link.
func (r *PaymentRepository) FindUnmatched(ctx context.Context, companyID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND matched_transaction_id IS NULL", companyID).
		Where("status IN ?", []models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusOverdue}).
		Order("due_date ASC, id ASC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("find unmatched payments: %w", err)
	}
	return payments, nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment %s: %w", id, err)
	}
	return &p, nil
}

// Search is used by operators looking for a manual match target.
func (r *PaymentRepository) Search(ctx context.Context, companyID uuid.UUID, contractRef string, statuses []string) ([]models.Payment, error) {
	query := r.db.WithContext(ctx).Model(&models.Payment{}).Where("company_id = ?", companyID)
	if contractRef != "" {
		query = query.Where("LOWER(contract_ref) LIKE ?", "%"+strings.ToLower(contractRef)+"%")
	}
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var payments []models.Payment
	if err := query.Order("due_date ASC").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("search payments: %w", err)
	}
	return payments, nil
}
