package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"property-reconciliation-backend/internal/models"
)

type BankTransactionRepository struct {
	db *gorm.DB
}

func NewBankTransactionRepository(db *gorm.DB) *BankTransactionRepository {
	return &BankTransactionRepository{db: db}
}

// CreateBatch inserts imported rows. Rows already present for the same
// company, date, amount and reference are skipped; the number actually
// inserted is returned.
func (r *BankTransactionRepository) CreateBatch(ctx context.Context, txs []models.BankTransaction) (int64, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&txs)
	if res.Error != nil {
		return 0, fmt.Errorf("insert bank transactions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// FindUnmatched returns every unmatched transaction of a company, oldest first.
func (r *BankTransactionRepository) FindUnmatched(ctx context.Context, companyID uuid.UUID) ([]models.BankTransaction, error) {
	var txs []models.BankTransaction
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND match_status = ? AND matched_payment_id IS NULL", companyID, models.MatchStatusUnmatched).
		Order("value_date ASC, id ASC").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("find unmatched transactions: %w", err)
	}
	return txs, nil
}

func (r *BankTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BankTransaction, error) {
	var tx models.BankTransaction
	err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return &tx, nil
}

// TransactionFilter narrows List. Cursor is the last id of the previous page.
type TransactionFilter struct {
	CompanyID uuid.UUID
	Status    string
	Search    string
	Cursor    string
	Limit     int
}

// List pages through a company's transactions ordered by id.
func (r *BankTransactionRepository) List(ctx context.Context, f TransactionFilter) ([]models.BankTransaction, string, bool, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}

	query := r.db.WithContext(ctx).
		Where("company_id = ?", f.CompanyID).
		Order("id ASC").
		Limit(f.Limit + 1)

	if f.Status != "" && f.Status != "all" {
		query = query.Where("match_status = ?", f.Status)
	}
	if f.Cursor != "" {
		query = query.Where("id > ?", f.Cursor)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		query = query.Where("LOWER(label) LIKE ? OR LOWER(reference) LIKE ?", like, like)
	}

	var txs []models.BankTransaction
	if err := query.Find(&txs).Error; err != nil {
		return nil, "", false, fmt.Errorf("list transactions: %w", err)
	}

	hasMore := false
	nextCursor := ""
	if len(txs) > f.Limit {
		hasMore = true
		txs = txs[:f.Limit]
		nextCursor = txs[f.Limit-1].ID.String()
	}
	return txs, nextCursor, hasMore, nil
}

type Stats struct {
	Total       int64           `json:"total"`
	TotalAmount decimal.Decimal `json:"total_amount"`

	MatchedCount   int64           `json:"matched_count"`
	MatchedSum     decimal.Decimal `json:"matched_sum"`
	AutoCount      int64           `json:"auto_matched_count"`
	ManualCount    int64           `json:"manual_matched_count"`
	UnmatchedCount int64           `json:"unmatched_count"`
	UnmatchedSum   decimal.Decimal `json:"unmatched_sum"`
	IgnoredCount   int64           `json:"ignored_count"`
	IgnoredSum     decimal.Decimal `json:"ignored_sum"`
}

type statRow struct {
	MatchStatus string
	Provenance  *string
	Count       int64
	Sum         decimal.Decimal
}

// Stats aggregates a company's transactions by match state.
func (r *BankTransactionRepository) Stats(ctx context.Context, companyID uuid.UUID) (Stats, error) {
	var rows []statRow
	err := r.db.WithContext(ctx).
		Model(&models.BankTransaction{}).
		Where("company_id = ?", companyID).
		Select("match_status, provenance, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS sum").
		Group("match_status, provenance").
		Scan(&rows).Error
	if err != nil {
		return Stats{}, fmt.Errorf("transaction stats: %w", err)
	}

	var s Stats
	for _, row := range rows {
		s.Total += row.Count
		s.TotalAmount = s.TotalAmount.Add(row.Sum)

		switch models.MatchStatus(row.MatchStatus) {
		case models.MatchStatusMatched:
			s.MatchedCount += row.Count
			s.MatchedSum = s.MatchedSum.Add(row.Sum)
			if row.Provenance != nil && models.Provenance(*row.Provenance) == models.ProvenanceManual {
				s.ManualCount += row.Count
			} else {
				s.AutoCount += row.Count
			}
		case models.MatchStatusUnmatched:
			s.UnmatchedCount += row.Count
			s.UnmatchedSum = s.UnmatchedSum.Add(row.Sum)
		case models.MatchStatusIgnored:
			s.IgnoredCount += row.Count
			s.IgnoredSum = s.IgnoredSum.Add(row.Sum)
		}
	}
	return s, nil
}
