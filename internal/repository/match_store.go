package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"property-reconciliation-backend/internal/models"
)

// Match is one transaction/payment pair to be recorded.
type Match struct {
	CompanyID     uuid.UUID
	TransactionID uuid.UUID
	PaymentID     uuid.UUID
	Provenance    models.Provenance
	PerformedBy   string
	Note          string
	Confidence    float64
	Details       datatypes.JSON
}

// MatchStore is the only writer of match state. Every transition runs in a
// single database transaction of conditional updates; a side that is no
// longer in the expected state rolls the whole transition back.
type MatchStore struct {
	db           *gorm.DB
	transactions *BankTransactionRepository
	payments     *PaymentRepository
}

func NewMatchStore(db *gorm.DB) *MatchStore {
	return &MatchStore{
		db:           db,
		transactions: NewBankTransactionRepository(db),
		payments:     NewPaymentRepository(db),
	}
}

func (s *MatchStore) FindUnmatchedTransactions(ctx context.Context, companyID uuid.UUID) ([]models.BankTransaction, error) {
	return s.transactions.FindUnmatched(ctx, companyID)
}

func (s *MatchStore) FindUnmatchedPayments(ctx context.Context, companyID uuid.UUID) ([]models.Payment, error) {
	return s.payments.FindUnmatched(ctx, companyID)
}

func (s *MatchStore) FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.BankTransaction, error) {
	return s.transactions.GetByID(ctx, id)
}

func (s *MatchStore) FindPaymentByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return s.payments.GetByID(ctx, id)
}

// ApplyMatch links both sides if, and only if, both are still unmatched.
func (s *MatchStore) ApplyMatch(ctx context.Context, m Match) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		res := tx.Model(&models.BankTransaction{}).
			Where("id = ? AND company_id = ?", m.TransactionID, m.CompanyID).
			Where("match_status = ? AND matched_payment_id IS NULL", models.MatchStatusUnmatched).
			Updates(map[string]interface{}{
				"match_status":       models.MatchStatusMatched,
				"matched_payment_id": m.PaymentID,
				"provenance":         m.Provenance,
				"match_note":         m.Note,
				"matched_by":         m.PerformedBy,
				"matched_at":         now,
				"confidence_score":   m.Confidence,
				"match_details":      m.Details,
			})
		if res.Error != nil {
			return fmt.Errorf("match transaction %s: %w", m.TransactionID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStaleState
		}

		// status_before_match reads the pre-update status.
		res = tx.Model(&models.Payment{}).
			Where("id = ? AND company_id = ? AND matched_transaction_id IS NULL", m.PaymentID, m.CompanyID).
			Updates(map[string]interface{}{
				"matched_transaction_id": m.TransactionID,
				"status_before_match":    gorm.Expr("status"),
				"status":                 models.PaymentStatusPaid,
				"paid_at":                now,
			})
		if res.Error != nil {
			return fmt.Errorf("match payment %s: %w", m.PaymentID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStaleState
		}

		provenance := m.Provenance
		paymentID := m.PaymentID
		return writeAudit(tx, models.MatchAuditLog{
			CompanyID:     m.CompanyID,
			TransactionID: m.TransactionID,
			PaymentID:     &paymentID,
			Action:        models.AuditActionMatch,
			Provenance:    &provenance,
			PerformedBy:   m.PerformedBy,
			Note:          m.Note,
		})
	})
}

// ClearMatch unlinks a matched transaction and its payment, restoring the
// payment's pre-match status. It returns the transaction as it was before
// the undo.
func (s *MatchStore) ClearMatch(ctx context.Context, companyID, transactionID uuid.UUID, performedBy string) (*models.BankTransaction, error) {
	var before models.BankTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ? AND company_id = ?", transactionID, companyID).First(&before).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load transaction %s: %w", transactionID, err)
		}
		if before.MatchStatus != models.MatchStatusMatched || before.MatchedPaymentID == nil {
			return ErrStaleState
		}
		paymentID := *before.MatchedPaymentID

		res := tx.Model(&models.BankTransaction{}).
			Where("id = ? AND match_status = ? AND matched_payment_id = ?", transactionID, models.MatchStatusMatched, paymentID).
			Updates(map[string]interface{}{
				"match_status":       models.MatchStatusUnmatched,
				"matched_payment_id": nil,
				"provenance":         nil,
				"match_note":         "",
				"matched_by":         "",
				"matched_at":         nil,
				"confidence_score":   0,
				"match_details":      nil,
			})
		if res.Error != nil {
			return fmt.Errorf("unmatch transaction %s: %w", transactionID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStaleState
		}

		res = tx.Model(&models.Payment{}).
			Where("id = ? AND matched_transaction_id = ?", paymentID, transactionID).
			Updates(map[string]interface{}{
				"matched_transaction_id": nil,
				"status":                 gorm.Expr("COALESCE(status_before_match, ?)", models.PaymentStatusPending),
				"status_before_match":    nil,
				"paid_at":                nil,
			})
		if res.Error != nil {
			return fmt.Errorf("unmatch payment %s: %w", paymentID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrMissingPayment
		}

		return writeAudit(tx, models.MatchAuditLog{
			CompanyID:     companyID,
			TransactionID: transactionID,
			PaymentID:     &paymentID,
			Action:        models.AuditActionUnmatch,
			Provenance:    before.Provenance,
			PerformedBy:   performedBy,
		})
	})
	if err != nil {
		return nil, err
	}
	return &before, nil
}

// SetIgnored moves a transaction between unmatched and ignored.
func (s *MatchStore) SetIgnored(ctx context.Context, companyID, transactionID uuid.UUID, ignored bool, performedBy string) error {
	from, to, action := models.MatchStatusUnmatched, models.MatchStatusIgnored, models.AuditActionIgnore
	if !ignored {
		from, to, action = models.MatchStatusIgnored, models.MatchStatusUnmatched, models.AuditActionUnignore
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.BankTransaction{}).
			Where("id = ? AND company_id = ?", transactionID, companyID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("load transaction %s: %w", transactionID, err)
		}
		if count == 0 {
			return ErrNotFound
		}

		res := tx.Model(&models.BankTransaction{}).
			Where("id = ? AND company_id = ? AND match_status = ?", transactionID, companyID, from).
			Update("match_status", to)
		if res.Error != nil {
			return fmt.Errorf("set %s on %s: %w", to, transactionID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStaleState
		}

		return writeAudit(tx, models.MatchAuditLog{
			CompanyID:     companyID,
			TransactionID: transactionID,
			Action:        action,
			PerformedBy:   performedBy,
		})
	})
}

// AuditTrail returns the match history of one transaction, newest first.
func (s *MatchStore) AuditTrail(ctx context.Context, companyID, transactionID uuid.UUID) ([]models.MatchAuditLog, error) {
	var logs []models.MatchAuditLog
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND transaction_id = ?", companyID, transactionID).
		Order("created_at DESC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("audit trail %s: %w", transactionID, err)
	}
	return logs, nil
}

func writeAudit(tx *gorm.DB, entry models.MatchAuditLog) error {
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now().UTC()
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}
