package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusOverdue PaymentStatus = "overdue"
)

// Payment is an expected rent or charge payment raised by billing for a
// contract. Only the match link and the paid transition belong to
// reconciliation.
type Payment struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID            uuid.UUID       `gorm:"type:uuid;index;uniqueIndex:idx_payment_dedup" json:"company_id"`
	ContractRef          string          `gorm:"index;uniqueIndex:idx_payment_dedup" json:"contract_ref"`
	ExpectedAmount       decimal.Decimal `gorm:"type:decimal(14,2);index" json:"expected_amount"`
	DueDate              time.Time       `gorm:"index;uniqueIndex:idx_payment_dedup" json:"due_date"`
	Period               string          `json:"period"`
	Status               PaymentStatus   `gorm:"index" json:"status"`
	StatusBeforeMatch    *PaymentStatus  `json:"-"`
	MatchedTransactionID *uuid.UUID      `gorm:"type:uuid;index" json:"matched_transaction_id,omitempty"`
	PaidAt               *time.Time      `json:"paid_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func (p *Payment) IsMatched() bool {
	return p.MatchedTransactionID != nil
}
