package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type MatchStatus string

const (
	MatchStatusUnmatched MatchStatus = "unmatched"
	MatchStatusMatched   MatchStatus = "matched"
	MatchStatusIgnored   MatchStatus = "ignored"
)

type Provenance string

const (
	ProvenanceAuto   Provenance = "auto"
	ProvenanceManual Provenance = "manual"
)

// BankTransaction is one line imported from a bank statement or bank feed.
// Amount is signed, positive for inflows.
type BankTransaction struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID        uuid.UUID       `gorm:"type:uuid;index;uniqueIndex:idx_bank_tx_dedup" json:"company_id"`
	ImportBatchID    *uuid.UUID      `gorm:"type:uuid;index" json:"import_batch_id,omitempty"`
	ValueDate        time.Time       `gorm:"index;uniqueIndex:idx_bank_tx_dedup" json:"value_date"`
	Amount           decimal.Decimal `gorm:"type:decimal(14,2);index;uniqueIndex:idx_bank_tx_dedup" json:"amount"`
	Label            string          `json:"label"`
	Reference        string          `gorm:"uniqueIndex:idx_bank_tx_dedup" json:"reference"`
	MatchStatus      MatchStatus     `gorm:"index;default:unmatched" json:"match_status"`
	MatchedPaymentID *uuid.UUID      `gorm:"type:uuid;index" json:"matched_payment_id,omitempty"`
	Provenance       *Provenance     `json:"provenance,omitempty"`
	MatchNote        string          `json:"match_note,omitempty"`
	MatchedBy        string          `json:"matched_by,omitempty"`
	MatchedAt        *time.Time      `json:"matched_at,omitempty"`
	ConfidenceScore  float64         `json:"confidence_score"`
	MatchDetails     datatypes.JSON  `json:"match_details,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (t *BankTransaction) IsInflow() bool {
	return t.Amount.IsPositive()
}
