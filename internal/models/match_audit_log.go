package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	AuditActionMatch    = "match"
	AuditActionUnmatch  = "unmatch"
	AuditActionIgnore   = "ignore"
	AuditActionUnignore = "unignore"
)

type MatchAuditLog struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID     uuid.UUID   `gorm:"type:uuid;index" json:"company_id"`
	TransactionID uuid.UUID   `gorm:"type:uuid;index" json:"transaction_id"`
	PaymentID     *uuid.UUID  `gorm:"type:uuid" json:"payment_id,omitempty"`
	Action        string      `json:"action"`
	Provenance    *Provenance `json:"provenance,omitempty"`
	PerformedBy   string      `json:"performed_by"`
	Note          string      `json:"note,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}
