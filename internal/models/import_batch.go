package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ImportKindTransactions = "transactions"
	ImportKindPayments     = "payments"

	ImportSourceCSV      = "csv"
	ImportSourceBankFeed = "bankfeed"

	ImportStatusProcessing = "processing"
	ImportStatusCompleted  = "completed"
	ImportStatusFailed     = "failed"
)

type ImportBatch struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID     uuid.UUID  `gorm:"type:uuid;index" json:"company_id"`
	Kind          string     `json:"kind"`
	Source        string     `json:"source"`
	Filename      string     `json:"filename"`
	TotalRows     int        `json:"total_rows"`
	ImportedCount int        `json:"imported_count"`
	SkippedCount  int        `json:"skipped_count"`
	Status        string     `gorm:"index" json:"status"`
	ErrorMessage  string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// All lists every model owned by this service, in migration order.
func All() []interface{} {
	return []interface{}{
		&Payment{},
		&BankTransaction{},
		&ImportBatch{},
		&MatchAuditLog{},
	}
}
