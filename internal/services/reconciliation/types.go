package reconciliation

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"property-reconciliation-backend/internal/models"
	"property-reconciliation-backend/internal/repository"
)

// Store is everything the service needs from persistence. The two
// transitions, ApplyMatch and ClearMatch, must be atomic and conditional
// on the prior state.
type Store interface {
	FindUnmatchedTransactions(ctx context.Context, companyID uuid.UUID) ([]models.BankTransaction, error)
	FindUnmatchedPayments(ctx context.Context, companyID uuid.UUID) ([]models.Payment, error)
	FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.BankTransaction, error)
	FindPaymentByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	ApplyMatch(ctx context.Context, m repository.Match) error
	ClearMatch(ctx context.Context, companyID, transactionID uuid.UUID, performedBy string) (*models.BankTransaction, error)
	SetIgnored(ctx context.Context, companyID, transactionID uuid.UUID, ignored bool, performedBy string) error
}

// Result is what every operation hands back to its caller.
type Result struct {
	Success     bool                    `json:"success"`
	Error       string                  `json:"error,omitempty"`
	Summary     *Summary                `json:"summary,omitempty"`
	Transaction *models.BankTransaction `json:"transaction,omitempty"`
}

func failure(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

// Summary reports one auto-reconcile run. Total counts the unmatched
// inflows considered; Ambiguous ones had candidates but no unique choice;
// Conflicts lost a race with a concurrent writer.
type Summary struct {
	CompanyID     uuid.UUID       `json:"company_id"`
	Matched       int             `json:"matched"`
	Total         int             `json:"total"`
	MatchedAmount decimal.Decimal `json:"matched_amount"`
	Ambiguous     int             `json:"ambiguous"`
	Unmatched     int             `json:"unmatched"`
	Conflicts     int             `json:"conflicts"`
	Matches       []MatchedPair   `json:"matches"`
}

type MatchedPair struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	Amount        decimal.Decimal `json:"amount"`
	Score         float64         `json:"score"`
}

// ManualRequest identifies one bank transaction and one payment an
// operator asserts belong together.
type ManualRequest struct {
	CompanyID     uuid.UUID
	TransactionID uuid.UUID
	PaymentID     uuid.UUID
	UserID        string
	Note          string
}
