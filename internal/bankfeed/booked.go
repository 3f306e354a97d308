package bankfeed

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"property-reconciliation-backend/internal/models"
)

// Booked is one booked entry as the account data API reports it.
type Booked struct {
	TransactionID                     string `json:"transactionId"`
	EndToEndID                        string `json:"endToEndId"`
	BookingDate                       string `json:"bookingDate"`
	ValueDate                         string `json:"valueDate"`
	TransactionAmount                 Amount `json:"transactionAmount"`
	DebtorName                        string `json:"debtorName"`
	CreditorName                      string `json:"creditorName"`
	RemittanceInformationUnstructured string `json:"remittanceInformationUnstructured"`
}

type Amount struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// ToTransaction maps the entry onto an unmatched bank transaction.
func (b Booked) ToTransaction(companyID uuid.UUID, batchID *uuid.UUID) (models.BankTransaction, error) {
	raw := b.ValueDate
	if raw == "" {
		raw = b.BookingDate
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return models.BankTransaction{}, fmt.Errorf("transaction %s: bad date %q", b.TransactionID, raw)
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(b.TransactionAmount.Amount))
	if err != nil {
		return models.BankTransaction{}, fmt.Errorf("transaction %s: bad amount %q", b.TransactionID, b.TransactionAmount.Amount)
	}

	label := strings.TrimSpace(b.RemittanceInformationUnstructured)
	if counterparty := b.counterparty(amount); counterparty != "" {
		if label == "" {
			label = counterparty
		} else {
			label = counterparty + " " + label
		}
	}

	ref := b.TransactionID
	if ref == "" {
		ref = b.EndToEndID
	}

	return models.BankTransaction{
		ID:            uuid.New(),
		CompanyID:     companyID,
		ImportBatchID: batchID,
		ValueDate:     date,
		Amount:        amount.Round(2),
		Label:         label,
		Reference:     ref,
		MatchStatus:   models.MatchStatusUnmatched,
	}, nil
}

func (b Booked) counterparty(amount decimal.Decimal) string {
	if amount.IsPositive() {
		return strings.TrimSpace(b.DebtorName)
	}
	return strings.TrimSpace(b.CreditorName)
}
