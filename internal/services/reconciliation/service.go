package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"property-reconciliation-backend/internal/models"
	"property-reconciliation-backend/internal/repository"
	"property-reconciliation-backend/internal/services/matching"
)

// AutoActor is recorded as the performer of auto matches.
const AutoActor = "auto-reconcile"

type Service struct {
	store  Store
	engine *matching.Engine
	logger *slog.Logger
}

func NewService(store Store, engine *matching.Engine, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		engine: engine,
		logger: logger.With("system", "reconcile"),
	}
}

// AutoReconcile matches every unambiguous pair of the company's unmatched
// transactions and payments. Pairs are committed one at a time; a pair
// that another writer got to first is skipped.
func (s *Service) AutoReconcile(ctx context.Context, companyID uuid.UUID) (Result, error) {
	txs, err := s.store.FindUnmatchedTransactions(ctx, companyID)
	if err != nil {
		return Result{}, fmt.Errorf("auto reconcile %s: %w", companyID, err)
	}
	payments, err := s.store.FindUnmatchedPayments(ctx, companyID)
	if err != nil {
		return Result{}, fmt.Errorf("auto reconcile %s: %w", companyID, err)
	}

	plan := s.engine.Plan(txs, payments)
	summary := &Summary{
		CompanyID:     companyID,
		Total:         len(plan.Proposals) + len(plan.Ambiguous) + len(plan.NoCandidate),
		Ambiguous:     len(plan.Ambiguous),
		MatchedAmount: decimal.Zero,
		Matches:       []MatchedPair{},
	}

	for _, prop := range plan.Proposals {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		details, err := json.Marshal(prop.Details())
		if err != nil {
			return Result{}, fmt.Errorf("encode match details: %w", err)
		}

		err = s.store.ApplyMatch(ctx, repository.Match{
			CompanyID:     companyID,
			TransactionID: prop.Transaction.ID,
			PaymentID:     prop.Candidate.Payment.ID,
			Provenance:    models.ProvenanceAuto,
			PerformedBy:   AutoActor,
			Confidence:    prop.Candidate.Score,
			Details:       datatypes.JSON(details),
		})
		if errors.Is(err, repository.ErrStaleState) {
			summary.Conflicts++
			s.logger.Warn("auto match lost to concurrent update",
				"company", companyID, "transaction", prop.Transaction.ID, "payment", prop.Candidate.Payment.ID)
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("auto reconcile %s: %w", companyID, err)
		}

		summary.Matched++
		summary.MatchedAmount = summary.MatchedAmount.Add(prop.Transaction.Amount)
		summary.Matches = append(summary.Matches, MatchedPair{
			TransactionID: prop.Transaction.ID,
			PaymentID:     prop.Candidate.Payment.ID,
			Amount:        prop.Transaction.Amount,
			Score:         prop.Candidate.Score,
		})
	}
	summary.Unmatched = summary.Total - summary.Matched

	for _, tx := range plan.Ambiguous {
		s.logger.Debug("ambiguous transaction left for review", "company", companyID, "transaction", tx.ID, "amount", tx.Amount.String())
	}
	s.logger.Info("auto reconcile finished",
		"company", companyID,
		"matched", summary.Matched,
		"total", summary.Total,
		"ambiguous", summary.Ambiguous,
		"conflicts", summary.Conflicts,
		"matched_amount", summary.MatchedAmount.StringFixed(2))

	return Result{Success: true, Summary: summary}, nil
}

// ManualReconcile records an operator's match. Neither side may already be
// matched; re-matching requires an undo first.
func (s *Service) ManualReconcile(ctx context.Context, req ManualRequest) (Result, error) {
	if req.UserID == "" || req.CompanyID == uuid.Nil {
		return failure(ErrInvalidRequest), nil
	}

	tx, err := s.store.FindTransactionByID(ctx, req.TransactionID)
	if err := s.resolve(err, tx != nil && tx.CompanyID == req.CompanyID); err != nil {
		return domainOrInfra(err)
	}
	payment, err := s.store.FindPaymentByID(ctx, req.PaymentID)
	if err := s.resolve(err, payment != nil && payment.CompanyID == req.CompanyID); err != nil {
		return domainOrInfra(err)
	}

	switch {
	case tx.MatchStatus == models.MatchStatusMatched || tx.MatchedPaymentID != nil:
		return failure(ErrAlreadyMatched), nil
	case payment.MatchedTransactionID != nil:
		return failure(ErrAlreadyMatched), nil
	case tx.MatchStatus == models.MatchStatusIgnored:
		return failure(ErrIgnored), nil
	}

	err = s.store.ApplyMatch(ctx, repository.Match{
		CompanyID:     req.CompanyID,
		TransactionID: tx.ID,
		PaymentID:     payment.ID,
		Provenance:    models.ProvenanceManual,
		PerformedBy:   req.UserID,
		Note:          req.Note,
		Confidence:    100,
	})
	if errors.Is(err, repository.ErrStaleState) {
		return failure(ErrAlreadyMatched), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("manual reconcile %s: %w", tx.ID, err)
	}

	s.logger.Info("manual match recorded",
		"company", req.CompanyID, "transaction", tx.ID, "payment", payment.ID, "user", req.UserID)

	updated, err := s.store.FindTransactionByID(ctx, tx.ID)
	if err != nil {
		return Result{}, fmt.Errorf("reload transaction %s: %w", tx.ID, err)
	}
	return Result{Success: true, Transaction: updated}, nil
}

// UndoReconciliation unlinks a matched transaction from its payment and
// returns both to their pre-match state.
func (s *Service) UndoReconciliation(ctx context.Context, companyID, transactionID uuid.UUID, userID string) (Result, error) {
	before, err := s.store.ClearMatch(ctx, companyID, transactionID, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return failure(ErrNotFound), nil
	case errors.Is(err, repository.ErrStaleState):
		return failure(ErrNotMatched), nil
	case errors.Is(err, repository.ErrMissingPayment):
		s.logger.Error("matched payment missing on undo", "company", companyID, "transaction", transactionID)
		return failure(ErrIntegrity), nil
	case err != nil:
		return Result{}, fmt.Errorf("undo %s: %w", transactionID, err)
	}

	s.logger.Info("match undone",
		"company", companyID, "transaction", transactionID, "payment", before.MatchedPaymentID, "user", userID)

	updated, err := s.store.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return Result{}, fmt.Errorf("reload transaction %s: %w", transactionID, err)
	}
	return Result{Success: true, Transaction: updated}, nil
}

// Ignore parks an unmatched transaction (bank fees, transfers between own
// accounts) so auto-reconcile stops considering it.
func (s *Service) Ignore(ctx context.Context, companyID, transactionID uuid.UUID, userID string) (Result, error) {
	return s.setIgnored(ctx, companyID, transactionID, true, userID)
}

func (s *Service) Unignore(ctx context.Context, companyID, transactionID uuid.UUID, userID string) (Result, error) {
	return s.setIgnored(ctx, companyID, transactionID, false, userID)
}

func (s *Service) setIgnored(ctx context.Context, companyID, transactionID uuid.UUID, ignored bool, userID string) (Result, error) {
	err := s.store.SetIgnored(ctx, companyID, transactionID, ignored, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return failure(ErrNotFound), nil
	case errors.Is(err, repository.ErrStaleState):
		tx, lookupErr := s.store.FindTransactionByID(ctx, transactionID)
		if lookupErr != nil {
			return Result{}, fmt.Errorf("reload transaction %s: %w", transactionID, lookupErr)
		}
		switch {
		case tx.MatchStatus == models.MatchStatusMatched:
			return failure(ErrAlreadyMatched), nil
		case ignored:
			return failure(ErrIgnored), nil
		default:
			return failure(ErrNotIgnored), nil
		}
	case err != nil:
		return Result{}, fmt.Errorf("set ignored %s: %w", transactionID, err)
	}

	updated, err := s.store.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return Result{}, fmt.Errorf("reload transaction %s: %w", transactionID, err)
	}
	return Result{Success: true, Transaction: updated}, nil
}

// Suggest lists payments an operator could match a transaction to, best
// first. It only reads.
func (s *Service) Suggest(ctx context.Context, companyID, transactionID uuid.UUID) ([]matching.Candidate, error) {
	tx, err := s.store.FindTransactionByID(ctx, transactionID)
	if err := s.resolve(err, tx != nil && tx.CompanyID == companyID); err != nil {
		return nil, err
	}
	payments, err := s.store.FindUnmatchedPayments(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("suggest %s: %w", transactionID, err)
	}
	return s.engine.Candidates(tx, payments), nil
}

// resolve maps a lookup result to ErrNotFound when the row is missing or
// belongs to another company.
func (s *Service) resolve(err error, owned bool) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !owned {
		return ErrNotFound
	}
	return nil
}

func domainOrInfra(err error) (Result, error) {
	if IsDomainError(err) {
		return failure(err), nil
	}
	return Result{}, err
}
