// Package importer loads bank statements and expected payments into the
// store, one ImportBatch per upload or feed pull.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"property-reconciliation-backend/internal/bankfeed"
	"property-reconciliation-backend/internal/models"
	"property-reconciliation-backend/internal/repository"
)

// ProgressEvery is how many rows are buffered between inserts and batch
// progress updates.
const ProgressEvery = 100

var (
	ErrBadHeader = errors.New("unreadable csv header")
	ErrNoFeed    = errors.New("bank feed not configured")
)

// Feed is the part of the bank feed client the importer uses.
type Feed interface {
	FetchBooked(ctx context.Context, accountID string) ([]bankfeed.Booked, error)
}

type Service struct {
	transactions *repository.BankTransactionRepository
	payments     *repository.PaymentRepository
	batches      *repository.ImportBatchRepository
	feed         Feed
	logger       *slog.Logger
}

// NewService wires the importer. feed may be nil when no bank feed is
// configured.
func NewService(
	transactions *repository.BankTransactionRepository,
	payments *repository.PaymentRepository,
	batches *repository.ImportBatchRepository,
	feed Feed,
	logger *slog.Logger,
) *Service {
	return &Service{
		transactions: transactions,
		payments:     payments,
		batches:      batches,
		feed:         feed,
		logger:       logger.With("system", "import"),
	}
}

type counts struct {
	total, imported, skipped int
}

// ImportTransactions reads a bank statement with the columns
// date,label,amount,reference.
func (s *Service) ImportTransactions(ctx context.Context, companyID uuid.UUID, filename string, r io.Reader) (*models.ImportBatch, error) {
	batch, err := s.batches.Start(ctx, companyID, models.ImportKindTransactions, models.ImportSourceCSV, filename)
	if err != nil {
		return nil, err
	}

	c, err := s.readTransactions(ctx, companyID, batch.ID, r)
	return s.finish(ctx, batch, c, err)
}

func (s *Service) readTransactions(ctx context.Context, companyID, batchID uuid.UUID, r io.Reader) (counts, error) {
	var c counts
	reader := newCSVReader(r)
	cols, err := readHeader(reader, "date", "label", "amount")
	if err != nil {
		return c, err
	}

	buf := make([]models.BankTransaction, 0, ProgressEvery)
	refs := rowRefs{}
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			c.total++
			c.skipped++
			s.logger.Debug("skipping unreadable row", "batch", batchID, "row", row, "error", err)
			continue
		}
		if blank(record) {
			continue
		}
		c.total++

		tx, err := transactionFromRecord(cols, record)
		if err != nil {
			c.skipped++
			s.logger.Debug("skipping row", "batch", batchID, "row", row, "error", err)
			continue
		}
		if tx.Reference == "" {
			tx.Reference = refs.next(tx.ValueDate, tx.Amount, tx.Label)
		}
		tx.CompanyID = companyID
		tx.ImportBatchID = &batchID
		buf = append(buf, tx)

		if len(buf) == ProgressEvery {
			if err := s.flushTransactions(ctx, batchID, buf, &c); err != nil {
				return c, err
			}
			buf = buf[:0]
		}
	}
	return c, s.flushTransactions(ctx, batchID, buf, &c)
}

func transactionFromRecord(cols columns, record []string) (models.BankTransaction, error) {
	date, err := parseDate(cols.get(record, "date"))
	if err != nil {
		return models.BankTransaction{}, err
	}
	amount, err := parseAmount(cols.get(record, "amount"))
	if err != nil {
		return models.BankTransaction{}, err
	}
	if amount.IsZero() {
		return models.BankTransaction{}, fmt.Errorf("zero amount")
	}
	return models.BankTransaction{
		ID:          uuid.New(),
		ValueDate:   date,
		Amount:      amount,
		Label:       cols.get(record, "label"),
		Reference:   cols.get(record, "reference"),
		MatchStatus: models.MatchStatusUnmatched,
	}, nil
}

func (s *Service) flushTransactions(ctx context.Context, batchID uuid.UUID, txs []models.BankTransaction, c *counts) error {
	if len(txs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	inserted, err := s.transactions.CreateBatch(ctx, txs)
	if err != nil {
		return err
	}
	c.imported += int(inserted)
	c.skipped += len(txs) - int(inserted)
	return s.batches.UpdateProgress(ctx, batchID, c.total, c.imported, c.skipped)
}

// ImportPayments reads expected payments with the columns
// contract_ref,amount,due_date and optionally status and period.
func (s *Service) ImportPayments(ctx context.Context, companyID uuid.UUID, filename string, r io.Reader) (*models.ImportBatch, error) {
	batch, err := s.batches.Start(ctx, companyID, models.ImportKindPayments, models.ImportSourceCSV, filename)
	if err != nil {
		return nil, err
	}

	c, err := s.readPayments(ctx, companyID, batch.ID, r)
	return s.finish(ctx, batch, c, err)
}

func (s *Service) readPayments(ctx context.Context, companyID, batchID uuid.UUID, r io.Reader) (counts, error) {
	var c counts
	reader := newCSVReader(r)
	cols, err := readHeader(reader, "contract_ref", "amount", "due_date")
	if err != nil {
		return c, err
	}

	buf := make([]models.Payment, 0, ProgressEvery)
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			c.total++
			c.skipped++
			s.logger.Debug("skipping unreadable row", "batch", batchID, "row", row, "error", err)
			continue
		}
		if blank(record) {
			continue
		}
		c.total++

		p, err := paymentFromRecord(cols, record)
		if err != nil {
			c.skipped++
			s.logger.Debug("skipping row", "batch", batchID, "row", row, "error", err)
			continue
		}
		p.CompanyID = companyID
		buf = append(buf, p)

		if len(buf) == ProgressEvery {
			if err := s.flushPayments(ctx, batchID, buf, &c); err != nil {
				return c, err
			}
			buf = buf[:0]
		}
	}
	return c, s.flushPayments(ctx, batchID, buf, &c)
}

func paymentFromRecord(cols columns, record []string) (models.Payment, error) {
	ref := cols.get(record, "contract_ref")
	if ref == "" {
		return models.Payment{}, fmt.Errorf("missing contract_ref")
	}
	amount, err := parseAmount(cols.get(record, "amount"))
	if err != nil {
		return models.Payment{}, err
	}
	if !amount.IsPositive() {
		return models.Payment{}, fmt.Errorf("non-positive amount %s", amount)
	}
	due, err := parseDate(cols.get(record, "due_date"))
	if err != nil {
		return models.Payment{}, err
	}

	status := models.PaymentStatusPending
	switch raw := models.PaymentStatus(cols.get(record, "status")); raw {
	case "":
	case models.PaymentStatusPending, models.PaymentStatusOverdue, models.PaymentStatusPaid:
		status = raw
	default:
		return models.Payment{}, fmt.Errorf("unknown status %q", raw)
	}

	period := cols.get(record, "period")
	if period == "" {
		period = due.Format("2006-01")
	}

	return models.Payment{
		ID:             uuid.New(),
		ContractRef:    ref,
		ExpectedAmount: amount,
		DueDate:        due,
		Period:         period,
		Status:         status,
	}, nil
}

func (s *Service) flushPayments(ctx context.Context, batchID uuid.UUID, payments []models.Payment, c *counts) error {
	if len(payments) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	inserted, err := s.payments.Create(ctx, payments)
	if err != nil {
		return err
	}
	c.imported += int(inserted)
	c.skipped += len(payments) - int(inserted)
	return s.batches.UpdateProgress(ctx, batchID, c.total, c.imported, c.skipped)
}

// ImportBankFeed pulls the booked transactions of one account.
func (s *Service) ImportBankFeed(ctx context.Context, companyID uuid.UUID, accountID string) (*models.ImportBatch, error) {
	if s.feed == nil {
		return nil, ErrNoFeed
	}
	batch, err := s.batches.Start(ctx, companyID, models.ImportKindTransactions, models.ImportSourceBankFeed, accountID)
	if err != nil {
		return nil, err
	}

	var c counts
	booked, err := s.feed.FetchBooked(ctx, accountID)
	if err != nil {
		return s.finish(ctx, batch, c, err)
	}

	buf := make([]models.BankTransaction, 0, ProgressEvery)
	for _, b := range booked {
		c.total++
		tx, err := b.ToTransaction(companyID, &batch.ID)
		if err != nil {
			c.skipped++
			s.logger.Debug("skipping feed entry", "batch", batch.ID, "error", err)
			continue
		}
		buf = append(buf, tx)
		if len(buf) == ProgressEvery {
			if err := s.flushTransactions(ctx, batch.ID, buf, &c); err != nil {
				return s.finish(ctx, batch, c, err)
			}
			buf = buf[:0]
		}
	}
	err = s.flushTransactions(ctx, batch.ID, buf, &c)
	return s.finish(ctx, batch, c, err)
}

// GetBatch returns an import batch by id.
func (s *Service) GetBatch(ctx context.Context, batchID uuid.UUID) (*models.ImportBatch, error) {
	return s.batches.GetByID(ctx, batchID)
}

// finish records the outcome on the batch. The returned error is the
// import's own failure, if any.
func (s *Service) finish(ctx context.Context, batch *models.ImportBatch, c counts, cause error) (*models.ImportBatch, error) {
	// a cancelled request must still be able to mark its batch failed
	saveCtx := context.WithoutCancel(ctx)
	if err := s.batches.Complete(saveCtx, batch.ID, c.total, c.imported, c.skipped, cause); err != nil {
		s.logger.Error("failed to complete import batch", "batch", batch.ID, "error", err)
		if cause == nil {
			cause = err
		}
	}

	if cause != nil {
		s.logger.Warn("import failed", "batch", batch.ID, "kind", batch.Kind, "source", batch.Source, "error", cause)
	} else {
		s.logger.Info("import completed", "batch", batch.ID, "kind", batch.Kind, "source", batch.Source,
			"total", c.total, "imported", c.imported, "skipped", c.skipped)
	}

	final, err := s.batches.GetByID(saveCtx, batch.ID)
	if err != nil {
		return nil, err
	}
	if cause != nil {
		return final, fmt.Errorf("import %s: %w", batch.ID, cause)
	}
	return final, nil
}
