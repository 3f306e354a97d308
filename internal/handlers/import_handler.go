package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"property-reconciliation-backend/internal/bankfeed"
	"property-reconciliation-backend/internal/breaker"
	"property-reconciliation-backend/internal/models"
	"property-reconciliation-backend/internal/repository"
	"property-reconciliation-backend/internal/services/importer"
	service "property-reconciliation-backend/internal/services/reconciliation"
)

type ImportHandler struct {
	importer *importer.Service
	recon    *service.Service
	breakers *breaker.Set
	logger   *slog.Logger
}

// NewImportHandler wires the import endpoints. breakers is nil when no
// bank feed is configured.
func NewImportHandler(imp *importer.Service, recon *service.Service, breakers *breaker.Set, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{importer: imp, recon: recon, breakers: breakers, logger: logger.With("system", "api")}
}

type bankFeedRequest struct {
	AccountID string `json:"account_id" binding:"required,max=128"`
	Reconcile bool   `json:"reconcile"`
}

// ImportTransactions takes a bank statement CSV in the "file" form field.
// With reconcile=true the matcher runs once the rows are in.
func (h *ImportHandler) ImportTransactions(c *gin.Context) {
	h.upload(c, h.importer.ImportTransactions)
}

func (h *ImportHandler) ImportPayments(c *gin.Context) {
	h.upload(c, h.importer.ImportPayments)
}

type uploadFunc func(ctx context.Context, companyID uuid.UUID, filename string, r io.Reader) (*models.ImportBatch, error)

func (h *ImportHandler) upload(c *gin.Context, run uploadFunc) {
	companyID, ok := companyParam(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		badRequest(c, "file required")
		return
	}
	defer file.Close()

	h.logger.Info("received upload", "company", companyID, "file", header.Filename, "size", header.Size)

	batch, err := run(c.Request.Context(), companyID, header.Filename, file)
	if errors.Is(err, importer.ErrBadHeader) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "InvalidRequest", "message": err.Error(), "batch": batch})
		return
	}
	if err != nil {
		writeInternal(c, h.logger, "import", err)
		return
	}
	h.finish(c, batch, c.Query("reconcile") == "true")
}

// ImportBankFeed pulls booked transactions for one bank account.
func (h *ImportHandler) ImportBankFeed(c *gin.Context) {
	companyID, ok := companyParam(c)
	if !ok {
		return
	}

	var payload bankFeedRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, err.Error())
		return
	}

	batch, err := h.importer.ImportBankFeed(c.Request.Context(), companyID, payload.AccountID)
	switch {
	case errors.Is(err, importer.ErrNoFeed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "FeedNotConfigured"})
		return
	case errors.Is(err, breaker.ErrOpen):
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "FeedUnavailable", "batch": batch})
		return
	case errors.Is(err, bankfeed.ErrRejected):
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "FeedRejected", "message": err.Error(), "batch": batch})
		return
	case err != nil:
		writeInternal(c, h.logger, "bank feed import", err)
		return
	}
	h.finish(c, batch, payload.Reconcile)
}

func (h *ImportHandler) finish(c *gin.Context, batch *models.ImportBatch, reconcile bool) {
	body := gin.H{"success": true, "batch": batch}
	if reconcile && batch.Kind == models.ImportKindTransactions {
		res, err := h.recon.AutoReconcile(c.Request.Context(), batch.CompanyID)
		if err != nil {
			writeInternal(c, h.logger, "auto reconcile after import", err)
			return
		}
		body["summary"] = res.Summary
	}
	c.JSON(http.StatusOK, body)
}

// GetBatch reports an import's progress.
func (h *ImportHandler) GetBatch(c *gin.Context) {
	batchID, ok := uuidParam(c, "batchId", "invalid batch ID")
	if !ok {
		return
	}
	batch, err := h.importer.GetBatch(c.Request.Context(), batchID)
	if errors.Is(err, repository.ErrNotFound) {
		notFound(c)
		return
	}
	if err != nil {
		writeInternal(c, h.logger, "get import batch", err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

type feedStatus struct {
	Account     string     `json:"account"`
	State       string     `json:"state"`
	Failures    int        `json:"failures"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
}

// FeedStatus lists the circuit state of every bank account the feed has
// been called for.
func (h *ImportHandler) FeedStatus(c *gin.Context) {
	if h.breakers == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "FeedNotConfigured"})
		return
	}

	snaps := h.breakers.Snapshots()
	out := make([]feedStatus, 0, len(snaps))
	for account, snap := range snaps {
		st := feedStatus{Account: account, State: snap.State.String(), Failures: snap.Failures}
		if !snap.LastFailure.IsZero() {
			last := snap.LastFailure
			st.LastFailure = &last
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })

	c.JSON(http.StatusOK, gin.H{"success": true, "accounts": out})
}
