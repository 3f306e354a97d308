package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"property-reconciliation-backend/internal/middleware"
	"property-reconciliation-backend/internal/models"
	"property-reconciliation-backend/internal/repository"
	service "property-reconciliation-backend/internal/services/reconciliation"
)

type ReconciliationHandler struct {
	service      *service.Service
	transactions *repository.BankTransactionRepository
	payments     *repository.PaymentRepository
	matches      *repository.MatchStore
	logger       *slog.Logger
}

func NewReconciliationHandler(
	s *service.Service,
	transactions *repository.BankTransactionRepository,
	payments *repository.PaymentRepository,
	matches *repository.MatchStore,
	logger *slog.Logger,
) *ReconciliationHandler {
	return &ReconciliationHandler{
		service:      s,
		transactions: transactions,
		payments:     payments,
		matches:      matches,
		logger:       logger.With("system", "api"),
	}
}

type manualMatchRequest struct {
	TransactionID string `json:"transaction_id" binding:"required,uuid"`
	PaymentID     string `json:"payment_id" binding:"required,uuid"`
	Note          string `json:"note" binding:"max=500"`
}

// AutoReconcile runs the matcher over the company's unmatched sets.
func (h *ReconciliationHandler) AutoReconcile(c *gin.Context) {
	companyID, ok := companyParam(c)
	if !ok {
		return
	}

	res, err := h.service.AutoReconcile(c.Request.Context(), companyID)
	if err != nil {
		h.internalError(c, "auto reconcile", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ReconciliationHandler) ManualReconcile(c *gin.Context) {
	companyID, ok := companyParam(c)
	if !ok {
		return
	}

	var payload manualMatchRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := h.service.ManualReconcile(c.Request.Context(), service.ManualRequest{
		CompanyID:     companyID,
		TransactionID: uuid.MustParse(payload.TransactionID),
		PaymentID:     uuid.MustParse(payload.PaymentID),
		UserID:        middleware.UserID(c),
		Note:          payload.Note,
	})
	h.respond(c, "manual reconcile", res, err)
}

func (h *ReconciliationHandler) UndoReconciliation(c *gin.Context) {
	companyID, txID, ok := transactionParams(c)
	if !ok {
		return
	}
	res, err := h.service.UndoReconciliation(c.Request.Context(), companyID, txID, middleware.UserID(c))
	h.respond(c, "undo reconciliation", res, err)
}

func (h *ReconciliationHandler) IgnoreTransaction(c *gin.Context) {
	companyID, txID, ok := transactionParams(c)
	if !ok {
		return
	}
	res, err := h.service.Ignore(c.Request.Context(), companyID, txID, middleware.UserID(c))
	h.respond(c, "ignore transaction", res, err)
}

func (h *ReconciliationHandler) UnignoreTransaction(c *gin.Context) {
	companyID, txID, ok := transactionParams(c)
	if !ok {
		return
	}
	res, err := h.service.Unignore(c.Request.Context(), companyID, txID, middleware.UserID(c))
	h.respond(c, "unignore transaction", res, err)
}

func (h *ReconciliationHandler) ListTransactions(c *gin.Context) {
	companyID, ok := companyParam(c)
	if !ok {
		return
	}

	status := c.Query("status")
	switch models.MatchStatus(status) {
	case "", "all", models.MatchStatusUnmatched, models.MatchStatusMatched, models.MatchStatusIgnored:
	default:
		badRequest(c, "invalid status filter")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		badRequest(c, "invalid limit")
		return
	}
	var cursor string
	if raw := c.Query("cursor"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "invalid cursor")
			return
		}
		cursor = id.String()
	}

	items, nextCursor, hasMore, err := h.transactions.List(c.Request.Context(), repository.TransactionFilter{
		CompanyID: companyID,
		Status:    status,
		Search:    c.Query("search"),
		Cursor:    cursor,
		Limit:     limit,
	})
	if err != nil {
		h.internalError(c, "list transactions", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
	})
}

func (h *ReconciliationHandler) GetTransaction(c *gin.Context) {
	companyID, txID, ok := transactionParams(c)
	if !ok {
		return
	}
	tx, err := h.transactions.GetByID(c.Request.Context(), txID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && tx.CompanyID != companyID) {
		notFound(c)
		return
	}
	if err != nil {
		h.internalError(c, "get transaction", err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// Candidates lists the payments an operator could match the transaction to.
func (h *ReconciliationHandler) Candidates(c *gin.Context) {
	companyID, txID, ok := transactionParams(c)
	if !ok {
		return
	}
	candidates, err := h.service.Suggest(c.Request.Context(), companyID, txID)
	if errors.Is(err, service.ErrNotFound) {
		notFound(c)
		return
	}
	if err != nil {
		h.internalError(c, "suggest candidates", err)
		return
	}

	items := make([]gin.H, 0, len(candidates))
	for _, cand := range candidates {
		items = append(items, gin.H{
			"payment":        cand.Payment,
			"tier":           cand.Tier.String(),
			"amount_diff":    cand.AmountDiff.StringFixed(2),
			"date_diff_days": cand.DateDiffDays,
			"reference_hit":  cand.ReferenceHit,
			"score":          cand.Score,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *ReconciliationHandler) AuditTrail(c *gin.Context) {
	companyID, txID, ok := transactionParams(c)
	if !ok {
		return
	}
	logs, err := h.matches.AuditTrail(c.Request.Context(), companyID, txID)
	if err != nil {
		h.internalError(c, "audit trail", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": logs})
}

func (h *ReconciliationHandler) ListPayments(c *gin.Context) {
	companyID, ok := companyParam(c)
	if !ok {
		return
	}

	var statuses []string
	if status := c.Query("status"); status != "" {
		switch models.PaymentStatus(status) {
		case models.PaymentStatusPending, models.PaymentStatusPaid, models.PaymentStatusOverdue:
			statuses = []string{status}
		default:
			badRequest(c, "invalid status filter")
			return
		}
	}

	payments, err := h.payments.Search(c.Request.Context(), companyID, c.Query("contract_ref"), statuses)
	if err != nil {
		h.internalError(c, "list payments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": payments})
}

func (h *ReconciliationHandler) Stats(c *gin.Context) {
	companyID, ok := companyParam(c)
	if !ok {
		return
	}
	stats, err := h.transactions.Stats(c.Request.Context(), companyID)
	if err != nil {
		h.internalError(c, "reconciliation stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// respond writes a service Result, picking the status code from its error.
func (h *ReconciliationHandler) respond(c *gin.Context, op string, res service.Result, err error) {
	if err != nil {
		h.internalError(c, op, err)
		return
	}
	c.JSON(statusFor(res), res)
}

func (h *ReconciliationHandler) internalError(c *gin.Context, op string, err error) {
	writeInternal(c, h.logger, op, err)
}

func statusFor(res service.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Error {
	case service.ErrNotFound.Error():
		return http.StatusNotFound
	case service.ErrInvalidRequest.Error():
		return http.StatusBadRequest
	default:
		return http.StatusConflict
	}
}
