package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func companyParam(c *gin.Context) (uuid.UUID, bool) {
	return uuidParam(c, "companyId", "invalid company ID")
}

func transactionParams(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	companyID, ok := companyParam(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	txID, ok := uuidParam(c, "id", "invalid transaction ID")
	return companyID, txID, ok
}

func uuidParam(c *gin.Context, name, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, msg)
		return uuid.Nil, false
	}
	return id, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "InvalidRequest", "message": msg})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "NotFound"})
}

// writeInternal hides store failures from the caller and logs them.
func writeInternal(c *gin.Context, logger *slog.Logger, op string, err error) {
	_ = c.Error(err)
	logger.Error(op+" failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "InternalError"})
}
