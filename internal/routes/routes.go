package routes

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"property-reconciliation-backend/internal/bankfeed"
	"property-reconciliation-backend/internal/breaker"
	"property-reconciliation-backend/internal/config"
	handler "property-reconciliation-backend/internal/handlers"
	"property-reconciliation-backend/internal/middleware"
	"property-reconciliation-backend/internal/repository"
	"property-reconciliation-backend/internal/services/importer"
	"property-reconciliation-backend/internal/services/matching"
	service "property-reconciliation-backend/internal/services/reconciliation"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg *config.Config, logger *slog.Logger) {
	transactionRepo := repository.NewBankTransactionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	batchRepo := repository.NewImportBatchRepository(db)
	store := repository.NewMatchStore(db)

	reconService := service.NewService(store, matching.NewEngine(matching.FromSettings(cfg.Matching)), logger)

	var (
		feed     importer.Feed
		breakers *breaker.Set
	)
	if cfg.BankFeed.BaseURL != "" {
		breakers = breaker.NewSet(cfg.BankFeed.FailureThreshold, cfg.BankFeed.Cooldown)
		feed = bankfeed.NewClient(cfg.BankFeed, breakers, logger)
	}
	importService := importer.NewService(transactionRepo, paymentRepo, batchRepo, feed, logger)

	reconHandler := handler.NewReconciliationHandler(reconService, transactionRepo, paymentRepo, store, logger)
	importHandler := handler.NewImportHandler(importService, reconService, breakers, logger)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api.Use(middleware.RequireUser())
	api.GET("/imports/:batchId", importHandler.GetBatch)
	api.GET("/bankfeed/status", importHandler.FeedStatus)

	company := api.Group("/companies/:companyId")

	recon := company.Group("/reconciliation")
	recon.POST("/auto", reconHandler.AutoReconcile)
	recon.POST("/manual", reconHandler.ManualReconcile)
	recon.GET("/stats", reconHandler.Stats)

	// Transaction-level routes
	tx := company.Group("/transactions")
	tx.GET("", reconHandler.ListTransactions)
	tx.GET("/:id", reconHandler.GetTransaction)
	tx.GET("/:id/candidates", reconHandler.Candidates)
	tx.GET("/:id/audit", reconHandler.AuditTrail)
	tx.POST("/:id/undo", reconHandler.UndoReconciliation)
	tx.POST("/:id/ignore", reconHandler.IgnoreTransaction)
	tx.POST("/:id/unignore", reconHandler.UnignoreTransaction)

	company.GET("/payments", reconHandler.ListPayments)

	imports := company.Group("/imports")
	{
		imports.POST("/transactions", importHandler.ImportTransactions)
		imports.POST("/payments", importHandler.ImportPayments)
		imports.POST("/bankfeed", importHandler.ImportBankFeed)
	}
}
