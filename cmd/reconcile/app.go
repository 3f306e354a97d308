package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"property-reconciliation-backend/internal/bankfeed"
	"property-reconciliation-backend/internal/breaker"
	"property-reconciliation-backend/internal/config"
	"property-reconciliation-backend/internal/logging"
	"property-reconciliation-backend/internal/repository"
	"property-reconciliation-backend/internal/services/importer"
	"property-reconciliation-backend/internal/services/matching"
	"property-reconciliation-backend/internal/services/reconciliation"
)

// app is the wiring shared by every subcommand.
type app struct {
	db           *gorm.DB
	recon        *reconciliation.Service
	importer     *importer.Service
	transactions *repository.BankTransactionRepository
	logger       *slog.Logger
	out          io.Writer
	asJSON       bool
}

func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	var cfg *config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.LoadOrEnv()
	}

	logger := logging.New(os.Stderr, cfg.Logging)
	db, err := config.InitDB(cfg.Database)
	if err != nil {
		return nil, err
	}

	transactions := repository.NewBankTransactionRepository(db)
	store := repository.NewMatchStore(db)

	var feed importer.Feed
	if cfg.BankFeed.BaseURL != "" {
		feed = bankfeed.NewClient(cfg.BankFeed, breaker.NewSet(cfg.BankFeed.FailureThreshold, cfg.BankFeed.Cooldown), logger)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	return &app{
		db:           db,
		recon:        reconciliation.NewService(store, matching.NewEngine(matching.FromSettings(cfg.Matching)), logger),
		importer:     importer.NewService(transactions, repository.NewPaymentRepository(db), repository.NewImportBatchRepository(db), feed, logger),
		transactions: transactions,
		logger:       logger,
		out:          cmd.OutOrStdout(),
		asJSON:       asJSON,
	}, nil
}

func (a *app) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func companyFlag(cmd *cobra.Command) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString("company")
	if raw == "" {
		return uuid.Nil, fmt.Errorf("--company is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --company: %w", err)
	}
	return id, nil
}

func uuidFlag(cmd *cobra.Command, name string) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return id, nil
}

// resultErr turns a failed Result into a command error so the exit code
// reflects it.
func resultErr(res reconciliation.Result) error {
	if res.Success {
		return nil
	}
	return errors.New(res.Error)
}
