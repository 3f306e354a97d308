// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"property-reconciliation-backend/internal/config"
	"property-reconciliation-backend/internal/models"
)

// NewDB returns a migrated in-memory sqlite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := config.InitDB(config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("init test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// Date parses YYYY-MM-DD as a UTC date.
func Date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// SeedTransaction inserts an unmatched bank transaction.
func SeedTransaction(t *testing.T, db *gorm.DB, companyID uuid.UUID, amount, date, label string) models.BankTransaction {
	t.Helper()
	tx := models.BankTransaction{
		ID:          uuid.New(),
		CompanyID:   companyID,
		Amount:      decimal.RequireFromString(amount),
		ValueDate:   Date(date),
		Label:       label,
		Reference:   uuid.NewString()[:8],
		MatchStatus: models.MatchStatusUnmatched,
	}
	if err := db.WithContext(context.Background()).Create(&tx).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return tx
}

// SeedPayment inserts a pending payment.
func SeedPayment(t *testing.T, db *gorm.DB, companyID uuid.UUID, contractRef, amount, due string) models.Payment {
	t.Helper()
	p := models.Payment{
		ID:             uuid.New(),
		CompanyID:      companyID,
		ContractRef:    contractRef,
		ExpectedAmount: decimal.RequireFromString(amount),
		DueDate:        Date(due),
		Period:         Date(due).Format("2006-01"),
		Status:         models.PaymentStatusPending,
	}
	if err := db.WithContext(context.Background()).Create(&p).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return p
}
