package matching

import (
	"github.com/shopspring/decimal"

	"property-reconciliation-backend/internal/config"
)

// Config holds the auto-matching tolerances.
type Config struct {
	AmountTolerance   decimal.Decimal // default 0.01
	DateWindowDays    int             // ± days around the due date, default 7
	ReferenceTieBreak bool            // prefer the candidate whose contract ref appears in the label
}

// DefaultConfig returns one cent, seven days, tie-break on.
func DefaultConfig() Config {
	return Config{
		AmountTolerance:   decimal.New(1, -2),
		DateWindowDays:    7,
		ReferenceTieBreak: true,
	}
}

// FromSettings converts the file/env configuration.
func FromSettings(m config.MatchingConfig) Config {
	days := m.DateWindowDays
	if days < 0 {
		days = 0
	}
	return Config{
		AmountTolerance:   m.Tolerance(),
		DateWindowDays:    days,
		ReferenceTieBreak: m.ReferenceTieBreak,
	}
}
