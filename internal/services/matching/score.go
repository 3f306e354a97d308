package matching

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// dayDiff is the absolute distance between two calendar dates in days.
// Times of day are ignored so a 23:00 booking still lands on its date.
func dayDiff(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	d := int(da.Sub(db).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

func amountScore(diff, tolerance decimal.Decimal) float64 {
	if diff.IsZero() {
		return 100
	}
	if tolerance.IsZero() {
		return 0
	}
	ratio, _ := diff.Div(tolerance).Float64()
	return 100 - 20*math.Min(ratio, 1)
}

func dateScore(days int) float64 {
	switch {
	case days <= 3:
		return 100
	case days <= 7:
		return 80
	case days <= 15:
		return 60
	case days <= 30:
		return 40
	default:
		return 20
	}
}

func normalizeRef(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return -1
	}, s)
}

// referenceHit reports whether the contract reference appears in the bank
// label or reference once punctuation and case are stripped.
func referenceHit(contractRef, label, reference string) bool {
	ref := normalizeRef(contractRef)
	if len(ref) < 3 {
		return false
	}
	return strings.Contains(normalizeRef(label), ref) || strings.Contains(normalizeRef(reference), ref)
}

// referenceSimilarity scores 0-100 how close the best label token is to the
// contract reference.
func referenceSimilarity(contractRef, label, reference string) float64 {
	ref := []rune(normalizeRef(contractRef))
	if len(ref) == 0 {
		return 0
	}
	best := 0.0
	for _, tok := range strings.Fields(label + " " + reference) {
		t := []rune(normalizeRef(tok))
		if len(t) == 0 {
			continue
		}
		r := levenshtein.RatioForStrings(ref, t, levenshtein.DefaultOptions)
		if r > best {
			best = r
		}
	}
	return best * 100
}
