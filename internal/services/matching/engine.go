// Package matching decides which unmatched bank transactions and expected
// payments describe the same cash movement. It does no I/O: callers load
// the unmatched sets, ask for a Plan and persist the proposed pairs.
//
// A payment is a candidate for a transaction when
//   - the transaction is an inflow,
//   - |amount - expected| is within the amount tolerance, and
//   - the value date is within the date window around the due date.
//
// Exact amounts outrank the tolerance band. With the reference tie-break on,
// a candidate whose contract reference appears in the label outranks one
// that does not, inside the same amount tier. A pair is proposed only when
// each side is the other's single best-ranked candidate; anything else is
// left for an operator.
package matching

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"property-reconciliation-backend/internal/models"
)

type Tier int

const (
	TierNone Tier = iota
	TierTolerance
	TierExact
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierTolerance:
		return "tolerance"
	default:
		return "none"
	}
}

// Candidate is one payment that satisfies both criteria for a transaction.
type Candidate struct {
	Payment      *models.Payment
	Tier         Tier
	AmountDiff   decimal.Decimal
	DateDiffDays int
	ReferenceHit bool
	Score        float64
}

// Proposal is a pair the engine is confident enough to record.
type Proposal struct {
	Transaction *models.BankTransaction
	Candidate   Candidate
}

// Details is persisted with an auto match so operators can see why it was made.
func (p Proposal) Details() map[string]interface{} {
	return map[string]interface{}{
		"payment_id":     p.Candidate.Payment.ID.String(),
		"contract_ref":   p.Candidate.Payment.ContractRef,
		"tier":           p.Candidate.Tier.String(),
		"amount_diff":    p.Candidate.AmountDiff.StringFixed(2),
		"date_diff_days": p.Candidate.DateDiffDays,
		"reference_hit":  p.Candidate.ReferenceHit,
		"score":          p.Candidate.Score,
	}
}

// Plan is the outcome of one matching pass over a company's unmatched sets.
type Plan struct {
	Proposals []Proposal
	// Ambiguous holds transactions that had candidates but no single
	// mutual best one.
	Ambiguous []*models.BankTransaction
	// NoCandidate holds transactions nothing could match.
	NoCandidate []*models.BankTransaction
}

type Engine struct {
	config Config
}

func NewEngine(config Config) *Engine {
	return &Engine{config: config}
}

// Evaluate checks a single pair. ok is false when the payment is not a
// candidate for the transaction.
func (e *Engine) Evaluate(tx *models.BankTransaction, p *models.Payment) (Candidate, bool) {
	if !tx.IsInflow() {
		return Candidate{}, false
	}

	diff := tx.Amount.Sub(p.ExpectedAmount).Abs()
	var tier Tier
	switch {
	case diff.IsZero():
		tier = TierExact
	case diff.LessThanOrEqual(e.config.AmountTolerance):
		tier = TierTolerance
	default:
		return Candidate{}, false
	}

	days := dayDiff(tx.ValueDate, p.DueDate)
	if days > e.config.DateWindowDays {
		return Candidate{}, false
	}

	c := Candidate{
		Payment:      p,
		Tier:         tier,
		AmountDiff:   diff,
		DateDiffDays: days,
		ReferenceHit: referenceHit(p.ContractRef, tx.Label, tx.Reference),
	}
	refScore := 100.0
	if !c.ReferenceHit {
		refScore = referenceSimilarity(p.ContractRef, tx.Label, tx.Reference)
	}
	c.Score = 0.6*amountScore(diff, e.config.AmountTolerance) + 0.3*dateScore(days) + 0.1*refScore
	return c, true
}

// rank orders candidates: higher is better, equal ranks are a tie.
func (e *Engine) rank(c Candidate) int {
	r := int(c.Tier) * 2
	if e.config.ReferenceTieBreak && c.ReferenceHit {
		r++
	}
	return r
}

// Plan proposes pairs until no further unambiguous pair exists. Settled
// pairs are removed from both pools between rounds, which can resolve a
// tie that only existed because of an already-matched counterpart.
func (e *Engine) Plan(transactions []models.BankTransaction, payments []models.Payment) Plan {
	txs := make([]*models.BankTransaction, 0, len(transactions))
	for i := range transactions {
		if transactions[i].IsInflow() {
			txs = append(txs, &transactions[i])
		}
	}
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].ValueDate.Equal(txs[j].ValueDate) {
			return txs[i].ValueDate.Before(txs[j].ValueDate)
		}
		return txs[i].ID.String() < txs[j].ID.String()
	})

	// candidate lists are computed once; later rounds only filter out
	// payments that are already taken.
	cands := make(map[uuid.UUID][]Candidate, len(txs))
	for _, tx := range txs {
		for j := range payments {
			if payments[j].IsMatched() {
				continue
			}
			if c, ok := e.Evaluate(tx, &payments[j]); ok {
				cands[tx.ID] = append(cands[tx.ID], c)
			}
		}
	}

	var plan Plan
	takenTx := make(map[uuid.UUID]bool)
	takenPay := make(map[uuid.UUID]bool)

	for {
		// best rank each open payment receives from open transactions, and
		// how many transactions reach it.
		type claim struct {
			rank  int
			count int
		}
		claims := make(map[uuid.UUID]claim)
		for _, tx := range txs {
			if takenTx[tx.ID] {
				continue
			}
			for _, c := range cands[tx.ID] {
				if takenPay[c.Payment.ID] {
					continue
				}
				r := e.rank(c)
				cl := claims[c.Payment.ID]
				switch {
				case cl.count == 0 || r > cl.rank:
					claims[c.Payment.ID] = claim{rank: r, count: 1}
				case r == cl.rank:
					cl.count++
					claims[c.Payment.ID] = cl
				}
			}
		}

		progressed := false
		for _, tx := range txs {
			if takenTx[tx.ID] {
				continue
			}
			best, ok := e.uniqueBest(cands[tx.ID], takenPay)
			if !ok {
				continue
			}
			cl := claims[best.Payment.ID]
			if cl.rank != e.rank(best) || cl.count != 1 {
				continue
			}
			takenTx[tx.ID] = true
			takenPay[best.Payment.ID] = true
			plan.Proposals = append(plan.Proposals, Proposal{Transaction: tx, Candidate: best})
			progressed = true
		}
		if !progressed {
			break
		}
	}

	for _, tx := range txs {
		if takenTx[tx.ID] {
			continue
		}
		if open := openCandidates(cands[tx.ID], takenPay); open > 0 {
			plan.Ambiguous = append(plan.Ambiguous, tx)
		} else {
			plan.NoCandidate = append(plan.NoCandidate, tx)
		}
	}
	return plan
}

// Candidates lists every open candidate for one transaction, best first.
func (e *Engine) Candidates(tx *models.BankTransaction, payments []models.Payment) []Candidate {
	var out []Candidate
	for j := range payments {
		if payments[j].IsMatched() {
			continue
		}
		if c, ok := e.Evaluate(tx, &payments[j]); ok {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := e.rank(out[i]), e.rank(out[j])
		if ri != rj {
			return ri > rj
		}
		return out[i].Score > out[j].Score
	})
	return out
}

func (e *Engine) uniqueBest(cands []Candidate, taken map[uuid.UUID]bool) (Candidate, bool) {
	var best Candidate
	bestRank, count := -1, 0
	for _, c := range cands {
		if taken[c.Payment.ID] {
			continue
		}
		r := e.rank(c)
		switch {
		case r > bestRank:
			best, bestRank, count = c, r, 1
		case r == bestRank:
			count++
		}
	}
	return best, count == 1
}

func openCandidates(cands []Candidate, taken map[uuid.UUID]bool) int {
	n := 0
	for _, c := range cands {
		if !taken[c.Payment.ID] {
			n++
		}
	}
	return n
}
