package matching

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-reconciliation-backend/internal/config"
	"property-reconciliation-backend/internal/models"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func makeTx(amount, date, label string) models.BankTransaction {
	return models.BankTransaction{
		ID:          uuid.New(),
		Amount:      decimal.RequireFromString(amount),
		ValueDate:   day(date),
		Label:       label,
		MatchStatus: models.MatchStatusUnmatched,
	}
}

func makePayment(ref, amount, due string) models.Payment {
	return models.Payment{
		ID:             uuid.New(),
		ContractRef:    ref,
		ExpectedAmount: decimal.RequireFromString(amount),
		DueDate:        day(due),
		Status:         models.PaymentStatusPending,
	}
}

func TestPlan_ExactAmountInsideWindow(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	txs := []models.BankTransaction{makeTx("450.00", "2024-03-05", "TRANSFER RENT MARCH")}
	payments := []models.Payment{makePayment("", "450.00", "2024-03-01")}

	plan := engine.Plan(txs, payments)

	require.Len(t, plan.Proposals, 1)
	p := plan.Proposals[0]
	assert.Equal(t, txs[0].ID, p.Transaction.ID)
	assert.Equal(t, payments[0].ID, p.Candidate.Payment.ID)
	assert.Equal(t, TierExact, p.Candidate.Tier)
	assert.Equal(t, 4, p.Candidate.DateDiffDays)
	assert.InDelta(t, 84.0, p.Candidate.Score, 0.001)
	assert.Empty(t, plan.Ambiguous)
	assert.Empty(t, plan.NoCandidate)
}

func TestPlan_TwoExactCandidatesIsAmbiguous(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	txs := []models.BankTransaction{makeTx("450.00", "2024-03-05", "TRANSFER")}
	payments := []models.Payment{
		makePayment("CTR-1", "450.00", "2024-03-01"),
		makePayment("CTR-2", "450.00", "2024-03-03"),
	}

	plan := engine.Plan(txs, payments)

	assert.Empty(t, plan.Proposals)
	require.Len(t, plan.Ambiguous, 1)
	assert.Equal(t, txs[0].ID, plan.Ambiguous[0].ID)
}

func TestPlan_ExactBeatsToleranceBand(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	txs := []models.BankTransaction{makeTx("450.00", "2024-03-05", "TRANSFER")}
	payments := []models.Payment{
		makePayment("CTR-1", "449.99", "2024-03-05"),
		makePayment("CTR-2", "450.00", "2024-03-01"),
	}

	plan := engine.Plan(txs, payments)

	require.Len(t, plan.Proposals, 1)
	assert.Equal(t, payments[1].ID, plan.Proposals[0].Candidate.Payment.ID)
}

func TestPlan_ToleranceBandAlone(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	txs := []models.BankTransaction{makeTx("450.00", "2024-03-05", "TRANSFER")}
	payments := []models.Payment{makePayment("CTR-1", "449.99", "2024-03-05")}

	plan := engine.Plan(txs, payments)

	require.Len(t, plan.Proposals, 1)
	c := plan.Proposals[0].Candidate
	assert.Equal(t, TierTolerance, c.Tier)
	assert.Equal(t, "0.01", c.AmountDiff.StringFixed(2))
}

func TestPlan_TwoToleranceCandidatesIsAmbiguous(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	txs := []models.BankTransaction{makeTx("450.00", "2024-03-05", "TRANSFER")}
	payments := []models.Payment{
		makePayment("CTR-1", "449.99", "2024-03-05"),
		makePayment("CTR-2", "450.01", "2024-03-05"),
	}

	plan := engine.Plan(txs, payments)

	assert.Empty(t, plan.Proposals)
	assert.Len(t, plan.Ambiguous, 1)
}

func TestEvaluate_Boundaries(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	tx := makeTx("450.00", "2024-03-08", "TRANSFER")

	tests := []struct {
		name   string
		amount string
		due    string
		want   bool
	}{
		{"window edge", "450.00", "2024-03-01", true},
		{"one day past window", "450.00", "2024-02-29", false},
		{"window edge after due", "450.00", "2024-03-15", true},
		{"tolerance edge", "450.01", "2024-03-08", true},
		{"outside tolerance", "450.02", "2024-03-08", false},
		{"far off amount", "300.00", "2024-03-08", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := makePayment("", tt.amount, tt.due)
			_, ok := engine.Evaluate(&tx, &p)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestEvaluate_IgnoresTimeOfDay(t *testing.T) {
	engine := NewEngine(Config{AmountTolerance: decimal.Zero, DateWindowDays: 0})
	tx := makeTx("100.00", "2024-03-01", "X")
	tx.ValueDate = tx.ValueDate.Add(23 * time.Hour)
	p := makePayment("", "100.00", "2024-03-01")

	c, ok := engine.Evaluate(&tx, &p)

	require.True(t, ok)
	assert.Equal(t, 0, c.DateDiffDays)
}

func TestPlan_SkipsOutflows(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	txs := []models.BankTransaction{makeTx("-450.00", "2024-03-05", "DIRECT DEBIT")}
	payments := []models.Payment{makePayment("", "450.00", "2024-03-05")}

	plan := engine.Plan(txs, payments)

	assert.Empty(t, plan.Proposals)
	assert.Empty(t, plan.Ambiguous)
	assert.Empty(t, plan.NoCandidate)
}

func TestPlan_ReferenceBreaksTie(t *testing.T) {
	txs := []models.BankTransaction{makeTx("450.00", "2024-03-05", "SEPA CT ctr-1002 march rent")}
	payments := []models.Payment{
		makePayment("CTR-1001", "450.00", "2024-03-01"),
		makePayment("CTR-1002", "450.00", "2024-03-01"),
	}

	plan := NewEngine(DefaultConfig()).Plan(txs, payments)

	require.Len(t, plan.Proposals, 1)
	assert.Equal(t, payments[1].ID, plan.Proposals[0].Candidate.Payment.ID)
	assert.True(t, plan.Proposals[0].Candidate.ReferenceHit)

	cfg := DefaultConfig()
	cfg.ReferenceTieBreak = false
	plan = NewEngine(cfg).Plan(txs, payments)

	assert.Empty(t, plan.Proposals)
	assert.Len(t, plan.Ambiguous, 1)
}

func TestPlan_ReferenceDoesNotBeatExactAmount(t *testing.T) {
	txs := []models.BankTransaction{makeTx("450.00", "2024-03-05", "CTR-1001")}
	payments := []models.Payment{
		makePayment("CTR-1001", "449.99", "2024-03-05"),
		makePayment("CTR-2002", "450.00", "2024-03-05"),
	}

	plan := NewEngine(DefaultConfig()).Plan(txs, payments)

	require.Len(t, plan.Proposals, 1)
	assert.Equal(t, payments[1].ID, plan.Proposals[0].Candidate.Payment.ID)
}

func TestPlan_TwoTransactionsClaimingOnePayment(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	txs := []models.BankTransaction{
		makeTx("450.00", "2024-03-04", "TRANSFER A"),
		makeTx("450.00", "2024-03-05", "TRANSFER B"),
	}
	payments := []models.Payment{makePayment("", "450.00", "2024-03-01")}

	plan := engine.Plan(txs, payments)

	assert.Empty(t, plan.Proposals)
	assert.Len(t, plan.Ambiguous, 2)
}

func TestPlan_SettledPairResolvesLaterTie(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	txs := []models.BankTransaction{
		makeTx("450.00", "2024-03-02", "TRANSFER A"),
		makeTx("450.01", "2024-03-03", "TRANSFER B"),
	}
	payments := []models.Payment{
		makePayment("", "450.00", "2024-03-01"),
		makePayment("", "450.02", "2024-03-01"),
	}

	plan := engine.Plan(txs, payments)

	require.Len(t, plan.Proposals, 2)
	got := map[uuid.UUID]uuid.UUID{}
	for _, p := range plan.Proposals {
		got[p.Transaction.ID] = p.Candidate.Payment.ID
	}
	assert.Equal(t, payments[0].ID, got[txs[0].ID])
	assert.Equal(t, payments[1].ID, got[txs[1].ID])
}

func TestPlan_IgnoresAlreadyMatchedPayments(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	txs := []models.BankTransaction{makeTx("450.00", "2024-03-05", "TRANSFER")}
	matched := makePayment("", "450.00", "2024-03-01")
	other := uuid.New()
	matched.MatchedTransactionID = &other

	plan := engine.Plan(txs, []models.Payment{matched})

	assert.Empty(t, plan.Proposals)
	assert.Len(t, plan.NoCandidate, 1)
}

func TestCandidates_OrderedBestFirst(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	tx := makeTx("450.00", "2024-03-05", "TRANSFER")
	payments := []models.Payment{
		makePayment("A", "449.99", "2024-03-05"),
		makePayment("B", "450.00", "2024-03-11"),
		makePayment("C", "450.00", "2024-03-05"),
	}

	cands := engine.Candidates(&tx, payments)

	require.Len(t, cands, 3)
	assert.Equal(t, "C", cands[0].Payment.ContractRef)
	assert.Equal(t, "B", cands[1].Payment.ContractRef)
	assert.Equal(t, "A", cands[2].Payment.ContractRef)
}

func TestProposalDetails(t *testing.T) {
	tx := makeTx("450.00", "2024-03-05", "TRANSFER")
	p := makePayment("CTR-9", "450.00", "2024-03-01")
	c, ok := NewEngine(DefaultConfig()).Evaluate(&tx, &p)
	require.True(t, ok)

	d := Proposal{Transaction: &tx, Candidate: c}.Details()

	assert.Equal(t, "exact", d["tier"])
	assert.Equal(t, "0.00", d["amount_diff"])
	assert.Equal(t, 4, d["date_diff_days"])
	assert.Equal(t, p.ID.String(), d["payment_id"])
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.MatchingConfig{AmountTolerance: "0.05", DateWindowDays: -2, ReferenceTieBreak: true})

	assert.Equal(t, "0.05", cfg.AmountTolerance.StringFixed(2))
	assert.Equal(t, 0, cfg.DateWindowDays)
	assert.True(t, cfg.ReferenceTieBreak)
}
