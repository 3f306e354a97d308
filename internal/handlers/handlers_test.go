package handler_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"property-reconciliation-backend/internal/config"
	"property-reconciliation-backend/internal/logging"
	"property-reconciliation-backend/internal/models"
	"property-reconciliation-backend/internal/routes"
	"property-reconciliation-backend/internal/testutil"
)

type api struct {
	t      *testing.T
	router *gin.Engine
	db     *gorm.DB
}

func newAPI(t *testing.T, mutate ...func(*config.Config)) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Defaults()
	for _, m := range mutate {
		m(cfg)
	}
	db := testutil.NewDB(t)
	r := gin.New()
	routes.RegisterRoutes(r, db, cfg, logging.Discard())
	return &api{t: t, router: r, db: db}
}

func (a *api) do(method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	a.t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-User-ID", "alice")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *api) postJSON(path string, payload interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(a.t, err)
	return a.do(http.MethodPost, path, body, "application/json")
}

func (a *api) upload(path, filename, content string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(a.t, err)
	_, err = part.Write([]byte(content))
	require.NoError(a.t, err)
	require.NoError(a.t, w.Close())
	return a.do(http.MethodPost, path, buf.Bytes(), w.FormDataContentType())
}

type resultBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Summary *struct {
		Matched       int             `json:"matched"`
		Total         int             `json:"total"`
		Ambiguous     int             `json:"ambiguous"`
		MatchedAmount decimal.Decimal `json:"matched_amount"`
	} `json:"summary"`
	Transaction *models.BankTransaction `json:"transaction"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func companyPath(company uuid.UUID, suffix string) string {
	return "/api/companies/" + company.String() + suffix
}

func TestHealthNeedsNoUser(t *testing.T) {
	a := newAPI(t)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRequiresUserHeader(t *testing.T) {
	a := newAPI(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, companyPath(uuid.New(), "/reconciliation/auto"), nil)
	a.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAutoReconcile(t *testing.T) {
	a := newAPI(t)
	company := uuid.New()
	testutil.SeedTransaction(t, a.db, company, "450.00", "2024-03-05", "RENT MARCH")
	testutil.SeedPayment(t, a.db, company, "CTR-1001", "450.00", "2024-03-01")

	rec := a.do(http.MethodPost, companyPath(company, "/reconciliation/auto"), nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body resultBody
	decode(t, rec, &body)
	assert.True(t, body.Success)
	require.NotNil(t, body.Summary)
	assert.Equal(t, 1, body.Summary.Matched)
	assert.Equal(t, 1, body.Summary.Total)
	assert.True(t, decimal.NewFromInt(450).Equal(body.Summary.MatchedAmount))
}

func TestAutoReconcile_InvalidCompany(t *testing.T) {
	a := newAPI(t)

	rec := a.do(http.MethodPost, "/api/companies/not-a-uuid/reconciliation/auto", nil, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestManualReconcileAndUndo(t *testing.T) {
	a := newAPI(t)
	company := uuid.New()
	tx := testutil.SeedTransaction(t, a.db, company, "450.00", "2024-03-05", "RENT")
	p1 := testutil.SeedPayment(t, a.db, company, "CTR-1", "450.00", "2024-03-01")
	p2 := testutil.SeedPayment(t, a.db, company, "CTR-2", "450.00", "2024-03-01")
	manual := companyPath(company, "/reconciliation/manual")

	rec := a.postJSON(manual, map[string]string{"transaction_id": tx.ID.String()})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "payment_id is required")

	rec = a.postJSON(manual, map[string]string{"transaction_id": tx.ID.String(), "payment_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.postJSON(manual, map[string]string{"transaction_id": tx.ID.String(), "payment_id": p1.ID.String(), "note": "phone"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body resultBody
	decode(t, rec, &body)
	require.NotNil(t, body.Transaction)
	assert.Equal(t, "alice", body.Transaction.MatchedBy)
	assert.Equal(t, models.MatchStatusMatched, body.Transaction.MatchStatus)

	rec = a.postJSON(manual, map[string]string{"transaction_id": tx.ID.String(), "payment_id": p2.ID.String()})
	assert.Equal(t, http.StatusConflict, rec.Code)
	decode(t, rec, &body)
	assert.Equal(t, "AlreadyMatched", body.Error)

	undo := companyPath(company, "/transactions/"+tx.ID.String()+"/undo")
	rec = a.do(http.MethodPost, undo, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodPost, undo, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	body = resultBody{}
	decode(t, rec, &body)
	assert.Equal(t, "NotMatched", body.Error)

	rec = a.do(http.MethodGet, companyPath(company, "/transactions/"+tx.ID.String()+"/audit"), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var audit struct {
		Items []models.MatchAuditLog `json:"items"`
	}
	decode(t, rec, &audit)
	require.Len(t, audit.Items, 2)
	actions := []string{audit.Items[0].Action, audit.Items[1].Action}
	assert.ElementsMatch(t, []string{models.AuditActionMatch, models.AuditActionUnmatch}, actions)
}

func TestManualReconcile_OtherCompanyIsNotFound(t *testing.T) {
	a := newAPI(t)
	company := uuid.New()
	tx := testutil.SeedTransaction(t, a.db, company, "450.00", "2024-03-05", "RENT")
	p := testutil.SeedPayment(t, a.db, uuid.New(), "CTR-1", "450.00", "2024-03-01")

	rec := a.postJSON(companyPath(company, "/reconciliation/manual"),
		map[string]string{"transaction_id": tx.ID.String(), "payment_id": p.ID.String()})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body resultBody
	decode(t, rec, &body)
	assert.Equal(t, "NotFound", body.Error)
}

func TestIgnoreFlow(t *testing.T) {
	a := newAPI(t)
	company := uuid.New()
	tx := testutil.SeedTransaction(t, a.db, company, "-4.50", "2024-03-05", "FEE")
	base := companyPath(company, "/transactions/"+tx.ID.String())

	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, base+"/ignore", nil, "").Code)
	assert.Equal(t, http.StatusConflict, a.do(http.MethodPost, base+"/ignore", nil, "").Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, base+"/unignore", nil, "").Code)
	assert.Equal(t, http.StatusConflict, a.do(http.MethodPost, base+"/unignore", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, companyPath(uuid.New(), "/transactions/"+tx.ID.String()+"/ignore"), nil, "").Code)
}

func TestListTransactionsAndStats(t *testing.T) {
	a := newAPI(t)
	company := uuid.New()
	for _, amount := range []string{"100.00", "200.00", "300.00"} {
		testutil.SeedTransaction(t, a.db, company, amount, "2024-03-05", "ROW")
	}
	testutil.SeedPayment(t, a.db, company, "CTR-1", "100.00", "2024-03-05")
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, companyPath(company, "/reconciliation/auto"), nil, "").Code)

	var page struct {
		Items      []models.BankTransaction `json:"items"`
		NextCursor string                   `json:"next_cursor"`
		HasMore    bool                     `json:"has_more"`
	}
	rec := a.do(http.MethodGet, companyPath(company, "/transactions?limit=2"), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &page)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)

	rec = a.do(http.MethodGet, companyPath(company, "/transactions?limit=2&cursor="+page.NextCursor), nil, "")
	decode(t, rec, &page)
	assert.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)

	rec = a.do(http.MethodGet, companyPath(company, "/transactions?status=matched"), nil, "")
	decode(t, rec, &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "100.00", page.Items[0].Amount.StringFixed(2))

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, companyPath(company, "/transactions?status=bogus"), nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, companyPath(company, "/transactions?limit=x"), nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, companyPath(company, "/transactions?cursor=not-a-uuid"), nil, "").Code)

	rec = a.do(http.MethodGet, companyPath(company, "/reconciliation/stats"), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Total          int64 `json:"total"`
		MatchedCount   int64 `json:"matched_count"`
		AutoCount      int64 `json:"auto_matched_count"`
		UnmatchedCount int64 `json:"unmatched_count"`
	}
	decode(t, rec, &stats)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.MatchedCount)
	assert.Equal(t, int64(1), stats.AutoCount)
	assert.Equal(t, int64(2), stats.UnmatchedCount)
}

func TestGetTransactionAndCandidates(t *testing.T) {
	a := newAPI(t)
	company := uuid.New()
	tx := testutil.SeedTransaction(t, a.db, company, "450.00", "2024-03-05", "RENT")
	p := testutil.SeedPayment(t, a.db, company, "CTR-1", "450.00", "2024-03-04")

	rec := a.do(http.MethodGet, companyPath(company, "/transactions/"+tx.ID.String()), nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(http.MethodGet, companyPath(uuid.New(), "/transactions/"+tx.ID.String()), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodGet, companyPath(company, "/transactions/"+tx.ID.String()+"/candidates"), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cands struct {
		Items []struct {
			Payment models.Payment `json:"payment"`
			Tier    string         `json:"tier"`
		} `json:"items"`
	}
	decode(t, rec, &cands)
	require.Len(t, cands.Items, 1)
	assert.Equal(t, p.ID, cands.Items[0].Payment.ID)
	assert.Equal(t, "exact", cands.Items[0].Tier)
}

func TestListPayments(t *testing.T) {
	a := newAPI(t)
	company := uuid.New()
	testutil.SeedPayment(t, a.db, company, "CTR-1", "450.00", "2024-03-01")
	testutil.SeedPayment(t, a.db, company, "CTR-2", "700.00", "2024-03-01")

	var list struct {
		Items []models.Payment `json:"items"`
	}
	rec := a.do(http.MethodGet, companyPath(company, "/payments?status=pending"), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	assert.Len(t, list.Items, 2)

	rec = a.do(http.MethodGet, companyPath(company, "/payments?contract_ref=ctr-2"), nil, "")
	decode(t, rec, &list)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "CTR-2", list.Items[0].ContractRef)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, companyPath(company, "/payments?status=late"), nil, "").Code)
}

func TestImportsThenReconcile(t *testing.T) {
	a := newAPI(t)
	company := uuid.New()

	rec := a.upload(companyPath(company, "/imports/payments"), "roll.csv",
		"contract_ref,amount,due_date,status\nCTR-1001,450.00,2024-03-01,pending\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.upload(companyPath(company, "/imports/transactions?reconcile=true"), "march.csv",
		"date,label,amount,reference\n05-03-2024,RENT CTR-1001,450.00,VIR-1\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Success bool               `json:"success"`
		Batch   models.ImportBatch `json:"batch"`
		Summary struct {
			Matched int `json:"matched"`
		} `json:"summary"`
	}
	decode(t, rec, &body)
	assert.True(t, body.Success)
	assert.Equal(t, 1, body.Batch.ImportedCount)
	assert.Equal(t, models.ImportStatusCompleted, body.Batch.Status)
	assert.Equal(t, 1, body.Summary.Matched)

	rec = a.do(http.MethodGet, "/api/imports/"+body.Batch.ID.String(), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var batch models.ImportBatch
	decode(t, rec, &batch)
	assert.Equal(t, "march.csv", batch.Filename)

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/imports/"+uuid.NewString(), nil, "").Code)
}

func TestImport_Rejections(t *testing.T) {
	a := newAPI(t)
	company := uuid.New()

	rec := a.upload(companyPath(company, "/imports/payments"), "roll.csv", "ref,value\nx,1\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, companyPath(company, "/imports/transactions"), nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.postJSON(companyPath(company, "/imports/bankfeed"), map[string]string{"account_id": "acc-1"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = a.postJSON(companyPath(company, "/imports/bankfeed"), map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportBankFeed(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/accounts/acc-1/transactions/":
			_, _ = w.Write([]byte(`{"transactions":{"booked":[
				{"transactionId":"TX-1","bookingDate":"2024-03-05","transactionAmount":{"amount":"450.00","currency":"EUR"},"debtorName":"JANE DOE"}
			]}}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer feed.Close()

	a := newAPI(t, func(cfg *config.Config) {
		cfg.BankFeed.BaseURL = feed.URL
		cfg.BankFeed.RetryMax = 0
		cfg.BankFeed.FailureThreshold = 1
	})
	company := uuid.New()

	rec := a.postJSON(companyPath(company, "/imports/bankfeed"), map[string]string{"account_id": "acc-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Batch models.ImportBatch `json:"batch"`
	}
	decode(t, rec, &body)
	assert.Equal(t, models.ImportSourceBankFeed, body.Batch.Source)
	assert.Equal(t, 1, body.Batch.ImportedCount)

	rec = a.postJSON(companyPath(company, "/imports/bankfeed"), map[string]string{"account_id": "acc-down"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = a.postJSON(companyPath(company, "/imports/bankfeed"), map[string]string{"account_id": "acc-down"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "breaker open after one failure")

	rec = a.do(http.MethodGet, "/api/bankfeed/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Accounts []struct {
			Account     string     `json:"account"`
			State       string     `json:"state"`
			Failures    int        `json:"failures"`
			LastFailure *time.Time `json:"last_failure"`
		} `json:"accounts"`
	}
	decode(t, rec, &status)
	require.Len(t, status.Accounts, 2)
	assert.Equal(t, "acc-1", status.Accounts[0].Account)
	assert.Equal(t, "closed", status.Accounts[0].State)
	assert.Nil(t, status.Accounts[0].LastFailure)
	assert.Equal(t, "acc-down", status.Accounts[1].Account)
	assert.Equal(t, "open", status.Accounts[1].State)
	assert.Equal(t, 1, status.Accounts[1].Failures)
	assert.NotNil(t, status.Accounts[1].LastFailure)
}

func TestFeedStatus_WithoutFeed(t *testing.T) {
	a := newAPI(t)

	rec := a.do(http.MethodGet, "/api/bankfeed/status", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
