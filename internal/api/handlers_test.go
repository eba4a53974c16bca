package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitilens/compliance/internal/domain"
	"github.com/nitilens/compliance/internal/ingestion"
	"github.com/nitilens/compliance/internal/metrics"
	"github.com/nitilens/compliance/internal/repository"
	"github.com/nitilens/compliance/internal/scan"
	"github.com/nitilens/compliance/internal/summary"
)

type testServer struct {
	router   http.Handler
	txnRepo  *repository.TransactionRepo
	ruleRepo *repository.RuleRepo
	violRepo *repository.ViolationRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	txnRepo := repository.NewTransactionRepo(db)
	ruleRepo := repository.NewRuleRepo(db)
	violRepo := repository.NewViolationRepo(db)
	scanRepo := repository.NewScanRepo(db)
	importRepo := repository.NewImportRepo(db)

	collector := metrics.NewCollector()
	summarySvc := summary.NewService(txnRepo, ruleRepo, violRepo, scanRepo)
	ingestionSvc := ingestion.NewService(txnRepo, ruleRepo, importRepo)
	scanSvc := scan.NewService(txnRepo, ruleRepo, violRepo, scanRepo, summarySvc, collector, 2)
	scheduler := scan.NewScheduler(scanSvc, 0)

	return &testServer{
		router: NewRouter(
			txnRepo, ruleRepo, violRepo,
			scanSvc, scheduler, summarySvc, ingestionSvc, collector,
		),
		txnRepo:  txnRepo,
		ruleRepo: ruleRepo,
		violRepo: violRepo,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (s *testServer) seedTxn(t *testing.T, id string, amount float64) {
	t.Helper()
	_, err := s.txnRepo.BulkInsert([]domain.Transaction{{
		ID:                id,
		Timestamp:         time.Date(2022, 9, 1, 10, 0, 0, 0, time.UTC),
		FromBank:          3208,
		FromAccount:       "SRC-" + id,
		ToBank:            1,
		ToAccount:         "DST-" + id,
		AmountReceived:    amount,
		ReceivingCurrency: "US Dollar",
		AmountPaid:        amount,
		PaymentCurrency:   "US Dollar",
		PaymentFormat:     domain.FormatWire,
	}})
	require.NoError(t, err)
}

func (s *testServer) seedRule(t *testing.T, id, cond string) {
	t.Helper()
	_, err := s.ruleRepo.BulkInsert([]domain.PolicyRule{{
		ID:              id,
		Description:     "rule " + id,
		Condition:       cond,
		Severity:        domain.SeverityCritical,
		SourceReference: "AML Policy v2.1",
		Category:        "test",
		Approved:        true,
	}})
	require.NoError(t, err)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nitilens_scans_total")
}

func TestListDatasetsConnectedFlag(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/datasets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var datasets []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &datasets))
	require.Len(t, datasets, 2)
	assert.Equal(t, "ibm-aml", datasets[0]["id"])
	assert.Equal(t, false, datasets[0]["connected"])

	s.seedTxn(t, "TXN-A", 100)
	rec = s.do(t, http.MethodGet, "/api/datasets", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &datasets))
	assert.Equal(t, true, datasets[0]["connected"])
}

func TestScanAndListViolations(t *testing.T) {
	s := newTestServer(t)
	s.seedRule(t, "aml-001", "Amount Paid > 10000")
	s.seedTxn(t, "TXN-A", 15000)
	s.seedTxn(t, "TXN-B", 500)

	rec := s.do(t, http.MethodPost, "/api/compliance/scan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, 1.0, body["new_violations"])
	assert.Equal(t, 2.0, body["transactions_scanned"])

	rec = s.do(t, http.MethodGet, "/api/compliance/violations?status=open", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, 1.0, body["total"])

	rec = s.do(t, http.MethodGet, "/api/compliance/violations?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/compliance/violations/viol-nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSummaryEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seedRule(t, "aml-001", "Amount Paid > 10000")
	s.seedTxn(t, "TXN-A", 15000)

	rec := s.do(t, http.MethodGet, "/api/compliance/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Nil(t, body["compliance_rate"], "no scan yet")

	s.do(t, http.MethodPost, "/api/compliance/scan", nil)

	rec = s.do(t, http.MethodGet, "/api/compliance/summary", nil)
	body = decode(t, rec)
	assert.Equal(t, 0.0, body["compliance_rate"], "1 open out of 1 scanned")
	assert.Equal(t, 1.0, body["active_rules"])
	assert.Equal(t, true, body["dataset_connected"])
}

func TestReviewActionFlow(t *testing.T) {
	s := newTestServer(t)
	s.seedRule(t, "aml-001", "Amount Paid > 10000")
	s.seedTxn(t, "TXN-A", 15000)
	s.do(t, http.MethodPost, "/api/compliance/scan", nil)

	rec := s.do(t, http.MethodGet, "/api/reviews", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, 1.0, body["total_pending"])
	viols := body["violations"].([]any)
	violID := viols[0].(map[string]any)["id"].(string)

	// Resolving an open finding skips the review step; rejected.
	rec = s.do(t, http.MethodPost, "/api/reviews/"+violID+"/action",
		map[string]string{"action": "resolve"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/reviews/"+violID+"/action",
		map[string]string{"action": "escalate", "comment": "needs a second look"})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "reviewed", body["new_status"])

	rec = s.do(t, http.MethodPost, "/api/reviews/"+violID+"/action",
		map[string]string{"action": "resolve", "comment": "filed SAR"})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "resolved", body["new_status"])

	// Terminal state: nothing further is allowed.
	rec = s.do(t, http.MethodPost, "/api/reviews/"+violID+"/action",
		map[string]string{"action": "dismiss"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/reviews/"+violID+"/action",
		map[string]string{"action": "shred"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/reviews/viol-nope/action",
		map[string]string{"action": "escalate"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/reviews/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, 1.0, body["resolved"])
	assert.Equal(t, 100.0, body["resolution_rate"])
}

func TestRuleEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.seedRule(t, "aml-001", "Amount Paid > 10000")

	rec := s.do(t, http.MethodGet, "/api/policies/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, 1.0, body["total"])

	rec = s.do(t, http.MethodPost, "/api/policies/rules/aml-001/approve",
		map[string]bool{"approved": false})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, false, body["approved"])

	rec = s.do(t, http.MethodPost, "/api/policies/rules/aml-404/approve",
		map[string]bool{"approved": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/policies/rules/aml-001", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/policies/rules/aml-001", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestEndpoint(t *testing.T) {
	s := newTestServer(t)

	csv := "Timestamp,From Bank,Account,To Bank,Account.1,Amount Received,Receiving Currency,Amount Paid,Payment Currency,Payment Format,Is Laundering\n" +
		"2022/09/01 00:08,3208,8000ECA90,3208,8000ECA90,3697.34,US Dollar,3697.34,US Dollar,Reinvestment,0\n"

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "transactions.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/datasets/aml/ingest", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, 1.0, body["rows_inserted"])

	rec = s.do(t, http.MethodGet, "/api/datasets/aml/preview?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, 1.0, body["count"])
	rows := body["rows"].([]any)
	row := rows[0].(map[string]any)
	assert.Equal(t, "8000ECA90", row["Account"])
	assert.Equal(t, 3697.34, row["Amount Paid"])
}

func TestSchedulerStatusEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/compliance/scheduler", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["running"])
}

func TestActivityEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seedRule(t, "aml-001", "Amount Paid > 10000")
	for i := 0; i < 3; i++ {
		s.seedTxn(t, fmt.Sprintf("TXN-%d", i), 20000)
	}
	s.do(t, http.MethodPost, "/api/compliance/scan", nil)

	rec := s.do(t, http.MethodGet, "/api/compliance/activity?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, 2.0, body["total"])

	items := body["items"].([]any)
	first := items[0].(map[string]any)
	assert.Equal(t, "violation_detected", first["type"])
}

func TestDatasetStatsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seedTxn(t, "TXN-A", 100)

	rec := s.do(t, http.MethodGet, "/api/datasets/aml/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, 1.0, body["total_transactions"])
	assert.True(t, strings.Contains(body["source"].(string), "IBM"))
}
