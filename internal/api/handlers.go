package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nitilens/compliance/internal/domain"
	"github.com/nitilens/compliance/internal/ingestion"
	"github.com/nitilens/compliance/internal/metrics"
	"github.com/nitilens/compliance/internal/repository"
	"github.com/nitilens/compliance/internal/scan"
	"github.com/nitilens/compliance/internal/summary"
)

const datasetSource = "IBM AML Dataset (Synthetic, CDLA-Sharing-1.0)"

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	txnRepo      *repository.TransactionRepo
	ruleRepo     *repository.RuleRepo
	violRepo     *repository.ViolationRepo
	scanSvc      *scan.Service
	scheduler    *scan.Scheduler
	summarySvc   *summary.Service
	ingestionSvc *ingestion.Service
	collector    *metrics.Collector
}

// reviewActions maps API review actions onto violation statuses.
var reviewActions = map[string]domain.ViolationStatus{
	"resolve":        domain.StatusResolved,
	"dismiss":        domain.StatusFalsePositive,
	"false_positive": domain.StatusFalsePositive,
	"escalate":       domain.StatusReviewed,
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func parseOffset(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func clamp(v, max int) int {
	if v > max {
		return max
	}
	return v
}

// --- datasets ---

func (h *Handlers) ListDatasets(w http.ResponseWriter, r *http.Request) {
	count, err := h.txnRepo.Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, []map[string]any{
		{
			"id":          "ibm-aml",
			"name":        "IBM AML Transactions",
			"description": "Synthetic financial transaction dataset with laundering labels (IBM Research)",
			"license":     "CDLA-Sharing-1.0",
			"source":      "https://www.kaggle.com/datasets/ealtman2019/ibm-transactions-for-anti-money-laundering-aml",
			"columns":     ingestion.Columns,
			"connected":   count > 0,
		},
		{
			"id":          "paysim",
			"name":        "PaySim Mobile Money",
			"description": "6.3M synthetic mobile transactions with fraud labels (CC BY-SA 4.0)",
			"license":     "CC BY-SA 4.0",
			"source":      "https://www.kaggle.com/datasets/ealaxi/paysim1",
			"columns": []string{
				"step", "type", "amount", "nameOrig", "oldbalanceOrg", "newbalanceOrig",
				"nameDest", "oldbalanceDest", "newbalanceDest", "isFraud", "isFlaggedFraud",
			},
			"connected": false,
		},
	})
}

func (h *Handlers) GetDatasetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.txnRepo.GetStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_transactions":    stats.TotalTransactions,
		"confirmed_laundering":  stats.ConfirmedLaundering,
		"laundering_percentage": round2(stats.LaunderingPercentage),
		"avg_amount_paid":       round2(stats.AvgAmountPaid),
		"max_amount_paid":       round2(stats.MaxAmountPaid),
		"top_currencies":        stats.TopCurrencies,
		"payment_formats":       stats.PaymentFormats,
		"source":                datasetSource,
	})
}

// GetDatasetPreview returns raw rows under the dataset's original column
// names, the shape the data-connection page renders.
func (h *Handlers) GetDatasetPreview(w http.ResponseWriter, r *http.Request) {
	limit := clamp(parseIntDefault(r.URL.Query().Get("limit"), 20), 200)

	txns, err := h.txnRepo.Preview(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rows := make([]map[string]any, 0, len(txns))
	for i := range txns {
		t := &txns[i]
		rows = append(rows, map[string]any{
			"Timestamp":          t.Timestamp.Format("2006-01-02 15:04:05"),
			"From Bank":          t.FromBank,
			"Account":            t.FromAccount,
			"To Bank":            t.ToBank,
			"Account.1":          t.ToAccount,
			"Amount Received":    t.AmountReceived,
			"Receiving Currency": t.ReceivingCurrency,
			"Amount Paid":        t.AmountPaid,
			"Payment Currency":   t.PaymentCurrency,
			"Payment Format":     string(t.PaymentFormat),
			"Is Laundering":      t.IsLaundering,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"rows": rows, "count": len(rows)})
}

func (h *Handlers) GetDatasetSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"columns": []map[string]string{
			{"name": "Timestamp", "type": "datetime", "description": "Transaction timestamp"},
			{"name": "From Bank", "type": "integer", "description": "Originating bank ID"},
			{"name": "Account", "type": "string", "description": "Originating account number"},
			{"name": "To Bank", "type": "integer", "description": "Receiving bank ID"},
			{"name": "Account.1", "type": "string", "description": "Receiving account number"},
			{"name": "Amount Received", "type": "float", "description": "Amount received (in receiving currency)"},
			{"name": "Receiving Currency", "type": "string", "description": "Currency received (e.g. USD, EUR)"},
			{"name": "Amount Paid", "type": "float", "description": "Amount paid (in payment currency)"},
			{"name": "Payment Currency", "type": "string", "description": "Currency paid (e.g. USD, Bitcoin)"},
			{"name": "Payment Format", "type": "string", "description": "Method: Reinvestment, Cheque, ACH, Wire, Credit Cards, Cash"},
			{"name": "Is Laundering", "type": "integer", "description": "Ground truth label: 1 = laundering, 0 = legitimate"},
		},
	})
}

func (h *Handlers) IngestDataset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read file: "+err.Error())
		return
	}

	result, err := h.ingestionSvc.ImportTransactions(data)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.summarySvc.Invalidate()
	writeJSON(w, http.StatusOK, result)
}

// --- compliance ---

func (h *Handlers) RunScan(w http.ResponseWriter, r *http.Request) {
	result, err := h.scanSvc.RunScan(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrScanInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "scan failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.summarySvc.Get()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handlers) GetActivity(w http.ResponseWriter, r *http.Request) {
	limit := clamp(parseIntDefault(r.URL.Query().Get("limit"), 20), 200)

	items, err := h.violRepo.Activity(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []repository.ActivityItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": len(items), "items": items})
}

func (h *Handlers) ListViolations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if s := q.Get("status"); s != "" && !domain.ViolationStatus(s).Valid() {
		writeError(w, http.StatusBadRequest, "unknown status: "+s)
		return
	}
	if s := q.Get("severity"); s != "" && !domain.Severity(s).Valid() {
		writeError(w, http.StatusBadRequest, "unknown severity: "+s)
		return
	}

	filter := repository.ViolationFilter{
		Status:   q.Get("status"),
		Severity: q.Get("severity"),
		RuleID:   q.Get("rule_id"),
		Limit:    clamp(parseIntDefault(q.Get("limit"), 100), 1000),
		Offset:   parseOffset(q.Get("offset")),
	}

	viols, total, err := h.violRepo.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if viols == nil {
		viols = []domain.Violation{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":      total,
		"offset":     filter.Offset,
		"limit":      filter.Limit,
		"violations": viols,
	})
}

func (h *Handlers) GetViolation(w http.ResponseWriter, r *http.Request) {
	v, err := h.violRepo.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "violation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handlers) GetSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

// --- reviews ---

func (h *Handlers) ListReviewQueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if s := q.Get("severity"); s != "" && !domain.Severity(s).Valid() {
		writeError(w, http.StatusBadRequest, "unknown severity: "+s)
		return
	}
	limit := clamp(parseIntDefault(q.Get("limit"), 50), 200)

	viols, total, err := h.violRepo.ReviewQueue(q.Get("severity"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if viols == nil {
		viols = []domain.Violation{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_pending": total,
		"violations":    viols,
	})
}

type reviewActionRequest struct {
	Action     string `json:"action"`
	Comment    string `json:"comment"`
	ReviewedBy string `json:"reviewed_by"`
}

func (h *Handlers) ReviewViolation(w http.ResponseWriter, r *http.Request) {
	var req reviewActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	newStatus, ok := reviewActions[req.Action]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown action: "+req.Action)
		return
	}
	if req.ReviewedBy == "" {
		req.ReviewedBy = "compliance_officer"
	}

	v, err := h.violRepo.Transition(chi.URLParam(r, "violationId"), newStatus, req.Comment, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "violation not found")
		case errors.Is(err, domain.ErrInvalidTransition):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	h.summarySvc.Invalidate()
	if h.collector != nil {
		h.collector.ReviewAction(req.Action)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"violation":   v,
		"new_status":  v.Status,
		"reviewed_by": req.ReviewedBy,
		"message":     "Violation " + v.ID + " marked as '" + string(v.Status) + "'.",
	})
}

func (h *Handlers) GetReviewStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.violRepo.CountsByStatus()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	severities, err := h.violRepo.OpenSeverityBreakdown()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	resolutionRate := 0.0
	if total > 0 {
		resolutionRate = round1(float64(counts[domain.StatusResolved]) / float64(total) * 100)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"open":            counts[domain.StatusOpen],
		"reviewed":        counts[domain.StatusReviewed],
		"resolved":        counts[domain.StatusResolved],
		"false_positives": counts[domain.StatusFalsePositive],
		"critical_open":   severities[domain.SeverityCritical],
		"resolution_rate": resolutionRate,
	})
}

// --- policies ---

func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.ruleRepo.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rules == nil {
		rules = []domain.PolicyRule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": len(rules), "rules": rules})
}

type approveRequest struct {
	Approved bool `json:"approved"`
}

func (h *Handlers) ApproveRule(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.ruleRepo.SetApproved(id, req.Approved); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.summarySvc.Invalidate()

	rule, err := h.ruleRepo.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.ruleRepo.Delete(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.summarySvc.Invalidate()
	writeJSON(w, http.StatusOK, map[string]string{"message": "rule deleted"})
}

// --- misc ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
