package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nitilens/compliance/internal/ingestion"
	"github.com/nitilens/compliance/internal/metrics"
	"github.com/nitilens/compliance/internal/repository"
	"github.com/nitilens/compliance/internal/scan"
	"github.com/nitilens/compliance/internal/summary"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	txnRepo *repository.TransactionRepo,
	ruleRepo *repository.RuleRepo,
	violRepo *repository.ViolationRepo,
	scanSvc *scan.Service,
	scheduler *scan.Scheduler,
	summarySvc *summary.Service,
	ingestionSvc *ingestion.Service,
	collector *metrics.Collector,
) http.Handler {
	h := &Handlers{
		txnRepo:      txnRepo,
		ruleRepo:     ruleRepo,
		violRepo:     violRepo,
		scanSvc:      scanSvc,
		scheduler:    scheduler,
		summarySvc:   summarySvc,
		ingestionSvc: ingestionSvc,
		collector:    collector,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		// Datasets.
		r.Get("/datasets", h.ListDatasets)
		r.Get("/datasets/aml/stats", h.GetDatasetStats)
		r.Get("/datasets/aml/preview", h.GetDatasetPreview)
		r.Get("/datasets/aml/schema", h.GetDatasetSchema)
		r.Post("/datasets/aml/ingest", h.IngestDataset)

		// Compliance engine.
		r.Post("/compliance/scan", h.RunScan)
		r.Get("/compliance/summary", h.GetSummary)
		r.Get("/compliance/activity", h.GetActivity)
		r.Get("/compliance/violations", h.ListViolations)
		r.Get("/compliance/violations/{id}", h.GetViolation)
		r.Get("/compliance/scheduler", h.GetSchedulerStatus)

		// Reviews.
		r.Get("/reviews", h.ListReviewQueue)
		r.Get("/reviews/stats", h.GetReviewStats)
		r.Post("/reviews/{violationId}/action", h.ReviewViolation)

		// Policy rules.
		r.Get("/policies/rules", h.ListRules)
		r.Post("/policies/rules/{id}/approve", h.ApproveRule)
		r.Delete("/policies/rules/{id}", h.DeleteRule)
	})

	if collector != nil {
		r.Method(http.MethodGet, "/metrics", collector.Handler())
	}
	r.Get("/healthz", h.Health)

	return r
}
