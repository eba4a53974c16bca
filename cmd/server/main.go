package main

import (
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nitilens/compliance/internal/api"
	"github.com/nitilens/compliance/internal/ingestion"
	"github.com/nitilens/compliance/internal/metrics"
	"github.com/nitilens/compliance/internal/repository"
	"github.com/nitilens/compliance/internal/scan"
	"github.com/nitilens/compliance/internal/summary"
)

func main() {
	port := envOr("PORT", "8080")
	dbPath := envOr("DB_PATH", "nitilens.db")
	dataPath := envOr("DATA_PATH", filepath.Join("testdata", "transactions.csv"))
	rulesPath := envOr("RULES_PATH", filepath.Join("testdata", "rules.json"))
	workers := envInt("SCAN_WORKERS", 4)
	intervalHours := envInt("SCAN_INTERVAL_HOURS", 24)

	log.Printf("Initializing database at %s", dbPath)
	db, err := repository.InitDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.Close()

	// Repositories.
	txnRepo := repository.NewTransactionRepo(db)
	ruleRepo := repository.NewRuleRepo(db)
	violRepo := repository.NewViolationRepo(db)
	scanRepo := repository.NewScanRepo(db)
	importRepo := repository.NewImportRepo(db)

	// Services.
	collector := metrics.NewCollector()
	summarySvc := summary.NewService(txnRepo, ruleRepo, violRepo, scanRepo)
	ingestionSvc := ingestion.NewService(txnRepo, ruleRepo, importRepo)
	scanSvc := scan.NewService(txnRepo, ruleRepo, violRepo, scanRepo, summarySvc, collector, workers)
	scheduler := scan.NewScheduler(scanSvc, time.Duration(intervalHours)*time.Hour)

	seedTransactions(txnRepo, ingestionSvc, dataPath)
	seedRules(ruleRepo, ingestionSvc, rulesPath)

	scheduler.Start()
	defer scheduler.Stop()

	router := api.NewRouter(
		txnRepo, ruleRepo, violRepo,
		scanSvc, scheduler, summarySvc, ingestionSvc, collector,
	)

	log.Printf("NitiLens Compliance Engine")
	log.Printf("Listening on http://localhost:%s", port)
	log.Printf("API base: http://localhost:%s/api", port)
	log.Printf("")
	log.Printf("Endpoints:")
	log.Printf("  GET    /api/datasets")
	log.Printf("  GET    /api/datasets/aml/stats")
	log.Printf("  GET    /api/datasets/aml/preview")
	log.Printf("  GET    /api/datasets/aml/schema")
	log.Printf("  POST   /api/datasets/aml/ingest")
	log.Printf("  POST   /api/compliance/scan")
	log.Printf("  GET    /api/compliance/summary")
	log.Printf("  GET    /api/compliance/activity")
	log.Printf("  GET    /api/compliance/violations")
	log.Printf("  GET    /api/compliance/violations/{id}")
	log.Printf("  GET    /api/compliance/scheduler")
	log.Printf("  GET    /api/reviews")
	log.Printf("  GET    /api/reviews/stats")
	log.Printf("  POST   /api/reviews/{violationId}/action")
	log.Printf("  GET    /api/policies/rules")
	log.Printf("  POST   /api/policies/rules/{id}/approve")
	log.Printf("  DELETE /api/policies/rules/{id}")
	log.Printf("  GET    /metrics")
	log.Printf("  GET    /healthz")

	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// seedTransactions loads the sample dataset on first boot. A populated
// database skips the seed so uploaded data is never mixed with fixtures.
func seedTransactions(repo *repository.TransactionRepo, svc *ingestion.Service, path string) {
	count, err := repo.Count()
	if err != nil {
		log.Fatalf("Failed to count transactions: %v", err)
	}
	if count > 0 {
		log.Printf("Database already has %d transactions, skipping seed", count)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("WARNING: No seed dataset at %s: %v", path, err)
		return
	}

	log.Printf("Database is empty, seeding transactions from %s", path)
	result, err := svc.ImportTransactions(data)
	if err != nil {
		log.Printf("WARNING: Failed to seed transactions: %v", err)
		return
	}
	log.Printf("Seeded %d transactions", result.RowsInserted)
}

// seedRules loads the policy rule set. Rules already in the store keep their
// approval state; only new ids are inserted.
func seedRules(repo *repository.RuleRepo, svc *ingestion.Service, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("WARNING: No rule set at %s: %v", path, err)
		return
	}
	if _, err := svc.ImportRules(data); err != nil {
		log.Printf("WARNING: Failed to load rules: %v", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARNING: invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}
