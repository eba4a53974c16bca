package scan

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nitilens/compliance/internal/condition"
	"github.com/nitilens/compliance/internal/domain"
	"github.com/nitilens/compliance/internal/metrics"
	"github.com/nitilens/compliance/internal/repository"
)

// Result summarises a completed scan run.
type Result struct {
	ScanID              string `json:"scan_id"`
	NewViolations       int    `json:"new_violations"`
	TotalOpen           int    `json:"total_open"`
	TransactionsScanned int    `json:"transactions_scanned"`
	ActiveRules         int    `json:"active_rules"`
	SkippedRules        int    `json:"skipped_rules"`
	DurationMs          int64  `json:"duration_ms"`
	Message             string `json:"message"`
}

// Invalidator is notified after every store mutation so cached summaries
// are never older than the last write they claim to reflect.
type Invalidator interface {
	Invalidate()
}

// Service runs approved rules against the transaction corpus and merges new
// violations into the store.
type Service struct {
	txnRepo  *repository.TransactionRepo
	ruleRepo *repository.RuleRepo
	violRepo *repository.ViolationRepo
	scanRepo *repository.ScanRepo
	summary  Invalidator
	metrics  *metrics.Collector
	workers  int

	// runMu serializes scans: a second caller is rejected, not queued.
	runMu sync.Mutex
}

func NewService(
	txnRepo *repository.TransactionRepo,
	ruleRepo *repository.RuleRepo,
	violRepo *repository.ViolationRepo,
	scanRepo *repository.ScanRepo,
	summary Invalidator,
	collector *metrics.Collector,
	workers int,
) *Service {
	if workers <= 0 {
		workers = 4
	}
	return &Service{
		txnRepo:  txnRepo,
		ruleRepo: ruleRepo,
		violRepo: violRepo,
		scanRepo: scanRepo,
		summary:  summary,
		metrics:  collector,
		workers:  workers,
	}
}

// compiledRule pairs a rule with its parsed condition, split into per-row
// terms and the optional windowed term.
type compiledRule struct {
	rule   domain.PolicyRule
	expr   condition.Expr
	row    []condition.Expr
	window *condition.WindowCount
}

// RunScan evaluates every active rule against the full corpus. Candidates
// are collected in memory and committed in one store transaction, so
// concurrent readers see either the pre-scan or the post-scan state.
func (s *Service) RunScan(ctx context.Context) (*Result, error) {
	if !s.runMu.TryLock() {
		return nil, domain.ErrScanInProgress
	}
	defer s.runMu.Unlock()

	started := time.Now().UTC()

	txns, err := s.txnRepo.All()
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}

	compiled, skipped := s.compileRules()
	log.Printf("[scan] Starting: %d transactions, %d rules (%d skipped)",
		len(txns), len(compiled), skipped)

	candidates, err := s.evaluate(ctx, txns, compiled, started)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ScanFailed()
		}
		return nil, err
	}

	inserted, err := s.violRepo.UpsertBatch(candidates)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ScanFailed()
		}
		return nil, fmt.Errorf("upsert violations: %w", err)
	}

	counts, err := s.violRepo.CountsByStatus()
	if err != nil {
		return nil, fmt.Errorf("count open: %w", err)
	}
	totalOpen := counts[domain.StatusOpen]

	completed := time.Now().UTC()
	result := &Result{
		ScanID:              "scan-" + uuid.New().String()[:8],
		NewViolations:       inserted,
		TotalOpen:           totalOpen,
		TransactionsScanned: len(txns),
		ActiveRules:         len(compiled),
		SkippedRules:        skipped,
		DurationMs:          completed.Sub(started).Milliseconds(),
		Message: fmt.Sprintf("Scan complete. %d new violation(s) detected, %d open in total.",
			inserted, totalOpen),
	}

	err = s.scanRepo.Insert(&repository.ScanRecord{
		ID:                  result.ScanID,
		StartedAt:           started,
		CompletedAt:         completed,
		DurationMs:          result.DurationMs,
		TransactionsScanned: result.TransactionsScanned,
		ActiveRules:         result.ActiveRules,
		InvalidRules:        result.SkippedRules,
		NewViolations:       result.NewViolations,
		TotalOpen:           result.TotalOpen,
	})
	if err != nil {
		return nil, fmt.Errorf("record scan: %w", err)
	}

	if s.summary != nil {
		s.summary.Invalidate()
	}
	if s.metrics != nil {
		s.metrics.ScanCompleted(completed.Sub(started), inserted, totalOpen)
	}

	log.Printf("[scan] %s: %d candidates, %d new, %d open, %dms",
		result.ScanID, len(candidates), inserted, totalOpen, result.DurationMs)
	return result, nil
}

// compileRules parses the conditions of all active rules. Rules are
// validated at load time, but a rule edited directly in storage can still
// fail here; it is skipped and logged, never fatal.
func (s *Service) compileRules() ([]compiledRule, int) {
	rules, err := s.ruleRepo.ListActive()
	if err != nil {
		log.Printf("[scan] WARNING: load rules: %v", err)
		return nil, 0
	}

	var compiled []compiledRule
	skipped := 0
	for _, rule := range rules {
		expr, err := condition.Parse(rule.Condition)
		if err != nil {
			log.Printf("[scan] WARNING: skipping rule %s: %v", rule.ID, err)
			skipped++
			continue
		}
		row, window := condition.Split(expr)
		compiled = append(compiled, compiledRule{rule: rule, expr: expr, row: row, window: window})
	}
	return compiled, skipped
}

func (s *Service) evaluate(
	ctx context.Context,
	txns []domain.Transaction,
	compiled []compiledRule,
	detectedAt time.Time,
) ([]domain.Violation, error) {
	var rowRules, windowRules []compiledRule
	for _, c := range compiled {
		if c.window != nil {
			windowRules = append(windowRules, c)
		} else {
			rowRules = append(rowRules, c)
		}
	}

	candidates, err := s.evaluateRows(ctx, txns, rowRules, detectedAt)
	if err != nil {
		return nil, err
	}

	if len(windowRules) > 0 {
		idx := condition.NewIndex(txns)
		for _, c := range windowRules {
			candidates = append(candidates, s.evaluateWindow(idx, c, detectedAt)...)
		}
	}
	return candidates, nil
}

// evaluateRows fans transactions out over a worker pool. Evaluation is
// read-only per row, so workers share nothing but the jobs channel; all
// writes happen later in a single UpsertBatch.
func (s *Service) evaluateRows(
	ctx context.Context,
	txns []domain.Transaction,
	rules []compiledRule,
	detectedAt time.Time,
) ([]domain.Violation, error) {
	if len(rules) == 0 || len(txns) == 0 {
		return nil, nil
	}

	jobs := make(chan *domain.Transaction)
	results := make(chan domain.Violation, s.workers)

	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for txn := range jobs {
				for _, c := range rules {
					matched, evidence := condition.Evaluate(c.expr, txn)
					if !matched {
						continue
					}
					results <- domain.Violation{
						ID:            "viol-" + uuid.New().String()[:8],
						TransactionID: txn.ID,
						RuleID:        c.rule.ID,
						RuleName:      c.rule.Description,
						Severity:      c.rule.Severity,
						Explanation:   rowExplanation(&c.rule, txn),
						Evidence:      evidence,
						Status:        domain.StatusOpen,
						DetectedAt:    detectedAt,
					}
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range txns {
			select {
			case jobs <- &txns[i]:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var candidates []domain.Violation
	for v := range results {
		candidates = append(candidates, v)
	}
	return candidates, ctx.Err()
}

// evaluateWindow resolves a windowed-count rule against the corpus index.
// Each qualifying cluster yields one aggregate violation owned by a
// synthetic group id, stable across scans so dedup holds.
func (s *Service) evaluateWindow(idx *condition.Index, c compiledRule, detectedAt time.Time) []domain.Violation {
	filter := func(t *domain.Transaction) bool {
		for _, term := range c.row {
			if ok, _ := condition.Evaluate(term, t); !ok {
				return false
			}
		}
		return true
	}
	if len(c.row) == 0 {
		filter = nil
	}

	var viols []domain.Violation
	for _, cluster := range idx.Clusters(c.window, filter) {
		ids := make([]string, len(cluster.Transactions))
		for i, t := range cluster.Transactions {
			ids[i] = t.ID
		}

		groupID := fmt.Sprintf("TXN-CHAIN-%s-%d", cluster.Value, cluster.Start.Unix())
		viols = append(viols, domain.Violation{
			ID:            "viol-" + uuid.New().String()[:8],
			TransactionID: groupID,
			RuleID:        c.rule.ID,
			RuleName:      c.rule.Description,
			Severity:      c.rule.Severity,
			Explanation: fmt.Sprintf(
				"%d transactions share %s %q within %s (%s to %s), matching rule %s: %s",
				len(ids), c.window.Field.Name, cluster.Value, c.window.Window,
				cluster.Start.Format("2006-01-02 15:04"), cluster.End.Format("2006-01-02 15:04"),
				c.rule.ID, c.rule.Description,
			),
			Evidence: map[string]any{
				"field":          c.window.Field.Key,
				"value":          cluster.Value,
				"transferCount":  len(ids),
				"windowStart":    cluster.Start.Format(time.RFC3339),
				"windowEnd":      cluster.End.Format(time.RFC3339),
				"transactionIds": ids,
			},
			Status:     domain.StatusOpen,
			DetectedAt: detectedAt,
		})
	}
	return viols
}

func rowExplanation(rule *domain.PolicyRule, t *domain.Transaction) string {
	return fmt.Sprintf(
		"%s transfer of $%.2f from account %s (Bank %d) to %s (Bank %d) matched rule %s: %s",
		t.PaymentFormat, t.AmountPaid, t.FromAccount, t.FromBank,
		t.ToAccount, t.ToBank, rule.ID, rule.Description,
	)
}
