package summary

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nitilens/compliance/internal/domain"
	"github.com/nitilens/compliance/internal/repository"
)

// ComplianceSummary is the dashboard's aggregate view. Field names mirror
// the JSON contract the front end consumes.
type ComplianceSummary struct {
	TotalTransactions     int                             `json:"total_transactions"`
	TotalScanned          int                             `json:"total_scanned"`
	TotalViolations       int                             `json:"total_violations"`
	OpenViolations        int                             `json:"open_violations"`
	ResolvedViolations    int                             `json:"resolved_violations"`
	ReviewedViolations    int                             `json:"reviewed_violations"`
	FalsePositives        int                             `json:"false_positives"`
	ComplianceRate        *float64                        `json:"compliance_rate"`
	ActiveRules           int                             `json:"active_rules"`
	SeverityBreakdown     SeverityBreakdown               `json:"severity_breakdown"`
	MostViolatedRules     []repository.RuleViolationCount `json:"most_violated_rules"`
	TrendData             []TrendPoint                    `json:"trend_data"`
	LastScanTime          *time.Time                      `json:"last_scan_time"`
	DatasetConnected      bool                            `json:"dataset_connected"`
	DatasetLaunderingRate float64                         `json:"dataset_laundering_rate"`
}

// SeverityBreakdown counts open violations per severity.
type SeverityBreakdown struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// TrendPoint is one daily bucket: violations detected that UTC day and the
// compliance rate as of the end of that day.
type TrendPoint struct {
	Date           string  `json:"date"`
	Violations     int     `json:"violations"`
	ComplianceRate float64 `json:"compliance_rate"`
}

// Service computes the summary and caches the result. Invalidate is called
// synchronously on every store mutation; the next read recomputes. A cached
// summary is therefore never older than the last mutation it reflects.
type Service struct {
	txnRepo  *repository.TransactionRepo
	ruleRepo *repository.RuleRepo
	violRepo *repository.ViolationRepo
	scanRepo *repository.ScanRepo

	mu     sync.Mutex
	cached *ComplianceSummary
}

func NewService(
	txnRepo *repository.TransactionRepo,
	ruleRepo *repository.RuleRepo,
	violRepo *repository.ViolationRepo,
	scanRepo *repository.ScanRepo,
) *Service {
	return &Service{
		txnRepo:  txnRepo,
		ruleRepo: ruleRepo,
		violRepo: violRepo,
		scanRepo: scanRepo,
	}
}

func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func (s *Service) Get() (*ComplianceSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}

	summary, err := s.compute()
	if err != nil {
		return nil, err
	}
	s.cached = summary
	return summary, nil
}

func (s *Service) compute() (*ComplianceSummary, error) {
	stats, err := s.txnRepo.GetStats()
	if err != nil {
		return nil, fmt.Errorf("dataset stats: %w", err)
	}

	counts, err := s.violRepo.CountsByStatus()
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}

	severities, err := s.violRepo.OpenSeverityBreakdown()
	if err != nil {
		return nil, fmt.Errorf("severity breakdown: %w", err)
	}

	mostViolated, err := s.violRepo.MostViolated(5)
	if err != nil {
		return nil, fmt.Errorf("most violated: %w", err)
	}

	activeRules, err := s.ruleRepo.CountActive()
	if err != nil {
		return nil, fmt.Errorf("active rules: %w", err)
	}

	lastScan, err := s.scanRepo.Latest()
	if err != nil {
		return nil, fmt.Errorf("latest scan: %w", err)
	}

	open := counts[domain.StatusOpen]
	total := 0
	for _, n := range counts {
		total += n
	}

	summary := &ComplianceSummary{
		TotalTransactions:     stats.TotalTransactions,
		TotalViolations:       total,
		OpenViolations:        open,
		ResolvedViolations:    counts[domain.StatusResolved],
		ReviewedViolations:    counts[domain.StatusReviewed],
		FalsePositives:        counts[domain.StatusFalsePositive],
		ActiveRules:           activeRules,
		DatasetConnected:      stats.TotalTransactions > 0,
		DatasetLaunderingRate: round2(stats.LaunderingPercentage),
		SeverityBreakdown: SeverityBreakdown{
			Critical: severities[domain.SeverityCritical],
			High:     severities[domain.SeverityHigh],
			Medium:   severities[domain.SeverityMedium],
			Low:      severities[domain.SeverityLow],
		},
		MostViolatedRules: mostViolated,
	}

	scanned := 0
	if lastScan != nil {
		scanned = lastScan.TransactionsScanned
		t := lastScan.CompletedAt
		summary.LastScanTime = &t
	}
	summary.TotalScanned = scanned

	// Compliance rate is undefined until something has been scanned: the
	// dashboard renders its empty state on null, not on a fake 100%.
	if scanned > 0 {
		rate := round2(float64(scanned-open) / float64(scanned) * 100)
		summary.ComplianceRate = &rate
	}

	trend, err := s.trend(scanned)
	if err != nil {
		return nil, fmt.Errorf("trend: %w", err)
	}
	summary.TrendData = trend

	return summary, nil
}

// trend reports daily buckets; each bucket's compliance rate counts every
// non-false-positive violation detected up to the end of that day against
// the last scan's corpus size.
func (s *Service) trend(scanned int) ([]TrendPoint, error) {
	buckets, err := s.violRepo.TrendDaily()
	if err != nil {
		return nil, err
	}

	points := make([]TrendPoint, 0, len(buckets))
	cumulative := 0
	for _, b := range buckets {
		cumulative += b.NonFalsePositive
		rate := 0.0
		if scanned > 0 {
			rate = round2(float64(scanned-cumulative) / float64(scanned) * 100)
		}
		points = append(points, TrendPoint{
			Date:           b.Date,
			Violations:     b.Violations,
			ComplianceRate: rate,
		})
	}
	return points, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
