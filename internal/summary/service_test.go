package summary

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitilens/compliance/internal/domain"
	"github.com/nitilens/compliance/internal/repository"
)

type fixture struct {
	svc      *Service
	txnRepo  *repository.TransactionRepo
	ruleRepo *repository.RuleRepo
	violRepo *repository.ViolationRepo
	scanRepo *repository.ScanRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		txnRepo:  repository.NewTransactionRepo(db),
		ruleRepo: repository.NewRuleRepo(db),
		violRepo: repository.NewViolationRepo(db),
		scanRepo: repository.NewScanRepo(db),
	}
	f.svc = NewService(f.txnRepo, f.ruleRepo, f.violRepo, f.scanRepo)
	return f
}

func (f *fixture) seedViolations(t *testing.T, n int, status domain.ViolationStatus, detectedAt time.Time) {
	t.Helper()
	viols := make([]domain.Violation, n)
	for i := range viols {
		viols[i] = domain.Violation{
			ID:            fmt.Sprintf("viol-%s-%d-%d", status, detectedAt.Unix(), i),
			TransactionID: fmt.Sprintf("TXN-%s-%d-%d", status, detectedAt.Unix(), i),
			RuleID:        "aml-001",
			RuleName:      "Large transaction",
			Severity:      domain.SeverityCritical,
			Explanation:   "test",
			Evidence:      map[string]any{},
			Status:        domain.StatusOpen,
			DetectedAt:    detectedAt,
		}
	}
	_, err := f.violRepo.UpsertBatch(viols)
	require.NoError(t, err)

	if status != domain.StatusOpen {
		for i := range viols {
			_, err := f.violRepo.Transition(viols[i].ID, status, "", detectedAt.Add(time.Hour))
			require.NoError(t, err)
		}
	}
}

func (f *fixture) recordScan(t *testing.T, scanned int, completedAt time.Time) {
	t.Helper()
	err := f.scanRepo.Insert(&repository.ScanRecord{
		ID:                  fmt.Sprintf("scan-%d", completedAt.Unix()),
		StartedAt:           completedAt.Add(-time.Second),
		CompletedAt:         completedAt,
		DurationMs:          1000,
		TransactionsScanned: scanned,
	})
	require.NoError(t, err)
}

func TestSummaryBeforeFirstScan(t *testing.T) {
	f := newFixture(t)

	s, err := f.svc.Get()
	require.NoError(t, err)

	assert.Nil(t, s.ComplianceRate, "rate is undefined until something was scanned")
	assert.Nil(t, s.LastScanTime)
	assert.Zero(t, s.TotalScanned)
	assert.Zero(t, s.TotalViolations)
	assert.False(t, s.DatasetConnected)
	assert.Empty(t, s.TrendData)
}

func TestSummaryComputesRate(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	f.seedViolations(t, 10, domain.StatusOpen, day)
	f.seedViolations(t, 3, domain.StatusFalsePositive, day)
	f.recordScan(t, 1000, day.Add(time.Minute))

	s, err := f.svc.Get()
	require.NoError(t, err)

	require.NotNil(t, s.ComplianceRate)
	assert.Equal(t, 99.0, *s.ComplianceRate, "(1000-10)/1000")
	assert.Equal(t, 1000, s.TotalScanned)
	assert.Equal(t, 13, s.TotalViolations)
	assert.Equal(t, 10, s.OpenViolations)
	assert.Equal(t, 3, s.FalsePositives)
	assert.Equal(t, 10, s.SeverityBreakdown.Critical)
	require.NotNil(t, s.LastScanTime)
	assert.Equal(t, day.Add(time.Minute), *s.LastScanTime)

	require.Len(t, s.MostViolatedRules, 1)
	assert.Equal(t, "aml-001", s.MostViolatedRules[0].RuleID)
	assert.Equal(t, 13, s.MostViolatedRules[0].ViolationCount)
}

func TestSummaryTrendAccumulates(t *testing.T) {
	f := newFixture(t)
	day1 := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	f.seedViolations(t, 4, domain.StatusOpen, day1)
	f.seedViolations(t, 2, domain.StatusFalsePositive, day1)
	f.seedViolations(t, 6, domain.StatusOpen, day2)
	f.recordScan(t, 100, day2.Add(time.Hour))

	s, err := f.svc.Get()
	require.NoError(t, err)

	require.Len(t, s.TrendData, 2)
	assert.Equal(t, "2026-08-01", s.TrendData[0].Date)
	assert.Equal(t, 6, s.TrendData[0].Violations)
	assert.Equal(t, 96.0, s.TrendData[0].ComplianceRate, "false positives drop out of the rate")
	assert.Equal(t, "2026-08-02", s.TrendData[1].Date)
	assert.Equal(t, 6, s.TrendData[1].Violations)
	assert.Equal(t, 90.0, s.TrendData[1].ComplianceRate, "cumulative: 4+6 against 100 scanned")
}

func TestSummaryCaching(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	s1, err := f.svc.Get()
	require.NoError(t, err)

	// A write without invalidation is not visible yet.
	f.seedViolations(t, 1, domain.StatusOpen, day)
	s2, err := f.svc.Get()
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Zero(t, s2.TotalViolations)

	f.svc.Invalidate()
	s3, err := f.svc.Get()
	require.NoError(t, err)
	assert.Equal(t, 1, s3.TotalViolations)
}
