package ingestion

import (
	"crypto/sha256"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nitilens/compliance/internal/repository"
)

// ImportResult is returned from a dataset import.
type ImportResult struct {
	ImportID          string `json:"import_id"`
	RowsParsed        int    `json:"rows_parsed"`
	RowsSkipped       int    `json:"rows_skipped"`
	RowsInserted      int    `json:"rows_inserted"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
	AlreadyImported   bool   `json:"already_imported"`
}

// Service handles dataset and rule-set ingestion.
type Service struct {
	txnRepo    *repository.TransactionRepo
	ruleRepo   *repository.RuleRepo
	importRepo *repository.ImportRepo
}

func NewService(
	txnRepo *repository.TransactionRepo,
	ruleRepo *repository.RuleRepo,
	importRepo *repository.ImportRepo,
) *Service {
	return &Service{
		txnRepo:    txnRepo,
		ruleRepo:   ruleRepo,
		importRepo: importRepo,
	}
}

// ImportTransactions parses an IBM AML CSV and stores its rows. Re-posting
// a file already imported (by content hash) is a no-op.
func (s *Service) ImportTransactions(data []byte) (*ImportResult, error) {
	hash := fmt.Sprintf("%x", sha256.Sum256(data))
	exists, err := s.importRepo.ExistsByHash(hash)
	if err != nil {
		return nil, fmt.Errorf("check hash: %w", err)
	}
	if exists {
		return &ImportResult{AlreadyImported: true}, nil
	}

	txns, skipped, err := ParseTransactionsCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	inserted, err := s.txnRepo.BulkInsert(txns)
	if err != nil {
		return nil, fmt.Errorf("insert transactions: %w", err)
	}

	importID := "imp-" + uuid.New().String()[:8]
	if err := s.importRepo.Insert(importID, hash, len(txns), skipped, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("record import: %w", err)
	}

	log.Printf("[ingestion] Imported %s: %d rows (%d new, %d skipped)",
		importID, len(txns), inserted, skipped)

	return &ImportResult{
		ImportID:          importID,
		RowsParsed:        len(txns),
		RowsSkipped:       skipped,
		RowsInserted:      inserted,
		DuplicatesSkipped: len(txns) - inserted,
	}, nil
}

// ImportRules parses and stores a rule set. Existing rule ids are left
// untouched so approval state survives re-seeding.
func (s *Service) ImportRules(data []byte) (int, error) {
	rules, err := ParseRules(data)
	if err != nil {
		return 0, err
	}
	inserted, err := s.ruleRepo.BulkInsert(rules)
	if err != nil {
		return 0, fmt.Errorf("insert rules: %w", err)
	}
	log.Printf("[ingestion] Loaded %d rules (%d new)", len(rules), inserted)
	return inserted, nil
}
