package ingestion

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/nitilens/compliance/internal/condition"
	"github.com/nitilens/compliance/internal/domain"
)

// ParseRules loads a rule set from JSON and validates each rule. A rule
// with an empty condition, an unknown severity, or a condition that fails to
// parse is returned flagged invalid (with the reason) so it is visible to
// operators but excluded from scans. A duplicate id drops the later rule
// entirely. The scan never aborts because one rule is malformed.
func ParseRules(data []byte) ([]domain.PolicyRule, error) {
	var rules []domain.PolicyRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}

	seen := make(map[string]struct{}, len(rules))
	out := rules[:0]
	for _, rule := range rules {
		if rule.ID == "" {
			log.Printf("[ingestion] dropping rule with empty id (%q)", rule.Description)
			continue
		}
		if _, dup := seen[rule.ID]; dup {
			log.Printf("[ingestion] dropping duplicate rule id %s", rule.ID)
			continue
		}
		seen[rule.ID] = struct{}{}

		if reason := validateRule(&rule); reason != "" {
			rule.Invalid = true
			rule.InvalidReason = reason
			log.Printf("[ingestion] rule %s flagged invalid: %s", rule.ID, reason)
		}
		out = append(out, rule)
	}
	return out, nil
}

func validateRule(rule *domain.PolicyRule) string {
	if rule.Condition == "" {
		return "empty condition"
	}
	if !rule.Severity.Valid() {
		return fmt.Sprintf("unknown severity %q", rule.Severity)
	}
	if _, err := condition.Parse(rule.Condition); err != nil {
		return err.Error()
	}
	return ""
}
