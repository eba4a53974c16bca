package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitilens/compliance/internal/domain"
)

func TestParseRules(t *testing.T) {
	data := []byte(`[
		{"id": "aml-001", "description": "Large transaction", "condition": "Amount Paid > 10000", "severity": "critical", "source_reference": "s4.2", "category": "threshold", "approved": true},
		{"id": "aml-002", "description": "Rapid transfers", "condition": "count(To Account, 24h) > 5", "severity": "high", "source_reference": "s5.1", "category": "velocity", "approved": true}
	]`)

	rules, err := ParseRules(data)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.False(t, rules[0].Invalid)
	assert.False(t, rules[1].Invalid)
	assert.Equal(t, domain.SeverityCritical, rules[0].Severity)
}

func TestParseRulesFlagsInvalid(t *testing.T) {
	data := []byte(`[
		{"id": "aml-001", "description": "ok", "condition": "Amount Paid > 10000", "severity": "critical", "source_reference": "s", "category": "c", "approved": true},
		{"id": "aml-010", "description": "empty", "condition": "", "severity": "high", "source_reference": "s", "category": "c", "approved": true},
		{"id": "aml-011", "description": "bad severity", "condition": "Amount Paid > 1", "severity": "urgent", "source_reference": "s", "category": "c", "approved": true},
		{"id": "aml-012", "description": "bad condition", "condition": "Shoe Size > 9", "severity": "low", "source_reference": "s", "category": "c", "approved": true}
	]`)

	rules, err := ParseRules(data)
	require.NoError(t, err, "malformed rules are flagged, never fatal")
	require.Len(t, rules, 4)

	assert.False(t, rules[0].Invalid)
	assert.True(t, rules[1].Invalid)
	assert.Equal(t, "empty condition", rules[1].InvalidReason)
	assert.True(t, rules[2].Invalid)
	assert.Contains(t, rules[2].InvalidReason, "unknown severity")
	assert.True(t, rules[3].Invalid)
	assert.Contains(t, rules[3].InvalidReason, "unknown field")
}

func TestParseRulesDropsDuplicatesAndEmptyIDs(t *testing.T) {
	data := []byte(`[
		{"id": "aml-001", "description": "first", "condition": "Amount Paid > 10000", "severity": "critical", "source_reference": "s", "category": "c"},
		{"id": "aml-001", "description": "duplicate", "condition": "Amount Paid > 1", "severity": "low", "source_reference": "s", "category": "c"},
		{"id": "", "description": "anonymous", "condition": "Amount Paid > 1", "severity": "low", "source_reference": "s", "category": "c"}
	]`)

	rules, err := ParseRules(data)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "first", rules[0].Description)
}

func TestParseRulesRejectsMalformedJSON(t *testing.T) {
	_, err := ParseRules([]byte(`{"not": "a list"}`))
	assert.Error(t, err)
}
