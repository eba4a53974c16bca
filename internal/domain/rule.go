package domain

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities by risk: critical=0 .. low=3. Unknown severities
// sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

func (s Severity) Valid() bool {
	return s.Rank() < 4
}

// PolicyRule is a compliance rule extracted from a policy document. Only
// approved, non-invalid rules participate in scans. Invalid marks rules whose
// condition failed to parse at load time; they are kept for operator
// visibility but never evaluated.
type PolicyRule struct {
	ID              string   `json:"id"`
	Description     string   `json:"description"`
	Condition       string   `json:"condition"`
	Severity        Severity `json:"severity"`
	SourceReference string   `json:"source_reference"`
	Category        string   `json:"category"`
	Approved        bool     `json:"approved"`
	PolicyID        string   `json:"policy_id,omitempty"`
	Invalid         bool     `json:"invalid,omitempty"`
	InvalidReason   string   `json:"invalid_reason,omitempty"`
}
