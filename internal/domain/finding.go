package domain

import (
	"errors"
	"strings"
	"time"
)

// Severity classifies a finding. Ordering matters for the merge gate.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank maps severity onto the gate ordering: critical=4, high=3,
// medium=2, low=1. Unknown severities rank 0 and never block.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

func NormalizeSeverity(value string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(value))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	case SeverityLow:
		return SeverityLow
	default:
		return ""
	}
}

// Finding is one reported issue. Inside a step result the identity fields
// are empty; the orchestrator fills them before persisting security
// findings to the ledger.
type Finding struct {
	ID              string
	ProjectID       string
	RunID           string
	Description     string
	Severity        Severity
	File            string
	Line            int
	Scanner         string
	RuleID          string
	OWASP           string
	CWE             string
	Lifecycle       string
	WaiverExpiresAt *time.Time
	CreatedAt       time.Time
}

func (f Finding) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return errors.New("finding id is required")
	}
	if strings.TrimSpace(f.ProjectID) == "" {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(f.Description) == "" {
		return errors.New("description is required")
	}
	if NormalizeSeverity(string(f.Severity)) == "" {
		return errors.New("severity is required")
	}
	return nil
}
