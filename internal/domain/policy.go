package domain

import (
	"errors"
	"strings"
	"time"
)

// AutofixScope controls which finding classes may be auto-remediated.
type AutofixScope string

const (
	AutofixNone     AutofixScope = "none"
	AutofixSecurity AutofixScope = "security"
	AutofixQuality  AutofixScope = "quality"
	AutofixAll      AutofixScope = "all"
)

func NormalizeAutofixScope(value string) AutofixScope {
	switch AutofixScope(strings.ToLower(strings.TrimSpace(value))) {
	case AutofixNone:
		return AutofixNone
	case AutofixSecurity:
		return AutofixSecurity
	case AutofixQuality:
		return AutofixQuality
	case AutofixAll:
		return AutofixAll
	default:
		return ""
	}
}

// CoversSecurity reports whether the scope admits fixes for security
// findings.
func (s AutofixScope) CoversSecurity() bool {
	return s == AutofixSecurity || s == AutofixAll
}

// ProjectPolicy holds the per-project merge-gate thresholds. Identity is
// the project id, one policy per project for its lifetime.
type ProjectPolicy struct {
	ProjectID          string
	BlockingSeverity   Severity
	MinCoveragePercent float64
	PerfBudgetMs       int
	A11yBudget         int
	AutofixScope       AutofixScope
	AutoMerge          bool
	SLAHours           map[Severity]int
	UpdatedAt          time.Time
}

// DefaultPolicy is the policy a project starts with when created.
func DefaultPolicy(projectID string) ProjectPolicy {
	return ProjectPolicy{
		ProjectID:          strings.TrimSpace(projectID),
		BlockingSeverity:   SeverityHigh,
		MinCoveragePercent: 80,
		PerfBudgetMs:       2000,
		A11yBudget:         0,
		AutofixScope:       AutofixSecurity,
		AutoMerge:          false,
		SLAHours: map[Severity]int{
			SeverityCritical: 24,
			SeverityHigh:     72,
			SeverityMedium:   168,
			SeverityLow:      720,
		},
	}
}

func (p ProjectPolicy) Validate() error {
	if strings.TrimSpace(p.ProjectID) == "" {
		return errors.New("project id is required")
	}
	if NormalizeSeverity(string(p.BlockingSeverity)) == "" {
		return errors.New("blocking severity is required")
	}
	if p.MinCoveragePercent < 0 || p.MinCoveragePercent > 100 {
		return errors.New("min coverage percent must be within [0,100]")
	}
	if NormalizeAutofixScope(string(p.AutofixScope)) == "" {
		return errors.New("autofix scope is required")
	}
	return nil
}
