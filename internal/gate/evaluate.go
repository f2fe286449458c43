// Package gate decides whether a change is mergeable given its security
// findings, its coverage, and the project's policy. It is pure: callers
// feed it already-loaded records, it never touches storage.
package gate

import (
	"fmt"

	"github.com/veriflow-labs/veriflow-go/internal/domain"
)

// Verdict is the outcome of one evaluation. Reasons is empty when the
// change is mergeable.
type Verdict struct {
	Mergeable bool     `json:"mergeable"`
	Reasons   []string `json:"reasons,omitempty"`
}

// IsMergeable reports whether a change passes the project's merge gate.
// A finding at or above the blocking severity blocks, as does coverage
// below the policy minimum. The severity comparison is inclusive: a
// finding exactly at the blocking severity blocks the merge.
func IsMergeable(findings []domain.Finding, coveragePercent float64, policy domain.ProjectPolicy) bool {
	return Evaluate(findings, coveragePercent, policy).Mergeable
}

// Evaluate returns the full verdict, including every blocking reason, so
// PR-time dry runs can show the user what to fix.
func Evaluate(findings []domain.Finding, coveragePercent float64, policy domain.ProjectPolicy) Verdict {
	threshold := policy.BlockingSeverity.Rank()

	reasons := make([]string, 0)
	for _, finding := range findings {
		if finding.Severity.Rank() >= threshold {
			reasons = append(reasons, fmt.Sprintf(
				"finding %q has severity %s at or above the blocking threshold %s",
				finding.Description, finding.Severity, policy.BlockingSeverity,
			))
		}
	}
	if coveragePercent < policy.MinCoveragePercent {
		reasons = append(reasons, fmt.Sprintf(
			"coverage %.1f%% is below the required minimum %.1f%%",
			coveragePercent, policy.MinCoveragePercent,
		))
	}

	return Verdict{
		Mergeable: len(reasons) == 0,
		Reasons:   reasons,
	}
}
