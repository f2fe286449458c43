package gate

import (
	"strings"
	"testing"

	"github.com/veriflow-labs/veriflow-go/internal/domain"
)

func policyWith(blocking domain.Severity, minCoverage float64) domain.ProjectPolicy {
	policy := domain.DefaultPolicy("proj-1")
	policy.BlockingSeverity = blocking
	policy.MinCoveragePercent = minCoverage
	return policy
}

func TestFindingAtThresholdBlocks(t *testing.T) {
	findings := []domain.Finding{{Description: "xss in template", Severity: domain.SeverityHigh}}
	if IsMergeable(findings, 90, policyWith(domain.SeverityHigh, 80)) {
		t.Fatalf("expected a finding exactly at the blocking severity to block")
	}
}

func TestFindingBelowThresholdPasses(t *testing.T) {
	findings := []domain.Finding{{Description: "xss in template", Severity: domain.SeverityHigh}}
	if !IsMergeable(findings, 90, policyWith(domain.SeverityCritical, 80)) {
		t.Fatalf("expected a high finding under a critical threshold to pass")
	}
}

func TestCoverageGateBlocks(t *testing.T) {
	if IsMergeable(nil, 70, policyWith(domain.SeverityCritical, 80)) {
		t.Fatalf("expected coverage below the minimum to block")
	}
}

func TestCleanChangeIsMergeable(t *testing.T) {
	verdict := Evaluate(nil, 85, policyWith(domain.SeverityHigh, 80))
	if !verdict.Mergeable {
		t.Fatalf("expected clean change to be mergeable, got reasons %v", verdict.Reasons)
	}
	if len(verdict.Reasons) != 0 {
		t.Fatalf("expected no reasons, got %v", verdict.Reasons)
	}
}

func TestEvaluateCollectsAllReasons(t *testing.T) {
	findings := []domain.Finding{
		{Description: "sql injection", Severity: domain.SeverityCritical},
		{Description: "hardcoded secret", Severity: domain.SeverityHigh},
		{Description: "verbose logging", Severity: domain.SeverityLow},
	}
	verdict := Evaluate(findings, 60, policyWith(domain.SeverityHigh, 80))
	if verdict.Mergeable {
		t.Fatalf("expected blocked verdict")
	}
	if len(verdict.Reasons) != 3 {
		t.Fatalf("expected 2 finding reasons and 1 coverage reason, got %v", verdict.Reasons)
	}
	if !strings.Contains(verdict.Reasons[2], "coverage") {
		t.Fatalf("expected last reason to be the coverage gate, got %q", verdict.Reasons[2])
	}
}

func TestRaisingMinCoverageNeverUnblocks(t *testing.T) {
	findings := []domain.Finding{{Description: "weak hash", Severity: domain.SeverityMedium}}
	for coverage := 0.0; coverage <= 100; coverage += 10 {
		lower := IsMergeable(findings, coverage, policyWith(domain.SeverityHigh, 50))
		higher := IsMergeable(findings, coverage, policyWith(domain.SeverityHigh, 90))
		if higher && !lower {
			t.Fatalf("raising min coverage turned blocked into mergeable at coverage %.0f", coverage)
		}
	}
}

func TestLoweringBlockingSeverityNeverUnblocks(t *testing.T) {
	thresholds := []domain.Severity{
		domain.SeverityCritical,
		domain.SeverityHigh,
		domain.SeverityMedium,
		domain.SeverityLow,
	}
	findings := []domain.Finding{{Description: "open redirect", Severity: domain.SeverityMedium}}
	previous := true
	for _, threshold := range thresholds {
		mergeable := IsMergeable(findings, 90, policyWith(threshold, 80))
		if mergeable && !previous {
			t.Fatalf("lowering the threshold to %s turned blocked into mergeable", threshold)
		}
		previous = mergeable
	}
}
