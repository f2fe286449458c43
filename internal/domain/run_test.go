package domain

import "testing"

func TestRunTransitionsAreMonotonic(t *testing.T) {
	allowed := []struct {
		from, to RunStatus
	}{
		{RunPending, RunRunning},
		{RunPending, RunFailed},
		{RunRunning, RunCompleted},
		{RunRunning, RunFailed},
	}
	for _, tr := range allowed {
		if !CanTransitionRun(tr.from, tr.to) {
			t.Fatalf("expected %s -> %s allowed", tr.from, tr.to)
		}
	}

	denied := []struct {
		from, to RunStatus
	}{
		{RunCompleted, RunRunning},
		{RunCompleted, RunFailed},
		{RunFailed, RunRunning},
		{RunFailed, RunCompleted},
		{RunRunning, RunPending},
		{RunPending, RunCompleted},
	}
	for _, tr := range denied {
		if CanTransitionRun(tr.from, tr.to) {
			t.Fatalf("expected %s -> %s denied", tr.from, tr.to)
		}
	}
}

func TestSeverityRankOrdering(t *testing.T) {
	if SeverityCritical.Rank() != 4 || SeverityHigh.Rank() != 3 || SeverityMedium.Rank() != 2 || SeverityLow.Rank() != 1 {
		t.Fatalf("unexpected severity ranks")
	}
	if Severity("unknown").Rank() != 0 {
		t.Fatalf("unknown severity must rank 0")
	}
}

func TestNormalizeSeverity(t *testing.T) {
	if NormalizeSeverity(" HIGH ") != SeverityHigh {
		t.Fatalf("expected high")
	}
	if NormalizeSeverity("bogus") != "" {
		t.Fatalf("expected empty for bogus severity")
	}
}

func TestDefaultPolicyValidates(t *testing.T) {
	policy := DefaultPolicy("proj-1")
	if err := policy.Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
	if !policy.AutofixScope.CoversSecurity() {
		t.Fatalf("default scope should cover security findings")
	}
}

func TestAutofixTransitions(t *testing.T) {
	if !CanTransitionAutofix(AutofixRunning, AutofixCompleted) {
		t.Fatalf("expected running -> completed allowed")
	}
	if CanTransitionAutofix(AutofixCompleted, AutofixRunning) {
		t.Fatalf("terminal autofix state must be final")
	}
}
