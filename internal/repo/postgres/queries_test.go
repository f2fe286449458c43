package postgres

import (
	"strings"
	"testing"

	"github.com/veriflow-labs/veriflow-go/internal/domain"
)

func TestRunQueriesProjectScoped(t *testing.T) {
	if !strings.Contains(selectRunQuery, "project_id = $1") {
		t.Fatalf("expected project_id predicate in run select query")
	}
	if !strings.Contains(insertRunQuery, "pipeline_runs") {
		t.Fatalf("expected pipeline_runs table in run insert query")
	}
}

func TestStepQueriesOrderedByOrdinal(t *testing.T) {
	if !strings.Contains(insertStepsPrefix, "ordinal") {
		t.Fatalf("expected ordinal column in step insert prefix")
	}
	if !strings.Contains(listStepsByRunQuery, "ORDER BY ordinal ASC") {
		t.Fatalf("expected ordinal ordering in step list query")
	}
	if !strings.Contains(listStepsByRunQuery, "project_id = $1") {
		t.Fatalf("expected project_id predicate in step list query")
	}
	if !strings.Contains(updateStepQuery, "COALESCE($5, started_at)") {
		t.Fatalf("expected started_at to be preserved when unset")
	}
}

func TestFindingQueriesProjectScoped(t *testing.T) {
	if !strings.Contains(selectFindingQuery, "project_id = $1") {
		t.Fatalf("expected project_id predicate in finding select query")
	}
	if !strings.Contains(insertFindingQuery, "security_findings") {
		t.Fatalf("expected security_findings table in finding insert query")
	}
}

func TestPolicyUpsertConflictClause(t *testing.T) {
	if !strings.Contains(upsertPolicyQuery, "ON CONFLICT (project_id) DO UPDATE") {
		t.Fatalf("expected upsert conflict clause in policy query")
	}
	if !strings.Contains(selectPolicyQuery, "project_id = $1") {
		t.Fatalf("expected project_id predicate in policy select query")
	}
}

func TestRunPredecessors(t *testing.T) {
	cases := map[domain.RunStatus]string{
		domain.RunPending:   "{}",
		domain.RunRunning:   "{pending}",
		domain.RunCompleted: "{running}",
		domain.RunFailed:    "{pending,running}",
	}
	for to, want := range cases {
		if got := runPredecessors(to); got != want {
			t.Fatalf("runPredecessors(%s): expected %s, got %s", to, want, got)
		}
	}
}

func TestAutofixPredecessors(t *testing.T) {
	cases := map[domain.AutofixStatus]string{
		domain.AutofixPending:   "{}",
		domain.AutofixRunning:   "{pending}",
		domain.AutofixCompleted: "{running}",
		domain.AutofixFailed:    "{pending,running}",
	}
	for to, want := range cases {
		if got := autofixPredecessors(to); got != want {
			t.Fatalf("autofixPredecessors(%s): expected %s, got %s", to, want, got)
		}
	}
}

func TestAutofixQueriesProjectScoped(t *testing.T) {
	if !strings.Contains(selectAutofixRunQuery, "project_id = $1") {
		t.Fatalf("expected project_id predicate in autofix run select query")
	}
	if !strings.Contains(selectAutofixPatchByRunQuery, "autofix_run_id = $2") {
		t.Fatalf("expected autofix_run_id predicate in patch select query")
	}
}
