package autofix

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/veriflow-labs/veriflow-go/internal/domain"
	"github.com/veriflow-labs/veriflow-go/internal/repo"
	"github.com/veriflow-labs/veriflow-go/internal/repo/memory"
)

type fakeGenerator struct {
	body string
	err  error
}

func (g *fakeGenerator) GenerateFix(ctx context.Context, prompt string) (string, error) {
	return g.body, g.err
}

type recordingPatchStore struct {
	keys []string
	err  error
}

func (s *recordingPatchStore) PutPatch(ctx context.Context, projectID, autofixRunID string, diff []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	key := "projects/" + projectID + "/autofix/" + autofixRunID + "/patch.diff"
	s.keys = append(s.keys, key)
	return key, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type fixture struct {
	store    *memory.Store
	gen      *fakeGenerator
	patches  *recordingPatchStore
	pipeline *Pipeline
	finding  domain.Finding
}

func newFixture(t *testing.T, sourceBody string, writeFile bool) *fixture {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()

	repoDir := t.TempDir()
	if writeFile {
		if err := os.MkdirAll(filepath.Join(repoDir, "internal/db"), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(repoDir, "internal/db/query.go"), []byte(sourceBody), 0o644); err != nil {
			t.Fatalf("write source: %v", err)
		}
	}

	run := domain.Run{
		ID:        "run-1",
		ProjectID: "proj-1",
		PlanID:    "plan-pro",
		RepoPath:  repoDir,
		Status:    domain.RunCompleted,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}

	finding := domain.Finding{
		ID:          "f-1",
		ProjectID:   "proj-1",
		RunID:       "run-1",
		Description: "sql injection via string concatenation",
		Severity:    domain.SeverityCritical,
		File:        "internal/db/query.go",
		Line:        3,
	}
	if err := store.CreateFindings(ctx, []domain.Finding{finding}); err != nil {
		t.Fatalf("create finding: %v", err)
	}

	gen := &fakeGenerator{}
	patches := &recordingPatchStore{}
	pipeline, err := NewPipeline(store, store, store, store, gen, patches, testLogger())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return &fixture{store: store, gen: gen, patches: patches, pipeline: pipeline, finding: finding}
}

func attemptsFor(t *testing.T, store *memory.Store, findingID string) []domain.AutofixRun {
	t.Helper()
	attempts, err := store.ListAutofixRuns(context.Background(), repo.AutofixFilter{ProjectID: "proj-1", FindingID: findingID})
	if err != nil {
		t.Fatalf("list autofix runs: %v", err)
	}
	return attempts
}

func TestTriggerGeneratesAndPersistsPatch(t *testing.T) {
	original := "package db\n\nfunc Query(id string) string {\n\treturn \"SELECT * FROM t WHERE id = \" + id\n}\n"
	fixed := "package db\n\nfunc Query(id string) string {\n\treturn \"SELECT * FROM t WHERE id = $1\"\n}\n"
	fx := newFixture(t, original, true)
	fx.gen.body = "```go\n" + strings.TrimSuffix(fixed, "\n") + "\n```"
	ctx := context.Background()

	if err := fx.pipeline.Trigger(ctx, "proj-1", fx.finding.ID); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	attempts := attemptsFor(t, fx.store, fx.finding.ID)
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	if attempts[0].Status != domain.AutofixCompleted {
		t.Fatalf("expected completed attempt, got %s (%s)", attempts[0].Status, attempts[0].Reason)
	}

	patch, err := fx.store.GetPatchByRun(ctx, "proj-1", attempts[0].ID)
	if err != nil {
		t.Fatalf("get patch: %v", err)
	}
	if patch.FilePath != fx.finding.File {
		t.Fatalf("expected patch for %s, got %s", fx.finding.File, patch.FilePath)
	}
	if !strings.Contains(patch.Diff, "+\treturn \"SELECT * FROM t WHERE id = $1\"") {
		t.Fatalf("expected fixed line in diff, got %q", patch.Diff)
	}
	if len(fx.patches.keys) != 1 || patch.ObjectKey != fx.patches.keys[0] {
		t.Fatalf("expected stored patch body key, got %q vs %v", patch.ObjectKey, fx.patches.keys)
	}
}

func TestTriggerMissingFindingCreatesNoAttempt(t *testing.T) {
	fx := newFixture(t, "", true)
	err := fx.pipeline.Trigger(context.Background(), "proj-1", "nope")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if attempts := attemptsFor(t, fx.store, "nope"); len(attempts) != 0 {
		t.Fatalf("expected no attempt rows, got %d", len(attempts))
	}
}

func TestTriggerMissingSourceFileFailsAttempt(t *testing.T) {
	fx := newFixture(t, "", false)
	ctx := context.Background()

	if err := fx.pipeline.Trigger(ctx, "proj-1", fx.finding.ID); err != nil {
		t.Fatalf("trigger should not propagate generation failures: %v", err)
	}

	attempts := attemptsFor(t, fx.store, fx.finding.ID)
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	if attempts[0].Status != domain.AutofixFailed {
		t.Fatalf("expected failed attempt, got %s", attempts[0].Status)
	}
	if _, err := fx.store.GetPatchByRun(ctx, "proj-1", attempts[0].ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected no patch row, got %v", err)
	}
}

func TestTriggerPatchStoreFailureFailsAttempt(t *testing.T) {
	original := "package db\n\nvar token = \"hardcoded\"\n"
	fx := newFixture(t, original, true)
	fx.gen.body = "package db\n\nvar token = os.Getenv(\"TOKEN\")\n"
	fx.patches.err = errors.New("bucket unavailable")
	ctx := context.Background()

	if err := fx.pipeline.Trigger(ctx, "proj-1", fx.finding.ID); err != nil {
		t.Fatalf("trigger should not propagate storage failures: %v", err)
	}

	attempts := attemptsFor(t, fx.store, fx.finding.ID)
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	if attempts[0].Status != domain.AutofixFailed {
		t.Fatalf("expected failed attempt when patch body cannot be stored, got %s", attempts[0].Status)
	}
	if !strings.Contains(attempts[0].Reason, "store patch body") {
		t.Fatalf("expected storage failure in reason, got %q", attempts[0].Reason)
	}
	if _, err := fx.store.GetPatchByRun(ctx, "proj-1", attempts[0].ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected no patch row, got %v", err)
	}
}

func TestTriggerPolicyScopeGate(t *testing.T) {
	fx := newFixture(t, "package db\n", true)
	policy := domain.DefaultPolicy("proj-1")
	policy.AutofixScope = domain.AutofixNone
	if err := fx.store.UpsertPolicy(context.Background(), policy); err != nil {
		t.Fatalf("upsert policy: %v", err)
	}

	if err := fx.pipeline.Trigger(context.Background(), "proj-1", fx.finding.ID); err == nil {
		t.Fatalf("expected scope gate error")
	}
	if attempts := attemptsFor(t, fx.store, fx.finding.ID); len(attempts) != 0 {
		t.Fatalf("expected no attempt rows under scope none, got %d", len(attempts))
	}
}

func TestSequentialAttemptsAreIndependent(t *testing.T) {
	original := "package db\n\nvar token = \"hardcoded\"\n"
	fx := newFixture(t, original, true)
	ctx := context.Background()

	fx.gen.err = errors.New("generator unavailable")
	if err := fx.pipeline.Trigger(ctx, "proj-1", fx.finding.ID); err != nil {
		t.Fatalf("first trigger: %v", err)
	}

	fx.gen.err = nil
	fx.gen.body = "package db\n\nvar token = os.Getenv(\"TOKEN\")\n"
	if err := fx.pipeline.Trigger(ctx, "proj-1", fx.finding.ID); err != nil {
		t.Fatalf("second trigger: %v", err)
	}

	attempts := attemptsFor(t, fx.store, fx.finding.ID)
	if len(attempts) != 2 {
		t.Fatalf("expected 2 independent attempts, got %d", len(attempts))
	}

	var failed, completed int
	for _, attempt := range attempts {
		switch attempt.Status {
		case domain.AutofixFailed:
			failed++
			if _, err := fx.store.GetPatchByRun(ctx, "proj-1", attempt.ID); !errors.Is(err, repo.ErrNotFound) {
				t.Fatalf("failed attempt must not own a patch, got %v", err)
			}
		case domain.AutofixCompleted:
			completed++
			if _, err := fx.store.GetPatchByRun(ctx, "proj-1", attempt.ID); err != nil {
				t.Fatalf("completed attempt must own a patch: %v", err)
			}
		default:
			t.Fatalf("unexpected attempt status %s", attempt.Status)
		}
	}
	if failed != 1 || completed != 1 {
		t.Fatalf("expected one failed and one completed attempt, got %d/%d", failed, completed)
	}
}
