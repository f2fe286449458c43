package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/veriflow-labs/veriflow-go/internal/adapter"
	"github.com/veriflow-labs/veriflow-go/internal/domain"
	"github.com/veriflow-labs/veriflow-go/internal/orchestrator"
	"github.com/veriflow-labs/veriflow-go/internal/repo/memory"
)

type noopExecutor struct{}

func (noopExecutor) Execute(ctx context.Context, projectID, runID string) error { return nil }

type noopTrigger struct{}

func (noopTrigger) Trigger(ctx context.Context, projectID, findingID string) error { return nil }

type apiFixture struct {
	store *memory.Store
	mux   *http.ServeMux
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store := memory.NewStore()

	dispatcher, err := orchestrator.NewDispatcher(noopExecutor{}, noopTrigger{}, orchestrator.DispatcherConfig{}, logger)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	t.Cleanup(dispatcher.Stop)

	api := newPipelineAPI(logger, store, store, store, store, store, dispatcher, nil)
	mux := http.NewServeMux()
	api.register(mux)
	return &apiFixture{store: store, mux: mux}
}

func (f *apiFixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestCreateRunAccepted(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/runs", map[string]any{
		"project_id": "proj-1",
		"plan_id":    "plan-1",
		"repo_path":  "/tmp/checkout",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d, want 202: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RunID == "" {
		t.Fatalf("expected a run id")
	}
	if resp.Status != string(domain.RunPending) {
		t.Fatalf("status=%q, want pending", resp.Status)
	}

	run, err := f.store.GetRun(context.Background(), "proj-1", resp.RunID)
	if err != nil {
		t.Fatalf("run not persisted: %v", err)
	}
	if run.PlanID != "plan-1" {
		t.Fatalf("plan id=%q, want plan-1", run.PlanID)
	}
}

func TestCreateRunRejectsMissingProject(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/runs", map[string]any{
		"plan_id":   "plan-1",
		"repo_path": "/tmp/checkout",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
}

func TestGetRunWithSteps(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	run := domain.Run{
		ID:        "run-1",
		ProjectID: "proj-1",
		PlanID:    "plan-1",
		RepoPath:  "/tmp/checkout",
		Status:    domain.RunCompleted,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.store.CreateRun(ctx, run); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	steps := []domain.RunStep{
		{ID: "step-1", RunID: "run-1", ProjectID: "proj-1", Stage: adapter.StageDiscover, Status: domain.StepCompleted},
		{ID: "step-2", RunID: "run-1", ProjectID: "proj-1", Stage: adapter.StageStatic, Status: domain.StepCompleted},
	}
	if err := f.store.CreateSteps(ctx, steps); err != nil {
		t.Fatalf("seed steps: %v", err)
	}

	rec := f.do(t, http.MethodGet, "/v1/runs/run-1?project_id=proj-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Steps []struct {
			Stage string `json:"stage"`
		} `json:"steps"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Steps) != 2 {
		t.Fatalf("steps=%d, want 2", len(resp.Steps))
	}
	if resp.Steps[0].Stage != adapter.StageDiscover {
		t.Fatalf("first stage=%q, want discover", resp.Steps[0].Stage)
	}
}

func TestGetRunWrongProjectIs404(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	run := domain.Run{
		ID:        "run-1",
		ProjectID: "proj-1",
		PlanID:    "plan-1",
		RepoPath:  "/tmp/checkout",
		Status:    domain.RunPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.store.CreateRun(ctx, run); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	rec := f.do(t, http.MethodGet, "/v1/runs/run-1?project_id=proj-2", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
}

func TestGetPolicyReturnsDefaultWhenUnset(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/projects/proj-1/policy", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}

	var resp struct {
		BlockingSeverity   string  `json:"blocking_severity"`
		MinCoveragePercent float64 `json:"min_coverage_percent"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.BlockingSeverity != string(domain.SeverityHigh) {
		t.Fatalf("blocking severity=%q, want high", resp.BlockingSeverity)
	}
	if resp.MinCoveragePercent != 80 {
		t.Fatalf("min coverage=%v, want 80", resp.MinCoveragePercent)
	}
}

func TestUpdatePolicyRoundTrip(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPut, "/v1/projects/proj-1/policy", map[string]any{
		"blocking_severity":    "critical",
		"min_coverage_percent": 65,
		"autofix_scope":        "all",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200: %s", rec.Code, rec.Body.String())
	}

	policy, err := f.store.GetPolicy(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("policy not persisted: %v", err)
	}
	if policy.BlockingSeverity != domain.SeverityCritical {
		t.Fatalf("blocking severity=%q, want critical", policy.BlockingSeverity)
	}
	if policy.AutofixScope != domain.AutofixAll {
		t.Fatalf("autofix scope=%q, want all", policy.AutofixScope)
	}
}

func TestUpdatePolicyRejectsBadSeverity(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPut, "/v1/projects/proj-1/policy", map[string]any{
		"blocking_severity":    "apocalyptic",
		"min_coverage_percent": 65,
		"autofix_scope":        "all",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
}

func TestGateCheckVerdict(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	finding := domain.Finding{
		ID:          "f-1",
		ProjectID:   "proj-1",
		RunID:       "run-1",
		Description: "hardcoded credentials",
		Severity:    domain.SeverityHigh,
		File:        "config.go",
		Line:        12,
		Scanner:     "gosec",
		CreatedAt:   time.Now().UTC(),
	}
	if err := f.store.CreateFindings(ctx, []domain.Finding{finding}); err != nil {
		t.Fatalf("seed finding: %v", err)
	}

	rec := f.do(t, http.MethodPost, "/v1/gate/check", map[string]any{
		"project_id":       "proj-1",
		"run_id":           "run-1",
		"coverage_percent": 92.0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200: %s", rec.Code, rec.Body.String())
	}

	var verdict struct {
		Mergeable bool     `json:"mergeable"`
		Reasons   []string `json:"reasons"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &verdict); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	if verdict.Mergeable {
		t.Fatalf("expected high finding to block under the default policy")
	}
	if len(verdict.Reasons) != 1 {
		t.Fatalf("reasons=%d, want 1: %v", len(verdict.Reasons), verdict.Reasons)
	}
}

func TestTriggerAutofixUnknownFindingIs404(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/findings/missing/autofix", map[string]any{
		"project_id": "proj-1",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
}

func TestTriggerAutofixAccepted(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	finding := domain.Finding{
		ID:          "f-1",
		ProjectID:   "proj-1",
		RunID:       "run-1",
		Description: "sql injection",
		Severity:    domain.SeverityCritical,
		File:        "handler.go",
		Line:        40,
		Scanner:     "gosec",
		CreatedAt:   time.Now().UTC(),
	}
	if err := f.store.CreateFindings(ctx, []domain.Finding{finding}); err != nil {
		t.Fatalf("seed finding: %v", err)
	}

	rec := f.do(t, http.MethodPost, "/v1/findings/f-1/autofix", map[string]any{
		"project_id": "proj-1",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status=%d, want 202: %s", rec.Code, rec.Body.String())
	}
}

func TestGetAutofixIncludesPatch(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	attempt := domain.AutofixRun{
		ID:        "af-1",
		FindingID: "f-1",
		ProjectID: "proj-1",
		Status:    domain.AutofixCompleted,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := f.store.CreateAutofixRun(ctx, attempt); err != nil {
		t.Fatalf("seed attempt: %v", err)
	}
	patch := domain.AutofixPatch{
		ID:           "patch-1",
		AutofixRunID: "af-1",
		ProjectID:    "proj-1",
		FilePath:     "handler.go",
		Diff:         "--- a/handler.go\n+++ b/handler.go\n",
		CreatedAt:    time.Now().UTC(),
	}
	if err := f.store.CreateAutofixPatch(ctx, patch); err != nil {
		t.Fatalf("seed patch: %v", err)
	}

	rec := f.do(t, http.MethodGet, "/v1/autofix/af-1?project_id=proj-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Status string `json:"status"`
		Patch  *struct {
			FilePath string `json:"file_path"`
		} `json:"patch"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != string(domain.AutofixCompleted) {
		t.Fatalf("status=%q, want completed", resp.Status)
	}
	if resp.Patch == nil || resp.Patch.FilePath != "handler.go" {
		t.Fatalf("expected patch for handler.go, got %+v", resp.Patch)
	}
}

func TestGetAutofixWithoutPatchOmitsIt(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	attempt := domain.AutofixRun{
		ID:        "af-1",
		FindingID: "f-1",
		ProjectID: "proj-1",
		Status:    domain.AutofixFailed,
		Reason:    "source file missing",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := f.store.CreateAutofixRun(ctx, attempt); err != nil {
		t.Fatalf("seed attempt: %v", err)
	}

	rec := f.do(t, http.MethodGet, "/v1/autofix/af-1?project_id=proj-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := resp["patch"]; ok {
		t.Fatalf("expected no patch key for a failed attempt")
	}
	if resp["reason"] != "source file missing" {
		t.Fatalf("reason=%v, want source file missing", resp["reason"])
	}
}
