package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veriflow-labs/veriflow-go/internal/domain"
	"github.com/veriflow-labs/veriflow-go/internal/gate"
	"github.com/veriflow-labs/veriflow-go/internal/orchestrator"
	"github.com/veriflow-labs/veriflow-go/internal/platform/auditlog"
	"github.com/veriflow-labs/veriflow-go/internal/platform/httpserver"
	"github.com/veriflow-labs/veriflow-go/internal/repo"
)

type pipelineAPI struct {
	logger     *slog.Logger
	runs       repo.RunRepository
	steps      repo.StepRepository
	findings   repo.FindingRepository
	policies   repo.PolicyRepository
	attempts   repo.AutofixRepository
	dispatcher *orchestrator.Dispatcher
	// db is nil when running on the in-memory backend; audit events are
	// skipped in that mode.
	db *sql.DB
}

func newPipelineAPI(logger *slog.Logger, runs repo.RunRepository, steps repo.StepRepository, findings repo.FindingRepository, policies repo.PolicyRepository, attempts repo.AutofixRepository, dispatcher *orchestrator.Dispatcher, db *sql.DB) *pipelineAPI {
	return &pipelineAPI{
		logger:     logger,
		runs:       runs,
		steps:      steps,
		findings:   findings,
		policies:   policies,
		attempts:   attempts,
		dispatcher: dispatcher,
		db:         db,
	}
}

func (api *pipelineAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/runs", api.handleCreateRun)
	mux.HandleFunc("GET /v1/runs/{run_id}", api.handleGetRun)
	mux.HandleFunc("GET /v1/runs", api.handleListRuns)

	mux.HandleFunc("GET /v1/projects/{project_id}/policy", api.handleGetPolicy)
	mux.HandleFunc("PUT /v1/projects/{project_id}/policy", api.handleUpdatePolicy)

	mux.HandleFunc("POST /v1/gate/check", api.handleGateCheck)

	mux.HandleFunc("POST /v1/findings/{finding_id}/autofix", api.handleTriggerAutofix)
	mux.HandleFunc("GET /v1/autofix/{autofix_id}", api.handleGetAutofix)
}

type createRunRequest struct {
	ProjectID string `json:"project_id"`
	TenantID  string `json:"tenant_id,omitempty"`
	PlanID    string `json:"plan_id"`
	RepoPath  string `json:"repo_path"`
}

func (api *pipelineAPI) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	run := domain.Run{
		ID:        uuid.NewString(),
		ProjectID: strings.TrimSpace(req.ProjectID),
		TenantID:  strings.TrimSpace(req.TenantID),
		PlanID:    strings.TrimSpace(req.PlanID),
		RepoPath:  strings.TrimSpace(req.RepoPath),
		Status:    domain.RunPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := run.Validate(); err != nil {
		api.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := api.runs.CreateRun(r.Context(), run); err != nil {
		api.logger.Error("create run", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.audit(r, "run.create", "run", run.ID, map[string]any{
		"project_id": run.ProjectID,
		"plan_id":    run.PlanID,
	})

	if err := api.dispatcher.EnqueueRun(run.ProjectID, run.ID); err != nil {
		api.logger.Error("enqueue run", "run_id", run.ID, "error", err)
		api.writeError(w, r, http.StatusServiceUnavailable, "queue_full")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": run.ID,
		"status": run.Status,
	})
}

func (api *pipelineAPI) handleGetRun(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	runID := r.PathValue("run_id")
	if projectID == "" {
		api.writeError(w, r, http.StatusBadRequest, "project_id is required")
		return
	}

	run, err := api.runs.GetRun(r.Context(), projectID, runID)
	if err != nil {
		api.notFoundOrInternal(w, r, err, "get run")
		return
	}
	steps, err := api.steps.ListByRun(r.Context(), projectID, runID)
	if err != nil {
		api.logger.Error("list run steps", "run_id", runID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run":   runPayload(run),
		"steps": stepPayloads(steps),
	})
}

func (api *pipelineAPI) handleListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	projectID := strings.TrimSpace(query.Get("project_id"))
	if projectID == "" {
		api.writeError(w, r, http.StatusBadRequest, "project_id is required")
		return
	}
	filter := repo.RunFilter{
		ProjectID: projectID,
		PlanID:    strings.TrimSpace(query.Get("plan_id")),
		Status:    domain.NormalizeRunStatus(query.Get("status")),
		Limit:     100,
	}
	runs, err := api.runs.ListRuns(r.Context(), filter)
	if err != nil {
		api.logger.Error("list runs", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	payloads := make([]map[string]any, 0, len(runs))
	for _, run := range runs {
		payloads = append(payloads, runPayload(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": payloads})
}

func (api *pipelineAPI) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")
	policy, err := api.policies.GetPolicy(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeJSON(w, http.StatusOK, policyPayload(domain.DefaultPolicy(projectID)))
			return
		}
		api.logger.Error("get policy", "project_id", projectID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, policyPayload(policy))
}

type policyRequest struct {
	BlockingSeverity   string         `json:"blocking_severity"`
	MinCoveragePercent float64        `json:"min_coverage_percent"`
	PerfBudgetMs       int            `json:"perf_budget_ms"`
	A11yBudget         int            `json:"a11y_budget"`
	AutofixScope       string         `json:"autofix_scope"`
	AutoMerge          bool           `json:"auto_merge"`
	SLAHours           map[string]int `json:"sla_hours,omitempty"`
}

func (api *pipelineAPI) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")
	var req policyRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	policy := domain.ProjectPolicy{
		ProjectID:          projectID,
		BlockingSeverity:   domain.NormalizeSeverity(req.BlockingSeverity),
		MinCoveragePercent: req.MinCoveragePercent,
		PerfBudgetMs:       req.PerfBudgetMs,
		A11yBudget:         req.A11yBudget,
		AutofixScope:       domain.NormalizeAutofixScope(req.AutofixScope),
		AutoMerge:          req.AutoMerge,
		SLAHours:           decodeSLAHours(req.SLAHours),
		UpdatedAt:          time.Now().UTC(),
	}
	if err := policy.Validate(); err != nil {
		api.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := api.policies.UpsertPolicy(r.Context(), policy); err != nil {
		api.logger.Error("upsert policy", "project_id", projectID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.audit(r, "policy.update", "project_policy", projectID, map[string]any{
		"blocking_severity":    string(policy.BlockingSeverity),
		"min_coverage_percent": policy.MinCoveragePercent,
		"autofix_scope":        string(policy.AutofixScope),
	})
	writeJSON(w, http.StatusOK, policyPayload(policy))
}

type gateCheckRequest struct {
	ProjectID       string  `json:"project_id"`
	RunID           string  `json:"run_id,omitempty"`
	CoveragePercent float64 `json:"coverage_percent"`
}

func (api *pipelineAPI) handleGateCheck(w http.ResponseWriter, r *http.Request) {
	var req gateCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		api.writeError(w, r, http.StatusBadRequest, "project_id is required")
		return
	}

	policy, err := api.policies.GetPolicy(r.Context(), projectID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			api.logger.Error("get policy", "project_id", projectID, "error", err)
			api.writeError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
		policy = domain.DefaultPolicy(projectID)
	}

	findings, err := api.findings.ListFindings(r.Context(), repo.FindingFilter{
		ProjectID: projectID,
		RunID:     strings.TrimSpace(req.RunID),
	})
	if err != nil {
		api.logger.Error("list findings", "project_id", projectID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	verdict := gate.Evaluate(findings, req.CoveragePercent, policy)
	writeJSON(w, http.StatusOK, verdict)
}

type triggerAutofixRequest struct {
	ProjectID string `json:"project_id"`
}

func (api *pipelineAPI) handleTriggerAutofix(w http.ResponseWriter, r *http.Request) {
	findingID := r.PathValue("finding_id")
	var req triggerAutofixRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		api.writeError(w, r, http.StatusBadRequest, "project_id is required")
		return
	}

	// Fail fast on unknown findings so the caller gets a 404 instead of
	// a silently dropped background job.
	if _, err := api.findings.GetFinding(r.Context(), projectID, findingID); err != nil {
		api.notFoundOrInternal(w, r, err, "get finding")
		return
	}
	if err := api.dispatcher.EnqueueAutofix(projectID, findingID); err != nil {
		api.logger.Error("enqueue autofix", "finding_id", findingID, "error", err)
		api.writeError(w, r, http.StatusServiceUnavailable, "queue_full")
		return
	}
	api.audit(r, "autofix.trigger", "finding", findingID, map[string]any{
		"project_id": projectID,
	})
	writeJSON(w, http.StatusAccepted, map[string]any{
		"finding_id": findingID,
		"status":     "queued",
	})
}

func (api *pipelineAPI) handleGetAutofix(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	autofixID := r.PathValue("autofix_id")
	if projectID == "" {
		api.writeError(w, r, http.StatusBadRequest, "project_id is required")
		return
	}

	attempt, err := api.attempts.GetAutofixRun(r.Context(), projectID, autofixID)
	if err != nil {
		api.notFoundOrInternal(w, r, err, "get autofix run")
		return
	}
	payload := map[string]any{
		"autofix_run_id": attempt.ID,
		"finding_id":     attempt.FindingID,
		"project_id":     attempt.ProjectID,
		"status":         attempt.Status,
		"reason":         attempt.Reason,
		"created_at":     attempt.CreatedAt,
		"updated_at":     attempt.UpdatedAt,
	}

	patch, err := api.attempts.GetPatchByRun(r.Context(), projectID, autofixID)
	switch {
	case err == nil:
		payload["patch"] = map[string]any{
			"patch_id":   patch.ID,
			"file_path":  patch.FilePath,
			"diff":       patch.Diff,
			"object_key": patch.ObjectKey,
			"created_at": patch.CreatedAt,
		}
	case errors.Is(err, repo.ErrNotFound):
		// Failed or still-running attempts have no patch.
	default:
		api.logger.Error("get patch", "autofix_run_id", autofixID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (api *pipelineAPI) audit(r *http.Request, action, resourceType, resourceID string, payload map[string]any) {
	if api.db == nil {
		return
	}
	actor := strings.TrimSpace(r.Header.Get("X-Actor"))
	if actor == "" {
		actor = "anonymous"
	}
	requestID, _ := httpserver.RequestIDFromContext(r.Context())

	auditCtx, cancel := context.WithTimeout(r.Context(), 750*time.Millisecond)
	defer cancel()
	_, err := auditlog.Insert(auditCtx, api.db, auditlog.Event{
		OccurredAt:   time.Now().UTC(),
		Actor:        actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    requestID,
		UserAgent:    r.UserAgent(),
		Payload:      payload,
	})
	if err != nil {
		api.logger.Error("audit event", "action", action, "error", err)
	}
}

func (api *pipelineAPI) notFoundOrInternal(w http.ResponseWriter, r *http.Request, err error, what string) {
	if errors.Is(err, repo.ErrNotFound) {
		api.writeError(w, r, http.StatusNotFound, "not_found")
		return
	}
	api.logger.Error(what, "error", err)
	api.writeError(w, r, http.StatusInternalServerError, "internal_error")
}

func (api *pipelineAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": requestID,
	})
}

func runPayload(run domain.Run) map[string]any {
	return map[string]any{
		"run_id":       run.ID,
		"project_id":   run.ProjectID,
		"tenant_id":    run.TenantID,
		"plan_id":      run.PlanID,
		"status":       run.Status,
		"reason":       run.Reason,
		"started_at":   run.StartedAt,
		"completed_at": run.CompletedAt,
		"created_at":   run.CreatedAt,
	}
}

func stepPayloads(steps []domain.RunStep) []map[string]any {
	out := make([]map[string]any, 0, len(steps))
	for _, step := range steps {
		out = append(out, map[string]any{
			"step_id":       step.ID,
			"stage":         step.Stage,
			"status":        step.Status,
			"message":       step.Message,
			"error_message": step.ErrorMessage,
			"metrics":       step.Metrics,
			"started_at":    step.StartedAt,
			"completed_at":  step.CompletedAt,
		})
	}
	return out
}

func policyPayload(policy domain.ProjectPolicy) map[string]any {
	sla := make(map[string]int, len(policy.SLAHours))
	for severity, hours := range policy.SLAHours {
		sla[string(severity)] = hours
	}
	return map[string]any{
		"project_id":           policy.ProjectID,
		"blocking_severity":    policy.BlockingSeverity,
		"min_coverage_percent": policy.MinCoveragePercent,
		"perf_budget_ms":       policy.PerfBudgetMs,
		"a11y_budget":          policy.A11yBudget,
		"autofix_scope":        policy.AutofixScope,
		"auto_merge":           policy.AutoMerge,
		"sla_hours":            sla,
		"updated_at":           policy.UpdatedAt,
	}
}

func decodeSLAHours(raw map[string]int) map[domain.Severity]int {
	out := make(map[domain.Severity]int, len(raw))
	for severity, hours := range raw {
		normalized := domain.NormalizeSeverity(severity)
		if normalized == "" {
			continue
		}
		out[normalized] = hours
	}
	return out
}

func decodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, 1<<20)
	defer body.Close()
	dec := json.NewDecoder(body)
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
