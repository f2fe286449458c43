// Package orchestrator executes pipeline runs: it seeds the full stage
// ledger for a run, walks the stages in order through the project's
// adapter, and halts the run on the first failure.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veriflow-labs/veriflow-go/internal/adapter"
	"github.com/veriflow-labs/veriflow-go/internal/domain"
	"github.com/veriflow-labs/veriflow-go/internal/repo"
)

const defaultStepTimeout = 10 * time.Minute

type ExecutorConfig struct {
	// StepTimeout bounds one adapter operation. Zero means the default.
	StepTimeout time.Duration
}

// ArtifactStore persists stage payloads (SBOM documents, raw tool
// reports) outside the ledger. The returned key locates the object.
type ArtifactStore interface {
	PutArtifact(ctx context.Context, projectID, runID, stage, name string, body []byte, contentType string) (string, error)
}

type Executor struct {
	runs      repo.RunRepository
	steps     repo.StepRepository
	findings  repo.FindingRepository
	registry  *Registry
	artifacts ArtifactStore
	timeout   time.Duration
	logger    *slog.Logger
}

// NewExecutor builds an executor. artifacts may be nil; stage payloads
// are then dropped and only the ledger is written.
func NewExecutor(runs repo.RunRepository, steps repo.StepRepository, findings repo.FindingRepository, registry *Registry, artifacts ArtifactStore, cfg ExecutorConfig, logger *slog.Logger) (*Executor, error) {
	if runs == nil {
		return nil, fmt.Errorf("run repository is required")
	}
	if steps == nil {
		return nil, fmt.Errorf("step repository is required")
	}
	if findings == nil {
		return nil, fmt.Errorf("finding repository is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.StepTimeout
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}
	return &Executor{
		runs:      runs,
		steps:     steps,
		findings:  findings,
		registry:  registry,
		artifacts: artifacts,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Execute runs one pipeline to completion or first failure. A missing
// run is an error for the caller; every other failure is recorded on the
// run itself and does not propagate.
func (e *Executor) Execute(ctx context.Context, projectID, runID string) error {
	if e == nil {
		return fmt.Errorf("executor not initialized")
	}
	run, err := e.runs.GetRun(ctx, projectID, runID)
	if err != nil {
		return fmt.Errorf("resolve run: %w", err)
	}

	started := time.Now().UTC()
	if err := e.runs.UpdateRunStatus(ctx, run.ProjectID, run.ID, domain.RunRunning, "", &started, nil); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	if err := e.seedSteps(ctx, run); err != nil {
		return e.failRun(ctx, run, fmt.Sprintf("seed steps: %v", err))
	}
	steps, err := e.steps.ListByRun(ctx, run.ProjectID, run.ID)
	if err != nil {
		return e.failRun(ctx, run, fmt.Sprintf("load steps: %v", err))
	}

	adapterImpl, err := e.registry.ForRepo(run.RepoPath)
	if err != nil {
		return e.failRun(ctx, run, "no suitable adapter")
	}

	sc := adapter.StepContext{
		TenantID:  run.TenantID,
		ProjectID: run.ProjectID,
		RunID:     run.ID,
		RepoPath:  run.RepoPath,
	}

	for _, step := range steps {
		stepStarted := time.Now().UTC()
		err := e.steps.UpdateStep(ctx, run.ProjectID, step.ID, repo.StepUpdate{
			Status:    domain.StepRunning,
			StartedAt: &stepStarted,
		})
		if err != nil {
			return e.failRun(ctx, run, fmt.Sprintf("start step %s: %v", step.Stage, err))
		}

		result := e.invokeStage(ctx, adapterImpl, step.Stage, sc)

		if step.Stage == adapter.StageSecurity && len(result.Findings) > 0 {
			if err := e.persistFindings(ctx, run, result.Findings); err != nil {
				e.logger.Error("persist findings failed",
					"run_id", run.ID, "error", err)
			}
		}
		result = e.persistArtifacts(ctx, run, step.Stage, result)

		stepCompleted := time.Now().UTC()
		update := repo.StepUpdate{
			Status:       result.Status,
			Message:      result.Message,
			ErrorMessage: result.ErrorMessage,
			Metrics:      result.Metrics,
			CompletedAt:  &stepCompleted,
		}
		if err := e.steps.UpdateStep(ctx, run.ProjectID, step.ID, update); err != nil {
			return e.failRun(ctx, run, fmt.Sprintf("record step %s: %v", step.Stage, err))
		}

		if result.Status == domain.StepFailed {
			e.logger.Info("run halted on failed stage",
				"run_id", run.ID, "stage", step.Stage, "error", result.ErrorMessage)
			return e.failRun(ctx, run, fmt.Sprintf("stage %q failed", step.Stage))
		}
	}

	completed := time.Now().UTC()
	if err := e.runs.UpdateRunStatus(ctx, run.ProjectID, run.ID, domain.RunCompleted, "", nil, &completed); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	e.logger.Info("run completed", "run_id", run.ID, "project_id", run.ProjectID)
	return nil
}

func (e *Executor) seedSteps(ctx context.Context, run domain.Run) error {
	stages := adapter.Stages()
	steps := make([]domain.RunStep, 0, len(stages))
	for _, stage := range stages {
		steps = append(steps, domain.RunStep{
			ID:        uuid.NewString(),
			RunID:     run.ID,
			ProjectID: run.ProjectID,
			Stage:     stage,
			Status:    domain.StepPending,
		})
	}
	return e.steps.CreateSteps(ctx, steps)
}

// invokeStage runs one adapter operation under the step timeout and
// converts panics into failed results so a broken adapter cannot take
// the orchestrator down.
func (e *Executor) invokeStage(ctx context.Context, a adapter.Adapter, stage string, sc adapter.StepContext) (result adapter.StepResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("adapter panicked", "stage", stage, "panic", r)
			result = adapter.Failed("stage %q panicked: %v", stage, r)
		}
	}()

	stepCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := adapter.Invoke(stepCtx, a, stage, sc)
	if err != nil {
		return adapter.Failed("dispatch stage %q: %v", stage, err)
	}
	return res.Normalize()
}

// persistArtifacts stores stage payloads and records their keys, plus
// any adapter-supplied external references, in the step metrics under
// "artifacts". Store failures are logged; artifact loss does not fail
// an otherwise-passing stage.
func (e *Executor) persistArtifacts(ctx context.Context, run domain.Run, stage string, result adapter.StepResult) adapter.StepResult {
	refs := append([]string{}, result.ArtifactRefs...)
	if e.artifacts != nil {
		for _, artifact := range result.Artifacts {
			key, err := e.artifacts.PutArtifact(ctx, run.ProjectID, run.ID, stage, artifact.Name, artifact.Body, artifact.ContentType)
			if err != nil {
				e.logger.Error("persist artifact failed",
					"run_id", run.ID, "stage", stage, "name", artifact.Name, "error", err)
				continue
			}
			refs = append(refs, key)
		}
	}
	if len(refs) == 0 {
		return result
	}
	if result.Metrics == nil {
		result.Metrics = domain.Metadata{}
	}
	result.Metrics["artifacts"] = refs
	return result
}

func (e *Executor) persistFindings(ctx context.Context, run domain.Run, findings []domain.Finding) error {
	records := make([]domain.Finding, 0, len(findings))
	for _, f := range findings {
		record := f
		record.ID = uuid.NewString()
		record.ProjectID = run.ProjectID
		record.RunID = run.ID
		if record.CreatedAt.IsZero() {
			record.CreatedAt = time.Now().UTC()
		}
		records = append(records, record)
	}
	return e.findings.CreateFindings(ctx, records)
}

// failRun marks the run failed with a reason and swallows the original
// error: failures are local to the run, never to the orchestrator.
func (e *Executor) failRun(ctx context.Context, run domain.Run, reason string) error {
	completed := time.Now().UTC()
	reason = strings.TrimSpace(reason)
	if err := e.runs.UpdateRunStatus(ctx, run.ProjectID, run.ID, domain.RunFailed, reason, nil, &completed); err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return nil
}
