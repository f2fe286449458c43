package repo

import (
	"context"
	"time"

	"github.com/veriflow-labs/veriflow-go/internal/domain"
)

type RunFilter struct {
	ProjectID string
	PlanID    string
	Status    domain.RunStatus
	Limit     int
}

type FindingFilter struct {
	ProjectID string
	RunID     string
	Severity  domain.Severity
	Limit     int
}

type AutofixFilter struct {
	ProjectID string
	FindingID string
	Limit     int
}

// StepUpdate is a field-level status update for one run step. Nil
// timestamps leave the stored values untouched.
type StepUpdate struct {
	Status       domain.StepStatus
	Message      string
	ErrorMessage string
	Metrics      domain.Metadata
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// RunRepository manages run records. Each update is an independent,
// immediately committed unit.
type RunRepository interface {
	CreateRun(ctx context.Context, run domain.Run) error
	GetRun(ctx context.Context, projectID, id string) (domain.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]domain.Run, error)
	UpdateRunStatus(ctx context.Context, projectID, id string, status domain.RunStatus, reason string, startedAt, completedAt *time.Time) error
}

// StepRepository manages run step records. CreateSteps persists the whole
// stage set for one run atomically, in the given order.
type StepRepository interface {
	CreateSteps(ctx context.Context, steps []domain.RunStep) error
	ListByRun(ctx context.Context, projectID, runID string) ([]domain.RunStep, error)
	UpdateStep(ctx context.Context, projectID, id string, update StepUpdate) error
}

// FindingRepository persists security findings surfaced by the security
// stage.
type FindingRepository interface {
	CreateFindings(ctx context.Context, findings []domain.Finding) error
	GetFinding(ctx context.Context, projectID, id string) (domain.Finding, error)
	ListFindings(ctx context.Context, filter FindingFilter) ([]domain.Finding, error)
}

// PolicyRepository manages the 1:1 project merge-gate policy.
type PolicyRepository interface {
	GetPolicy(ctx context.Context, projectID string) (domain.ProjectPolicy, error)
	UpsertPolicy(ctx context.Context, policy domain.ProjectPolicy) error
}

// AutofixRepository manages fix attempts and their generated patches.
type AutofixRepository interface {
	CreateAutofixRun(ctx context.Context, run domain.AutofixRun) error
	GetAutofixRun(ctx context.Context, projectID, id string) (domain.AutofixRun, error)
	ListAutofixRuns(ctx context.Context, filter AutofixFilter) ([]domain.AutofixRun, error)
	UpdateAutofixStatus(ctx context.Context, projectID, id string, status domain.AutofixStatus, reason string) error
	CreateAutofixPatch(ctx context.Context, patch domain.AutofixPatch) error
	GetPatchByRun(ctx context.Context, projectID, autofixRunID string) (domain.AutofixPatch, error)
}
