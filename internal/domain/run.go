package domain

import (
	"errors"
	"strings"
	"time"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run represents one pipeline execution against a project repository.
type Run struct {
	ID          string
	ProjectID   string
	TenantID    string
	PlanID      string
	RepoPath    string
	Status      RunStatus
	Reason      string
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

func (r Run) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.ProjectID) == "" {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(r.PlanID) == "" {
		return errors.New("plan id is required")
	}
	if NormalizeRunStatus(string(r.Status)) == "" {
		return errors.New("status is required")
	}
	return nil
}

// Terminal reports whether the run status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

func NormalizeRunStatus(value string) RunStatus {
	switch RunStatus(strings.ToLower(strings.TrimSpace(value))) {
	case RunPending:
		return RunPending
	case RunRunning:
		return RunRunning
	case RunCompleted:
		return RunCompleted
	case RunFailed:
		return RunFailed
	default:
		return ""
	}
}

// CanTransitionRun enforces the monotonic run lifecycle:
// pending -> running -> {completed, failed}.
func CanTransitionRun(from, to RunStatus) bool {
	switch from {
	case RunPending:
		return to == RunRunning || to == RunFailed
	case RunRunning:
		return to == RunCompleted || to == RunFailed
	default:
		return false
	}
}
