package domain

import (
	"errors"
	"strings"
	"time"
)

// StepStatus is the lifecycle state of one stage instance within a run.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// RunStep records the execution of one named stage of a run. Exactly one
// RunStep exists per stage per run, seeded in stage order at run start.
type RunStep struct {
	ID           string
	RunID        string
	ProjectID    string
	Stage        string
	Status       StepStatus
	Message      string
	ErrorMessage string
	Metrics      Metadata
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

func (s RunStep) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("step id is required")
	}
	if strings.TrimSpace(s.RunID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(s.ProjectID) == "" {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(s.Stage) == "" {
		return errors.New("stage is required")
	}
	if NormalizeStepStatus(string(s.Status)) == "" {
		return errors.New("status is required")
	}
	return nil
}

// Terminal reports whether the step status admits no further transitions.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepSkipped
}

func NormalizeStepStatus(value string) StepStatus {
	switch StepStatus(strings.ToLower(strings.TrimSpace(value))) {
	case StepPending:
		return StepPending
	case StepRunning:
		return StepRunning
	case StepCompleted:
		return StepCompleted
	case StepFailed:
		return StepFailed
	case StepSkipped:
		return StepSkipped
	default:
		return ""
	}
}
