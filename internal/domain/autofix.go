package domain

import (
	"errors"
	"strings"
	"time"
)

// AutofixStatus is the lifecycle state of one fix attempt.
type AutofixStatus string

const (
	AutofixPending   AutofixStatus = "pending"
	AutofixRunning   AutofixStatus = "running"
	AutofixCompleted AutofixStatus = "completed"
	AutofixFailed    AutofixStatus = "failed"
)

func NormalizeAutofixStatus(value string) AutofixStatus {
	switch AutofixStatus(strings.ToLower(strings.TrimSpace(value))) {
	case AutofixPending:
		return AutofixPending
	case AutofixRunning:
		return AutofixRunning
	case AutofixCompleted:
		return AutofixCompleted
	case AutofixFailed:
		return AutofixFailed
	default:
		return ""
	}
}

// Terminal states are final; a new attempt is a new AutofixRun row.
func (s AutofixStatus) Terminal() bool {
	return s == AutofixCompleted || s == AutofixFailed
}

// CanTransitionAutofix enforces pending -> running -> {completed, failed}.
func CanTransitionAutofix(from, to AutofixStatus) bool {
	switch from {
	case AutofixPending:
		return to == AutofixRunning || to == AutofixFailed
	case AutofixRunning:
		return to == AutofixCompleted || to == AutofixFailed
	default:
		return false
	}
}

// AutofixRun is one attempt to remediate one security finding.
type AutofixRun struct {
	ID        string
	FindingID string
	ProjectID string
	Status    AutofixStatus
	Reason    string
	Branch    string
	PRURL     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a AutofixRun) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("autofix run id is required")
	}
	if strings.TrimSpace(a.FindingID) == "" {
		return errors.New("finding id is required")
	}
	if strings.TrimSpace(a.ProjectID) == "" {
		return errors.New("project id is required")
	}
	if NormalizeAutofixStatus(string(a.Status)) == "" {
		return errors.New("status is required")
	}
	return nil
}

// AutofixPatch is the generated diff, owned 1:1 by a completed AutofixRun.
type AutofixPatch struct {
	ID           string
	AutofixRunID string
	ProjectID    string
	FilePath     string
	Diff         string
	ObjectKey    string
	CreatedAt    time.Time
}

func (p AutofixPatch) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("patch id is required")
	}
	if strings.TrimSpace(p.AutofixRunID) == "" {
		return errors.New("autofix run id is required")
	}
	if strings.TrimSpace(p.ProjectID) == "" {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(p.FilePath) == "" {
		return errors.New("file path is required")
	}
	if strings.TrimSpace(p.Diff) == "" {
		return errors.New("diff is required")
	}
	return nil
}
