// Package memory holds in-memory repository implementations used by
// tests and by deployments that run without postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/veriflow-labs/veriflow-go/internal/domain"
	"github.com/veriflow-labs/veriflow-go/internal/repo"
)

type Store struct {
	mu sync.RWMutex

	runs     map[string]domain.Run       // run id -> run
	steps    map[string][]domain.RunStep // run id -> steps in seeded order
	findings map[string]domain.Finding   // finding id -> finding
	policies map[string]domain.ProjectPolicy
	autofix  map[string]domain.AutofixRun   // autofix run id -> run
	patches  map[string]domain.AutofixPatch // autofix run id -> patch
}

func NewStore() *Store {
	return &Store{
		runs:     make(map[string]domain.Run),
		steps:    make(map[string][]domain.RunStep),
		findings: make(map[string]domain.Finding),
		policies: make(map[string]domain.ProjectPolicy),
		autofix:  make(map[string]domain.AutofixRun),
		patches:  make(map[string]domain.AutofixPatch),
	}
}

func (s *Store) CreateRun(ctx context.Context, run domain.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	s.runs[strings.TrimSpace(run.ID)] = run
	return nil
}

func (s *Store) GetRun(ctx context.Context, projectID, id string) (domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[strings.TrimSpace(id)]
	if !ok || run.ProjectID != strings.TrimSpace(projectID) {
		return domain.Run{}, repo.ErrNotFound
	}
	return run, nil
}

func (s *Store) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Run, 0)
	for _, run := range s.runs {
		if run.ProjectID != strings.TrimSpace(filter.ProjectID) {
			continue
		}
		if filter.PlanID != "" && run.PlanID != strings.TrimSpace(filter.PlanID) {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) UpdateRunStatus(ctx context.Context, projectID, id string, status domain.RunStatus, reason string, startedAt, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[strings.TrimSpace(id)]
	if !ok || run.ProjectID != strings.TrimSpace(projectID) {
		return repo.ErrNotFound
	}
	if !domain.CanTransitionRun(run.Status, status) {
		return fmt.Errorf("run %s -> %s: %w", run.Status, status, repo.ErrInvalidTransition)
	}
	run.Status = status
	run.Reason = strings.TrimSpace(reason)
	if startedAt != nil {
		run.StartedAt = startedAt
	}
	if completedAt != nil {
		run.CompletedAt = completedAt
	}
	s.runs[run.ID] = run
	return nil
}

func (s *Store) CreateSteps(ctx context.Context, steps []domain.RunStep) error {
	if len(steps) == 0 {
		return fmt.Errorf("steps are required")
	}
	for _, step := range steps {
		if err := step.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	runID := strings.TrimSpace(steps[0].RunID)
	cp := make([]domain.RunStep, len(steps))
	copy(cp, steps)
	s.steps[runID] = cp
	return nil
}

func (s *Store) ListByRun(ctx context.Context, projectID, runID string) ([]domain.RunStep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	steps := s.steps[strings.TrimSpace(runID)]
	out := make([]domain.RunStep, 0, len(steps))
	for _, step := range steps {
		if step.ProjectID != strings.TrimSpace(projectID) {
			continue
		}
		out = append(out, step)
	}
	return out, nil
}

func (s *Store) UpdateStep(ctx context.Context, projectID, id string, update repo.StepUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	projectID = strings.TrimSpace(projectID)
	id = strings.TrimSpace(id)
	for runID, steps := range s.steps {
		for i, step := range steps {
			if step.ID != id || step.ProjectID != projectID {
				continue
			}
			step.Status = update.Status
			step.Message = strings.TrimSpace(update.Message)
			step.ErrorMessage = strings.TrimSpace(update.ErrorMessage)
			if update.Metrics != nil {
				step.Metrics = update.Metrics.Clone()
			}
			if update.StartedAt != nil {
				step.StartedAt = update.StartedAt
			}
			if update.CompletedAt != nil {
				step.CompletedAt = update.CompletedAt
			}
			s.steps[runID][i] = step
			return nil
		}
	}
	return repo.ErrNotFound
}

func (s *Store) CreateFindings(ctx context.Context, findings []domain.Finding) error {
	for _, finding := range findings {
		if err := finding.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, finding := range findings {
		if finding.CreatedAt.IsZero() {
			finding.CreatedAt = time.Now().UTC()
		}
		s.findings[strings.TrimSpace(finding.ID)] = finding
	}
	return nil
}

func (s *Store) GetFinding(ctx context.Context, projectID, id string) (domain.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	finding, ok := s.findings[strings.TrimSpace(id)]
	if !ok || finding.ProjectID != strings.TrimSpace(projectID) {
		return domain.Finding{}, repo.ErrNotFound
	}
	return finding, nil
}

func (s *Store) ListFindings(ctx context.Context, filter repo.FindingFilter) ([]domain.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Finding, 0)
	for _, finding := range s.findings {
		if finding.ProjectID != strings.TrimSpace(filter.ProjectID) {
			continue
		}
		if filter.RunID != "" && finding.RunID != strings.TrimSpace(filter.RunID) {
			continue
		}
		if filter.Severity != "" && finding.Severity != filter.Severity {
			continue
		}
		out = append(out, finding)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) GetPolicy(ctx context.Context, projectID string) (domain.ProjectPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policy, ok := s.policies[strings.TrimSpace(projectID)]
	if !ok {
		return domain.ProjectPolicy{}, repo.ErrNotFound
	}
	return policy, nil
}

func (s *Store) UpsertPolicy(ctx context.Context, policy domain.ProjectPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if policy.UpdatedAt.IsZero() {
		policy.UpdatedAt = time.Now().UTC()
	}
	s.policies[strings.TrimSpace(policy.ProjectID)] = policy
	return nil
}

func (s *Store) CreateAutofixRun(ctx context.Context, run domain.AutofixRun) error {
	if err := run.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}
	s.autofix[strings.TrimSpace(run.ID)] = run
	return nil
}

func (s *Store) GetAutofixRun(ctx context.Context, projectID, id string) (domain.AutofixRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.autofix[strings.TrimSpace(id)]
	if !ok || run.ProjectID != strings.TrimSpace(projectID) {
		return domain.AutofixRun{}, repo.ErrNotFound
	}
	return run, nil
}

func (s *Store) ListAutofixRuns(ctx context.Context, filter repo.AutofixFilter) ([]domain.AutofixRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AutofixRun, 0)
	for _, run := range s.autofix {
		if run.ProjectID != strings.TrimSpace(filter.ProjectID) {
			continue
		}
		if filter.FindingID != "" && run.FindingID != strings.TrimSpace(filter.FindingID) {
			continue
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) UpdateAutofixStatus(ctx context.Context, projectID, id string, status domain.AutofixStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.autofix[strings.TrimSpace(id)]
	if !ok || run.ProjectID != strings.TrimSpace(projectID) {
		return repo.ErrNotFound
	}
	if !domain.CanTransitionAutofix(run.Status, status) {
		return fmt.Errorf("autofix %s -> %s: %w", run.Status, status, repo.ErrInvalidTransition)
	}
	run.Status = status
	run.Reason = strings.TrimSpace(reason)
	run.UpdatedAt = time.Now().UTC()
	s.autofix[run.ID] = run
	return nil
}

func (s *Store) CreateAutofixPatch(ctx context.Context, patch domain.AutofixPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if patch.CreatedAt.IsZero() {
		patch.CreatedAt = time.Now().UTC()
	}
	s.patches[strings.TrimSpace(patch.AutofixRunID)] = patch
	return nil
}

func (s *Store) GetPatchByRun(ctx context.Context, projectID, autofixRunID string) (domain.AutofixPatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	patch, ok := s.patches[strings.TrimSpace(autofixRunID)]
	if !ok || patch.ProjectID != strings.TrimSpace(projectID) {
		return domain.AutofixPatch{}, repo.ErrNotFound
	}
	return patch, nil
}
