package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/veriflow-labs/veriflow-go/internal/domain"
	"github.com/veriflow-labs/veriflow-go/internal/repo"
)

type StepStore struct {
	db DB
}

const (
	insertStepValuesWidth = 11

	insertStepsPrefix = `INSERT INTO pipeline_run_steps (
		step_id,
		run_id,
		project_id,
		stage,
		status,
		message,
		error_message,
		metrics,
		started_at,
		completed_at,
		ordinal
	) VALUES `

	listStepsByRunQuery = `SELECT step_id, run_id, project_id, stage, status, message, error_message, metrics, started_at, completed_at, ordinal
	 FROM pipeline_run_steps
	 WHERE project_id = $1 AND run_id = $2
	 ORDER BY ordinal ASC`

	updateStepQuery = `UPDATE pipeline_run_steps
	 SET status = $1,
	     message = $2,
	     error_message = $3,
	     metrics = COALESCE($4, metrics),
	     started_at = COALESCE($5, started_at),
	     completed_at = COALESCE($6, completed_at)
	 WHERE project_id = $7 AND step_id = $8`
)

func NewStepStore(db DB) *StepStore {
	if db == nil {
		return nil
	}
	return &StepStore{db: db}
}

// CreateSteps inserts the full stage set for one run as a single
// statement, so the ledger either has all steps or none.
func (s *StepStore) CreateSteps(ctx context.Context, steps []domain.RunStep) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("step store not initialized")
	}
	if len(steps) == 0 {
		return fmt.Errorf("steps are required")
	}

	placeholders := make([]string, 0, len(steps))
	args := make([]any, 0, len(steps)*insertStepValuesWidth)
	for ordinal, step := range steps {
		if err := step.Validate(); err != nil {
			return err
		}
		metricsJSON, err := encodeMetadata(step.Metrics)
		if err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
		base := len(args)
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11,
		))
		args = append(args,
			strings.TrimSpace(step.ID),
			strings.TrimSpace(step.RunID),
			strings.TrimSpace(step.ProjectID),
			strings.TrimSpace(step.Stage),
			string(step.Status),
			nullIfEmpty(step.Message),
			nullIfEmpty(step.ErrorMessage),
			metricsJSON,
			nullTime(step.StartedAt),
			nullTime(step.CompletedAt),
			ordinal,
		)
	}

	query := insertStepsPrefix + strings.Join(placeholders, ",")
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run steps: %w", err)
	}
	return nil
}

func (s *StepStore) ListByRun(ctx context.Context, projectID, runID string) ([]domain.RunStep, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("step store not initialized")
	}
	projectID = strings.TrimSpace(projectID)
	runID = strings.TrimSpace(runID)
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}

	rows, err := s.db.QueryContext(ctx, listStepsByRunQuery, projectID, runID)
	if err != nil {
		return nil, fmt.Errorf("list run steps: %w", err)
	}
	defer rows.Close()

	steps := make([]domain.RunStep, 0)
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list run steps: %w", err)
	}
	return steps, nil
}

func (s *StepStore) UpdateStep(ctx context.Context, projectID, id string, update repo.StepUpdate) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("step store not initialized")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return fmt.Errorf("project id is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("step id is required")
	}
	if domain.NormalizeStepStatus(string(update.Status)) == "" {
		return fmt.Errorf("status is required")
	}

	var metricsJSON any
	if update.Metrics != nil {
		encoded, err := encodeMetadata(update.Metrics)
		if err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
		metricsJSON = encoded
	}

	res, err := s.db.ExecContext(
		ctx,
		updateStepQuery,
		string(update.Status),
		nullIfEmpty(update.Message),
		nullIfEmpty(update.ErrorMessage),
		metricsJSON,
		nullTime(update.StartedAt),
		nullTime(update.CompletedAt),
		projectID,
		id,
	)
	if err != nil {
		return fmt.Errorf("update run step: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run step: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func scanStep(scanner rowScanner) (domain.RunStep, error) {
	var step domain.RunStep
	var status string
	var message sql.NullString
	var errorMessage sql.NullString
	var metricsJSON []byte
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	var ordinal int
	if err := scanner.Scan(
		&step.ID,
		&step.RunID,
		&step.ProjectID,
		&step.Stage,
		&status,
		&message,
		&errorMessage,
		&metricsJSON,
		&startedAt,
		&completedAt,
		&ordinal,
	); err != nil {
		return domain.RunStep{}, handleNotFound(err)
	}
	step.Status = domain.NormalizeStepStatus(status)
	step.Message = strings.TrimSpace(message.String)
	step.ErrorMessage = strings.TrimSpace(errorMessage.String)
	metrics, err := decodeMetadata(metricsJSON)
	if err != nil {
		return domain.RunStep{}, fmt.Errorf("decode metrics: %w", err)
	}
	step.Metrics = metrics
	step.StartedAt = timePtr(startedAt)
	step.CompletedAt = timePtr(completedAt)
	return step, nil
}
