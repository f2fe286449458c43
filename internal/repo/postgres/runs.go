package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/veriflow-labs/veriflow-go/internal/domain"
	"github.com/veriflow-labs/veriflow-go/internal/repo"
)

type RunStore struct {
	db DB
}

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db}
}

const (
	insertRunQuery = `INSERT INTO pipeline_runs (
		run_id,
		project_id,
		tenant_id,
		plan_id,
		repo_path,
		status,
		reason,
		started_at,
		completed_at,
		created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	selectRunQuery = `SELECT run_id, project_id, tenant_id, plan_id, repo_path, status, reason, started_at, completed_at, created_at
	 FROM pipeline_runs
	 WHERE project_id = $1 AND run_id = $2`
)

func (s *RunStore) CreateRun(ctx context.Context, run domain.Run) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		insertRunQuery,
		strings.TrimSpace(run.ID),
		strings.TrimSpace(run.ProjectID),
		nullIfEmpty(run.TenantID),
		strings.TrimSpace(run.PlanID),
		nullIfEmpty(run.RepoPath),
		string(run.Status),
		nullIfEmpty(run.Reason),
		nullTime(run.StartedAt),
		nullTime(run.CompletedAt),
		normalizeTime(run.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, projectID, id string) (domain.Run, error) {
	if s == nil || s.db == nil {
		return domain.Run{}, fmt.Errorf("run store not initialized")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return domain.Run{}, fmt.Errorf("project id is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Run{}, fmt.Errorf("run id is required")
	}
	row := s.db.QueryRowContext(ctx, selectRunQuery, projectID, id)
	return scanRun(row)
}

func (s *RunStore) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store not initialized")
	}
	if strings.TrimSpace(filter.ProjectID) == "" {
		return nil, fmt.Errorf("project id is required")
	}

	clauses := make([]string, 0, 3)
	args := make([]any, 0, 3)

	args = append(args, strings.TrimSpace(filter.ProjectID))
	clauses = append(clauses, fmt.Sprintf("project_id = $%d", len(args)))
	if strings.TrimSpace(filter.PlanID) != "" {
		args = append(args, strings.TrimSpace(filter.PlanID))
		clauses = append(clauses, fmt.Sprintf("plan_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT run_id, project_id, tenant_id, plan_id, repo_path, status, reason, started_at, completed_at, created_at
		FROM pipeline_runs
		WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func (s *RunStore) UpdateRunStatus(ctx context.Context, projectID, id string, status domain.RunStatus, reason string, startedAt, completedAt *time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return fmt.Errorf("project id is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("run id is required")
	}
	if domain.NormalizeRunStatus(string(status)) == "" {
		return fmt.Errorf("status is required")
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE pipeline_runs
		 SET status = $1,
		     reason = $2,
		     started_at = COALESCE($3, started_at),
		     completed_at = COALESCE($4, completed_at)
		 WHERE project_id = $5 AND run_id = $6 AND status = ANY($7)`,
		string(status),
		nullIfEmpty(reason),
		nullTime(startedAt),
		nullTime(completedAt),
		projectID,
		id,
		runPredecessors(status),
	)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if affected == 0 {
		// The predicate hides the row when the transition is illegal;
		// tell the two cases apart for the caller.
		if _, getErr := s.GetRun(ctx, projectID, id); getErr == nil {
			return fmt.Errorf("run -> %s: %w", status, repo.ErrInvalidTransition)
		}
		return repo.ErrNotFound
	}
	return nil
}

// runPredecessors lists the statuses a run may hold immediately before
// moving to the target, as a postgres text array literal.
func runPredecessors(to domain.RunStatus) string {
	all := []domain.RunStatus{domain.RunPending, domain.RunRunning, domain.RunCompleted, domain.RunFailed}
	from := make([]string, 0, len(all))
	for _, status := range all {
		if domain.CanTransitionRun(status, to) {
			from = append(from, string(status))
		}
	}
	return "{" + strings.Join(from, ",") + "}"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (domain.Run, error) {
	var run domain.Run
	var tenantID sql.NullString
	var repoPath sql.NullString
	var reason sql.NullString
	var status string
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	if err := scanner.Scan(
		&run.ID,
		&run.ProjectID,
		&tenantID,
		&run.PlanID,
		&repoPath,
		&status,
		&reason,
		&startedAt,
		&completedAt,
		&run.CreatedAt,
	); err != nil {
		return domain.Run{}, handleNotFound(err)
	}
	run.TenantID = strings.TrimSpace(tenantID.String)
	run.RepoPath = strings.TrimSpace(repoPath.String)
	run.Reason = strings.TrimSpace(reason.String)
	run.Status = domain.NormalizeRunStatus(status)
	run.StartedAt = timePtr(startedAt)
	run.CompletedAt = timePtr(completedAt)
	run.CreatedAt = run.CreatedAt.UTC()
	return run, nil
}
