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

type AutofixStore struct {
	db DB
}

const (
	insertAutofixRunQuery = `INSERT INTO autofix_runs (
		autofix_run_id,
		finding_id,
		project_id,
		status,
		reason,
		branch,
		pr_url,
		created_at,
		updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	selectAutofixRunQuery = `SELECT autofix_run_id, finding_id, project_id, status, reason, branch, pr_url, created_at, updated_at
	 FROM autofix_runs
	 WHERE project_id = $1 AND autofix_run_id = $2`

	insertAutofixPatchQuery = `INSERT INTO autofix_patches (
		patch_id,
		autofix_run_id,
		project_id,
		file_path,
		diff,
		object_key,
		created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7)`

	selectAutofixPatchByRunQuery = `SELECT patch_id, autofix_run_id, project_id, file_path, diff, object_key, created_at
	 FROM autofix_patches
	 WHERE project_id = $1 AND autofix_run_id = $2`
)

func NewAutofixStore(db DB) *AutofixStore {
	if db == nil {
		return nil
	}
	return &AutofixStore{db: db}
}

func (s *AutofixStore) CreateAutofixRun(ctx context.Context, run domain.AutofixRun) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("autofix store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		insertAutofixRunQuery,
		strings.TrimSpace(run.ID),
		strings.TrimSpace(run.FindingID),
		strings.TrimSpace(run.ProjectID),
		string(run.Status),
		nullIfEmpty(run.Reason),
		nullIfEmpty(run.Branch),
		nullIfEmpty(run.PRURL),
		normalizeTime(run.CreatedAt),
		normalizeTime(run.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert autofix run: %w", err)
	}
	return nil
}

func (s *AutofixStore) GetAutofixRun(ctx context.Context, projectID, id string) (domain.AutofixRun, error) {
	if s == nil || s.db == nil {
		return domain.AutofixRun{}, fmt.Errorf("autofix store not initialized")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return domain.AutofixRun{}, fmt.Errorf("project id is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.AutofixRun{}, fmt.Errorf("autofix run id is required")
	}
	row := s.db.QueryRowContext(ctx, selectAutofixRunQuery, projectID, id)
	return scanAutofixRun(row)
}

func (s *AutofixStore) ListAutofixRuns(ctx context.Context, filter repo.AutofixFilter) ([]domain.AutofixRun, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("autofix store not initialized")
	}
	if strings.TrimSpace(filter.ProjectID) == "" {
		return nil, fmt.Errorf("project id is required")
	}

	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)
	args = append(args, strings.TrimSpace(filter.ProjectID))
	clauses = append(clauses, fmt.Sprintf("project_id = $%d", len(args)))
	if strings.TrimSpace(filter.FindingID) != "" {
		args = append(args, strings.TrimSpace(filter.FindingID))
		clauses = append(clauses, fmt.Sprintf("finding_id = $%d", len(args)))
	}

	query := `SELECT autofix_run_id, finding_id, project_id, status, reason, branch, pr_url, created_at, updated_at
		FROM autofix_runs
		WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list autofix runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.AutofixRun, 0)
	for rows.Next() {
		run, err := scanAutofixRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list autofix runs: %w", err)
	}
	return runs, nil
}

func (s *AutofixStore) UpdateAutofixStatus(ctx context.Context, projectID, id string, status domain.AutofixStatus, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("autofix store not initialized")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return fmt.Errorf("project id is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("autofix run id is required")
	}
	if domain.NormalizeAutofixStatus(string(status)) == "" {
		return fmt.Errorf("status is required")
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE autofix_runs SET status = $1, reason = $2, updated_at = $3 WHERE project_id = $4 AND autofix_run_id = $5 AND status = ANY($6)`,
		string(status),
		nullIfEmpty(reason),
		time.Now().UTC(),
		projectID,
		id,
		autofixPredecessors(status),
	)
	if err != nil {
		return fmt.Errorf("update autofix status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update autofix status: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetAutofixRun(ctx, projectID, id); getErr == nil {
			return fmt.Errorf("autofix -> %s: %w", status, repo.ErrInvalidTransition)
		}
		return repo.ErrNotFound
	}
	return nil
}

// autofixPredecessors mirrors runPredecessors for the autofix lifecycle.
func autofixPredecessors(to domain.AutofixStatus) string {
	all := []domain.AutofixStatus{domain.AutofixPending, domain.AutofixRunning, domain.AutofixCompleted, domain.AutofixFailed}
	from := make([]string, 0, len(all))
	for _, status := range all {
		if domain.CanTransitionAutofix(status, to) {
			from = append(from, string(status))
		}
	}
	return "{" + strings.Join(from, ",") + "}"
}

func (s *AutofixStore) CreateAutofixPatch(ctx context.Context, patch domain.AutofixPatch) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("autofix store not initialized")
	}
	if err := patch.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		insertAutofixPatchQuery,
		strings.TrimSpace(patch.ID),
		strings.TrimSpace(patch.AutofixRunID),
		strings.TrimSpace(patch.ProjectID),
		strings.TrimSpace(patch.FilePath),
		patch.Diff,
		nullIfEmpty(patch.ObjectKey),
		normalizeTime(patch.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert autofix patch: %w", err)
	}
	return nil
}

func (s *AutofixStore) GetPatchByRun(ctx context.Context, projectID, autofixRunID string) (domain.AutofixPatch, error) {
	if s == nil || s.db == nil {
		return domain.AutofixPatch{}, fmt.Errorf("autofix store not initialized")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return domain.AutofixPatch{}, fmt.Errorf("project id is required")
	}
	autofixRunID = strings.TrimSpace(autofixRunID)
	if autofixRunID == "" {
		return domain.AutofixPatch{}, fmt.Errorf("autofix run id is required")
	}

	var patch domain.AutofixPatch
	var objectKey sql.NullString
	row := s.db.QueryRowContext(ctx, selectAutofixPatchByRunQuery, projectID, autofixRunID)
	if err := row.Scan(
		&patch.ID,
		&patch.AutofixRunID,
		&patch.ProjectID,
		&patch.FilePath,
		&patch.Diff,
		&objectKey,
		&patch.CreatedAt,
	); err != nil {
		return domain.AutofixPatch{}, handleNotFound(err)
	}
	patch.ObjectKey = strings.TrimSpace(objectKey.String)
	patch.CreatedAt = patch.CreatedAt.UTC()
	return patch, nil
}

func scanAutofixRun(scanner rowScanner) (domain.AutofixRun, error) {
	var run domain.AutofixRun
	var status string
	var reason sql.NullString
	var branch sql.NullString
	var prURL sql.NullString
	if err := scanner.Scan(
		&run.ID,
		&run.FindingID,
		&run.ProjectID,
		&status,
		&reason,
		&branch,
		&prURL,
		&run.CreatedAt,
		&run.UpdatedAt,
	); err != nil {
		return domain.AutofixRun{}, handleNotFound(err)
	}
	run.Status = domain.NormalizeAutofixStatus(status)
	run.Reason = strings.TrimSpace(reason.String)
	run.Branch = strings.TrimSpace(branch.String)
	run.PRURL = strings.TrimSpace(prURL.String)
	run.CreatedAt = run.CreatedAt.UTC()
	run.UpdatedAt = run.UpdatedAt.UTC()
	return run, nil
}
