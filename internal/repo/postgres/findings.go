package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/veriflow-labs/veriflow-go/internal/domain"
	"github.com/veriflow-labs/veriflow-go/internal/repo"
)

type FindingStore struct {
	db DB
}

const (
	insertFindingQuery = `INSERT INTO security_findings (
		finding_id,
		project_id,
		run_id,
		description,
		severity,
		file_path,
		line,
		scanner,
		rule_id,
		owasp,
		cwe,
		lifecycle,
		waiver_expires_at,
		created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	selectFindingQuery = `SELECT finding_id, project_id, run_id, description, severity, file_path, line, scanner, rule_id, owasp, cwe, lifecycle, waiver_expires_at, created_at
	 FROM security_findings
	 WHERE project_id = $1 AND finding_id = $2`
)

func NewFindingStore(db DB) *FindingStore {
	if db == nil {
		return nil
	}
	return &FindingStore{db: db}
}

func (s *FindingStore) CreateFindings(ctx context.Context, findings []domain.Finding) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("finding store not initialized")
	}
	for _, finding := range findings {
		if err := finding.Validate(); err != nil {
			return err
		}
		_, err := s.db.ExecContext(
			ctx,
			insertFindingQuery,
			strings.TrimSpace(finding.ID),
			strings.TrimSpace(finding.ProjectID),
			nullIfEmpty(finding.RunID),
			strings.TrimSpace(finding.Description),
			string(finding.Severity),
			nullIfEmpty(finding.File),
			finding.Line,
			nullIfEmpty(finding.Scanner),
			nullIfEmpty(finding.RuleID),
			nullIfEmpty(finding.OWASP),
			nullIfEmpty(finding.CWE),
			nullIfEmpty(finding.Lifecycle),
			nullTime(finding.WaiverExpiresAt),
			normalizeTime(finding.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert finding: %w", err)
		}
	}
	return nil
}

func (s *FindingStore) GetFinding(ctx context.Context, projectID, id string) (domain.Finding, error) {
	if s == nil || s.db == nil {
		return domain.Finding{}, fmt.Errorf("finding store not initialized")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return domain.Finding{}, fmt.Errorf("project id is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Finding{}, fmt.Errorf("finding id is required")
	}
	row := s.db.QueryRowContext(ctx, selectFindingQuery, projectID, id)
	return scanFinding(row)
}

func (s *FindingStore) ListFindings(ctx context.Context, filter repo.FindingFilter) ([]domain.Finding, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("finding store not initialized")
	}
	if strings.TrimSpace(filter.ProjectID) == "" {
		return nil, fmt.Errorf("project id is required")
	}

	clauses := make([]string, 0, 3)
	args := make([]any, 0, 3)
	args = append(args, strings.TrimSpace(filter.ProjectID))
	clauses = append(clauses, fmt.Sprintf("project_id = $%d", len(args)))
	if strings.TrimSpace(filter.RunID) != "" {
		args = append(args, strings.TrimSpace(filter.RunID))
		clauses = append(clauses, fmt.Sprintf("run_id = $%d", len(args)))
	}
	if filter.Severity != "" {
		args = append(args, string(filter.Severity))
		clauses = append(clauses, fmt.Sprintf("severity = $%d", len(args)))
	}

	query := `SELECT finding_id, project_id, run_id, description, severity, file_path, line, scanner, rule_id, owasp, cwe, lifecycle, waiver_expires_at, created_at
		FROM security_findings
		WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	findings := make([]domain.Finding, 0)
	for rows.Next() {
		finding, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, finding)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	return findings, nil
}

func scanFinding(scanner rowScanner) (domain.Finding, error) {
	var finding domain.Finding
	var runID sql.NullString
	var severity string
	var file sql.NullString
	var scannerID sql.NullString
	var ruleID sql.NullString
	var owasp sql.NullString
	var cwe sql.NullString
	var lifecycle sql.NullString
	var waiverExpiresAt sql.NullTime
	if err := scanner.Scan(
		&finding.ID,
		&finding.ProjectID,
		&runID,
		&finding.Description,
		&severity,
		&file,
		&finding.Line,
		&scannerID,
		&ruleID,
		&owasp,
		&cwe,
		&lifecycle,
		&waiverExpiresAt,
		&finding.CreatedAt,
	); err != nil {
		return domain.Finding{}, handleNotFound(err)
	}
	finding.RunID = strings.TrimSpace(runID.String)
	finding.Severity = domain.NormalizeSeverity(severity)
	finding.File = strings.TrimSpace(file.String)
	finding.Scanner = strings.TrimSpace(scannerID.String)
	finding.RuleID = strings.TrimSpace(ruleID.String)
	finding.OWASP = strings.TrimSpace(owasp.String)
	finding.CWE = strings.TrimSpace(cwe.String)
	finding.Lifecycle = strings.TrimSpace(lifecycle.String)
	finding.WaiverExpiresAt = timePtr(waiverExpiresAt)
	finding.CreatedAt = finding.CreatedAt.UTC()
	return finding, nil
}
