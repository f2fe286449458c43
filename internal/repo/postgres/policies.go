package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/veriflow-labs/veriflow-go/internal/domain"
)

type PolicyStore struct {
	db DB
}

const (
	upsertPolicyQuery = `INSERT INTO project_policies (
		project_id,
		blocking_severity,
		min_coverage_percent,
		perf_budget_ms,
		a11y_budget,
		autofix_scope,
		auto_merge,
		sla_hours,
		updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	ON CONFLICT (project_id) DO UPDATE SET
		blocking_severity = EXCLUDED.blocking_severity,
		min_coverage_percent = EXCLUDED.min_coverage_percent,
		perf_budget_ms = EXCLUDED.perf_budget_ms,
		a11y_budget = EXCLUDED.a11y_budget,
		autofix_scope = EXCLUDED.autofix_scope,
		auto_merge = EXCLUDED.auto_merge,
		sla_hours = EXCLUDED.sla_hours,
		updated_at = EXCLUDED.updated_at`

	selectPolicyQuery = `SELECT project_id, blocking_severity, min_coverage_percent, perf_budget_ms, a11y_budget, autofix_scope, auto_merge, sla_hours, updated_at
	 FROM project_policies
	 WHERE project_id = $1`
)

func NewPolicyStore(db DB) *PolicyStore {
	if db == nil {
		return nil
	}
	return &PolicyStore{db: db}
}

func (s *PolicyStore) GetPolicy(ctx context.Context, projectID string) (domain.ProjectPolicy, error) {
	if s == nil || s.db == nil {
		return domain.ProjectPolicy{}, fmt.Errorf("policy store not initialized")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return domain.ProjectPolicy{}, fmt.Errorf("project id is required")
	}

	var policy domain.ProjectPolicy
	var blockingSeverity string
	var autofixScope string
	var slaJSON []byte
	row := s.db.QueryRowContext(ctx, selectPolicyQuery, projectID)
	if err := row.Scan(
		&policy.ProjectID,
		&blockingSeverity,
		&policy.MinCoveragePercent,
		&policy.PerfBudgetMs,
		&policy.A11yBudget,
		&autofixScope,
		&policy.AutoMerge,
		&slaJSON,
		&policy.UpdatedAt,
	); err != nil {
		return domain.ProjectPolicy{}, handleNotFound(err)
	}
	policy.BlockingSeverity = domain.NormalizeSeverity(blockingSeverity)
	policy.AutofixScope = domain.NormalizeAutofixScope(autofixScope)
	sla, err := decodeSLAHours(slaJSON)
	if err != nil {
		return domain.ProjectPolicy{}, fmt.Errorf("decode sla hours: %w", err)
	}
	policy.SLAHours = sla
	policy.UpdatedAt = policy.UpdatedAt.UTC()
	return policy, nil
}

func (s *PolicyStore) UpsertPolicy(ctx context.Context, policy domain.ProjectPolicy) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("policy store not initialized")
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	slaJSON, err := encodeSLAHours(policy.SLAHours)
	if err != nil {
		return fmt.Errorf("encode sla hours: %w", err)
	}
	updatedAt := policy.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(
		ctx,
		upsertPolicyQuery,
		strings.TrimSpace(policy.ProjectID),
		string(policy.BlockingSeverity),
		policy.MinCoveragePercent,
		policy.PerfBudgetMs,
		policy.A11yBudget,
		string(policy.AutofixScope),
		policy.AutoMerge,
		slaJSON,
		updatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert policy: %w", err)
	}
	return nil
}

func encodeSLAHours(sla map[domain.Severity]int) ([]byte, error) {
	out := make(map[string]int, len(sla))
	for severity, hours := range sla {
		out[string(severity)] = hours
	}
	return json.Marshal(out)
}

func decodeSLAHours(raw []byte) (map[domain.Severity]int, error) {
	if len(raw) == 0 {
		return map[domain.Severity]int{}, nil
	}
	var decoded map[string]int
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	out := make(map[domain.Severity]int, len(decoded))
	for severity, hours := range decoded {
		normalized := domain.NormalizeSeverity(severity)
		if normalized == "" {
			continue
		}
		out[normalized] = hours
	}
	return out, nil
}
