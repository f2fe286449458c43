// Package autofix attempts automatic remediation of one security
// finding at a time: it asks an external generator for a fixed file
// body, diffs it against the original, and persists the result as a
// patch tied to a fix attempt.
package autofix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veriflow-labs/veriflow-go/internal/domain"
	"github.com/veriflow-labs/veriflow-go/internal/repo"
)

// PatchStore persists generated patch bodies outside the ledger. The
// returned key locates the stored object.
type PatchStore interface {
	PutPatch(ctx context.Context, projectID, autofixRunID string, diff []byte) (string, error)
}

type Pipeline struct {
	findings  repo.FindingRepository
	runs      repo.RunRepository
	policies  repo.PolicyRepository
	attempts  repo.AutofixRepository
	generator Generator
	patches   PatchStore
	logger    *slog.Logger
}

func NewPipeline(findings repo.FindingRepository, runs repo.RunRepository, policies repo.PolicyRepository, attempts repo.AutofixRepository, generator Generator, patches PatchStore, logger *slog.Logger) (*Pipeline, error) {
	if findings == nil {
		return nil, fmt.Errorf("finding repository is required")
	}
	if runs == nil {
		return nil, fmt.Errorf("run repository is required")
	}
	if policies == nil {
		return nil, fmt.Errorf("policy repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("autofix repository is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		findings:  findings,
		runs:      runs,
		policies:  policies,
		attempts:  attempts,
		generator: generator,
		patches:   patches,
		logger:    logger,
	}, nil
}

// Trigger starts one fix attempt for a finding. A missing finding or a
// policy scope that excludes security fixes aborts before any attempt
// row is created. Once the attempt exists, every later failure is
// recorded on it and never propagated: there is nothing for the caller
// to retry except triggering a fresh attempt.
func (p *Pipeline) Trigger(ctx context.Context, projectID, findingID string) error {
	if p == nil {
		return fmt.Errorf("pipeline not initialized")
	}
	finding, err := p.findings.GetFinding(ctx, projectID, findingID)
	if err != nil {
		return fmt.Errorf("resolve finding: %w", err)
	}

	policy, err := p.policies.GetPolicy(ctx, finding.ProjectID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("resolve policy: %w", err)
		}
		policy = domain.DefaultPolicy(finding.ProjectID)
	}
	if !policy.AutofixScope.CoversSecurity() {
		return fmt.Errorf("autofix scope %q excludes security findings", policy.AutofixScope)
	}

	now := time.Now().UTC()
	attempt := domain.AutofixRun{
		ID:        uuid.NewString(),
		FindingID: finding.ID,
		ProjectID: finding.ProjectID,
		Status:    domain.AutofixRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.attempts.CreateAutofixRun(ctx, attempt); err != nil {
		return fmt.Errorf("create autofix run: %w", err)
	}

	if err := p.generate(ctx, attempt, finding); err != nil {
		p.logger.Error("autofix attempt failed",
			"autofix_run_id", attempt.ID, "finding_id", finding.ID, "error", err)
		if markErr := p.attempts.UpdateAutofixStatus(ctx, attempt.ProjectID, attempt.ID, domain.AutofixFailed, err.Error()); markErr != nil {
			p.logger.Error("mark autofix failed", "autofix_run_id", attempt.ID, "error", markErr)
		}
	}
	return nil
}

// generate performs the fallible part of an attempt. No partial patch
// is ever persisted: the patch row is written only after a usable diff
// exists.
func (p *Pipeline) generate(ctx context.Context, attempt domain.AutofixRun, finding domain.Finding) error {
	original, err := p.readSource(ctx, finding)
	if err != nil {
		return err
	}

	body, err := p.generator.GenerateFix(ctx, buildPrompt(finding, original))
	if err != nil {
		return fmt.Errorf("generate fix: %w", err)
	}
	body = stripCodeFence(body)
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("generator returned no fix")
	}
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}

	diff := UnifiedDiff(finding.File, original, body)
	if diff == "" {
		return fmt.Errorf("generator returned the file unchanged")
	}

	// A patch the object store never accepted is not a completed
	// attempt; the next trigger retries with a fresh attempt row.
	objectKey := ""
	if p.patches != nil {
		key, err := p.patches.PutPatch(ctx, attempt.ProjectID, attempt.ID, []byte(diff))
		if err != nil {
			return fmt.Errorf("store patch body: %w", err)
		}
		objectKey = key
	}

	patch := domain.AutofixPatch{
		ID:           uuid.NewString(),
		AutofixRunID: attempt.ID,
		ProjectID:    attempt.ProjectID,
		FilePath:     finding.File,
		Diff:         diff,
		ObjectKey:    objectKey,
		CreatedAt:    time.Now().UTC(),
	}
	if err := p.attempts.CreateAutofixPatch(ctx, patch); err != nil {
		return fmt.Errorf("persist patch: %w", err)
	}
	if err := p.attempts.UpdateAutofixStatus(ctx, attempt.ProjectID, attempt.ID, domain.AutofixCompleted, ""); err != nil {
		return fmt.Errorf("mark autofix completed: %w", err)
	}
	return nil
}

// readSource locates the finding's file through the run that produced
// it and reads the current content.
func (p *Pipeline) readSource(ctx context.Context, finding domain.Finding) (string, error) {
	if strings.TrimSpace(finding.File) == "" {
		return "", fmt.Errorf("finding has no file path")
	}
	if strings.TrimSpace(finding.RunID) == "" {
		return "", fmt.Errorf("finding is not tied to a run")
	}
	run, err := p.runs.GetRun(ctx, finding.ProjectID, finding.RunID)
	if err != nil {
		return "", fmt.Errorf("resolve owning run: %w", err)
	}
	if strings.TrimSpace(run.RepoPath) == "" {
		return "", fmt.Errorf("run has no repository path")
	}
	body, err := os.ReadFile(filepath.Join(run.RepoPath, finding.File))
	if err != nil {
		return "", fmt.Errorf("read source file: %w", err)
	}
	return string(body), nil
}
