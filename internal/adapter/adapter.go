package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/veriflow-labs/veriflow-go/internal/domain"
)

// StepContext carries the identifiers an adapter needs to run one stage.
// Passed by value into every call; adapters must not mutate it.
type StepContext struct {
	TenantID  string
	ProjectID string
	RunID     string
	RepoPath  string
}

// Artifact is a payload a stage produced for storage outside the
// ledger, such as an SBOM document or a raw tool report.
type Artifact struct {
	Name        string
	ContentType string
	Body        []byte
}

// StepResult is what an adapter reports back for one stage. A failed
// result must carry an error message; a skipped result must carry a
// message explaining why.
type StepResult struct {
	Status        domain.StepStatus
	Metrics       domain.Metadata
	Findings      []domain.Finding
	Artifacts     []Artifact
	ArtifactRefs  []string
	CoverageDelta *float64
	CostEstimate  *float64
	Message       string
	ErrorMessage  string
}

// Normalize enforces the result contract. Results that violate it are
// converted to failures carrying a diagnostic rather than silently
// accepted.
func (r StepResult) Normalize() StepResult {
	switch r.Status {
	case domain.StepCompleted:
		return r
	case domain.StepFailed:
		if strings.TrimSpace(r.ErrorMessage) == "" {
			r.ErrorMessage = "step failed without diagnostic"
		}
		return r
	case domain.StepSkipped:
		if strings.TrimSpace(r.Message) == "" {
			r.Status = domain.StepFailed
			r.ErrorMessage = "step skipped without explanation"
		}
		return r
	default:
		r.Status = domain.StepFailed
		r.ErrorMessage = fmt.Sprintf("adapter returned invalid status %q", r.Status)
		return r
	}
}

// Failed builds a failed result with the given diagnostic.
func Failed(format string, args ...any) StepResult {
	return StepResult{
		Status:       domain.StepFailed,
		ErrorMessage: fmt.Sprintf(format, args...),
	}
}

// Skipped builds a skipped result with the required explanation.
func Skipped(format string, args ...any) StepResult {
	return StepResult{
		Status:  domain.StepSkipped,
		Message: fmt.Sprintf(format, args...),
	}
}

// Adapter is the per-toolchain capability contract. Every implementation
// provides all eleven operations; each must be total from the caller's
// point of view, converting internal failures into failed results.
type Adapter interface {
	Discover(ctx context.Context, sc StepContext) StepResult
	Static(ctx context.Context, sc StepContext) StepResult
	Unit(ctx context.Context, sc StepContext) StepResult
	Integration(ctx context.Context, sc StepContext) StepResult
	E2E(ctx context.Context, sc StepContext) StepResult
	Perf(ctx context.Context, sc StepContext) StepResult
	A11y(ctx context.Context, sc StepContext) StepResult
	Security(ctx context.Context, sc StepContext) StepResult
	Coverage(ctx context.Context, sc StepContext) StepResult
	SBOM(ctx context.Context, sc StepContext) StepResult
	Summarize(ctx context.Context, sc StepContext) StepResult
}
