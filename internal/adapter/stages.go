package adapter

import (
	"context"
	"fmt"
	"strings"
)

// The fixed, totally ordered stage list. The pipeline never reorders or
// extends it at runtime.
const (
	StageDiscover    = "discover"
	StageStatic      = "static"
	StageUnit        = "unit"
	StageIntegration = "integration"
	StageE2E         = "e2e"
	StagePerf        = "perf"
	StageA11y        = "a11y"
	StageSecurity    = "security"
	StageCoverage    = "coverage"
	StageSBOM        = "sbom"
	StageSummarize   = "summarize"
)

var stageOrder = []string{
	StageDiscover,
	StageStatic,
	StageUnit,
	StageIntegration,
	StageE2E,
	StagePerf,
	StageA11y,
	StageSecurity,
	StageCoverage,
	StageSBOM,
	StageSummarize,
}

// Stages returns the ordered stage names. The caller owns the slice.
func Stages() []string {
	out := make([]string, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// KnownStage reports whether name is one of the fixed stages.
func KnownStage(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, stage := range stageOrder {
		if stage == name {
			return true
		}
	}
	return false
}

// Invoke dispatches a stage to the matching adapter operation through an
// explicit table. The interface declares all eleven operations, so a
// missing method cannot be silently skipped.
func Invoke(ctx context.Context, a Adapter, stage string, sc StepContext) (StepResult, error) {
	if a == nil {
		return StepResult{}, fmt.Errorf("adapter is required")
	}
	switch strings.ToLower(strings.TrimSpace(stage)) {
	case StageDiscover:
		return a.Discover(ctx, sc), nil
	case StageStatic:
		return a.Static(ctx, sc), nil
	case StageUnit:
		return a.Unit(ctx, sc), nil
	case StageIntegration:
		return a.Integration(ctx, sc), nil
	case StageE2E:
		return a.E2E(ctx, sc), nil
	case StagePerf:
		return a.Perf(ctx, sc), nil
	case StageA11y:
		return a.A11y(ctx, sc), nil
	case StageSecurity:
		return a.Security(ctx, sc), nil
	case StageCoverage:
		return a.Coverage(ctx, sc), nil
	case StageSBOM:
		return a.SBOM(ctx, sc), nil
	case StageSummarize:
		return a.Summarize(ctx, sc), nil
	default:
		return StepResult{}, fmt.Errorf("unknown stage %q", stage)
	}
}
