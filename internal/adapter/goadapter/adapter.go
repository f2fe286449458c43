// Package goadapter implements the pipeline stage contract for Go
// repositories. Tool-backed stages shell out to configured commands
// and parse their structured output; stages without a configured
// runner report skipped.
package goadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/veriflow-labs/veriflow-go/internal/adapter"
	"github.com/veriflow-labs/veriflow-go/internal/domain"
)

const defaultToolTimeout = 5 * time.Minute

type Adapter struct {
	tools  adapter.ToolConfig
	runner CommandRunner
	logger *slog.Logger
}

func New(tools adapter.ToolConfig, runner CommandRunner, logger *slog.Logger) (*Adapter, error) {
	if err := tools.Validate(); err != nil {
		return nil, err
	}
	if runner == nil {
		runner = NewExecRunner()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{tools: tools, runner: runner, logger: logger}, nil
}

// runTool executes the configured command for a stage under its
// timeout. The second return value is false when no tool is
// configured.
func (a *Adapter) runTool(ctx context.Context, stage string, sc adapter.StepContext) ([]byte, bool, error) {
	tool, ok := a.tools.Tool(stage)
	if !ok {
		return nil, false, nil
	}
	timeout := defaultToolTimeout
	if tool.TimeoutSeconds > 0 {
		timeout = time.Duration(tool.TimeoutSeconds) * time.Second
	}
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := a.runner.Run(toolCtx, sc.RepoPath, tool.Command)
	return out, true, err
}

// runnerStage covers the stages whose contract is just "run the
// configured command": non-zero exit fails the stage, no command skips
// it.
func (a *Adapter) runnerStage(ctx context.Context, stage string, sc adapter.StepContext) adapter.StepResult {
	out, configured, err := a.runTool(ctx, stage, sc)
	if !configured {
		return adapter.Skipped("no %s runner configured", stage)
	}
	if err != nil {
		return adapter.Failed("%s runner failed: %v: %s", stage, err, tail(out))
	}
	return adapter.StepResult{
		Status:  domain.StepCompleted,
		Message: fmt.Sprintf("%s runner passed", stage),
	}
}

func (a *Adapter) Unit(ctx context.Context, sc adapter.StepContext) adapter.StepResult {
	return a.runnerStage(ctx, adapter.StageUnit, sc)
}

func (a *Adapter) Integration(ctx context.Context, sc adapter.StepContext) adapter.StepResult {
	return a.runnerStage(ctx, adapter.StageIntegration, sc)
}

func (a *Adapter) E2E(ctx context.Context, sc adapter.StepContext) adapter.StepResult {
	return a.runnerStage(ctx, adapter.StageE2E, sc)
}

func (a *Adapter) Perf(ctx context.Context, sc adapter.StepContext) adapter.StepResult {
	return a.runnerStage(ctx, adapter.StagePerf, sc)
}

func (a *Adapter) A11y(ctx context.Context, sc adapter.StepContext) adapter.StepResult {
	return a.runnerStage(ctx, adapter.StageA11y, sc)
}

func (a *Adapter) Static(ctx context.Context, sc adapter.StepContext) adapter.StepResult {
	out, configured, err := a.runTool(ctx, adapter.StageStatic, sc)
	if !configured {
		return adapter.Skipped("no static analyzer configured")
	}
	// Linters exit non-zero when they find issues; the output decides.
	issues, parseErr := parseGolangciOutput(out)
	if parseErr != nil {
		if err != nil {
			return adapter.Failed("static analyzer failed: %v: %s", err, tail(out))
		}
		return adapter.Failed("parse static analyzer output: %v", parseErr)
	}
	metrics := domain.Metadata{"issues": len(issues)}
	if len(issues) > 0 {
		first := issues[0]
		return adapter.StepResult{
			Status:   domain.StepFailed,
			Metrics:  metrics,
			Findings: lintFindings(issues),
			ErrorMessage: fmt.Sprintf("static analysis reported %d issues, first: %s:%d %s",
				len(issues), first.File, first.Line, first.Text),
		}
	}
	return adapter.StepResult{
		Status:  domain.StepCompleted,
		Metrics: metrics,
		Message: "static analysis clean",
	}
}

func (a *Adapter) Security(ctx context.Context, sc adapter.StepContext) adapter.StepResult {
	out, configured, err := a.runTool(ctx, adapter.StageSecurity, sc)
	if !configured {
		return adapter.Skipped("no security scanner configured")
	}
	findings, parseErr := parseGosecOutput(out)
	if parseErr != nil {
		if err != nil {
			return adapter.Failed("security scanner failed: %v: %s", err, tail(out))
		}
		return adapter.Failed("parse security scanner output: %v", parseErr)
	}
	return adapter.StepResult{
		Status:   domain.StepCompleted,
		Metrics:  domain.Metadata{"findings": len(findings)},
		Findings: findings,
		Message:  fmt.Sprintf("security scan reported %d findings", len(findings)),
	}
}

func (a *Adapter) Coverage(ctx context.Context, sc adapter.StepContext) adapter.StepResult {
	out, configured, err := a.runTool(ctx, adapter.StageCoverage, sc)
	if !configured {
		return adapter.Skipped("no coverage runner configured")
	}
	if err != nil {
		return adapter.Failed("coverage runner failed: %v: %s", err, tail(out))
	}
	percent, ok := parseCoverageOutput(out)
	if !ok {
		return adapter.Failed("coverage runner output has no coverage figure")
	}
	return adapter.StepResult{
		Status:  domain.StepCompleted,
		Metrics: domain.Metadata{"coverage_percent": percent},
		Message: fmt.Sprintf("coverage %.1f%%", percent),
	}
}

func (a *Adapter) SBOM(ctx context.Context, sc adapter.StepContext) adapter.StepResult {
	out, configured, err := a.runTool(ctx, adapter.StageSBOM, sc)
	if !configured {
		return adapter.Skipped("no sbom generator configured")
	}
	if err != nil {
		return adapter.Failed("sbom generator failed: %v: %s", err, tail(out))
	}
	components, parseErr := parseSBOMOutput(out)
	if parseErr != nil {
		return adapter.Failed("parse sbom output: %v", parseErr)
	}
	return adapter.StepResult{
		Status:  domain.StepCompleted,
		Metrics: domain.Metadata{"components": components},
		Artifacts: []adapter.Artifact{{
			Name:        "bom.json",
			ContentType: "application/json",
			Body:        out,
		}},
		Message: fmt.Sprintf("sbom with %d components", components),
	}
}

func (a *Adapter) Summarize(ctx context.Context, sc adapter.StepContext) adapter.StepResult {
	return adapter.StepResult{
		Status:  domain.StepCompleted,
		Message: fmt.Sprintf("pipeline finished for project %s", sc.ProjectID),
	}
}

// tail trims tool output down to something that fits in an error
// message.
func tail(out []byte) string {
	const limit = 512
	text := strings.TrimSpace(string(out))
	if len(text) <= limit {
		return text
	}
	return "..." + text[len(text)-limit:]
}
