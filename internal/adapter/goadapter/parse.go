package goadapter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/veriflow-labs/veriflow-go/internal/domain"
)

// golangci-lint --out-format json
type golangciOutput struct {
	Issues []struct {
		FromLinter string `json:"FromLinter"`
		Text       string `json:"Text"`
		Pos        struct {
			Filename string `json:"Filename"`
			Line     int    `json:"Line"`
		} `json:"Pos"`
	} `json:"Issues"`
}

type lintIssue struct {
	Linter string
	Text   string
	File   string
	Line   int
}

func parseGolangciOutput(out []byte) ([]lintIssue, error) {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return nil, fmt.Errorf("empty output")
	}
	var decoded golangciOutput
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	issues := make([]lintIssue, 0, len(decoded.Issues))
	for _, issue := range decoded.Issues {
		issues = append(issues, lintIssue{
			Linter: issue.FromLinter,
			Text:   issue.Text,
			File:   issue.Pos.Filename,
			Line:   issue.Pos.Line,
		})
	}
	return issues, nil
}

// lintFindings converts lint issues into findings so the detail rides
// the step result instead of collapsing into a bare count. Lint issues
// rank low: they block the static stage, not the merge gate.
func lintFindings(issues []lintIssue) []domain.Finding {
	findings := make([]domain.Finding, 0, len(issues))
	for _, issue := range issues {
		findings = append(findings, domain.Finding{
			Description: strings.TrimSpace(issue.Text),
			Severity:    domain.SeverityLow,
			File:        strings.TrimSpace(issue.File),
			Line:        issue.Line,
			Scanner:     "golangci-lint",
			RuleID:      strings.TrimSpace(issue.Linter),
		})
	}
	return findings
}

// gosec -fmt=json
type gosecOutput struct {
	Issues []struct {
		Severity string `json:"severity"`
		Details  string `json:"details"`
		File     string `json:"file"`
		Line     string `json:"line"`
		RuleID   string `json:"rule_id"`
		CWE      struct {
			ID string `json:"id"`
		} `json:"cwe"`
	} `json:"Issues"`
}

func parseGosecOutput(out []byte) ([]domain.Finding, error) {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return nil, fmt.Errorf("empty output")
	}
	var decoded gosecOutput
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	findings := make([]domain.Finding, 0, len(decoded.Issues))
	for _, issue := range decoded.Issues {
		severity := domain.NormalizeSeverity(issue.Severity)
		if severity == "" {
			severity = domain.SeverityMedium
		}
		line, _ := strconv.Atoi(strings.Split(issue.Line, "-")[0])
		findings = append(findings, domain.Finding{
			Description: strings.TrimSpace(issue.Details),
			Severity:    severity,
			File:        strings.TrimSpace(issue.File),
			Line:        line,
			Scanner:     "gosec",
			RuleID:      strings.TrimSpace(issue.RuleID),
			CWE:         strings.TrimSpace(issue.CWE.ID),
		})
	}
	return findings, nil
}

var coveragePattern = regexp.MustCompile(`coverage: (\d+(?:\.\d+)?)% of statements`)

func parseCoverageOutput(out []byte) (float64, bool) {
	matches := coveragePattern.FindAllStringSubmatch(string(out), -1)
	if len(matches) == 0 {
		return 0, false
	}
	// Multiple packages report multiple figures; average them.
	var total float64
	for _, match := range matches {
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			return 0, false
		}
		total += value
	}
	return total / float64(len(matches)), true
}

// CycloneDX JSON document
type sbomDocument struct {
	BOMFormat  string `json:"bomFormat"`
	Components []any  `json:"components"`
}

func parseSBOMOutput(out []byte) (int, error) {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return 0, fmt.Errorf("empty output")
	}
	var doc sbomDocument
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return 0, fmt.Errorf("decode json: %w", err)
	}
	if doc.BOMFormat == "" {
		return 0, fmt.Errorf("missing bomFormat field")
	}
	return len(doc.Components), nil
}
