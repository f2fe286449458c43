package autofix

import (
	"fmt"
	"strings"

	"github.com/veriflow-labs/veriflow-go/internal/domain"
)

// buildPrompt renders the fixed generation prompt: what is wrong, where,
// and the full file so the generator can return a complete replacement.
func buildPrompt(finding domain.Finding, fileBody string) string {
	var b strings.Builder
	b.WriteString("Fix the following security finding.\n\n")
	fmt.Fprintf(&b, "Description: %s\n", strings.TrimSpace(finding.Description))
	fmt.Fprintf(&b, "Severity: %s\n", finding.Severity)
	fmt.Fprintf(&b, "File: %s\n", strings.TrimSpace(finding.File))
	fmt.Fprintf(&b, "Line: %d\n\n", finding.Line)
	b.WriteString("Original file content:\n")
	b.WriteString(fileBody)
	if !strings.HasSuffix(fileBody, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\nReturn the complete fixed file content, nothing else.\n")
	return b.String()
}
