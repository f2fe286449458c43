package autofix

import (
	"strings"
	"testing"
)

func TestUnifiedDiffIdenticalInputs(t *testing.T) {
	if diff := UnifiedDiff("main.go", "a\nb\n", "a\nb\n"); diff != "" {
		t.Fatalf("expected empty diff, got %q", diff)
	}
}

func TestUnifiedDiffSingleLineChange(t *testing.T) {
	original := "package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n"
	updated := "package main\n\nfunc main() {\n\tprintln(\"bye\")\n}\n"
	diff := UnifiedDiff("main.go", original, updated)

	if !strings.HasPrefix(diff, "--- a/main.go\n+++ b/main.go\n") {
		t.Fatalf("expected file headers, got %q", diff)
	}
	if !strings.Contains(diff, "-\tprintln(\"hi\")\n") {
		t.Fatalf("expected removed line, got %q", diff)
	}
	if !strings.Contains(diff, "+\tprintln(\"bye\")\n") {
		t.Fatalf("expected added line, got %q", diff)
	}
	if !strings.Contains(diff, "@@ -1,5 +1,5 @@\n") {
		t.Fatalf("expected hunk header covering whole file, got %q", diff)
	}
}

func TestUnifiedDiffSeparatesDistantChanges(t *testing.T) {
	lines := make([]string, 30)
	for i := range lines {
		lines[i] = "line"
	}
	original := strings.Join(lines, "\n") + "\n"

	changed := make([]string, 30)
	copy(changed, lines)
	changed[0] = "first changed"
	changed[29] = "last changed"
	updated := strings.Join(changed, "\n") + "\n"

	diff := UnifiedDiff("big.txt", original, updated)
	if got := strings.Count(diff, "@@"); got != 4 {
		t.Fatalf("expected 2 hunks (4 markers), got %d in %q", got, diff)
	}
}

func TestUnifiedDiffPureInsertion(t *testing.T) {
	diff := UnifiedDiff("notes.txt", "", "hello\n")
	if !strings.Contains(diff, "@@ -0,0 +1,1 @@\n") {
		t.Fatalf("expected insertion hunk header, got %q", diff)
	}
	if !strings.Contains(diff, "+hello\n") {
		t.Fatalf("expected added line, got %q", diff)
	}
}

func TestUnifiedDiffMissingFinalNewline(t *testing.T) {
	diff := UnifiedDiff("f.txt", "a\nb", "a\nc\n")

	want := "--- a/f.txt\n" +
		"+++ b/f.txt\n" +
		"@@ -1,2 +1,2 @@\n" +
		" a\n" +
		"-b\n" +
		"\\ No newline at end of file\n" +
		"+c\n"
	if diff != want {
		t.Fatalf("expected %q, got %q", want, diff)
	}
}

func TestUnifiedDiffNewlineOnlyChange(t *testing.T) {
	// Appending a trailing newline is a real change and must produce a
	// hunk, not a header-only patch.
	diff := UnifiedDiff("f.txt", "a\nb", "a\nb\n")

	if !strings.Contains(diff, "@@ -1,2 +1,2 @@\n") {
		t.Fatalf("expected a hunk, got %q", diff)
	}
	if !strings.Contains(diff, "-b\n\\ No newline at end of file\n+b\n") {
		t.Fatalf("expected marker on the removed side only, got %q", diff)
	}
}

func TestUnifiedDiffMarkerOnContextLine(t *testing.T) {
	// When both bodies end without a newline on the same line, the
	// shared line is context and carries the marker once.
	diff := UnifiedDiff("f.txt", "a\nb", "c\nb")

	if !strings.Contains(diff, " b\n\\ No newline at end of file\n") {
		t.Fatalf("expected marker after context line, got %q", diff)
	}
	if got := strings.Count(diff, "\\ No newline at end of file"); got != 1 {
		t.Fatalf("expected exactly one marker, got %d in %q", got, diff)
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", "package main", "package main"},
		{"plain fence", "```\npackage main\n```", "package main"},
		{"language fence", "```go\npackage main\n```", "package main"},
		{"surrounding whitespace", "  ```go\npackage main\n```  ", "package main"},
	}
	for _, tc := range cases {
		if got := stripCodeFence(tc.in); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}
