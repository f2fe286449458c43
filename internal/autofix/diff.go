package autofix

import (
	"fmt"
	"strings"
)

const diffContextLines = 3

const noNewlineMarker = `\ No newline at end of file`

type diffOp int

const (
	opEqual diffOp = iota
	opDelete
	opInsert
)

// diffLine is one line of a file body. noEOL marks the final line of a
// body that does not end in a newline; two lines with equal text but
// different noEOL flags are different lines, so a trailing-newline-only
// change still produces a hunk.
type diffLine struct {
	text  string
	noEOL bool
}

type diffEdit struct {
	op   diffOp
	line diffLine
}

// UnifiedDiff renders a unified diff between two file bodies, with the
// conventional a/ and b/ path prefixes and three lines of context.
// Bodies without a trailing newline get the "No newline at end of file"
// marker, so the patch applies cleanly to the original. Identical
// inputs produce an empty string.
func UnifiedDiff(path, original, updated string) string {
	if original == updated {
		return ""
	}
	edits := diffLines(splitLines(original), splitLines(updated))

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)

	for _, hunk := range groupHunks(edits) {
		oldStart, oldCount, newStart, newCount := hunk.ranges()
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)
		for _, edit := range hunk.edits {
			switch edit.op {
			case opDelete:
				b.WriteString("-" + edit.line.text + "\n")
			case opInsert:
				b.WriteString("+" + edit.line.text + "\n")
			default:
				b.WriteString(" " + edit.line.text + "\n")
			}
			if edit.line.noEOL {
				b.WriteString(noNewlineMarker + "\n")
			}
		}
	}
	return b.String()
}

func splitLines(body string) []diffLine {
	if body == "" {
		return nil
	}
	noEOL := !strings.HasSuffix(body, "\n")
	body = strings.TrimSuffix(body, "\n")
	parts := strings.Split(body, "\n")
	lines := make([]diffLine, len(parts))
	for i, part := range parts {
		lines[i] = diffLine{text: part}
	}
	if noEOL {
		lines[len(lines)-1].noEOL = true
	}
	return lines
}

// diffLines computes a line-level edit script via a longest common
// subsequence table.
func diffLines(a, b []diffLine) []diffEdit {
	n, m := len(a), len(b)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	edits := make([]diffEdit, 0, n+m)
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			edits = append(edits, diffEdit{op: opEqual, line: a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			edits = append(edits, diffEdit{op: opDelete, line: a[i]})
			i++
		default:
			edits = append(edits, diffEdit{op: opInsert, line: b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		edits = append(edits, diffEdit{op: opDelete, line: a[i]})
	}
	for ; j < m; j++ {
		edits = append(edits, diffEdit{op: opInsert, line: b[j]})
	}
	return edits
}

type hunk struct {
	oldStart int // 1-based
	newStart int // 1-based
	edits    []diffEdit
}

func (h hunk) ranges() (oldStart, oldCount, newStart, newCount int) {
	for _, edit := range h.edits {
		switch edit.op {
		case opDelete:
			oldCount++
		case opInsert:
			newCount++
		default:
			oldCount++
			newCount++
		}
	}
	oldStart, newStart = h.oldStart, h.newStart
	if oldCount == 0 {
		oldStart--
	}
	if newCount == 0 {
		newStart--
	}
	return oldStart, oldCount, newStart, newCount
}

// groupHunks splits the edit script into hunks, keeping at most
// diffContextLines of unchanged context around each change. Changes
// separated by more than twice the context width land in separate
// hunks.
func groupHunks(edits []diffEdit) []hunk {
	hunks := make([]hunk, 0, 1)
	var current *hunk
	oldLine, newLine := 1, 1
	// equalRun buffers unchanged lines between changes.
	equalRun := make([]diffEdit, 0, diffContextLines*2)

	closeCurrent := func() {
		if current == nil {
			return
		}
		trail := equalRun
		if len(trail) > diffContextLines {
			trail = trail[:diffContextLines]
		}
		current.edits = append(current.edits, trail...)
		hunks = append(hunks, *current)
		current = nil
	}

	for _, edit := range edits {
		if edit.op == opEqual {
			equalRun = append(equalRun, edit)
			oldLine++
			newLine++
			if current != nil && len(equalRun) > diffContextLines*2 {
				closeCurrent()
				equalRun = append([]diffEdit{}, equalRun[len(equalRun)-diffContextLines:]...)
			}
			continue
		}

		if current == nil {
			lead := equalRun
			if len(lead) > diffContextLines {
				lead = lead[len(lead)-diffContextLines:]
			}
			current = &hunk{
				oldStart: oldLine - len(lead),
				newStart: newLine - len(lead),
				edits:    append([]diffEdit{}, lead...),
			}
		} else {
			current.edits = append(current.edits, equalRun...)
		}
		equalRun = equalRun[:0]

		current.edits = append(current.edits, edit)
		if edit.op == opDelete {
			oldLine++
		} else {
			newLine++
		}
	}
	closeCurrent()
	return hunks
}
