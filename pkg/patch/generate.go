package patch

import (
	"bytes"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultContextLines is the number of unchanged lines kept around each change.
const DefaultContextLines = 3

// Generate compares before and after and returns the diff turning one into the
// other, or nil when they are identical. Headers are "a/<name>" and
// "b/<name>" without timestamps so that regenerating an unchanged file yields
// identical bytes.
func Generate(name string, before, after []byte, contextLines int) *FileDiff {
	if bytes.Equal(before, after) {
		return nil
	}
	if contextLines < 0 {
		contextLines = DefaultContextLines
	}

	a := splitLinesKeepNL(string(before))
	b := splitLinesKeepNL(string(after))

	// Lines keep their terminator so a change to the final newline is a change.
	matcher := difflib.NewMatcherWithJunk(a, b, false, nil)

	diff := &FileDiff{
		OldName: "a/" + name,
		NewName: "b/" + name,
	}
	for _, group := range matcher.GetGroupedOpCodes(contextLines) {
		hunk, changed := hunkFromGroup(a, b, group)
		if changed {
			diff.Hunks = append(diff.Hunks, hunk)
		}
	}
	if len(diff.Hunks) == 0 {
		return nil
	}
	return diff
}

func hunkFromGroup(a, b []string, group []difflib.OpCode) (Hunk, bool) {
	first, last := group[0], group[len(group)-1]
	hunk := Hunk{
		OldStart: rangeStart(first.I1, last.I2),
		OldLines: last.I2 - first.I1,
		NewStart: rangeStart(first.J1, last.J2),
		NewLines: last.J2 - first.J1,
	}
	changed := false
	for _, op := range group {
		switch op.Tag {
		case 'e':
			hunk.Lines = appendLines(hunk.Lines, LineContext, a[op.I1:op.I2])
		case 'r':
			hunk.Lines = appendLines(hunk.Lines, LineRemoved, a[op.I1:op.I2])
			hunk.Lines = appendLines(hunk.Lines, LineAdded, b[op.J1:op.J2])
			changed = true
		case 'd':
			hunk.Lines = appendLines(hunk.Lines, LineRemoved, a[op.I1:op.I2])
			changed = true
		case 'i':
			hunk.Lines = appendLines(hunk.Lines, LineAdded, b[op.J1:op.J2])
			changed = true
		}
	}
	return hunk, changed
}

// rangeStart follows the unified format: an empty range names the line before it.
func rangeStart(begin, end int) int {
	if end == begin {
		return begin
	}
	return begin + 1
}

func appendLines(dst []Line, kind LineKind, src []string) []Line {
	for _, raw := range src {
		text := strings.TrimSuffix(raw, "\n")
		dst = append(dst, Line{Kind: kind, Text: text, NoNewline: text == raw})
	}
	return dst
}

func splitLinesKeepNL(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
