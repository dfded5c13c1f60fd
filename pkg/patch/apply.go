package patch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// placement records where a hunk was located in the base text.
type placement struct {
	number int
	hunk   Hunk
	start  int
	offset int
}

// Apply applies d to base. Every hunk is located before any output is built:
// when one cannot be found within opts.MaxOffset lines of its declared
// position the whole file fails with an *Error (Code CodeHunkNotFound) unless
// opts.Partial is set, in which case the hunk is rejected and the rest applied.
func Apply(base []byte, d *FileDiff, opts Options) (*Result, error) {
	if d == nil {
		return nil, errors.New("nil diff")
	}
	if opts.MaxOffset < 0 {
		opts.MaxOffset = 0
	}

	lines, eol := splitText(string(base))

	order := make([]int, len(d.Hunks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return d.Hunks[order[a]].OldStart < d.Hunks[order[b]].OldStart
	})

	var (
		placements []placement
		statuses   []HunkStatus
		rejected   []Hunk
	)
	floor := 0
	for _, index := range order {
		hunk := d.Hunks[index]
		number := index + 1
		start, offset, ok := locate(lines, hunk, floor, opts.MaxOffset)
		if !ok {
			if opts.Partial {
				statuses = append(statuses, HunkStatus{Number: number, Status: "rejected"})
				rejected = append(rejected, hunk)
				continue
			}
			statuses = append(statuses, HunkStatus{Number: number, Status: "no-match"})
			return nil, hunkNotFound(d, string(base), hunk, number, opts.MaxOffset, statuses)
		}
		status := "applied"
		if offset != 0 {
			status = "offset"
		}
		statuses = append(statuses, HunkStatus{Number: number, Status: status, Offset: offset})
		placements = append(placements, placement{number: number, hunk: hunk, start: start, offset: offset})
		floor = start + len(hunk.oldSide())
	}

	out := make([]string, 0, len(lines))
	cursor := 0
	for _, p := range placements {
		out = append(out, lines[cursor:p.start]...)
		out = append(out, p.hunk.newSide()...)
		cursor = p.start + len(p.hunk.oldSide())
		eol = p.hunk.trailingNewline(eol)
	}
	out = append(out, lines[cursor:]...)

	sort.Slice(statuses, func(a, b int) bool { return statuses[a].Number < statuses[b].Number })

	result := &Result{
		Outcome:  OutcomeApplied,
		Content:  []byte(joinText(out, eol)),
		Hunks:    statuses,
		Rejected: rejected,
	}
	for _, p := range placements {
		if magnitude := abs(p.offset); magnitude > result.MaxOffset {
			result.MaxOffset = magnitude
		}
	}
	switch {
	case len(rejected) > 0:
		result.Outcome = OutcomePartial
	case result.MaxOffset > 0:
		result.Outcome = OutcomeOffset
	}
	return result, nil
}

// locate searches outward from the declared position: 0, +1, -1, +2, -2 ...
// A candidate may not start before floor, the end of the previous match.
func locate(lines []string, hunk Hunk, floor, maxOffset int) (int, int, bool) {
	old := hunk.oldSide()
	anchored := anchoredAtEOF(hunk)
	desired := declaredIndex(hunk)

	for distance := 0; distance <= maxOffset; distance++ {
		candidates := []int{distance}
		if distance > 0 {
			candidates = append(candidates, -distance)
		}
		for _, offset := range candidates {
			start := desired + offset
			if start < floor || start+len(old) > len(lines) {
				continue
			}
			if anchored && start+len(old) != len(lines) {
				continue
			}
			if matchesAt(lines, old, start) {
				return start, offset, true
			}
		}
	}
	return 0, 0, false
}

// declaredIndex converts a 1-based old-start into a 0-based line index. A hunk
// without old lines inserts after line OldStart.
func declaredIndex(hunk Hunk) int {
	if hunk.OldLines == 0 {
		return hunk.OldStart
	}
	return hunk.OldStart - 1
}

// anchoredAtEOF reports whether the old side ends with an unterminated line,
// which can only match the end of the base text.
func anchoredAtEOF(hunk Hunk) bool {
	for _, line := range hunk.Lines {
		if line.NoNewline && line.Kind != LineAdded {
			return true
		}
	}
	return false
}

func matchesAt(haystack, needle []string, start int) bool {
	for i := range needle {
		if haystack[start+i] != needle[i] {
			return false
		}
	}
	return true
}

func hunkNotFound(d *FileDiff, original string, hunk Hunk, number, maxOffset int, statuses []HunkStatus) *Error {
	sorted := append([]HunkStatus(nil), statuses...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].Number < sorted[b].Number })
	return &Error{
		Message:         fmt.Sprintf("Hunk %d not found within %d lines of line %d.", number, maxOffset, hunk.OldStart),
		Code:            CodeHunkNotFound,
		RelativePath:    d.Target(),
		OriginalContent: original,
		HunkStatuses:    sorted,
		FailedHunk:      &FailedHunk{Number: number, RawPatchLines: hunk.RawPatchLines()},
	}
}

// splitText returns the lines of text without terminators and whether the
// text ends with a newline. Empty text has no lines and counts as terminated.
func splitText(text string) ([]string, bool) {
	if text == "" {
		return nil, true
	}
	eol := strings.HasSuffix(text, "\n")
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n"), eol
}

func joinText(lines []string, eol bool) string {
	if len(lines) == 0 {
		return ""
	}
	joined := strings.Join(lines, "\n")
	if eol {
		joined += "\n"
	}
	return joined
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
