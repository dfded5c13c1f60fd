package patch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// LineKind is the one-character prefix of a hunk line.
type LineKind byte

const (
	// LineContext is a line present on both sides.
	LineContext LineKind = ' '
	// LineRemoved is a line present only in the old text.
	LineRemoved LineKind = '-'
	// LineAdded is a line present only in the new text.
	LineAdded LineKind = '+'
)

const noNewlineMarker = `\ No newline at end of file`

// Line is a single hunk line without its terminator.
type Line struct {
	Kind LineKind
	Text string
	// NoNewline is set when the line is followed by the "\ No newline at end of
	// file" marker, i.e. it is the unterminated last line of its side.
	NoNewline bool
}

// Hunk captures one "@@" block of a unified diff.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	// Section is whatever follows the closing "@@", kept verbatim.
	Section string
	Lines   []Line
}

// FileDiff is the parsed form of a single-file unified diff.
type FileDiff struct {
	// Preamble holds lines preceding the "---" header (e.g. "diff --git").
	Preamble []string
	OldName  string
	NewName  string
	Hunks    []Hunk
}

// Outcome classifies the result of applying a FileDiff.
type Outcome string

const (
	// OutcomeApplied means every hunk matched at its declared position.
	OutcomeApplied Outcome = "applied"
	// OutcomeOffset means every hunk matched, at least one of them shifted.
	OutcomeOffset Outcome = "offset"
	// OutcomePartial means some hunks were rejected (only with Options.Partial).
	OutcomePartial Outcome = "partial"
	// OutcomeFailed means a hunk could not be located; nothing was produced.
	OutcomeFailed Outcome = "failed"
)

const (
	// CodeMalformedDiff marks a diff that could not be parsed.
	CodeMalformedDiff = "MALFORMED_DIFF"
	// CodeHunkNotFound marks a hunk whose context was not found within the window.
	CodeHunkNotFound = "HUNK_NOT_FOUND"
)

// HunkStatus tracks how a hunk was applied when processing a patch.
type HunkStatus struct {
	Number int    `json:"number"`
	Status string `json:"status"`
	Offset int    `json:"offset,omitempty"`
}

// FailedHunk stores the raw lines of the hunk that could not be applied.
type FailedHunk struct {
	Number        int      `json:"number"`
	RawPatchLines []string `json:"rawPatchLines"`
}

// Error represents a structured failure while parsing or applying a patch. It
// satisfies the error interface so it can be returned directly from Parse and
// Apply.
type Error struct {
	Message         string
	Code            string
	RelativePath    string
	OriginalContent string
	// Line is the 1-based line of the diff where parsing failed.
	Line         int
	HunkStatuses []HunkStatus
	FailedHunk   *FailedHunk
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return "patch error"
}

// Options configure how a diff is applied.
type Options struct {
	// MaxOffset is the number of lines a hunk may drift from its declared
	// position in either direction. Zero only accepts exact positions.
	MaxOffset int
	// Partial skips hunks that cannot be located instead of failing the file.
	// Skipped hunks are returned in Result.Rejected.
	Partial bool
}

// FilesystemOptions augments Options with a working directory used to resolve
// relative paths when touching the local filesystem.
type FilesystemOptions struct {
	Options
	WorkingDir string
}

// Result describes a successful (or partial) application.
type Result struct {
	Outcome   Outcome
	MaxOffset int
	Content   []byte
	Hunks     []HunkStatus
	Rejected  []Hunk
}

var hunkHeaderPattern = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)

// Parse converts the textual representation of a single-file unified diff
// into a FileDiff. Any structural problem yields an *Error with
// CodeMalformedDiff.
func Parse(data []byte) (*FileDiff, error) {
	lines := splitDiffLines(string(data))
	diff := &FileDiff{}

	i := 0
	for i < len(lines) && !strings.HasPrefix(lines[i], "--- ") {
		if strings.HasPrefix(lines[i], "@@") {
			return nil, malformed(i+1, "hunk header appears before the file header")
		}
		diff.Preamble = append(diff.Preamble, lines[i])
		i++
	}
	if i >= len(lines) {
		return nil, malformed(i, "missing --- file header")
	}
	diff.OldName = parseFileName(lines[i][len("--- "):])
	i++
	if i >= len(lines) || !strings.HasPrefix(lines[i], "+++ ") {
		return nil, malformed(i+1, "missing +++ file header")
	}
	diff.NewName = parseFileName(lines[i][len("+++ "):])
	i++

	for i < len(lines) {
		header := lines[i]
		if strings.HasPrefix(header, "--- ") {
			return nil, malformed(i+1, "more than one file in diff")
		}
		hunk, err := parseHunkHeader(header)
		if err != nil {
			return nil, malformed(i+1, err.Error())
		}
		i++
		number := len(diff.Hunks) + 1

		oldSeen, newSeen := 0, 0
		for oldSeen < hunk.OldLines || newSeen < hunk.NewLines {
			if i >= len(lines) {
				return nil, malformed(i, fmt.Sprintf("hunk %d is truncated", number))
			}
			raw := lines[i]
			i++
			if strings.HasPrefix(raw, `\`) {
				if len(hunk.Lines) == 0 {
					return nil, malformed(i, "newline marker without a preceding line")
				}
				hunk.Lines[len(hunk.Lines)-1].NoNewline = true
				continue
			}
			var line Line
			switch {
			case raw == "":
				// Editors that strip trailing whitespace turn " " into "".
				line = Line{Kind: LineContext}
			case raw[0] == byte(LineContext), raw[0] == byte(LineRemoved), raw[0] == byte(LineAdded):
				line = Line{Kind: LineKind(raw[0]), Text: raw[1:]}
			default:
				return nil, malformed(i, fmt.Sprintf("unexpected line in hunk %d: %q", number, raw))
			}
			if line.Kind != LineAdded {
				oldSeen++
			}
			if line.Kind != LineRemoved {
				newSeen++
			}
			if oldSeen > hunk.OldLines || newSeen > hunk.NewLines {
				return nil, malformed(i, fmt.Sprintf("hunk %d has more lines than its header declares", number))
			}
			hunk.Lines = append(hunk.Lines, line)
		}
		if i < len(lines) && strings.HasPrefix(lines[i], `\`) {
			if len(hunk.Lines) == 0 {
				return nil, malformed(i+1, "newline marker without a preceding line")
			}
			hunk.Lines[len(hunk.Lines)-1].NoNewline = true
			i++
		}
		if len(hunk.Lines) == 0 {
			return nil, malformed(i, fmt.Sprintf("hunk %d is empty", number))
		}
		diff.Hunks = append(diff.Hunks, hunk)
	}

	if len(diff.Hunks) == 0 {
		return nil, malformed(len(lines), "diff has no hunks")
	}
	return diff, nil
}

func parseHunkHeader(line string) (Hunk, error) {
	match := hunkHeaderPattern.FindStringSubmatch(line)
	if match == nil {
		return Hunk{}, fmt.Errorf("invalid hunk header %q", line)
	}
	hunk := Hunk{Section: match[5]}
	var err error
	if hunk.OldStart, hunk.OldLines, err = parseRange(match[1], match[2]); err != nil {
		return Hunk{}, err
	}
	if hunk.NewStart, hunk.NewLines, err = parseRange(match[3], match[4]); err != nil {
		return Hunk{}, err
	}
	return hunk, nil
}

func parseRange(start, count string) (int, int, error) {
	s, err := strconv.Atoi(start)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range start %q", start)
	}
	if count == "" {
		return s, 1, nil
	}
	c, err := strconv.Atoi(count)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range length %q", count)
	}
	return s, c, nil
}

// parseFileName drops the optional tab-separated timestamp of a header.
func parseFileName(raw string) string {
	if idx := strings.IndexByte(raw, '\t'); idx >= 0 {
		raw = raw[:idx]
	}
	return strings.TrimSpace(raw)
}

func malformed(line int, message string) *Error {
	return &Error{
		Message: fmt.Sprintf("malformed diff at line %d: %s", line, message),
		Code:    CodeMalformedDiff,
		Line:    line,
	}
}

// splitDiffLines splits on "\n" and drops the empty element produced by a
// trailing terminator. Carriage returns are kept as part of the line text.
func splitDiffLines(input string) []string {
	if input == "" {
		return nil
	}
	input = strings.TrimSuffix(input, "\n")
	return strings.Split(input, "\n")
}

// oldSide returns the lines a hunk expects to find in the base text.
func (h Hunk) oldSide() []string {
	out := make([]string, 0, len(h.Lines))
	for _, line := range h.Lines {
		if line.Kind != LineAdded {
			out = append(out, line.Text)
		}
	}
	return out
}

// newSide returns the lines a hunk leaves behind.
func (h Hunk) newSide() []string {
	out := make([]string, 0, len(h.Lines))
	for _, line := range h.Lines {
		if line.Kind != LineRemoved {
			out = append(out, line.Text)
		}
	}
	return out
}

// trailingNewline reports the end-of-file newline state after this hunk is
// applied to a text whose current state is current.
func (h Hunk) trailingNewline(current bool) bool {
	oldMissing, newMissing := false, false
	for _, line := range h.Lines {
		if !line.NoNewline {
			continue
		}
		if line.Kind != LineAdded {
			oldMissing = true
		}
		if line.Kind != LineRemoved {
			newMissing = true
		}
	}
	switch {
	case newMissing:
		return false
	case oldMissing:
		return true
	default:
		return current
	}
}
