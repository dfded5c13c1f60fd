package patch

import (
	"fmt"
	"strings"
)

// Format renders the diff in unified format. Output produced by Generate
// round-trips through Parse and Format unchanged.
func (d *FileDiff) Format() string {
	if d == nil {
		return ""
	}
	var b strings.Builder
	for _, line := range d.Preamble {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "--- %s\n", d.OldName)
	fmt.Fprintf(&b, "+++ %s\n", d.NewName)
	for _, hunk := range d.Hunks {
		for _, line := range hunk.RawPatchLines() {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Target returns the new-side file name without the conventional "b/" prefix.
// It falls back to the old-side name when the new side is /dev/null.
func (d *FileDiff) Target() string {
	if d == nil {
		return ""
	}
	name := d.NewName
	if name == "" || name == "/dev/null" {
		name = d.OldName
	}
	for _, prefix := range []string{"a/", "b/"} {
		if strings.HasPrefix(name, prefix) {
			return name[len(prefix):]
		}
	}
	return name
}

// Header renders the "@@ -a,b +c,d @@" line of the hunk.
func (h Hunk) Header() string {
	return fmt.Sprintf("@@ -%s +%s @@%s", formatRange(h.OldStart, h.OldLines), formatRange(h.NewStart, h.NewLines), h.Section)
}

// RawPatchLines returns the hunk as it appears in a diff, header included.
func (h Hunk) RawPatchLines() []string {
	out := make([]string, 0, len(h.Lines)+1)
	out = append(out, h.Header())
	for _, line := range h.Lines {
		out = append(out, string(line.Kind)+line.Text)
		if line.NoNewline {
			out = append(out, noNewlineMarker)
		}
	}
	return out
}

func formatRange(start, length int) string {
	if length == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, length)
}

// RejectDiff builds the diff holding the hunks that update mode skipped, ready
// to be written as a ".rej" file next to the target.
func RejectDiff(d *FileDiff, rejected []Hunk) *FileDiff {
	if d == nil || len(rejected) == 0 {
		return nil
	}
	return &FileDiff{
		OldName: d.OldName,
		NewName: d.NewName,
		Hunks:   append([]Hunk(nil), rejected...),
	}
}

func describeHunkStatuses(statuses []HunkStatus) string {
	if len(statuses) == 0 {
		return ""
	}
	var applied []string
	var failed string
	for _, status := range statuses {
		if status.Status == "applied" || status.Status == "offset" {
			applied = append(applied, fmt.Sprintf("%d", status.Number))
			continue
		}
		if failed == "" {
			failed = fmt.Sprintf("No match for hunk %d.", status.Number)
		}
	}

	parts := make([]string, 0, 2)
	if len(applied) > 0 {
		parts = append(parts, fmt.Sprintf("Hunks applied: %s.", strings.Join(applied, ", ")))
	}
	if failed != "" {
		parts = append(parts, failed)
	}
	return strings.Join(parts, "\n")
}

// FormatError renders Error values into a human readable message suitable for
// surfacing to end users.
func FormatError(err *Error) string {
	if err == nil {
		return "Unknown error occurred."
	}
	message := err.Message
	if message == "" {
		message = "Unknown error occurred."
	}
	if err.Code != CodeHunkNotFound {
		return message
	}

	relativePath := err.RelativePath
	if relativePath == "" {
		relativePath = "unknown file"
	}
	displayPath := relativePath
	if !strings.HasPrefix(displayPath, "./") {
		displayPath = "./" + displayPath
	}
	var parts []string
	parts = append(parts, message)
	if summary := describeHunkStatuses(err.HunkStatuses); summary != "" {
		parts = append(parts, "", summary)
	}
	if err.FailedHunk != nil && len(err.FailedHunk.RawPatchLines) > 0 {
		parts = append(parts, "", "Offending hunk:")
		parts = append(parts, strings.Join(err.FailedHunk.RawPatchLines, "\n"))
	}
	if err.OriginalContent != "" {
		parts = append(parts, "", fmt.Sprintf("Full content of file: %s::::", displayPath), err.OriginalContent)
	}
	return strings.Join(parts, "\n")
}
