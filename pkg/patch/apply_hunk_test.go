package patch

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func mustParse(t *testing.T, body string) *FileDiff {
	t.Helper()
	d, err := Parse([]byte(body))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	return d
}

const aJavaPatch = `--- a/A.java
+++ b/A.java
@@ -1,3 +1,3 @@
 line1
-line2
+LINE2
 line3
`

func TestApplyCleanAtDeclaredPosition(t *testing.T) {
	t.Parallel()

	result, err := Apply([]byte("line1\nline2\nline3\n"), mustParse(t, aJavaPatch), Options{MaxOffset: 50})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if result.Outcome != OutcomeApplied {
		t.Fatalf("expected applied outcome, got %s", result.Outcome)
	}
	if got := string(result.Content); got != "line1\nLINE2\nline3\n" {
		t.Fatalf("unexpected content: %q", got)
	}
	if result.MaxOffset != 0 {
		t.Fatalf("expected zero offset, got %d", result.MaxOffset)
	}
}

func TestApplyAbsorbsOneLineDrift(t *testing.T) {
	t.Parallel()

	result, err := Apply([]byte("line0\nline1\nline2\nline3\n"), mustParse(t, aJavaPatch), Options{MaxOffset: 50})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if result.Outcome != OutcomeOffset || result.MaxOffset != 1 {
		t.Fatalf("expected offset outcome of 1, got %s/%d", result.Outcome, result.MaxOffset)
	}
	if got := string(result.Content); got != "line0\nline1\nLINE2\nline3\n" {
		t.Fatalf("unexpected content: %q", got)
	}
	if len(result.Hunks) != 1 || result.Hunks[0].Offset != 1 || result.Hunks[0].Status != "offset" {
		t.Fatalf("unexpected hunk statuses: %#v", result.Hunks)
	}
}

func TestApplyFuzzyWindowBoundary(t *testing.T) {
	t.Parallel()

	const window = 5
	for _, tc := range []struct {
		name    string
		shift   int
		wantErr bool
	}{
		{name: "within window", shift: window - 1},
		{name: "at window", shift: window},
		{name: "beyond window", shift: window + 1, wantErr: true},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var b strings.Builder
			for i := 0; i < tc.shift; i++ {
				fmt.Fprintf(&b, "pad%d\n", i)
			}
			b.WriteString("line1\nline2\nline3\n")

			result, err := Apply([]byte(b.String()), mustParse(t, aJavaPatch), Options{MaxOffset: window})
			if tc.wantErr {
				var pe *Error
				if !errors.As(err, &pe) {
					t.Fatalf("expected *Error, got %v", err)
				}
				if pe.Code != CodeHunkNotFound || pe.FailedHunk == nil || pe.FailedHunk.Number != 1 {
					t.Fatalf("unexpected error: %#v", pe)
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply returned error: %v", err)
			}
			if result.MaxOffset != tc.shift {
				t.Fatalf("expected offset %d, got %d", tc.shift, result.MaxOffset)
			}
		})
	}
}

func TestApplySearchesBothDirections(t *testing.T) {
	t.Parallel()

	d := mustParse(t, `--- a/f
+++ b/f
@@ -4,1 +4,1 @@
-target
+patched
`)
	result, err := Apply([]byte("a\ntarget\nb\nc\nd\n"), d, Options{MaxOffset: 2})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if result.Hunks[0].Offset != -2 {
		t.Fatalf("expected offset -2, got %d", result.Hunks[0].Offset)
	}
	if got := string(result.Content); got != "a\npatched\nb\nc\nd\n" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestApplyPrefersNearestMatch(t *testing.T) {
	t.Parallel()

	d := mustParse(t, `--- a/f
+++ b/f
@@ -3 +3 @@
-x
+y
`)
	result, err := Apply([]byte("x\nq\nq\nx\n"), d, Options{MaxOffset: 5})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	// +1 is tried before -2.
	if got := string(result.Content); got != "x\nq\nq\ny\n" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestApplyIsAllOrNothing(t *testing.T) {
	t.Parallel()

	d := mustParse(t, `--- a/f
+++ b/f
@@ -1,2 +1,2 @@
 one
-two
+TWO
@@ -5,2 +5,2 @@
 five
-six
+SIX
`)
	base := "one\ntwo\nthree\nfour\nfive\nseven\n"
	result, err := Apply([]byte(base), d, Options{MaxOffset: 3})
	if result != nil {
		t.Fatalf("expected no result on failure, got %#v", result)
	}
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if pe.FailedHunk.Number != 2 {
		t.Fatalf("expected hunk 2 to fail, got %d", pe.FailedHunk.Number)
	}
	if pe.OriginalContent != base {
		t.Fatalf("expected original content to be preserved")
	}
	if len(pe.HunkStatuses) != 2 || pe.HunkStatuses[0].Status != "applied" || pe.HunkStatuses[1].Status != "no-match" {
		t.Fatalf("unexpected statuses: %#v", pe.HunkStatuses)
	}
}

func TestApplyPartialRejectsMissingHunks(t *testing.T) {
	t.Parallel()

	d := mustParse(t, `--- a/f
+++ b/f
@@ -1,2 +1,2 @@
 one
-two
+TWO
@@ -5,2 +5,2 @@
 five
-six
+SIX
`)
	result, err := Apply([]byte("one\ntwo\nthree\nfour\nfive\nseven\n"), d, Options{MaxOffset: 3, Partial: true})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if result.Outcome != OutcomePartial {
		t.Fatalf("expected partial outcome, got %s", result.Outcome)
	}
	if len(result.Rejected) != 1 || result.Rejected[0].OldStart != 5 {
		t.Fatalf("unexpected rejected hunks: %#v", result.Rejected)
	}
	if got := string(result.Content); got != "one\nTWO\nthree\nfour\nfive\nseven\n" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestApplyHunksMayNotOverlap(t *testing.T) {
	t.Parallel()

	d := mustParse(t, `--- a/f
+++ b/f
@@ -1,1 +1,1 @@
-x
+y
@@ -2,1 +2,1 @@
-x
+z
`)
	if _, err := Apply([]byte("x\n"), d, Options{MaxOffset: 5}); err == nil {
		t.Fatalf("expected second hunk to fail instead of reusing the first match")
	}
}

func TestApplyHandlesMissingTrailingNewline(t *testing.T) {
	t.Parallel()

	d := mustParse(t, `--- a/f
+++ b/f
@@ -1,2 +1,2 @@
 a
-b
\ No newline at end of file
+c
`)
	result, err := Apply([]byte("a\nb"), d, Options{})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if got := string(result.Content); got != "a\nc\n" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestApplyAnchorsUnterminatedContextAtEOF(t *testing.T) {
	t.Parallel()

	d := mustParse(t, `--- a/f
+++ b/f
@@ -1 +1 @@
-b
\ No newline at end of file
+c
\ No newline at end of file
`)
	result, err := Apply([]byte("b\nq\nb"), d, Options{MaxOffset: 5})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if got := string(result.Content); got != "b\nq\nc" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestApplyInsertsIntoEmptyFile(t *testing.T) {
	t.Parallel()

	d := mustParse(t, `--- /dev/null
+++ b/f
@@ -0,0 +1,2 @@
+hello
+world
`)
	result, err := Apply(nil, d, Options{})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if got := string(result.Content); got != "hello\nworld\n" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestApplyRejectsNilDiff(t *testing.T) {
	t.Parallel()

	if _, err := Apply([]byte("x"), nil, Options{}); err == nil {
		t.Fatalf("expected error for nil diff")
	}
}

func TestSplitAndJoinText(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "a", "a\n", "a\nb", "a\nb\n", "\n", "a\r\nb\r\n"} {
		lines, eol := splitText(input)
		if got := joinText(lines, eol); got != input {
			t.Fatalf("round trip of %q produced %q", input, got)
		}
	}
}
