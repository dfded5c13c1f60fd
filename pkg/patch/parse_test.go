package patch

import (
	"errors"
	"testing"
)

func TestParseReadsHeadersAndHunks(t *testing.T) {
	t.Parallel()

	d := mustParse(t, `diff --git a/A.java b/A.java
index 111..222 100644
--- a/A.java	2024-01-01 00:00:00
+++ b/A.java
@@ -1,3 +1,4 @@ class A {
 line1
-line2
+LINE2
+extra

@@ -10 +11 @@
-x
+y
`)
	if len(d.Preamble) != 2 {
		t.Fatalf("expected 2 preamble lines, got %#v", d.Preamble)
	}
	if d.OldName != "a/A.java" || d.NewName != "b/A.java" {
		t.Fatalf("unexpected names: %q %q", d.OldName, d.NewName)
	}
	if d.Target() != "A.java" {
		t.Fatalf("unexpected target %q", d.Target())
	}
	if len(d.Hunks) != 2 {
		t.Fatalf("expected 2 hunks, got %d", len(d.Hunks))
	}
	first := d.Hunks[0]
	if first.Section != " class A {" {
		t.Fatalf("unexpected section %q", first.Section)
	}
	if len(first.Lines) != 5 || first.Lines[4].Kind != LineContext || first.Lines[4].Text != "" {
		t.Fatalf("expected blank context line to be kept: %#v", first.Lines)
	}
	second := d.Hunks[1]
	if second.OldStart != 10 || second.OldLines != 1 || second.NewStart != 11 || second.NewLines != 1 {
		t.Fatalf("unexpected ranges: %#v", second)
	}
}

func TestParseNoNewlineMarkers(t *testing.T) {
	t.Parallel()

	d := mustParse(t, `--- a/f
+++ b/f
@@ -1 +1 @@
-a
\ No newline at end of file
+a
`)
	lines := d.Hunks[0].Lines
	if !lines[0].NoNewline || lines[1].NoNewline {
		t.Fatalf("unexpected markers: %#v", lines)
	}
}

func TestParseRejectsMalformedDiffs(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty":            "",
		"no hunks":         "--- a/f\n+++ b/f\n",
		"missing new name": "--- a/f\n@@ -1 +1 @@\n-a\n+b\n",
		"bad header":       "--- a/f\n+++ b/f\n@@ -x +1 @@\n-a\n",
		"truncated":        "--- a/f\n+++ b/f\n@@ -1,3 +1,3 @@\n a\n",
		"stray line":       "--- a/f\n+++ b/f\n@@ -1,2 +1,2 @@\n a\n*b\n",
		"two files":        "--- a/f\n+++ b/f\n@@ -1 +1 @@\n-a\n+b\n--- a/g\n+++ b/g\n",
		"hunk first":       "@@ -1 +1 @@\n-a\n+b\n",
	}
	for name, body := range cases {
		name, body := name, body
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse([]byte(body))
			var pe *Error
			if !errors.As(err, &pe) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if pe.Code != CodeMalformedDiff {
				t.Fatalf("expected %s, got %s", CodeMalformedDiff, pe.Code)
			}
		})
	}
}

func TestFormatRoundTripsParsedDiff(t *testing.T) {
	t.Parallel()

	body := `--- a/f
+++ b/f
@@ -1,2 +1,2 @@ section
 a
-b
\ No newline at end of file
+c
@@ -0,0 +1 @@
+d
`
	if got := mustParse(t, body).Format(); got != body {
		t.Fatalf("format mismatch:\n%s\nwant:\n%s", got, body)
	}
}
