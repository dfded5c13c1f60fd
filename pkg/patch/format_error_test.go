package patch

import (
	"errors"
	"strings"
	"testing"
)

func TestFormatErrorForHunkNotFound(t *testing.T) {
	t.Parallel()

	d := mustParse(t, `--- a/src/A.java
+++ b/src/A.java
@@ -1,2 +1,2 @@
 one
-two
+TWO
@@ -4,1 +4,1 @@
-four
+FOUR
`)
	_, err := Apply([]byte("one\ntwo\nthree\n"), d, Options{})
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error, got %v", err)
	}

	message := FormatError(pe)
	for _, want := range []string{
		"Hunk 2 not found within 0 lines of line 4.",
		"Hunks applied: 1.",
		"No match for hunk 2.",
		"Offending hunk:\n@@ -4 +4 @@\n-four\n+FOUR",
		"Full content of file: ./src/A.java::::\none\ntwo\nthree\n",
	} {
		if !strings.Contains(message, want) {
			t.Fatalf("expected %q in message:\n%s", want, message)
		}
	}
}

func TestFormatErrorFallsBackToMessage(t *testing.T) {
	t.Parallel()

	if got := FormatError(nil); got != "Unknown error occurred." {
		t.Fatalf("unexpected nil rendering %q", got)
	}
	pe := &Error{Message: "malformed diff at line 3: boom", Code: CodeMalformedDiff}
	if got := FormatError(pe); got != pe.Message {
		t.Fatalf("unexpected rendering %q", got)
	}
}

func TestDescribeHunkStatuses(t *testing.T) {
	t.Parallel()

	got := describeHunkStatuses([]HunkStatus{
		{Number: 1, Status: "applied"},
		{Number: 2, Status: "offset", Offset: 3},
		{Number: 3, Status: "no-match"},
	})
	if got != "Hunks applied: 1, 2.\nNo match for hunk 3." {
		t.Fatalf("unexpected summary %q", got)
	}
	if describeHunkStatuses(nil) != "" {
		t.Fatalf("expected empty summary")
	}
}

func TestRejectDiff(t *testing.T) {
	t.Parallel()

	d := mustParse(t, aJavaPatch)
	if RejectDiff(d, nil) != nil {
		t.Fatalf("expected nil without rejected hunks")
	}
	reject := RejectDiff(d, d.Hunks)
	if reject.Format() != aJavaPatch {
		t.Fatalf("unexpected reject diff:\n%s", reject.Format())
	}
}
