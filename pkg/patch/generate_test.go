package patch

import "testing"

func TestGenerateReturnsNilForIdenticalInput(t *testing.T) {
	t.Parallel()

	if d := Generate("f", []byte("a\n"), []byte("a\n"), 3); d != nil {
		t.Fatalf("expected nil diff, got %#v", d)
	}
}

func TestGenerateRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		before string
		after  string
	}{
		{name: "modify line", before: "line1\nline2\nline3\n", after: "line1\nLINE2\nline3\n"},
		{name: "append", before: "a\n", after: "a\nb\n"},
		{name: "from empty", before: "", after: "a\nb\n"},
		{name: "to empty", before: "a\nb\n", after: ""},
		{name: "drop final newline", before: "a\nb\n", after: "a\nb"},
		{name: "add final newline", before: "a\nb", after: "a\nb\n"},
		{name: "unterminated both sides", before: "a\nb\nc", after: "A\nb\nc"},
		{name: "distant edits", before: "1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n11\n12\n", after: "one\n2\n3\n4\n5\n6\n7\n8\n9\n10\n11\ntwelve\n"},
		{name: "crlf", before: "a\r\nb\r\n", after: "a\r\nc\r\n"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			d := Generate("pkg/F.java", []byte(tc.before), []byte(tc.after), DefaultContextLines)
			if d == nil {
				t.Fatalf("expected a diff")
			}
			text := d.Format()
			parsed, err := Parse([]byte(text))
			if err != nil {
				t.Fatalf("generated diff does not parse: %v\n%s", err, text)
			}
			if again := parsed.Format(); again != text {
				t.Fatalf("format is not stable:\n%s\nvs\n%s", again, text)
			}
			result, err := Apply([]byte(tc.before), parsed, Options{})
			if err != nil {
				t.Fatalf("Apply returned error: %v\n%s", err, text)
			}
			if string(result.Content) != tc.after {
				t.Fatalf("round trip produced %q, want %q\n%s", result.Content, tc.after, text)
			}
		})
	}
}

func TestGenerateHeadersAndContext(t *testing.T) {
	t.Parallel()

	d := Generate("A.java", []byte("line1\nline2\nline3\n"), []byte("line1\nLINE2\nline3\n"), 3)
	want := "--- a/A.java\n+++ b/A.java\n@@ -1,3 +1,3 @@\n line1\n-line2\n+LINE2\n line3\n"
	if got := d.Format(); got != want {
		t.Fatalf("unexpected diff:\n%s", got)
	}
}

func TestGenerateSplitsDistantChanges(t *testing.T) {
	t.Parallel()

	before := "1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n"
	after := "one\n2\n3\n4\n5\n6\n7\n8\n9\nten\n"
	if d := Generate("f", []byte(before), []byte(after), 1); len(d.Hunks) != 2 {
		t.Fatalf("expected 2 hunks, got %d", len(d.Hunks))
	}
	if d := Generate("f", []byte(before), []byte(after), 10); len(d.Hunks) != 1 {
		t.Fatalf("expected 1 hunk, got %d", len(d.Hunks))
	}
}

func TestStatsCountsLines(t *testing.T) {
	t.Parallel()

	stats := Stats([]byte("a\nb\nc\n"), []byte("a\nB\nc\nd\n"))
	if stats.Added != 2 || stats.Removed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.String() != "+2 -1" {
		t.Fatalf("unexpected rendering %q", stats.String())
	}
}
