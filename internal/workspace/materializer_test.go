package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/asynkron/forkpatch/internal/archive"
	"github.com/asynkron/forkpatch/internal/config"
	"github.com/asynkron/forkpatch/internal/metrics"
	"github.com/asynkron/forkpatch/internal/patchindex"
	"github.com/asynkron/forkpatch/internal/report"
	"github.com/asynkron/forkpatch/pkg/patch"
)

const pristineA = `class A {
    void one() {}
    void two() {}
}
`

const patchedA = `class A {
    void one() {}
    void added() {}
    void two() {}
}
`

const patchA = `--- a/src/A.java
+++ b/src/A.java
@@ -1,4 +1,5 @@
 class A {
     void one() {}
+    void added() {}
     void two() {}
 }
`

const brokenPatch = `--- a/src/B.java
+++ b/src/B.java
@@ -1,2 +1,2 @@
 nothing here
-matches
+anything
`

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

// fixture returns an extracted pristine archive and a scanned patch index.
func fixture(t *testing.T, pristine, patches map[string]string) (archive.Archive, *patchindex.Index) {
	t.Helper()
	pristineRoot := t.TempDir()
	patchRoot := t.TempDir()
	writeTree(t, pristineRoot, pristine)
	writeTree(t, patchRoot, patches)

	src, err := archive.OpenDir(pristineRoot, archive.DefaultClassifier())
	require.NoError(t, err)
	idx, err := patchindex.Scan(patchRoot, patchindex.Options{})
	require.NoError(t, err)
	return src, idx
}

func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(content)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestRunAppliesPatchesAndCopiesResources(t *testing.T) {
	t.Parallel()

	src, idx := fixture(t,
		map[string]string{"src/A.java": pristineA, "conf/app.properties": "name=a\n"},
		map[string]string{"src/A.java.patch": patchA})
	out := t.TempDir()
	collector := metrics.NewInMemoryMetrics()
	m := New(NewFSTree(out), Options{MaxOffset: 50})
	m.Metrics = collector

	summary, err := m.Run(context.Background(), src, idx)
	require.NoError(t, err)

	require.Equal(t, map[string]string{
		"sources/src/A.java":            patchedA,
		"resources/conf/app.properties": "name=a\n",
	}, readTree(t, out))

	counts, diagnostics := summary.Snapshot()
	require.Equal(t, 2, counts.Entries)
	require.Equal(t, 1, counts.Applied)
	require.Equal(t, 1, counts.Copied)
	require.Empty(t, diagnostics)

	snapshot := collector.GetSnapshot()
	require.EqualValues(t, 2, snapshot.Entries.Total)
	require.EqualValues(t, 1, snapshot.Outcomes[OutcomeApplied])
	require.EqualValues(t, 1, snapshot.Outcomes[OutcomeCopied])
	require.Len(t, snapshot.Phases, 1)
	require.Equal(t, metrics.PhaseMaterialize, snapshot.Phases[0].Phase)
}

func TestRunAppliesShiftedPatchWithOffsetDiagnostic(t *testing.T) {
	t.Parallel()

	src, idx := fixture(t,
		map[string]string{"src/A.java": "// upstream header\n" + pristineA},
		map[string]string{"src/A.java.patch": patchA})
	tree := NewMemoryTree()

	summary, err := New(tree, Options{MaxOffset: 50}).Run(context.Background(), src, idx)
	require.NoError(t, err)

	content, ok := tree.File("sources/src/A.java")
	require.True(t, ok)
	require.Equal(t, "// upstream header\n"+patchedA, string(content))

	counts, _ := summary.Snapshot()
	require.Equal(t, 1, counts.Offset)
	offsets := summary.WithCode(report.CodePatchOffset)
	require.Len(t, offsets, 1)
	require.Equal(t, report.SeverityInfo, offsets[0].Severity)
	require.Equal(t, "src/A.java", offsets[0].TargetPath)
	require.Contains(t, offsets[0].Message, "hunk 1 by +1")
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	pristine := map[string]string{
		"src/A.java":          pristineA,
		"src/B.java":          "class B {}\n",
		"conf/app.properties": "name=a\n",
	}
	out := t.TempDir()

	var trees []map[string]string
	for i := 0; i < 2; i++ {
		src, idx := fixture(t, pristine, map[string]string{"src/A.java.patch": patchA})
		_, err := New(NewFSTree(out), Options{MaxOffset: 50}).Run(context.Background(), src, idx)
		require.NoError(t, err)
		trees = append(trees, readTree(t, out))
	}
	require.Equal(t, trees[0], trees[1])
}

func TestRunReportsOrphanedPatches(t *testing.T) {
	t.Parallel()

	src, idx := fixture(t,
		map[string]string{"src/A.java": pristineA},
		map[string]string{
			"src/A.java.patch":    patchA,
			"src/Gone.java.patch": patchA,
			"notes.txt":           "not a patch",
		})

	summary, err := New(NewMemoryTree(), Options{}).Run(context.Background(), src, idx)
	require.NoError(t, err)

	counts, _ := summary.Snapshot()
	require.Equal(t, 1, counts.Orphaned)
	orphans := summary.WithCode(report.CodePatchTargetMissing)
	require.Len(t, orphans, 1)
	require.Equal(t, "src/Gone.java", orphans[0].TargetPath)
	require.Equal(t, report.SeverityWarning, orphans[0].Severity)
	require.True(t, filepath.IsAbs(orphans[0].PatchPath))
	require.Len(t, summary.WithCode(report.CodeNonPatchFile), 1)
}

func TestRunFailurePolicies(t *testing.T) {
	t.Parallel()

	pristine := map[string]string{"src/A.java": pristineA, "src/B.java": "class B {}\n"}
	patches := map[string]string{"src/A.java.patch": patchA, "src/B.java.patch": brokenPatch}

	cases := []struct {
		policy  string
		present bool
	}{
		{policy: config.OnFailurePristine, present: true},
		{policy: config.OnFailureSkip, present: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.policy, func(t *testing.T) {
			t.Parallel()

			src, idx := fixture(t, pristine, patches)
			tree := NewMemoryTree()
			summary, err := New(tree, Options{MaxOffset: 50, OnFailure: tc.policy}).Run(context.Background(), src, idx)

			var failed *report.ApplicationFailedError
			require.True(t, errors.As(err, &failed), "got %v", err)
			require.Equal(t, 1, failed.Failed)
			require.Equal(t, 2, failed.Total)
			require.Equal(t, "1 out of 2 patches failed to apply.", failed.Error())

			content, ok := tree.File("sources/src/A.java")
			require.True(t, ok)
			require.Equal(t, patchedA, string(content))

			content, ok = tree.File("sources/src/B.java")
			require.Equal(t, tc.present, ok)
			if ok {
				require.Equal(t, "class B {}\n", string(content))
			}

			failures := summary.WithCode(report.CodePatchFailed)
			require.Len(t, failures, 1)
			require.Equal(t, "src/B.java", failures[0].TargetPath)
			require.Contains(t, failures[0].Message, "hunk 1")
			require.Contains(t, failures[0].Detail, "Offending hunk:")
			require.NotContains(t, failures[0].Detail, "Full content of file")
		})
	}
}

func TestRunUpdateModeWritesRejects(t *testing.T) {
	t.Parallel()

	twoHunks := `--- a/src/A.java
+++ b/src/A.java
@@ -1,2 +1,3 @@
 class A {
+    // forked
     void one() {}
@@ -20,2 +21,2 @@
 nowhere
-to be found
+at all
`
	src, idx := fixture(t,
		map[string]string{"src/A.java": pristineA},
		map[string]string{"src/A.java.patch": twoHunks})
	tree := NewMemoryTree()

	summary, err := New(tree, Options{Update: true}).Run(context.Background(), src, idx)
	require.NoError(t, err)

	content, ok := tree.File("sources/src/A.java")
	require.True(t, ok)
	require.Equal(t, "class A {\n    // forked\n    void one() {}\n    void two() {}\n}\n", string(content))

	rejects, ok := tree.File("sources/src/A.java" + patch.RejectSuffix)
	require.True(t, ok)
	require.Contains(t, string(rejects), "@@ -20,2 +21,2 @@")
	require.NotContains(t, string(rejects), "// forked")

	counts, _ := summary.Snapshot()
	require.Equal(t, 1, counts.Partial)
	require.Zero(t, counts.Failed)
	require.Len(t, summary.WithCode(report.CodePatchPartial), 1)
}

func TestRunUpdateModeRemovesStaleRejects(t *testing.T) {
	t.Parallel()

	src, idx := fixture(t,
		map[string]string{"src/A.java": pristineA},
		map[string]string{"src/A.java.patch": patchA})
	tree := NewMemoryTree()
	require.NoError(t, tree.WriteFile("sources/src/A.java.rej", []byte("stale")))

	_, err := New(tree, Options{Update: true}).Run(context.Background(), src, idx)
	require.NoError(t, err)
	require.Equal(t, []string{"sources/src/A.java"}, tree.Paths())
}

func TestRunWithWorkers(t *testing.T) {
	t.Parallel()

	pristine := map[string]string{}
	patches := map[string]string{}
	for i := 0; i < 40; i++ {
		name := fmt.Sprintf("src/pkg%d/A%d.java", i%5, i)
		pristine[name] = pristineA
		if i%2 == 0 {
			patches[name+".patch"] = patchA
		}
		pristine[fmt.Sprintf("conf/%d.properties", i)] = "x=1\n"
	}
	src, idx := fixture(t, pristine, patches)
	out := t.TempDir()

	summary, err := New(NewFSTree(out), Options{Workers: 8}).Run(context.Background(), src, idx)
	require.NoError(t, err)

	counts, diagnostics := summary.Snapshot()
	require.Equal(t, 80, counts.Entries)
	require.Equal(t, 20, counts.Applied)
	require.Equal(t, 60, counts.Copied)
	require.Empty(t, diagnostics)
	require.Len(t, readTree(t, out), 80)
}

func TestRunCleanRemovesStaleFiles(t *testing.T) {
	t.Parallel()

	for _, clean := range []bool{false, true} {
		src, idx := fixture(t, map[string]string{"src/A.java": pristineA}, nil)
		out := t.TempDir()
		writeTree(t, out, map[string]string{"sources/src/Stale.java": "old\n"})

		_, err := New(NewFSTree(out), Options{Clean: clean}).Run(context.Background(), src, idx)
		require.NoError(t, err)

		_, staleErr := os.Stat(filepath.Join(out, "sources", "src", "Stale.java"))
		require.Equal(t, clean, errors.Is(staleErr, fs.ErrNotExist), "clean=%v", clean)
		if clean {
			require.DirExists(t, filepath.Join(out, "resources"))
		}
	}
}

func TestRunStopsOnCancellation(t *testing.T) {
	t.Parallel()

	src, idx := fixture(t, map[string]string{"src/A.java": pristineA}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(NewMemoryTree(), Options{}).Run(ctx, src, idx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryTreeReset(t *testing.T) {
	t.Parallel()

	tree := NewMemoryTree()
	require.NoError(t, tree.WriteFile("sources/a.java", []byte("a")))
	require.NoError(t, tree.WriteFile("sourcesX/b.java", []byte("b")))
	require.NoError(t, tree.WriteFile("resources/c.txt", []byte("c")))
	require.NoError(t, tree.Reset("sources"))
	require.Equal(t, []string{"resources/c.txt", "sourcesX/b.java"}, tree.Paths())
}
