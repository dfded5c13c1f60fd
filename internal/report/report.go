// Package report accumulates the outcome of one materialize or regenerate run.
package report

import (
	"sort"
	"sync"
)

// Severity grades a diagnostic.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// Diagnostic codes.
const (
	CodePatchFailed        = "patch-failed"
	CodePatchTargetMissing = "patch-target-missing"
	CodePatchOffset        = "patch-offset"
	CodePatchPartial       = "patch-partial"
	CodeNonPatchFile       = "non-patch-file"
	CodeWorkingFileMissing = "working-file-missing"
	CodeUntrackedFile      = "untracked-file"
	CodePatchVerifyFailed  = "patch-verify-failed"
	CodePatchChanged       = "patch-changed"
	CodeResourcePatch      = "resource-patch"
)

// Diagnostic is one per-file finding of a run.
type Diagnostic struct {
	Severity   Severity `json:"severity"`
	Code       string   `json:"code"`
	TargetPath string   `json:"targetPath,omitempty"`
	PatchPath  string   `json:"patchPath,omitempty"`
	Message    string   `json:"message"`
	// Detail carries multi-line context such as the rendered hunk failure.
	Detail string `json:"detail,omitempty"`
}

// Counts aggregates per-entry outcomes. Materialize fills the first block,
// regenerate the second.
type Counts struct {
	Entries  int `json:"entries"`
	Copied   int `json:"copied"`
	Applied  int `json:"applied"`
	Offset   int `json:"offset"`
	Partial  int `json:"partial"`
	Failed   int `json:"failed"`
	Orphaned int `json:"orphaned"`

	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`
	Untracked int `json:"untracked"`

	LinesAdded   int `json:"linesAdded"`
	LinesRemoved int `json:"linesRemoved"`
}

// Summary is created fresh per run and shared by the workers of that run.
type Summary struct {
	mu          sync.Mutex
	Operation   string       `json:"operation"`
	Counts      Counts       `json:"counts"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// NewSummary starts an empty summary for operation.
func NewSummary(operation string) *Summary {
	return &Summary{Operation: operation, Diagnostics: []Diagnostic{}}
}

// Add appends a diagnostic.
func (s *Summary) Add(d Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Diagnostics = append(s.Diagnostics, d)
}

// Update mutates the counters under the summary lock.
func (s *Summary) Update(fn func(*Counts)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.Counts)
}

// Finish orders diagnostics by target, then patch, code and message, so the
// rendered output does not depend on archive order or worker scheduling.
func (s *Summary) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.SliceStable(s.Diagnostics, func(i, j int) bool {
		a, b := s.Diagnostics[i], s.Diagnostics[j]
		if a.TargetPath != b.TargetPath {
			return a.TargetPath < b.TargetPath
		}
		if a.PatchPath != b.PatchPath {
			return a.PatchPath < b.PatchPath
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Message < b.Message
	})
}

// Snapshot returns a copy of the counters and diagnostics.
func (s *Summary) Snapshot() (Counts, []Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Counts, append([]Diagnostic(nil), s.Diagnostics...)
}

// Count returns the number of diagnostics with the given severity.
func (s *Summary) Count(severity Severity) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.Diagnostics {
		if d.Severity == severity {
			n++
		}
	}
	return n
}

// WithCode returns the diagnostics carrying code.
func (s *Summary) WithCode(code string) []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Diagnostic
	for _, d := range s.Diagnostics {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}
