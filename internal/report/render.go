package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	glam "github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/olekukonko/tablewriter"

	"github.com/asynkron/forkpatch/internal/metrics"
)

// Format selects a summary renderer.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat validates a --format value.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatText:
		return FormatText, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, markdown or json)", raw)
	}
}

// RenderOptions controls how a summary is printed.
type RenderOptions struct {
	Format Format
	Color  bool
	// Width is the word wrap used for markdown rendering.
	Width   int
	Metrics *metrics.Snapshot
}

// Render writes s to w in the requested format.
func Render(w io.Writer, s *Summary, opts RenderOptions) error {
	s.Finish()
	switch opts.Format {
	case FormatJSON:
		return renderJSON(w, s, opts.Metrics)
	case FormatMarkdown:
		return renderMarkdown(w, s, opts)
	default:
		return renderText(w, s, opts)
	}
}

type countRow struct {
	label string
	value int
}

func countRows(c Counts) []countRow {
	rows := []countRow{
		{"entries", c.Entries},
		{"copied", c.Copied},
		{"applied", c.Applied},
		{"applied with offset", c.Offset},
		{"partially applied", c.Partial},
		{"failed", c.Failed},
		{"orphaned", c.Orphaned},
		{"created", c.Created},
		{"updated", c.Updated},
		{"unchanged", c.Unchanged},
		{"deleted", c.Deleted},
		{"untracked", c.Untracked},
		{"lines added", c.LinesAdded},
		{"lines removed", c.LinesRemoved},
	}
	out := rows[:0]
	for _, row := range rows {
		if row.value != 0 || row.label == "entries" {
			out = append(out, row)
		}
	}
	return out
}

func renderText(w io.Writer, s *Summary, opts RenderOptions) error {
	counts, diagnostics := s.Snapshot()

	renderer := lipgloss.NewRenderer(w)
	if !opts.Color {
		renderer.SetColorProfile(termenv.Ascii)
	}
	title := renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	severityStyles := map[Severity]lipgloss.Style{
		SeverityInfo:    renderer.NewStyle().Foreground(lipgloss.Color("244")),
		SeverityWarning: renderer.NewStyle().Foreground(lipgloss.Color("11")),
		SeverityError:   renderer.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n", title.Render("forkpatch "+s.Operation))

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Outcome", "Count"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	for _, row := range countRows(counts) {
		table.Append([]string{row.label, fmt.Sprintf("%d", row.value)})
	}
	table.Render()

	if len(diagnostics) > 0 {
		buf.WriteString("\n")
		diagTable := tablewriter.NewWriter(&buf)
		diagTable.SetHeader([]string{"Severity", "Code", "Target", "Message"})
		diagTable.SetBorder(false)
		diagTable.SetCenterSeparator("")
		diagTable.SetAutoWrapText(false)
		for _, d := range diagnostics {
			diagTable.Append([]string{severityStyles[d.Severity].Render(string(d.Severity)), d.Code, d.TargetPath, d.Message})
		}
		diagTable.Render()

		for _, d := range diagnostics {
			if d.Detail == "" {
				continue
			}
			fmt.Fprintf(&buf, "\n%s\n%s\n", title.Render(d.PatchPath), strings.TrimRight(d.Detail, "\n"))
		}
	}

	if opts.Metrics != nil {
		buf.WriteString("\n")
		buf.WriteString(metricsFooter(*opts.Metrics))
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func metricsFooter(snapshot metrics.Snapshot) string {
	var b strings.Builder
	if snapshot.Entries.Total > 0 {
		avg := snapshot.Entries.TotalTime / time.Duration(snapshot.Entries.Total)
		fmt.Fprintf(&b, "Processed %d entries (avg %s, min %s, max %s)\n",
			snapshot.Entries.Total, avg, snapshot.Entries.MinTime, snapshot.Entries.MaxTime)
	}
	for _, phase := range snapshot.Phases {
		fmt.Fprintf(&b, "Phase %s took %s\n", phase.Phase, phase.Duration.Round(time.Millisecond))
	}
	return b.String()
}

// Markdown renders the summary as a markdown document.
func Markdown(s *Summary, snapshot *metrics.Snapshot) string {
	counts, diagnostics := s.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "# forkpatch %s\n\n", s.Operation)
	b.WriteString("| Outcome | Count |\n|---|---:|\n")
	for _, row := range countRows(counts) {
		fmt.Fprintf(&b, "| %s | %d |\n", row.label, row.value)
	}

	if len(diagnostics) > 0 {
		b.WriteString("\n## Diagnostics\n\n")
		for _, d := range diagnostics {
			target := d.TargetPath
			if target == "" {
				target = d.PatchPath
			}
			fmt.Fprintf(&b, "- **%s** `%s` %s: %s\n", d.Severity, d.Code, target, d.Message)
			if d.Detail != "" {
				fmt.Fprintf(&b, "\n  ```diff\n%s\n  ```\n", indent(strings.TrimRight(d.Detail, "\n"), "  "))
			}
		}
	}

	if snapshot != nil {
		if footer := metricsFooter(*snapshot); footer != "" {
			b.WriteString("\n---\n\n")
			for _, line := range strings.Split(strings.TrimRight(footer, "\n"), "\n") {
				fmt.Fprintf(&b, "%s  \n", line)
			}
		}
	}
	return b.String()
}

func renderMarkdown(w io.Writer, s *Summary, opts RenderOptions) error {
	md := Markdown(s, opts.Metrics)
	if !opts.Color {
		_, err := io.WriteString(w, md)
		return err
	}
	wrap := opts.Width
	if wrap <= 0 {
		wrap = 100
	}
	r, err := glam.NewTermRenderer(
		glam.WithStylePath("dark"),
		glam.WithWordWrap(wrap),
	)
	if err != nil {
		return fmt.Errorf("create markdown renderer: %w", err)
	}
	rendered, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = io.WriteString(w, rendered)
	return err
}

type jsonSummary struct {
	Operation   string            `json:"operation"`
	Counts      Counts            `json:"counts"`
	Diagnostics []Diagnostic      `json:"diagnostics"`
	Metrics     *metrics.Snapshot `json:"metrics,omitempty"`
}

func renderJSON(w io.Writer, s *Summary, snapshot *metrics.Snapshot) error {
	counts, diagnostics := s.Snapshot()
	if diagnostics == nil {
		diagnostics = []Diagnostic{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jsonSummary{
		Operation:   s.Operation,
		Counts:      counts,
		Diagnostics: diagnostics,
		Metrics:     snapshot,
	})
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
