// Package logging provides the structured logger shared by every forkpatch command.
package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel accepts debug, info, warn/warning and error in any case.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", raw)
	}
}

// LogField represents a key-value pair in structured logging.
type LogField struct {
	Key   string
	Value any
}

// Field creates a LogField from a key-value pair.
func Field(key string, value any) LogField {
	return LogField{Key: key, Value: value}
}

// Logger provides structured logging capabilities with context support.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...LogField)
	Info(ctx context.Context, msg string, fields ...LogField)
	Warn(ctx context.Context, msg string, fields ...LogField)
	Error(ctx context.Context, msg string, err error, fields ...LogField)
	WithFields(fields ...LogField) Logger
}

// NoOpLogger is a logger that discards all log entries.
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(_ context.Context, _ string, _ ...LogField)          {}
func (n *NoOpLogger) Info(_ context.Context, _ string, _ ...LogField)           {}
func (n *NoOpLogger) Warn(_ context.Context, _ string, _ ...LogField)           {}
func (n *NoOpLogger) Error(_ context.Context, _ string, _ error, _ ...LogField) {}
func (n *NoOpLogger) WithFields(_ ...LogField) Logger                           { return n }

// Options tune a StdLogger.
type Options struct {
	// Color renders level tags with ANSI colours.
	Color bool
	// Now overrides the clock, used by tests.
	Now func() time.Time
}

// StdLogger writes one line per entry:
//
//	[2024-01-02T15:04:05Z] [WARN] message fields=[k=v run_id=...]
type StdLogger struct {
	fields   []LogField
	minLevel Level
	logger   *log.Logger
	styles   map[Level]lipgloss.Style
	now      func() time.Time
}

// NewStdLogger creates a new logger with the specified minimum level and writer.
// A nil writer discards everything.
func NewStdLogger(minLevel Level, writer io.Writer, opts Options) *StdLogger {
	if writer == nil {
		writer = io.Discard
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	renderer := lipgloss.NewRenderer(writer)
	if !opts.Color {
		renderer.SetColorProfile(termenv.Ascii)
	}
	return &StdLogger{
		minLevel: minLevel,
		logger:   log.New(writer, "", 0),
		styles: map[Level]lipgloss.Style{
			LevelDebug: renderer.NewStyle().Foreground(lipgloss.Color("8")),
			LevelInfo:  renderer.NewStyle().Foreground(lipgloss.Color("12")),
			LevelWarn:  renderer.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
			LevelError: renderer.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		},
		now: now,
	}
}

func (s *StdLogger) log(ctx context.Context, level Level, msg string, err error, fields ...LogField) {
	if levelRank[level] < levelRank[s.minLevel] {
		return
	}

	allFields := append(append([]LogField(nil), s.fields...), fields...)
	if runID := RunID(ctx); runID != "" {
		allFields = append(allFields, Field("run_id", runID))
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", s.now().Format(time.RFC3339)))
	parts = append(parts, s.styles[level].Render(fmt.Sprintf("[%s]", level)))
	if err != nil {
		parts = append(parts, fmt.Sprintf("[error=%q]", err.Error()))
	}
	parts = append(parts, msg)

	if len(allFields) > 0 {
		fieldParts := make([]string, 0, len(allFields))
		for _, f := range allFields {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%v", f.Key, f.Value))
		}
		parts = append(parts, fmt.Sprintf("fields=[%s]", strings.Join(fieldParts, " ")))
	}

	s.logger.Println(strings.Join(parts, " "))
}

func (s *StdLogger) Debug(ctx context.Context, msg string, fields ...LogField) {
	s.log(ctx, LevelDebug, msg, nil, fields...)
}

func (s *StdLogger) Info(ctx context.Context, msg string, fields ...LogField) {
	s.log(ctx, LevelInfo, msg, nil, fields...)
}

func (s *StdLogger) Warn(ctx context.Context, msg string, fields ...LogField) {
	s.log(ctx, LevelWarn, msg, nil, fields...)
}

func (s *StdLogger) Error(ctx context.Context, msg string, err error, fields ...LogField) {
	s.log(ctx, LevelError, msg, err, fields...)
}

func (s *StdLogger) WithFields(fields ...LogField) Logger {
	return &StdLogger{
		fields:   append(append([]LogField(nil), s.fields...), fields...),
		minLevel: s.minLevel,
		logger:   s.logger,
		styles:   s.styles,
		now:      s.now,
	}
}

type runIDKey struct{}

// WithRunID tags the context so every entry of one invocation can be correlated.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunID extracts the run id from ctx, if present.
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(runIDKey{}).(string); ok {
		return id
	}
	return ""
}

// NewRunID creates a run id from the current time.
func NewRunID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
