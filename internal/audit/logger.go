package audit

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder is what callers use to audit a guarded call.
type Recorder interface {
	Record(rec Record)
}

// Record describes one guarded call before it is stamped.
type Record struct {
	Tool   string
	Status Status
	Query  string
	Rule   string
	Reason string
}

// StatusCounter is notified of every recorded status.
type StatusCounter interface {
	AuditEntry(status string)
}

// Logger stamps records into entries and hands them to a writer. It never
// returns an error and never panics on writer failure.
type Logger struct {
	writer  EventWriter
	counter StatusCounter
	source  string
	now     func() time.Time
	logger  *zap.Logger
}

// LoggerConfig holds constructor parameters for Logger.
type LoggerConfig struct {
	Writer  EventWriter
	Counter StatusCounter // optional
	Source  string        // e.g. "mcp" or "cli"
	Logger  *zap.Logger
}

// NewLogger creates a Logger.
func NewLogger(cfg LoggerConfig) *Logger {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := cfg.Writer
	if writer == nil {
		writer = NewLogWriter(logger)
	}
	return &Logger{
		writer:  writer,
		counter: cfg.Counter,
		source:  cfg.Source,
		now:     time.Now,
		logger:  logger,
	}
}

// Record appends one entry.
func (l *Logger) Record(rec Record) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("audit writer panicked", zap.Any("panic", r))
		}
	}()

	entry := &Entry{
		ID:        uuid.NewString(),
		Timestamp: l.now(),
		Status:    rec.Status,
		Query:     SanitizeQuery(rec.Query),
		Tool:      rec.Tool,
		Rule:      rec.Rule,
		Reason:    rec.Reason,
		Source:    l.source,
	}
	if l.counter != nil {
		l.counter.AuditEntry(string(entry.Status))
	}
	l.writer.Write(entry)
}

// Close flushes and closes the underlying writer.
func (l *Logger) Close() {
	l.writer.Close()
}

// SanitizeQuery collapses every newline into a single space so an entry stays
// on one line.
func SanitizeQuery(q string) string {
	q = strings.ReplaceAll(q, "\r\n", " ")
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(q)
}
