package audit

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig configures the append-only audit log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int // rotate after this many megabytes, 0 means lumberjack's default
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// FileWriter appends one line per entry in the form
// "[timestamp] [Status: S] [query]". Writes are synchronous and serialized.
type FileWriter struct {
	mu     sync.Mutex
	out    io.WriteCloser
	logger *zap.Logger
}

// NewFileWriter opens a rotating log file.
func NewFileWriter(cfg FileConfig, logger *zap.Logger) *FileWriter {
	return newFileWriter(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, logger)
}

func newFileWriter(out io.WriteCloser, logger *zap.Logger) *FileWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileWriter{out: out, logger: logger}
}

func (w *FileWriter) Write(entry *Entry) {
	line := FormatLine(entry)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.out, line); err != nil {
		w.logger.Error("audit file append failed",
			zap.String("entry_id", entry.ID),
			zap.Error(err),
		)
	}
}

func (w *FileWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.out.Close(); err != nil {
		w.logger.Warn("audit file close failed", zap.Error(err))
	}
}

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatLine renders an entry as a single log line, newline included.
func FormatLine(entry *Entry) string {
	return fmt.Sprintf("[%s] [Status: %s] [%s]\n",
		entry.Timestamp.UTC().Format(TimestampLayout), entry.Status, entry.Query)
}
