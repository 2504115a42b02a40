package audit

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

const createEntriesTable = `
	CREATE TABLE IF NOT EXISTS sql_guard_audit_entries (
		entry_id  String,
		timestamp DateTime64(3),
		status    LowCardinality(String),
		tool      LowCardinality(String),
		rule      LowCardinality(String),
		reason    String,
		query     String,
		source    LowCardinality(String)
	) ENGINE = MergeTree
	ORDER BY (timestamp, entry_id)
`

// ClickHouseWriter ships audit entries to ClickHouse asynchronously.
// Write() is non-blocking: entries are buffered and batch-inserted in a background goroutine.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *Entry
	done    chan struct{}
	flushed chan struct{}
	logger  *zap.Logger
}

// NewClickHouseWriter connects, creates the entries table if needed and starts
// the background flush loop.
func NewClickHouseWriter(ctx context.Context, dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.Exec(ctx, createEntriesTable); err != nil {
		_ = conn.Close()
		return nil, err
	}

	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *Entry, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go w.flushLoop()
	return w, nil
}

// Write queues an entry for async insertion.
// Non-blocking: drops the entry if the buffer is full.
func (w *ClickHouseWriter) Write(entry *Entry) {
	select {
	case w.buffer <- entry:
	default:
		w.logger.Warn("clickhouse buffer full, dropping audit entry",
			zap.String("entry_id", entry.ID),
		)
	}
}

// Close signals the flush loop to drain remaining entries.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
	if err := w.conn.Close(); err != nil {
		w.logger.Warn("clickhouse close failed", zap.Error(err))
	}
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, flushBatch)

	for {
		select {
		case entry := <-w.buffer:
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case entry := <-w.buffer:
					batch = append(batch, entry)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(entries []*Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO sql_guard_audit_entries (
			entry_id, timestamp, status, tool, rule, reason, query, source
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range entries {
		if err := batch.Append(
			e.ID,
			e.Timestamp,
			string(e.Status),
			e.Tool,
			e.Rule,
			e.Reason,
			e.Query,
			e.Source,
		); err != nil {
			w.logger.Error("clickhouse append entry failed",
				zap.String("entry_id", e.ID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(entries)),
			zap.Error(err),
		)
	}
}

// LogWriter is a fallback EventWriter that mirrors entries into the process log.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs entries to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(entry *Entry) {
	w.logger.Info("audit_entry",
		zap.String("entry_id", entry.ID),
		zap.String("status", string(entry.Status)),
		zap.String("tool", entry.Tool),
		zap.String("rule", entry.Rule),
		zap.String("reason", entry.Reason),
		zap.String("query", entry.Query),
	)
}

func (w *LogWriter) Close() {}

// MultiWriter fans every entry out to several writers in order.
type MultiWriter []EventWriter

func (m MultiWriter) Write(entry *Entry) {
	for _, w := range m {
		w.Write(entry)
	}
}

func (m MultiWriter) Close() {
	for _, w := range m {
		w.Close()
	}
}
