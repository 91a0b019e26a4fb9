// Package audit batches mutation records into the master-side audit log.
// Writes are best-effort: a full buffer or a failed flush never fails the
// originating request.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry is one audit record for a mutating action.
type Entry struct {
	ID          string                 `json:"id"`
	YachtID     string                 `json:"yacht_id"`
	UserID      string                 `json:"user_id"`
	Action      string                 `json:"action"`
	ObjectTable string                 `json:"object_table"`
	ObjectID    string                 `json:"object_id"`
	Detail      map[string]interface{} `json:"detail,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Sink persists a batch of entries. Implemented by the master Postgres
// store.
type Sink interface {
	InsertAuditEntries(ctx context.Context, entries []Entry) error
}

type Writer struct {
	sink     Sink
	logger   *zap.Logger
	maxBatch int
	interval time.Duration

	mu  sync.Mutex
	buf []Entry

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewWriter(sink Sink, maxBatch int, interval time.Duration, logger *zap.Logger) *Writer {
	if maxBatch <= 0 {
		maxBatch = 50
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		sink:     sink,
		logger:   logger,
		maxBatch: maxBatch,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background flusher.
func (w *Writer) Start() {
	go func() {
		defer close(w.doneCh)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.Flush(context.Background())
			case <-w.stopCh:
				w.Flush(context.Background())
				return
			}
		}
	}()
}

// Stop flushes what remains and stops the background flusher.
func (w *Writer) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

// Record buffers one entry, flushing when the batch is full.
func (w *Writer) Record(entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	w.mu.Lock()
	w.buf = append(w.buf, entry)
	full := len(w.buf) >= w.maxBatch
	w.mu.Unlock()

	if full {
		w.Flush(context.Background())
	}
}

// Flush writes the current buffer to the sink. On failure the batch is
// dropped after logging: audit must never wedge the request path.
func (w *Writer) Flush(ctx context.Context) {
	w.mu.Lock()
	batch := w.buf
	w.buf = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if w.sink == nil {
		w.logger.Warn("no audit sink configured, dropping batch",
			zap.Int("entries", len(batch)),
		)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := w.sink.InsertAuditEntries(ctx, batch); err != nil {
		w.logger.Error("failed to flush audit batch",
			zap.Int("entries", len(batch)),
			zap.Error(err),
		)
	}
}
