package search

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// ProbeTrace is the append-only audit record of one SQL execution attempt.
// Written once per probe to a JSONL log and never mutated; consumed only by
// offline analysis (cmd/tracestats), never by the live request path.
type ProbeTrace struct {
	QueryID         string  `json:"query_id"`
	Lane            string  `json:"lane"`
	Wave            int     `json:"wave"`
	EntityType      string  `json:"entity_type"`
	CanonicalTerm   string  `json:"canonical_term"`
	Table           string  `json:"table"`
	Column          string  `json:"column"`
	MatchMode       string  `json:"match_mode"`
	SQLTemplate     string  `json:"sql_template"`
	YachtIDEnforced bool    `json:"yacht_id_enforced"`
	YachtID         string  `json:"yacht_id"`
	RowsReturned    int     `json:"rows_returned"`
	ExecutionTimeMS int64   `json:"execution_time_ms"`
	Error           string  `json:"error,omitempty"`
	BaseScore       float64 `json:"base_score"`
	FinalScore      float64 `json:"final_score"`
}

// Tracer serializes probe traces to a JSONL sink. Safe for concurrent use;
// trace failures are logged and swallowed so tracing can never fail a query.
type Tracer struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	logger *zap.Logger
}

func NewTracer(path string, logger *zap.Logger) (*Tracer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace log: %w", err)
	}
	t := NewTracerWriter(f, logger)
	t.closer = f
	return t, nil
}

// NewTracerWriter builds a tracer over an arbitrary writer.
func NewTracerWriter(w io.Writer, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{w: w, logger: logger}
}

func (t *Tracer) Record(trace ProbeTrace) {
	if t == nil || t.w == nil {
		return
	}

	line, err := json.Marshal(trace)
	if err != nil {
		t.logger.Warn("failed to marshal probe trace", zap.Error(err))
		return
	}
	line = append(line, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.w.Write(line); err != nil {
		t.logger.Warn("failed to write probe trace", zap.Error(err))
	}
}

func (t *Tracer) Close() error {
	if t == nil || t.closer == nil {
		return nil
	}
	return t.closer.Close()
}
