package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]Entry
	err     error
}

func (f *fakeSink) InsertAuditEntries(_ context.Context, entries []Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, entries)
	return f.err
}

func (f *fakeSink) allEntries() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []Entry
	for _, b := range f.batches {
		all = append(all, b...)
	}
	return all
}

func TestRecordFlushesFullBatch(t *testing.T) {
	sink := &fakeSink{}
	w := NewWriter(sink, 2, time.Hour, nil)

	w.Record(Entry{YachtID: "y-1", Action: "create_work_order"})
	w.Record(Entry{YachtID: "y-1", Action: "ingest_document"})

	entries := sink.allEntries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
	}
}

func TestRecordBuffersBelowBatchSize(t *testing.T) {
	sink := &fakeSink{}
	w := NewWriter(sink, 10, time.Hour, nil)

	w.Record(Entry{YachtID: "y-1", Action: "create_work_order"})
	assert.Empty(t, sink.allEntries())

	w.Flush(context.Background())
	assert.Len(t, sink.allEntries(), 1)
}

func TestFlushEmptyBufferSkipsSink(t *testing.T) {
	sink := &fakeSink{}
	w := NewWriter(sink, 10, time.Hour, nil)

	w.Flush(context.Background())
	assert.Empty(t, sink.batches)
}

func TestRecordKeepsCallerSuppliedFields(t *testing.T) {
	sink := &fakeSink{}
	w := NewWriter(sink, 1, time.Hour, nil)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w.Record(Entry{ID: "fixed-id", YachtID: "y-1", Action: "close", CreatedAt: at})

	entries := sink.allEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "fixed-id", entries[0].ID)
	assert.Equal(t, at, entries[0].CreatedAt)
}

func TestNilSinkDropsWithoutPanic(t *testing.T) {
	w := NewWriter(nil, 1, time.Hour, nil)

	w.Record(Entry{YachtID: "y-1", Action: "create_work_order"})
	w.Flush(context.Background())
}

func TestStopFlushesRemainder(t *testing.T) {
	sink := &fakeSink{}
	w := NewWriter(sink, 10, time.Hour, nil)
	w.Start()

	w.Record(Entry{YachtID: "y-1", Action: "create_work_order"})
	w.Stop()

	assert.Len(t, sink.allEntries(), 1)
}
