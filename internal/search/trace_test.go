package search

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracerWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracerWriter(&buf, nil)

	tr.Record(ProbeTrace{
		QueryID:         "q1",
		Lane:            "NO_LLM",
		Wave:            1,
		Table:           "pms_parts",
		MatchMode:       string(MatchILike),
		YachtIDEnforced: true,
		YachtID:         "y-1",
		RowsReturned:    3,
	})
	tr.Record(ProbeTrace{QueryID: "q2", Table: "pms_faults", YachtIDEnforced: true})

	scanner := bufio.NewScanner(&buf)
	var lines []ProbeTrace
	for scanner.Scan() {
		var pt ProbeTrace
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &pt))
		lines = append(lines, pt)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "q1", lines[0].QueryID)
	assert.True(t, lines[0].YachtIDEnforced)
	assert.Equal(t, 3, lines[0].RowsReturned)
	assert.Equal(t, "pms_faults", lines[1].Table)
}

func TestTracerSnakeCaseFieldNames(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracerWriter(&buf, nil)

	tr.Record(ProbeTrace{QueryID: "q1", YachtIDEnforced: true, ExecutionTimeMS: 12})

	line := buf.String()
	assert.Contains(t, line, `"query_id"`)
	assert.Contains(t, line, `"yacht_id_enforced"`)
	assert.Contains(t, line, `"execution_time_ms"`)
	assert.Contains(t, line, `"match_mode"`)
	// Errors stay off the line when empty.
	assert.NotContains(t, line, `"error"`)
}

func TestNilTracerIsSafe(t *testing.T) {
	var tr *Tracer
	tr.Record(ProbeTrace{QueryID: "q1"})
	assert.NoError(t, tr.Close())
}

func TestRouterTracesRefusedProbe(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracerWriter(&buf, nil)
	r := NewRouter(&fakeStore{}, nil, tr, Config{}, nil)

	st := Statement{Table: "pms_parts", SQL: "SELECT id FROM pms_parts", Args: []interface{}{"y-1"}, YachtEnforced: true}
	_, err := r.runProbe(context.Background(), "q1", "y-1", testLane, st, nil)
	require.ErrorIs(t, err, ErrYachtScopeMissing)

	var pt ProbeTrace
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &pt))
	assert.Equal(t, ErrYachtScopeMissing.Error(), pt.Error)
	assert.Zero(t, pt.RowsReturned)
}
