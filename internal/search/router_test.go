package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yachtops/pms-backend/internal/extraction"
	"github.com/yachtops/pms-backend/internal/metrics"
)

type fakeStore struct {
	mu         sync.Mutex
	statements []Statement
	respond    func(Statement) ([]Row, error)
}

func (f *fakeStore) ExecuteStatement(_ context.Context, st Statement) ([]Row, error) {
	f.mu.Lock()
	f.statements = append(f.statements, st)
	f.mu.Unlock()
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(st)
}

type fakeVector struct {
	called bool
	rows   []Row
	err    error
}

func (f *fakeVector) Search(_ context.Context, _, _ string, _ int) ([]Row, error) {
	f.called = true
	return f.rows, f.err
}

func termFor(t extraction.EntityType, value string) Term {
	return Term{EntityType: t, Value: value, Variants: expandVariants(value)}
}

func specByName(t *testing.T, name string) tableSpec {
	t.Helper()
	for _, spec := range tenantTables {
		if spec.name == name {
			return spec
		}
	}
	t.Fatalf("no table spec named %q", name)
	return tableSpec{}
}

func TestGroupTermsDistinctTypesStayConjoined(t *testing.T) {
	groups := GroupTerms([]Term{
		termFor(extraction.TypeEquipment, "main engine"),
		termFor(extraction.TypeSymptom, "overheating"),
	})

	require.Len(t, groups, 2)
	assert.Equal(t, "main engine", groups[0].Label)
	assert.Equal(t, "overheating", groups[1].Label)
}

func TestGroupTermsCollapsesLocations(t *testing.T) {
	groups := GroupTerms([]Term{
		termFor(extraction.TypePart, "impeller"),
		termFor(extraction.TypeLocationOnBoard, "box 2a"),
		termFor(extraction.TypeLocationOnBoard, "box 2b"),
	})

	// Locations union into one OR group instead of stacking AND constraints.
	require.Len(t, groups, 2)
	assert.Equal(t, "impeller", groups[0].Label)
	assert.Equal(t, "box 2a | box 2b", groups[1].Label)
	// Two variants per location: the literal and its compound form.
	assert.Len(t, groups[1].Variants, 4)
}

func TestBuildStatementILike(t *testing.T) {
	spec := specByName(t, "pms_parts")
	groups := GroupTerms([]Term{
		termFor(extraction.TypeEquipment, "main engine"),
		termFor(extraction.TypeLocationOnBoard, "engine room"),
	})

	st, ok := BuildStatement(spec, MatchILike, 1, "y-1", groups, 25, 0.2)

	require.True(t, ok)
	assert.True(t, st.YachtEnforced)
	assert.Equal(t, "y-1", st.Args[0])
	assert.Contains(t, st.SQL, "FROM pms_parts WHERE yacht_id = $1 AND")
	assert.Contains(t, st.SQL, "name ILIKE $")
	assert.Contains(t, st.SQL, "location ILIKE $")
	assert.Contains(t, st.SQL, "LIMIT 25")

	// One AND-side parenthesized group per term.
	assert.Equal(t, 1, strings.Count(st.SQL, ") AND ("))

	// equipment probes name+description with 3 variants, location 3 more.
	assert.Len(t, st.Args, 1+6+3)
	for _, arg := range st.Args[1:] {
		assert.Contains(t, arg.(string), "%")
	}
}

func TestBuildStatementExactUsesIndexedColumns(t *testing.T) {
	spec := specByName(t, "pms_parts")
	groups := GroupTerms([]Term{termFor(extraction.TypePartNumber, "119773-42600")})

	st, ok := BuildStatement(spec, MatchExact, 0, "y-1", groups, 25, 0.2)

	require.True(t, ok)
	assert.Contains(t, st.SQL, "lower(part_number) = lower($2)")
	assert.Equal(t, []interface{}{"y-1", "119773-42600"}, st.Args)
}

func TestBuildStatementTrigram(t *testing.T) {
	spec := specByName(t, "pms_equipment")
	groups := GroupTerms([]Term{termFor(extraction.TypeEquipment, "stabilizer")})

	st, ok := BuildStatement(spec, MatchTrigram, 2, "y-1", groups, 10, 0.3)

	require.True(t, ok)
	assert.Contains(t, st.SQL, "similarity(name, $2) > 0.30")
	assert.Contains(t, st.SQL, "yacht_id = $1")
}

func TestBuildStatementRefusesInexpressibleGroup(t *testing.T) {
	// pms_faults has no location column: probing it with a location
	// constraint would silently drop one AND side.
	spec := specByName(t, "pms_faults")
	groups := GroupTerms([]Term{
		termFor(extraction.TypeFaultCode, "WARN-335"),
		termFor(extraction.TypeLocationOnBoard, "engine room"),
	})

	_, ok := BuildStatement(spec, MatchILike, 1, "y-1", groups, 25, 0.2)
	assert.False(t, ok)
}

func TestBuildStatementRefusesExactWithoutIndexedColumn(t *testing.T) {
	spec := specByName(t, "pms_parts")
	groups := GroupTerms([]Term{termFor(extraction.TypeEquipment, "main engine")})

	_, ok := BuildStatement(spec, MatchExact, 0, "y-1", groups, 25, 0.2)
	assert.False(t, ok)
}

func TestBuildStatementRefusesEmptyGroups(t *testing.T) {
	spec := specByName(t, "pms_parts")
	_, ok := BuildStatement(spec, MatchILike, 1, "y-1", nil, 25, 0.2)
	assert.False(t, ok)
}

func TestExecuteRequiresYachtID(t *testing.T) {
	r := NewRouter(&fakeStore{}, nil, nil, Config{}, nil)

	_, err := r.Execute(context.Background(), "q1", "", testLane, "impeller", nil)
	assert.ErrorIs(t, err, ErrYachtScopeMissing)
}

const testLane = "NO_LLM"

func TestExecuteWaveSequence(t *testing.T) {
	store := &fakeStore{
		respond: func(st Statement) ([]Row, error) {
			if st.MatchMode == MatchILike && st.Table == "pms_equipment" {
				return []Row{{ID: "eq-1", Label: "Main Engine", Snippet: "CAT 3512C"}}, nil
			}
			return nil, nil
		},
	}
	vector := &fakeVector{rows: []Row{{ID: "doc-1"}}}
	r := NewRouter(store, vector, nil, Config{}, nil)

	terms := []Term{termFor(extraction.TypeEquipment, "main engine")}
	ranked, err := r.Execute(context.Background(), "q1", "y-1", testLane, "main engine", terms)

	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "pms_equipment", ranked[0].Table)
	assert.Equal(t, MatchILike, ranked[0].BestMode)

	// Structured waves produced rows, so the vector wave never ran.
	assert.False(t, vector.called)

	exact, ilike, trigram := 0, 0, 0
	for _, st := range store.statements {
		assert.Equal(t, "y-1", st.Args[0])
		assert.Contains(t, st.SQL, "yacht_id = $1")
		switch st.MatchMode {
		case MatchExact:
			exact++
		case MatchILike:
			ilike++
		case MatchTrigram:
			trigram++
		}
	}
	// Only pms_equipment can answer an equipment term exactly; every table
	// carries equipment text columns for the fuzzy waves.
	assert.Equal(t, 1, exact)
	assert.Equal(t, 5, ilike)
	assert.Equal(t, 5, trigram)
}

func TestExecuteVectorFallbackRechecksConjunction(t *testing.T) {
	store := &fakeStore{}
	vector := &fakeVector{rows: []Row{
		{Table: "search_index", ID: "doc-1", Label: "Main engine cooling", Snippet: "overheating alarm history"},
		{Table: "search_index", ID: "doc-2", Label: "Generator", Snippet: "annual service"},
	}}
	r := NewRouter(store, vector, nil, Config{}, nil)

	terms := []Term{
		termFor(extraction.TypeEquipment, "main engine"),
		termFor(extraction.TypeSymptom, "overheating"),
	}
	ranked, err := r.Execute(context.Background(), "q1", "y-1", testLane, "main engine overheating", terms)

	require.NoError(t, err)
	assert.True(t, vector.called)
	require.Len(t, ranked, 1)
	assert.Equal(t, "doc-1", ranked[0].ID)
	assert.Equal(t, MatchVector, ranked[0].BestMode)
}

func waveRowsSamples(t *testing.T, mode MatchMode) uint64 {
	t.Helper()
	obs, err := metrics.WaveRows.GetMetricWithLabelValues(string(mode))
	require.NoError(t, err)
	m := &dto.Metric{}
	require.NoError(t, obs.(prometheus.Metric).Write(m))
	return m.GetHistogram().GetSampleCount()
}

func TestExecuteRecordsWaveRowCounts(t *testing.T) {
	before := waveRowsSamples(t, MatchILike)

	store := &fakeStore{
		respond: func(st Statement) ([]Row, error) {
			if st.MatchMode == MatchILike && st.Table == "pms_equipment" {
				return []Row{{ID: "eq-1", Label: "Main Engine"}}, nil
			}
			return nil, nil
		},
	}
	r := NewRouter(store, nil, nil, Config{}, nil)

	_, err := r.Execute(context.Background(), "q1", "y-1", testLane, "main engine",
		[]Term{termFor(extraction.TypeEquipment, "main engine")})
	require.NoError(t, err)

	assert.Greater(t, waveRowsSamples(t, MatchILike), before)
}

func TestExecuteDegradesOnProbeErrors(t *testing.T) {
	store := &fakeStore{
		respond: func(Statement) ([]Row, error) {
			return nil, errors.New("connection reset")
		},
	}
	r := NewRouter(store, nil, nil, Config{}, nil)

	terms := []Term{termFor(extraction.TypePart, "impeller")}
	ranked, err := r.Execute(context.Background(), "q1", "y-1", testLane, "impeller", terms)

	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestRunProbeRefusesUnscopedStatements(t *testing.T) {
	store := &fakeStore{}
	r := NewRouter(store, nil, nil, Config{}, nil)

	cases := []Statement{
		{Table: "pms_parts", SQL: "SELECT id FROM pms_parts", Args: []interface{}{"y-1"}, YachtEnforced: true},
		{Table: "pms_parts", SQL: "SELECT id FROM pms_parts WHERE yacht_id = $1", Args: []interface{}{"other"}, YachtEnforced: true},
		{Table: "pms_parts", SQL: "SELECT id FROM pms_parts WHERE yacht_id = $1", Args: []interface{}{"y-1"}, YachtEnforced: false},
		{Table: "pms_parts", SQL: "SELECT id FROM pms_parts WHERE yacht_id = $1", YachtEnforced: true},
	}

	for i, st := range cases {
		_, err := r.runProbe(context.Background(), "q1", "y-1", testLane, st, nil)
		assert.ErrorIs(t, err, ErrYachtScopeMissing, "case %d", i)
	}
	assert.Empty(t, store.statements, "refused statements must never reach the store")
}

func TestAdmissibleText(t *testing.T) {
	groups := GroupTerms([]Term{
		termFor(extraction.TypeEquipment, "main engine"),
		termFor(extraction.TypeSymptom, "overheating"),
	})

	assert.True(t, AdmissibleText(Row{Label: "Main Engine", Snippet: "overheating at load"}, groups))
	assert.True(t, AdmissibleText(Row{Label: "history", Snippet: "MAIN ENGINE OVERHEATING"}, groups))
	assert.False(t, AdmissibleText(Row{Label: "Main Engine", Snippet: "oil change"}, groups))
	assert.False(t, AdmissibleText(Row{Label: "Generator", Snippet: "overheating"}, groups))
}

func TestGroupWeight(t *testing.T) {
	groups := []TermGroup{
		{Variants: []Variant{{Weight: 1.0}, {Weight: 1.5}}},
		{Variants: []Variant{{Weight: 1.2}}},
	}
	assert.InDelta(t, 1.35, groupWeight(groups), 1e-9)
	assert.InDelta(t, 1.0, groupWeight(nil), 1e-9)
}
