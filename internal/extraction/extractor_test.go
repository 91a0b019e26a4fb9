package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findByType(entities []Entity, t EntityType) []Entity {
	var out []Entity
	for _, e := range entities {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func TestExtractGazetteerCompounds(t *testing.T) {
	ex := NewExtractor(nil)
	ct := Normalize("main engine overheating troubleshooting")

	entities := ex.Extract(ct)

	equipment := findByType(entities, TypeEquipment)
	require.Len(t, equipment, 1)
	assert.Equal(t, "main engine", equipment[0].RawValue)
	assert.Equal(t, Span{Start: 0, End: 11}, equipment[0].Span)
	assert.Equal(t, SourceGazetteer, equipment[0].Source)
	assert.InDelta(t, 0.9, equipment[0].Confidence, 1e-9)

	symptoms := findByType(entities, TypeSymptom)
	require.Len(t, symptoms, 1)
	assert.Equal(t, "overheating", symptoms[0].RawValue)

	acts := findByType(entities, TypeAction)
	require.Len(t, acts, 1)
	assert.Equal(t, "troubleshooting", acts[0].RawValue)
}

func TestExtractFaultCodeAndNegation(t *testing.T) {
	ex := NewExtractor(nil)
	ct := Normalize("Do not start main engine, alarm WARN-335")

	entities := ex.Extract(ct)

	faults := findByType(entities, TypeFaultCode)
	require.Len(t, faults, 1)
	assert.Equal(t, "WARN-335", faults[0].RawValue)
	assert.Equal(t, SourceRegex, faults[0].Source)
	assert.InDelta(t, 0.95, faults[0].Confidence, 1e-9)

	acts := findByType(entities, TypeAction)
	require.Len(t, acts, 1)
	assert.Equal(t, "Do not start", acts[0].RawValue)

	// Canonicalization is a separate stage; the raw pass leaves it empty.
	for _, e := range entities {
		assert.Empty(t, e.CanonicalValue)
	}
}

func TestExtractMeasurements(t *testing.T) {
	ex := NewExtractor(nil)

	cases := []struct {
		query string
		want  string
	}{
		{"battery bank reading 27,6V under load", "27,6V"},
		{"coolant at 95℃ after one hour", "95℃"},
		{"idle speed 1500 rpm", "1500 rpm"},
	}

	for _, tc := range cases {
		entities := ex.Extract(Normalize(tc.query))
		measurements := findByType(entities, TypeMeasurement)
		require.NotEmpty(t, measurements, "query %q", tc.query)
		assert.Equal(t, tc.want, measurements[0].RawValue, "query %q", tc.query)
	}
}

func TestExtractLongestGazetteerPhraseWins(t *testing.T) {
	ex := NewExtractor(nil)
	ct := Normalize("sea water pump leaking in engine room")

	entities := ex.Extract(ct)

	equipment := findByType(entities, TypeEquipment)
	require.Len(t, equipment, 1)
	assert.Equal(t, "sea water pump", equipment[0].RawValue)

	locations := findByType(entities, TypeLocationOnBoard)
	require.Len(t, locations, 1)
	assert.Equal(t, "engine room", locations[0].RawValue)
}

func TestExtractSortedBySpanStart(t *testing.T) {
	ex := NewExtractor(nil)
	ct := Normalize("impeller for sea water pump in pump room")

	entities := ex.Extract(ct)
	require.NotEmpty(t, entities)
	for i := 1; i < len(entities); i++ {
		assert.LessOrEqual(t, entities[i-1].Span.Start, entities[i].Span.Start)
	}
}

func TestExtractEmptyText(t *testing.T) {
	ex := NewExtractor(nil)
	assert.Nil(t, ex.Extract(CleanedText{}))
}

func TestDropShadowedMatches(t *testing.T) {
	entities := []Entity{
		{Type: TypeEquipment, RawValue: "main engine", Span: Span{Start: 0, End: 11}},
		{Type: TypeEquipment, RawValue: "engine", Span: Span{Start: 5, End: 11}},
		{Type: TypeSymptom, RawValue: "engine", Span: Span{Start: 5, End: 11}},
	}

	kept := dropShadowedMatches(entities)

	require.Len(t, kept, 2)
	assert.Equal(t, "main engine", kept[0].RawValue)
	// Containment only shadows within the same type.
	assert.Equal(t, TypeSymptom, kept[1].Type)
}

func TestDropShadowedMatchesKeepsEqualSpans(t *testing.T) {
	entities := []Entity{
		{Type: TypePart, RawValue: "seal", Span: Span{Start: 0, End: 4}},
		{Type: TypePart, RawValue: "seal", Span: Span{Start: 0, End: 4}},
	}

	// Equal-length matches never shadow each other.
	assert.Len(t, dropShadowedMatches(entities), 2)
}
