package extraction

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spansFor builds a CleanedText with evenly spaced three-letter tokens so
// coverage fractions are easy to reason about.
func spacedTokens(words ...string) CleanedText {
	ct := CleanedText{}
	cursor := 0
	for i, w := range words {
		if i > 0 {
			ct.Normalized += " "
			cursor++
		}
		ct.Normalized += w
		ct.Tokens = append(ct.Tokens, w)
		ct.TokenSpans = append(ct.TokenSpans, Span{Start: cursor, End: cursor + len(w)})
		cursor += len(w)
	}
	return ct
}

func TestEvaluateCoverageBelowThreshold(t *testing.T) {
	ct := spacedTokens("aaa", "bbb", "ccc", "ddd")
	entities := []Entity{
		{Type: TypeEquipment, RawValue: "aaa bbb ccc", Span: Span{Start: 0, End: 11}},
	}

	d := EvaluateCoverage(ct, entities)

	assert.InDelta(t, 0.75, d.Coverage, 1e-9)
	assert.True(t, d.NeedsAI)
	assert.Equal(t, "coverage below threshold", d.Reason)
	require.NotEmpty(t, d.UncoveredSpans)
	assert.Equal(t, "ddd", ct.Normalized[d.UncoveredSpans[0].Start:d.UncoveredSpans[0].End])
}

func TestEvaluateCoverageSufficient(t *testing.T) {
	ct := spacedTokens("aaa", "bbb", "ccc", "ddd", "eee", "fff", "ggg", "hhh")
	entities := []Entity{
		{Type: TypeEquipment, RawValue: ct.Normalized[:27], Span: Span{Start: 0, End: 27}},
	}

	d := EvaluateCoverage(ct, entities)

	assert.InDelta(t, 0.875, d.Coverage, 1e-9)
	assert.False(t, d.NeedsAI)
	assert.Equal(t, "regex coverage sufficient", d.Reason)
}

func TestEvaluateCoverageAtThresholdBoundary(t *testing.T) {
	words := make([]string, 20)
	for i := range words {
		words[i] = strings.Repeat(string(rune('a'+i)), 3)
	}
	ct := spacedTokens(words...)

	// 17 of 20 tokens covered is exactly the threshold and must not escalate.
	d := EvaluateCoverage(ct, []Entity{
		{Type: TypeEquipment, RawValue: ct.Normalized[:67], Span: Span{Start: 0, End: 67}},
	})
	assert.InDelta(t, 0.85, d.Coverage, 1e-9)
	assert.False(t, d.NeedsAI)
	assert.Equal(t, "regex coverage sufficient", d.Reason)

	// One token fewer falls below it.
	d = EvaluateCoverage(ct, []Entity{
		{Type: TypeEquipment, RawValue: ct.Normalized[:63], Span: Span{Start: 0, End: 63}},
	})
	assert.InDelta(t, 0.80, d.Coverage, 1e-9)
	assert.True(t, d.NeedsAI)
	assert.Equal(t, "coverage below threshold", d.Reason)
}

func TestEvaluateCoverageUnknownImportantTokens(t *testing.T) {
	ct := spacedTokens("pressure", "aa", "bb", "cc", "dd", "ee", "ff", "x1")
	covered := ct.Normalized[:len(ct.Normalized)-3]
	entities := []Entity{
		{Type: TypeSymptom, RawValue: covered, Span: Span{Start: 0, End: len(covered)}},
	}

	d := EvaluateCoverage(ct, entities)

	assert.InDelta(t, 0.875, d.Coverage, 1e-9)
	// "pressure" and "x1" are important; only "pressure" is explained.
	assert.InDelta(t, 0.5, d.UnknownRatio, 1e-9)
	assert.True(t, d.NeedsAI)
	assert.Equal(t, "too many unknown important tokens", d.Reason)
}

func TestEvaluateCoverageNegation(t *testing.T) {
	ct := Normalize("do not start engine")
	entities := []Entity{
		{Type: TypeAction, RawValue: "do not start engine", Span: Span{Start: 0, End: 19}},
	}

	d := EvaluateCoverage(ct, entities)

	assert.InDelta(t, 1.0, d.Coverage, 1e-9)
	assert.True(t, d.HasNegation)
	assert.True(t, d.NeedsAI)
	assert.Equal(t, "negation or instruction language present", d.Reason)
}

func TestEvaluateCoverageInstruction(t *testing.T) {
	ct := Normalize("please verify the impeller")
	entities := []Entity{
		{Type: TypePart, RawValue: "please verify the impeller", Span: Span{Start: 0, End: 26}},
	}

	d := EvaluateCoverage(ct, entities)

	assert.True(t, d.HasInstruction)
	assert.False(t, d.HasNegation)
	assert.True(t, d.NeedsAI)
	assert.Equal(t, "negation or instruction language present", d.Reason)
}

func TestEvaluateCoverageMeasurementConflict(t *testing.T) {
	ct := spacedTokens("24v", "26v")
	entities := []Entity{
		{Type: TypeMeasurement, RawValue: "24v", Span: Span{Start: 0, End: 3}},
		{Type: TypeMeasurement, RawValue: "26v", Span: Span{Start: 4, End: 7}},
	}

	d := EvaluateCoverage(ct, entities)

	assert.InDelta(t, 1.0, d.Coverage, 1e-9)
	assert.True(t, d.HasConflicts)
	assert.True(t, d.NeedsAI)
	assert.Equal(t, "conflicting entities detected", d.Reason)
}

func TestEvaluateCoverageShortQueryFullyCovered(t *testing.T) {
	ct := spacedTokens("bilge", "pump")
	entities := []Entity{
		{Type: TypeEquipment, RawValue: "bilge pump", Span: Span{Start: 0, End: 10}},
	}

	d := EvaluateCoverage(ct, entities)

	assert.False(t, d.NeedsAI)
	assert.Equal(t, "regex coverage sufficient", d.Reason)
}

func TestEvaluateCoverageEmptyText(t *testing.T) {
	d := EvaluateCoverage(CleanedText{}, nil)

	assert.InDelta(t, 1.0, d.Coverage, 1e-9)
	assert.False(t, d.NeedsAI)
}

func TestComputeCoverageRequiresMajorityOverlap(t *testing.T) {
	ct := CleanedText{
		Normalized: "abcdefgh",
		Tokens:     []string{"abcdefgh"},
		TokenSpans: []Span{{Start: 0, End: 8}},
	}

	// Half the token covered is not enough.
	half := []Entity{{Type: TypePart, Span: Span{Start: 0, End: 4}}}
	assert.InDelta(t, 0.0, computeCoverage(ct, half), 1e-9)

	// One character past half flips the token to covered.
	most := []Entity{{Type: TypePart, Span: Span{Start: 0, End: 5}}}
	assert.InDelta(t, 1.0, computeCoverage(ct, most), 1e-9)
}

func TestHasConflictsCrossTypeOverlap(t *testing.T) {
	entities := []Entity{
		{Type: TypeEquipment, Span: Span{Start: 0, End: 11}},
		{Type: TypeModel, Span: Span{Start: 5, End: 11}},
	}
	assert.True(t, hasConflicts(entities))

	disjoint := []Entity{
		{Type: TypeEquipment, Span: Span{Start: 0, End: 11}},
		{Type: TypeModel, Span: Span{Start: 12, End: 17}},
	}
	assert.False(t, hasConflicts(disjoint))
}

func TestHasConflictsDistantMeasurements(t *testing.T) {
	entities := []Entity{
		{Type: TypeMeasurement, RawValue: "24 V", Span: Span{Start: 0, End: 4}},
		{Type: TypeMeasurement, RawValue: "95 °C", Span: Span{Start: 60, End: 65}},
	}
	assert.False(t, hasConflicts(entities))
}
