package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yachtops/pms-backend/internal/extraction"
)

func TestBuildTermsFiltersNonSearchableTypes(t *testing.T) {
	terms := BuildTerms([]extraction.Entity{
		{Type: extraction.TypeEquipment, CanonicalValue: "main engine"},
		{Type: extraction.TypeAction, CanonicalValue: "troubleshooting"},
		{Type: extraction.TypeMeasurement, CanonicalValue: "27.6 V"},
		{Type: extraction.TypeDateRef, CanonicalValue: "tomorrow"},
		{Type: extraction.TypeFaultCode, CanonicalValue: "WARN-335"},
	})

	require.Len(t, terms, 2)
	assert.Equal(t, extraction.TypeEquipment, terms[0].EntityType)
	assert.Equal(t, extraction.TypeFaultCode, terms[1].EntityType)
}

func TestBuildTermsDeduplicates(t *testing.T) {
	terms := BuildTerms([]extraction.Entity{
		{Type: extraction.TypePart, CanonicalValue: "impeller"},
		{Type: extraction.TypePart, CanonicalValue: "impeller"},
		{Type: extraction.TypeEquipment, CanonicalValue: "impeller"},
		{Type: extraction.TypePart, CanonicalValue: ""},
	})

	// Same canonical value under a different type is a distinct term.
	require.Len(t, terms, 2)
}

func TestBuildTermsVariantExpansion(t *testing.T) {
	terms := BuildTerms([]extraction.Entity{
		{Type: extraction.TypePart, CanonicalValue: "impeller"},
	})
	require.Len(t, terms, 1)
	require.Len(t, terms[0].Variants, 2)
	assert.Equal(t, Variant{Value: "impeller", Weight: 1.0, Kind: "exact"}, terms[0].Variants[0])
	assert.Equal(t, Variant{Value: "impellers", Weight: 1.2, Kind: "plural"}, terms[0].Variants[1])
}

func TestBuildTermsCompoundVariant(t *testing.T) {
	terms := BuildTerms([]extraction.Entity{
		{Type: extraction.TypeEquipment, CanonicalValue: "main engine"},
	})
	require.Len(t, terms, 1)
	require.Len(t, terms[0].Variants, 3)

	compound := terms[0].Variants[2]
	assert.Equal(t, "main engine", compound.Value)
	assert.Equal(t, "compound", compound.Kind)
	assert.InDelta(t, 1.5, compound.Weight, 1e-9)

	// The compound never splits into its words.
	for _, v := range terms[0].Variants {
		assert.NotEqual(t, "main", v.Value)
		assert.NotEqual(t, "engine", v.Value)
	}
}

func TestBuildTermsIdentifiersGetNoPlural(t *testing.T) {
	terms := BuildTerms([]extraction.Entity{
		{Type: extraction.TypeFaultCode, CanonicalValue: "WARN-335"},
		{Type: extraction.TypePartNumber, CanonicalValue: "119773-42600"},
	})

	for _, term := range terms {
		require.Len(t, term.Variants, 1, "term %q", term.Value)
		assert.Equal(t, "exact", term.Variants[0].Kind)
	}
}

func TestPluralForm(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"impeller", "impellers", true},
		{"impellers", "impeller", true},
		{"battery", "batteries", true},
		{"batteries", "battery", true},
		{"boxes", "box", true},
		{"main engine", "main engines", true},
		{"wo-1023", "", false},
		{"3512c", "", false},
		{"ab", "", false},
	}

	for _, tc := range cases {
		got, ok := pluralForm(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, "input %q", tc.in)
		}
	}
}
