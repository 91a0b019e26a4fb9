package search

import (
	"strings"

	"github.com/yachtops/pms-backend/internal/extraction"
)

// Variant is one rewrite of a term's value, carrying the trust multiplier
// applied to its retrieval signals during fusion.
type Variant struct {
	Value  string  `json:"value"`
	Weight float64 `json:"weight"`
	Kind   string  `json:"kind"`
}

// Term is one distinct search constraint. Variants of a single term are
// OR'd together; distinct terms are AND'd.
type Term struct {
	EntityType extraction.EntityType `json:"entity_type"`
	Value      string                `json:"value"`
	Variants   []Variant             `json:"variants"`
}

const (
	baseVariantWeight     = 1.0
	pluralVariantWeight   = 1.2
	compoundVariantWeight = 1.5
)

// searchableTypes are the entity kinds that become SQL constraints. Action
// entities drive intent, not retrieval; date/person/quantity mentions
// qualify results downstream rather than constraining rows.
var searchableTypes = map[extraction.EntityType]bool{
	extraction.TypeEquipment:       true,
	extraction.TypePart:            true,
	extraction.TypePartNumber:      true,
	extraction.TypeFaultCode:       true,
	extraction.TypeManufacturer:    true,
	extraction.TypeModel:           true,
	extraction.TypeLocationOnBoard: true,
	extraction.TypeDocumentID:      true,
	extraction.TypeWorkOrder:       true,
	extraction.TypeSymptom:         true,
	extraction.TypeSystem:          true,
	extraction.TypeMaterial:        true,
}

// BuildTerms converts canonical entities into search terms, one per distinct
// extracted entity, each expanded with its trusted variants.
func BuildTerms(entities []extraction.Entity) []Term {
	var terms []Term
	seen := make(map[string]bool)

	for _, e := range entities {
		if !searchableTypes[e.Type] || e.CanonicalValue == "" {
			continue
		}
		key := string(e.Type) + "\x00" + e.CanonicalValue
		if seen[key] {
			continue
		}
		seen[key] = true

		terms = append(terms, Term{
			EntityType: e.Type,
			Value:      e.CanonicalValue,
			Variants:   expandVariants(e.CanonicalValue),
		})
	}
	return terms
}

// expandVariants produces the OR'd rewrites for one term: the literal value,
// a plural or singular form, and a higher-trust entry for intact compound
// phrases. Compounds are never split into their words; splitting would leak
// OR semantics across term boundaries.
func expandVariants(value string) []Variant {
	variants := []Variant{{Value: value, Weight: baseVariantWeight, Kind: "exact"}}

	if alt, ok := pluralForm(value); ok {
		variants = append(variants, Variant{Value: alt, Weight: pluralVariantWeight, Kind: "plural"})
	}

	if strings.Contains(value, " ") {
		variants = append(variants, Variant{Value: value, Weight: compoundVariantWeight, Kind: "compound"})
	}

	return variants
}

// pluralForm returns the opposite-number rewrite for simple English nouns.
// Identifier-like values (digits, dashes) are left alone.
func pluralForm(value string) (string, bool) {
	if strings.ContainsAny(value, "0123456789-_/") {
		return "", false
	}

	words := strings.Split(value, " ")
	last := words[len(words)-1]
	if len(last) < 3 {
		return "", false
	}

	var alt string
	switch {
	case strings.HasSuffix(last, "ies"):
		alt = last[:len(last)-3] + "y"
	case strings.HasSuffix(last, "ses") || strings.HasSuffix(last, "xes") || strings.HasSuffix(last, "hes"):
		alt = last[:len(last)-2]
	case strings.HasSuffix(last, "s"):
		alt = last[:len(last)-1]
	case strings.HasSuffix(last, "y") && !strings.HasSuffix(last, "ay") && !strings.HasSuffix(last, "ey") && !strings.HasSuffix(last, "oy"):
		alt = last[:len(last)-1] + "ies"
	default:
		alt = last + "s"
	}

	words[len(words)-1] = alt
	return strings.Join(words, " "), true
}
