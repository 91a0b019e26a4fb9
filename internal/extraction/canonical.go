package extraction

import (
	"regexp"
	"strings"
)

// typeWeights express how much a given entity kind is trusted when scoring
// search terms. Structured identifiers rank above free-vocabulary kinds.
var typeWeights = map[EntityType]float64{
	TypePartNumber:      1.0,
	TypeFaultCode:       1.0,
	TypeWorkOrder:       1.0,
	TypeDocumentID:      1.0,
	TypeEquipment:       0.95,
	TypeSystem:          0.9,
	TypeModel:           0.9,
	TypeManufacturer:    0.9,
	TypePart:            0.85,
	TypeLocationOnBoard: 0.85,
	TypeMeasurement:     0.8,
	TypeSymptom:         0.8,
	TypeMaterial:        0.75,
	TypeQuantity:        0.7,
	TypeDateRef:         0.7,
	TypePerson:          0.7,
	TypeOrg:             0.7,
	TypeAction:          0.65,
}

type unitRule struct {
	re   *regexp.Regexp
	unit string
}

// Unit families recognized by measurement normalization: temperature,
// voltage, current, pressure, frequency, RPM and power/volume stragglers.
var unitRules = []unitRule{
	{regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?)\s*(?:°\s?c|℃|deg\s?c|celsius)$`), "°C"},
	{regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?)\s*(?:°\s?f|℉|deg\s?f|fahrenheit)$`), "°F"},
	{regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?)\s*(?:v|volts?)$`), "V"},
	{regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?)\s*(?:a|amps?|amperes?)$`), "A"},
	{regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?)\s*bar$`), "bar"},
	{regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?)\s*psi$`), "psi"},
	{regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?)\s*k?pa$`), "kPa"},
	{regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?)\s*hz$`), "Hz"},
	{regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?)\s*rpm$`), "rpm"},
	{regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?)\s*kw$`), "kW"},
	{regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?)\s*hp$`), "hp"},
	{regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?)\s*(?:l|litres?|liters?)$`), "L"},
	{regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?)\s*(?:h(?:ou)?rs?|hours?)$`), "h"},
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Canonicalizer maps raw extracted values to canonical forms and merges
// duplicate mentions. It never mutates its inputs.
type Canonicalizer struct{}

func NewCanonicalizer() *Canonicalizer {
	return &Canonicalizer{}
}

// Canonicalize returns a copy of e with CanonicalValue filled and the
// per-type trust weight folded into its confidence.
func (c *Canonicalizer) Canonicalize(e Entity) Entity {
	out := e
	out.CanonicalValue = CanonicalValue(e.Type, e.RawValue)

	if w, ok := typeWeights[e.Type]; ok {
		out.Confidence = e.Confidence * w
		if out.Confidence > 1.0 {
			out.Confidence = 1.0
		}
	}
	return out
}

// Merge canonicalizes every entity and collapses duplicates of the same
// (type, canonical value), keeping the highest-confidence mention.
func (c *Canonicalizer) Merge(entities []Entity) []Entity {
	type key struct {
		t EntityType
		v string
	}

	var order []key
	best := make(map[key]Entity)

	for _, e := range entities {
		ce := c.Canonicalize(e)
		k := key{t: ce.Type, v: ce.CanonicalValue}
		existing, seen := best[k]
		if !seen {
			order = append(order, k)
			best[k] = ce
			continue
		}
		if ce.Confidence > existing.Confidence {
			best[k] = ce
		}
	}

	merged := make([]Entity, 0, len(order))
	for _, k := range order {
		merged = append(merged, best[k])
	}
	return merged
}

// BuildResult assembles the fixed 18-key output contract from merged
// entities plus the coverage verdict.
func (c *Canonicalizer) BuildResult(entities []Entity, decision CoverageDecision) Result {
	r := NewResult()
	r.Metadata.NeedsAI = decision.NeedsAI
	r.Metadata.Coverage = decision.Coverage

	for _, e := range entities {
		r.Add(e.Type, e.CanonicalValue)
		switch e.Source {
		case SourceRegex:
			r.Metadata.SourceMix.Regex++
		case SourceGazetteer:
			r.Metadata.SourceMix.Gazetteer++
		case SourceAI:
			r.Metadata.SourceMix.AI++
		}
	}
	return r
}

// CanonicalValue normalizes one raw value for its entity type: measurements
// get canonical unit spacing, fault codes and identifiers are uppercased,
// locations and vocabulary terms lowercased.
func CanonicalValue(t EntityType, raw string) string {
	v := strings.TrimSpace(whitespaceRe.ReplaceAllString(raw, " "))

	switch t {
	case TypeMeasurement:
		return NormalizeMeasurement(v)
	case TypeFaultCode, TypeWorkOrder, TypeDocumentID, TypePartNumber:
		return strings.ToUpper(v)
	case TypeModel:
		return strings.ToUpper(v)
	default:
		return strings.ToLower(v)
	}
}

// NormalizeMeasurement rewrites a measurement literal into "<value> <unit>"
// form with a dot decimal separator: "27,6V" becomes "27.6 V", "95℃"
// becomes "95 °C". Unrecognized measurements pass through lowercased.
func NormalizeMeasurement(raw string) string {
	v := strings.TrimSpace(raw)
	for _, rule := range unitRules {
		m := rule.re.FindStringSubmatch(v)
		if m == nil {
			continue
		}
		number := strings.ReplaceAll(m[1], ",", ".")
		return number + " " + rule.unit
	}
	return strings.ToLower(v)
}
