package extraction

import "fmt"

// SchemaVersion is the wire version of the extraction output contract.
// Downstream action routing and ranking depend on this exact shape.
const SchemaVersion = "0.2.2"

// EntityType is the closed set of entity kinds the pipeline understands.
type EntityType string

const (
	TypeEquipment       EntityType = "equipment"
	TypePart            EntityType = "part"
	TypePartNumber      EntityType = "part_number"
	TypeFaultCode       EntityType = "fault_code"
	TypeMeasurement     EntityType = "measurement"
	TypeManufacturer    EntityType = "manufacturer"
	TypeModel           EntityType = "model"
	TypeLocationOnBoard EntityType = "location_on_board"
	TypeDocumentID      EntityType = "document_id"
	TypeWorkOrder       EntityType = "work_order"
	TypeSymptom         EntityType = "symptom"
	TypeAction          EntityType = "action"
	TypeMaterial        EntityType = "material"
	TypeQuantity        EntityType = "quantity"
	TypeDateRef         EntityType = "date_ref"
	TypePerson          EntityType = "person"
	TypeOrg             EntityType = "org"
	TypeSystem          EntityType = "system"
)

// AllTypes returns the 18 entity types in canonical order. Every Result
// carries every one of these keys, empty or not.
func AllTypes() []EntityType {
	return []EntityType{
		TypeEquipment,
		TypePart,
		TypePartNumber,
		TypeFaultCode,
		TypeMeasurement,
		TypeManufacturer,
		TypeModel,
		TypeLocationOnBoard,
		TypeDocumentID,
		TypeWorkOrder,
		TypeSymptom,
		TypeAction,
		TypeMaterial,
		TypeQuantity,
		TypeDateRef,
		TypePerson,
		TypeOrg,
		TypeSystem,
	}
}

var validTypes = func() map[EntityType]bool {
	m := make(map[EntityType]bool, 18)
	for _, t := range AllTypes() {
		m[t] = true
	}
	return m
}()

// IsValidType reports whether t belongs to the closed entity-type set.
func IsValidType(t EntityType) bool {
	return validTypes[t]
}

// Source identifies which extractor stage produced an entity.
type Source string

const (
	SourceRegex     Source = "regex"
	SourceGazetteer Source = "gazetteer"
	SourceAI        Source = "ai"
)

// Span is a half-open character range [Start, End) into the normalized text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s Span) Len() int {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start
}

// Overlap returns the number of characters shared by two spans.
func (s Span) Overlap(o Span) int {
	lo := s.Start
	if o.Start > lo {
		lo = o.Start
	}
	hi := s.End
	if o.End < hi {
		hi = o.End
	}
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// Entity is one extracted mention. Entities are immutable after creation;
// the canonicalizer merges duplicates by building new values rather than
// mutating these.
type Entity struct {
	Type           EntityType `json:"type"`
	RawValue       string     `json:"raw_value"`
	CanonicalValue string     `json:"canonical_value"`
	Span           Span       `json:"span"`
	Confidence     float64    `json:"confidence"`
	Source         Source     `json:"source"`
}

type SourceMix struct {
	Regex     int `json:"regex"`
	Gazetteer int `json:"gazetteer"`
	AI        int `json:"ai"`
}

type Metadata struct {
	NeedsAI   bool      `json:"needs_ai"`
	Coverage  float64   `json:"coverage"`
	SourceMix SourceMix `json:"source_mix"`
}

// Result is the stable extraction output contract: all 18 entity-type keys
// are always present, each holding a possibly-empty list of strings.
type Result struct {
	SchemaVersion string                  `json:"schema_version"`
	Entities      map[EntityType][]string `json:"entities"`
	Metadata      Metadata                `json:"metadata"`
}

// NewResult builds an empty well-formed Result with every key present.
func NewResult() Result {
	entities := make(map[EntityType][]string, 18)
	for _, t := range AllTypes() {
		entities[t] = []string{}
	}
	return Result{
		SchemaVersion: SchemaVersion,
		Entities:      entities,
	}
}

// EmptyResult is the degraded shape returned when extraction cannot run:
// still well-formed, flagged as needing AI with zero coverage.
func EmptyResult() Result {
	r := NewResult()
	r.Metadata.NeedsAI = true
	r.Metadata.Coverage = 0.0
	return r
}

// Add appends a value under a valid type, ignoring unknown types and
// exact duplicates.
func (r Result) Add(t EntityType, value string) {
	if !IsValidType(t) || value == "" {
		return
	}
	for _, v := range r.Entities[t] {
		if v == value {
			return
		}
	}
	r.Entities[t] = append(r.Entities[t], value)
}

// Validate confirms the closed-key contract holds.
func (r Result) Validate() error {
	if r.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unexpected schema version %q", r.SchemaVersion)
	}
	if len(r.Entities) != len(validTypes) {
		return fmt.Errorf("expected %d entity keys, got %d", len(validTypes), len(r.Entities))
	}
	for t, values := range r.Entities {
		if !IsValidType(t) {
			return fmt.Errorf("unknown entity type %q", t)
		}
		if values == nil {
			return fmt.Errorf("nil value list for entity type %q", t)
		}
	}
	return nil
}

// Count returns the total number of extracted values across all types.
func (r Result) Count() int {
	n := 0
	for _, values := range r.Entities {
		n += len(values)
	}
	return n
}
