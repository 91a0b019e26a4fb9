package extraction

import (
	"regexp"
	"sort"
	"strings"
)

// gazetteers hold known maritime vocabulary per entity type. Multi-word
// phrases are matched as intact compounds; the entries are sorted longest
// first when compiled so "sea water pump" wins over "pump".
var gazetteers = map[EntityType][]string{
	TypeEquipment: {
		"main engine", "port engine", "starboard engine", "auxiliary engine",
		"generator", "genset", "bow thruster", "stern thruster", "stabilizer",
		"bilge pump", "sea water pump", "fresh water pump", "fuel pump",
		"fire pump", "ballast pump", "battery bank", "battery charger",
		"inverter", "shore power converter", "watermaker", "air conditioning",
		"chiller", "compressor", "windlass", "capstan", "davit", "crane",
		"fuel filter", "oil filter", "separator", "purifier", "heat exchanger",
		"turbocharger", "gearbox", "propeller shaft", "rudder", "autopilot",
		"radar", "gyrocompass", "steering gear", "exhaust fan", "boiler",
		"sewage treatment plant", "oily water separator", "fire damper",
	},
	TypeSystem: {
		"fuel system", "cooling system", "electrical system", "hydraulic system",
		"steering system", "bilge system", "fire system", "hvac system",
		"freshwater system", "black water system", "grey water system",
		"lube oil system", "exhaust system",
	},
	TypeManufacturer: {
		"caterpillar", "mtu", "cummins", "volvo penta", "man", "yanmar",
		"kohler", "northern lights", "onan", "furuno", "garmin", "raymarine",
		"simrad", "victron", "mastervolt", "alfa laval", "naiad", "quantum",
		"jabsco", "grundfos", "racor", "separ", "hamann", "dometic", "webasto",
	},
	TypeLocationOnBoard: {
		"engine room", "bridge", "wheelhouse", "galley", "lazarette",
		"bilge", "flybridge", "crew mess", "crew quarters", "owner's cabin",
		"guest cabin", "foredeck", "aft deck", "swim platform", "tender garage",
		"forepeak", "chain locker", "pump room", "battery room", "void space",
		"tank deck", "main deck", "lower deck",
	},
	TypeSymptom: {
		"overheating", "overheat", "leaking", "leak", "vibration", "vibrating",
		"noise", "noisy", "smoke", "smoking", "corrosion", "corroded",
		"low pressure", "high pressure", "low voltage", "high voltage",
		"hard starting", "not starting", "misfiring", "surging", "hunting",
		"tripping", "dripping", "seized", "blocked", "clogged", "flooding",
		"alarm", "shutdown",
	},
	TypeAction: {
		"troubleshooting", "inspection", "overhaul", "replacement", "service",
		"calibration", "alignment", "flushing", "greasing", "bleeding",
		"commissioning", "winterization",
	},
	TypeMaterial: {
		"stainless steel", "bronze", "copper", "neoprene", "gasket material",
		"anode", "zinc", "coolant", "antifreeze", "hydraulic oil", "lube oil",
		"grease", "sealant", "teflon",
	},
	TypePart: {
		"impeller", "gasket", "seal", "o-ring", "bearing", "belt", "hose",
		"thermostat", "injector", "glow plug", "spark plug", "solenoid",
		"relay", "fuse", "breaker", "sensor", "transducer", "valve",
		"filter element", "filter cartridge", "diaphragm", "membrane",
		"coupling", "shaft seal", "wear ring", "brush set",
	},
	TypeMeasurement: {
		"voltage", "current", "pressure", "temperature", "frequency",
		"flow rate", "rpm", "running hours",
	},
}

// patternDefs are the regex extractors for structured values. Each compiled
// pattern reports its full match as the entity text.
var patternDefs = []struct {
	Type       EntityType
	Pattern    string
	Confidence float64
}{
	// Negation phrases are captured verbatim as actions so downstream layers
	// never drop a "do not start" into a bare "start".
	{TypeAction, `(?i)\b(?:do not|don't|never)\s+[a-z]+(?:\s+up|\s+down|\s+on|\s+off)?`, 0.9},
	{TypeFaultCode, `(?i)\b(?:warn|alm|alarm|err|error|fault|spn|fmi|code)[-_ ]?\d{2,5}\b`, 0.95},
	{TypeFaultCode, `\b[EP][0-9]{3,5}\b`, 0.85},
	{TypeWorkOrder, `(?i)\bwo[-_ ]?\d{3,8}\b`, 0.95},
	{TypeDocumentID, `(?i)\b(?:doc|man|manual|cert|sop|dwg)[-_ ]?\d{2,8}\b`, 0.9},
	{TypePartNumber, `\b[0-9]{1,4}[A-Z]?-[0-9]{3,6}[A-Z]?\b`, 0.85},
	{TypeModel, `\b[0-9]{3,4}[A-Z]{1,2}\b`, 0.8},
	{TypeModel, `\b(?:C|QSB|QSM|QSC|D|TAMD|6BT|4JH)[0-9]{1,3}(?:\.[0-9])?\b`, 0.8},
	// Degree-symbol units end in non-word runes, so they carry no trailing \b.
	{TypeMeasurement, `(?i)\b\d+(?:[.,]\d+)?\s*(?:°\s?[cf]|℃|℉)`, 0.9},
	{TypeMeasurement, `(?i)\b\d+(?:[.,]\d+)?\s*(?:v(?:olts?)?|a(?:mps?)?|bar|psi|k?pa|hz|rpm|k?w|hp|litres?|liters?|gph|lph|h(?:ou)?rs?)\b`, 0.9},
	{TypeQuantity, `(?i)\b\d+\s*(?:pcs|pieces|units|sets|ea)\b`, 0.85},
	{TypeDateRef, `\b\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}\b`, 0.85},
	{TypeDateRef, `(?i)\b(?:today|tomorrow|yesterday|next week|last week|next month|overdue)\b`, 0.75},
	{TypeLocationOnBoard, `(?i)\b(?:box|locker|bin|shelf)\s+[0-9]+[a-z]?\b`, 0.85},
	{TypeOrg, `(?i)\b(?:class society|flag state|lloyd'?s register|dnv|abs|rina|mca|shipyard)\b`, 0.8},
	{TypePerson, `(?i)\b(?:chief engineer|second engineer|eto|captain|first officer|bosun|deckhand)\b`, 0.75},
}

const gazetteerConfidence = 0.9

type compiledPattern struct {
	entityType EntityType
	re         *regexp.Regexp
	confidence float64
	source     Source
}

func compilePatterns() []compiledPattern {
	compiled := make([]compiledPattern, 0, len(patternDefs)+len(gazetteers))

	for _, def := range patternDefs {
		compiled = append(compiled, compiledPattern{
			entityType: def.Type,
			re:         regexp.MustCompile(def.Pattern),
			confidence: def.Confidence,
			source:     SourceRegex,
		})
	}

	for entityType, phrases := range gazetteers {
		sorted := make([]string, len(phrases))
		copy(sorted, phrases)
		sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

		escaped := make([]string, len(sorted))
		for i, p := range sorted {
			escaped[i] = regexp.QuoteMeta(p)
		}
		alternation := `(?i)\b(?:` + strings.Join(escaped, "|") + `)\b`
		compiled = append(compiled, compiledPattern{
			entityType: entityType,
			re:         regexp.MustCompile(alternation),
			confidence: gazetteerConfidence,
			source:     SourceGazetteer,
		})
	}

	return compiled
}
