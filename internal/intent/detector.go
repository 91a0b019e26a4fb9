// Package intent classifies what a crew query wants done, independently of
// entity extraction. Patterns are verb-anchored and strict so a maritime
// noun phrase like "bilge pump" never triggers a mutating action.
package intent

import (
	"regexp"
	"strings"
)

// Detection is one matched action hypothesis for a query.
type Detection struct {
	Action      string  `json:"action"`
	Confidence  float64 `json:"confidence"`
	MatchedText string  `json:"matched_text"`
	Verb        string  `json:"verb"`
}

type actionPattern struct {
	re         *regexp.Regexp
	confidence float64
	verb       string
}

// Detector holds the compiled verb-pattern registry. Construct once, share
// freely; detection is pure.
type Detector struct {
	patterns map[string][]actionPattern
}

const (
	// DefaultMinConfidence gates BestAction.
	DefaultMinConfidence = 0.4

	leadingMatchBoost = 1.05
	longMatchBoost    = 1.03
	longMatchLen      = 20
)

// intentMap routes a detected action name onto the coarse intent lattice.
// Anything detected but unmapped defaults to "action".
var intentMap = map[string]string{
	"create_work_order":    "create",
	"log_fault":            "create",
	"order_part":           "create",
	"schedule_maintenance": "create",
	"update_record":        "update",
	"close_work_order":     "update",
	"assign_task":          "update",
	"view_record":          "view",
	"search":               "search",
}

// Every pattern requires an explicit leading verb followed by an object.
// Phrasal requests ("tell me bilge pump") and bare nouns stay unmatched.
var patternDefs = map[string][]struct {
	pattern    string
	confidence float64
	verb       string
}{
	"create_work_order": {
		{`(?i)\b(create|raise|open)\s+(?:a\s+|new\s+)?work\s?order\b`, 0.9, "create"},
		{`(?i)\b(add|log)\s+(?:a\s+)?(?:job|task)\b`, 0.8, "add"},
	},
	"log_fault": {
		{`(?i)\b(report|log|record)\s+(?:a\s+)?(?:fault|defect|failure|alarm)\b`, 0.85, "report"},
	},
	// "order" is also a noun ("work order"), so the generic verbs below are
	// anchored to the start of the query.
	"order_part": {
		{`(?i)^(order|requisition|purchase)\s+\S+`, 0.8, "order"},
	},
	"schedule_maintenance": {
		{`(?i)\b(schedule|plan)\s+(?:the\s+)?(?:maintenance|service|overhaul)\b`, 0.85, "schedule"},
	},
	"update_record": {
		{`(?i)^(update|edit|amend|modify)\s+\S+`, 0.8, "update"},
	},
	"close_work_order": {
		{`(?i)\b(close|complete|finish)\s+(?:the\s+)?(?:work\s?order|wo|job|task)\b`, 0.85, "close"},
		{`(?i)^(sign)\s+off\s+\S+`, 0.8, "sign"},
	},
	"assign_task": {
		{`(?i)^(assign|reassign)\s+\S+`, 0.75, "assign"},
	},
	"view_record": {
		{`(?i)^(show|view|display|list)\s+\S+`, 0.7, "show"},
	},
	"search": {
		{`(?i)^(find|search|locate|lookup)\s+\S+`, 0.7, "find"},
		{`(?i)^(look)\s+up\s+\S+`, 0.7, "look"},
	},
}

func NewDetector() *Detector {
	patterns := make(map[string][]actionPattern, len(patternDefs))
	for action, defs := range patternDefs {
		compiled := make([]actionPattern, 0, len(defs))
		for _, def := range defs {
			compiled = append(compiled, actionPattern{
				re:         regexp.MustCompile(def.pattern),
				confidence: def.confidence,
				verb:       def.verb,
			})
		}
		patterns[action] = compiled
	}
	return &Detector{patterns: patterns}
}

// DetectActions tests every registered pattern against the trimmed,
// lowercased query and returns all hits with boosted confidences.
func (d *Detector) DetectActions(query string) []Detection {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var detections []Detection
	for action, patterns := range d.patterns {
		for _, p := range patterns {
			loc := p.re.FindStringIndex(q)
			if loc == nil {
				continue
			}

			confidence := p.confidence
			if loc[0] == 0 {
				confidence = capConfidence(confidence * leadingMatchBoost)
			}
			if loc[1]-loc[0] > longMatchLen {
				confidence = capConfidence(confidence * longMatchBoost)
			}

			detections = append(detections, Detection{
				Action:      action,
				Confidence:  confidence,
				MatchedText: q[loc[0]:loc[1]],
				Verb:        p.verb,
			})
		}
	}
	return detections
}

// BestAction returns the highest-confidence detection at or above
// minConfidence, or nil when nothing qualifies.
func (d *Detector) BestAction(query string, minConfidence float64) *Detection {
	var best *Detection
	for _, det := range d.DetectActions(query) {
		det := det
		if det.Confidence < minConfidence {
			continue
		}
		if best == nil || det.Confidence > best.Confidence {
			best = &det
		}
	}
	return best
}

// DetectIntent maps the best action onto {create, update, view, action,
// search}. The boolean is false when no action cleared the threshold.
func (d *Detector) DetectIntent(query string) (string, bool) {
	best := d.BestAction(query, DefaultMinConfidence)
	if best == nil {
		return "", false
	}
	if intent, ok := intentMap[best.Action]; ok {
		return intent, true
	}
	return "action", true
}

func capConfidence(c float64) float64 {
	if c > 1.0 {
		return 1.0
	}
	return c
}
