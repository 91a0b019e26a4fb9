package extraction

import (
	"regexp"
	"strings"
	"unicode"
)

// CoverageDecision is the routing verdict for one query: whether the regex
// pass explained enough of the text to skip the AI fallback. Pure
// computation, never persisted.
type CoverageDecision struct {
	NeedsAI        bool    `json:"needs_ai"`
	Coverage       float64 `json:"coverage"`
	UncoveredSpans []Span  `json:"uncovered_spans"`
	Reason         string  `json:"reason"`
	UnknownRatio   float64 `json:"unknown_ratio"`
	HasNegation    bool    `json:"has_negation"`
	HasInstruction bool    `json:"has_instruction"`
	HasConflicts   bool    `json:"has_conflicts"`
}

const (
	coverageThreshold = 0.85

	unknownRatioThreshold = 0.10

	// Short queries (1-3 tokens) leave little room for error, so they use a
	// stricter bar.
	shortTextMaxTokens = 3
	shortTextThreshold = 0.90

	minUncoveredRunLen    = 3
	uncoveredMergeGap     = 5
	measurementConflictCh = 50
)

var (
	negationRe    = regexp.MustCompile(`(?i)\b(?:do not|don'?t|never|avoid|without|unless|no\s+\w+ing)\b`)
	instructionRe = regexp.MustCompile(`(?i)\b(?:please|check|refer to|see|ensure|make sure|verify|confirm)\b`)
)

// EvaluateCoverage decides whether the extracted entity set is trustworthy
// enough to skip AI escalation. Missing or malformed spans are treated as
// covering nothing.
func EvaluateCoverage(ct CleanedText, entities []Entity) CoverageDecision {
	d := CoverageDecision{}

	d.Coverage = computeCoverage(ct, entities)
	d.UncoveredSpans = uncoveredSpans(ct, entities)
	d.UnknownRatio = unknownRatio(ct, entities)
	d.HasNegation = negationRe.MatchString(ct.Normalized)
	d.HasInstruction = instructionRe.MatchString(ct.Normalized)
	d.HasConflicts = hasConflicts(entities)

	switch {
	case d.Coverage < coverageThreshold:
		d.NeedsAI = true
		d.Reason = "coverage below threshold"
	case d.UnknownRatio >= unknownRatioThreshold:
		d.NeedsAI = true
		d.Reason = "too many unknown important tokens"
	case d.HasNegation || d.HasInstruction:
		d.NeedsAI = true
		d.Reason = "negation or instruction language present"
	case d.HasConflicts:
		d.NeedsAI = true
		d.Reason = "conflicting entities detected"
	case len(ct.Tokens) >= 1 && len(ct.Tokens) <= shortTextMaxTokens && d.Coverage < shortTextThreshold:
		d.NeedsAI = true
		d.Reason = "short query below strict threshold"
	default:
		d.NeedsAI = false
		d.Reason = "regex coverage sufficient"
	}

	return d
}

// computeCoverage returns the fraction of tokens whose character span is
// more than half covered by some entity span. An empty token list is
// vacuously fully covered.
func computeCoverage(ct CleanedText, entities []Entity) float64 {
	if len(ct.Tokens) == 0 {
		return 1.0
	}

	covered := 0
	for i := range ct.Tokens {
		if i >= len(ct.TokenSpans) {
			break
		}
		span := ct.TokenSpans[i]
		if span.Len() == 0 {
			continue
		}
		for _, e := range entities {
			if e.Span.Overlap(span)*2 > span.Len() {
				covered++
				break
			}
		}
	}

	return float64(covered) / float64(len(ct.Tokens))
}

// uncoveredSpans returns the contiguous runs of characters not explained by
// any entity, trimmed of whitespace, dropping runs shorter than three
// characters and merging neighbours separated by at most five.
func uncoveredSpans(ct CleanedText, entities []Entity) []Span {
	n := len(ct.Normalized)
	if n == 0 {
		return nil
	}

	mask := make([]bool, n)
	for _, e := range entities {
		start, end := e.Span.Start, e.Span.End
		if start < 0 {
			start = 0
		}
		if end > n {
			end = n
		}
		for i := start; i < end; i++ {
			mask[i] = true
		}
	}

	var runs []Span
	runStart := -1
	for i := 0; i <= n; i++ {
		uncov := i < n && !mask[i]
		if uncov && runStart < 0 {
			runStart = i
		}
		if !uncov && runStart >= 0 {
			if trimmed, ok := trimSpan(ct.Normalized, Span{Start: runStart, End: i}); ok {
				runs = append(runs, trimmed)
			}
			runStart = -1
		}
	}

	return mergeSpans(runs, uncoveredMergeGap)
}

func trimSpan(text string, s Span) (Span, bool) {
	for s.Start < s.End && unicode.IsSpace(rune(text[s.Start])) {
		s.Start++
	}
	for s.End > s.Start && unicode.IsSpace(rune(text[s.End-1])) {
		s.End--
	}
	if s.Len() < minUncoveredRunLen {
		return Span{}, false
	}
	return s, true
}

func mergeSpans(spans []Span, maxGap int) []Span {
	if len(spans) < 2 {
		return spans
	}
	merged := []Span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.Start-last.End <= maxGap {
			last.End = s.End
		} else {
			merged = append(merged, s)
		}
	}
	return merged
}

// unknownRatio measures how many "important" tokens (capitalized, numeric,
// long, or hyphenated/underscored) are not explained by any extracted
// entity text.
func unknownRatio(ct CleanedText, entities []Entity) float64 {
	important := 0
	unknown := 0

	for _, tok := range ct.Tokens {
		if !isImportantToken(tok) {
			continue
		}
		important++
		if !coveredByEntityText(tok, entities) {
			unknown++
		}
	}

	if important == 0 {
		return 0.0
	}
	return float64(unknown) / float64(important)
}

func isImportantToken(tok string) bool {
	if len(tok) >= 6 {
		return true
	}
	if strings.ContainsAny(tok, "-_") {
		return true
	}
	for _, r := range tok {
		if unicode.IsDigit(r) {
			return true
		}
	}
	first := []rune(tok)
	return len(first) > 0 && unicode.IsUpper(first[0])
}

func coveredByEntityText(tok string, entities []Entity) bool {
	lower := strings.ToLower(tok)
	for _, e := range entities {
		if strings.Contains(strings.ToLower(e.RawValue), lower) {
			return true
		}
	}
	return false
}

// hasConflicts flags (a) nearby measurement entities with different literal
// text and (b) span overlaps across different entity types.
func hasConflicts(entities []Entity) bool {
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			a, b := entities[i], entities[j]

			if a.Type == TypeMeasurement && b.Type == TypeMeasurement {
				dist := a.Span.Start - b.Span.Start
				if dist < 0 {
					dist = -dist
				}
				if dist < measurementConflictCh && a.RawValue != b.RawValue {
					return true
				}
			}

			if a.Type != b.Type && a.Span.Overlap(b.Span) > 0 {
				return true
			}
		}
	}
	return false
}
