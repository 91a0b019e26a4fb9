package extraction

import (
	"sort"

	"go.uber.org/zap"
)

// Extractor runs the regex and gazetteer pass over normalized text. Pattern
// tables are compiled once at construction; extraction itself is pure and
// safe for concurrent use.
type Extractor struct {
	patterns []compiledPattern
	logger   *zap.Logger
}

func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		patterns: compilePatterns(),
		logger:   logger,
	}
}

// Extract finds all entity mentions in the cleaned text. When two matches of
// the same type overlap, only the longer one survives; overlaps across
// different types are kept so the coverage controller can flag them as
// conflicts.
func (e *Extractor) Extract(ct CleanedText) []Entity {
	if ct.Normalized == "" {
		return nil
	}

	var entities []Entity
	for _, p := range e.patterns {
		for _, loc := range p.re.FindAllStringIndex(ct.Normalized, -1) {
			entities = append(entities, Entity{
				Type:       p.entityType,
				RawValue:   ct.Normalized[loc[0]:loc[1]],
				Span:       Span{Start: loc[0], End: loc[1]},
				Confidence: p.confidence,
				Source:     p.source,
			})
		}
	}

	entities = dropShadowedMatches(entities)

	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Span.Start != entities[j].Span.Start {
			return entities[i].Span.Start < entities[j].Span.Start
		}
		return entities[i].Span.End > entities[j].Span.End
	})

	e.logger.Debug("regex extraction complete",
		zap.Int("entities", len(entities)),
		zap.Int("tokens", len(ct.Tokens)),
	)

	return entities
}

// dropShadowedMatches removes same-type matches fully contained in a longer
// match of that type (e.g. "engine" inside "main engine").
func dropShadowedMatches(entities []Entity) []Entity {
	kept := make([]Entity, 0, len(entities))
	for i, e := range entities {
		shadowed := false
		for j, other := range entities {
			if i == j || e.Type != other.Type {
				continue
			}
			contains := other.Span.Start <= e.Span.Start && other.Span.End >= e.Span.End
			longer := other.Span.Len() > e.Span.Len()
			if contains && longer {
				shadowed = true
				break
			}
		}
		if !shadowed {
			kept = append(kept, e)
		}
	}
	return kept
}
