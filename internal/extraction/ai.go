package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Completer is the LLM escalation dependency: one JSON-mode chat completion
// with deterministic decoding. Satisfied by internal/llm.Client.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ErrExtractionDegraded reports that the AI pass failed and an empty schema
// was substituted. Callers that only need the schema can ignore it; the
// orchestrator logs it and moves on.
var ErrExtractionDegraded = errors.New("ai extraction degraded to empty result")

const aiSystemPrompt = `You are a maritime planned-maintenance entity extractor for yacht crew queries.

Extract ONLY entities explicitly mentioned in the text. Never infer a brand,
location, or equipment from context. Keep compound terms intact ("battery
bank" stays "battery bank", never "battery" + "bank").

Return a single JSON object with exactly this shape:
{"entities": {"equipment": [], "part": [], "part_number": [], "fault_code": [],
"measurement": [], "manufacturer": [], "model": [], "location_on_board": [],
"document_id": [], "work_order": [], "symptom": [], "action": [],
"material": [], "quantity": [], "date_ref": [], "person": [], "org": [],
"system": []}}

Rules:
- Every key must be present, with an empty list when nothing was found.
- Normalize measurements to "<value> <unit>" with a dot decimal separator:
  "27,6V" -> "27.6 V", "95℃" -> "95 °C".
- Preserve negation phrases verbatim as action entities ("do not start").
- Uppercase fault codes ("warn-335" -> "WARN-335").
- Lowercase location_on_board values.
- No commentary, no keys beyond the schema.`

// AIExtractor is the escalation path used when regex coverage is
// insufficient. Whatever happens downstream, Extract always hands back a
// well-formed Result.
type AIExtractor struct {
	completer Completer
	timeout   time.Duration
	logger    *zap.Logger
}

func NewAIExtractor(completer Completer, timeoutSec int, logger *zap.Logger) *AIExtractor {
	if timeoutSec <= 0 {
		timeoutSec = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AIExtractor{
		completer: completer,
		timeout:   time.Duration(timeoutSec) * time.Second,
		logger:    logger,
	}
}

// Extract runs the LLM extraction and collapses every failure mode into the
// empty well-formed schema. The caller never sees an error or a malformed
// shape from this method.
func (a *AIExtractor) Extract(ctx context.Context, text string, uncovered []Span) Result {
	result, err := a.ExtractWithStatus(ctx, text, uncovered)
	if err != nil {
		a.logger.Warn("ai extraction failed, returning empty schema", zap.Error(err))
	}
	return result
}

// ExtractWithStatus behaves like Extract but additionally reports whether
// the returned schema is a degraded substitute rather than a real answer.
func (a *AIExtractor) ExtractWithStatus(ctx context.Context, text string, uncovered []Span) (Result, error) {
	if a.completer == nil {
		return EmptyResult(), fmt.Errorf("%w: no completer configured", ErrExtractionDegraded)
	}
	if strings.TrimSpace(text) == "" {
		return EmptyResult(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	userPrompt := buildUserPrompt(text, uncovered)

	raw, err := a.completer.CompleteJSON(ctx, aiSystemPrompt, userPrompt)
	if err != nil {
		return EmptyResult(), fmt.Errorf("%w: %v", ErrExtractionDegraded, err)
	}

	result, err := parseAIResponse(raw)
	if err != nil {
		return EmptyResult(), fmt.Errorf("%w: %v", ErrExtractionDegraded, err)
	}
	return result, nil
}

func buildUserPrompt(text string, uncovered []Span) string {
	var b strings.Builder
	b.WriteString("Query:\n")
	b.WriteString(text)

	if len(uncovered) > 0 {
		b.WriteString("\n\nUnexplained segments:")
		for _, s := range uncovered {
			if s.Start < 0 || s.End > len(text) || s.Start >= s.End {
				continue
			}
			b.WriteString("\n- ")
			b.WriteString(text[s.Start:s.End])
		}
	}
	return b.String()
}

// parseAIResponse accepts either the documented {"entities": {...}} wrapper
// or a bare type->values object, validates types against the closed enum,
// and re-normalizes every value so a sloppy model answer still meets the
// output contract.
func parseAIResponse(raw string) (Result, error) {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &outer); err != nil {
		return Result{}, fmt.Errorf("response is not a JSON object: %w", err)
	}

	payload := []byte(raw)
	if inner, ok := outer["entities"]; ok {
		payload = inner
	}

	var entityMap map[string][]interface{}
	if err := json.Unmarshal(payload, &entityMap); err != nil {
		return Result{}, fmt.Errorf("entities is not an object of lists: %w", err)
	}

	result := EmptyResult()
	for key, values := range entityMap {
		t := EntityType(strings.ToLower(strings.TrimSpace(key)))
		if !IsValidType(t) {
			continue
		}
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				continue
			}
			canonical := CanonicalValue(t, s)
			if t == TypeAction {
				canonical = strings.ToLower(strings.TrimSpace(s))
			}
			result.Add(t, canonical)
		}
	}

	result.Metadata.SourceMix.AI = result.Count()
	return result, nil
}
