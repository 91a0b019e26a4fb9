// Package pipeline composes the query path end to end: normalize, extract,
// decide on AI escalation, canonicalize, detect intent, run the wave search,
// and decorate results with microactions and related equipment.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yachtops/pms-backend/internal/actions"
	"github.com/yachtops/pms-backend/internal/auth"
	"github.com/yachtops/pms-backend/internal/extraction"
	"github.com/yachtops/pms-backend/internal/intent"
	"github.com/yachtops/pms-backend/internal/kg/neo4j"
	"github.com/yachtops/pms-backend/internal/metrics"
	"github.com/yachtops/pms-backend/internal/search"
	"github.com/yachtops/pms-backend/pkg/utils"
)

// Lane names recorded in probe traces and responses.
const (
	LaneNoLLM    = "NO_LLM"
	LaneAIAssist = "AI_ASSIST"
)

// GraphSuggester provides related-equipment suggestions; nil disables them.
type GraphSuggester interface {
	RelatedEquipment(ctx context.Context, yachtID string, names []string, limit int) ([]neo4j.RelatedEquipment, error)
}

// ResponseCache stores whole search responses per yacht; nil disables
// caching.
type ResponseCache interface {
	GetSearch(ctx context.Context, yachtID, queryHash string, response interface{}) (bool, error)
	SetSearch(ctx context.Context, yachtID, queryHash string, response interface{}, ttl time.Duration) error
}

// ResultItem is one fused search hit with its allowed follow-up actions.
type ResultItem struct {
	Table        string                `json:"table"`
	ID           string                `json:"id"`
	Label        string                `json:"label"`
	Snippet      string                `json:"snippet,omitempty"`
	Score        float64               `json:"score"`
	MatchMode    string                `json:"match_mode"`
	Microactions []actions.Microaction `json:"microactions"`
}

// IntentInfo is the detected intent attached to the response.
type IntentInfo struct {
	Intent     string  `json:"intent"`
	Action     string  `json:"action,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Response is the full answer for one search query.
type Response struct {
	QueryID    string                   `json:"query_id"`
	Lane       string                   `json:"lane"`
	Query      string                   `json:"query"`
	Intent     IntentInfo               `json:"intent"`
	Extraction extraction.Result        `json:"extraction"`
	Results    []ResultItem             `json:"results"`
	Related    []neo4j.RelatedEquipment `json:"related_equipment,omitempty"`
	Degraded   bool                     `json:"degraded,omitempty"`
	ElapsedMS  int64                    `json:"elapsed_ms"`
}

// StageFunc receives incremental pipeline stages, used by the websocket
// transport. Stage names: extraction, intent, results.
type StageFunc func(stage string, payload interface{})

type Orchestrator struct {
	extractor *extraction.Extractor
	ai        *extraction.AIExtractor
	canon     *extraction.Canonicalizer
	intents   *intent.Detector
	router    *search.Router
	catalog   *actions.Catalog
	graph     GraphSuggester
	cache     ResponseCache
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// Config carries the optional collaborators. Router and the extraction
// stages are mandatory.
type Config struct {
	Extractor *extraction.Extractor
	AI        *extraction.AIExtractor
	Canon     *extraction.Canonicalizer
	Intents   *intent.Detector
	Router    *search.Router
	Catalog   *actions.Catalog
	Graph     GraphSuggester
	Cache     ResponseCache
	CacheTTL  time.Duration
}

func NewOrchestrator(cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Minute
	}
	return &Orchestrator{
		extractor: cfg.Extractor,
		ai:        cfg.AI,
		canon:     cfg.Canon,
		intents:   cfg.Intents,
		router:    cfg.Router,
		catalog:   cfg.Catalog,
		graph:     cfg.Graph,
		cache:     cfg.Cache,
		cacheTTL:  cfg.CacheTTL,
		logger:    logger,
	}
}

// Search runs the whole pipeline for one query.
func (o *Orchestrator) Search(ctx context.Context, identity auth.Identity, query string) (*Response, error) {
	return o.run(ctx, identity, query, nil)
}

// SearchStaged runs the pipeline and streams each stage as it completes.
func (o *Orchestrator) SearchStaged(ctx context.Context, identity auth.Identity, query string, emit StageFunc) (*Response, error) {
	return o.run(ctx, identity, query, emit)
}

func (o *Orchestrator) run(ctx context.Context, identity auth.Identity, query string, emit StageFunc) (*Response, error) {
	if identity.YachtID == "" {
		return nil, search.ErrYachtScopeMissing
	}

	start := time.Now()
	queryID := uuid.NewString()

	// Cache key covers the role: microactions differ per role, so crew and
	// captain must not share entries.
	cacheHash := utils.HashString(query + "|" + string(identity.Role))
	if o.cache != nil && emit == nil {
		var cached Response
		if hit, err := o.cache.GetSearch(ctx, identity.YachtID, cacheHash, &cached); err == nil && hit {
			metrics.CacheHits.WithLabelValues("search").Inc()
			cached.QueryID = queryID
			return &cached, nil
		}
		metrics.CacheMisses.WithLabelValues("search").Inc()
	}

	ct := extraction.Normalize(query)
	regexEntities := o.extractor.Extract(ct)
	decision := extraction.EvaluateCoverage(ct, regexEntities)

	metrics.ExtractionCoverage.Observe(decision.Coverage)

	lane := LaneNoLLM
	degraded := false
	merged := regexEntities

	if decision.NeedsAI {
		lane = LaneAIAssist
		metrics.AIEscalations.WithLabelValues(decision.Reason).Inc()
		if o.ai != nil {
			aiResult, err := o.ai.ExtractWithStatus(ctx, ct.Normalized, decision.UncoveredSpans)
			if err != nil {
				if !errors.Is(err, extraction.ErrExtractionDegraded) {
					return nil, err
				}
				degraded = true
			}
			merged = append(merged, resultEntities(aiResult)...)
		} else {
			degraded = true
		}
	}

	merged = o.canon.Merge(merged)
	result := o.canon.BuildResult(merged, decision)

	o.logger.Info("extraction complete",
		zap.String("query_id", queryID),
		zap.String("lane", lane),
		zap.Float64("coverage", decision.Coverage),
		zap.Int("entities", result.Count()),
	)
	if emit != nil {
		emit("extraction", result)
	}

	// Queries with no explicit verb stay plain searches.
	info := IntentInfo{Intent: "search"}
	if o.intents != nil {
		if detected, ok := o.intents.DetectIntent(query); ok {
			info.Intent = detected
		}
		if best := o.intents.BestAction(query, intent.DefaultMinConfidence); best != nil {
			info.Action = best.Action
			info.Confidence = best.Confidence
		}
	}
	if emit != nil {
		emit("intent", info)
	}

	terms := search.BuildTerms(merged)
	ranked, err := o.router.Execute(ctx, queryID, identity.YachtID, lane, ct.Normalized, terms)
	if err != nil {
		metrics.SearchTotal.WithLabelValues(lane, "error").Inc()
		return nil, err
	}

	items := make([]ResultItem, 0, len(ranked))
	for _, r := range ranked {
		item := ResultItem{
			Table:     r.Row.Table,
			ID:        r.Row.ID,
			Label:     r.Row.Label,
			Snippet:   r.Row.Snippet,
			Score:     r.FinalScore,
			MatchMode: string(r.BestMode),
		}
		if o.catalog != nil {
			item.Microactions = o.catalog.ForResult(r.Row.Table, identity.Role)
		}
		items = append(items, item)
	}

	resp := &Response{
		QueryID:    queryID,
		Lane:       lane,
		Query:      query,
		Intent:     info,
		Extraction: result,
		Results:    items,
		Degraded:   degraded,
		ElapsedMS:  time.Since(start).Milliseconds(),
	}

	if o.graph != nil {
		if names := result.Entities[extraction.TypeEquipment]; len(names) > 0 {
			related, err := o.graph.RelatedEquipment(ctx, identity.YachtID, names, 5)
			if err != nil {
				o.logger.Warn("related equipment lookup failed",
					zap.String("query_id", queryID),
					zap.Error(err),
				)
			} else {
				resp.Related = related
			}
		}
	}

	if emit != nil {
		emit("results", resp)
	}

	if o.cache != nil && !degraded {
		if err := o.cache.SetSearch(ctx, identity.YachtID, cacheHash, resp, o.cacheTTL); err != nil {
			o.logger.Warn("failed to cache search response", zap.Error(err))
		}
	}

	metrics.SearchDuration.WithLabelValues(lane).Observe(time.Since(start).Seconds())
	metrics.SearchTotal.WithLabelValues(lane, "success").Inc()

	return resp, nil
}

// resultEntities lowers an AI Result back to entity mentions so it can be
// merged with the regex pass. AI values carry no spans.
func resultEntities(r extraction.Result) []extraction.Entity {
	var entities []extraction.Entity
	for t, values := range r.Entities {
		for _, v := range values {
			entities = append(entities, extraction.Entity{
				Type:           t,
				RawValue:       v,
				CanonicalValue: extraction.CanonicalValue(t, v),
				Confidence:     0.8,
				Source:         extraction.SourceAI,
			})
		}
	}
	return entities
}
