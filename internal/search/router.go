package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yachtops/pms-backend/internal/extraction"
	"github.com/yachtops/pms-backend/internal/metrics"
)

// ErrYachtScopeMissing is the one fatal routing error: a statement that
// would run against a tenant table without a yacht_id filter is refused
// outright instead of degraded.
var ErrYachtScopeMissing = errors.New("refusing statement without yacht scope")

// Store executes one tenant-scoped statement. Implemented by the Postgres
// tenant store.
type Store interface {
	ExecuteStatement(ctx context.Context, st Statement) ([]Row, error)
}

// VectorSearcher is the wave-3 embedding backend (Milvus), already
// tenant-filtered by the implementation.
type VectorSearcher interface {
	Search(ctx context.Context, yachtID, query string, topK int) ([]Row, error)
}

// TermGroup is one AND-side constraint: the variants inside are OR'd, and
// every group must hold for a row to be admissible.
type TermGroup struct {
	EntityTypes []extraction.EntityType
	Variants    []Variant
	Label       string
}

// GroupTerms turns terms into conjunction groups. Locations are the one
// exception: "inventory in box 2a and 2b" means the union of locations, so
// all location_on_board terms collapse into a single OR'd group instead of
// stacking AND constraints.
func GroupTerms(terms []Term) []TermGroup {
	var groups []TermGroup
	var locGroup *TermGroup

	for _, t := range terms {
		if t.EntityType == extraction.TypeLocationOnBoard {
			if locGroup == nil {
				groups = append(groups, TermGroup{
					EntityTypes: []extraction.EntityType{t.EntityType},
					Label:       t.Value,
				})
				locGroup = &groups[len(groups)-1]
			} else {
				locGroup.Label += " | " + t.Value
			}
			locGroup.Variants = append(locGroup.Variants, t.Variants...)
			continue
		}

		groups = append(groups, TermGroup{
			EntityTypes: []extraction.EntityType{t.EntityType},
			Variants:    t.Variants,
			Label:       t.Value,
		})
	}
	return groups
}

// Statement is one parameterized probe against a tenant table. Args[0] is
// always the yacht_id.
type Statement struct {
	Table         string
	SQL           string
	Args          []interface{}
	MatchMode     MatchMode
	Wave          int
	EntityTypes   []string
	Terms         []string
	Columns       []string
	YachtEnforced bool
}

type tableSpec struct {
	name          string
	labelColumn   string
	snippetColumn string
	// columns lists the ILIKE/TRIGRAM-searchable columns per entity type.
	columns map[extraction.EntityType][]string
	// exactColumns restricts the equality wave to indexed identifier columns.
	exactColumns map[extraction.EntityType][]string
}

var tenantTables = []tableSpec{
	{
		name:          "pms_parts",
		labelColumn:   "name",
		snippetColumn: "description",
		columns: map[extraction.EntityType][]string{
			extraction.TypePart:            {"name", "description"},
			extraction.TypePartNumber:      {"part_number"},
			extraction.TypeEquipment:       {"name", "description"},
			extraction.TypeManufacturer:    {"manufacturer"},
			extraction.TypeModel:           {"model"},
			extraction.TypeMaterial:        {"name", "description"},
			extraction.TypeLocationOnBoard: {"location"},
			extraction.TypeSystem:          {"description"},
		},
		exactColumns: map[extraction.EntityType][]string{
			extraction.TypePartNumber: {"part_number"},
			extraction.TypePart:       {"name"},
		},
	},
	{
		name:          "pms_equipment",
		labelColumn:   "name",
		snippetColumn: "description",
		columns: map[extraction.EntityType][]string{
			extraction.TypeEquipment:       {"name", "description"},
			extraction.TypeManufacturer:    {"manufacturer"},
			extraction.TypeModel:           {"model"},
			extraction.TypeLocationOnBoard: {"location"},
			extraction.TypeSystem:          {"system", "name"},
			extraction.TypePart:            {"description"},
		},
		exactColumns: map[extraction.EntityType][]string{
			extraction.TypeEquipment: {"name"},
			extraction.TypeModel:     {"model"},
		},
	},
	{
		name:          "pms_faults",
		labelColumn:   "title",
		snippetColumn: "description",
		columns: map[extraction.EntityType][]string{
			extraction.TypeFaultCode: {"code"},
			extraction.TypeEquipment: {"equipment_name", "description"},
			extraction.TypeSymptom:   {"title", "description"},
			extraction.TypeSystem:    {"description"},
		},
		exactColumns: map[extraction.EntityType][]string{
			extraction.TypeFaultCode: {"code"},
		},
	},
	{
		name:          "pms_work_orders",
		labelColumn:   "title",
		snippetColumn: "description",
		columns: map[extraction.EntityType][]string{
			extraction.TypeWorkOrder:       {"number"},
			extraction.TypeEquipment:       {"equipment_name", "title", "description"},
			extraction.TypeSymptom:         {"title", "description"},
			extraction.TypePart:            {"description"},
			extraction.TypeFaultCode:       {"title", "description"},
			extraction.TypeLocationOnBoard: {"description"},
			extraction.TypeSystem:          {"description"},
		},
		exactColumns: map[extraction.EntityType][]string{
			extraction.TypeWorkOrder: {"number"},
		},
	},
	{
		name:          "search_index",
		labelColumn:   "title",
		snippetColumn: "content",
		columns: func() map[extraction.EntityType][]string {
			m := make(map[extraction.EntityType][]string)
			for t := range searchableTypes {
				m[t] = []string{"title", "content"}
			}
			m[extraction.TypeDocumentID] = []string{"doc_id", "title"}
			return m
		}(),
		exactColumns: map[extraction.EntityType][]string{
			extraction.TypeDocumentID: {"doc_id"},
		},
	},
}

// waveBaseScores feed the probe trace: higher specificity, higher base.
var waveBaseScores = map[MatchMode]float64{
	MatchExact:   1.0,
	MatchILike:   0.8,
	MatchTrigram: 0.6,
	MatchVector:  0.4,
}

// BuildStatement assembles one conjunction-correct probe for a table and
// match mode. It returns ok=false when the table cannot express every
// group: probing it anyway would return rows that satisfy only some terms.
func BuildStatement(spec tableSpec, mode MatchMode, wave int, yachtID string, groups []TermGroup, limit int, trigramThreshold float64) (Statement, bool) {
	if len(groups) == 0 {
		return Statement{}, false
	}

	st := Statement{
		Table:         spec.name,
		MatchMode:     mode,
		Wave:          wave,
		YachtEnforced: true,
		Args:          []interface{}{yachtID},
	}

	var where []string
	seenCols := make(map[string]bool)

	for _, g := range groups {
		var preds []string
		for _, et := range g.EntityTypes {
			cols := spec.columns[et]
			if mode == MatchExact {
				cols = spec.exactColumns[et]
			}
			for _, col := range cols {
				if !seenCols[col] {
					seenCols[col] = true
					st.Columns = append(st.Columns, col)
				}
				for _, v := range g.Variants {
					switch mode {
					case MatchExact:
						st.Args = append(st.Args, v.Value)
						preds = append(preds, fmt.Sprintf("lower(%s) = lower($%d)", col, len(st.Args)))
					case MatchILike:
						st.Args = append(st.Args, "%"+v.Value+"%")
						preds = append(preds, fmt.Sprintf("%s ILIKE $%d", col, len(st.Args)))
					case MatchTrigram:
						st.Args = append(st.Args, v.Value)
						preds = append(preds, fmt.Sprintf("similarity(%s, $%d) > %.2f", col, len(st.Args), trigramThreshold))
					}
				}
			}
			st.EntityTypes = append(st.EntityTypes, string(et))
		}
		if len(preds) == 0 {
			return Statement{}, false
		}
		where = append(where, "("+strings.Join(preds, " OR ")+")")
		st.Terms = append(st.Terms, g.Label)
	}

	st.SQL = fmt.Sprintf(
		"SELECT id::text, %s, %s FROM %s WHERE yacht_id = $1 AND %s ORDER BY id LIMIT %d",
		spec.labelColumn, spec.snippetColumn, spec.name,
		strings.Join(where, " AND "), limit,
	)
	return st, true
}

// Config tunes the wave executor.
type Config struct {
	TrigramThreshold float64
	MaxResults       int
	WaveTimeout      time.Duration
	VectorTopK       int
}

func (c Config) withDefaults() Config {
	if c.TrigramThreshold <= 0 {
		c.TrigramThreshold = 0.2
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 25
	}
	if c.WaveTimeout <= 0 {
		c.WaveTimeout = 5 * time.Second
	}
	if c.VectorTopK <= 0 {
		c.VectorTopK = 10
	}
	return c
}

// Router executes the wave sequence for one query, always tenant-scoped,
// degrading on wave failures and refusing only on a missing yacht filter.
type Router struct {
	store  Store
	vector VectorSearcher
	tracer *Tracer
	cfg    Config
	logger *zap.Logger
}

func NewRouter(store Store, vector VectorSearcher, tracer *Tracer, cfg Config, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		store:  store,
		vector: vector,
		tracer: tracer,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Execute runs waves EXACT -> ILIKE -> TRIGRAM, then VECTOR as a last
// resort, and fuses the survivors. Wave and probe failures degrade; the
// security invariant does not.
func (r *Router) Execute(ctx context.Context, queryID, yachtID, lane, rawQuery string, terms []Term) ([]RankedResult, error) {
	if yachtID == "" {
		return nil, ErrYachtScopeMissing
	}

	groups := GroupTerms(terms)
	var candidates []Candidate
	distinct := make(map[string]bool)

	sqlWaves := []struct {
		mode MatchMode
		wave int
	}{
		{MatchExact, 0},
		{MatchILike, 1},
		{MatchTrigram, 2},
	}

	for _, w := range sqlWaves {
		if len(distinct) >= r.cfg.MaxResults {
			break
		}
		for _, spec := range tenantTables {
			st, ok := BuildStatement(spec, w.mode, w.wave, yachtID, groups, r.cfg.MaxResults, r.cfg.TrigramThreshold)
			if !ok {
				continue
			}
			rows, err := r.runProbe(ctx, queryID, yachtID, lane, st, groups)
			if err != nil {
				if errors.Is(err, ErrYachtScopeMissing) {
					return nil, err
				}
				continue
			}
			for i, row := range rows {
				candidates = append(candidates, Candidate{
					Row:           row,
					MatchMode:     w.mode,
					Wave:          w.wave,
					Rank:          i,
					VariantWeight: groupWeight(groups),
				})
				distinct[row.Table+"\x00"+row.ID] = true
			}
		}
	}

	// VECTOR is the last resort: only when the structured waves came back
	// empty, or when there were no structured terms at all.
	if r.vector != nil && (len(distinct) == 0 || len(groups) == 0) {
		candidates = append(candidates, r.runVectorWave(ctx, queryID, yachtID, lane, rawQuery, groups)...)
	}

	return FuseCandidates(candidates), nil
}

func (r *Router) runProbe(ctx context.Context, queryID, yachtID, lane string, st Statement, groups []TermGroup) ([]Row, error) {
	if !st.YachtEnforced || len(st.Args) == 0 || st.Args[0] != yachtID || !strings.Contains(st.SQL, "yacht_id = $1") {
		r.trace(queryID, yachtID, lane, st, groupWeight(groups), 0, 0, ErrYachtScopeMissing.Error())
		return nil, ErrYachtScopeMissing
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.WaveTimeout)
	defer cancel()

	start := time.Now()
	rows, err := r.store.ExecuteStatement(probeCtx, st)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		r.trace(queryID, yachtID, lane, st, groupWeight(groups), 0, elapsed, err.Error())
		r.logger.Warn("wave probe failed",
			zap.String("query_id", queryID),
			zap.String("table", st.Table),
			zap.String("match_mode", string(st.MatchMode)),
			zap.Error(err),
		)
		return nil, err
	}

	for i := range rows {
		rows[i].Table = st.Table
	}
	metrics.WaveRows.WithLabelValues(string(st.MatchMode)).Observe(float64(len(rows)))
	r.trace(queryID, yachtID, lane, st, groupWeight(groups), len(rows), elapsed, "")
	return rows, nil
}

func (r *Router) runVectorWave(ctx context.Context, queryID, yachtID, lane, rawQuery string, groups []TermGroup) []Candidate {
	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.WaveTimeout)
	defer cancel()

	st := Statement{
		Table:         "search_index",
		MatchMode:     MatchVector,
		Wave:          3,
		YachtEnforced: true,
		Args:          []interface{}{yachtID},
		SQL:           "VECTOR yacht_id = $1 cosine top-k",
		Terms:         []string{rawQuery},
	}

	start := time.Now()
	rows, err := r.vector.Search(probeCtx, yachtID, rawQuery, r.cfg.VectorTopK)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		r.trace(queryID, yachtID, lane, st, 1.0, 0, elapsed, err.Error())
		r.logger.Warn("vector wave failed", zap.String("query_id", queryID), zap.Error(err))
		return nil
	}
	metrics.WaveRows.WithLabelValues(string(MatchVector)).Observe(float64(len(rows)))
	r.trace(queryID, yachtID, lane, st, 1.0, len(rows), elapsed, "")

	// Embedding hits carry no AND guarantee, so multi-term conjunction is
	// re-checked against the row text before admission.
	var candidates []Candidate
	rank := 0
	for _, row := range rows {
		if len(groups) > 1 && !AdmissibleText(row, groups) {
			continue
		}
		candidates = append(candidates, Candidate{
			Row:           row,
			MatchMode:     MatchVector,
			Wave:          3,
			Rank:          rank,
			VariantWeight: 1.0,
		})
		rank++
	}
	return candidates
}

// AdmissibleText reports whether the row text satisfies every group: for
// each AND-side group, at least one variant must appear in the row's label
// or snippet.
func AdmissibleText(row Row, groups []TermGroup) bool {
	haystack := strings.ToLower(row.Label + " " + row.Snippet)
	for _, g := range groups {
		satisfied := false
		for _, v := range g.Variants {
			if strings.Contains(haystack, strings.ToLower(v.Value)) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}

// groupWeight averages each group's best variant multiplier; a statement
// mixes variants, so the trace carries the blended trust.
func groupWeight(groups []TermGroup) float64 {
	if len(groups) == 0 {
		return 1.0
	}
	total := 0.0
	for _, g := range groups {
		best := 1.0
		for _, v := range g.Variants {
			if v.Weight > best {
				best = v.Weight
			}
		}
		total += best
	}
	return total / float64(len(groups))
}

func (r *Router) trace(queryID, yachtID, lane string, st Statement, weight float64, rows int, elapsedMS int64, errMsg string) {
	if r.tracer == nil {
		return
	}
	base := waveBaseScores[st.MatchMode]
	r.tracer.Record(ProbeTrace{
		QueryID:         queryID,
		Lane:            lane,
		Wave:            st.Wave,
		EntityType:      strings.Join(st.EntityTypes, ","),
		CanonicalTerm:   strings.Join(st.Terms, " AND "),
		Table:           st.Table,
		Column:          strings.Join(st.Columns, ","),
		MatchMode:       string(st.MatchMode),
		SQLTemplate:     st.SQL,
		YachtIDEnforced: st.YachtEnforced,
		YachtID:         yachtID,
		RowsReturned:    rows,
		ExecutionTimeMS: elapsedMS,
		Error:           errMsg,
		BaseScore:       base,
		FinalScore:      base * weight,
	})
}
