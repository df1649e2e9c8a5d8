package datatable

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-datatable-engine/auth"
	"github.com/goliatone/go-datatable-engine/cache"
	"github.com/goliatone/go-datatable-engine/extension"
)

// WherePoint names the extension point WHERE contributions for an
// entity register against.
func WherePoint(entity string) string { return "datatable.where." + entity }

// JoinPoint names the extension point JOIN contributions for an entity
// register against.
func JoinPoint(entity string) string { return "datatable.join." + entity }

// WhereAccumulator is the accumulator folded through an entity's WHERE
// extension point. Contributions append parameterized fragments; all
// fragments compose with logical AND.
type WhereAccumulator struct {
	Request   Request
	Auth      auth.Context
	Fragments []WhereFragment
}

// JoinAccumulator is the accumulator folded through an entity's JOIN
// extension point.
type JoinAccumulator struct {
	Request Request
	Auth    auth.Context
	Joins   []JoinSpec
}

// Row is one projected output record. It is opaque to the engine
// beyond carrying the row identifier under RowIDKey.
type Row map[string]any

// RowIDKey is the row identifier key in projected rows, following the
// DataTables client convention.
const RowIDKey = "DT_RowId"

// ResultPage is the engine's result for one request.
type ResultPage struct {
	Draw            int   `json:"draw"`
	RecordsTotal    int   `json:"recordsTotal"`
	RecordsFiltered int   `json:"recordsFiltered"`
	Rows            []Row `json:"data"`
}

// Formatter projects a database record into an output Row. Entity
// modules supply their own to add derived fields such as status badges
// or permission-gated action descriptors.
type Formatter interface {
	FormatRow(ctx context.Context, authCtx auth.Context, record map[string]any) (Row, error)
}

// FormatterFunc adapts a function to the Formatter interface.
type FormatterFunc func(ctx context.Context, authCtx auth.Context, record map[string]any) (Row, error)

// FormatRow implements Formatter.
func (f FormatterFunc) FormatRow(ctx context.Context, authCtx auth.Context, record map[string]any) (Row, error) {
	return f(ctx, authCtx, record)
}

// WhereFunc builds the entity's own per-request predicates. The default
// implementation filters to active-status rows when the schema defines
// a status column.
type WhereFunc func(authCtx auth.Context, req Request) []WhereFragment

// Model is the server-side tabular query engine for one entity. It
// turns a Request into a ResultPage against the entity's backing
// table, folding extension contributions into the WHERE and JOIN
// assembly and optionally memoizing pages through a cache.Manager.
type Model struct {
	db        bun.IDB
	name      string
	schema    Schema
	registry  *extension.Registry
	cache     *cache.Manager
	formatter Formatter
	whereFn   WhereFunc
	editCap   auth.Capability
	deleteCap auth.Capability
	log       *slog.Logger
}

// Option configures a Model.
type Option func(*Model)

// WithCache attaches a cache manager for listing memoization.
func WithCache(m *cache.Manager) Option {
	return func(model *Model) { model.cache = m }
}

// WithFormatter replaces the default row projection.
func WithFormatter(f Formatter) Option {
	return func(model *Model) { model.formatter = f }
}

// WithWhere overrides the entity's own predicate builder. Extension
// contributions still apply on top.
func WithWhere(fn WhereFunc) Option {
	return func(model *Model) { model.whereFn = fn }
}

// WithActionCapabilities sets the capabilities gating the edit and
// delete action descriptors.
func WithActionCapabilities(edit, del auth.Capability) Option {
	return func(model *Model) {
		model.editCap = edit
		model.deleteCap = del
	}
}

// WithLogger sets the model's logger.
func WithLogger(log *slog.Logger) Option {
	return func(model *Model) { model.log = log }
}

// NewModel creates the query engine for one entity. The name doubles
// as the listing cache context and the extension point suffix.
func NewModel(db bun.IDB, name string, schema Schema, registry *extension.Registry, opts ...Option) (*Model, error) {
	if name == "" {
		return nil, &SchemaError{Field: "name", Message: "must not be empty"}
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	m := &Model{
		db:        db,
		name:      name,
		schema:    schema,
		registry:  registry,
		editCap:   auth.CapEdit,
		deleteCap: auth.CapDelete,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.formatter == nil {
		m.formatter = FormatterFunc(m.defaultFormat)
	}
	if m.whereFn == nil {
		m.whereFn = m.activeStatusWhere
	}
	return m, nil
}

// Name returns the entity name the model was registered under.
func (m *Model) Name() string { return m.name }

// Schema returns the model's static configuration.
func (m *Model) Schema() Schema { return m.schema }

// GetData executes the full listing pipeline for one request: WHERE
// and JOIN assembly (including extension contributions), the three
// count/filter/page statements, and row projection. Pages are read
// from and written to the listing cache when one is attached and the
// entity's context is not opted out.
func (m *Model) GetData(ctx context.Context, authCtx auth.Context, req Request) (*ResultPage, error) {
	params := listingParams(req)
	scope := authCtx.CacheScope()

	if m.cache != nil {
		if v, ok := m.cache.Listing(ctx, m.name, scope, params); ok {
			if page, ok := decodePage(v); ok {
				echo := page.clone()
				echo.Draw = req.Draw
				return echo, nil
			}
		}
	}

	where := m.assembleWhere(ctx, authCtx, req, m.whereFn(authCtx, req))
	joins := m.assembleJoins(ctx, authCtx, req)

	total, err := m.countAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("count query for %s: %w", m.name, err)
	}

	filtered, err := m.countFiltered(ctx, req, where, joins)
	if err != nil {
		return nil, fmt.Errorf("filtered count query for %s: %w", m.name, err)
	}

	rows, err := m.fetchRows(ctx, authCtx, req, where, joins)
	if err != nil {
		return nil, fmt.Errorf("data query for %s: %w", m.name, err)
	}

	page := &ResultPage{
		Draw:            req.Draw,
		RecordsTotal:    total,
		RecordsFiltered: filtered,
		Rows:            rows,
	}

	if m.cache != nil {
		// Cache an independent copy: the caller owns the returned page
		// and may annotate its rows.
		m.cache.StoreListing(ctx, m.name, scope, params, page.clone())
	}
	return page, nil
}

// assembleWhere builds the full predicate list: base fragments, the
// entity's own predicates, then every extension contribution for this
// entity's WHERE point in priority order. Failing contributions are
// skipped inside the registry fold.
func (m *Model) assembleWhere(ctx context.Context, authCtx auth.Context, req Request, own []WhereFragment) []WhereFragment {
	fragments := append([]WhereFragment{}, m.schema.BaseWhere...)
	fragments = append(fragments, own...)

	if m.registry == nil {
		return fragments
	}

	acc := &WhereAccumulator{Request: req, Auth: authCtx, Fragments: fragments}
	out := m.registry.Fold(ctx, WherePoint(m.name), acc)
	if folded, ok := out.(*WhereAccumulator); ok {
		return folded.Fragments
	}
	return fragments
}

func (m *Model) assembleJoins(ctx context.Context, authCtx auth.Context, req Request) []JoinSpec {
	joins := append([]JoinSpec{}, m.schema.Joins...)

	if m.registry == nil {
		return joins
	}

	acc := &JoinAccumulator{Request: req, Auth: authCtx, Joins: joins}
	out := m.registry.Fold(ctx, JoinPoint(m.name), acc)
	if folded, ok := out.(*JoinAccumulator); ok {
		return folded.Joins
	}
	return joins
}

// activeStatusWhere is the default entity predicate: active rows only,
// and nothing at all for schemas without a status column.
func (m *Model) activeStatusWhere(_ auth.Context, _ Request) []WhereFragment {
	if m.schema.StatusColumn == "" {
		return nil
	}
	return []WhereFragment{{
		Expr: "? = ?",
		Args: []any{bun.Ident(m.schema.StatusColumn), m.schema.ActiveValue},
	}}
}

// countAll runs the unfiltered COUNT(DISTINCT id) over the base table.
func (m *Model) countAll(ctx context.Context) (int, error) {
	var n int
	err := m.db.NewSelect().
		Table(m.schema.Table).
		ColumnExpr("COUNT(DISTINCT ?)", bun.Ident(m.schema.IDColumn)).
		Scan(ctx, &n)
	return n, err
}

// countFiltered runs COUNT(DISTINCT id) under the assembled WHERE,
// JOIN and search predicates.
func (m *Model) countFiltered(ctx context.Context, req Request, where []WhereFragment, joins []JoinSpec) (int, error) {
	q := m.db.NewSelect().
		Table(m.schema.Table).
		ColumnExpr("COUNT(DISTINCT ?)", bun.Ident(m.schema.IDColumn))
	q = applyJoins(q, joins)
	q = applyWhere(q, where)
	q = m.applySearch(q, req.Search)

	var n int
	err := q.Scan(ctx, &n)
	return n, err
}

// fetchRows runs the paginated SELECT and projects each record through
// the formatter.
func (m *Model) fetchRows(ctx context.Context, authCtx auth.Context, req Request, where []WhereFragment, joins []JoinSpec) ([]Row, error) {
	// Zero length asks for an empty page; the counts above still hold.
	if req.Length == 0 {
		return []Row{}, nil
	}

	q := m.db.NewSelect().Table(m.schema.Table)
	for _, col := range m.schema.Columns {
		if col.Alias != "" {
			q = q.ColumnExpr("? AS ?", bun.Ident(col.Name), bun.Ident(col.Alias))
		} else {
			q = q.ColumnExpr("?", bun.Ident(col.Name))
		}
	}
	if !m.schema.projectsIDColumn() {
		q = q.ColumnExpr("?", bun.Ident(m.schema.IDColumn))
	}

	q = applyJoins(q, joins)
	q = applyWhere(q, where)
	q = m.applySearch(q, req.Search)

	sortCol, sortDir := m.resolveSort(req)
	q = q.OrderExpr("? ?", bun.Ident(sortCol), bun.Safe(strings.ToUpper(sortDir)))

	// Negative length means no limit; the offset still applies.
	if req.Length > 0 {
		q = q.Limit(req.Length)
	}
	if req.Start > 0 {
		q = q.Offset(req.Start)
	}

	var records []map[string]any
	if err := q.Scan(ctx, &records); err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(records))
	for _, record := range records {
		row, err := m.formatter.FormatRow(ctx, authCtx, record)
		if err != nil {
			return nil, fmt.Errorf("format row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// resolveSort maps the requested column index through the configured
// column list. Out-of-range indexes and non-sortable columns fall back
// to the default sort. The direction is whitelisted here, not only at
// the wire boundary: a Request may be built by the host directly, and
// the direction ends up in the ORDER BY clause verbatim.
func (m *Model) resolveSort(req Request) (string, string) {
	if ord, ok := req.FirstOrder(); ok {
		if col, found := m.schema.columnByIndex(ord.Column); found && col.Sortable {
			return col.Name, normalizeDir(ord.Dir)
		}
	}
	return m.schema.defaultSort()
}

// applySearch adds the free-text OR-chain over searchable columns.
// Every predicate is a parameterized case-insensitive substring match.
func (m *Model) applySearch(q *bun.SelectQuery, search string) *bun.SelectQuery {
	search = strings.TrimSpace(search)
	cols := m.schema.searchableColumns()
	if search == "" || len(cols) == 0 {
		return q
	}

	pattern := "%" + strings.ToLower(search) + "%"
	return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		for _, col := range cols {
			q = q.WhereOr("LOWER(?) LIKE ?", bun.Ident(col), pattern)
		}
		return q
	})
}

func applyWhere(q *bun.SelectQuery, fragments []WhereFragment) *bun.SelectQuery {
	for _, f := range fragments {
		if strings.TrimSpace(f.Expr) == "" {
			continue
		}
		q = q.Where(f.Expr, f.Args...)
	}
	return q
}

func applyJoins(q *bun.SelectQuery, joins []JoinSpec) *bun.SelectQuery {
	for _, j := range joins {
		if strings.TrimSpace(j.Expr) == "" {
			continue
		}
		q = q.Join(j.Expr, j.Args...)
	}
	return q
}

func (s Schema) projectsIDColumn() bool {
	for _, c := range s.Columns {
		if c.Name == s.IDColumn || c.Alias == s.IDColumn {
			return true
		}
	}
	return false
}

func listingParams(req Request) cache.ListingParams {
	params := cache.ListingParams{
		Start:   req.Start,
		Length:  req.Length,
		Search:  strings.TrimSpace(req.Search),
		Filters: req.Filters,
	}
	if ord, ok := req.FirstOrder(); ok {
		params.OrderColumn = ord.Column
		params.OrderDir = ord.Dir
	} else {
		params.OrderColumn = -1
		params.OrderDir = "asc"
	}
	return params
}

// clone returns a copy whose row slice and row maps are independent of
// the receiver. The cache only ever holds clones, so response
// post-processors can annotate the rows of a returned page without
// corrupting the cached copy for later readers.
func (p *ResultPage) clone() *ResultPage {
	out := *p
	if p.Rows != nil {
		out.Rows = make([]Row, len(p.Rows))
		for i, row := range p.Rows {
			cp := make(Row, len(row))
			for k, v := range row {
				cp[k] = v
			}
			out.Rows[i] = cp
		}
	}
	return &out
}

// decodePage recovers a ResultPage from a cached value. Shared-cache
// backends hand back raw JSON; the in-memory backend returns the page
// pointer that was stored.
func decodePage(v any) (*ResultPage, bool) {
	switch cached := v.(type) {
	case *ResultPage:
		return cached, true
	case ResultPage:
		return &cached, true
	case json.RawMessage:
		var page ResultPage
		if err := json.Unmarshal(cached, &page); err != nil {
			return nil, false
		}
		return &page, true
	case []byte:
		var page ResultPage
		if err := json.Unmarshal(cached, &page); err != nil {
			return nil, false
		}
		return &page, true
	default:
		return nil, false
	}
}
