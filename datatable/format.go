package datatable

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-datatable-engine/auth"
	"github.com/goliatone/go-datatable-engine/cache"
)

// StatusFilterAll is the TotalCount filter value that omits the status
// predicate entirely.
const StatusFilterAll = "all"

// Badge is the binary active/inactive classification derived from an
// entity's status column.
type Badge struct {
	Label  string `json:"label"`
	Class  string `json:"class"`
	Active bool   `json:"active"`
}

// StatusBadge maps a status value against the configured active
// sentinel. Comparison is on the rendered value, so "1" and 1 match.
func StatusBadge(value, activeValue any) Badge {
	if fmt.Sprint(value) == fmt.Sprint(activeValue) {
		return Badge{Label: "Active", Class: "badge-active", Active: true}
	}
	return Badge{Label: "Inactive", Class: "badge-inactive", Active: false}
}

// Action is one row action descriptor offered to the client.
type Action struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// ActionButtons emits the row's action descriptors: view
// unconditionally, edit and delete gated by the model's configured
// capabilities. An action the caller is not authorized to invoke is
// never included.
func (m *Model) ActionButtons(authCtx auth.Context, _ Row) []Action {
	actions := []Action{{Name: "view", Label: "View"}}
	if authCtx.Can(m.editCap) {
		actions = append(actions, Action{Name: "edit", Label: "Edit"})
	}
	if authCtx.Can(m.deleteCap) {
		actions = append(actions, Action{Name: "delete", Label: "Delete"})
	}
	return actions
}

// TotalCount reuses the WHERE-assembly pipeline, extension
// contributions included, for whole-table statistics outside the
// listing request envelope. StatusFilterAll omits the status
// predicate; any other value replaces the active sentinel. Results are
// cached under the stats type when a cache manager is attached.
func (m *Model) TotalCount(ctx context.Context, authCtx auth.Context, statusFilter string) (int, error) {
	count := func(ctx context.Context) (int, error) {
		var own []WhereFragment
		if statusFilter != StatusFilterAll && m.schema.StatusColumn != "" {
			value := any(statusFilter)
			if statusFilter == "" {
				value = m.schema.ActiveValue
			}
			own = []WhereFragment{{
				Expr: "? = ?",
				Args: []any{bun.Ident(m.schema.StatusColumn), value},
			}}
		}

		where := m.assembleWhere(ctx, authCtx, Request{}, own)
		joins := m.assembleJoins(ctx, authCtx, Request{})

		q := m.db.NewSelect().
			Table(m.schema.Table).
			ColumnExpr("COUNT(DISTINCT ?)", bun.Ident(m.schema.IDColumn))
		q = applyJoins(q, joins)
		q = applyWhere(q, where)

		var n int
		err := q.Scan(ctx, &n)
		return n, err
	}

	if m.cache == nil {
		return count(ctx)
	}

	n, err := cache.GetOrFetch(ctx, m.cache, cache.TypeStats, 0, count,
		m.name, authCtx.CacheScope(), statusFilter)
	if err != nil {
		return 0, fmt.Errorf("total count for %s: %w", m.name, err)
	}
	return n, nil
}

// defaultFormat is the row projection used when no entity formatter is
// supplied: database columns pass through, the row identifier is set,
// and status badge plus action descriptors are derived.
func (m *Model) defaultFormat(_ context.Context, authCtx auth.Context, record map[string]any) (Row, error) {
	row := make(Row, len(record)+3)
	for k, v := range record {
		row[k] = v
	}

	if id, ok := record[m.schema.IDColumn]; ok {
		row[RowIDKey] = rowID(id)
	}
	if m.schema.StatusColumn != "" {
		if status, ok := record[m.schema.StatusColumn]; ok {
			row["status_badge"] = StatusBadge(status, m.schema.ActiveValue)
		}
	}
	row["actions"] = m.ActionButtons(authCtx, row)
	return row, nil
}

func rowID(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
