package datatable

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Wire field names of the DataTables server-side protocol.
const (
	fieldAction = "action"
	fieldToken  = "security"
	fieldDraw   = "draw"
	fieldStart  = "start"
	fieldLength = "length"
	fieldSearch = "search[value]"
)

// DefaultPageLength is used when the request omits a page length.
const DefaultPageLength = 10

// OrderClause is one requested sort: a column index into the entity's
// configured column list plus a direction.
type OrderClause struct {
	Column int
	Dir    string
}

// Request is the parsed inbound tabular request. It is immutable per
// call; the engine never mutates it after parsing.
type Request struct {
	// Action selects the handler at the dispatch endpoint.
	Action string

	// Token is the per-session security token for this action class.
	Token string

	// Draw is an opaque client sequence number, echoed back unchanged.
	Draw int

	// Start and Length define pagination. Length may be negative,
	// which means "no limit"; zero yields an empty page.
	Start  int
	Length int

	// Search is the free-text search value.
	Search string

	// Order lists requested sort clauses, primary first.
	Order []OrderClause

	// Filters holds entity-specific extra filter fields, opaque to the
	// engine and forwarded to extension contributions.
	Filters map[string]any
}

// ParseRequest decodes a Request from flat form values as sent by a
// DataTables client. Malformed numeric fields fall back to their
// defaults; a missing search value is an empty string.
func ParseRequest(values url.Values) Request {
	req := Request{
		Action: values.Get(fieldAction),
		Token:  values.Get(fieldToken),
		Draw:   intField(values, fieldDraw, 0),
		Start:  intField(values, fieldStart, 0),
		Length: intField(values, fieldLength, DefaultPageLength),
		Search: values.Get(fieldSearch),
	}

	for i := 0; ; i++ {
		colKey := fmt.Sprintf("order[%d][column]", i)
		if !values.Has(colKey) {
			break
		}
		col, err := strconv.Atoi(values.Get(colKey))
		if err != nil {
			col = -1
		}
		req.Order = append(req.Order, OrderClause{
			Column: col,
			Dir:    normalizeDir(values.Get(fmt.Sprintf("order[%d][dir]", i))),
		})
	}

	req.Filters = extraFilters(values)
	return req
}

// FirstOrder returns the primary sort clause and whether one was sent.
func (r Request) FirstOrder() (OrderClause, bool) {
	if len(r.Order) == 0 {
		return OrderClause{}, false
	}
	return r.Order[0], true
}

// Filter returns the extra filter field as a string, or "" when absent.
func (r Request) Filter(name string) string {
	v, ok := r.Filters[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func intField(values url.Values, name string, fallback int) int {
	raw := values.Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func normalizeDir(dir string) string {
	if strings.EqualFold(dir, "desc") {
		return "desc"
	}
	return "asc"
}

// extraFilters collects fields outside the reserved protocol set.
// Indexed protocol fields (order[...], columns[...], search[...]) are
// excluded wholesale.
func extraFilters(values url.Values) map[string]any {
	reserved := map[string]struct{}{
		fieldAction: {}, fieldToken: {}, fieldDraw: {},
		fieldStart: {}, fieldLength: {},
	}

	filters := make(map[string]any)
	for name, vals := range values {
		if _, ok := reserved[name]; ok {
			continue
		}
		if strings.HasPrefix(name, "order[") ||
			strings.HasPrefix(name, "columns[") ||
			strings.HasPrefix(name, "search[") {
			continue
		}
		if len(vals) == 1 {
			filters[name] = vals[0]
		} else {
			filters[name] = append([]string(nil), vals...)
		}
	}
	if len(filters) == 0 {
		return nil
	}
	return filters
}
