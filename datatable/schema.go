package datatable

// ColumnSpec describes one projected column. The position of a spec in
// Schema.Columns defines the index that sort requests refer to.
type ColumnSpec struct {
	// Name is the column name, optionally table-qualified.
	Name string

	// Alias renames the column in the projected record. Empty keeps
	// the column name.
	Alias string

	// Searchable includes the column in the free-text OR-chain.
	Searchable bool

	// Sortable allows the column as a sort target. The first sortable
	// column is the default sort.
	Sortable bool
}

// ResultName returns the key the column occupies in a projected record.
func (c ColumnSpec) ResultName() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Name
}

// JoinSpec is one JOIN fragment with bound arguments.
type JoinSpec struct {
	Expr string
	Args []any
}

// WhereFragment is one parameterized WHERE predicate. Fragments use
// placeholder syntax with bound values; raw value interpolation is not
// supported anywhere in the engine.
type WhereFragment struct {
	Expr string
	Args []any
}

// Schema is the static per-entity configuration of the query engine.
// It is set once per entity and never mutated by requests.
type Schema struct {
	// Table is the backing table name.
	Table string

	// IDColumn is the row identifier column, used for DISTINCT counts
	// and row identity in projected output.
	IDColumn string

	// Columns is the ordered projected column list.
	Columns []ColumnSpec

	// Joins are static join fragments applied to every filtered query.
	Joins []JoinSpec

	// BaseWhere are static predicates applied before any contributed
	// or per-request fragments.
	BaseWhere []WhereFragment

	// StatusColumn, when set, enables the default active-status filter
	// and the status badge projection.
	StatusColumn string

	// ActiveValue is the sentinel value StatusColumn compares against
	// to classify a row as active.
	ActiveValue any
}

// Validate checks the schema is usable by the engine.
func (s Schema) Validate() error {
	if s.Table == "" {
		return &SchemaError{Field: "Table", Message: "must not be empty"}
	}
	if s.IDColumn == "" {
		return &SchemaError{Field: "IDColumn", Message: "must not be empty"}
	}
	if len(s.Columns) == 0 {
		return &SchemaError{Field: "Columns", Message: "must define at least one column"}
	}
	if s.StatusColumn != "" && s.ActiveValue == nil {
		return &SchemaError{Field: "ActiveValue", Message: "required when StatusColumn is set"}
	}
	return nil
}

// columnByIndex maps a requested sort index to its column spec.
func (s Schema) columnByIndex(i int) (ColumnSpec, bool) {
	if i < 0 || i >= len(s.Columns) {
		return ColumnSpec{}, false
	}
	return s.Columns[i], true
}

// defaultSort returns the first sortable column and ascending
// direction. Falls back to the ID column when nothing is sortable.
func (s Schema) defaultSort() (string, string) {
	for _, c := range s.Columns {
		if c.Sortable {
			return c.Name, "asc"
		}
	}
	return s.IDColumn, "asc"
}

// searchableColumns returns the subset of columns participating in
// free-text search.
func (s Schema) searchableColumns() []string {
	var cols []string
	for _, c := range s.Columns {
		if c.Searchable {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// SchemaError represents an invalid schema definition.
type SchemaError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return "schema error in field " + e.Field + ": " + e.Message
}
