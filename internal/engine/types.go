// Package engine holds the shared types of the report engine: the decoded
// report definition, the request context a report runs under, the database
// abstraction and the error taxonomy. The subpackages (query, condition,
// filter, permission, sqlgate, executor, calc) build on these.
package engine

import "context"

// Component names a definition's configuration slots. The set is closed:
// an unknown component in a stored definition is a configuration error.
const (
	ComponentColumns     = "columns"
	ComponentFilters     = "filters"
	ComponentConditions  = "conditions"
	ComponentPermissions = "permissions"
	ComponentCalcs       = "calcs"
	ComponentCustomSQL   = "customsql"
)

// Element is one configured plugin instance inside a component. FormData is
// the plugin's own already-decoded configuration; the engine never
// interprets it beyond handing it to the plugin selected by PluginName.
type Element struct {
	PluginName string         `json:"plugin_name" bson:"plugin_name"`
	FormData   map[string]any `json:"form_data" bson:"form_data"`
}

// ComponentConfig is a named, ordered collection of elements.
type ComponentConfig struct {
	Name     string    `json:"name" bson:"name"`
	Elements []Element `json:"elements" bson:"elements"`
}

// Definition is the engine's read-only view of a designed report. It is
// owned and mutated by the report feature's editor workflow; the engine
// only reads it.
type Definition struct {
	ID            string            `json:"id" bson:"-"`
	Name          string            `json:"name" bson:"name"`
	Type          string            `json:"type" bson:"type"` // courses, users, sql
	Components    []ComponentConfig `json:"components" bson:"components"`
	ConditionExpr string            `json:"condition_expr" bson:"condition_expr"`
	CustomSQL     string            `json:"custom_sql,omitempty" bson:"custom_sql,omitempty"`
}

// Component returns the named component config, or nil when the definition
// does not carry it.
func (d *Definition) Component(name string) *ComponentConfig {
	for i := range d.Components {
		if d.Components[i].Name == name {
			return &d.Components[i]
		}
	}
	return nil
}

// Elements returns the elements of the named component, empty when absent.
func (d *Definition) Elements(name string) []Element {
	if c := d.Component(name); c != nil {
		return c.Elements
	}
	return nil
}

// Identity is what the identity/role provider supplies about the caller.
type Identity struct {
	UserID  int64
	Roles   []string
	IsAdmin bool
}

// RunRequest carries everything request-scoped a report execution needs.
type RunRequest struct {
	Identity Identity

	// Params binds the report's basic parameters and active filters by
	// name (courses, users, startdate, ...).
	Params map[string]any

	// Search is the free-text search applied across the report type's
	// searchable columns.
	Search string

	Page     int
	PageSize int
}

// Param returns the named request parameter as an int64 id, 0 when absent
// or not numeric. Filters treat 0 as "inactive".
func (r *RunRequest) Param(name string) int64 {
	v, ok := r.Params[name]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

// Result is a completed report run.
type Result struct {
	// Columns lists the result columns. Pipeline reports keep projection
	// order; custom-SQL rows arrive as maps via the DB interface, so their
	// columns are sorted by name rather than authored SELECT order.
	Columns []string
	Rows    []map[string]any
	Total   int64
	Calcs   map[string]any
}

// Restriction is the caller's computed row-visibility allow-list.
// Unrestricted is reserved for administrators and holders of the manage
// capability; every other caller carries an explicit course ID list, which
// may be empty (sees nothing).
type Restriction struct {
	Unrestricted bool
	CourseIDs    []int64
}

// ConditionResult is the reduced condition-component restriction: the final
// included-ID set over the report's entity. Inactive when the definition
// has no condition component.
type ConditionResult struct {
	Active bool
	IDs    []int64
}

// DB executes a read(-mostly) parameterized statement with named
// placeholders (":name") and returns the rows as column-name maps. The
// production implementation rewrites named placeholders to the driver's
// positional form; tests substitute a stub.
type DB interface {
	Query(ctx context.Context, sqlText string, params map[string]any) ([]map[string]any, error)
}
