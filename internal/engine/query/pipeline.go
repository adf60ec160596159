package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Ranguvenu/skf-sub003/internal/engine"
)

// BuildInput is the fixed upstream state the stages consume: the report
// type spec, the definition, the caller's request, the permission
// restriction and the already-reduced condition ID set. The restriction is
// a mandatory field, not an option: a pipeline cannot be built without the
// caller's visibility having been decided.
type BuildInput struct {
	Spec        *engine.TypeSpec
	Def         *engine.Definition
	Req         *engine.RunRequest
	Restriction engine.Restriction
	Conditions  engine.ConditionResult
}

// FilterFunc is an active filter component's chance to rewrite the
// in-progress state. Prepared by the executor from the filter registry;
// inactive filters are no-ops.
type FilterFunc func(*State) error

// Stage is one clause-builder step. Stages run in a fixed order; a later
// stage may depend on state set by an earlier one but never the reverse.
type Stage struct {
	Name  string
	Apply func(st *State, in *BuildInput) error
}

// Pipeline runs the ordered stage sequence over a fresh State per build.
type Pipeline struct {
	in      BuildInput
	filters []FilterFunc
}

func NewPipeline(in BuildInput, filters ...FilterFunc) *Pipeline {
	return &Pipeline{in: in, filters: filters}
}

// Build runs every stage in order and assembles the statement for the
// given mode. Two builds with identical inputs produce byte-identical SQL
// and equal parameter maps.
func (p *Pipeline) Build(mode Mode) (string, map[string]any, error) {
	st := NewState()
	for _, stage := range p.stages() {
		if err := stage.Apply(st, &p.in); err != nil {
			return "", nil, fmt.Errorf("query stage %s: %w", stage.Name, err)
		}
	}
	sqlText, err := st.SQL(mode)
	if err != nil {
		return "", nil, err
	}
	return sqlText, st.Params(), nil
}

func (p *Pipeline) stages() []Stage {
	return []Stage{
		{Name: "count", Apply: CountStage},
		{Name: "select", Apply: SelectStage},
		{Name: "from", Apply: FromStage},
		{Name: "where", Apply: WhereStage},
		{Name: "search", Apply: SearchStage},
		{Name: "filters", Apply: p.filtersStage},
		// group-by is derived from the select stage's aggregate columns at
		// assembly time; no stage may add aggregates after this point.
	}
}

// CountStage sets the pagination-count projection.
func CountStage(st *State, in *BuildInput) error {
	st.CountExpr = fmt.Sprintf("COUNT(DISTINCT %s)", in.Spec.DefaultColumn)
	return nil
}

// SelectStage emits the base projection plus only the columns the designer
// actually selected. Expensive column expressions (subselects) are never
// computed for columns nobody asked for.
func SelectStage(st *State, in *BuildInput) error {
	st.AddSelect("id", in.Spec.DefaultColumn, false)

	for _, elem := range in.Def.Elements(engine.ComponentColumns) {
		switch elem.PluginName {
		case "field":
			name, _ := elem.FormData["column"].(string)
			expr, ok := in.Spec.Columns[name]
			if !ok {
				return &engine.ConfigError{Component: engine.ComponentColumns, Plugin: elem.PluginName,
					Reason: fmt.Sprintf("column %q does not exist in the %s report schema", name, in.Spec.Name)}
			}
			st.AddSelect(name, expr, false)
		case "aggregate":
			name, _ := elem.FormData["column"].(string)
			fn, _ := elem.FormData["fn"].(string)
			expr, ok := in.Spec.Columns[name]
			if !ok {
				return &engine.ConfigError{Component: engine.ComponentColumns, Plugin: elem.PluginName,
					Reason: fmt.Sprintf("column %q does not exist in the %s report schema", name, in.Spec.Name)}
			}
			fn = strings.ToUpper(fn)
			switch fn {
			case "COUNT", "SUM", "AVG", "MIN", "MAX":
			default:
				return &engine.ConfigError{Component: engine.ComponentColumns, Plugin: elem.PluginName,
					Reason: fmt.Sprintf("unknown aggregate function %q", fn)}
			}
			st.AddSelect(fn+"_"+name, fmt.Sprintf("%s(%s)", fn, expr), true)
		default:
			return &engine.ConfigError{Component: engine.ComponentColumns, Plugin: elem.PluginName,
				Reason: "unknown column plugin"}
		}
	}
	return nil
}

// FromStage sets the base table and the structurally required joins.
func FromStage(st *State, in *BuildInput) error {
	st.From = fmt.Sprintf("{%s} %s", in.Spec.Table, in.Spec.Alias)
	for _, join := range in.Spec.BaseJoins {
		st.AddJoin(join)
	}
	return nil
}

// WhereStage applies the base visibility predicates, binds the basic
// parameters they reference, and injects the permission and condition
// restrictions. Every report type passes through here, so a type cannot
// forget to consult the restriction.
func WhereStage(st *State, in *BuildInput) error {
	for _, pred := range in.Spec.BaseVisibility {
		st.AddWhere(pred)
	}
	for _, name := range in.Spec.BasicParams {
		if err := st.AddParam("basic_"+name, in.Req.Param(name)); err != nil {
			return err
		}
	}

	if !in.Restriction.Unrestricted {
		pred, err := inClause(st, in.Spec.RestrictColumn, "visible", in.Restriction.CourseIDs)
		if err != nil {
			return err
		}
		st.AddWhere(pred)
	}

	if in.Conditions.Active {
		pred, err := inClause(st, in.Spec.DefaultColumn, "cond", in.Conditions.IDs)
		if err != nil {
			return err
		}
		st.AddWhere(pred)
	}
	return nil
}

// inClause renders "column IN (:prefix_0, ...)" binding one named
// parameter per id, or a never-true predicate for an empty allow-list.
func inClause(st *State, column, prefix string, ids []int64) (string, error) {
	if len(ids) == 0 {
		return "1 = 0", nil
	}
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		name := prefix + "_" + strconv.Itoa(i)
		if err := st.AddParam(name, id); err != nil {
			return "", err
		}
		placeholders[i] = ":" + name
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")), nil
}

// SearchStage appends the case-insensitive OR-group across the type's
// searchable expressions. The search text is always bound as a parameter,
// never concatenated.
func SearchStage(st *State, in *BuildInput) error {
	text := strings.TrimSpace(in.Req.Search)
	if text == "" || len(in.Spec.Searchable) == 0 {
		return nil
	}
	if err := st.AddParam("search", "%"+strings.ToLower(text)+"%"); err != nil {
		return err
	}
	parts := make([]string, len(in.Spec.Searchable))
	for i, expr := range in.Spec.Searchable {
		parts[i] = fmt.Sprintf("LOWER(%s) LIKE :search", expr)
	}
	st.AddWhere(strings.Join(parts, " OR "))
	return nil
}

// filtersStage hands the in-progress state to each active filter
// component in order.
func (p *Pipeline) filtersStage(st *State, _ *BuildInput) error {
	for _, apply := range p.filters {
		if err := apply(st); err != nil {
			return err
		}
	}
	return nil
}
