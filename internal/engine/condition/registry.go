// Package condition resolves configured condition elements to sets of row
// identifiers. Each plugin answers one predicate with its own scoped query;
// the executor combines the resulting slots with the stored expression.
package condition

import (
	"context"
	"fmt"

	"github.com/Ranguvenu/skf-sub003/internal/engine"
	"github.com/Ranguvenu/skf-sub003/pkg/setexpr"
)

// Context is the ambient request state a condition may need: the caller's
// identity for %%USERID%% sentinels, the current course for %%COURSEID%%,
// and which entity the report's rows identify.
type Context struct {
	DB       engine.DB
	Identity engine.Identity
	CourseID int64
	Entity   string
}

// Plugin evaluates one configured condition element to an ID set.
type Plugin interface {
	// Validate checks the element's form data without touching the
	// database. Called at definition save time.
	Validate(elem engine.Element) error
	Evaluate(ctx context.Context, elem engine.Element, rc *Context) (setexpr.IDSet, error)
}

// Registry maps plugin names to implementations. The set is fixed at
// construction, so an unknown plugin name in a stored definition fails at
// validation, never as a silent no-op at run time.
type Registry struct {
	plugins map[string]Plugin
}

func NewRegistry() *Registry {
	return &Registry{plugins: map[string]Plugin{
		"coursefield": &fieldPlugin{entity: "course"},
		"userfield":   &fieldPlugin{entity: "user"},
		"enrolment":   &enrolmentPlugin{},
	}}
}

func (r *Registry) lookup(name string) (Plugin, error) {
	p, ok := r.plugins[name]
	if !ok {
		return nil, &engine.ConfigError{Component: engine.ComponentConditions, Plugin: name,
			Reason: "unknown condition plugin"}
	}
	return p, nil
}

// Validate checks a condition element against the registry and the report
// type it is attached to.
func (r *Registry) Validate(spec *engine.TypeSpec, elem engine.Element) error {
	p, err := r.lookup(elem.PluginName)
	if err != nil {
		return err
	}
	if !spec.AllowsCondition(elem.PluginName) {
		return &engine.ConfigError{Component: engine.ComponentConditions, Plugin: elem.PluginName,
			Reason: fmt.Sprintf("not valid for %s reports", spec.Name)}
	}
	return p.Validate(elem)
}

// Resolve evaluates one element to its ID set.
func (r *Registry) Resolve(ctx context.Context, elem engine.Element, rc *Context) (setexpr.IDSet, error) {
	p, err := r.lookup(elem.PluginName)
	if err != nil {
		return nil, err
	}
	return p.Evaluate(ctx, elem, rc)
}

// Universe materializes the full ID set of the report's entity, the
// complement domain for "not" in condition expressions. Like the plugins it
// runs its own standalone query; the pipeline's visibility predicates still
// apply on the main query, so an id of a hidden row in the allow-list never
// surfaces it.
func (r *Registry) Universe(ctx context.Context, rc *Context) (setexpr.IDSet, error) {
	tbl, ok := fieldTables[rc.Entity]
	if !ok {
		return nil, &engine.ConfigError{Component: engine.ComponentConditions,
			Reason: fmt.Sprintf("%s rows define no complement universe", rc.Entity)}
	}
	rows, err := rc.DB.Query(ctx,
		fmt.Sprintf("SELECT %s AS id FROM {%s} %s", tbl.id, tbl.table, tbl.alias), nil)
	if err != nil {
		return nil, fmt.Errorf("condition universe: %w", err)
	}
	return rowsToSet(rows), nil
}

// ResolveSlots evaluates every element of the conditions component into
// the 1-based slot map the expression evaluator consumes.
func (r *Registry) ResolveSlots(ctx context.Context, elements []engine.Element, rc *Context) (map[int]setexpr.IDSet, error) {
	slots := make(map[int]setexpr.IDSet, len(elements))
	for i, elem := range elements {
		set, err := r.Resolve(ctx, elem, rc)
		if err != nil {
			return nil, fmt.Errorf("condition c%d: %w", i+1, err)
		}
		slots[i+1] = set
	}
	return slots, nil
}
