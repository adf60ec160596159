// Package filter implements the pluggable filter components. A filter is a
// no-op unless its request parameter is bound and non-zero; active filters
// either append predicates to the structured pipeline state or rewrite
// their %%FILTER_*%% tokens inside custom SQL text.
package filter

import (
	"fmt"
	"regexp"

	"github.com/Ranguvenu/skf-sub003/internal/engine"
	"github.com/Ranguvenu/skf-sub003/internal/engine/query"
)

// Plugin is one filter implementation.
type Plugin interface {
	// Validate checks the element configuration against the report type at
	// save time.
	Validate(spec *engine.TypeSpec, elem engine.Element) error

	// Bind returns the stage function applying this filter to the
	// structured pipeline, or ok=false when the corresponding request
	// parameter is absent or zero.
	Bind(spec *engine.TypeSpec, elem engine.Element, req *engine.RunRequest) (fn query.FilterFunc, ok bool)

	// Rewrite replaces the plugin's tokens inside raw SQL text, binding
	// any values it needs into params. Inactive filters leave the text
	// untouched (unmatched tokens are stripped by the registry).
	Rewrite(sqlText string, req *engine.RunRequest, params map[string]any) string
}

// Registry maps filter plugin names to implementations; unknown names fail
// at definition validation.
type Registry struct {
	plugins map[string]Plugin
}

func NewRegistry() *Registry {
	return &Registry{plugins: map[string]Plugin{
		"courses":   newParamFilter("courses", "FILTER_COURSES", restrictColumn),
		"users":     newParamFilter("users", "FILTER_USERS", defaultColumn),
		"category":  newParamFilter("category", "FILTER_CATEGORY", schemaColumn("category")),
		"daterange": &daterangeFilter{},
	}}
}

func (r *Registry) lookup(name string) (Plugin, error) {
	p, ok := r.plugins[name]
	if !ok {
		return nil, &engine.ConfigError{Component: engine.ComponentFilters, Plugin: name,
			Reason: "unknown filter plugin"}
	}
	return p, nil
}

// Validate checks one filter element against the registry and report type.
func (r *Registry) Validate(spec *engine.TypeSpec, elem engine.Element) error {
	p, err := r.lookup(elem.PluginName)
	if err != nil {
		return err
	}
	if !spec.AllowsFilter(elem.PluginName) {
		return &engine.ConfigError{Component: engine.ComponentFilters, Plugin: elem.PluginName,
			Reason: fmt.Sprintf("not valid for %s reports", spec.Name)}
	}
	return p.Validate(spec, elem)
}

// Funcs prepares the pipeline stage functions for every active filter of
// the definition, preserving element order.
func (r *Registry) Funcs(spec *engine.TypeSpec, def *engine.Definition, req *engine.RunRequest) ([]query.FilterFunc, error) {
	var funcs []query.FilterFunc
	for _, elem := range def.Elements(engine.ComponentFilters) {
		p, err := r.lookup(elem.PluginName)
		if err != nil {
			return nil, err
		}
		if fn, ok := p.Bind(spec, elem, req); ok {
			funcs = append(funcs, fn)
		}
	}
	return funcs, nil
}

var leftoverToken = regexp.MustCompile(`%%FILTER_[A-Z_]+(:[^%]*)?%%`)

// RewriteSQL applies every configured filter's token rewrite to the raw
// SQL of a custom report, then strips tokens whose filters are inactive.
// Values are bound into params, never concatenated into the text.
func (r *Registry) RewriteSQL(def *engine.Definition, req *engine.RunRequest, sqlText string) (string, map[string]any, error) {
	params := make(map[string]any)
	for _, elem := range def.Elements(engine.ComponentFilters) {
		p, err := r.lookup(elem.PluginName)
		if err != nil {
			return "", nil, err
		}
		sqlText = p.Rewrite(sqlText, req, params)
	}
	sqlText = leftoverToken.ReplaceAllString(sqlText, "")
	return sqlText, params, nil
}

// Column selectors used by the generic parameter filter.

func restrictColumn(spec *engine.TypeSpec) string { return spec.RestrictColumn }
func defaultColumn(spec *engine.TypeSpec) string  { return spec.DefaultColumn }

func schemaColumn(name string) func(*engine.TypeSpec) string {
	return func(spec *engine.TypeSpec) string { return spec.Columns[name] }
}
