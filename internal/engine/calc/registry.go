// Package calc computes summary values over a finished result set: the
// built-in aggregates plus a tengo script escape hatch for anything the
// report author cannot express with them.
package calc

import (
	"fmt"

	"github.com/Ranguvenu/skf-sub003/internal/engine"
)

// Plugin computes one summary value from the rows of a report run.
type Plugin interface {
	Validate(elem engine.Element) error
	Compute(elem engine.Element, rows []map[string]any) (any, error)
}

type Registry struct {
	plugins map[string]Plugin
}

func NewRegistry() *Registry {
	r := &Registry{plugins: map[string]Plugin{}}
	for _, name := range []string{"sum", "avg", "min", "max", "count"} {
		r.plugins[name] = &aggregatePlugin{fn: name}
	}
	r.plugins["script"] = &scriptPlugin{}
	return r
}

func (r *Registry) lookup(name string) (Plugin, error) {
	p, ok := r.plugins[name]
	if !ok {
		return nil, &engine.ConfigError{
			Component: engine.ComponentCalcs,
			Plugin:    name,
			Reason:    "unknown calc plugin",
		}
	}
	return p, nil
}

func (r *Registry) Validate(elem engine.Element) error {
	p, err := r.lookup(elem.PluginName)
	if err != nil {
		return err
	}
	return p.Validate(elem)
}

// ComputeAll evaluates every calc element against the rows. Results are
// keyed by "<plugin>_<field>" ("script_<name>" for scripts) so several
// calcs over the same column stay distinct.
func (r *Registry) ComputeAll(elems []engine.Element, rows []map[string]any) (map[string]any, error) {
	if len(elems) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(elems))
	for _, elem := range elems {
		p, err := r.lookup(elem.PluginName)
		if err != nil {
			return nil, err
		}
		v, err := p.Compute(elem, rows)
		if err != nil {
			return nil, fmt.Errorf("calc %s: %w", elem.PluginName, err)
		}
		out[calcKey(elem)] = v
	}
	return out, nil
}

func calcKey(elem engine.Element) string {
	label, _ := elem.FormData["field"].(string)
	if name, ok := elem.FormData["name"].(string); ok && name != "" {
		label = name
	}
	return elem.PluginName + "_" + label
}
