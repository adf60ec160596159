package calc

import (
	"fmt"
	"strconv"

	"github.com/d5/tengo/v2"

	"github.com/Ranguvenu/skf-sub003/internal/engine"
)

type aggregatePlugin struct {
	fn string
}

func (p *aggregatePlugin) Validate(elem engine.Element) error {
	field, _ := elem.FormData["field"].(string)
	if field == "" {
		return &engine.ConfigError{
			Component: engine.ComponentCalcs,
			Plugin:    elem.PluginName,
			Reason:    "missing field",
		}
	}
	return nil
}

func (p *aggregatePlugin) Compute(elem engine.Element, rows []map[string]any) (any, error) {
	field, _ := elem.FormData["field"].(string)

	if p.fn == "count" {
		n := 0
		for _, row := range rows {
			if v, ok := row[field]; ok && v != nil {
				n++
			}
		}
		return int64(n), nil
	}

	var (
		sum   float64
		count int
		min   float64
		max   float64
	)
	for _, row := range rows {
		v, ok := row[field]
		if !ok || v == nil {
			continue
		}
		f, err := asFloat(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		if count == 0 {
			min, max = f, f
		} else {
			if f < min {
				min = f
			}
			if f > max {
				max = f
			}
		}
		sum += f
		count++
	}
	if count == 0 {
		return nil, nil
	}

	switch p.fn {
	case "sum":
		return sum, nil
	case "avg":
		return sum / float64(count), nil
	case "min":
		return min, nil
	case "max":
		return max, nil
	}
	return nil, fmt.Errorf("unknown aggregate %q", p.fn)
}

// scriptPlugin runs an author-supplied tengo script over the result set.
// The script sees "rows" (the full result) and, when a field is named,
// "values" (that column as an array); it must assign its output to a
// variable called result.
type scriptPlugin struct{}

func (p *scriptPlugin) Validate(elem engine.Element) error {
	src, _ := elem.FormData["script"].(string)
	if src == "" {
		return &engine.ConfigError{
			Component: engine.ComponentCalcs,
			Plugin:    elem.PluginName,
			Reason:    "missing script",
		}
	}
	if _, err := tengo.NewScript([]byte(src)).Compile(); err != nil {
		return &engine.ConfigError{
			Component: engine.ComponentCalcs,
			Plugin:    elem.PluginName,
			Reason:    fmt.Sprintf("script does not compile: %v", err),
		}
	}
	return nil
}

func (p *scriptPlugin) Compute(elem engine.Element, rows []map[string]any) (any, error) {
	src, _ := elem.FormData["script"].(string)
	if src == "" {
		return nil, fmt.Errorf("script content is required")
	}

	script := tengo.NewScript([]byte(src))
	if err := script.Add("rows", tengoRows(rows)); err != nil {
		return nil, err
	}
	if field, _ := elem.FormData["field"].(string); field != "" {
		if err := script.Add("values", tengoColumn(rows, field)); err != nil {
			return nil, err
		}
	}

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile script: %w", err)
	}
	if err := compiled.Run(); err != nil {
		return nil, fmt.Errorf("failed to run script: %w", err)
	}
	return compiled.Get("result").Value(), nil
}

func tengoRows(rows []map[string]any) []any {
	out := make([]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(row))
		for k, v := range row {
			m[k] = v
		}
		out[i] = m
	}
	return out
}

func tengoColumn(rows []map[string]any, field string) []any {
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, row[field])
	}
	return out
}

func asFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("non-numeric value of type %T", v)
}
