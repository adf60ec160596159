package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ranguvenu/skf-sub003/internal/engine"
)

func calcElem(plugin string, form map[string]any) engine.Element {
	return engine.Element{PluginName: plugin, FormData: form}
}

var calcRows = []map[string]any{
	{"id": int64(1), "age": int64(20)},
	{"id": int64(2), "age": int64(30)},
	{"id": int64(3), "age": int64(40)},
	{"id": int64(4), "age": nil},
}

func TestAggregates(t *testing.T) {
	r := NewRegistry()

	out, err := r.ComputeAll([]engine.Element{
		calcElem("sum", map[string]any{"field": "age"}),
		calcElem("avg", map[string]any{"field": "age"}),
		calcElem("min", map[string]any{"field": "age"}),
		calcElem("max", map[string]any{"field": "age"}),
		calcElem("count", map[string]any{"field": "age"}),
	}, calcRows)
	require.NoError(t, err)

	assert.Equal(t, float64(90), out["sum_age"])
	assert.Equal(t, float64(30), out["avg_age"])
	assert.Equal(t, float64(20), out["min_age"])
	assert.Equal(t, float64(40), out["max_age"])
	// Nulls are not counted.
	assert.Equal(t, int64(3), out["count_age"])
}

func TestAggregateOverEmptyRows(t *testing.T) {
	r := NewRegistry()

	out, err := r.ComputeAll([]engine.Element{
		calcElem("sum", map[string]any{"field": "age"}),
	}, nil)
	require.NoError(t, err)
	assert.Nil(t, out["sum_age"])
}

func TestAggregateNonNumericField(t *testing.T) {
	r := NewRegistry()

	_, err := r.ComputeAll([]engine.Element{
		calcElem("sum", map[string]any{"field": "name"}),
	}, []map[string]any{{"name": "alice"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-numeric")
}

func TestValidateRejectsUnknownPluginAndMissingField(t *testing.T) {
	r := NewRegistry()

	err := r.Validate(calcElem("median", map[string]any{"field": "age"}))
	var cfg *engine.ConfigError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "median", cfg.Plugin)

	err = r.Validate(calcElem("sum", map[string]any{}))
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "missing field", cfg.Reason)
}

func TestScriptCalc(t *testing.T) {
	r := NewRegistry()

	elem := calcElem("script", map[string]any{
		"name":  "range",
		"field": "age",
		"script": `
lo := values[0]
hi := values[0]
for v in values {
	if v != undefined {
		if v < lo { lo = v }
		if v > hi { hi = v }
	}
}
result := hi - lo
`,
	})
	require.NoError(t, r.Validate(elem))

	out, err := r.ComputeAll([]engine.Element{elem}, calcRows[:3])
	require.NoError(t, err)
	assert.Equal(t, int64(20), out["script_range"])
}

func TestScriptSeesRows(t *testing.T) {
	r := NewRegistry()

	elem := calcElem("script", map[string]any{
		"name":   "n",
		"script": `result := len(rows)`,
	})
	out, err := r.ComputeAll([]engine.Element{elem}, calcRows)
	require.NoError(t, err)
	assert.Equal(t, int64(4), out["script_n"])
}

func TestScriptValidateRejectsBadSyntax(t *testing.T) {
	r := NewRegistry()

	err := r.Validate(calcElem("script", map[string]any{"script": "result :="}))
	var cfg *engine.ConfigError
	require.ErrorAs(t, err, &cfg)
	assert.Contains(t, cfg.Reason, "does not compile")
}
