package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ranguvenu/skf-sub003/internal/engine"
	"github.com/Ranguvenu/skf-sub003/internal/engine/query"
)

func coursesDef(plugins ...string) *engine.Definition {
	elems := make([]engine.Element, len(plugins))
	for i, p := range plugins {
		elems[i] = engine.Element{PluginName: p}
	}
	return &engine.Definition{
		Type:       "courses",
		Components: []engine.ComponentConfig{{Name: engine.ComponentFilters, Elements: elems}},
	}
}

func TestInactiveFilterIsNoOp(t *testing.T) {
	spec, err := engine.TypeSpecFor("courses")
	require.NoError(t, err)

	funcs, err := NewRegistry().Funcs(spec, coursesDef("courses", "daterange"),
		&engine.RunRequest{Params: map[string]any{}})
	require.NoError(t, err)
	assert.Empty(t, funcs, "filters without bound parameters must not contribute stage functions")
}

func TestActiveCoursesFilterAppendsPredicate(t *testing.T) {
	spec, err := engine.TypeSpecFor("courses")
	require.NoError(t, err)

	funcs, err := NewRegistry().Funcs(spec, coursesDef("courses"),
		&engine.RunRequest{Params: map[string]any{"courses": int64(12)}})
	require.NoError(t, err)
	require.Len(t, funcs, 1)

	st := query.NewState()
	require.NoError(t, funcs[0](st))
	assert.Contains(t, st.Where, "c.id = :filter_courses")
	assert.Equal(t, int64(12), st.Params()["filter_courses"])
}

func TestDaterangeFilterBounds(t *testing.T) {
	spec, err := engine.TypeSpecFor("courses")
	require.NoError(t, err)

	funcs, err := NewRegistry().Funcs(spec, coursesDef("daterange"),
		&engine.RunRequest{Params: map[string]any{"startdate": int64(1000), "enddate": int64(2000)}})
	require.NoError(t, err)
	require.Len(t, funcs, 1)

	st := query.NewState()
	require.NoError(t, funcs[0](st))
	assert.Contains(t, st.Where, "c.timecreated >= :filter_startdate")
	assert.Contains(t, st.Where, "c.timecreated <= :filter_enddate")
}

func TestUnknownFilterPlugin(t *testing.T) {
	spec, err := engine.TypeSpecFor("courses")
	require.NoError(t, err)

	var cfgErr *engine.ConfigError
	err = NewRegistry().Validate(spec, engine.Element{PluginName: "mystery"})
	require.ErrorAs(t, err, &cfgErr)
}

func TestValidateAgainstReportType(t *testing.T) {
	spec, err := engine.TypeSpecFor("courses")
	require.NoError(t, err)

	// The users filter has no meaning on a courses report.
	var cfgErr *engine.ConfigError
	err = NewRegistry().Validate(spec, engine.Element{PluginName: "users"})
	require.ErrorAs(t, err, &cfgErr)
}

func TestRewriteSQLReplacesActiveTokens(t *testing.T) {
	def := coursesDef("courses")
	raw := "SELECT * FROM {course} c WHERE c.visible = 1 %%FILTER_COURSES:c.id%%"

	sqlText, params, err := NewRegistry().RewriteSQL(def,
		&engine.RunRequest{Params: map[string]any{"courses": int64(5)}}, raw)
	require.NoError(t, err)

	assert.Equal(t, "SELECT * FROM {course} c WHERE c.visible = 1 AND c.id = :filter_courses", sqlText)
	assert.Equal(t, int64(5), params["filter_courses"])
}

func TestRewriteSQLStripsInactiveTokens(t *testing.T) {
	def := coursesDef("courses", "daterange")
	raw := "SELECT * FROM {course} c WHERE c.visible = 1 %%FILTER_COURSES:c.id%% %%FILTER_STARTTIME:c.startdate%%"

	sqlText, params, err := NewRegistry().RewriteSQL(def, &engine.RunRequest{Params: map[string]any{}}, raw)
	require.NoError(t, err)

	assert.NotContains(t, sqlText, "%%FILTER_")
	assert.Empty(t, params)
}
