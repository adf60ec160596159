package condition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ranguvenu/skf-sub003/internal/engine"
	"github.com/Ranguvenu/skf-sub003/pkg/setexpr"
)

type stubDB struct {
	lastSQL    string
	lastParams map[string]any
	rows       []map[string]any
}

func (s *stubDB) Query(_ context.Context, sqlText string, params map[string]any) ([]map[string]any, error) {
	s.lastSQL = sqlText
	s.lastParams = params
	return s.rows, nil
}

func userCtx(db engine.DB) *Context {
	return &Context{DB: db, Identity: engine.Identity{UserID: 42}, CourseID: 7, Entity: "user"}
}

func TestUnknownPluginIsConfigError(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Resolve(context.Background(), engine.Element{PluginName: "nope"}, userCtx(&stubDB{}))

	var cfgErr *engine.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "unknown condition plugin")
}

func TestUserFieldCondition(t *testing.T) {
	db := &stubDB{rows: []map[string]any{{"id": int64(1)}, {"id": int64(3)}}}
	reg := NewRegistry()

	set, err := reg.Resolve(context.Background(), engine.Element{
		PluginName: "userfield",
		FormData:   map[string]any{"field": "country", "operator": "=", "value": "US"},
	}, userCtx(db))
	require.NoError(t, err)

	assert.True(t, setexpr.NewIDSet(1, 3).Equal(set))
	assert.Contains(t, db.lastSQL, "FROM {user} u WHERE u.country = :value")
	assert.Equal(t, "US", db.lastParams["value"])
}

func TestFieldConditionRejectsUnknownFieldAndOperator(t *testing.T) {
	reg := NewRegistry()
	spec, err := engine.TypeSpecFor("users")
	require.NoError(t, err)

	var cfgErr *engine.ConfigError
	err = reg.Validate(spec, engine.Element{
		PluginName: "userfield",
		FormData:   map[string]any{"field": "password", "operator": "=", "value": "x"},
	})
	require.ErrorAs(t, err, &cfgErr)

	err = reg.Validate(spec, engine.Element{
		PluginName: "userfield",
		FormData:   map[string]any{"field": "email", "operator": "~", "value": "x"},
	})
	require.ErrorAs(t, err, &cfgErr)
}

func TestValidateChecksTypeCompatibility(t *testing.T) {
	reg := NewRegistry()
	spec, err := engine.TypeSpecFor("courses")
	require.NoError(t, err)

	// userfield conditions have no meaning on a courses report.
	var cfgErr *engine.ConfigError
	err = reg.Validate(spec, engine.Element{
		PluginName: "userfield",
		FormData:   map[string]any{"field": "email", "operator": "=", "value": "x"},
	})
	require.ErrorAs(t, err, &cfgErr)
}

func TestCurrentUserSentinelResolvedBeforeQuerying(t *testing.T) {
	db := &stubDB{}
	reg := NewRegistry()

	rc := &Context{DB: db, Identity: engine.Identity{UserID: 42}, CourseID: 7, Entity: "course"}
	_, err := reg.Resolve(context.Background(), engine.Element{
		PluginName: "enrolment",
		FormData:   map[string]any{"userid": SentinelUserID},
	}, rc)
	require.NoError(t, err)

	assert.Equal(t, int64(42), db.lastParams["value"])
	assert.Contains(t, db.lastSQL, "en.userid = :value")
}

func TestEnrolmentByEntity(t *testing.T) {
	db := &stubDB{rows: []map[string]any{{"id": int64(5)}}}
	reg := NewRegistry()

	set, err := reg.Resolve(context.Background(), engine.Element{
		PluginName: "enrolment",
		FormData:   map[string]any{"courseid": SentinelCourseID},
	}, userCtx(db))
	require.NoError(t, err)

	assert.True(t, setexpr.NewIDSet(5).Equal(set))
	assert.Contains(t, db.lastSQL, "en.courseid = :value")
	assert.Equal(t, int64(7), db.lastParams["value"])
}

func TestUniverse(t *testing.T) {
	db := &stubDB{rows: []map[string]any{{"id": int64(1)}, {"id": int64(2)}, {"id": int64(3)}}}
	reg := NewRegistry()

	set, err := reg.Universe(context.Background(), userCtx(db))
	require.NoError(t, err)

	assert.True(t, setexpr.NewIDSet(1, 2, 3).Equal(set))
	assert.Equal(t, "SELECT u.id AS id FROM {user} u", db.lastSQL)
}

func TestUniverseUnknownEntity(t *testing.T) {
	reg := NewRegistry()
	rc := &Context{DB: &stubDB{}, Identity: engine.Identity{UserID: 42}, Entity: "grade"}

	_, err := reg.Universe(context.Background(), rc)
	var cfgErr *engine.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestResolveSlotsNumbersFromOne(t *testing.T) {
	db := &stubDB{rows: []map[string]any{{"id": int64(9)}}}
	reg := NewRegistry()

	slots, err := reg.ResolveSlots(context.Background(), []engine.Element{
		{PluginName: "userfield", FormData: map[string]any{"field": "age", "operator": ">", "value": 30}},
		{PluginName: "userfield", FormData: map[string]any{"field": "country", "operator": "=", "value": "US"}},
	}, userCtx(db))
	require.NoError(t, err)

	require.Len(t, slots, 2)
	assert.Contains(t, slots, 1)
	assert.Contains(t, slots, 2)
	_, hasZero := slots[0]
	assert.False(t, hasZero)
}
