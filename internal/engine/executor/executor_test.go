package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ranguvenu/skf-sub003/internal/engine"
	"github.com/Ranguvenu/skf-sub003/internal/engine/permission"
	"github.com/Ranguvenu/skf-sub003/internal/engine/sqlgate"
	"github.com/Ranguvenu/skf-sub003/pkg/setexpr"
)

// stubDB routes queries by SQL substring, in declaration order, and keeps
// the statements it saw for assertions.
type stubDB struct {
	routes []stubRoute
	seen   []seenQuery
}

type stubRoute struct {
	contains string
	rows     []map[string]any
	err      error
}

type seenQuery struct {
	sql    string
	params map[string]any
}

func (s *stubDB) Query(_ context.Context, sqlText string, params map[string]any) ([]map[string]any, error) {
	s.seen = append(s.seen, seenQuery{sql: sqlText, params: params})
	for _, r := range s.routes {
		if strings.Contains(sqlText, r.contains) {
			return r.rows, r.err
		}
	}
	return nil, nil
}

func (s *stubDB) find(t *testing.T, contains string) seenQuery {
	t.Helper()
	for _, q := range s.seen {
		if strings.Contains(q.sql, contains) {
			return q
		}
	}
	t.Fatalf("no executed query contains %q", contains)
	return seenQuery{}
}

func newExecutor(db engine.DB) *ExecutorImpl {
	return NewExecutor(db, zap.NewNop(), Options{
		Prefix:  "mdl_",
		WWWRoot: "https://reports.example.org",
	})
}

func admin() engine.Identity {
	return engine.Identity{UserID: 42, IsAdmin: true}
}

func idRows(ids ...int64) []map[string]any {
	rows := make([]map[string]any, len(ids))
	for i, id := range ids {
		rows[i] = map[string]any{"id": id}
	}
	return rows
}

func usersDefinition(components ...engine.ComponentConfig) *engine.Definition {
	return &engine.Definition{
		ID:         "r-1",
		Name:       "enrolled users",
		Type:       engine.TypeUsers,
		Components: components,
	}
}

// Ten synthetic users: ages 21..40 in steps, countries alternating. The
// age > 30 condition matches {2,4,6,8,10}; country = US matches
// {1,2,3,4,5}; their intersection is {2,4}.
func TestRunConditionsIntersection(t *testing.T) {
	db := &stubDB{routes: []stubRoute{
		{contains: "u.age >", rows: idRows(2, 4, 6, 8, 10)},
		{contains: "u.country =", rows: idRows(1, 2, 3, 4, 5)},
		{contains: "COUNT(DISTINCT", rows: []map[string]any{{"total": int64(2)}}},
		{contains: "LIMIT", rows: []map[string]any{
			{"id": int64(2), "age": int64(32)},
			{"id": int64(4), "age": int64(34)},
		}},
	}}
	exec := newExecutor(db)

	def := usersDefinition(
		engine.ComponentConfig{Name: engine.ComponentColumns, Elements: []engine.Element{
			{PluginName: "field", FormData: map[string]any{"column": "age"}},
		}},
		engine.ComponentConfig{Name: engine.ComponentConditions, Elements: []engine.Element{
			{PluginName: "userfield", FormData: map[string]any{"field": "age", "operator": ">", "value": 30}},
			{PluginName: "userfield", FormData: map[string]any{"field": "country", "operator": "=", "value": "US"}},
		}},
	)
	def.ConditionExpr = "c1 and c2"

	res, err := exec.Run(context.Background(), def, &engine.RunRequest{
		Identity: admin(),
		Params:   map[string]any{"courses": int64(7)},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Total)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, int64(2), res.Rows[0]["id"])
	assert.Equal(t, int64(4), res.Rows[1]["id"])
	assert.Equal(t, []string{"id", "age"}, res.Columns)

	// The reduced set is injected as an IN clause into both variants.
	count := db.find(t, "COUNT(DISTINCT")
	assert.Contains(t, count.sql, "u.id IN (:cond_0, :cond_1)")
	assert.Equal(t, int64(2), count.params["cond_0"])
	assert.Equal(t, int64(4), count.params["cond_1"])
	data := db.find(t, "LIMIT")
	assert.Contains(t, data.sql, "u.id IN (:cond_0, :cond_1)")
}

// "not" complements against the entity's full ID set, fetched only when
// the expression needs it: users 1..10, age > 30 matches {2,4,6,8,10},
// country = US matches {1,2,3,4,5}, so "c1 and not c2" leaves {6,8,10}.
func TestRunConditionsComplement(t *testing.T) {
	db := &stubDB{routes: []stubRoute{
		{contains: "u.age >", rows: idRows(2, 4, 6, 8, 10)},
		{contains: "u.country =", rows: idRows(1, 2, 3, 4, 5)},
		{contains: "AS id FROM {user} u", rows: idRows(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)},
		{contains: "COUNT(DISTINCT", rows: []map[string]any{{"total": int64(3)}}},
	}}
	exec := newExecutor(db)

	def := usersDefinition(
		engine.ComponentConfig{Name: engine.ComponentColumns, Elements: []engine.Element{
			{PluginName: "field", FormData: map[string]any{"column": "age"}},
		}},
		engine.ComponentConfig{Name: engine.ComponentConditions, Elements: []engine.Element{
			{PluginName: "userfield", FormData: map[string]any{"field": "age", "operator": ">", "value": 30}},
			{PluginName: "userfield", FormData: map[string]any{"field": "country", "operator": "=", "value": "US"}},
		}},
	)
	def.ConditionExpr = "c1 and not c2"

	_, err := exec.Run(context.Background(), def, &engine.RunRequest{
		Identity: admin(),
		Params:   map[string]any{"courses": int64(7)},
	})
	require.NoError(t, err)

	count := db.find(t, "COUNT(DISTINCT")
	assert.Contains(t, count.sql, "u.id IN (:cond_0, :cond_1, :cond_2)")
	assert.Equal(t, int64(6), count.params["cond_0"])
	assert.Equal(t, int64(8), count.params["cond_1"])
	assert.Equal(t, int64(10), count.params["cond_2"])
}

// A validated expression must never fail a run with InvalidExpression, so
// the save-time check and the run path have to agree on "not".
func TestRunAcceptsValidatedComplementExpression(t *testing.T) {
	expr := "c1 and not c2"
	require.NoError(t, setexpr.Validate(expr, 2))

	db := &stubDB{routes: []stubRoute{
		{contains: "u.age >", rows: idRows(2)},
		{contains: "u.country =", rows: idRows(1)},
		{contains: "AS id FROM {user} u", rows: idRows(1, 2)},
		{contains: "COUNT(DISTINCT", rows: []map[string]any{{"total": int64(1)}}},
	}}
	exec := newExecutor(db)

	def := usersDefinition(
		engine.ComponentConfig{Name: engine.ComponentColumns, Elements: []engine.Element{
			{PluginName: "field", FormData: map[string]any{"column": "age"}},
		}},
		engine.ComponentConfig{Name: engine.ComponentConditions, Elements: []engine.Element{
			{PluginName: "userfield", FormData: map[string]any{"field": "age", "operator": ">", "value": 30}},
			{PluginName: "userfield", FormData: map[string]any{"field": "country", "operator": "=", "value": "US"}},
		}},
	)
	def.ConditionExpr = expr

	_, err := exec.Run(context.Background(), def, &engine.RunRequest{
		Identity: admin(),
		Params:   map[string]any{"courses": int64(7)},
	})
	require.NoError(t, err)
}

// MySQL's text protocol delivers the COUNT as a string; the total must
// still come through.
func TestRunCountFromStringColumn(t *testing.T) {
	db := &stubDB{routes: []stubRoute{
		{contains: "COUNT(DISTINCT", rows: []map[string]any{{"total": "5"}}},
	}}
	exec := newExecutor(db)

	res, err := exec.Run(context.Background(), usersDefinition(), &engine.RunRequest{
		Identity: admin(),
		Params:   map[string]any{"courses": int64(7)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Total)
}

func TestRunAwaitingParameters(t *testing.T) {
	db := &stubDB{}
	exec := newExecutor(db)

	_, err := exec.Run(context.Background(), usersDefinition(), &engine.RunRequest{Identity: admin()})

	var awaiting *engine.AwaitingParametersError
	require.ErrorAs(t, err, &awaiting)
	assert.Equal(t, []string{"courses"}, awaiting.Missing)
	assert.Empty(t, db.seen, "no query may run before required parameters are bound")
}

func TestRunRestrictedCallerScopesQueries(t *testing.T) {
	db := &stubDB{routes: []stubRoute{
		{contains: "{role_capability}", rows: nil}, // no manage capability
		{contains: "{role_assignment}", rows: []map[string]any{
			{"courseid": int64(7)}, {"courseid": int64(9)},
		}},
		{contains: "COUNT(DISTINCT", rows: []map[string]any{{"total": int64(1)}}},
	}}
	exec := newExecutor(db)

	identity := engine.Identity{UserID: 5, Roles: []string{"teacher"}}
	_, err := exec.Run(context.Background(), usersDefinition(), &engine.RunRequest{
		Identity: identity,
		Params:   map[string]any{"courses": int64(7)},
	})
	require.NoError(t, err)

	for _, contains := range []string{"COUNT(DISTINCT", "LIMIT"} {
		q := db.find(t, contains)
		assert.Contains(t, q.sql, "e.courseid IN (:visible_0, :visible_1)")
		assert.Equal(t, int64(7), q.params["visible_0"])
		assert.Equal(t, int64(9), q.params["visible_1"])
	}
}

func TestRunPagination(t *testing.T) {
	db := &stubDB{routes: []stubRoute{
		{contains: "COUNT(DISTINCT", rows: []map[string]any{{"total": int64(120)}}},
	}}
	exec := newExecutor(db)

	res, err := exec.Run(context.Background(), usersDefinition(), &engine.RunRequest{
		Identity: admin(),
		Params:   map[string]any{"courses": int64(7)},
		Page:     3,
		PageSize: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(120), res.Total)

	data := db.find(t, "LIMIT")
	assert.True(t, strings.HasSuffix(data.sql, "LIMIT 25 OFFSET 50"), data.sql)
}

func TestRunComputesCalcs(t *testing.T) {
	db := &stubDB{routes: []stubRoute{
		{contains: "COUNT(DISTINCT", rows: []map[string]any{{"total": int64(2)}}},
		{contains: "LIMIT", rows: []map[string]any{
			{"id": int64(1), "age": int64(20)},
			{"id": int64(2), "age": int64(40)},
		}},
	}}
	exec := newExecutor(db)

	def := usersDefinition(
		engine.ComponentConfig{Name: engine.ComponentColumns, Elements: []engine.Element{
			{PluginName: "field", FormData: map[string]any{"column": "age"}},
		}},
		engine.ComponentConfig{Name: engine.ComponentCalcs, Elements: []engine.Element{
			{PluginName: "avg", FormData: map[string]any{"field": "age"}},
		}},
	)

	res, err := exec.Run(context.Background(), def, &engine.RunRequest{
		Identity: admin(),
		Params:   map[string]any{"courses": int64(7)},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(30), res.Calcs["avg_age"])
}

func TestRunWrapsDatabaseError(t *testing.T) {
	boom := errors.New("connection reset")
	db := &stubDB{routes: []stubRoute{
		{contains: "COUNT(DISTINCT", err: boom},
	}}
	exec := newExecutor(db)

	_, err := exec.Run(context.Background(), usersDefinition(), &engine.RunRequest{
		Identity: admin(),
		Params:   map[string]any{"courses": int64(7)},
	})

	var execErr *engine.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.NotEmpty(t, execErr.RunID)
	assert.Contains(t, execErr.SQL, "COUNT(DISTINCT")
	assert.ErrorIs(t, err, boom)
}

func sqlDefinition(sqlText string) *engine.Definition {
	return &engine.Definition{
		ID:        "r-sql",
		Name:      "raw course list",
		Type:      engine.TypeSQL,
		CustomSQL: sqlText,
	}
}

func TestRunCustomSQL(t *testing.T) {
	db := &stubDB{routes: []stubRoute{
		{contains: "COUNT(*)", rows: []map[string]any{{"total": int64(3)}}},
		{contains: "report_data", rows: []map[string]any{
			{"fullname": "Algebra", "visible": int64(1)},
		}},
	}}
	exec := newExecutor(db)

	res, err := exec.Run(context.Background(),
		sqlDefinition("SELECT fullname, visible FROM {course} WHERE addedby = %%USERID%%"),
		&engine.RunRequest{Identity: admin()})
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.Total)
	assert.Equal(t, []string{"fullname", "visible"}, res.Columns)

	// Both variants wrap the substituted statement; the sentinel is gone.
	count := db.find(t, "COUNT(*)")
	assert.Contains(t, count.sql, "addedby = 42")
	assert.NotContains(t, count.sql, "%%USERID%%")
	data := db.find(t, "report_data")
	assert.Contains(t, data.sql, "addedby = 42")
	assert.Contains(t, data.sql, "LIMIT 50 OFFSET 0")
}

func TestRunCustomSQLRejectedByGate(t *testing.T) {
	db := &stubDB{}
	exec := newExecutor(db)

	_, err := exec.Run(context.Background(),
		sqlDefinition("SELECT * FROM {course}; DROP TABLE x"),
		&engine.RunRequest{Identity: admin()})

	var rej *sqlgate.RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Empty(t, db.seen, "rejected sql must never reach the database")
}

func TestRunCustomSQLRequiresManageCapability(t *testing.T) {
	db := &stubDB{routes: []stubRoute{
		{contains: "{role_capability}", rows: nil},
	}}
	exec := newExecutor(db)

	_, err := exec.Run(context.Background(),
		sqlDefinition("SELECT * FROM {course}"),
		&engine.RunRequest{Identity: engine.Identity{UserID: 5, Roles: []string{"student"}}})
	assert.ErrorIs(t, err, permission.ErrDenied)
}

func TestRunTrustedPermitsLowSecuritySQL(t *testing.T) {
	db := &stubDB{routes: []stubRoute{
		{contains: "COUNT(*)", rows: []map[string]any{{"total": int64(0)}}},
	}}
	exec := newExecutor(db)

	// INSERT is blocked interactively but allowed for the scheduler, and
	// trusted runs skip the capability check entirely.
	_, err := exec.RunTrusted(context.Background(),
		sqlDefinition("INSERT INTO {report_snapshot} SELECT id FROM {course}"),
		&engine.RunRequest{Identity: engine.Identity{UserID: 0}})
	require.NoError(t, err)
}
