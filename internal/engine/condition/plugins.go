package condition

import (
	"context"
	"fmt"

	"github.com/Ranguvenu/skf-sub003/internal/engine"
	"github.com/Ranguvenu/skf-sub003/pkg/setexpr"
)

// Sentinels a condition value may carry instead of a literal. Resolved
// against the request context before the query is issued.
const (
	SentinelUserID   = "%%USERID%%"
	SentinelCourseID = "%%COURSEID%%"
)

var operators = map[string]string{
	"=":    "=",
	"!=":   "<>",
	">":    ">",
	"<":    "<",
	">=":   ">=",
	"<=":   "<=",
	"like": "LIKE",
}

// Columns a field condition may target, per entity. Narrower than the
// report schemas on purpose: conditions run their own standalone queries.
var fieldColumns = map[string]map[string]string{
	"course": {
		"fullname":  "c.fullname",
		"shortname": "c.shortname",
		"category":  "c.category",
		"startdate": "c.startdate",
	},
	"user": {
		"username":  "u.username",
		"firstname": "u.firstname",
		"lastname":  "u.lastname",
		"email":     "u.email",
		"country":   "u.country",
		"age":       "u.age",
	},
}

var fieldTables = map[string]struct{ table, alias, id string }{
	"course": {table: "course", alias: "c", id: "c.id"},
	"user":   {table: "user", alias: "u", id: "u.id"},
}

// fieldPlugin answers "entity field <op> value" with a single scoped query
// over the entity's table.
type fieldPlugin struct {
	entity string
}

func (p *fieldPlugin) decode(elem engine.Element) (column, op string, value any, err error) {
	field, _ := elem.FormData["field"].(string)
	column, ok := fieldColumns[p.entity][field]
	if !ok {
		return "", "", nil, &engine.ConfigError{Component: engine.ComponentConditions, Plugin: elem.PluginName,
			Reason: fmt.Sprintf("field %q is not available on %s conditions", field, p.entity)}
	}
	rawOp, _ := elem.FormData["operator"].(string)
	op, ok = operators[rawOp]
	if !ok {
		return "", "", nil, &engine.ConfigError{Component: engine.ComponentConditions, Plugin: elem.PluginName,
			Reason: fmt.Sprintf("unknown operator %q", rawOp)}
	}
	value, ok = elem.FormData["value"]
	if !ok {
		return "", "", nil, &engine.ConfigError{Component: engine.ComponentConditions, Plugin: elem.PluginName,
			Reason: "missing comparison value"}
	}
	return column, op, value, nil
}

func (p *fieldPlugin) Validate(elem engine.Element) error {
	_, _, _, err := p.decode(elem)
	return err
}

func (p *fieldPlugin) Evaluate(ctx context.Context, elem engine.Element, rc *Context) (setexpr.IDSet, error) {
	column, op, value, err := p.decode(elem)
	if err != nil {
		return nil, err
	}
	tbl := fieldTables[p.entity]
	rows, err := rc.DB.Query(ctx,
		fmt.Sprintf("SELECT %s AS id FROM {%s} %s WHERE %s %s :value", tbl.id, tbl.table, tbl.alias, column, op),
		map[string]any{"value": resolveSentinel(value, rc)})
	if err != nil {
		return nil, fmt.Errorf("%s condition: %w", elem.PluginName, err)
	}
	return rowsToSet(rows), nil
}

// enrolmentPlugin relates users and courses through the enrolment table.
// For user-entity reports it yields the users enrolled in a course; for
// course-entity reports the courses a user is enrolled in.
type enrolmentPlugin struct{}

func (p *enrolmentPlugin) Validate(elem engine.Element) error {
	if _, ok := elem.FormData["courseid"]; ok {
		return nil
	}
	if _, ok := elem.FormData["userid"]; ok {
		return nil
	}
	return &engine.ConfigError{Component: engine.ComponentConditions, Plugin: elem.PluginName,
		Reason: "requires a courseid or userid"}
}

func (p *enrolmentPlugin) Evaluate(ctx context.Context, elem engine.Element, rc *Context) (setexpr.IDSet, error) {
	var sqlText string
	var value any
	switch rc.Entity {
	case "user":
		sqlText = "SELECT en.userid AS id FROM {enrolment} en WHERE en.courseid = :value"
		value = elem.FormData["courseid"]
	case "course":
		sqlText = "SELECT en.courseid AS id FROM {enrolment} en WHERE en.userid = :value"
		value = elem.FormData["userid"]
	default:
		return nil, &engine.ConfigError{Component: engine.ComponentConditions, Plugin: elem.PluginName,
			Reason: fmt.Sprintf("not valid for %s rows", rc.Entity)}
	}
	if value == nil {
		return nil, &engine.ConfigError{Component: engine.ComponentConditions, Plugin: elem.PluginName,
			Reason: "missing enrolment target"}
	}
	rows, err := rc.DB.Query(ctx, sqlText, map[string]any{"value": resolveSentinel(value, rc)})
	if err != nil {
		return nil, fmt.Errorf("enrolment condition: %w", err)
	}
	return rowsToSet(rows), nil
}

func resolveSentinel(value any, rc *Context) any {
	switch value {
	case SentinelUserID:
		return rc.Identity.UserID
	case SentinelCourseID:
		return rc.CourseID
	}
	return value
}

func rowsToSet(rows []map[string]any) setexpr.IDSet {
	set := make(setexpr.IDSet, len(rows))
	for _, row := range rows {
		if id, ok := engine.AsInt64(row["id"]); ok {
			set.Add(id)
		}
	}
	return set
}
