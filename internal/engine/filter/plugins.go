package filter

import (
	"fmt"
	"regexp"

	"github.com/Ranguvenu/skf-sub003/internal/engine"
	"github.com/Ranguvenu/skf-sub003/internal/engine/query"
)

// paramFilter is the shape shared by the id-equality filters: when the
// request binds its parameter to a non-zero id, constrain the column to it.
type paramFilter struct {
	name   string // request parameter and bound placeholder name
	token  *regexp.Regexp
	column func(*engine.TypeSpec) string
}

func newParamFilter(name, token string, column func(*engine.TypeSpec) string) *paramFilter {
	return &paramFilter{
		name:   name,
		token:  regexp.MustCompile(`%%` + token + `:([^%]+)%%`),
		column: column,
	}
}

func (f *paramFilter) Validate(spec *engine.TypeSpec, _ engine.Element) error {
	if f.column(spec) == "" {
		return &engine.ConfigError{Component: engine.ComponentFilters, Plugin: f.name,
			Reason: fmt.Sprintf("report type %s has no column for this filter", spec.Name)}
	}
	return nil
}

func (f *paramFilter) Bind(spec *engine.TypeSpec, _ engine.Element, req *engine.RunRequest) (query.FilterFunc, bool) {
	value := req.Param(f.name)
	if value == 0 {
		return nil, false
	}
	column := f.column(spec)
	return func(st *query.State) error {
		if err := st.AddParam("filter_"+f.name, value); err != nil {
			return err
		}
		st.AddWhere(fmt.Sprintf("%s = :filter_%s", column, f.name))
		return nil
	}, true
}

func (f *paramFilter) Rewrite(sqlText string, req *engine.RunRequest, params map[string]any) string {
	value := req.Param(f.name)
	if value == 0 {
		return sqlText
	}
	if f.token.MatchString(sqlText) {
		params["filter_"+f.name] = value
		sqlText = f.token.ReplaceAllString(sqlText, fmt.Sprintf("AND $1 = :filter_%s", f.name))
	}
	return sqlText
}

// daterangeFilter bounds a time column between the startdate and enddate
// request parameters (unix seconds). Either bound may be absent.
type daterangeFilter struct{}

func (f *daterangeFilter) Validate(spec *engine.TypeSpec, _ engine.Element) error {
	if spec.Columns["timecreated"] == "" {
		return &engine.ConfigError{Component: engine.ComponentFilters, Plugin: "daterange",
			Reason: fmt.Sprintf("report type %s has no time column", spec.Name)}
	}
	return nil
}

func (f *daterangeFilter) Bind(spec *engine.TypeSpec, _ engine.Element, req *engine.RunRequest) (query.FilterFunc, bool) {
	start := req.Param("startdate")
	end := req.Param("enddate")
	if start == 0 && end == 0 {
		return nil, false
	}
	column := spec.Columns["timecreated"]
	return func(st *query.State) error {
		if start != 0 {
			if err := st.AddParam("filter_startdate", start); err != nil {
				return err
			}
			st.AddWhere(fmt.Sprintf("%s >= :filter_startdate", column))
		}
		if end != 0 {
			if err := st.AddParam("filter_enddate", end); err != nil {
				return err
			}
			st.AddWhere(fmt.Sprintf("%s <= :filter_enddate", column))
		}
		return nil
	}, true
}

var (
	startToken = regexp.MustCompile(`%%FILTER_STARTTIME:([^%]+)%%`)
	endToken   = regexp.MustCompile(`%%FILTER_ENDTIME:([^%]+)%%`)
)

func (f *daterangeFilter) Rewrite(sqlText string, req *engine.RunRequest, params map[string]any) string {
	if start := req.Param("startdate"); start != 0 && startToken.MatchString(sqlText) {
		params["filter_startdate"] = start
		sqlText = startToken.ReplaceAllString(sqlText, "AND $1 >= :filter_startdate")
	}
	if end := req.Param("enddate"); end != 0 && endToken.MatchString(sqlText) {
		params["filter_enddate"] = end
		sqlText = endToken.ReplaceAllString(sqlText, "AND $1 <= :filter_enddate")
	}
	return sqlText
}
