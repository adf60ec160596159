// Package query assembles the report statement out of independently
// contributed clause fragments. A State value is created fresh per run,
// threaded through the fixed stage order and consumed exactly once; stages
// and filter plugins append fragments and named parameters but never see
// each other directly.
package query

import (
	"fmt"
	"sort"
	"strings"
)

// SelectColumn is one projected expression. Aggregate columns trigger the
// group-by stage.
type SelectColumn struct {
	Name      string
	Expr      string
	Aggregate bool
}

// State is the mutable in-flight statement: clause fragments plus the
// parallel named-parameter map. Parameter names are unique across all
// contributing stages; a duplicate registration fails the build.
type State struct {
	CountExpr string
	Columns   []SelectColumn
	From      string
	Joins     []string
	Where     []string

	params map[string]any
}

func NewState() *State {
	return &State{params: make(map[string]any)}
}

// AddParam registers a named parameter. Registering the same name twice is
// a stage-collision bug and fails fast.
func (s *State) AddParam(name string, value any) error {
	if _, exists := s.params[name]; exists {
		return fmt.Errorf("duplicate query parameter %q", name)
	}
	s.params[name] = value
	return nil
}

// Params returns a copy of the parameter map.
func (s *State) Params() map[string]any {
	out := make(map[string]any, len(s.params))
	for k, v := range s.params {
		out[k] = v
	}
	return out
}

// AddSelect appends a projected column. Duplicate names are ignored so a
// designer listing the default column twice does not break the projection.
func (s *State) AddSelect(name, expr string, aggregate bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return
		}
	}
	s.Columns = append(s.Columns, SelectColumn{Name: name, Expr: expr, Aggregate: aggregate})
}

// AddJoin appends a join fragment, deduplicated so two filters needing the
// same table do not join it twice.
func (s *State) AddJoin(join string) {
	for _, j := range s.Joins {
		if j == join {
			return
		}
	}
	s.Joins = append(s.Joins, join)
}

// AddWhere appends one predicate; predicates are ANDed at assembly.
func (s *State) AddWhere(predicate string) {
	s.Where = append(s.Where, predicate)
}

// Rewrite applies fn to every where and join fragment. Filter plugins use
// it to replace their %%FILTER_*%% tokens with concrete predicates.
func (s *State) Rewrite(fn func(string) string) {
	for i, w := range s.Where {
		s.Where[i] = fn(w)
	}
	for i, j := range s.Joins {
		s.Joins[i] = fn(j)
	}
}

// Mode selects the statement variant the same State assembles into.
type Mode int

const (
	// ModeCount produces the COUNT(DISTINCT defaultColumn) variant used
	// purely for pagination totals.
	ModeCount Mode = iota
	// ModeData produces the projected, ordered data variant.
	ModeData
)

// SQL assembles the statement for the given mode and verifies that every
// named placeholder it references has a bound parameter. The assembly is a
// pure function of the State, so identical inputs yield byte-identical
// text.
func (s *State) SQL(mode Mode) (string, error) {
	if s.From == "" {
		return "", fmt.Errorf("query state has no FROM clause")
	}

	var b strings.Builder
	b.WriteString("SELECT ")

	groupBy := s.groupByExprs()

	switch mode {
	case ModeCount:
		if s.CountExpr == "" {
			return "", fmt.Errorf("query state has no count expression")
		}
		b.WriteString(s.CountExpr)
	case ModeData:
		if len(s.Columns) == 0 {
			return "", fmt.Errorf("query state has no projection")
		}
		parts := make([]string, 0, len(s.Columns))
		for _, c := range s.Columns {
			parts = append(parts, fmt.Sprintf("%s AS %s", c.Expr, c.Name))
		}
		b.WriteString(strings.Join(parts, ", "))
	}

	b.WriteString(" FROM ")
	b.WriteString(s.From)
	for _, j := range s.Joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	if len(s.Where) > 0 {
		b.WriteString(" WHERE ")
		preds := make([]string, len(s.Where))
		for i, w := range s.Where {
			preds[i] = "(" + w + ")"
		}
		b.WriteString(strings.Join(preds, " AND "))
	}
	if mode == ModeData && len(groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(groupBy, ", "))
	}
	if mode == ModeData {
		b.WriteString(" ORDER BY ")
		b.WriteString(s.orderExpr())
	}

	sqlText := b.String()
	if err := s.checkPlaceholders(sqlText); err != nil {
		return "", err
	}
	return sqlText, nil
}

// groupByExprs returns the non-aggregate expressions when at least one
// aggregate column is projected, nil otherwise. The group-by clause is
// emitted only when the select stage produced aggregates.
func (s *State) groupByExprs() []string {
	hasAggregate := false
	for _, c := range s.Columns {
		if c.Aggregate {
			hasAggregate = true
			break
		}
	}
	if !hasAggregate {
		return nil
	}
	var exprs []string
	for _, c := range s.Columns {
		if !c.Aggregate {
			exprs = append(exprs, c.Expr)
		}
	}
	return exprs
}

func (s *State) orderExpr() string {
	if len(s.Columns) > 0 {
		if groupBy := s.groupByExprs(); len(groupBy) > 0 {
			return groupBy[0]
		}
		return s.Columns[0].Expr
	}
	return "1"
}

// checkPlaceholders verifies every :name reference has a bound parameter.
// Missing bindings fail the build rather than reaching the database.
func (s *State) checkPlaceholders(sqlText string) error {
	var missing []string
	for _, name := range namedPlaceholders(sqlText) {
		if _, ok := s.params[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("unbound query parameters: %s", strings.Join(missing, ", "))
	}
	return nil
}

// namedPlaceholders extracts :name references, skipping "::" casts and
// quoted literals.
func namedPlaceholders(sqlText string) []string {
	var names []string
	inQuote := false
	for i := 0; i < len(sqlText); i++ {
		ch := sqlText[i]
		if ch == '\'' {
			inQuote = !inQuote
			continue
		}
		if inQuote || ch != ':' {
			continue
		}
		if i+1 < len(sqlText) && sqlText[i+1] == ':' {
			i++ // postgres cast
			continue
		}
		j := i + 1
		for j < len(sqlText) && isNameChar(sqlText[j]) {
			j++
		}
		if j > i+1 {
			names = append(names, sqlText[i+1:j])
			i = j - 1
		}
	}
	return names
}

func isNameChar(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}
