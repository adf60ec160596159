package engine

// TypeSpec describes one report type: its base table, the columns a
// designer may project or filter on, the searchable expressions and the
// basic parameters that must be bound before the report can run. The
// registry is closed; stored definitions referencing an unknown type fail
// at load, not at call time.
type TypeSpec struct {
	Name  string
	Table string // logical table, wrapped as {table} until execution
	Alias string

	// DefaultColumn feeds COUNT(DISTINCT ...) for pagination totals.
	DefaultColumn string

	// Columns maps designer-visible column names to SQL expressions. Also
	// the schema filter/condition configuration is validated against.
	Columns map[string]string

	// ColumnOrder keeps generated projections deterministic.
	ColumnOrder []string

	Searchable []string

	// BasicParams must be present in RunRequest.Params or the run returns
	// AwaitingParametersError.
	BasicParams []string

	// BaseJoins are structurally required; filters add their own.
	BaseJoins []string

	// BaseVisibility predicates apply to every run of this type
	// (confirmed/non-deleted/visible records).
	BaseVisibility []string

	// RestrictColumn is the expression the permission restriction's course
	// allow-list constrains.
	RestrictColumn string

	// Entity names what a row identifies (course, user); condition plugins
	// must produce ID sets over the same entity.
	Entity string

	// Filters lists the filter plugin names valid for this type.
	Filters []string

	// Conditions lists the condition plugin names valid for this type.
	Conditions []string
}

// Report type names.
const (
	TypeCourses = "courses"
	TypeUsers   = "users"
	TypeSQL     = "sql"
)

var typeSpecs = map[string]*TypeSpec{
	TypeCourses: {
		Name:          "courses",
		Table:         "course",
		Alias:         "c",
		DefaultColumn: "c.id",
		Columns: map[string]string{
			"id":          "c.id",
			"fullname":    "c.fullname",
			"shortname":   "c.shortname",
			"category":    "c.category",
			"startdate":   "c.startdate",
			"timecreated": "c.timecreated",
			"enrolments":  "(SELECT COUNT(1) FROM {enrolment} se WHERE se.courseid = c.id)",
		},
		ColumnOrder:    []string{"id", "fullname", "shortname", "category", "startdate", "timecreated", "enrolments"},
		Searchable:     []string{"c.fullname", "c.shortname"},
		BaseVisibility: []string{"c.visible = 1"},
		RestrictColumn: "c.id",
		Entity:         "course",
		Filters:        []string{"courses", "category", "daterange"},
		Conditions:     []string{"coursefield", "enrolment"},
	},
	TypeUsers: {
		Name:          "users",
		Table:         "user",
		Alias:         "u",
		DefaultColumn: "u.id",
		Columns: map[string]string{
			"id":          "u.id",
			"username":    "u.username",
			"firstname":   "u.firstname",
			"lastname":    "u.lastname",
			"email":       "u.email",
			"country":     "u.country",
			"age":         "u.age",
			"courseid":    "e.courseid",
			"timecreated": "u.timecreated",
		},
		ColumnOrder:    []string{"id", "username", "firstname", "lastname", "email", "country", "age", "courseid", "timecreated"},
		Searchable:     []string{"u.firstname", "u.lastname", "u.username", "u.email"},
		BasicParams:    []string{"courses"},
		BaseJoins:      []string{"JOIN {enrolment} e ON e.userid = u.id"},
		BaseVisibility: []string{"u.confirmed = 1", "u.deleted = 0", "e.courseid = :basic_courses"},
		RestrictColumn: "e.courseid",
		Entity:         "user",
		Filters:        []string{"users", "daterange"},
		Conditions:     []string{"userfield", "enrolment"},
	},
	// The sql type has no pipeline schema: the statement is authored by a
	// trusted user and guarded by the safety gate instead.
	TypeSQL: {
		Name:   TypeSQL,
		Entity: "row",
	},
}

// TypeSpecFor resolves a report type name. Unknown names are a
// configuration error.
func TypeSpecFor(name string) (*TypeSpec, error) {
	spec, ok := typeSpecs[name]
	if !ok {
		return nil, &ConfigError{Reason: "unknown report type " + name}
	}
	return spec, nil
}

// HasColumn reports whether the designer-visible column exists for this
// type.
func (s *TypeSpec) HasColumn(name string) bool {
	_, ok := s.Columns[name]
	return ok
}

// AllowsFilter reports whether the named filter plugin is valid for this
// type.
func (s *TypeSpec) AllowsFilter(plugin string) bool {
	for _, f := range s.Filters {
		if f == plugin {
			return true
		}
	}
	return false
}

// AllowsCondition reports whether the named condition plugin is valid for
// this type.
func (s *TypeSpec) AllowsCondition(plugin string) bool {
	for _, c := range s.Conditions {
		if c == plugin {
			return true
		}
	}
	return false
}
