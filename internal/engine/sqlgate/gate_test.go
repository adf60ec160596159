package sqlgate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAllowsPlainSelect(t *testing.T) {
	g := New("mdl_")
	err := g.Validate("SELECT * FROM {course} WHERE id = 1", ModeHigh)
	assert.NoError(t, err)
}

func TestValidateRejectsSemicolon(t *testing.T) {
	g := New("mdl_")
	err := g.Validate("SELECT * FROM {course}; DROP TABLE x", ModeHigh)
	require.Error(t, err)

	var rej *RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "statement separator", rej.Rule)
}

func TestValidateRejectsBlockedKeywords(t *testing.T) {
	g := New("mdl_")
	cases := []string{
		"DROP TABLE {course}",
		"DELETE FROM {user} WHERE id = 1",
		"UPDATE {user} SET suspended = 1",
		"TRUNCATE {log}",
		"GRANT ALL ON x TO y",
		"drop table {course}", // case-insensitive
	}
	for _, sqlText := range cases {
		var rej *RejectedError
		err := g.Validate(sqlText, ModeHigh)
		require.Error(t, err, sqlText)
		require.True(t, errors.As(err, &rej), sqlText)
		assert.Equal(t, "blocked keyword", rej.Rule, sqlText)
	}
}

func TestValidateKeywordNeedsWordBoundary(t *testing.T) {
	g := New("mdl_")
	// "created" contains CREATE but is not the keyword.
	assert.NoError(t, g.Validate("SELECT timecreated FROM {course}", ModeHigh))
	// "updated_at" contains UPDATE but not on a word boundary.
	assert.NoError(t, g.Validate("SELECT updated_at FROM {course}", ModeHigh))
}

func TestValidateModeLowPermitsInsertCreate(t *testing.T) {
	g := New("mdl_")
	sqlText := "INSERT INTO {report_snapshot} SELECT * FROM {course}"

	err := g.Validate(sqlText, ModeHigh)
	require.Error(t, err)
	var rej *RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "blocked keyword", rej.Rule)

	assert.NoError(t, g.Validate(sqlText, ModeLow))
}

func TestValidateRejectsPrefixLiteral(t *testing.T) {
	g := New("mdl_")
	err := g.Validate("SELECT * FROM mdl_course WHERE id = 1", ModeHigh)
	require.Error(t, err)

	var rej *RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "table prefix", rej.Rule)
	assert.Contains(t, rej.Detail, "mdl_course")
}

func TestSubstituteTokens(t *testing.T) {
	g := New("mdl_")
	sc := SubstitutionContext{
		UserID:   42,
		CourseID: 7,
		WWWRoot:  "https://reports.example.org",
	}

	out := g.Substitute("SELECT %%USERID%%, %%COURSEID%%, '%%WWWROOT%%/view' FROM {user}", sc)
	assert.Equal(t, "SELECT 42, 7, 'https://reports.example.org/view' FROM {user}", out)
}

func TestSubstituteIdempotent(t *testing.T) {
	g := New("mdl_")
	sc := SubstitutionContext{UserID: 42, StartTime: 1000, EndTime: 2000}

	once := g.Substitute("WHERE userid = %%USERID%% AND t BETWEEN %%STARTTIME%% AND %%ENDTIME%%", sc)
	twice := g.Substitute(once, sc)
	assert.Equal(t, once, twice)
}

func TestSubstituteLeavesFilterTokens(t *testing.T) {
	g := New("mdl_")
	out := g.Substitute("WHERE 1=1 %%FILTER_COURSES:c.id%%", SubstitutionContext{})
	assert.Equal(t, "WHERE 1=1 %%FILTER_COURSES:c.id%%", out)
}
