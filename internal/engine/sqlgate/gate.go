// Package sqlgate guards the custom-SQL report path. Privileged users type
// free-form SQL by design, so the gate is a blocklist, not a parser: it
// rejects obviously mutating statements, bare statement separators and
// attempts to bypass the logical-table abstraction, then substitutes the
// %%TOKEN%% placeholders. This is an accepted, documented weak defense for
// a trusted-author feature, not a general injection barrier.
package sqlgate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Mode selects how strict the gate is. High is the interactive default;
// Low is reserved for trusted, non-interactive execution (scheduled runs)
// and additionally permits CREATE, INSERT and INTO.
type Mode string

const (
	ModeHigh Mode = "high"
	ModeLow  Mode = "low"
)

// RejectedError names the specific rule a statement violated. Surfaced
// verbatim to the author of the SQL.
type RejectedError struct {
	Rule   string
	Detail string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("sql rejected (%s): %s", e.Rule, e.Detail)
}

var blockedAlways = []string{
	"ALTER", "DELETE", "DROP", "GRANT", "TRUNCATE", "UPDATE",
	"SET", "VACUUM", "REINDEX", "DISCARD", "LOCK",
}

var blockedHighOnly = []string{"CREATE", "INSERT", "INTO"}

// Gate validates and rewrites custom report SQL. Prefix is the physical
// table-name prefix the {table} templating maps to; its literal appearance
// in authored SQL is a bypass attempt.
type Gate struct {
	prefix  string
	always  []*regexp.Regexp
	high    []*regexp.Regexp
	literal *regexp.Regexp
}

func New(prefix string) *Gate {
	g := &Gate{prefix: prefix}
	for _, kw := range blockedAlways {
		g.always = append(g.always, keywordPattern(kw))
	}
	for _, kw := range blockedHighOnly {
		g.high = append(g.high, keywordPattern(kw))
	}
	if prefix != "" {
		g.literal = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(prefix) + `[a-z][a-z0-9_]*`)
	}
	return g
}

func keywordPattern(kw string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + kw + `\b`)
}

// Validate checks sqlText against the mode's rules; the returned error is
// a *RejectedError naming the violated rule.
func (g *Gate) Validate(sqlText string, mode Mode) error {
	if strings.Contains(sqlText, ";") {
		return &RejectedError{Rule: "statement separator", Detail: "semicolons are not allowed"}
	}

	for _, re := range g.always {
		if m := re.FindString(sqlText); m != "" {
			return &RejectedError{Rule: "blocked keyword", Detail: strings.ToUpper(m) + " is not allowed"}
		}
	}
	if mode != ModeLow {
		for _, re := range g.high {
			if m := re.FindString(sqlText); m != "" {
				return &RejectedError{Rule: "blocked keyword",
					Detail: strings.ToUpper(m) + " is not allowed in high security mode"}
			}
		}
	}

	if g.literal != nil {
		if m := g.literal.FindString(sqlText); m != "" {
			return &RejectedError{Rule: "table prefix",
				Detail: fmt.Sprintf("reference tables as {name}, not %q", m)}
		}
	}
	return nil
}

// SubstitutionContext carries the request-scoped values the template
// tokens expand to.
type SubstitutionContext struct {
	UserID     int64
	CourseID   int64
	CategoryID int64
	StartTime  int64
	EndTime    int64
	WWWRoot    string
}

// Substitute rewrites the recognized %%TOKEN%% placeholders. It is a pure
// string rewrite, deterministic and idempotent: substituted text contains
// no matching tokens, so running it again is a no-op. %%FILTER_*%% tokens
// are owned by the filter components and left untouched here.
func (g *Gate) Substitute(sqlText string, sc SubstitutionContext) string {
	replacer := strings.NewReplacer(
		"%%USERID%%", strconv.FormatInt(sc.UserID, 10),
		"%%COURSEID%%", strconv.FormatInt(sc.CourseID, 10),
		"%%CATEGORYID%%", strconv.FormatInt(sc.CategoryID, 10),
		"%%STARTTIME%%", strconv.FormatInt(sc.StartTime, 10),
		"%%ENDTIME%%", strconv.FormatInt(sc.EndTime, 10),
		"%%WWWROOT%%", sc.WWWRoot,
	)
	return replacer.Replace(sqlText)
}
