// Package permission computes the caller's row-visibility restriction once
// per request and answers capability checks against the role tables.
package permission

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Ranguvenu/skf-sub003/internal/engine"
)

// ErrDenied is returned when the caller lacks the capability an operation
// requires.
var ErrDenied = errors.New("permission denied")

// Capabilities the report surface cares about. Manage implies an
// unrestricted view of every report's rows.
const (
	CapView   = "reports:view"
	CapManage = "reports:manage"
)

// Checker answers role-capability lookups against the SQL role tables.
type Checker struct {
	DB engine.DB
}

func NewChecker(db engine.DB) *Checker {
	return &Checker{DB: db}
}

// HasCapability reports whether any of the identity's roles grants the
// capability. Site admins hold every capability implicitly.
func (c *Checker) HasCapability(ctx context.Context, identity engine.Identity, capability string) (bool, error) {
	if identity.IsAdmin {
		return true, nil
	}
	if len(identity.Roles) == 0 {
		return false, nil
	}

	params := map[string]any{"capability": capability}
	placeholders := make([]string, len(identity.Roles))
	for i, role := range identity.Roles {
		name := "role_" + strconv.Itoa(i)
		params[name] = role
		placeholders[i] = ":" + name
	}

	rows, err := c.DB.Query(ctx, fmt.Sprintf(
		"SELECT 1 AS granted FROM {role_capability} rc JOIN {role} r ON rc.roleid = r.id "+
			"WHERE rc.capability = :capability AND r.shortname IN (%s)",
		strings.Join(placeholders, ", ")), params)
	if err != nil {
		return false, fmt.Errorf("capability lookup: %w", err)
	}
	return len(rows) > 0, nil
}

// Scope memoizes the caller's restriction for the duration of one request.
// It is never shared across requests: the restriction depends on the
// caller's identity and role assignments.
type Scope struct {
	checker  *Checker
	identity engine.Identity

	computed    bool
	restriction engine.Restriction
	err         error
}

func NewScope(checker *Checker, identity engine.Identity) *Scope {
	return &Scope{checker: checker, identity: identity}
}

// Restriction resolves the caller's visible-course allow-list. Admins and
// manage-capability holders are Unrestricted; everyone else gets the
// courses reachable through their role assignments, which may be empty.
func (s *Scope) Restriction(ctx context.Context) (engine.Restriction, error) {
	if s.computed {
		return s.restriction, s.err
	}
	s.restriction, s.err = s.compute(ctx)
	s.computed = true
	return s.restriction, s.err
}

func (s *Scope) compute(ctx context.Context) (engine.Restriction, error) {
	manage, err := s.checker.HasCapability(ctx, s.identity, CapManage)
	if err != nil {
		return engine.Restriction{}, err
	}
	if manage {
		return engine.Restriction{Unrestricted: true}, nil
	}

	rows, err := s.checker.DB.Query(ctx,
		"SELECT DISTINCT ra.courseid AS courseid FROM {role_assignment} ra "+
			"WHERE ra.userid = :userid ORDER BY ra.courseid",
		map[string]any{"userid": s.identity.UserID})
	if err != nil {
		return engine.Restriction{}, fmt.Errorf("role assignment lookup: %w", err)
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		if id, ok := engine.AsInt64(row["courseid"]); ok {
			ids = append(ids, id)
		}
	}
	return engine.Restriction{CourseIDs: ids}, nil
}
