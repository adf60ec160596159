package engine

import (
	"fmt"
	"strings"
)

// ConfigError reports a malformed report definition: an unknown plugin
// name, a filter referencing a column the report's schema does not have,
// an unknown component. Surfaced to the report designer at save time and
// re-checked defensively before a pipeline ever runs.
type ConfigError struct {
	Component string
	Plugin    string
	Reason    string
}

func (e *ConfigError) Error() string {
	parts := []string{"report configuration"}
	if e.Component != "" {
		parts = append(parts, "component "+e.Component)
	}
	if e.Plugin != "" {
		parts = append(parts, "plugin "+e.Plugin)
	}
	return fmt.Sprintf("%s: %s", strings.Join(parts, ", "), e.Reason)
}

// AwaitingParametersError is not a failure: the report cannot run until the
// caller binds the listed basic parameters (e.g. picks a course).
type AwaitingParametersError struct {
	Missing []string
}

func (e *AwaitingParametersError) Error() string {
	return fmt.Sprintf("report awaiting required parameters: %s", strings.Join(e.Missing, ", "))
}

// ExecutionError wraps a database failure during a report run. SQL carries
// the sanitized statement text (never raw user input) for diagnostics; the
// HTTP layer surfaces only a generic failure to non-privileged callers.
type ExecutionError struct {
	RunID string
	SQL   string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("report execution %s failed: %v", e.RunID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
