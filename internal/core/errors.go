package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ValidationError marks malformed or missing input. Each instance corresponds
// to one user-correctable condition.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError marks a referenced entity that does not exist.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

func notFoundErrorf(format string, args ...any) error {
	return &NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError marks an operation that is legal in general but disallowed in
// the entity's current state: legacy or archived orders, already-posted orders,
// duplicate posting attempts.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

func conflictErrorf(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// Violations accumulates stage-gate violations keyed by a stable,
// machine-readable path ("<area>.<field>" or "lines.<lineID>.<field>") so a UI
// can route each message to the form field that caused it. The first message
// recorded for a key wins; duplicates are dropped.
type Violations map[string]string

func (v Violations) Add(key, msg string) {
	if _, ok := v[key]; ok {
		return
	}
	v[key] = msg
}

func (v Violations) Merge(other Violations) {
	for k, msg := range other {
		v.Add(k, msg)
	}
}

// Keys returns the violation keys in sorted order.
func (v Violations) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StageGateError carries every violation found by a stage gate evaluation.
// Gates never fail one field at a time: the caller always receives the
// complete correction list in a single error.
type StageGateError struct {
	Stage      Status
	Violations Violations
}

func (e *StageGateError) Error() string {
	keys := e.Violations.Keys()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Violations[k]))
	}
	return fmt.Sprintf("stage gate %s failed with %d violation(s): %s",
		e.Stage, len(keys), strings.Join(parts, "; "))
}

// As lets a StageGateError satisfy errors.As(&ValidationError{}) lookups:
// a gate failure is a validation failure with structure attached.
func (e *StageGateError) As(target any) bool {
	if ve, ok := target.(**ValidationError); ok {
		*ve = &ValidationError{Msg: e.Error()}
		return true
	}
	return false
}

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique-constraint violation.
// Generated reference numbers are the only columns expected to collide under
// concurrent retries; callers regenerate and retry the whole transaction.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// errVersionConflict signals that the order row changed between read and write.
// It is retried through the same bounded loop as reference collisions.
var errVersionConflict = errors.New("order version conflict")

// isRetryableTxError reports whether the whole transaction body should be
// re-attempted.
func isRetryableTxError(err error) bool {
	return isUniqueViolation(err) || errors.Is(err, errVersionConflict)
}
