/*
errors.go - Centralized error taxonomy

PURPOSE:
  All error kinds the store and consolidation engine produce, in one place.
  Callers branch with errors.Is / the predicate helpers; the structured
  types carry the context reports and API responses need.

ERROR CATEGORIES:
  1. Resolution errors - A legacy record could not be mapped to a project.
     Always recovered locally: the record is skipped and reported.
  2. Integrity errors - The store rejected a write (FK, unique, CHECK).
     Recovered locally: recorded as a failed write, batch continues.
  3. Transaction errors - A multi-row operation (cascade delete, upsert)
     could not commit. Hard failure of that operation; the store is left
     in its pre-operation state.
  4. Not-found - Read accessors for rows that don't exist.

SEE ALSO:
  - store.go: Which operations return which kinds
  - ../consolidate/report.go: How these map to per-record outcomes
*/
package studio

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnresolved is returned when a legacy record references a project
	// that cannot be found by id or name.
	ErrUnresolved = errors.New("unresolved project reference")

	// ErrIntegrity is returned when the store rejects a write for violating
	// a constraint (foreign key, uniqueness, status CHECK).
	ErrIntegrity = errors.New("integrity violation")

	// ErrTxFailed is returned when a transactional operation could not
	// commit. The store guarantees no partial effects remain.
	ErrTxFailed = errors.New("transaction failed")

	// ErrNotFound is returned by read accessors for missing rows.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnresolvedError identifies the legacy reference that failed to resolve.
// LegacyID is the raw candidate identifier from the record (0 if absent);
// Name is the display name that found no exact match ("" if absent).
type UnresolvedError struct {
	Name     string
	LegacyID int64
}

func (e *UnresolvedError) Error() string {
	switch {
	case e.Name != "" && e.LegacyID != 0:
		return fmt.Sprintf("no project with id %d or name %q", e.LegacyID, e.Name)
	case e.LegacyID != 0:
		return fmt.Sprintf("no project with id %d", e.LegacyID)
	case e.Name != "":
		return fmt.Sprintf("no project named %q", e.Name)
	}
	return "record carries no project reference"
}

func (e *UnresolvedError) Unwrap() error { return ErrUnresolved }

// IntegrityError wraps a constraint rejection with the operation that hit it.
type IntegrityError struct {
	Op    string // e.g. "insert payment"
	Cause error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// TxError wraps a failed transactional operation (cascade delete, upsert).
type TxError struct {
	Op    string
	Cause error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *TxError) Unwrap() error { return ErrTxFailed }

// NotFoundError names the missing row for API 404 bodies and logs.
type NotFoundError struct {
	Kind string // "project", "invoice", ...
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsUnresolved reports whether err is a resolution failure.
func IsUnresolved(err error) bool { return errors.Is(err, ErrUnresolved) }

// IsIntegrity reports whether err is a store constraint rejection.
func IsIntegrity(err error) bool { return errors.Is(err, ErrIntegrity) }

// IsTxFailure reports whether err is a failed transactional operation.
func IsTxFailure(err error) bool { return errors.Is(err, ErrTxFailed) }

// IsNotFound reports whether err indicates a missing row.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
