package overrides

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingRequiredField is returned when an intent lacks a required field.
	ErrMissingRequiredField = errors.New("overrides: missing required field")
	// ErrInvalidSelection is returned when a selection is not a valid child of its parent.
	ErrInvalidSelection = errors.New("overrides: invalid selection")
	// ErrCatalogUnavailable is returned when the remote catalog cannot be reached.
	ErrCatalogUnavailable = errors.New("overrides: catalog unavailable")
	// ErrTransportFailure is returned when a submission got no response.
	ErrTransportFailure = errors.New("overrides: transport failure")
	// ErrRejected is returned when the remote system refused a submission.
	ErrRejected = errors.New("overrides: rejected")
	// ErrCertificateMismatch is returned when a record belongs to another certificate.
	ErrCertificateMismatch = errors.New("overrides: certificate mismatch")
	// ErrInvalidOrder is returned when order indexes are not exactly 1..n.
	ErrInvalidOrder = errors.New("overrides: invalid order index")
	// ErrInvalidCertificateID is returned for malformed certificate ids.
	ErrInvalidCertificateID = errors.New("overrides: invalid certificate id")
	// ErrEmptySet is returned when a set has no records.
	ErrEmptySet = errors.New("overrides: empty set")
)

// MissingRequiredFieldError names every absent field of one intent.
type MissingRequiredFieldError struct {
	// Position is the 1-based intent position, 0 when built standalone.
	Position int
	Fields   []string
}

func (e *MissingRequiredFieldError) Error() string {
	if e.Position > 0 {
		return fmt.Sprintf("overrides: intent %d: missing required field(s): %s", e.Position, strings.Join(e.Fields, ", "))
	}
	return "overrides: missing required field(s): " + strings.Join(e.Fields, ", ")
}

func (e *MissingRequiredFieldError) Unwrap() error { return ErrMissingRequiredField }

// InvalidSelectionError describes a selection that violates the cascade.
type InvalidSelectionError struct {
	Slot   Slot
	ID     int64
	Reason string
}

func (e *InvalidSelectionError) Error() string {
	return fmt.Sprintf("overrides: invalid %s %d: %s", e.Slot, e.ID, e.Reason)
}

func (e *InvalidSelectionError) Unwrap() error { return ErrInvalidSelection }

// Level mirrors how callers react to a failure.
type Level int

const (
	LevelNone Level = iota
	// LevelRecoverable failures may be corrected or retried.
	LevelRecoverable
	// LevelFatal failures end the current attempt.
	LevelFatal
	// LevelTerminal failures end the process.
	LevelTerminal
)

func (l Level) String() string {
	switch l {
	case LevelRecoverable:
		return "recoverable"
	case LevelFatal:
		return "fatal"
	case LevelTerminal:
		return "terminal"
	default:
		return "none"
	}
}

// Severity classifies err into a Level.
func Severity(err error) Level {
	switch {
	case err == nil:
		return LevelNone
	case errors.Is(err, ErrRejected):
		return LevelFatal
	case errors.Is(err, ErrMissingRequiredField),
		errors.Is(err, ErrInvalidSelection),
		errors.Is(err, ErrCertificateMismatch),
		errors.Is(err, ErrInvalidOrder),
		errors.Is(err, ErrInvalidCertificateID),
		errors.Is(err, ErrCatalogUnavailable),
		errors.Is(err, ErrTransportFailure):
		return LevelRecoverable
	default:
		return LevelFatal
	}
}
