package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Wire-format field names used for field-level validation reporting.
const (
	FieldMemberID      = "member_id"
	FieldContributedAt = "contributed_at"
	FieldNotes         = "notes"
)

var (
	// ErrNotFound means a referenced contribution or member does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the actor lacks permission for the requested action.
	// Authorization failures short-circuit before any data access.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports malformed or out-of-range input field by field.
// The request is rejected as a whole; no partial write happens.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

// Add attaches a message to a field, keeping the first message per field.
func (e *ValidationError) Add(field, message string) {
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// DuplicatePeriodError is the uniqueness-invariant violation: the member
// already has a contribution recorded for the period. It is a validation
// error attached to the contribution date, not a generic failure.
type DuplicatePeriodError struct {
	MemberID int64
	Period   Period
}

func (e *DuplicatePeriodError) Error() string {
	return fmt.Sprintf("member %d already has a contribution for %04d-%02d",
		e.MemberID, e.Period.Year, e.Period.Month)
}

// Validation renders the conflict as a field-level error on the date input,
// matching how it is reported to callers.
func (e *DuplicatePeriodError) Validation() *ValidationError {
	ve := NewValidationError()
	ve.Add(FieldContributedAt, "this member already has a contribution for the selected month")
	return ve
}

// AsValidation extracts a field-level error map from err, expanding a
// duplicate-period conflict into its date-field form. Returns nil when err
// carries no field information (infrastructure failures stay generic).
func AsValidation(err error) *ValidationError {
	var dup *DuplicatePeriodError
	if errors.As(err, &dup) {
		return dup.Validation()
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}
