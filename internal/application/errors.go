package application

import (
	"errors"
	"fmt"

	"github.com/example/liveclass-scheduler/internal/scheduler"
)

var (
	// ErrUnauthorized is returned when the caller is neither the course teacher nor an enrolled student.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrNoSession is returned when a course has no occurrence left to offer.
	ErrNoSession = errors.New("application: no session scheduled")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// NotJoinableError reports a join attempt refused by the eligibility gate.
type NotJoinableError struct {
	Decision scheduler.Decision
}

func (e *NotJoinableError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("application: session not joinable: %s", e.Decision.Reason)
}
