// Package domain defines the core data model and errors for the cleaning engine.
package domain

import "fmt"

// IntegrityError indicates a structurally invalid row or schema:
// a row id below 1, a schema/value length mismatch, a nil schema or
// value vector, or a projection target column missing from the schema.
type IntegrityError struct {
	Message string
}

func (e *IntegrityError) Error() string { return e.Message }

// StoreUnavailableError indicates a connection or query failure while
// synchronizing against the backing store.
type StoreUnavailableError struct {
	Message string
	Err     error
}

func (e *StoreUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// AssemblyError indicates a failure while building a rule's flow.
// It aborts the whole batch before any flow executes.
type AssemblyError struct {
	Message string
	Err     error
}

func (e *AssemblyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AssemblyError) Unwrap() error { return e.Err }

// LookupError indicates a request for a column absent from the current schema.
type LookupError struct {
	Message string
}

func (e *LookupError) Error() string { return e.Message }

// TypeError indicates a cast of a value to an incompatible type.
type TypeError struct {
	Message string
}

func (e *TypeError) Error() string { return e.Message }

// ErrIntegrity creates an IntegrityError with a formatted message.
func ErrIntegrity(format string, args ...interface{}) *IntegrityError {
	return &IntegrityError{Message: fmt.Sprintf(format, args...)}
}

// ErrStoreUnavailable creates a StoreUnavailableError wrapping err.
func ErrStoreUnavailable(err error, format string, args ...interface{}) *StoreUnavailableError {
	return &StoreUnavailableError{Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrAssembly creates an AssemblyError wrapping err.
func ErrAssembly(err error, format string, args ...interface{}) *AssemblyError {
	return &AssemblyError{Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrLookup creates a LookupError with a formatted message.
func ErrLookup(format string, args ...interface{}) *LookupError {
	return &LookupError{Message: fmt.Sprintf(format, args...)}
}

// ErrType creates a TypeError with a formatted message.
func ErrType(format string, args ...interface{}) *TypeError {
	return &TypeError{Message: fmt.Sprintf(format, args...)}
}
