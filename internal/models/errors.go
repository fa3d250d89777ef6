package models

import (
	"fmt"
	"strings"
)

// InvalidDateFormatError reports a date that is not a YYYY-MM-DD calendar date.
type InvalidDateFormatError struct {
	Field string
	Value string
}

func (e *InvalidDateFormatError) Error() string {
	return fmt.Sprintf("invalid format for %s %q: use YYYY-MM-DD", e.Field, e.Value)
}

type InvalidRangeError struct {
	Start string
	End   string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("end date %s cannot come earlier than start date %s", e.End, e.Start)
}

// InvalidEnumError reports a value outside one of the closed enumerations
// (periods, centers, variables, frequencies).
type InvalidEnumError struct {
	Kind    string
	Value   string
	Allowed []string
}

func (e *InvalidEnumError) Error() string {
	return fmt.Sprintf("%q is not a valid %s, choices are %s", e.Value, e.Kind, strings.Join(e.Allowed, " "))
}

type UnsupportedParameterError struct {
	Params    []string
	Supported []string
}

func (e *UnsupportedParameterError) Error() string {
	return fmt.Sprintf("unsupported parameter(s): %s. Only supports %s",
		strings.Join(e.Params, ", "), strings.Join(e.Supported, ", "))
}

type MissingParameterError struct {
	Param string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("parameter %q is required", e.Param)
}

// ValidationError wraps a failed struct validation of query parameters.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid parameters: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// FetchError is returned when the availability endpoint answers with a non-200 status.
type FetchError struct {
	Status int
	Body   string
}

func (e *FetchError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fetch snapshot: status %d", e.Status)
	}
	return fmt.Sprintf("fetch snapshot: status %d: %s", e.Status, e.Body)
}

// TransportError wraps network-level failures, including timeouts.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "fetch snapshot: transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

type DanglingReferenceError struct {
	WigosID string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("transmission references unknown station %s", e.WigosID)
}
