package service

import "fmt"

// ErrorKind maps a validation failure onto the HTTP status it is reported with.
type ErrorKind string

const (
	KindBadRequest    ErrorKind = "bad_request"
	KindUnprocessable ErrorKind = "unprocessable"
)

// ValidationError is returned when a request is rejected before detection runs.
type ValidationError struct {
	Kind    ErrorKind
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func BadRequest(format string, args ...any) *ValidationError {
	return &ValidationError{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

func Unprocessable(format string, args ...any) *ValidationError {
	return &ValidationError{Kind: KindUnprocessable, Message: fmt.Sprintf(format, args...)}
}

// DetectionError reports an unexpected failure inside the detector.
type DetectionError struct {
	Cause any
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detection failed: %v", e.Cause)
}
