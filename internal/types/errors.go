package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrClaimLost is returned when a guarded write finds the claim held
	// by another run or released.
	ErrClaimLost = errors.New("claim lost")
	// ErrAbsorbingLabel is returned when a write would replace an ERROR or
	// EXCLUDED label.
	ErrAbsorbingLabel = errors.New("article has an absorbing label")
)

type FilteredError struct {
	FilterName string
	RecordID   string
	Reason     string
	Details    map[string]interface{}
}

func (e *FilteredError) Error() string {
	return fmt.Sprintf("filtered by %s: %s (record: %s)", e.FilterName, e.Reason, e.RecordID)
}

func IsFiltered(err error) bool {
	var fe *FilteredError
	return errors.As(err, &fe)
}

func NewFilteredError(filterName, recordID, reason string) *FilteredError {
	return &FilteredError{
		FilterName: filterName,
		RecordID:   recordID,
		Reason:     reason,
		Details:    make(map[string]interface{}),
	}
}

func (e *FilteredError) WithDetail(key string, value interface{}) *FilteredError {
	e.Details[key] = value
	return e
}

// Classifier failure codes.
const (
	CodeRetriesExhausted  = "retries_exhausted"
	CodeMalformedResponse = "malformed_response"
	CodeProviderError     = "provider_error"
	CodeMissingResult     = "missing_result"
	CodeTimeout           = "timeout"
	CodeRateLimited       = "rate_limited"
	CodeTransport         = "transport_error"
)

// ClassifierError describes a failed call to the classification endpoint.
type ClassifierError struct {
	Code       string
	Message    string
	StatusCode int
	Transient  bool
}

func (e *ClassifierError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func IsTransient(err error) bool {
	var ce *ClassifierError
	if errors.As(err, &ce) {
		return ce.Transient
	}
	return false
}

// NewStatusError maps an HTTP status from the classification endpoint.
// 429 and 5xx are transient, other statuses are permanent.
func NewStatusError(status int, message string) *ClassifierError {
	code := fmt.Sprintf("http_%d", status)
	transient := status == 429 || status >= 500
	if status == 429 {
		code = CodeRateLimited
	}
	return &ClassifierError{
		Code:       code,
		Message:    message,
		StatusCode: status,
		Transient:  transient,
	}
}
