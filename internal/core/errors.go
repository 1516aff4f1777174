package core

import "fmt"

// ErrorMessage is the common base of the domain error types.
type ErrorMessage struct {
	Message string
}

func (e *ErrorMessage) Error() string {
	return e.Message
}

// FormatError reports malformed statement input. Row carries the offending
// row when one is known.
type FormatError struct {
	ErrorMessage
	Row []string
}

func NewFormatError(message string, row []string) *FormatError {
	if len(row) > 0 {
		message = fmt.Sprintf("%s (row: %v)", message, row)
	}
	return &FormatError{ErrorMessage: ErrorMessage{Message: message}, Row: row}
}

// DuplicateConflictError is raised when statement rows that must merge
// disagree on currency. errors.As matches it as a *FormatError too.
type DuplicateConflictError struct {
	ErrorMessage
	Key      string
	Existing string
	Incoming string
}

func NewDuplicateConflictError(key, existing, incoming string) *DuplicateConflictError {
	return &DuplicateConflictError{
		ErrorMessage: ErrorMessage{Message: fmt.Sprintf("currency mismatch for %s: %s vs %s", key, existing, incoming)},
		Key:          key,
		Existing:     existing,
		Incoming:     incoming,
	}
}

func (e *DuplicateConflictError) Unwrap() error {
	return &FormatError{ErrorMessage: e.ErrorMessage}
}

type RateUnavailableError struct {
	ErrorMessage
	Date     string
	Currency string
	Cause    error
}

func NewRateUnavailableError(date, currency string, cause error) *RateUnavailableError {
	msg := fmt.Sprintf("exchange rate unavailable for %s on %s", currency, date)
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return &RateUnavailableError{
		ErrorMessage: ErrorMessage{Message: msg},
		Date:         date,
		Currency:     currency,
		Cause:        cause,
	}
}

func (e *RateUnavailableError) Unwrap() error { return e.Cause }

// CoverageError means the holiday data does not span a needed date.
type CoverageError struct {
	ErrorMessage
	Date string
}

func NewCoverageError(message, date string) *CoverageError {
	return &CoverageError{
		ErrorMessage: ErrorMessage{Message: fmt.Sprintf("%s: %s", message, date)},
		Date:         date,
	}
}

type ProtocolError struct {
	ErrorMessage
	Cause error
}

func NewProtocolError(message string, cause error) *ProtocolError {
	if cause != nil {
		message = fmt.Sprintf("%s: %v", message, cause)
	}
	return &ProtocolError{ErrorMessage: ErrorMessage{Message: message}, Cause: cause}
}

func (e *ProtocolError) Unwrap() error { return e.Cause }
