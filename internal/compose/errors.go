package compose

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failed composition or edit.
type ErrorCode string

const (
	// The source could not be decoded (corrupt image or document).
	ErrorDecode ErrorCode = "DECODE_ERROR"
	// The source is not one of the accepted formats.
	ErrorUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	// The document assembler failed to produce output.
	ErrorEncode ErrorCode = "ENCODE_ERROR"
)

// WarningCode classifies a non-fatal condition.
type WarningCode string

const WarningSize WarningCode = "SIZE_WARNING"

// Error is the single failure reported for a run.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Warning is reported alongside a successful result.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

func NewDecodeError(what string, cause error) *Error {
	return &Error{Code: ErrorDecode, Message: fmt.Sprintf("could not decode %s", what), Cause: cause}
}

func NewUnsupportedFormatError(mime string) *Error {
	return &Error{Code: ErrorUnsupportedFormat, Message: fmt.Sprintf("unsupported format %q", mime)}
}

func NewEncodeError(cause error) *Error {
	return &Error{Code: ErrorEncode, Message: "could not generate the document", Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

func IsDecode(err error) bool      { return hasCode(err, ErrorDecode) }
func IsUnsupported(err error) bool { return hasCode(err, ErrorUnsupportedFormat) }
func IsEncode(err error) bool      { return hasCode(err, ErrorEncode) }

func hasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
