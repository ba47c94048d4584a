// Package errors provides unified error handling keyed by a local error code
// enum shared across the daemon's subsystems.
package errors

import "fmt"

// Code enumerates the error taxonomy named by the component design: ASR,
// model-manager, output-injection, and configuration errors each map onto
// one of these.
type Code int

const (
	Unknown Code = iota
	Internal
	InvalidArgument
	NotFound
	Unavailable
	Timeout
	Cancelled

	// Audio / capture.
	CaptureUnavailable
	DeviceUnavailable

	// ASR.
	ModelNotInstalled
	SampleRateUnsupported
	RecognizerUnavailable
	RecognizerRuntime

	// Model manager.
	ChecksumMismatch
	ArchiveFormatUnsupported
	ManifestCorrupt

	// Output injection.
	ClipboardUnavailable
	KeyInjectUnavailable

	// Configuration.
	ConfigInvalid
	ConfigMissing
)

var codeNames = map[Code]string{
	Unknown:                  "UNKNOWN",
	Internal:                 "INTERNAL",
	InvalidArgument:          "INVALID_ARGUMENT",
	NotFound:                 "NOT_FOUND",
	Unavailable:              "UNAVAILABLE",
	Timeout:                  "TIMEOUT",
	Cancelled:                "CANCELLED",
	CaptureUnavailable:       "CAPTURE_UNAVAILABLE",
	DeviceUnavailable:        "DEVICE_UNAVAILABLE",
	ModelNotInstalled:        "MODEL_NOT_INSTALLED",
	SampleRateUnsupported:    "SAMPLE_RATE_UNSUPPORTED",
	RecognizerUnavailable:    "RECOGNIZER_UNAVAILABLE",
	RecognizerRuntime:        "RECOGNIZER_RUNTIME",
	ChecksumMismatch:         "CHECKSUM_MISMATCH",
	ArchiveFormatUnsupported: "ARCHIVE_FORMAT_UNSUPPORTED",
	ManifestCorrupt:          "MANIFEST_CORRUPT",
	ClipboardUnavailable:     "CLIPBOARD_UNAVAILABLE",
	KeyInjectUnavailable:     "KEY_INJECT_UNAVAILABLE",
	ConfigInvalid:            "CONFIG_INVALID",
	ConfigMissing:            "CONFIG_MISSING",
}

// String implements fmt.Stringer.
func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "UNKNOWN"
}

// AppError is the base error type with a structured code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError, returning it for chaining.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	switch appErr.Code {
	case Unavailable, Timeout, CaptureUnavailable, DeviceUnavailable:
		return true
	default:
		return false
	}
}
