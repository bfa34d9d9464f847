package cstmerr

import (
	"errors"
	"fmt"
)

// BaseError provides a base for custom errors, allowing for wrapped errors.
type BaseError struct {
	Msg string
	Err error // Underlying error
}

func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *BaseError) Unwrap() error {
	return e.Err
}

// ConfigError indicates a problem with configuration.
type ConfigError struct{ BaseError }

func NewConfigError(msg string, underlyingErr error) *ConfigError {
	return &ConfigError{BaseError{Msg: msg, Err: underlyingErr}}
}

// APIClientError indicates a general problem with the HTTP client or request creation.
type APIClientError struct{ BaseError }

func NewAPIClientError(underlyingErr error) *APIClientError {
	return &APIClientError{BaseError{Msg: "API client error", Err: underlyingErr}}
}

// APIRequestFailedError indicates an API request returned a non-success status.
type APIRequestFailedError struct {
	BaseError
	StatusCode int
	Message    string // Message from API response body
}

func NewAPIRequestFailedError(statusCode int, message string) *APIRequestFailedError {
	return &APIRequestFailedError{
		BaseError:  BaseError{Msg: fmt.Sprintf("API request failed with status %d", statusCode)},
		StatusCode: statusCode,
		Message:    message,
	}
}

func (e *APIRequestFailedError) Error() string {
	return fmt.Sprintf("%s - %s", e.BaseError.Msg, e.Message)
}

// DownloadError indicates a problem during file download.
type DownloadError struct{ BaseError }

func NewDownloadError(msg string) *DownloadError {
	return &DownloadError{BaseError{Msg: "Download error: " + msg}}
}

// TimeoutError indicates a timeout during an operation.
type TimeoutError struct{ BaseError }

func NewTimeoutError(underlyingErr error) *TimeoutError {
	return &TimeoutError{BaseError{Msg: "Timeout error", Err: underlyingErr}}
}

// HeadError indicates a problem with the HEAD request.
type HeadError struct{ BaseError }

func NewHeadError(msg string) *HeadError {
	return &HeadError{BaseError{Msg: "Head error: " + msg}}
}

// FileSystemError indicates a general filesystem problem.
type FileSystemError struct{ BaseError }

func NewFileSystemError(msg string) *FileSystemError {
	return &FileSystemError{BaseError{Msg: "Filesystem error: " + msg}}
}

// FileIOError indicates an I/O problem during file operations.
type FileIOError struct{ BaseError }

func NewFileIOError(msg string, underlyingErr error) *FileIOError {
	return &FileIOError{BaseError{Msg: "I/O error during file operation: " + msg, Err: underlyingErr}}
}

type DBError struct{ BaseError }

func NewDBError(msg string, underlyingErr error) *DBError {
	return &DBError{BaseError{Msg: "Database error: " + msg, Err: underlyingErr}}
}

// DBConnectionError indicates a problem connecting to the database.
type DBConnectionError struct{ BaseError }

func NewDBConnectionError(msg string, underlyingErr error) *DBConnectionError {
	return &DBConnectionError{BaseError{Msg: "DB connection error: " + msg, Err: underlyingErr}}
}

// DBQueryError indicates a problem executing a database query.
type DBQueryError struct{ BaseError }

func NewDBQueryError(msg string, underlyingErr error) *DBQueryError {
	return &DBQueryError{BaseError{Msg: "DB query error: " + msg, Err: underlyingErr}}
}

// DBNotFoundError indicates that a lookup returned no results when one was expected.
// Every store backend reports a missing key with this type.
type DBNotFoundError struct{ BaseError }

func NewDBNotFoundError(msg string, underlyingErr error) *DBNotFoundError {
	return &DBNotFoundError{BaseError{Msg: "DB not found error: " + msg, Err: underlyingErr}}
}

// StoreError indicates a key-value store backend failure.
type StoreError struct{ BaseError }

func NewStoreError(msg string, underlyingErr error) *StoreError {
	return &StoreError{BaseError{Msg: "Store error: " + msg, Err: underlyingErr}}
}

// ReleaseParseError indicates the version metadata payload could not be parsed.
type ReleaseParseError struct{ BaseError }

func NewReleaseParseError(msg string, underlyingErr error) *ReleaseParseError {
	return &ReleaseParseError{BaseError{Msg: "Release parse error: " + msg, Err: underlyingErr}}
}

// PresenterError is returned by host presenters that could not show a view.
type PresenterError struct{ BaseError }

func NewPresenterError(msg string, underlyingErr error) *PresenterError {
	return &PresenterError{BaseError{Msg: "Presenter error: " + msg, Err: underlyingErr}}
}

// CrashReportError indicates a problem writing, reading or uploading a crash report.
type CrashReportError struct{ BaseError }

func NewCrashReportError(msg string, underlyingErr error) *CrashReportError {
	return &CrashReportError{BaseError{Msg: "Crash report error: " + msg, Err: underlyingErr}}
}

// FeedbackError indicates an invalid or rejected feedback message.
type FeedbackError struct{ BaseError }

func NewFeedbackError(msg string, underlyingErr error) *FeedbackError {
	return &FeedbackError{BaseError{Msg: "Feedback error: " + msg, Err: underlyingErr}}
}

// TelemetryError indicates a telemetry batch could not be delivered.
type TelemetryError struct{ BaseError }

func NewTelemetryError(msg string, underlyingErr error) *TelemetryError {
	return &TelemetryError{BaseError{Msg: "Telemetry error: " + msg, Err: underlyingErr}}
}

// IsNotFound reports whether err, or anything it wraps, is a DBNotFoundError.
func IsNotFound(err error) bool {
	var nf *DBNotFoundError
	return errors.As(err, &nf)
}

const (
	CRASH_WRITE_ERROR   = "unable to write stacktrace file %s"
	CRASH_READ_ERROR    = "unable to read stacktrace file %s"
	CRASH_UPLOAD_ERROR  = "unable to upload crash report %s"
	CRASH_DELETE_ERROR  = "unable to delete stacktrace file %s"
	STORE_BACKEND_ERROR = "unknown store backend %q"
)
