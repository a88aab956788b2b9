// Package apperrors defines the error-kind taxonomy shared by adapters,
// the worker pool, and ingestion. Kinds carry retry semantics, not HTTP
// status codes — callers at the HTTP boundary map kinds to status codes
// themselves.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry/propagation purposes.
type Kind string

const (
	KindInvalidUpstreamSession Kind = "invalid_upstream_session"
	KindParse                 Kind = "parse"
	KindTimeout                Kind = "timeout"
	KindRateLimited             Kind = "rate_limited"
	KindTransport               Kind = "transport"
	KindCorruptedJobPayload      Kind = "corrupted_job_payload"
	KindSchemaViolation           Kind = "schema_violation"
	KindNotFound                   Kind = "not_found"
	KindConflict                    Kind = "conflict"
	KindConfig                        Kind = "config"
)

// recoverable maps each kind to whether the worker pool should retry it.
var recoverable = map[Kind]bool{
	KindInvalidUpstreamSession: true,
	KindParse:                  true,
	KindTimeout:                true,
	KindRateLimited:            true,
	KindTransport:              true,
	KindCorruptedJobPayload:    false,
	KindSchemaViolation:        false,
	KindNotFound:               false,
	KindConflict:               false,
	KindConfig:                 false,
}

// Error is a classified error with optional structured context.
type Error struct {
	Kind       Kind
	Message    string
	Path       string // field/JSON path, for Parse/SchemaViolation
	Snippet    string // up to 20 bytes of context around a parse failure
	RetryAfter int    // seconds, for RateLimited
	cause      error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path=%s)", e.Kind, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Recoverable reports whether the worker pool should retry a job that
// failed with this error, per spec §7.
func (e *Error) Recoverable() bool {
	return recoverable[e.Kind]
}

// New constructs a classified error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap classifies an underlying error under kind, preserving it for Unwrap.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// WithParseContext attaches a field path and a bounded snippet (trimmed to
// 20 bytes) around a parse failure, per spec §4.10.
func (e *Error) WithParseContext(path, raw string, offset int) *Error {
	e.Path = path
	const window = 20
	start := offset - window/2
	if start < 0 {
		start = 0
	}
	end := start + window
	if end > len(raw) {
		end = len(raw)
	}
	if start > end {
		start = end
	}
	e.Snippet = raw[start:end]
	return e
}

// WithRetryAfter attaches a retry-after hint, in seconds.
func (e *Error) WithRetryAfter(seconds int) *Error {
	e.RetryAfter = seconds
	return e
}

// ClassifyOf extracts the Kind of err, or "" if err is not an *Error.
func ClassifyOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

// IsRecoverable reports whether err, if classified, is recoverable. An
// unclassified error is treated as recoverable (conservative default —
// network/library errors that were never wrapped still get a retry).
func IsRecoverable(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Recoverable()
	}
	return true
}
