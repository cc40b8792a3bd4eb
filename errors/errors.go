// Package errors provides error handling for batchgate.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Safe detail/hint formatting for operator-facing messages
//
// Usage:
//
//	// Wrap with context
//	if err := client.UpdateDependentStatus(ctx, id, idx); err != nil {
//	    return errors.Wrap(err, "failed to update dependent status")
//	}
//
//	// Classify
//	if errors.IsNotFound(err) {
//	    // missing ids count as not-ready, never fatal
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapAll     = crdb.UnwrapAll
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
	FlattenHints  = crdb.FlattenHints
)

// Sentinel errors forming the engine's error taxonomy. Every failure a
// reconciliation run can encounter wraps exactly one of these, so callers
// classify with errors.Is (or the helpers below) instead of string matching.
var (
	// ErrNetwork indicates a transport-level failure reaching the board
	// service. Retried with bounded backoff at the client layer; if retries
	// exhaust, the affected item is skipped and the run continues.
	ErrNetwork = New("network failure")

	// ErrRemoteRejected indicates the board service returned a well-formed
	// error (bad query, permission denied, invalid mutation value). Never
	// retried; surfaced per item.
	ErrRemoteRejected = New("remote rejected request")

	// ErrNotFound indicates a referenced item id no longer exists in the
	// board service. Treated as "dependency not ready", never as fatal.
	ErrNotFound = New("not found")

	// ErrConfiguration indicates missing credentials or unknown board/column
	// identifiers at startup. Fatal: the run does not start.
	ErrConfiguration = New("configuration error")
)

// IsNetwork reports whether err is or wraps ErrNetwork.
func IsNetwork(err error) bool {
	return err != nil && Is(err, ErrNetwork)
}

// IsRemoteRejected reports whether err is or wraps ErrRemoteRejected.
func IsRemoteRejected(err error) bool {
	return err != nil && Is(err, ErrRemoteRejected)
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConfiguration reports whether err is or wraps ErrConfiguration.
func IsConfiguration(err error) bool {
	return err != nil && Is(err, ErrConfiguration)
}

// NewNetworkError wraps an underlying transport error into the taxonomy,
// preserving the cause for logging.
func NewNetworkError(cause error, context string) error {
	return Wrap(WithSecondary(ErrNetwork, cause), context)
}

// NewRemoteRejectedError creates a remote-rejection error with a formatted message.
func NewRemoteRejectedError(format string, args ...interface{}) error {
	return Wrap(ErrRemoteRejected, Newf(format, args...).Error())
}

// NewNotFoundError creates a not-found error with a formatted message.
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewConfigurationError creates a configuration error with a formatted message.
func NewConfigurationError(format string, args ...interface{}) error {
	return Wrap(ErrConfiguration, Newf(format, args...).Error())
}

// WithSecondary attaches cause as secondary context on err. The sentinel
// remains the primary chain so errors.Is keeps working, while the cause stays
// visible in formatted output.
func WithSecondary(err, cause error) error {
	if cause == nil {
		return err
	}
	return crdb.WithSecondaryError(WithDetail(err, cause.Error()), cause)
}
