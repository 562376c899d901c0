// Package errors provides typed error codes for the codex-switch core.
// Every recoverable failure carries a stable Code so the RPC layer and the
// UI can match on the message prefix instead of parsing free text.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies a failure kind. Rendered as the message prefix.
type Code string

const (
	VaultUninitialized    Code = "VaultUninitialized"
	VaultLocked           Code = "VaultLocked"
	WeakPassword          Code = "WeakPassword"
	KeySizeError          Code = "KeySizeError"
	DecryptError          Code = "DecryptError"
	AuthFileMissing       Code = "AuthFileMissing"
	AuthSchemaError       Code = "AuthSchemaError"
	FingerprintError      Code = "FingerprintError"
	SameIdentityError     Code = "SameIdentityError"
	DuplicateAccountError Code = "DuplicateAccountError"
	DuplicateFingerprint  Code = "DuplicateFingerprint"
	AccountNotFound       Code = "AccountNotFound"
	SnapshotMissing       Code = "SnapshotMissing"
	AtomicWriteError      Code = "AtomicWriteError"
	SubprocessSpawnError  Code = "SubprocessSpawnError"
	LoginTimeout          Code = "LoginTimeout"
	LoginPostPollTimeout  Code = "LoginPostPollTimeout"
	MissingAccessToken    Code = "MissingAccessToken"
	QuotaNetworkError     Code = "QuotaNetworkError"
	StoreError            Code = "StoreError"
)

// Error is a coded error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
// A nil cause returns nil.
func Wrap(code Code, message string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf extracts the code from err, walking the wrap chain.
// Returns an empty Code for nil or uncoded errors.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	for err != nil {
		var coded *Error
		if !errors.As(err, &coded) {
			return false
		}
		if coded.Code == code {
			return true
		}
		err = coded.cause
	}
	return false
}
