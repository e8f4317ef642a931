// errors.go: structured errors for fresco engine operations
//
// This file provides structured error types using the go-errors library,
// enabling rich error context, categorization, and standardized error codes
// for fetches, retries and engine misuse.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package fresco

import (
	goerrors "errors"
	"fmt"

	"github.com/agilira/go-errors"
)

// Error codes for fresco engine operations
const (
	// Configuration errors
	ErrCodeInvalidConfig errors.ErrorCode = "FRESCO_INVALID_CONFIG"

	// Caller misuse
	ErrCodeEmptyKey       errors.ErrorCode = "FRESCO_EMPTY_KEY"
	ErrCodeInvalidFetcher errors.ErrorCode = "FRESCO_INVALID_FETCHER"
	ErrCodeEngineClosed   errors.ErrorCode = "FRESCO_ENGINE_CLOSED"
	ErrCodeTypeMismatch   errors.ErrorCode = "FRESCO_TYPE_MISMATCH"

	// Fetch errors
	ErrCodeFetchFailed    errors.ErrorCode = "FRESCO_FETCH_FAILED"
	ErrCodeFetchCancelled errors.ErrorCode = "FRESCO_FETCH_CANCELLED"
	ErrCodePanicRecovered errors.ErrorCode = "FRESCO_PANIC_RECOVERED"
)

// Common error messages
const (
	msgInvalidConfig  = "invalid engine configuration"
	msgEmptyKey       = "key cannot be empty"
	msgInvalidFetcher = "fetch function cannot be nil"
	msgEngineClosed   = "engine is closed"
	msgTypeMismatch   = "cached value has an unexpected type"
	msgFetchFailed    = "fetch function failed"
	msgFetchCancelled = "fetch was cancelled"
	msgPanicRecovered = "panic recovered in fetch function"
)

// NewErrInvalidConfig creates an error for a configuration value that cannot be normalized
func NewErrInvalidConfig(field string, value interface{}) error {
	return errors.NewWithContext(ErrCodeInvalidConfig, msgInvalidConfig, map[string]interface{}{
		"field":          field,
		"provided_value": value,
	})
}

// NewErrEmptyKey creates an error when key is empty
func NewErrEmptyKey(operation string) error {
	return errors.NewWithField(ErrCodeEmptyKey, msgEmptyKey, "operation", operation)
}

// NewErrInvalidFetcher creates an error when the fetch function is nil
func NewErrInvalidFetcher(key string) error {
	return errors.NewWithField(ErrCodeInvalidFetcher, msgInvalidFetcher, "key", key)
}

// NewErrEngineClosed creates an error for operations on a closed engine
func NewErrEngineClosed(operation string) error {
	return errors.NewWithField(ErrCodeEngineClosed, msgEngineClosed, "operation", operation)
}

// NewErrTypeMismatch creates an error when a typed accessor finds another type
func NewErrTypeMismatch(key string, value interface{}) error {
	return errors.NewWithContext(ErrCodeTypeMismatch, msgTypeMismatch, map[string]interface{}{
		"key":         key,
		"actual_type": fmt.Sprintf("%T", value),
	})
}

// NewErrFetchFailed wraps the final error of a fetch call.
// attempts counts every attempt, the first one included.
func NewErrFetchFailed(key string, attempts int, cause error) error {
	return errors.Wrap(cause, ErrCodeFetchFailed, msgFetchFailed).
		WithContext("key", key).
		WithContext("attempts", attempts).
		AsRetryable()
}

// NewErrFetchCancelled creates an error when a fetch stops because the engine went away
func NewErrFetchCancelled(key string) error {
	return errors.NewWithField(ErrCodeFetchCancelled, msgFetchCancelled, "key", key)
}

// NewErrPanicRecovered creates an error when a panic is recovered
func NewErrPanicRecovered(operation string, panicValue interface{}) error {
	return errors.NewWithContext(ErrCodePanicRecovered, msgPanicRecovered, map[string]interface{}{
		"operation":   operation,
		"panic_value": fmt.Sprintf("%v", panicValue),
	}).WithSeverity("critical")
}

// IsEmptyKey checks if error is an empty key error
func IsEmptyKey(err error) bool {
	return errors.HasCode(err, ErrCodeEmptyKey)
}

// IsEngineClosed checks if error reports a closed engine
func IsEngineClosed(err error) bool {
	return errors.HasCode(err, ErrCodeEngineClosed)
}

// IsConfigError checks if error is a configuration error
func IsConfigError(err error) bool {
	return errors.HasCode(err, ErrCodeInvalidConfig)
}

// IsFetchError checks if error came out of a fetch call
func IsFetchError(err error) bool {
	if err == nil {
		return false
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		code := coder.ErrorCode()
		return code == ErrCodeFetchFailed || code == ErrCodeFetchCancelled || code == ErrCodePanicRecovered
	}
	return false
}

// IsRetryable checks if the error can be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryable errors.Retryable
	if goerrors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) errors.ErrorCode {
	if err == nil {
		return ""
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return ""
}

// GetErrorContext extracts the context map of a fresco error
func GetErrorContext(err error) map[string]interface{} {
	if err == nil {
		return nil
	}
	var frescoErr *errors.Error
	if goerrors.As(err, &frescoErr) {
		return frescoErr.Context
	}
	return nil
}
