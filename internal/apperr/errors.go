// Package apperr defines the error codes the gateway hands to its callers.
// Codes are stable strings; messages are for humans and may change.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure.
type Code string

const (
	CodeInvalidRequest     Code = "invalid_request"
	CodeUnauthenticated    Code = "unauthenticated"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeRateLimited        Code = "rate_limited"
	CodeInvalidToken       Code = "invalid_token"
	CodeNothingToSettle    Code = "nothing_to_settle"
	CodeInvalidTransition  Code = "invalid_transition"
	CodeWalletNotConnected Code = "wallet_not_connected"
	CodeUserRejected       Code = "user_rejected"
	CodeInsufficientFunds  Code = "insufficient_funds"
	CodeNetwork            Code = "network_error"
	CodeMalformedTx        Code = "malformed_transaction"
	CodeUpstream           Code = "upstream_error"
	CodeInternal           Code = "internal"
	CodeUnknown            Code = "unknown"
)

// Error carries a code alongside the usual message and cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err, apperr.New(code, ""))
// works as a code check.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// New creates a coded error.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an existing error.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the code from err, or CodeUnknown.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeUnknown
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps a code to the status the gateway responds with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidRequest, CodeInvalidToken, CodeMalformedTx:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidTransition:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeNothingToSettle, CodeWalletNotConnected, CodeUserRejected, CodeInsufficientFunds:
		return http.StatusUnprocessableEntity
	case CodeNetwork, CodeUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Message is the user-facing text for a code when no better message exists.
func Message(code Code) string {
	switch code {
	case CodeWalletNotConnected:
		return "Please connect your wallet first"
	case CodeUserRejected:
		return "Transaction was rejected in the wallet"
	case CodeInsufficientFunds:
		return "Insufficient funds to complete this settlement"
	case CodeNetwork:
		return "Network error, please try again"
	case CodeMalformedTx:
		return "The transaction returned by the server could not be read"
	case CodeNothingToSettle:
		return "There is nothing left to settle"
	case CodeInvalidToken:
		return "The selected token is not available on this chain"
	}
	return "Something went wrong"
}
