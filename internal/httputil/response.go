// Package httputil holds the JSON request and response helpers shared by the
// gateway's handlers and middleware.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/splito-labs/settlement_gateway/internal/apperr"
)

// MaxBodyBytes caps decoded request bodies.
const MaxBodyBytes = 1 << 20

// ErrorDetail is the body of an error response.
type ErrorDetail struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

// ErrorBody wraps ErrorDetail as {"error": {...}}.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status and writes the error body. Uncoded errors
// are reported as internal without exposing their text.
func WriteError(w http.ResponseWriter, err error) {
	detail := Detail(err)
	WriteJSON(w, apperr.HTTPStatus(detail.Code), ErrorBody{Error: detail})
}

// Detail returns the code and client-facing message of err.
func Detail(err error) ErrorDetail {
	code := apperr.CodeOf(err)
	if code == "" || code == apperr.CodeUnknown {
		return ErrorDetail{Code: apperr.CodeInternal, Message: apperr.Message(apperr.CodeInternal)}
	}
	var coded *apperr.Error
	msg := ""
	if errors.As(err, &coded) {
		msg = coded.Message
	}
	if code == apperr.CodeInternal || strings.TrimSpace(msg) == "" {
		msg = apperr.Message(code)
	}
	return ErrorDetail{Code: code, Message: msg}
}

// DecodeJSON decodes the request body into dst. An empty body is rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return apperr.New(apperr.CodeInvalidRequest, "request body is required")
	}
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer body.Close()

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.CodeInvalidRequest, "request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.New(apperr.CodeInvalidRequest, "request body too large")
		}
		return apperr.Wrap(apperr.CodeInvalidRequest, err, "invalid JSON payload")
	}
	return nil
}
