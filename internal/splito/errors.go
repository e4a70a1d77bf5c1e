package splito

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/splito-labs/settlement_gateway/internal/apperr"
)

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("splito api %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("splito api %d: %s", e.Status, e.Message)
}

// parseAPIError builds a coded error from an error body. A backend "code"
// field wins; otherwise the status decides. The message is dug out of the
// shapes the backend has used over time: a bare string, {"error": "..."},
// {"message": "..."}, {"error": {"message": "..."}}, and arrays of
// {"message": "..."} at the top level or under "error".
func parseAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status}

	if gjson.ValidBytes(body) {
		doc := gjson.ParseBytes(body)
		apiErr.Code = firstString(doc, "code", "error.code", "errorCode")
		apiErr.Message = extractMessage(doc)
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}

	return &apperr.Error{Code: mapCode(apiErr.Code, status), Message: apiErr.Message, Err: apiErr}
}

func extractMessage(doc gjson.Result) string {
	switch {
	case doc.Type == gjson.String:
		return doc.String()
	case doc.IsArray():
		return joinMessages(doc)
	}

	errField := doc.Get("error")
	switch {
	case errField.Type == gjson.String:
		return errField.String()
	case errField.IsArray():
		return joinMessages(errField)
	case errField.IsObject():
		if msg := firstString(errField, "message", "error", "detail"); msg != "" {
			return msg
		}
	}
	if data := doc.Get("data.error"); data.Exists() {
		return extractMessage(data)
	}
	return firstString(doc, "message", "detail")
}

func joinMessages(arr gjson.Result) string {
	var parts []string
	for _, item := range arr.Array() {
		switch {
		case item.Type == gjson.String:
			parts = append(parts, item.String())
		case item.IsObject():
			if msg := firstString(item, "message", "msg", "error"); msg != "" {
				parts = append(parts, msg)
			}
		}
	}
	return strings.Join(parts, "; ")
}

func firstString(doc gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := doc.Get(path); v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
			return strings.TrimSpace(v.String())
		}
	}
	return ""
}

func mapCode(code string, status int) apperr.Code {
	switch apperr.Code(strings.ToLower(code)) {
	case apperr.CodeInvalidRequest, apperr.CodeUnauthenticated, apperr.CodeNotFound,
		apperr.CodeConflict, apperr.CodeRateLimited, apperr.CodeInvalidToken,
		apperr.CodeNothingToSettle, apperr.CodeInsufficientFunds, apperr.CodeMalformedTx,
		apperr.CodeInvalidTransition:
		return apperr.Code(strings.ToLower(code))
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperr.CodeInvalidRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.CodeUnauthenticated
	case http.StatusNotFound:
		return apperr.CodeNotFound
	case http.StatusConflict:
		return apperr.CodeConflict
	case http.StatusTooManyRequests:
		return apperr.CodeRateLimited
	}
	return apperr.CodeUpstream
}
