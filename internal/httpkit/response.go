// Package httpkit holds the JSON, CORS and database error helpers shared
// by the HTTP handlers.
package httpkit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"framefarm/internal/pkg/errors"
)

// ErrorBody is the payload of every non-2xx response.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorEnvelope wraps ErrorBody as {"error": {...}}.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// DecodeJSON strictly decodes the request body into v. Unknown fields and
// trailing data are bad requests.
func DecodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.WrapWithCode(err, errors.CodeBadRequest, "httpkit.decode", "invalid json body")
	}
	if dec.More() {
		return errors.New(errors.CodeBadRequest, "invalid json body: trailing data")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteErr(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	WriteJSON(w, status, ErrorEnvelope{Error: ErrorBody{Code: code, Message: msg, Details: details}})
}

// WriteError writes err with the status and code it maps to.
func WriteError(w http.ResponseWriter, err error) {
	WriteErr(w, errors.GetHTTPStatus(err), string(errors.GetCode(err)), err.Error(), errors.GetFields(err))
}

// QueryInt reads a positive integer query parameter. Missing values give
// def; values above max are clamped.
func QueryInt(r *http.Request, key string, def, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.ValidationField(key, "must be a positive integer")
	}
	return min(v, max), nil
}
