// Package httpkit holds the JSON response conventions shared by the public
// API and the internal worker gateway.
package httpkit

import (
	"encoding/json"
	"net/http"

	"docpack/internal/errs"
)

// ErrorEnvelope is the uniform error body.
type ErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// DecodeJSON reads a request body into v.
func DecodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// WriteJSON writes a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError maps a domain error onto the envelope and status.
func WriteError(w http.ResponseWriter, err error) {
	var env ErrorEnvelope
	env.Error.Code = string(errs.CodeOf(err))
	env.Error.Message = err.Error()
	WriteJSON(w, errs.StatusOf(err), env)
}
