// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pulsehub/pulsehub/internal/profile"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the machine-readable error envelope for write failures.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// writeError maps engine error kinds onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	kind := profile.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case profile.KindInvalidArgument:
		status = http.StatusBadRequest
	case profile.KindNotFound:
		status = http.StatusNotFound
	case profile.KindTransient:
		status = http.StatusServiceUnavailable
	}
	if kind == "" {
		kind = "INTERNAL"
	}
	writeJSON(w, status, errorBody{Kind: string(kind), Message: err.Error()})
}

// writeNotFound writes a 404 Not Found response.
func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorBody{Kind: "NOT_FOUND", Message: "not found"})
}

// writeConflict writes a 409 for lease contention.
func writeConflict(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusConflict, errorBody{Kind: "CONFLICT", Message: err.Error()})
}

// decodeBody parses a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("empty request body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}
