// Package apierr writes the OAuth-style error body spec.md §6 mandates for
// every federation HTTP endpoint: {"error": CODE, "error_description":
// TEXT}, rather than the RFC 7807 Problem Detail shape
// _examples/Mindburn-Labs-helm/core/pkg/api/apierror.go uses — the error
// codes here are the fixed vocabulary OpenID Federation clients expect
// (invalid_trust_chain, not_found, ...), not arbitrary problem-type URIs.
// The helper functions otherwise follow that file's one-call-per-status
// shape and its rule that an internal error's detail is logged but never
// echoed to the client.
package apierr

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Code is one of the fixed error codes spec.md §6 "Error responses" names:
// invalid_trust_chain, unsupported_parameter, not_found. unauthorized and
// server_error extend that vocabulary for the supplemental admin surface
// and unexpected failures, which the read endpoints of §6 don't enumerate.
type Code string

const (
	CodeInvalidTrustChain Code = "invalid_trust_chain"
	CodeUnsupportedParam  Code = "unsupported_parameter"
	CodeNotFound          Code = "not_found"
	CodeUnauthorized      Code = "unauthorized"
	CodeServerError       Code = "server_error"
)

// Body is the wire shape of every error response.
type Body struct {
	Error            Code   `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Write writes an error response with the given HTTP status, code, and
// description.
func Write(w http.ResponseWriter, status int, code Code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Body{Error: code, ErrorDescription: description})
}

// NotFound writes a 404 not_found response.
func NotFound(w http.ResponseWriter, description string) {
	Write(w, http.StatusNotFound, CodeNotFound, description)
}

// InvalidTrustChain writes a 400 invalid_trust_chain response, the
// specific failure mode spec.md §4.3's resolver surfaces when no trust
// chain could be built, and the status a failed policy merge/apply also
// propagates as (spec.md §7 "Policy errors").
func InvalidTrustChain(w http.ResponseWriter, description string) {
	Write(w, http.StatusBadRequest, CodeInvalidTrustChain, description)
}

// UnsupportedParameter writes a 400 unsupported_parameter response, used
// for an unknown query parameter or a missing required one (spec.md §7
// "Request errors").
func UnsupportedParameter(w http.ResponseWriter, description string) {
	Write(w, http.StatusBadRequest, CodeUnsupportedParam, description)
}

// Unauthorized writes a 401 unauthorized response.
func Unauthorized(w http.ResponseWriter, description string) {
	if description == "" {
		description = "authentication required"
	}
	Write(w, http.StatusUnauthorized, CodeUnauthorized, description)
}

// Internal writes a 500 server_error response. err is logged but never
// echoed to the client.
func Internal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	Write(w, http.StatusInternalServerError, CodeServerError, "an unexpected error occurred")
}
