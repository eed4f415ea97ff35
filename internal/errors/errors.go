package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	ErrMissingAPIKey = errors.New("missing API key")
	ErrMalformedBody = errors.New("malformed request body")
)

type jsonError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Kind    Kind   `json:"kind,omitempty"`
	// Final tells a relaying instance not to retry a transient kind: this
	// instance already spent its retry budget on it.
	Final bool `json:"final,omitempty"`
}

// WriteJSONError writes a JSON error body with the given status.
func WriteJSONError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, jsonError{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}

// WriteError classifies err and writes it with the matching status code and
// a user-facing message. Every failure produces a body; nothing is dropped.
// A transient kind is written as final since the chain that produced it is
// over.
func WriteError(w http.ResponseWriter, err error) {
	ce := Classify(err)
	status := ce.HTTPStatus()
	writeJSON(w, status, jsonError{
		Error:   http.StatusText(status),
		Message: ce.UserMessage(),
		Kind:    ce.Kind,
		Final:   ce.Kind.Transient(),
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, body jsonError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
