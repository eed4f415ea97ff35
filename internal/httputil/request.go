package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apierrors "github.com/zhengjr9/genrelay/internal/errors"
)

// Credentials holds the Gemini API key supplied by the caller.
type Credentials struct {
	APIKey string
}

// ExtractCredentials reads the caller's Gemini key using the following
// priority:
//
//  1. x-goog-api-key header
//  2. ?key= query parameter
//  3. Authorization: Bearer
//
// Returns an empty APIKey when none is found; the configured server key is
// used in that case.
func ExtractCredentials(r *http.Request) Credentials {
	apiKey := strings.TrimSpace(r.Header.Get("x-goog-api-key"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(r.URL.Query().Get("key"))
	}
	if apiKey == "" {
		auth := r.Header.Get("Authorization")
		if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
			apiKey = strings.TrimSpace(rest)
		}
	}
	return Credentials{APIKey: apiKey}
}

// DecodeJSON decodes the request body into v. A body over the
// http.MaxBytesReader limit is PayloadTooLarge; anything unparseable is
// InvalidRequest.
func DecodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierrors.New(apierrors.KindPayloadTooLarge, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return apierrors.Wrap(apierrors.KindInvalidRequest, fmt.Errorf("%w: %v", apierrors.ErrMalformedBody, err))
	}
	return nil
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
