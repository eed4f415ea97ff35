package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHTTP_StatusMapping(t *testing.T) {
	cases := []struct {
		status    int
		want      Kind
		transient bool
	}{
		{http.StatusRequestEntityTooLarge, KindPayloadTooLarge, false},
		{http.StatusUnauthorized, KindUnauthorized, false},
		{http.StatusForbidden, KindForbidden, false},
		{http.StatusTooManyRequests, KindQuotaExceeded, false},
		{http.StatusInternalServerError, KindUnavailable, true},
		{http.StatusServiceUnavailable, KindUnavailable, true},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			// repeated classification of the same input must be stable
			for i := 0; i < 5; i++ {
				ce := FromHTTP(tc.status, []byte(`{"error":{"message":"something went wrong"}}`))
				assert.Equal(t, tc.want, ce.Kind)
				assert.Equal(t, tc.status, ce.Status)
				assert.Equal(t, tc.transient, ce.Transient())
			}
		})
	}
}

func TestFromHTTP_StatusWinsOverBody(t *testing.T) {
	ce := FromHTTP(http.StatusTooManyRequests, []byte(`{"error":{"message":"model is overloaded"}}`))
	assert.Equal(t, KindQuotaExceeded, ce.Kind)
	assert.Equal(t, "model is overloaded", ce.Message)
}

func TestFromHTTP_BodyRefinement(t *testing.T) {
	cases := []struct {
		name string
		body string
		want Kind
	}{
		{"gemini bad key", `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`, KindUnauthorized},
		{"rpc status", `{"error":{"code":400,"message":"nope","status":"RESOURCE_EXHAUSTED"}}`, KindQuotaExceeded},
		{"flat message", `{"error":"Bad Request","message":"Rpc failed due to xhr error"}`, KindUnavailable},
		{"relayed kind", `{"error":"Bad Gateway","message":"shape mismatch","kind":"malformed_response"}`, KindMalformedResponse},
		{"raw text", `quota exceeded for project`, KindQuotaExceeded},
		{"plain bad request", `{"error":{"message":"contents is required"}}`, KindInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ce := FromHTTP(http.StatusBadRequest, []byte(tc.body))
			assert.Equal(t, tc.want, ce.Kind)
		})
	}
}

func TestFromHTTP_RelayedKindWins(t *testing.T) {
	ce := FromHTTP(http.StatusBadGateway, []byte(`{"error":"Bad Gateway","message":"shape mismatch","kind":"malformed_response"}`))
	assert.Equal(t, KindMalformedResponse, ce.Kind)
	assert.False(t, ce.Transient())

	ce = FromHTTP(http.StatusBadGateway, []byte(`{"error":"Bad Gateway","message":"boom","kind":"unknown"}`))
	assert.Equal(t, KindUnknown, ce.Kind)

	ce = FromHTTP(http.StatusBadGateway, []byte(`{"error":"Bad Gateway","message":"boom","kind":"bogus"}`))
	assert.Equal(t, KindUnavailable, ce.Kind)
}

func TestFromHTTP_RelayedFinalIsNotRetried(t *testing.T) {
	ce := FromHTTP(http.StatusServiceUnavailable, []byte(`{"error":"Service Unavailable","message":"overloaded","kind":"unavailable","final":true}`))
	assert.Equal(t, KindUnavailable, ce.Kind)
	assert.True(t, ce.Final)
	assert.False(t, ce.Transient())
	assert.False(t, IsTransient(fmt.Errorf("call: %w", ce)))
	assert.Equal(t, http.StatusServiceUnavailable, ce.HTTPStatus())

	annotated := Annotate(ce, "Failed to process resume")
	assert.False(t, IsTransient(annotated))

	ce = FromHTTP(http.StatusServiceUnavailable, []byte(`{"error":"Service Unavailable","message":"overloaded","kind":"unavailable"}`))
	assert.True(t, ce.Transient())
}

func TestFromHTTP_UnknownStatus(t *testing.T) {
	ce := FromHTTP(http.StatusTeapot, nil)
	assert.Equal(t, KindUnknown, ce.Kind)
	assert.Equal(t, http.StatusText(http.StatusTeapot), ce.Message)
	assert.False(t, ce.Transient())
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))

	ce := New(KindForbidden, "denied")
	assert.Same(t, ce, Classify(fmt.Errorf("call: %w", ce)))

	assert.Equal(t, KindUnavailable, KindOf(errors.New("The model is Overloaded")))
	assert.Equal(t, KindUnavailable, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindUnknown, KindOf(context.Canceled))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.True(t, IsTransient(errors.New("rpc failed")))
	assert.False(t, IsTransient(nil))
}

func TestAnnotate_KeepsKind(t *testing.T) {
	base := FromHTTP(http.StatusUnauthorized, nil)
	err := Annotate(base, "Failed to process resume")

	ce, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindUnauthorized, ce.Kind)
	assert.Contains(t, err.Error(), "Failed to process resume")
	assert.True(t, errors.Is(err, base))
	assert.Nil(t, Annotate(nil, "ignored"))
}

func TestUserMessage_CredentialGuidance(t *testing.T) {
	unauthorized := FromHTTP(http.StatusUnauthorized, []byte("unauthorized"))
	network := Classify(errors.New("dial tcp: connection refused"))

	assert.Contains(t, unauthorized.UserMessage(), "GEMINI_API_KEY")
	assert.NotContains(t, network.UserMessage(), "GEMINI_API_KEY")
	assert.Contains(t, New(KindMissingCredential, "no key").UserMessage(), "GEMINI_API_KEY")
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, Annotate(FromHTTP(http.StatusRequestEntityTooLarge, nil), "Failed to generate lesson plan"))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body jsonError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, KindPayloadTooLarge, body.Kind)
	assert.Contains(t, body.Message, "Failed to generate lesson plan")
	assert.False(t, body.Final)
}

func TestWriteError_TransientIsFinal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, FromHTTP(http.StatusServiceUnavailable, []byte("overloaded")))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body jsonError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, KindUnavailable, body.Kind)
	assert.True(t, body.Final)
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("quota_exceeded")
	assert.True(t, ok)
	assert.Equal(t, KindQuotaExceeded, k)

	_, ok = ParseKind("nonsense")
	assert.False(t, ok)
}
