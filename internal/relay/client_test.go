package relay

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/zhengjr9/genrelay/internal/errors"
	"github.com/zhengjr9/genrelay/internal/gemini"
	"github.com/zhengjr9/genrelay/internal/testutil"
)

func newRequest() *gemini.GenerateRequest {
	return &gemini.GenerateRequest{
		Model:    "gemini-2.5-flash",
		Contents: []gemini.Content{gemini.UserContent(gemini.TextPart("hi"))},
		Config: &gemini.GenerationConfig{
			ResponseMimeType: gemini.MimeJSON,
			ResponseSchema:   gemini.Object(map[string]*gemini.Schema{"a": gemini.Integer("")}, "a"),
		},
	}
}

func TestClient_Generate(t *testing.T) {
	mock := testutil.NewMockGemini(testutil.OK(testutil.TextResponse(`{"a":1}`)))
	defer mock.Close()

	c := NewClient(mock.URL()+"/v1beta/", 5*time.Second, "")
	resp, err := c.Generate(context.Background(), "secret", newRequest())
	require.NoError(t, err)

	assert.Equal(t, `{"a":1}`, resp.Text)
	assert.Equal(t, "STOP", resp.Candidates[0].FinishReason)

	rec := mock.LastRequest()
	require.NotNil(t, rec)
	assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", rec.Path)
	assert.Equal(t, "secret", rec.APIKey)
	gc, ok := rec.Body["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, gemini.MimeJSON, gc["responseMimeType"])
	assert.Equal(t, 1, mock.Calls())
}

func TestClient_StatusClassification(t *testing.T) {
	cases := []struct {
		status int
		want   apierrors.Kind
	}{
		{http.StatusRequestEntityTooLarge, apierrors.KindPayloadTooLarge},
		{http.StatusUnauthorized, apierrors.KindUnauthorized},
		{http.StatusForbidden, apierrors.KindForbidden},
		{http.StatusTooManyRequests, apierrors.KindQuotaExceeded},
		{http.StatusInternalServerError, apierrors.KindUnavailable},
		{http.StatusServiceUnavailable, apierrors.KindUnavailable},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			mock := testutil.NewMockGemini(testutil.Fail(tc.status, "upstream says no"))
			defer mock.Close()

			_, err := NewClient(mock.URL(), 5*time.Second, "").Generate(context.Background(), "k", newRequest())
			ce, ok := apierrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tc.want, ce.Kind)
			assert.Equal(t, tc.status, ce.Status)
			assert.Equal(t, "upstream says no", ce.Message)
			assert.Equal(t, 1, mock.Calls())
		})
	}
}

func TestClient_MalformedBody(t *testing.T) {
	mock := testutil.NewMockGemini(testutil.OK(`<html>not json</html>`))
	defer mock.Close()

	_, err := NewClient(mock.URL(), 5*time.Second, "").Generate(context.Background(), "k", newRequest())
	assert.Equal(t, apierrors.KindMalformedResponse, apierrors.KindOf(err))
}

func TestClient_EmptyCandidates(t *testing.T) {
	mock := testutil.NewMockGemini(testutil.OK(`{"candidates":[]}`))
	defer mock.Close()

	resp, err := NewClient(mock.URL(), 5*time.Second, "").Generate(context.Background(), "k", newRequest())
	require.NoError(t, err)
	assert.Equal(t, "", resp.Text)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("", time.Second, "http://proxy.internal:3128")
	assert.Equal(t, DefaultBaseURL+"/v1beta/models/m:generateContent", c.Endpoint("m"))
}
