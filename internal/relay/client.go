package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apierrors "github.com/zhengjr9/genrelay/internal/errors"
	"github.com/zhengjr9/genrelay/internal/gemini"
)

// DefaultBaseURL is the public Gemini API host.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

const maxErrorBody = 64 << 10

// Client sends generateContent requests to a Gemini-compatible REST endpoint:
// either the Gemini API itself or an intermediary relay (another genrelay
// instance) for networks that cannot reach the backend directly.
type Client struct {
	// baseURL is the host prefix; "/v1beta/models/{model}:generateContent"
	// is appended per call. A trailing "/v1beta" on the configured URL is
	// tolerated.
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a Client with the given base URL, timeout, and
// optional outbound proxy URL. proxyURL may be empty to use the environment
// proxy.
func NewClient(baseURL string, timeout time.Duration, proxyURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base := strings.TrimRight(baseURL, "/")
	base = strings.TrimSuffix(base, "/v1beta")

	transport := &http.Transport{}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Endpoint returns the generateContent URL for model.
func (c *Client) Endpoint(model string) string {
	return c.baseURL + "/v1beta/models/" + url.PathEscape(model) + ":generateContent"
}

// Generate performs exactly one outbound request. Non-2xx responses are
// returned as classified errors.
func (c *Client) Generate(ctx context.Context, apiKey string, req *gemini.GenerateRequest) (*gemini.GenerateResponse, error) {
	body, err := json.Marshal(gemini.ToREST(req))
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInvalidRequest, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(req.Model), bytes.NewReader(body))
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInvalidRequest, fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apierrors.Classify(fmt.Errorf("gemini request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, apierrors.FromHTTP(resp.StatusCode, raw)
	}

	var result gemini.GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apierrors.Wrap(apierrors.KindMalformedResponse, fmt.Errorf("decode response: %w", err))
	}
	return result.Normalize(), nil
}
