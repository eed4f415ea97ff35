// Package testutil provides a scripted Gemini-compatible upstream for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Reply is one scripted upstream response.
type Reply struct {
	Status int
	Body   string
}

// Recorded captures one request the mock received.
type Recorded struct {
	Path   string
	APIKey string
	Body   map[string]any
}

// MockGemini is an httptest.Server that simulates the generateContent
// endpoint. Replies are served in order; the last one repeats once the
// script runs out.
type MockGemini struct {
	Server *httptest.Server

	mu       sync.Mutex
	replies  []Reply
	requests []Recorded
}

// NewMockGemini starts a mock serving replies in order.
func NewMockGemini(replies ...Reply) *MockGemini {
	if len(replies) == 0 {
		replies = []Reply{OK(TextResponse("ok"))}
	}
	m := &MockGemini{replies: replies}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// OK is a 200 reply with body.
func OK(body string) Reply {
	return Reply{Status: http.StatusOK, Body: body}
}

// Fail is an error reply in the Gemini error envelope.
func Fail(status int, message string) Reply {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
			"status":  strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_")),
		},
	})
	return Reply{Status: status, Body: string(body)}
}

// TextResponse builds a generateContent body with a single text part.
func TextResponse(text string) string {
	body, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": text}},
				},
				"finishReason": "STOP",
				"index":        0,
			},
		},
	})
	return string(body)
}

// AudioResponse builds a generateContent body with one inline audio part.
func AudioResponse(mimeType, data string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"role":"model","parts":[{"inlineData":{"mimeType":%q,"data":%q}}]},"finishReason":"STOP"}]}`, mimeType, data)
}

// Close shuts down the mock server.
func (m *MockGemini) Close() {
	m.Server.Close()
}

// URL returns the base URL of the mock server.
func (m *MockGemini) URL() string {
	return m.Server.URL
}

// Calls returns how many requests were received.
func (m *MockGemini) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or nil.
func (m *MockGemini) LastRequest() *Recorded {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	r := m.requests[len(m.requests)-1]
	return &r
}

func (m *MockGemini) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, ":generateContent") {
		http.NotFound(w, r)
		return
	}

	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	m.mu.Lock()
	idx := len(m.requests)
	m.requests = append(m.requests, Recorded{
		Path:   r.URL.Path,
		APIKey: r.Header.Get("x-goog-api-key"),
		Body:   body,
	})
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	reply := m.replies[idx]
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.Status)
	_, _ = io.WriteString(w, reply.Body)
}
