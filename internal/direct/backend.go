// Package direct calls Gemini through the google.golang.org/genai SDK,
// for deployments with direct backend connectivity.
package direct

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"google.golang.org/genai"

	apierrors "github.com/zhengjr9/genrelay/internal/errors"
	"github.com/zhengjr9/genrelay/internal/gemini"
)

// maxClients bounds the per-key client cache; it is flushed when full.
const maxClients = 64

// Backend keeps one genai client per API key so per-request keys never share
// client state. The SDK resolves its environment defaults once, when a key's
// client is built, not on every call.
type Backend struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]*genai.Client
	group   singleflight.Group
}

// New returns a Backend. baseURL may be empty for the public endpoint.
func New(baseURL string, timeout time.Duration) *Backend {
	return &Backend{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		clients:    make(map[string]*genai.Client),
	}
}

func (b *Backend) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	b.mu.Lock()
	c, ok := b.clients[apiKey]
	b.mu.Unlock()
	if ok {
		return c, nil
	}

	v, err, _ := b.group.Do(apiKey, func() (any, error) {
		cc := &genai.ClientConfig{
			APIKey:     apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: b.httpClient,
		}
		if b.baseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: b.baseURL}
		}
		c, err := genai.NewClient(context.WithoutCancel(ctx), cc)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		if b.clients == nil || len(b.clients) >= maxClients {
			b.clients = make(map[string]*genai.Client)
		}
		b.clients[apiKey] = c
		b.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*genai.Client), nil
}

// Generate performs one GenerateContent call.
func (b *Backend) Generate(ctx context.Context, apiKey string, req *gemini.GenerateRequest) (*gemini.GenerateResponse, error) {
	contents, err := toGenaiContents(req.Contents)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInvalidRequest, err)
	}
	config, err := toGenaiConfig(req.Config)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInvalidRequest, err)
	}

	client, err := b.client(ctx, apiKey)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInvalidRequest, fmt.Errorf("create gemini client: %w", err))
	}

	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, classify(err)
	}
	return fromGenaiResponse(resp).Normalize(), nil
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		ce := apierrors.FromAPIError(apiErr.Code, apiErr.Status, apiErr.Message)
		ce.Err = err
		return ce
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		ce := apierrors.FromAPIError(apiErrPtr.Code, apiErrPtr.Status, apiErrPtr.Message)
		ce.Err = err
		return ce
	}
	return apierrors.Classify(err)
}

func toGenaiContents(in []gemini.Content) ([]*genai.Content, error) {
	out := make([]*genai.Content, 0, len(in))
	for i, c := range in {
		role := c.Role
		if role == "" {
			role = genai.RoleUser
		}
		content := &genai.Content{Role: role}
		for j, p := range c.Parts {
			part, err := toGenaiPart(p)
			if err != nil {
				return nil, fmt.Errorf("contents[%d].parts[%d]: %w", i, j, err)
			}
			content.Parts = append(content.Parts, part)
		}
		out = append(out, content)
	}
	return out, nil
}

func toGenaiPart(p gemini.Part) (*genai.Part, error) {
	if p.InlineData == nil {
		return &genai.Part{Text: p.Text}, nil
	}
	data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
	if err != nil {
		return nil, fmt.Errorf("decode inline data: %w", err)
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: p.InlineData.MimeType, Data: data}}, nil
}

func toGenaiConfig(cfg *gemini.GenerationConfig) (*genai.GenerateContentConfig, error) {
	if cfg == nil {
		return nil, nil
	}
	out := &genai.GenerateContentConfig{
		ResponseMIMEType:   cfg.ResponseMimeType,
		ResponseSchema:     toGenaiSchema(cfg.ResponseSchema),
		ResponseModalities: cfg.ResponseModalities,
	}
	if cfg.SystemInstruction != "" {
		out.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstruction}}}
	}
	if cfg.Temperature != nil {
		t := float32(*cfg.Temperature)
		out.Temperature = &t
	}
	if len(cfg.Tools) > 0 {
		var tools []*genai.Tool
		if err := json.Unmarshal(cfg.Tools, &tools); err != nil {
			return nil, fmt.Errorf("decode tools: %w", err)
		}
		out.Tools = tools
	}
	if cfg.SpeechConfig != nil && cfg.SpeechConfig.VoiceName != "" {
		out.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.SpeechConfig.VoiceName},
			},
		}
	}
	return out, nil
}

func toGenaiSchema(schema *gemini.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}
	s := schema.Canonical()

	out := &genai.Schema{
		Type:             genai.Type(s.Type),
		Description:      s.Description,
		Format:           s.Format,
		Enum:             s.Enum,
		Required:         s.Required,
		PropertyOrdering: s.PropertyOrdering,
	}
	if s.Type == "" {
		out.Type = genai.TypeUnspecified
	}
	if s.Nullable {
		nullable := true
		out.Nullable = &nullable
	}
	if s.Items != nil {
		out.Items = toGenaiSchema(s.Items)
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for key, value := range s.Properties {
			out.Properties[key] = toGenaiSchema(value)
		}
	}
	return out
}

func fromGenaiResponse(resp *genai.GenerateContentResponse) *gemini.GenerateResponse {
	out := &gemini.GenerateResponse{Candidates: []gemini.Candidate{}}
	if resp == nil {
		return out
	}
	out.ModelVersion = resp.ModelVersion
	if u := resp.UsageMetadata; u != nil {
		out.UsageMetadata = &gemini.UsageMetadata{
			PromptTokenCount:     int(u.PromptTokenCount),
			CandidatesTokenCount: int(u.CandidatesTokenCount),
			TotalTokenCount:      int(u.TotalTokenCount),
		}
	}
	for i, c := range resp.Candidates {
		if c == nil {
			continue
		}
		cand := gemini.Candidate{Index: i, FinishReason: string(c.FinishReason)}
		if c.Content != nil {
			cand.Content.Role = c.Content.Role
			for _, p := range c.Content.Parts {
				if p == nil {
					continue
				}
				if p.InlineData != nil {
					cand.Content.Parts = append(cand.Content.Parts,
						gemini.DataPart(p.InlineData.MIMEType, base64.StdEncoding.EncodeToString(p.InlineData.Data)))
					continue
				}
				cand.Content.Parts = append(cand.Content.Parts, gemini.TextPart(p.Text))
			}
		}
		if c.GroundingMetadata != nil {
			if raw, err := json.Marshal(c.GroundingMetadata); err == nil {
				cand.GroundingMetadata = raw
			}
		}
		out.Candidates = append(out.Candidates, cand)
	}
	return out
}
