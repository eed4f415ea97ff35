// Package studio holds the feature-level generation functions behind the
// résumé optimizer and lesson-plan generator. Each feature builds its prompt
// and response schema, runs it through the generator, and annotates failures
// with user-facing context.
package studio

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "github.com/zhengjr9/genrelay/internal/errors"
	"github.com/zhengjr9/genrelay/internal/gemini"
	"github.com/zhengjr9/genrelay/internal/generator"
)

// DefaultSpeechModel is used by SynthesizeSpeech when no model is configured.
const DefaultSpeechModel = "gemini-2.5-flash-preview-tts"

// DefaultVoice is the prebuilt voice used when the caller names none.
const DefaultVoice = "Kore"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Service runs studio features. Model may be empty to use the generator's
// default.
type Service struct {
	caller      generator.Caller
	model       string
	speechModel string
}

// Option customizes a Service.
type Option func(*Service)

// WithModel overrides the model used by the text features.
func WithModel(model string) Option {
	return func(s *Service) { s.model = model }
}

// WithSpeechModel overrides the model used by SynthesizeSpeech.
func WithSpeechModel(model string) Option {
	return func(s *Service) {
		if model != "" {
			s.speechModel = model
		}
	}
}

// New returns a Service calling through c.
func New(c generator.Caller, opts ...Option) *Service {
	s := &Service{caller: c, speechModel: DefaultSpeechModel}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Document is an uploaded file passed through as inline data.
type Document struct {
	MimeType string `json:"mimeType" validate:"required"`
	Data     string `json:"data" validate:"required,base64"`
}

func (d *Document) part() gemini.Part {
	return gemini.DataPart(d.MimeType, d.Data)
}

func checkInput(in any) error {
	if err := validate.Struct(in); err != nil {
		return apierrors.Wrap(apierrors.KindInvalidRequest, err)
	}
	return nil
}

// jsonRequest assembles a schema-constrained request.
func (s *Service) jsonRequest(system string, schema *gemini.Schema, temperature float64, parts ...gemini.Part) *gemini.GenerateRequest {
	return &gemini.GenerateRequest{
		Model:    s.model,
		Contents: []gemini.Content{gemini.UserContent(parts...)},
		Config: &gemini.GenerationConfig{
			SystemInstruction: system,
			ResponseMimeType:  gemini.MimeJSON,
			ResponseSchema:    schema,
			Temperature:       &temperature,
		},
	}
}

func runJSON[T any](ctx context.Context, s *Service, action string, req *gemini.GenerateRequest) (T, error) {
	out, err := generator.GenerateJSON[T](ctx, s.caller, req)
	if err != nil {
		return out, apierrors.Annotate(err, action)
	}
	return out, nil
}

// lines renders labelled prompt fields, skipping empty values.
func lines(kv ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if strings.TrimSpace(kv[i+1]) == "" {
			continue
		}
		b.WriteString(kv[i])
		b.WriteString(": ")
		b.WriteString(kv[i+1])
		b.WriteByte('\n')
	}
	return b.String()
}
