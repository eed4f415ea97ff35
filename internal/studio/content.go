package studio

import (
	"context"

	apierrors "github.com/zhengjr9/genrelay/internal/errors"
	"github.com/zhengjr9/genrelay/internal/gemini"
)

type PolishInput struct {
	Text     string `json:"text" validate:"required"`
	Tone     string `json:"tone,omitempty" validate:"omitempty,oneof=professional friendly concise academic"`
	Language string `json:"language,omitempty"`
}

type PolishResult struct {
	Text    string   `json:"text"`
	Changes []string `json:"changes"`
}

var polishSchema = gemini.Object(map[string]*gemini.Schema{
	"text":    gemini.String("The polished text"),
	"changes": gemini.ArrayOf(gemini.String("One short note per notable edit")),
}, "text", "changes")

// PolishContent rewrites text in the requested tone, keeping its meaning.
func (s *Service) PolishContent(ctx context.Context, in PolishInput) (*PolishResult, error) {
	if err := checkInput(in); err != nil {
		return nil, err
	}
	tone := in.Tone
	if tone == "" {
		tone = "professional"
	}
	prompt := "Polish the following text. Keep the meaning and fix grammar and flow.\n" + lines(
		"Tone", tone,
		"Output language", in.Language,
	)
	req := s.jsonRequest("You are a careful copy editor. Respond only with JSON matching the schema.",
		polishSchema, 0.3, gemini.TextPart(prompt), gemini.TextPart(in.Text))
	out, err := runJSON[PolishResult](ctx, s, "Failed to polish content", req)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type SpeechInput struct {
	Text  string `json:"text" validate:"required,max=5000"`
	Voice string `json:"voice,omitempty"`
}

// Speech is base64 audio exactly as the model returned it.
type Speech struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// SynthesizeSpeech reads text aloud with a prebuilt voice.
func (s *Service) SynthesizeSpeech(ctx context.Context, in SpeechInput) (*Speech, error) {
	const action = "Failed to synthesize speech"
	if err := checkInput(in); err != nil {
		return nil, err
	}
	voice := in.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	req := &gemini.GenerateRequest{
		Model:    s.speechModel,
		Contents: []gemini.Content{gemini.UserContent(gemini.TextPart(in.Text))},
		Config: &gemini.GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig:       &gemini.SpeechConfig{VoiceName: voice},
		},
	}

	resp, err := s.caller.Generate(ctx, req)
	if err != nil {
		return nil, apierrors.Annotate(err, action)
	}
	audio := resp.FirstInlineData()
	if audio == nil {
		return nil, apierrors.Annotate(apierrors.New(apierrors.KindMalformedResponse, "response carries no audio"), action)
	}
	return &Speech{MimeType: audio.MimeType, Data: audio.Data}, nil
}
