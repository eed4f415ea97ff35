package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the structural contract of a request: non-empty contents,
// every part carrying text or base64 inline data.
func Validate(req *GenerateRequest) error {
	if req == nil {
		return errors.New("request must not be nil")
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid request: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// RESTRequest mirrors the Gemini generateContent request body.
type RESTRequest struct {
	Contents          []Content             `json:"contents"`
	SystemInstruction *Content              `json:"systemInstruction,omitempty"`
	GenerationConfig  *RESTGenerationConfig `json:"generationConfig,omitempty"`
	Tools             json.RawMessage       `json:"tools,omitempty"`

	// Accepted on input only; some clients send the snake_case spelling.
	SystemInstructionSnake *Content `json:"system_instruction,omitempty"`
}

// RESTGenerationConfig is the generationConfig block of a REST request.
type RESTGenerationConfig struct {
	ResponseMimeType   string            `json:"responseMimeType,omitempty"`
	ResponseSchema     *Schema           `json:"responseSchema,omitempty"`
	Temperature        *float64          `json:"temperature,omitempty"`
	ResponseModalities []string          `json:"responseModalities,omitempty"`
	SpeechConfig       *RESTSpeechConfig `json:"speechConfig,omitempty"`
}

type RESTSpeechConfig struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

// ToREST converts a normalized request into the Gemini REST body.
func ToREST(req *GenerateRequest) *RESTRequest {
	out := &RESTRequest{Contents: req.Contents}
	cfg := req.Config
	if cfg == nil {
		return out
	}
	if cfg.SystemInstruction != "" {
		out.SystemInstruction = &Content{Parts: []Part{TextPart(cfg.SystemInstruction)}}
	}
	out.Tools = cfg.Tools

	gc := &RESTGenerationConfig{
		ResponseMimeType:   cfg.ResponseMimeType,
		ResponseSchema:     cfg.ResponseSchema.Canonical(),
		Temperature:        cfg.Temperature,
		ResponseModalities: cfg.ResponseModalities,
	}
	if cfg.SpeechConfig != nil && cfg.SpeechConfig.VoiceName != "" {
		sc := &RESTSpeechConfig{}
		sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName = cfg.SpeechConfig.VoiceName
		gc.SpeechConfig = sc
	}
	if gc.ResponseMimeType != "" || gc.ResponseSchema != nil || gc.Temperature != nil ||
		len(gc.ResponseModalities) > 0 || gc.SpeechConfig != nil {
		out.GenerationConfig = gc
	}
	return out
}

// FromREST converts a Gemini REST body back into a normalized request.
func FromREST(model string, rest *RESTRequest) *GenerateRequest {
	req := &GenerateRequest{Model: model, Contents: rest.Contents}

	sys := rest.SystemInstruction
	if sys == nil {
		sys = rest.SystemInstructionSnake
	}

	cfg := &GenerationConfig{Tools: rest.Tools}
	if sys != nil {
		cfg.SystemInstruction = joinText(sys.Parts)
	}
	if gc := rest.GenerationConfig; gc != nil {
		cfg.ResponseMimeType = gc.ResponseMimeType
		cfg.ResponseSchema = gc.ResponseSchema
		cfg.Temperature = gc.Temperature
		cfg.ResponseModalities = gc.ResponseModalities
		if gc.SpeechConfig != nil {
			cfg.SpeechConfig = &SpeechConfig{VoiceName: gc.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName}
		}
	}
	if cfg.SystemInstruction != "" || cfg.ResponseMimeType != "" || cfg.ResponseSchema != nil ||
		cfg.Temperature != nil || len(cfg.Tools) > 0 || len(cfg.ResponseModalities) > 0 || cfg.SpeechConfig != nil {
		req.Config = cfg
	}
	return req
}

func joinText(parts []Part) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "")
}
