package gemini

import "encoding/json"

// DefaultModel is used when a request omits the model.
const DefaultModel = "gemini-2.5-flash"

const (
	RoleUser  = "user"
	RoleModel = "model"

	MimeJSON = "application/json"
)

// GenerateRequest is the normalized generation request exchanged between
// feature code and the invocation proxy.
type GenerateRequest struct {
	Model    string            `json:"model,omitempty"`
	Contents []Content         `json:"contents" validate:"required,min=1,dive"`
	Config   *GenerationConfig `json:"config,omitempty" validate:"omitempty"`
}

// Content is a single turn in a conversation.
type Content struct {
	Role  string `json:"role,omitempty" validate:"omitempty,oneof=user model"`
	Parts []Part `json:"parts" validate:"required,min=1,dive"`
}

// Part carries either inline text or inline binary data.
type Part struct {
	Text       string      `json:"text,omitempty" validate:"required_without=InlineData"`
	InlineData *InlineData `json:"inlineData,omitempty" validate:"omitempty"`
}

// InlineData is base64-encoded binary data with its MIME type.
type InlineData struct {
	MimeType string `json:"mimeType" validate:"required"`
	Data     string `json:"data" validate:"required,base64"`
}

// GenerationConfig tunes a single generation.
type GenerationConfig struct {
	SystemInstruction string  `json:"systemInstruction,omitempty"`
	ResponseMimeType  string  `json:"responseMimeType,omitempty"`
	ResponseSchema    *Schema `json:"responseSchema,omitempty"`
	// Temperature is a pointer so an explicit 0 survives the round trip.
	Temperature        *float64        `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	Tools              json.RawMessage `json:"tools,omitempty"`
	ResponseModalities []string        `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig   `json:"speechConfig,omitempty"`
}

// SpeechConfig selects a prebuilt voice for AUDIO output.
type SpeechConfig struct {
	VoiceName string `json:"voiceName"`
}

// GenerateResponse is the normalized response. Text is the first candidate's
// first text part, flattened for convenience.
type GenerateResponse struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
	Text          string         `json:"text"`
}

// Candidate is one response candidate.
type Candidate struct {
	Content           Content         `json:"content"`
	FinishReason      string          `json:"finishReason,omitempty"`
	Index             int             `json:"index"`
	GroundingMetadata json.RawMessage `json:"groundingMetadata,omitempty"`
}

// UsageMetadata carries token counts.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// TextPart builds a text Part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// DataPart builds an inline data Part from already base64-encoded data.
func DataPart(mimeType, data string) Part {
	return Part{InlineData: &InlineData{MimeType: mimeType, Data: data}}
}

// UserContent builds a single user turn.
func UserContent(parts ...Part) Content {
	return Content{Role: RoleUser, Parts: parts}
}
