package gemini

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstText(t *testing.T) {
	var resp GenerateResponse
	require.NoError(t, json.Unmarshal([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"a\":1}"},{"text":"second"}]}},{"content":{"parts":[{"text":"other"}]}}]}`), &resp))

	resp.Normalize()
	assert.Equal(t, `{"a":1}`, resp.Text)

	var decoded map[string]int
	require.NoError(t, json.Unmarshal([]byte(resp.Text), &decoded))
	assert.Equal(t, map[string]int{"a": 1}, decoded)
}

func TestFirstText_MissingLinks(t *testing.T) {
	cases := map[string]string{
		"no candidates":     `{}`,
		"empty candidates":  `{"candidates":[]}`,
		"no content":        `{"candidates":[{}]}`,
		"empty parts":       `{"candidates":[{"content":{"parts":[]}}]}`,
		"first part binary": `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"audio/L16","data":"AAAA"}}]}}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var resp GenerateResponse
			require.NoError(t, json.Unmarshal([]byte(body), &resp))
			assert.NotPanics(t, func() { resp.Normalize() })
			assert.Equal(t, "", resp.Text)
			assert.NotNil(t, resp.Candidates)
		})
	}

	var nilResp *GenerateResponse
	assert.Equal(t, "", nilResp.FirstText())
	assert.Equal(t, "", nilResp.Normalize().Text)
}

func TestFirstInlineData(t *testing.T) {
	resp := &GenerateResponse{Candidates: []Candidate{{Content: Content{Parts: []Part{
		TextPart("caption"),
		DataPart("audio/L16;rate=24000", "AAAA"),
	}}}}}
	data := resp.FirstInlineData()
	require.NotNil(t, data)
	assert.Equal(t, "audio/L16;rate=24000", data.MimeType)
	assert.Nil(t, (&GenerateResponse{}).FirstInlineData())
}

func TestValidate(t *testing.T) {
	valid := &GenerateRequest{Contents: []Content{UserContent(TextPart("hello"), DataPart("application/pdf", "JVBERi0xLjQ="))}}
	assert.NoError(t, Validate(valid))

	cases := map[string]*GenerateRequest{
		"nil contents":    {},
		"empty parts":     {Contents: []Content{{Role: RoleUser}}},
		"empty part":      {Contents: []Content{UserContent(Part{})}},
		"bad role":        {Contents: []Content{{Role: "system", Parts: []Part{TextPart("x")}}}},
		"bad base64":      {Contents: []Content{UserContent(DataPart("image/png", "not base64!"))}},
		"missing mime":    {Contents: []Content{UserContent(DataPart("", "AAAA"))}},
		"bad temperature": {Contents: []Content{UserContent(TextPart("x"))}, Config: &GenerationConfig{Temperature: ptr(3.5)}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Validate(req))
		})
	}
	assert.Error(t, Validate(nil))
}

func TestRESTRoundTrip(t *testing.T) {
	req := &GenerateRequest{
		Model:    "gemini-2.5-pro",
		Contents: []Content{UserContent(TextPart("hi"))},
		Config: &GenerationConfig{
			SystemInstruction: "be brief",
			ResponseMimeType:  MimeJSON,
			ResponseSchema:    &Schema{Type: "object", Properties: map[string]*Schema{"a": {Type: "integer"}}},
			Temperature:       ptr(0),
			SpeechConfig:      &SpeechConfig{VoiceName: "Kore"},
		},
	}

	rest := ToREST(req)
	require.NotNil(t, rest.SystemInstruction)
	assert.Equal(t, "be brief", rest.SystemInstruction.Parts[0].Text)
	require.NotNil(t, rest.GenerationConfig)
	assert.Equal(t, TypeObject, rest.GenerationConfig.ResponseSchema.Type)
	assert.Equal(t, TypeInteger, rest.GenerationConfig.ResponseSchema.Properties["a"].Type)
	assert.Equal(t, "object", req.Config.ResponseSchema.Type, "canonicalization must not mutate the caller's schema")

	raw, err := json.Marshal(rest)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"temperature":0`)
	assert.Contains(t, string(raw), `"voiceName":"Kore"`)

	var decoded RESTRequest
	require.NoError(t, json.Unmarshal(raw, &decoded))
	back := FromREST(req.Model, &decoded)
	assert.Equal(t, req.Model, back.Model)
	assert.Equal(t, "be brief", back.Config.SystemInstruction)
	assert.Equal(t, MimeJSON, back.Config.ResponseMimeType)
	assert.Equal(t, "Kore", back.Config.SpeechConfig.VoiceName)
	require.NotNil(t, back.Config.Temperature)
	assert.Equal(t, 0.0, *back.Config.Temperature)
}

func TestFromREST_SnakeSystemInstruction(t *testing.T) {
	var rest RESTRequest
	require.NoError(t, json.Unmarshal([]byte(`{"contents":[{"role":"user","parts":[{"text":"q"}]}],"system_instruction":{"parts":[{"text":"sys"}]}}`), &rest))
	req := FromREST("m", &rest)
	require.NotNil(t, req.Config)
	assert.Equal(t, "sys", req.Config.SystemInstruction)

	plain := FromREST("m", &RESTRequest{Contents: rest.Contents})
	assert.Nil(t, plain.Config)
	assert.Nil(t, ToREST(plain).GenerationConfig)
}

func TestValidateJSON(t *testing.T) {
	schema := Object(map[string]*Schema{
		"score":   Integer("overall score"),
		"ratio":   Number(""),
		"level":   Enum("", "A1", "A2", "B1"),
		"passed":  Boolean(""),
		"tags":    ArrayOf(String("")),
		"comment": {Type: TypeString, Nullable: true},
	}, "score", "level")

	assert.NoError(t, ValidateJSON(schema, `{"score":90,"level":"B1","ratio":0.5,"passed":true,"tags":["x"],"comment":null}`))
	assert.NoError(t, ValidateJSON(schema, `{"score":90.0,"level":"A1"}`))

	cases := map[string]string{
		"empty":            ``,
		"not json":         `Sure! Here is your JSON`,
		"trailing":         `{"score":1,"level":"A1"} extra`,
		"missing required": `{"level":"A1"}`,
		"wrong type":       `{"score":"high","level":"A1"}`,
		"fraction":         `{"score":1.5,"level":"A1"}`,
		"enum":             `{"score":1,"level":"C2"}`,
		"array item":       `{"score":1,"level":"A1","tags":[1]}`,
		"null":             `{"score":null,"level":"A1"}`,
		"top level":        `[]`,
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			err := ValidateJSON(schema, text)
			var se *SchemaError
			assert.ErrorAs(t, err, &se)
		})
	}

	err := ValidateJSON(schema, `{"score":1,"level":"A1","tags":["a",2]}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$.tags[1]")
}

func ptr(f float64) *float64 { return &f }
