package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	// DefaultGeminiEndpoint is the public Generative Language API base URL.
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultGeminiModel is used when no model is configured.
	DefaultGeminiModel = "gemini-2.0-flash-001"

	geminiTemperature = 0.1
	maxResponseBytes  = 1 << 20
)

// translationSchema is both sent to Gemini as the structured-output schema
// and used to validate what comes back.
const translationSchema = `{
  "type": "object",
  "properties": {
    "translated_text": {"type": "string", "minLength": 1},
    "detected_lang":   {"type": "string"}
  },
  "required": ["translated_text"]
}`

var compiledTranslationSchema = jsonschema.MustCompileString("translation.schema.json", translationSchema)

// Gemini calls the Gemini generateContent REST endpoint with structured JSON
// output. It is safe for concurrent use.
type Gemini struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewGemini builds a Gemini client. Empty model/endpoint fall back to the
// defaults; a nil client uses one without its own timeout, since callers
// bound each call through ctx.
func NewGemini(apiKey, model, endpoint string, client *http.Client) *Gemini {
	if strings.TrimSpace(model) == "" {
		model = DefaultGeminiModel
	}
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultGeminiEndpoint
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Gemini{
		apiKey:   apiKey,
		model:    strings.TrimSpace(model),
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		client:   client,
	}
}

// Name returns the provider id recorded in window metadata.
func (g *Gemini) Name() string { return "gemini" }

// Model returns the configured model id.
func (g *Gemini) Model() string { return g.model }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenConfig struct {
	Temperature        float64         `json:"temperature"`
	ResponseMimeType   string          `json:"responseMimeType"`
	ResponseJSONSchema json.RawMessage `json:"responseJsonSchema"`
}

type geminiRequest struct {
	SystemInstruction geminiContent   `json:"systemInstruction"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *geminiError `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type translationPayload struct {
	TranslatedText string `json:"translated_text"`
	DetectedLang   string `json:"detected_lang"`
}

// Translate implements Translator.
func (g *Gemini) Translate(ctx context.Context, text, targetLang string, opts Options) (*Result, error) {
	started := time.Now()

	sys := systemPrompt(targetLang, opts) +
		" Respond with JSON: translated_text holds only the translation, detected_lang the ISO 639-1 code of the source text."
	body, err := json.Marshal(geminiRequest{
		SystemInstruction: geminiContent{Parts: []geminiPart{{Text: sys}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: text}}}},
		GenerationConfig: geminiGenConfig{
			Temperature:        geminiTemperature,
			ResponseMimeType:   "application/json",
			ResponseJSONSchema: json.RawMessage(translationSchema),
		},
	})
	if err != nil {
		return nil, NewError(KindProviderError, "marshal request", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.endpoint, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(KindProviderError, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)
	if opts.RequestID != "" {
		req.Header.Set("X-Request-ID", opts.RequestID)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, Classify(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, Classify(err)
	}

	var parsed geminiResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return nil, classifyMessage(resp.StatusCode, msg, nil)
	}
	if decodeErr != nil {
		return nil, NewError(KindProviderError, "decode response", decodeErr)
	}
	if parsed.Error != nil {
		return nil, classifyMessage(parsed.Error.Code, parsed.Error.Message, nil)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, NewError(KindProviderError, "empty response", nil)
	}

	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	payload, err := decodeTranslation(sb.String())
	if err != nil {
		return nil, err
	}

	return &Result{
		TranslatedText: payload.TranslatedText,
		DetectedLang:   strings.ToLower(strings.TrimSpace(payload.DetectedLang)),
		TokensIn:       parsed.UsageMetadata.PromptTokenCount,
		TokensOut:      parsed.UsageMetadata.CandidatesTokenCount,
		LatencyMs:      time.Since(started).Milliseconds(),
		Provider:       g.Name(),
		Model:          g.model,
	}, nil
}

// decodeTranslation validates the model's structured output against
// translationSchema and returns the trimmed payload.
func decodeTranslation(out string) (*translationPayload, error) {
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, NewError(KindProviderError, "empty response", nil)
	}
	var doc any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		return nil, NewError(KindProviderError, "response is not JSON", err)
	}
	if err := compiledTranslationSchema.Validate(doc); err != nil {
		return nil, NewError(KindProviderError, "response failed schema validation", err)
	}
	var p translationPayload
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		return nil, NewError(KindProviderError, "decode translation", err)
	}
	p.TranslatedText = strings.TrimSpace(p.TranslatedText)
	if p.TranslatedText == "" {
		return nil, NewError(KindProviderError, "empty response", nil)
	}
	return &p, nil
}
