package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultOpenAIEndpoint is the base URL of the OpenAI API. Any
	// OpenAI-compatible server (vLLM, llama.cpp, LocalAI) works as well.
	DefaultOpenAIEndpoint = "https://api.openai.com/v1"
	// DefaultOpenAIModel is used when no model is configured.
	DefaultOpenAIModel = "gpt-4o-mini"
)

// OpenAI translates through an OpenAI-compatible chat completions endpoint
// using JSON-mode output validated against the same schema as Gemini.
type OpenAI struct {
	apiKey      string
	model       string
	endpointURL string
	client      *http.Client
}

// NewOpenAI builds an OpenAI-compatible client. endpoint may be the API base
// (".../v1") or the full chat completions URL.
func NewOpenAI(apiKey, model, endpoint string, client *http.Client) *OpenAI {
	if strings.TrimSpace(model) == "" {
		model = DefaultOpenAIModel
	}
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultOpenAIEndpoint
	}
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAI{
		apiKey:      apiKey,
		model:       strings.TrimSpace(model),
		endpointURL: chatCompletionsURL(endpoint),
		client:      client,
	}
}

func chatCompletionsURL(endpoint string) string {
	e := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if strings.HasSuffix(e, "/chat/completions") {
		return e
	}
	return e + "/chat/completions"
}

// Name returns the provider id recorded in window metadata.
func (p *OpenAI) Name() string { return "openai" }

// Model returns the configured model id.
func (p *OpenAI) Model() string { return p.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Translate implements Translator.
func (p *OpenAI) Translate(ctx context.Context, text, targetLang string, opts Options) (*Result, error) {
	started := time.Now()

	reqBody := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(targetLang, opts) +
				` Reply with a JSON object {"translated_text": string, "detected_lang": ISO 639-1 code of the source}.`},
			{Role: "user", Content: text},
		},
		Temperature: geminiTemperature,
	}
	reqBody.ResponseFormat.Type = "json_object"

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, NewError(KindProviderError, "marshal request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(KindProviderError, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	if opts.RequestID != "" {
		req.Header.Set("X-Request-ID", opts.RequestID)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, Classify(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, Classify(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		var ep chatErrorResponse
		if json.Unmarshal(raw, &ep) == nil && strings.TrimSpace(ep.Error.Message) != "" {
			msg = strings.TrimSpace(ep.Error.Message)
		}
		return nil, classifyMessage(resp.StatusCode, msg, nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, NewError(KindProviderError, "decode response", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, NewError(KindProviderError, "empty response", nil)
	}
	payload, err := decodeTranslation(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	return &Result{
		TranslatedText: payload.TranslatedText,
		DetectedLang:   strings.ToLower(strings.TrimSpace(payload.DetectedLang)),
		TokensIn:       parsed.Usage.PromptTokens,
		TokensOut:      parsed.Usage.CompletionTokens,
		LatencyMs:      time.Since(started).Milliseconds(),
		Provider:       p.Name(),
		Model:          p.model,
	}, nil
}
