package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultTimeout bounds one generation request end to end
const DefaultTimeout = 30 * time.Second

// Settings are read from the llm.* config keys
type Settings struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func settingsFromConfig() Settings {
	s := Settings{
		APIURL:  viper.GetString("llm.api_url"),
		APIKey:  viper.GetString("llm.api_key"),
		Model:   viper.GetString("llm.model"),
		Timeout: viper.GetDuration("llm.timeout"),
	}
	if s.APIURL == "" {
		s.APIURL = "http://localhost:8080"
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	return s
}

// OpenAIProvider implements Generator against an OpenAI-compatible chat completions API
type OpenAIProvider struct {
	settings Settings
	client   *http.Client
}

// NewOpenAIProvider creates a new OpenAI-compatible provider client
func NewOpenAIProvider(s Settings) *OpenAIProvider {
	if s.Model == "" {
		s.Model = "gpt-4o-mini"
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	return &OpenAIProvider{
		settings: s,
		client: &http.Client{
			Timeout: s.Timeout,
		},
	}
}

// Generate implements Generator.Generate for OpenAI
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	reqBody := map[string]interface{}{
		"model": o.settings.Model,
		"messages": []message{
			{Role: "user", Content: prompt},
		},
		"max_tokens":  500,
		"temperature": 0.7,
	}

	endpoint := strings.TrimRight(o.settings.APIURL, "/") + "/v1/chat/completions"
	headers := map[string]string{}
	if o.settings.APIKey != "" {
		headers["Authorization"] = "Bearer " + o.settings.APIKey
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := postJSON(ctx, o.client, endpoint, headers, reqBody, &parsed); err != nil {
		return "", err
	}

	if len(parsed.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// GeminiProvider implements Generator for the Google Gemini generateContent API
type GeminiProvider struct {
	settings Settings
	client   *http.Client
}

// NewGeminiProvider creates a new Gemini provider client
func NewGeminiProvider(s Settings) *GeminiProvider {
	if s.Model == "" {
		s.Model = "gemini-1.5-flash"
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	return &GeminiProvider{
		settings: s,
		client: &http.Client{
			Timeout: s.Timeout,
		},
	}
}

// Generate implements Generator.Generate for Gemini
func (g *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":     0.7,
			"maxOutputTokens": 500,
		},
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(g.settings.APIURL, "/"), url.PathEscape(g.settings.Model))
	if g.settings.APIKey != "" {
		endpoint += "?key=" + url.QueryEscape(g.settings.APIKey)
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := postJSON(ctx, g.client, endpoint, nil, reqBody, &parsed); err != nil {
		return "", err
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no content in Gemini response")
	}
	return strings.TrimSpace(parsed.Candidates[0].Content.Parts[0].Text), nil
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, body, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to generate text: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// NewProvider creates a generator based on configuration
// llm.type can be "openai" or "gemini" (defaults to "openai")
func NewProvider() Generator {
	providerType := viper.GetString("llm.type")
	if providerType == "" {
		providerType = "openai" // Default to OpenAI-compatible
	}

	settings := settingsFromConfig()
	switch strings.ToLower(providerType) {
	case "gemini":
		return NewGeminiProvider(settings)
	case "openai":
		fallthrough
	default:
		return NewOpenAIProvider(settings)
	}
}
