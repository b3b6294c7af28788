package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestOpenAIProviderGenerate(t *testing.T) {
	var gotAuth, gotPath, gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && len(req.Messages) > 0 {
			gotPrompt = req.Messages[0].Content
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"  Subject: Hi\n\nBody  "}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(Settings{APIURL: srv.URL + "/", APIKey: "sk-test"})
	got, err := p.Generate(context.Background(), "write a follow-up")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "Subject: Hi\n\nBody" {
		t.Errorf("Generate() = %q", got)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPrompt != "write a follow-up" {
		t.Errorf("prompt = %q", gotPrompt)
	}
}

func TestGeminiProviderGenerate(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Subject: Hello"}]}}]}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(Settings{APIURL: srv.URL, APIKey: "g-key", Model: "gemini-pro"})
	got, err := p.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "Subject: Hello" {
		t.Errorf("Generate() = %q", got)
	}
	if gotPath != "/v1beta/models/gemini-pro:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "g-key" {
		t.Errorf("key = %q", gotKey)
	}
}

func TestGenerateFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "overloaded", wantErr: "unexpected status 500"},
		{name: "bad json", status: http.StatusOK, body: "{", wantErr: "failed to decode response"},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, wantErr: "no choices"},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(tt.body))
		}))

		_, err := NewOpenAIProvider(Settings{APIURL: srv.URL}).Generate(context.Background(), "p")
		srv.Close()
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("%s: Generate() error = %v; want %q", tt.name, err, tt.wantErr)
		}
	}
}

func TestGenerateTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewOpenAIProvider(Settings{APIURL: srv.URL, Timeout: 50 * time.Millisecond})
	start := time.Now()
	if _, err := p.Generate(context.Background(), "p"); err == nil {
		t.Fatal("Generate() error = nil; want timeout")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Generate() took %v; timeout not enforced", elapsed)
	}
}

func TestNewProviderFromConfig(t *testing.T) {
	defer viper.Reset()

	viper.Set("llm.type", "gemini")
	if _, ok := NewProvider().(*GeminiProvider); !ok {
		t.Errorf("llm.type=gemini did not build a GeminiProvider")
	}

	viper.Set("llm.type", "")
	p, ok := NewProvider().(*OpenAIProvider)
	if !ok {
		t.Fatalf("default provider is not OpenAIProvider")
	}
	if p.settings.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v; want %v", p.settings.Timeout, DefaultTimeout)
	}
	if p.client.Timeout != DefaultTimeout {
		t.Errorf("client Timeout = %v; want %v", p.client.Timeout, DefaultTimeout)
	}
}
