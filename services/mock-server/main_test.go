package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stoik/inboxiq/services/mock-server/internal/mock"
)

const prompt = "Recipient name: Bob Jones\nPrevious subject: Pricing\n"

func post(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func chatBody(t *testing.T) string {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{
		"model":    "gpt-4o-mini",
		"messages": []map[string]string{{"role": "user", "content": prompt}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestChatCompletions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	defer mock.SetMode(mock.ModeOK)
	r := newRouter()

	tests := []struct {
		mode        mock.Mode
		wantStatus  int
		wantContent string
	}{
		{mode: mock.ModeOK, wantStatus: http.StatusOK, wantContent: "Subject: Following up on Pricing\n\nHi Bob,"},
		{mode: mock.ModeEmpty, wantStatus: http.StatusOK, wantContent: ""},
		{mode: mock.ModeError, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		if err := mock.SetMode(tt.mode); err != nil {
			t.Fatal(err)
		}
		w := post(r, "/v1/chat/completions", chatBody(t))
		if w.Code != tt.wantStatus {
			t.Errorf("mode %s: status = %d; want %d", tt.mode, w.Code, tt.wantStatus)
			continue
		}
		if tt.wantStatus != http.StatusOK {
			continue
		}

		var resp struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || len(resp.Choices) != 1 {
			t.Fatalf("mode %s: bad body %s", tt.mode, w.Body.String())
		}
		if got := resp.Choices[0].Message.Content; !strings.HasPrefix(got, tt.wantContent) || (tt.wantContent == "" && got != "") {
			t.Errorf("mode %s: content = %q; want prefix %q", tt.mode, got, tt.wantContent)
		}
	}
}

func TestGenerateContent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock.SetMode(mock.ModeOK)
	r := newRouter()

	body := `{"contents":[{"parts":[{"text":"Recipient name: \nPrevious subject: Renewal\n"}]}]}`
	w := post(r, "/v1beta/models/gemini-1.5-flash:generateContent", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `Subject: Following up on Renewal\n\nHi there,`) {
		t.Errorf("body = %s", w.Body.String())
	}

	if w := post(r, "/v1beta/models/gemini-1.5-flash:countTokens", body); w.Code != http.StatusNotFound {
		t.Errorf("unknown method status = %d; want 404", w.Code)
	}
}

func TestSetFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	defer mock.SetMode(mock.ModeOK)
	r := newRouter()

	if w := post(r, "/admin/failures", `{"mode":"error"}`); w.Code != http.StatusOK {
		t.Errorf("set error mode = %d", w.Code)
	}
	if w := post(r, "/admin/failures?mode=bogus", ""); w.Code != http.StatusBadRequest {
		t.Errorf("set bogus mode = %d; want 400", w.Code)
	}
	if w := post(r, "/admin/failures", ""); w.Code != http.StatusOK {
		t.Errorf("reset mode = %d", w.Code)
	}
	if got := mock.CurrentMode(); got != mock.ModeOK {
		t.Errorf("mode after reset = %s; want ok", got)
	}
}
