package generate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"google.golang.org/genai"
)

func fakeServer(t *testing.T, pattern string, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Post(pattern, handler)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func writeStatus(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

var statusCases = []struct {
	status    int
	retryable bool
}{
	{http.StatusTooManyRequests, true},
	{http.StatusInternalServerError, true},
	{http.StatusServiceUnavailable, true},
	{http.StatusBadRequest, false},
	{http.StatusUnauthorized, false},
}

func checkClassified(t *testing.T, provider string, status int, wantRetryable bool, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s %d: expected error", provider, status)
	}
	var re *RetryableError
	if got := errors.As(err, &re); got != wantRetryable {
		t.Fatalf("%s %d: retryable = %v, want %v (%v)", provider, status, got, wantRetryable, err)
	}
	if wantRetryable && re.StatusCode != status {
		t.Errorf("%s: StatusCode = %d, want %d", provider, re.StatusCode, status)
	}
}

func TestClaudeClient_Complete(t *testing.T) {
	srv := fakeServer(t, "/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("X-Api-Key"); key != "ant-test" {
			t.Errorf("unexpected api key %q", key)
		}
		writeStatus(w, http.StatusOK, map[string]any{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-3-5-haiku-latest",
			"content":     []map[string]string{{"type": "text", "text": "[]"}},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 1},
		})
	})

	c := NewClaudeClient(ClientConfig{APIKey: "ant-test", BaseURL: srv.URL + "/", Model: "claude-3-5-haiku-latest", MaxTokens: 100})
	out, err := c.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "[]" {
		t.Errorf("out = %q", out)
	}
}

func TestClaudeClient_ClassifiesStatus(t *testing.T) {
	for _, tc := range statusCases {
		srv := fakeServer(t, "/v1/messages", func(w http.ResponseWriter, r *http.Request) {
			writeStatus(w, tc.status, map[string]any{
				"type":  "error",
				"error": map[string]string{"type": "api_error", "message": "boom"},
			})
		})
		c := NewClaudeClient(ClientConfig{APIKey: "ant-test", BaseURL: srv.URL + "/", Model: "claude-3-5-haiku-latest", MaxTokens: 100})
		_, err := c.Complete(context.Background(), "hello")
		checkClassified(t, "claude", tc.status, tc.retryable, err)
	}
}

func TestGeminiClient_Complete(t *testing.T) {
	srv := fakeServer(t, "/v1beta/*", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]string{{"text": "[]"}},
				},
				"finishReason": "STOP",
			}},
		})
	})

	c, err := NewGeminiClient(context.Background(), ClientConfig{APIKey: "g-test", BaseURL: srv.URL + "/", Model: "gemini-2.0-flash", MaxTokens: 100})
	if err != nil {
		t.Fatalf("NewGeminiClient: %v", err)
	}
	out, err := c.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "[]" {
		t.Errorf("out = %q", out)
	}
}

func TestGeminiClient_ClassifiesStatus(t *testing.T) {
	for _, tc := range statusCases {
		srv := fakeServer(t, "/v1beta/*", func(w http.ResponseWriter, r *http.Request) {
			writeStatus(w, tc.status, map[string]any{
				"error": map[string]any{"code": tc.status, "message": "boom", "status": "UNAVAILABLE"},
			})
		})
		c, err := NewGeminiClient(context.Background(), ClientConfig{APIKey: "g-test", BaseURL: srv.URL + "/", Model: "gemini-2.0-flash", MaxTokens: 100})
		if err != nil {
			t.Fatalf("NewGeminiClient: %v", err)
		}
		_, err = c.Complete(context.Background(), "hello")
		checkClassified(t, "gemini", tc.status, tc.retryable, err)
	}
}

func TestClassifyGeminiError_ValueAndPointer(t *testing.T) {
	if !IsRetryable(classifyGeminiError(genai.APIError{Code: 503, Message: "busy"})) {
		t.Error("APIError value with 503 should be retryable")
	}
	if !IsRetryable(classifyGeminiError(&genai.APIError{Code: 429, Message: "quota"})) {
		t.Error("*APIError with 429 should be retryable")
	}
	if IsRetryable(classifyGeminiError(genai.APIError{Code: 400, Message: "bad"})) {
		t.Error("APIError with 400 should not be retryable")
	}
}
