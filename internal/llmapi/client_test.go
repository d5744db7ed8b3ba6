package llmapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCompleteJSON(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"answer": 42}`}},
			},
		})
	}))
	defer server.Close()

	c := New(server.URL, "secret", "test-model", time.Second)
	content, err := c.CompleteJSON(context.Background(), []Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "what is the answer"},
	}, 0.1, 100)
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}

	if content != `{"answer": 42}` {
		t.Errorf("content = %q", content)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotBody.Model != "test-model" {
		t.Errorf("model = %q, want test-model", gotBody.Model)
	}
	if gotBody.ResponseFormat == nil || gotBody.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v, want json_object", gotBody.ResponseFormat)
	}
	if gotBody.MaxTokens != 100 {
		t.Errorf("max_tokens = %d, want 100", gotBody.MaxTokens)
	}
}

func TestCompleteJSON_NoAuthHeaderWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("unexpected Authorization header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "{}"}}},
		})
	}))
	defer server.Close()

	c := New(server.URL, "", "m", time.Second)
	if _, err := c.CompleteJSON(context.Background(), []Message{{Role: "user", Content: "hi"}}, 0, 0); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
}

func TestCompleteJSON_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := New(server.URL, "", "m", time.Second)
	if _, err := c.CompleteJSON(context.Background(), []Message{{Role: "user", Content: "hi"}}, 0, 0); err == nil {
		t.Fatal("expected error for 429")
	}
}

func TestCompleteJSON_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	c := New(server.URL, "", "m", time.Second)
	if _, err := c.CompleteJSON(context.Background(), []Message{{Role: "user", Content: "hi"}}, 0, 0); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestCountTokens(t *testing.T) {
	if got := CountTokens(""); got != 0 {
		t.Errorf("CountTokens(\"\") = %d, want 0", got)
	}
	n := CountTokens("hello world, this is a prompt")
	if n <= 0 {
		t.Errorf("CountTokens = %d, want > 0", n)
	}
	if CountTokens("hello world, this is a longer prompt with more words") <= n {
		t.Error("longer text should count more tokens")
	}
}
