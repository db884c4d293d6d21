package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"longdoc-translator/internal/types"
)

func mockChatServer(t *testing.T, handler func(w http.ResponseWriter, req ChatCompletionRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization header = %q", got)
		}
		var req ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		handler(w, req)
	}))
}

func chatResponse(content string) ChatCompletionResponse {
	return ChatCompletionResponse{
		Choices: []Choice{{Message: Message{Role: "assistant", Content: content}, FinishReason: "stop"}},
		Usage:   Usage{TotalTokens: 10},
	}
}

func TestNewOpenAIClientRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrConfig {
		t.Errorf("expected ErrConfig, got %v", err)
	}
}

func TestNormalizeAPIURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://api.example.com/v1", "https://api.example.com/v1/chat/completions"},
		{"https://api.example.com/v1/", "https://api.example.com/v1/chat/completions"},
		{"https://api.example.com/v1/chat/completions", "https://api.example.com/v1/chat/completions"},
	}
	for _, tt := range tests {
		if got := normalizeAPIURL(tt.in); got != tt.want {
			t.Errorf("normalizeAPIURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTranslateSendsProtectionInstructions(t *testing.T) {
	var gotReq ChatCompletionRequest
	server := mockChatServer(t, func(w http.ResponseWriter, req ChatCompletionRequest) {
		gotReq = req
		json.NewEncoder(w).Encode(chatResponse("translated text"))
	})
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}

	got, err := client.Translate(context.Background(), "hello [[FORMULA_0_deadbeef]] world", "zh")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "translated text" {
		t.Errorf("got %q", got)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Fatalf("expected system+user messages, got %+v", gotReq.Messages)
	}
	if !strings.Contains(gotReq.Messages[0].Content, "[[FORMULA_") {
		t.Error("system prompt missing placeholder preservation instructions")
	}
	if !strings.Contains(gotReq.Messages[0].Content, "zh") {
		t.Error("system prompt missing target language")
	}
	if gotReq.Messages[1].Content != "hello [[FORMULA_0_deadbeef]] world" {
		t.Errorf("user message = %q", gotReq.Messages[1].Content)
	}
}

func TestTranslateEmptyTextSkipsAPICall(t *testing.T) {
	server := mockChatServer(t, func(w http.ResponseWriter, req ChatCompletionRequest) {
		t.Error("API must not be called for empty text")
	})
	defer server.Close()

	client, _ := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	got, err := client.Translate(context.Background(), "   ", "en")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "   " {
		t.Errorf("empty text must pass through, got %q", got)
	}
}

func TestTranslateRateLimitError(t *testing.T) {
	server := mockChatServer(t, func(w http.ResponseWriter, req ChatCompletionRequest) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	})
	defer server.Close()

	client, _ := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	_, err := client.Translate(context.Background(), "some text", "en")
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrAPIRateLimit {
		t.Errorf("expected ErrAPIRateLimit, got %v", err)
	}
	if !IsRetryableAPIError(err) {
		t.Error("rate limit errors must be retryable")
	}
}

func TestTranslateAuthError(t *testing.T) {
	server := mockChatServer(t, func(w http.ResponseWriter, req ChatCompletionRequest) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	})
	defer server.Close()

	client, _ := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	_, err := client.Translate(context.Background(), "some text", "en")
	if err == nil {
		t.Fatal("expected auth error")
	}
	if IsRetryableAPIError(err) {
		t.Error("auth errors must not be retryable")
	}
}

func TestTranslateServerErrorRetryable(t *testing.T) {
	server := mockChatServer(t, func(w http.ResponseWriter, req ChatCompletionRequest) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer server.Close()

	client, _ := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	_, err := client.Translate(context.Background(), "some text", "en")
	if err == nil {
		t.Fatal("expected server error")
	}
	if !IsRetryableAPIError(err) {
		t.Error("5xx errors must be retryable")
	}
}

func TestTranslateAPILevelError(t *testing.T) {
	server := mockChatServer(t, func(w http.ResponseWriter, req ChatCompletionRequest) {
		json.NewEncoder(w).Encode(ChatCompletionResponse{Error: &APIError{Message: "model overloaded"}})
	})
	defer server.Close()

	client, _ := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	_, err := client.Translate(context.Background(), "some text", "en")
	if err == nil {
		t.Fatal("expected API error")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrAPICall {
		t.Errorf("expected ErrAPICall, got %v", err)
	}
	if !strings.Contains(appErr.Details, "model overloaded") {
		t.Errorf("details = %q", appErr.Details)
	}
}

func TestTranslateNoChoices(t *testing.T) {
	server := mockChatServer(t, func(w http.ResponseWriter, req ChatCompletionRequest) {
		json.NewEncoder(w).Encode(ChatCompletionResponse{})
	})
	defer server.Close()

	client, _ := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	_, err := client.Translate(context.Background(), "some text", "en")
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestTranslateContextCancellation(t *testing.T) {
	server := mockChatServer(t, func(w http.ResponseWriter, req ChatCompletionRequest) {
		json.NewEncoder(w).Encode(chatResponse("too late"))
	})
	defer server.Close()

	client, _ := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Translate(ctx, "some text", "en")
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestTestConnection(t *testing.T) {
	server := mockChatServer(t, func(w http.ResponseWriter, req ChatCompletionRequest) {
		json.NewEncoder(w).Encode(chatResponse("ok"))
	})
	defer server.Close()

	client, _ := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	if err := client.TestConnection(context.Background()); err != nil {
		t.Errorf("TestConnection failed: %v", err)
	}
}
