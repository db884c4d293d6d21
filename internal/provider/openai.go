// Package provider adapts external translation backends to the pipeline's
// capability functions.
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

	"longdoc-translator/internal/logger"
	"longdoc-translator/internal/longdoc"
	"longdoc-translator/internal/types"
)

const (
	// DefaultModel is the default OpenAI model to use for translation
	DefaultModel = "gpt-4o"
	// DefaultTimeout is the default HTTP client timeout for API calls
	DefaultTimeout = 120 * time.Second
	// OpenAIAPIURL is the OpenAI chat completions API endpoint
	OpenAIAPIURL = "https://api.openai.com/v1/chat/completions"
)

// OpenAIConfig configures an OpenAI-compatible chat completions backend.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// OpenAIClient translates block text through any OpenAI-compatible chat
// completions endpoint. One call translates one block; retry policy belongs
// to the caller.
type OpenAIClient struct {
	apiKey string
	client *http.Client
	model  string
	apiURL string
}

// NewOpenAIClient creates a client from the given configuration, applying
// defaults for model, endpoint, and timeout.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, types.NewAppError(types.ErrConfig, "OpenAI API key is not configured", nil)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	apiURL := OpenAIAPIURL
	if cfg.BaseURL != "" {
		apiURL = normalizeAPIURL(cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &OpenAIClient{
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
		model:  model,
		apiURL: apiURL,
	}, nil
}

// normalizeAPIURL ensures the API URL ends with /chat/completions
func normalizeAPIURL(url string) string {
	url = strings.TrimSuffix(url, "/")
	if strings.HasSuffix(url, "/chat/completions") {
		return url
	}
	return url + "/chat/completions"
}

// Capability exposes the client as a pipeline translation capability
func (c *OpenAIClient) Capability() longdoc.TranslateCapability {
	return c.Translate
}

// ChatCompletionRequest represents the request body for the chat completions API.
type ChatCompletionRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// Message represents a message in the chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse represents the response from the chat completions API.
type ChatCompletionResponse struct {
	ID      string    `json:"id"`
	Object  string    `json:"object"`
	Created int64     `json:"created"`
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Usage   Usage     `json:"usage"`
	Error   *APIError `json:"error,omitempty"`
}

// Choice represents a choice in the chat completion response.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// APIError represents an error response from the API.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

func buildSystemPrompt(targetLang string) string {
	return fmt.Sprintf(`You are a professional document translator. Translate the user's text into %s.

Rules:
1. Placeholder tokens of the form [[FORMULA_N_xxxxxxxx]] mark protected content. Copy each token into the translation EXACTLY as written, unmodified and in a natural position. Never translate, drop, duplicate, or alter them.
2. Preserve paragraph structure and line breaks.
3. Output only the translated text, with no explanations or quotes.`, targetLang)
}

// Translate sends one block of text for translation. It satisfies
// longdoc.TranslateCapability.
func (c *OpenAIClient) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	logger.Debug("calling chat completions API",
		logger.String("model", c.model), logger.Int("textLen", len(text)))

	// Translation can expand text; budget output tokens from input size
	// with a floor and a cap.
	maxTokens := len(text) / 2 * 3
	if maxTokens < 512 {
		maxTokens = 512
	}
	if maxTokens > 8192 {
		maxTokens = 8192
	}

	reqBody := ChatCompletionRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: buildSystemPrompt(targetLang)},
			{Role: "user", Content: text},
		},
		MaxTokens: maxTokens,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to marshal request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to create HTTP request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", types.NewAppError(types.ErrNetwork, "API request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.NewAppError(types.ErrNetwork, "failed to read API response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", handleAPIHTTPError(resp.StatusCode, body)
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", types.NewAppError(types.ErrAPICall, "failed to parse API response", err)
	}
	if chatResp.Error != nil {
		return "", types.NewAppErrorWithDetails(types.ErrAPICall, "API returned error", chatResp.Error.Message, nil)
	}
	if len(chatResp.Choices) == 0 {
		return "", types.NewAppError(types.ErrAPICall, "API returned no choices", nil)
	}

	if chatResp.Choices[0].FinishReason == "length" {
		logger.Warn("translation output truncated by token limit",
			logger.Int("completionTokens", chatResp.Usage.CompletionTokens),
			logger.Int("inputLength", len(text)))
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// TestConnection sends a minimal request to verify the endpoint and key.
func (c *OpenAIClient) TestConnection(ctx context.Context) error {
	logger.Info("testing API connection",
		logger.String("apiURL", c.apiURL), logger.String("model", c.model))

	reqBody := ChatCompletionRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "user", Content: "Respond with just: ok"},
		},
		MaxTokens: 8,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to marshal request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to create HTTP request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrNetwork, "API request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return handleAPIHTTPError(resp.StatusCode, body)
	}
	return nil
}

// handleAPIHTTPError converts a non-200 API response into an AppError.
func handleAPIHTTPError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	errorDetails := ""
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		errorDetails = errResp.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return types.NewAppErrorWithDetails(
			types.ErrAPICall,
			"API authentication failed",
			"invalid API key or unauthorized access",
			nil,
		)
	case http.StatusTooManyRequests:
		return types.NewAppErrorWithDetails(
			types.ErrAPIRateLimit,
			"API rate limit exceeded",
			errorDetails,
			nil,
		)
	case http.StatusBadRequest:
		return types.NewAppErrorWithDetails(
			types.ErrAPICall,
			"invalid API request",
			errorDetails,
			nil,
		)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return types.NewAppErrorWithDetails(
			types.ErrAPICall,
			"API server error",
			fmt.Sprintf("status %d: %s", statusCode, errorDetails),
			nil,
		)
	default:
		return types.NewAppErrorWithDetails(
			types.ErrAPICall,
			"unexpected API response",
			fmt.Sprintf("status %d: %s", statusCode, errorDetails),
			nil,
		)
	}
}

// IsRetryableAPIError reports whether an error warrants another attempt.
// Rate limits and transient network or server errors are retryable; client
// errors are not.
func IsRetryableAPIError(err error) bool {
	if err == nil {
		return false
	}
	if appErr, ok := err.(*types.AppError); ok {
		switch appErr.Code {
		case types.ErrNetwork, types.ErrAPIRateLimit:
			return true
		case types.ErrAPICall:
			return strings.Contains(appErr.Details, "status 5")
		default:
			return false
		}
	}
	return false
}
