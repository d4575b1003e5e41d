package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = "gpt-4o-mini"
)

// OpenAIConfig holds configuration for the OpenAI-compatible chat client.
type OpenAIConfig struct {
	APIKey     string
	Model      string        // Default model
	BaseURL    string        // Optional OpenAI-compatible endpoint
	RPM        int           // Requests per minute (default: 60)
	MaxRetries int           // Retry attempts per call (default: 3)
	RetryDelay time.Duration // Base delay between retries (default: 1s)
	Timeout    time.Duration // HTTP timeout (default: 120s)
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAIClient implements ChatClient using the official OpenAI SDK.
// Any OpenAI-compatible endpoint works through BaseURL.
type OpenAIClient struct {
	model      string
	maxRetries int
	retryDelay time.Duration
	limiter    *RateLimiter
	client     openai.Client
}

// NewOpenAIClient creates a new OpenAI-compatible chat client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.RPM <= 0 {
		cfg.RPM = 60
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		// Retries are handled here, not in the SDK transport, so the
		// rate limiter sees every attempt.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		limiter:    NewRateLimiter(cfg.RPM),
		client:     openai.NewClient(opts...),
	}
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// Chat sends a chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	result := &ChatResult{
		RequestID: requestID,
		Provider:  OpenAIName,
		ModelUsed: model,
	}

	params, err := c.buildParams(model, req)
	if err != nil {
		result.ErrorMessage = err.Error()
		result.TotalTime = time.Since(start)
		return result, err
	}

	var resp *openai.ChatCompletion
	attempts := 0
	err = retry.Do(
		func() error {
			attempts++
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			r, callErr := c.client.Chat.Completions.New(ctx, *params)
			if callErr != nil {
				var apierr *openai.Error
				if errors.As(callErr, &apierr) {
					if apierr.StatusCode == http.StatusTooManyRequests {
						c.limiter.Record429()
					} else if apierr.StatusCode >= 400 && apierr.StatusCode < 500 {
						// Client errors won't succeed on retry.
						return retry.Unrecoverable(callErr)
					}
				}
				return callErr
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)

	result.Attempts = attempts
	result.TotalTime = time.Since(start)

	if err != nil {
		result.ErrorMessage = err.Error()
		return result, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		result.ErrorMessage = "no choices in response"
		return result, fmt.Errorf("chat completion returned no choices")
	}

	result.Content = resp.Choices[0].Message.Content
	result.PromptTokens = int(resp.Usage.PromptTokens)
	result.CompletionTokens = int(resp.Usage.CompletionTokens)
	result.TotalTokens = int(resp.Usage.TotalTokens)
	result.ModelUsed = resp.Model

	if req.ResponseFormat != nil {
		parsed, parseErr := ParseStructuredJSON(result.Content)
		if parseErr != nil {
			result.ErrorMessage = parseErr.Error()
			return result, fmt.Errorf("structured output: %w", parseErr)
		}
		result.ParsedJSON = parsed
	}

	result.Success = true
	return result, nil
}

// buildParams converts a ChatRequest into SDK parameters.
func (c *OpenAIClient) buildParams(model string, req *ChatRequest) (*openai.ChatCompletionNewParams, error) {
	params := &openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	if req.Temperature != 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	if rf := req.ResponseFormat; rf != nil {
		var schema any
		if len(rf.JSONSchema) > 0 {
			if err := json.Unmarshal(rf.JSONSchema, &schema); err != nil {
				return nil, fmt.Errorf("invalid response schema: %w", err)
			}
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   rf.Name,
					Schema: schema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	return params, nil
}
