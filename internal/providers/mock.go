package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is a ChatClient for testing and dry runs.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // Fail after N requests (0 = never)
	ResponseText string
	ResponseJSON json.RawMessage

	// Responses, when set, are returned one per request in order,
	// falling back to ResponseJSON once exhausted.
	Responses []json.RawMessage

	// RespondFn, when set, overrides all canned responses.
	RespondFn func(req *ChatRequest) (json.RawMessage, error)

	mu           sync.Mutex
	requestCount atomic.Int64
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency:      time.Millisecond,
		ResponseText: "mock response",
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// RequestCount returns the number of requests served so far.
func (c *MockClient) RequestCount() int {
	return int(c.requestCount.Load())
}

// Chat sends a mock chat request.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
		Attempts:  1,
	}

	if c.ShouldFail {
		result.ErrorMessage = "mock client configured to fail"
		result.TotalTime = time.Since(start)
		return result, fmt.Errorf("mock client configured to fail")
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		result.ErrorMessage = fmt.Sprintf("mock client failed after %d requests", c.FailAfter)
		result.TotalTime = time.Since(start)
		return result, fmt.Errorf("mock client failed after %d requests", c.FailAfter)
	}

	// Simulate latency
	if c.Latency > 0 {
		select {
		case <-ctx.Done():
			result.ErrorMessage = ctx.Err().Error()
			return result, ctx.Err()
		case <-time.After(c.Latency):
		}
	}

	raw, err := c.nextResponse(req)
	if err != nil {
		result.ErrorMessage = err.Error()
		result.TotalTime = time.Since(start)
		return result, err
	}

	if raw != nil {
		result.Content = string(raw)
		if req.ResponseFormat != nil {
			parsed, parseErr := ParseStructuredJSON(result.Content)
			if parseErr != nil {
				result.ErrorMessage = parseErr.Error()
				result.TotalTime = time.Since(start)
				return result, parseErr
			}
			result.ParsedJSON = parsed
		}
	} else {
		result.Content = c.ResponseText
	}

	result.Success = true
	result.TotalTime = time.Since(start)
	return result, nil
}

func (c *MockClient) nextResponse(req *ChatRequest) (json.RawMessage, error) {
	if c.RespondFn != nil {
		return c.RespondFn(req)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Responses) > 0 {
		raw := c.Responses[0]
		c.Responses = c.Responses[1:]
		return raw, nil
	}
	return c.ResponseJSON, nil
}
