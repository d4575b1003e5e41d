package providers

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterTryConsume(t *testing.T) {
	limiter := NewRateLimiter(3)

	for i := 0; i < 3; i++ {
		if !limiter.TryConsume() {
			t.Fatalf("token %d should be available", i)
		}
	}
	if limiter.TryConsume() {
		t.Error("bucket should be empty after consuming all tokens")
	}
}

func TestRateLimiterRecord429DrainsTokens(t *testing.T) {
	limiter := NewRateLimiter(60)

	if !limiter.TryConsume() {
		t.Fatal("fresh limiter should have tokens")
	}
	limiter.Record429()
	if limiter.TryConsume() {
		t.Error("tokens should be drained after a 429")
	}
}

func TestRateLimiterWaitRespectsContext(t *testing.T) {
	limiter := NewRateLimiter(1)
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait should not block: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// Bucket is empty and refills at 1/min; cancellation must win.
	if err := limiter.Wait(ctx); err == nil {
		t.Error("Wait should return the context error when cancelled")
	}
}

func TestRateLimiterDefaultsInvalidRate(t *testing.T) {
	limiter := NewRateLimiter(0)
	if !limiter.TryConsume() {
		t.Error("defaulted limiter should have tokens")
	}
}
