package openai

import (
	"errors"
	"math"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ownlingo/ownlingo/internal/translator/retry"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	config := DefaultConfig("test-api-key")

	if config.APIKey != "test-api-key" {
		t.Fatalf("expected API key 'test-api-key', got %q", config.APIKey)
	}
	if config.Model != "gpt-4o" {
		t.Fatalf("expected default model gpt-4o, got %q", config.Model)
	}
	if config.TPM <= 0 || config.RPM <= 0 {
		t.Fatalf("expected positive TPM/RPM, got %d/%d", config.TPM, config.RPM)
	}
}

func TestNewProviderPanicsOnNilConfig(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic for nil config")
		}
	}()
	NewProvider(nil)
}

func TestAvailability(t *testing.T) {
	t.Parallel()

	if !NewProvider(DefaultConfig("key")).Available() {
		t.Fatalf("expected provider with key to be available")
	}
	if NewProvider(DefaultConfig("")).Available() {
		t.Fatalf("expected keyless provider to be unavailable")
	}
}

func TestClassifyErrorUsesAPIStatusCode(t *testing.T) {
	t.Parallel()

	rateLimited := &openai.APIError{HTTPStatusCode: 429, Message: "rate limit"}
	if !retry.IsRetryable(classifyError(rateLimited)) {
		t.Fatalf("expected 429 tagged retryable")
	}

	serverErr := &openai.APIError{HTTPStatusCode: 502, Message: "bad gateway"}
	if !retry.IsRetryable(classifyError(serverErr)) {
		t.Fatalf("expected 5xx tagged retryable")
	}

	authErr := &openai.APIError{HTTPStatusCode: 401, Message: "invalid key"}
	if retry.IsRetryable(classifyError(authErr)) {
		t.Fatalf("expected 401 to stay non-retryable")
	}

	if !retry.IsRetryable(classifyError(errors.New("dial tcp: i/o timeout"))) {
		t.Fatalf("expected transport timeout tagged retryable")
	}
}

func TestClassifyErrorParsesRetryHintFromMessage(t *testing.T) {
	t.Parallel()

	rateLimited := &openai.APIError{
		HTTPStatusCode: 429,
		Message:        "Rate limit reached for gpt-4o. Please try again in 1.5s.",
	}
	delay, ok := retry.SuggestedDelay(classifyError(rateLimited))
	if !ok {
		t.Fatalf("expected a suggested delay from the 429 message")
	}
	if delay != 1500*time.Millisecond {
		t.Fatalf("suggested delay = %v, want 1.5s", delay)
	}

	// Messages without a hint stay retryable with the computed backoff.
	bare := &openai.APIError{HTTPStatusCode: 429, Message: "rate limit"}
	classified := classifyError(bare)
	if !retry.IsRetryable(classified) {
		t.Fatalf("expected 429 without hint to stay retryable")
	}
	if _, ok := retry.SuggestedDelay(classified); ok {
		t.Fatalf("expected no suggested delay without a hint")
	}

	if hint := retryAfterHint("Please try again in 250ms."); hint != 250*time.Millisecond {
		t.Fatalf("millisecond hint = %v, want 250ms", hint)
	}
	if hint := retryAfterHint("insufficient quota"); hint != 0 {
		t.Fatalf("hintless message = %v, want 0", hint)
	}
}

func TestCalculateCost(t *testing.T) {
	t.Parallel()

	got := calculateCost("gpt-4o", 1000, 1000)
	want := 0.005 + 0.015
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("gpt-4o cost: got %f want %f", got, want)
	}

	// Unknown models fall back to gpt-4o pricing.
	if unknown := calculateCost("gpt-next", 1000, 1000); math.Abs(unknown-want) > 1e-9 {
		t.Fatalf("default tier cost: got %f want %f", unknown, want)
	}
}
