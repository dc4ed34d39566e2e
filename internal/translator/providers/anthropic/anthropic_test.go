package anthropic

import (
	"errors"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ownlingo/ownlingo/internal/translator/retry"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	config := DefaultConfig("test-api-key")

	if config.APIKey != "test-api-key" {
		t.Fatalf("expected API key 'test-api-key', got %q", config.APIKey)
	}
	if config.Model == "" {
		t.Fatalf("expected default model to be set")
	}
	if config.TPM <= 0 || config.RPM <= 0 {
		t.Fatalf("expected positive TPM/RPM, got %d/%d", config.TPM, config.RPM)
	}
	if config.RetryConfig == nil {
		t.Fatalf("expected retry config to be set")
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

	configured := NewProvider(DefaultConfig("test-api-key"))
	if !configured.Available() {
		t.Fatalf("expected provider with key to be available")
	}
	if configured.Name() != "anthropic" {
		t.Fatalf("unexpected name: %q", configured.Name())
	}

	keyless := NewProvider(DefaultConfig("  "))
	if keyless.Available() {
		t.Fatalf("expected provider without key to be unavailable")
	}
}

func TestClassifyErrorFallsBackToMessageMatching(t *testing.T) {
	t.Parallel()

	if !retry.IsRetryable(classifyError(errors.New("api overloaded, try later"))) {
		t.Fatalf("expected overloaded error tagged retryable")
	}
	if !retry.IsRetryable(classifyError(errors.New("status 503 from upstream"))) {
		t.Fatalf("expected 503 error tagged retryable")
	}
	if retry.IsRetryable(classifyError(errors.New("invalid x-api-key"))) {
		t.Fatalf("expected auth error to stay non-retryable")
	}
}

func TestClassifyErrorCarriesRetryAfterHeader(t *testing.T) {
	t.Parallel()

	header := http.Header{}
	header.Set("Retry-After", "12")

	rateLimited := &anthropic.Error{StatusCode: 429, Response: &http.Response{Header: header}}
	classified := classifyError(rateLimited)
	if !retry.IsRetryable(classified) {
		t.Fatalf("expected 429 tagged retryable")
	}
	delay, ok := retry.SuggestedDelay(classified)
	if !ok {
		t.Fatalf("expected a suggested delay from the Retry-After header")
	}
	if delay != 12*time.Second {
		t.Fatalf("suggested delay = %v, want 12s", delay)
	}

	// The header only matters on 429; overload responses use the computed
	// backoff.
	overloaded := &anthropic.Error{StatusCode: 529, Response: &http.Response{Header: header}}
	if _, ok := retry.SuggestedDelay(classifyError(overloaded)); ok {
		t.Fatalf("expected no suggested delay on 529")
	}

	headerless := &anthropic.Error{StatusCode: 429}
	if _, ok := retry.SuggestedDelay(classifyError(headerless)); ok {
		t.Fatalf("expected no suggested delay without a response")
	}
}

func TestCalculateCost(t *testing.T) {
	t.Parallel()

	got := calculateCost("claude-sonnet-4-20250514", 1000, 1000)
	want := 0.003 + 0.015
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("sonnet cost: got %f want %f", got, want)
	}

	opus := calculateCost("claude-opus-4", 1000, 0)
	if math.Abs(opus-0.015) > 1e-9 {
		t.Fatalf("opus input cost: got %f want 0.015", opus)
	}

	// Unknown models fall back to the default tier.
	unknown := calculateCost("claude-next", 1000, 1000)
	if math.Abs(unknown-want) > 1e-9 {
		t.Fatalf("default tier cost: got %f want %f", unknown, want)
	}
}
