package gemini

import (
	"errors"
	"math"
	"net/http"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/ownlingo/ownlingo/internal/translator/retry"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	config := DefaultConfig("test-api-key")

	if config.APIKey != "test-api-key" {
		t.Fatalf("expected API key 'test-api-key', got %q", config.APIKey)
	}
	if config.Model != "gemini-1.5-pro" {
		t.Fatalf("expected default model gemini-1.5-pro, got %q", config.Model)
	}
	if config.TPM <= 0 || config.RPM <= 0 {
		t.Fatalf("expected positive TPM/RPM, got %d/%d", config.TPM, config.RPM)
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	if !retry.IsRetryable(classifyError(&googleapi.Error{Code: 429})) {
		t.Fatalf("expected 429 tagged retryable")
	}
	if !retry.IsRetryable(classifyError(&googleapi.Error{Code: 503})) {
		t.Fatalf("expected 503 tagged retryable")
	}
	if retry.IsRetryable(classifyError(&googleapi.Error{Code: 400})) {
		t.Fatalf("expected 400 to stay non-retryable")
	}
	if !retry.IsRetryable(classifyError(errors.New("RESOURCE_EXHAUSTED: quota exceeded"))) {
		t.Fatalf("expected quota error tagged retryable")
	}
	if retry.IsRetryable(classifyError(errors.New("API key not valid"))) {
		t.Fatalf("expected auth error to stay non-retryable")
	}
}

func TestClassifyErrorCarriesRetryAfterHeader(t *testing.T) {
	t.Parallel()

	header := http.Header{}
	header.Set("Retry-After", "9")

	rateLimited := &googleapi.Error{Code: 429, Header: header}
	delay, ok := retry.SuggestedDelay(classifyError(rateLimited))
	if !ok {
		t.Fatalf("expected a suggested delay from the Retry-After header")
	}
	if delay != 9*time.Second {
		t.Fatalf("suggested delay = %v, want 9s", delay)
	}

	// The header only matters on 429; server errors use the computed
	// backoff.
	if _, ok := retry.SuggestedDelay(classifyError(&googleapi.Error{Code: 503, Header: header})); ok {
		t.Fatalf("expected no suggested delay on 5xx")
	}
	if _, ok := retry.SuggestedDelay(classifyError(&googleapi.Error{Code: 429})); ok {
		t.Fatalf("expected no suggested delay without a header")
	}
}

func TestCalculateCost(t *testing.T) {
	t.Parallel()

	pro := calculateCost("gemini-1.5-pro", 1000, 1000)
	wantPro := 0.00125 + 0.005
	if math.Abs(pro-wantPro) > 1e-9 {
		t.Fatalf("pro cost: got %f want %f", pro, wantPro)
	}

	flash := calculateCost("gemini-1.5-flash-001", 1000, 1000)
	wantFlash := 0.000075 + 0.0003
	if math.Abs(flash-wantFlash) > 1e-9 {
		t.Fatalf("flash cost: got %f want %f", flash, wantFlash)
	}

	if unknown := calculateCost("gemini-x", 1000, 1000); math.Abs(unknown-wantPro) > 1e-9 {
		t.Fatalf("default tier cost: got %f want %f", unknown, wantPro)
	}
}
