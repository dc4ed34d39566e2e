package fallback

import (
	"context"
	"fmt"
	"strings"

	"github.com/ownlingo/ownlingo/internal/translator"
	"github.com/ownlingo/ownlingo/internal/translator/retry"
)

// Chain tries an ordered list of providers in turn: primary first, falling
// back to the next provider only on retryable failure. A non-retryable error
// aborts the whole chain immediately.
type Chain struct {
	providers []translator.AITranslator
}

// NewChain creates a fallback chain. Constructing a chain with zero providers
// is a programming error.
func NewChain(providers ...translator.AITranslator) *Chain {
	if len(providers) == 0 {
		panic("fallback: at least one provider is required")
	}

	return &Chain{
		providers: providers,
	}
}

// Name reports the chain identity using the primary provider name.
func (c *Chain) Name() string {
	return fmt.Sprintf("fallback-chain(%s)", c.providers[0].Name())
}

// Available reports whether any provider in the chain is usable.
func (c *Chain) Available() bool {
	for _, provider := range c.providers {
		if provider.Available() {
			return true
		}
	}
	return false
}

// Translate attempts translation against each available provider in order.
func (c *Chain) Translate(ctx context.Context, req *translator.TranslationRequest) (*translator.TranslationResponse, error) {
	var failures []string
	var lastErr error

	for i, provider := range c.providers {
		if !provider.Available() {
			failures = append(failures, fmt.Sprintf("%s: not configured", provider.Name()))
			continue
		}

		resp, err := provider.Translate(ctx, req)
		if err == nil {
			return resp, nil
		}

		wrapped := fmt.Errorf("provider %s (%d/%d): %w", provider.Name(), i+1, len(c.providers), err)
		if !retry.IsRetryable(err) {
			// Auth and validation failures will not succeed elsewhere either;
			// surface them without burning the remaining providers.
			return nil, wrapped
		}

		lastErr = wrapped
		failures = append(failures, wrapped.Error())
	}

	if lastErr == nil {
		return nil, fmt.Errorf("no translation provider is available (%s)", strings.Join(failures, "; "))
	}
	return nil, fmt.Errorf("all providers failed [%s]: %w", strings.Join(failures, "; "), lastErr)
}

// TranslateBatch translates each request independently, in order. The first
// failing request aborts the batch.
func (c *Chain) TranslateBatch(ctx context.Context, reqs []*translator.TranslationRequest) ([]*translator.TranslationResponse, error) {
	responses := make([]*translator.TranslationResponse, len(reqs))

	for i, req := range reqs {
		resp, err := c.Translate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("batch translate failed at index %d: %w", i, err)
		}
		responses[i] = resp
	}

	return responses, nil
}

// RemainingCapacity reports the primary provider's rate-limit balances.
// Fallback providers' capacity is not surfaced.
func (c *Chain) RemainingCapacity() (tokens, requests int) {
	if reporter, ok := c.providers[0].(translator.CapacityReporter); ok {
		return reporter.RemainingCapacity()
	}
	return 0, 0
}
