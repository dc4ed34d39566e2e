package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ownlingo/ownlingo/internal/translator"
	"github.com/ownlingo/ownlingo/internal/translator/ratelimit"
	"github.com/ownlingo/ownlingo/internal/translator/retry"
)

const maxOutputTokens = 4096

// Provider implements translator.AITranslator for Anthropic.
type Provider struct {
	client      anthropic.Client
	apiKey      string
	model       string
	rateLimiter *ratelimit.Limiter
	retryConfig *retry.Config
}

// Config holds Anthropic provider configuration.
type Config struct {
	APIKey      string
	Model       string
	TPM         int // Tokens per minute
	RPM         int // Requests per minute
	RetryConfig *retry.Config
}

// DefaultConfig returns default Anthropic configuration.
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "claude-sonnet-4-20250514",
		TPM:         80000, // Claude Sonnet default TPM
		RPM:         50,    // Claude Sonnet default RPM
		RetryConfig: retry.DefaultConfig(),
	}
}

// NewProvider creates a new Anthropic provider.
func NewProvider(config *Config) *Provider {
	if config == nil {
		panic("config cannot be nil")
	}

	client := anthropic.NewClient(option.WithAPIKey(config.APIKey))

	return &Provider{
		client:      client,
		apiKey:      strings.TrimSpace(config.APIKey),
		model:       config.Model,
		rateLimiter: ratelimit.NewLimiter(config.TPM, config.RPM),
		retryConfig: config.RetryConfig,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "anthropic"
}

// ModelName returns the configured model identifier.
func (p *Provider) ModelName() string {
	return p.model
}

// Available reports whether an API key is configured.
func (p *Provider) Available() bool {
	return p != nil && p.apiKey != ""
}

// RemainingCapacity reports the limiter's current token and request balances.
func (p *Provider) RemainingCapacity() (tokens, requests int) {
	return p.rateLimiter.Remaining()
}

// Translate translates a single text, waiting for rate-limit capacity and
// retrying transient failures with exponential backoff.
func (p *Provider) Translate(ctx context.Context, req *translator.TranslationRequest) (*translator.TranslationResponse, error) {
	start := time.Now()

	var response *translator.TranslationResponse
	var lastErr error

	err := retry.Do(ctx, p.retryConfig, func() error {
		if err := p.rateLimiter.Wait(ctx, translator.EstimateTokens(req.Text)); err != nil {
			return err
		}

		resp, err := p.translate(ctx, req)
		if err != nil {
			lastErr = err
			return err
		}

		response = resp
		return nil
	})

	if err != nil {
		// A context abort must surface as-is so callers can tell an
		// interrupted call from an exhausted one.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if lastErr == nil {
			lastErr = err
		}
		return nil, fmt.Errorf("anthropic translate failed: %w", lastErr)
	}

	response.Duration = time.Since(start)
	response.Provider = p.Name()
	response.Model = p.model

	return response, nil
}

func (p *Provider) translate(ctx context.Context, req *translator.TranslationRequest) (*translator.TranslationResponse, error) {
	systemPrompt := translator.SystemPrompt(req.PreserveHTML, req.PreserveLiquid)
	userPrompt := fmt.Sprintf("Translate the following text from %s to %s:\n\n%s",
		req.SourceLocale, req.TargetLocale, req.Text)

	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxOutputTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})

	if err != nil {
		return nil, classifyError(err)
	}

	if len(message.Content) == 0 {
		return nil, fmt.Errorf("no content returned from Anthropic")
	}

	translatedText := message.Content[0].Text
	cost := calculateCost(p.model, int(message.Usage.InputTokens), int(message.Usage.OutputTokens))

	return &translator.TranslationResponse{
		TranslatedText: translatedText,
		SourceText:     req.Text,
		TokensUsed: translator.TokenUsage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
			TotalTokens:  int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
		Cost: translator.Cost{
			Amount:   cost,
			Currency: "USD",
		},
	}, nil
}

// TranslateBatch translates each request independently, in order.
func (p *Provider) TranslateBatch(ctx context.Context, reqs []*translator.TranslationRequest) ([]*translator.TranslationResponse, error) {
	responses := make([]*translator.TranslationResponse, len(reqs))

	for i, req := range reqs {
		resp, err := p.Translate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("batch translate failed at index %d: %w", i, err)
		}
		responses[i] = resp
	}

	return responses, nil
}

// classifyError tags rate-limit, overload, and server errors as retryable.
// Auth and validation failures pass through untagged.
func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return &retry.RetryableError{Err: err, StatusCode: apiErr.StatusCode, RetryAfter: retryAfterHint(apiErr.Response)}
		case apiErr.StatusCode >= 500:
			return &retry.RetryableError{Err: err, StatusCode: apiErr.StatusCode}
		default:
			return err
		}
	}

	// Fall back to message matching when the SDK returns transport errors.
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "500") || strings.Contains(msg, "503") ||
		strings.Contains(msg, "overloaded") || strings.Contains(msg, "timeout") {
		return &retry.RetryableError{Err: err}
	}
	return err
}

// retryAfterHint extracts the server-suggested delay from a 429 response.
func retryAfterHint(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	return retry.ParseRetryAfter(resp.Header.Get("Retry-After"))
}

// calculateCost calculates the cost based on token usage. Prices are
// approximate and should be updated with current Anthropic pricing.
func calculateCost(model string, inputTokens, outputTokens int) float64 {
	var inputPrice, outputPrice float64

	switch {
	case strings.Contains(model, "claude-sonnet-4"):
		inputPrice = 0.003 / 1000  // $0.003 per 1K input tokens
		outputPrice = 0.015 / 1000 // $0.015 per 1K output tokens
	case strings.Contains(model, "claude-opus"):
		inputPrice = 0.015 / 1000  // $0.015 per 1K input tokens
		outputPrice = 0.075 / 1000 // $0.075 per 1K output tokens
	default:
		inputPrice = 0.003 / 1000
		outputPrice = 0.015 / 1000
	}

	return float64(inputTokens)*inputPrice + float64(outputTokens)*outputPrice
}
