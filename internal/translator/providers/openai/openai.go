package openai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ownlingo/ownlingo/internal/translator"
	"github.com/ownlingo/ownlingo/internal/translator/ratelimit"
	"github.com/ownlingo/ownlingo/internal/translator/retry"
)

// Provider implements translator.AITranslator for OpenAI.
type Provider struct {
	client      *openai.Client
	apiKey      string
	model       string
	rateLimiter *ratelimit.Limiter
	retryConfig *retry.Config
}

// Config holds OpenAI provider configuration.
type Config struct {
	APIKey      string
	Model       string
	TPM         int // Tokens per minute
	RPM         int // Requests per minute
	RetryConfig *retry.Config
}

// DefaultConfig returns default OpenAI configuration.
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gpt-4o",
		TPM:         90000, // GPT-4o default TPM
		RPM:         500,   // GPT-4o default RPM
		RetryConfig: retry.DefaultConfig(),
	}
}

// NewProvider creates a new OpenAI provider.
func NewProvider(config *Config) *Provider {
	if config == nil {
		panic("config cannot be nil")
	}

	return &Provider{
		client:      openai.NewClient(config.APIKey),
		apiKey:      strings.TrimSpace(config.APIKey),
		model:       config.Model,
		rateLimiter: ratelimit.NewLimiter(config.TPM, config.RPM),
		retryConfig: config.RetryConfig,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
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
		return nil, fmt.Errorf("openai translate failed: %w", lastErr)
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

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
	})

	if err != nil {
		return nil, classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from OpenAI")
	}

	translatedText := resp.Choices[0].Message.Content
	cost := calculateCost(p.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	return &translator.TranslationResponse{
		TranslatedText: translatedText,
		SourceText:     req.Text,
		TokensUsed: translator.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
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

// classifyError tags rate-limit and server errors as retryable. Auth and
// validation failures pass through untagged.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return &retry.RetryableError{Err: err, StatusCode: apiErr.HTTPStatusCode, RetryAfter: retryAfterHint(apiErr.Message)}
		case apiErr.HTTPStatusCode >= 500:
			return &retry.RetryableError{Err: err, StatusCode: apiErr.HTTPStatusCode}
		default:
			return err
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "500") || strings.Contains(msg, "503") ||
		strings.Contains(msg, "timeout") {
		return &retry.RetryableError{Err: err}
	}
	return err
}

// retryAfterPattern matches the delay hint OpenAI embeds in rate-limit
// messages, e.g. "Rate limit reached ... Please try again in 1.898s."
var retryAfterPattern = regexp.MustCompile(`try again in ([0-9.]+m?s)`)

// retryAfterHint extracts the server-suggested delay from a 429 message.
// The go-openai error types do not expose response headers, so the message
// body is the only place the hint survives.
func retryAfterHint(message string) time.Duration {
	m := retryAfterPattern.FindStringSubmatch(message)
	if m == nil {
		return 0
	}
	d, err := time.ParseDuration(m[1])
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// calculateCost calculates the cost based on token usage. Prices are
// approximate and should be updated with current OpenAI pricing.
func calculateCost(model string, inputTokens, outputTokens int) float64 {
	var inputPrice, outputPrice float64

	switch model {
	case "gpt-4o":
		inputPrice = 0.005 / 1000  // $0.005 per 1K input tokens
		outputPrice = 0.015 / 1000 // $0.015 per 1K output tokens
	case "gpt-4":
		inputPrice = 0.03 / 1000 // $0.03 per 1K input tokens
		outputPrice = 0.06 / 1000 // $0.06 per 1K output tokens
	default:
		inputPrice = 0.005 / 1000
		outputPrice = 0.015 / 1000
	}

	return float64(inputTokens)*inputPrice + float64(outputTokens)*outputPrice
}
