package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ownlingo/ownlingo/internal/translator"
	"github.com/ownlingo/ownlingo/internal/translator/ratelimit"
	"github.com/ownlingo/ownlingo/internal/translator/retry"
)

// Provider implements translator.AITranslator for Google Gemini.
type Provider struct {
	client      *genai.Client
	model       *genai.GenerativeModel
	apiKey      string
	modelName   string
	rateLimiter *ratelimit.Limiter
	retryConfig *retry.Config
}

// Config holds Gemini provider configuration.
type Config struct {
	APIKey      string
	Model       string
	TPM         int // Tokens per minute
	RPM         int // Requests per minute
	RetryConfig *retry.Config
}

// DefaultConfig returns default Gemini configuration.
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gemini-1.5-pro",
		TPM:         32000, // Gemini default TPM
		RPM:         60,    // Gemini default RPM
		RetryConfig: retry.DefaultConfig(),
	}
}

// NewProvider creates a new Gemini provider.
func NewProvider(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Provider{
		client:      client,
		model:       client.GenerativeModel(config.Model),
		apiKey:      strings.TrimSpace(config.APIKey),
		modelName:   config.Model,
		rateLimiter: ratelimit.NewLimiter(config.TPM, config.RPM),
		retryConfig: config.RetryConfig,
	}, nil
}

// Close closes the underlying client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "gemini"
}

// ModelName returns the configured model identifier.
func (p *Provider) ModelName() string {
	return p.modelName
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
		return nil, fmt.Errorf("gemini translate failed: %w", lastErr)
	}

	response.Duration = time.Since(start)
	response.Provider = p.Name()
	response.Model = p.modelName

	return response, nil
}

func (p *Provider) translate(ctx context.Context, req *translator.TranslationRequest) (*translator.TranslationResponse, error) {
	systemPrompt := translator.SystemPrompt(req.PreserveHTML, req.PreserveLiquid)
	userPrompt := fmt.Sprintf("Translate the following text from %s to %s:\n\n%s",
		req.SourceLocale, req.TargetLocale, req.Text)

	// The provider is shared across concurrent jobs, so the system
	// instruction goes on a per-call copy rather than the shared model.
	model := *p.model
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return nil, classifyError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no content returned from Gemini")
	}

	translatedText := fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])

	var inputTokens, outputTokens int
	if resp.UsageMetadata != nil {
		inputTokens = int(resp.UsageMetadata.PromptTokenCount)
		outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	cost := calculateCost(p.modelName, inputTokens, outputTokens)

	return &translator.TranslationResponse{
		TranslatedText: translatedText,
		SourceText:     req.Text,
		TokensUsed: translator.TokenUsage{
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			TotalTokens:  inputTokens + outputTokens,
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

// classifyError tags rate-limit, quota, and server errors as retryable.
func classifyError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return &retry.RetryableError{Err: err, StatusCode: apiErr.Code, RetryAfter: retry.ParseRetryAfter(apiErr.Header.Get("Retry-After"))}
		case apiErr.Code >= 500:
			return &retry.RetryableError{Err: err, StatusCode: apiErr.Code}
		default:
			return err
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "500") || strings.Contains(msg, "503") ||
		strings.Contains(msg, "quota") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return &retry.RetryableError{Err: err}
	}
	return err
}

// calculateCost calculates the cost based on token usage. Prices are
// approximate and should be updated with current Google pricing.
func calculateCost(model string, inputTokens, outputTokens int) float64 {
	var inputPrice, outputPrice float64

	switch {
	case strings.Contains(model, "gemini-1.5-pro"):
		inputPrice = 0.00125 / 1000 // $0.00125 per 1K input tokens
		outputPrice = 0.005 / 1000  // $0.005 per 1K output tokens
	case strings.Contains(model, "gemini-1.5-flash"):
		inputPrice = 0.000075 / 1000 // $0.000075 per 1K input tokens
		outputPrice = 0.0003 / 1000  // $0.0003 per 1K output tokens
	default:
		inputPrice = 0.00125 / 1000
		outputPrice = 0.005 / 1000
	}

	return float64(inputTokens)*inputPrice + float64(outputTokens)*outputPrice
}
