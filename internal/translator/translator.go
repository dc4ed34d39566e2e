package translator

import (
	"context"
	"errors"
	"time"
)

// ErrResourceNotFound reports a job item whose source resource no longer
// exists. It is fatal for that item only and is never retried.
var ErrResourceNotFound = errors.New("resource not found")

// AITranslator is one translation backend, or a fallback chain of backends.
type AITranslator interface {
	// Translate translates a single text from source locale to target locale.
	Translate(ctx context.Context, req *TranslationRequest) (*TranslationResponse, error)

	// TranslateBatch translates each request independently, in order.
	TranslateBatch(ctx context.Context, reqs []*TranslationRequest) ([]*TranslationResponse, error)

	// Name returns the provider name.
	Name() string

	// Available reports whether the backend is configured and usable.
	Available() bool
}

// CapacityReporter is implemented by backends that can report remaining
// rate-limit capacity.
type CapacityReporter interface {
	RemainingCapacity() (tokens, requests int)
}

// TranslationRequest describes one translation call.
type TranslationRequest struct {
	Text           string
	SourceLocale   string
	TargetLocale   string
	PreserveHTML   bool
	PreserveLiquid bool
}

// TranslationResponse contains translated text and provider metadata.
type TranslationResponse struct {
	TranslatedText string
	SourceText     string
	TokensUsed     TokenUsage
	Cost           Cost
	Provider       string
	Model          string
	Duration       time.Duration
}

// TokenUsage tracks token consumption for one call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Cost tracks the provider cost of one call.
type Cost struct {
	Amount   float64
	Currency string
}

// SystemPrompt returns the translation system prompt. When requested it
// instructs the model to keep HTML markup and Liquid template tags untouched.
func SystemPrompt(preserveHTML, preserveLiquid bool) string {
	prompt := "You are a professional translator. Translate the provided text accurately while maintaining the original meaning, tone, and style."

	if preserveHTML || preserveLiquid {
		prompt += "\n\nIMPORTANT: The text contains markup tags that must be preserved EXACTLY as they appear:"
	}

	if preserveHTML {
		prompt += "\n- HTML tags (e.g., <div>, <span>, <a href=\"...\">) must remain unchanged"
	}

	if preserveLiquid {
		prompt += "\n- Liquid template tags (e.g., {{ variable }}, {% if condition %}) must remain unchanged"
	}

	if preserveHTML || preserveLiquid {
		prompt += "\n\nOnly translate the human-readable text between and outside these tags. Do not translate tag names, attributes, or template variables."
	}

	return prompt
}

// EstimateTokens estimates input token usage for rate-limit accounting.
// Roughly 1 token per 4 characters, with a minimum floor.
func EstimateTokens(text string) int {
	estimated := len(text) / 4
	if estimated < 100 {
		estimated = 100
	}
	return estimated
}
