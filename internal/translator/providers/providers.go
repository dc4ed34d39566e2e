// Package providers builds the configured fallback chain of AI translation
// backends.
package providers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ownlingo/ownlingo/internal/config"
	"github.com/ownlingo/ownlingo/internal/translator"
	"github.com/ownlingo/ownlingo/internal/translator/fallback"
	"github.com/ownlingo/ownlingo/internal/translator/providers/anthropic"
	"github.com/ownlingo/ownlingo/internal/translator/providers/gemini"
	"github.com/ownlingo/ownlingo/internal/translator/providers/openai"
	"github.com/ownlingo/ownlingo/internal/translator/retry"
)

// BuildChain constructs the fallback chain in the order named by
// PROVIDER_ORDER. Providers without an API key are still placed in the chain
// and report themselves unavailable, so the configured order stays stable
// when keys are rotated in.
func BuildChain(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*fallback.Chain, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	retryConfig := &retry.Config{
		MaxRetries:     cfg.ProviderRetries,
		InitialBackoff: retry.DefaultConfig().InitialBackoff,
		MaxBackoff:     retry.DefaultConfig().MaxBackoff,
		Multiplier:     retry.DefaultConfig().Multiplier,
		JitterFraction: retry.DefaultConfig().JitterFraction,
	}

	names := cfg.ProviderNames()
	chain := make([]translator.AITranslator, 0, len(names))
	for _, name := range names {
		switch name {
		case "anthropic":
			providerCfg := anthropic.DefaultConfig(cfg.AnthropicAPIKey)
			providerCfg.Model = cfg.AnthropicModel
			providerCfg.TPM = cfg.AnthropicTPM
			providerCfg.RPM = cfg.AnthropicRPM
			providerCfg.RetryConfig = retryConfig
			chain = append(chain, anthropic.NewProvider(providerCfg))
		case "openai":
			providerCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
			providerCfg.Model = cfg.OpenAIModel
			providerCfg.TPM = cfg.OpenAITPM
			providerCfg.RPM = cfg.OpenAIRPM
			providerCfg.RetryConfig = retryConfig
			chain = append(chain, openai.NewProvider(providerCfg))
		case "gemini":
			providerCfg := gemini.DefaultConfig(cfg.GeminiAPIKey)
			providerCfg.Model = cfg.GeminiModel
			providerCfg.TPM = cfg.GeminiTPM
			providerCfg.RPM = cfg.GeminiRPM
			providerCfg.RetryConfig = retryConfig
			provider, err := gemini.NewProvider(ctx, providerCfg)
			if err != nil {
				return nil, fmt.Errorf("build gemini provider: %w", err)
			}
			chain = append(chain, provider)
		default:
			return nil, fmt.Errorf("unknown translation provider %q in PROVIDER_ORDER", name)
		}
	}

	if len(chain) == 0 {
		return nil, fmt.Errorf("PROVIDER_ORDER resolved to zero providers")
	}

	for _, provider := range chain {
		logger.Info().
			Str("provider", provider.Name()).
			Bool("available", provider.Available()).
			Msg("translation provider registered")
	}

	return fallback.NewChain(chain...), nil
}
