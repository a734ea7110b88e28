package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loanworks/granite/internal/config"
)

// NewClient builds the retry-wrapped oracle for the configured provider.
func NewClient(ctx context.Context, cfg config.OracleConfig, retry config.RetryConfig) (Oracle, error) {
	provider := strings.ToLower(cfg.Provider)

	var backend GenerateClient

	switch provider {
	case "openai":
		backend = NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL)

	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		backend = c

	case "claude":
		backend = NewClaudeClient(cfg.APIKey, cfg.Model, cfg.BaseURL)

	case "compatible":
		// Any OpenAI-compatible endpoint (self-hosted classifiers, local
		// model servers). API key may be a dummy value.
		baseURL := cfg.BaseURL
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL = fmt.Sprintf("%s/v1", strings.TrimRight(baseURL, "/"))
		}
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "local"
		}
		backend = NewOpenAIClient(apiKey, cfg.Model, baseURL)

	default:
		return nil, fmt.Errorf("unsupported oracle provider: %s", provider)
	}

	policy := RetryPolicy{
		MaxAttempts: retry.MaxAttempts,
		BaseDelay:   time.Duration(retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(retry.MaxDelayMS) * time.Millisecond,
	}

	return WithRetry(NewClassifier(backend), policy), nil
}
