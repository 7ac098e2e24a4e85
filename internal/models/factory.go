package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/taskchat/internal/config"
)

// CreateModel creates a model.ToolCallingChatModel from a provider config.
func CreateModel(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	switch strings.ToLower(cfg.Driver) {
	case "anthropic":
		auth, err := ResolveAuth(cfg)
		if err != nil {
			return nil, fmt.Errorf("resolve auth: %w", err)
		}
		return NewAnthropic(ctx, cfg, auth)
	case "openai":
		auth, err := ResolveAuth(cfg)
		if err != nil {
			return nil, fmt.Errorf("resolve auth: %w", err)
		}
		return NewOpenAI(ctx, cfg, auth)
	case "gemini":
		auth, err := ResolveAuth(cfg)
		if err != nil {
			return nil, fmt.Errorf("resolve auth: %w", err)
		}
		return NewGemini(ctx, cfg, auth)
	case "ollama":
		return NewOllama(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown driver: %s", cfg.Driver)
	}
}

// temperatureOption reads options.temperature when present.
func temperatureOption(cfg config.ProviderConfig) (float32, bool) {
	if cfg.Options == nil {
		return 0, false
	}
	temp, ok := cfg.Options["temperature"].(float64)
	return float32(temp), ok
}
