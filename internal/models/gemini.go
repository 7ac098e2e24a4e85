package models

import (
	"context"
	"fmt"
	"net/http"
	"time"

	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/dohr-michael/taskchat/internal/config"
)

const defaultGeminiModel = "gemini-2.5-flash"

// NewGemini creates a Gemini ChatModel backed by the Gemini API.
func NewGemini(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     auth.Value,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultGeminiModel
	}

	modelConfig := &einogemini.Config{
		Client: client,
		Model:  modelName,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxTokens = &maxTokens
	}
	if temp, ok := temperatureOption(cfg); ok {
		modelConfig.Temperature = &temp
	}

	return einogemini.NewChatModel(ctx, modelConfig)
}
