// Package llm answers chat turns by calling an OpenAI-compatible endpoint
// directly, keeping sessions in the local history store.
package llm

import (
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/medchat-go/internal/config"
)

// NewClient creates a new OpenAI client
func NewClient(cfg config.LLMConfig) *openai.Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return openai.NewClientWithConfig(config)
}
