package chat

import (
	"errors"
	"fmt"
	"time"
)

// ChatConfig is the "chat" configuration section.
type ChatConfig struct {
	// APIKey enables the language model. OPENAI_API_KEY is used when empty.
	APIKey string `json:"api_key" yaml:"api_key" toml:"api_key" env:"API_KEY"`
	// BaseURL points the client at an OpenAI compatible server.
	BaseURL      string        `json:"base_url" yaml:"base_url" toml:"base_url" env:"BASE_URL"`
	Model        string        `json:"model" yaml:"model" toml:"model" env:"MODEL" default:"gpt-5-nano"`
	SystemPrompt string        `json:"system_prompt" yaml:"system_prompt" toml:"system_prompt" env:"SYSTEM_PROMPT" default:"You are SAGE, a helpful voice assistant. Answer in one or two short sentences that sound natural when spoken."`
	Timeout      time.Duration `json:"timeout" yaml:"timeout" toml:"timeout" env:"TIMEOUT" default:"8s"`

	// HistorySize is how many exchanges are sent back to the model as context.
	HistorySize int `json:"history_size" yaml:"history_size" toml:"history_size" env:"HISTORY_SIZE" default:"3"`

	// CacheTTL and CacheSize bound the response cache. A zero size disables it.
	CacheTTL  time.Duration `json:"cache_ttl" yaml:"cache_ttl" toml:"cache_ttl" env:"CACHE_TTL" default:"10m"`
	CacheSize int           `json:"cache_size" yaml:"cache_size" toml:"cache_size" env:"CACHE_SIZE" default:"128"`
}

// Validate checks the limits.
func (c *ChatConfig) Validate() error {
	var errs []error
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.HistorySize < 0 {
		errs = append(errs, fmt.Errorf("history_size must not be negative, got %d", c.HistorySize))
	}
	if c.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("cache_size must not be negative, got %d", c.CacheSize))
	}
	return errors.Join(errs...)
}
