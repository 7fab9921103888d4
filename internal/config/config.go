package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider values for BackendConfig.Provider.
const (
	ProviderHTTP   = "http"
	ProviderOpenAI = "openai"
)

// Config holds the application configuration
type Config struct {
	Backend BackendConfig
	Auth    AuthConfig
	LLM     LLMConfig
	Reveal  RevealConfig
	Chat    ChatConfig
	Voice   VoiceConfig
	History HistoryConfig
	Log     LogConfig
}

// BackendConfig describes the medical-assistant API.
type BackendConfig struct {
	Provider  string        `mapstructure:"provider"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
}

// AuthConfig holds the API token or the file it is persisted in.
type AuthConfig struct {
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token_file"`
}

// LLMConfig holds the OpenAI-compatible endpoint used in direct mode.
type LLMConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	SystemPrompt string `mapstructure:"system_prompt"`
	HistoryLimit int    `mapstructure:"history_limit"`
}

// RevealConfig controls the typing animation of assistant replies.
type RevealConfig struct {
	ChunkSize int           `mapstructure:"chunk_size"`
	Interval  time.Duration `mapstructure:"interval"`
}

// ChatConfig holds the chat turn policy.
type ChatConfig struct {
	FallbackDelay time.Duration `mapstructure:"fallback_delay"`
	EmptyReply    string        `mapstructure:"empty_reply"`
}

// VoiceConfig holds the external speech commands.
type VoiceConfig struct {
	OutputEnabled    bool   `mapstructure:"output_enabled"`
	SpeakCommand     string `mapstructure:"speak_command"`
	RecognizeCommand string `mapstructure:"recognize_command"`
}

// HistoryConfig holds the local sqlite cache location.
type HistoryConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper) {
	dir := defaultDir()

	v.SetDefault("backend.provider", ProviderHTTP)
	v.SetDefault("backend.base_url", "http://localhost:8000/api")
	v.SetDefault("backend.timeout", 60*time.Second)
	v.SetDefault("backend.rate_limit", 5.0)
	v.SetDefault("backend.burst", 10)

	v.SetDefault("auth.token", "")
	v.SetDefault("auth.token_file", filepath.Join(dir, "token"))

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("llm.history_limit", 20)

	v.SetDefault("reveal.chunk_size", 2)
	v.SetDefault("reveal.interval", 18*time.Millisecond)

	v.SetDefault("chat.fallback_delay", 600*time.Millisecond)
	v.SetDefault("chat.empty_reply", "Response received.")

	v.SetDefault("voice.output_enabled", true)
	v.SetDefault("voice.speak_command", "")
	v.SetDefault("voice.recognize_command", "")

	v.SetDefault("history.db_path", filepath.Join(dir, "history.db"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", filepath.Join(dir, "medchat.log"))
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "medchat")
}

// Load loads the configuration from the file named by CONFIG_PATH, or from a
// config.yaml in the working directory or ~/.config/medchat. A missing file is
// not an error; MEDCHAT_* environment variables override file values.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(defaultDir())
	}

	v.SetEnvPrefix("medchat")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Backend.Provider {
	case ProviderHTTP, ProviderOpenAI:
	default:
		return errors.New("backend.provider must be 'http' or 'openai'")
	}
	if c.Reveal.ChunkSize < 1 {
		return errors.New("reveal.chunk_size must be at least 1")
	}
	if c.Reveal.Interval <= 0 {
		return errors.New("reveal.interval must be positive")
	}
	if c.Chat.FallbackDelay < 0 {
		return errors.New("chat.fallback_delay must not be negative")
	}
	return nil
}
