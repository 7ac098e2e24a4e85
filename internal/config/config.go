package config

import (
	"encoding/json"
	"time"
)

// Config is the root configuration for taskchat.
type Config struct {
	Gateway  GatewayConfig  `json:"gateway"`
	Models   ModelsConfig   `json:"models"`
	Resolver ResolverConfig `json:"resolver"`
	Storage  StorageConfig  `json:"storage"`
	Events   EventsConfig   `json:"events"`
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ModelsConfig holds model provider configuration.
// An empty Default disables the model path; every request then goes
// through the fallback parser.
type ModelsConfig struct {
	Default   string                    `json:"default"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver    string         `json:"driver"` // "anthropic", "openai", "ollama", "gemini"
	Model     string         `json:"model"`
	BaseURL   string         `json:"base_url,omitempty"`
	Auth      AuthConfig     `json:"auth"`
	MaxTokens int            `json:"max_tokens,omitempty"`
	Timeout   Duration       `json:"timeout,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// AuthConfig configures API key resolution.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty"` // direct key, ${VAR} or ${{ .Env.VAR }}
	Token  string `json:"token,omitempty"`   // bearer token
}

// ResolverConfig tunes the intent resolver.
type ResolverConfig struct {
	ModelTimeout  Duration `json:"model_timeout"`
	MaxRetries    int      `json:"max_retries"`
	ContextWindow int      `json:"context_window"`
	Temperature   float64  `json:"temperature"`
	KeywordsFile  string   `json:"keywords_file,omitempty"`
	SystemPrompt  string   `json:"system_prompt,omitempty"`
}

// StorageConfig locates the task database and the conversation log.
type StorageConfig struct {
	TasksDB          string   `json:"tasks_db"`
	ConversationsDir string   `json:"conversations_dir"`
	Timeout          Duration `json:"timeout"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int    `json:"buffer_size"`
	LogLevel   string `json:"log_level"`
}

// Duration wraps time.Duration for JSON unmarshaling.
// Accepts "1.5s" style strings or a plain number of seconds.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var secs float64
	if err := json.Unmarshal(b, &secs); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
