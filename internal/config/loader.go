package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

const (
	defaultModelTimeout  = 10 * time.Second
	defaultStoreTimeout  = 5 * time.Second
	defaultContextWindow = 8
	maxContextWindow     = 20
)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates,
// standardizes it to plain JSON, unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Templates live inside string literals, so expand before parsing.
	expanded := expandEnvTemplates(string(data))

	std, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18430
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Events.LogLevel == "" {
		cfg.Events.LogLevel = "info"
	}

	if cfg.Resolver.ModelTimeout <= 0 {
		cfg.Resolver.ModelTimeout = Duration(defaultModelTimeout)
	}
	if cfg.Resolver.MaxRetries < 0 {
		cfg.Resolver.MaxRetries = 0
	}
	if cfg.Resolver.MaxRetries > 1 {
		// A single corrective retry is the most the resolver will attempt.
		cfg.Resolver.MaxRetries = 1
	}
	if cfg.Resolver.ContextWindow <= 0 {
		cfg.Resolver.ContextWindow = defaultContextWindow
	}
	if cfg.Resolver.ContextWindow > maxContextWindow {
		cfg.Resolver.ContextWindow = maxContextWindow
	}
	if cfg.Resolver.KeywordsFile != "" && !filepath.IsAbs(cfg.Resolver.KeywordsFile) {
		cfg.Resolver.KeywordsFile = filepath.Join(DataPath(), cfg.Resolver.KeywordsFile)
	}

	if cfg.Storage.TasksDB == "" {
		cfg.Storage.TasksDB = filepath.Join(DataPath(), "tasks.db")
	}
	if cfg.Storage.ConversationsDir == "" {
		cfg.Storage.ConversationsDir = filepath.Join(DataPath(), "conversations")
	}
	if cfg.Storage.Timeout <= 0 {
		cfg.Storage.Timeout = Duration(defaultStoreTimeout)
	}
	// Auth resolution is deferred to models.ResolveAuth() at model init time.
}
