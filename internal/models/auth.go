package models

import (
	"fmt"
	"os"
	"strings"

	"github.com/dohr-michael/taskchat/internal/config"
)

// AuthKind distinguishes between API key and Bearer token auth.
type AuthKind int

const (
	AuthAPIKey AuthKind = iota
	AuthBearerToken
)

// ResolvedAuth holds the resolved credentials and their kind.
type ResolvedAuth struct {
	Kind  AuthKind
	Value string
}

// driverEnvKeys lists the env vars consulted per driver when the config has no key.
var driverEnvKeys = map[string][]string{
	"anthropic": {"ANTHROPIC_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// ResolveAuth resolves the credentials for a provider.
// Resolution order: direct token → direct api_key → driver default env.
func ResolveAuth(cfg config.ProviderConfig) (ResolvedAuth, error) {
	if token := resolveSecret(cfg.Auth.Token); token != "" {
		return ResolvedAuth{Kind: AuthBearerToken, Value: token}, nil
	}

	if apiKey := resolveSecret(cfg.Auth.APIKey); apiKey != "" {
		return ResolvedAuth{Kind: AuthAPIKey, Value: apiKey}, nil
	}

	driver := strings.ToLower(cfg.Driver)
	keys, ok := driverEnvKeys[driver]
	if !ok {
		return ResolvedAuth{}, fmt.Errorf("unknown driver %q: cannot resolve auth", cfg.Driver)
	}
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return ResolvedAuth{Kind: AuthAPIKey, Value: v}, nil
		}
	}
	return ResolvedAuth{}, fmt.Errorf("%s not set", strings.Join(keys, " or "))
}

// resolveSecret expands a ${VAR} reference, otherwise returns the trimmed value.
func resolveSecret(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "${") && strings.HasSuffix(trimmed, "}") {
		return os.Getenv(trimmed[2 : len(trimmed)-1])
	}
	return trimmed
}
