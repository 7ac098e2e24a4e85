package config

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Reloader re-reads the config on demand (SIGHUP in the gateway) and hands
// the new value to listeners such as the resolver keyword table.
type Reloader struct {
	configPath string
	dotenvPath string
	current    atomic.Pointer[Config]

	mu        sync.Mutex
	listeners []func(*Config)
}

// NewReloader creates a Reloader seeded with the config already in use.
func NewReloader(configPath, dotenvPath string, initial *Config) *Reloader {
	r := &Reloader{configPath: configPath, dotenvPath: dotenvPath}
	r.current.Store(initial)
	return r
}

// Current returns the last successfully loaded config.
func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// OnReload registers fn to run after every successful reload.
func (r *Reloader) OnReload(fn func(*Config)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Reload re-applies the .env file, reloads the config file and notifies
// listeners. On error the current config is left untouched.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ReloadDotenv(r.dotenvPath); err != nil {
		return fmt.Errorf("reload dotenv: %w", err)
	}

	cfg, err := Load(r.configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	r.current.Store(cfg)
	slog.Info("config reloaded", "path", r.configPath)

	for _, fn := range r.listeners {
		fn(cfg)
	}
	return nil
}
