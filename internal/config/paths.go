package config

import (
	"os"
	"path/filepath"
)

// DataPath returns the root directory for taskchat data.
// It uses $TASKCHAT_PATH if set, otherwise defaults to ~/.taskchat.
func DataPath() string {
	if v := os.Getenv("TASKCHAT_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".taskchat")
	}
	return filepath.Join(home, ".taskchat")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(DataPath(), "config.jsonc")
}

// DotenvPath returns the path to the .env file.
func DotenvPath() string {
	return filepath.Join(DataPath(), ".env")
}
