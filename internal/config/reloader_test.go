package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReloader_Reload(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TASKCHAT_PATH", dir)
	dotenvPath := filepath.Join(dir, ".env")
	configPath := filepath.Join(dir, "config.jsonc")

	if err := os.WriteFile(dotenvPath, []byte("TASKCHAT_KEYWORDS=first.yaml\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TASKCHAT_KEYWORDS", "stale.yaml")

	content := `{
		// keyword table comes from the environment
		"resolver": {"keywords_file": "${{ .Env.TASKCHAT_KEYWORDS }}"},
	}`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewReloader(configPath, dotenvPath, Default())
	var seen []string
	r.OnReload(func(cfg *Config) { seen = append(seen, cfg.Resolver.KeywordsFile) })

	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	want := filepath.Join(dir, "first.yaml")
	if got := r.Current().Resolver.KeywordsFile; got != want {
		t.Errorf("KeywordsFile = %q, want %q", got, want)
	}
	if len(seen) != 1 || seen[0] != want {
		t.Errorf("listener saw %v, want [%s]", seen, want)
	}
}

func TestReloader_KeepsCurrentOnError(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(configPath, []byte(`{"gateway": `), 0o644); err != nil {
		t.Fatal(err)
	}

	initial := Default()
	r := NewReloader(configPath, filepath.Join(dir, ".env"), initial)
	r.OnReload(func(*Config) { t.Error("listener must not run on failed reload") })

	if err := r.Reload(); err == nil {
		t.Fatal("expected error for truncated config")
	}
	if r.Current() != initial {
		t.Error("current config replaced after failed reload")
	}
}
