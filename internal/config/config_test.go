package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("expected model 'gpt-4o-mini', got %q", cfg.OpenAI.Model)
	}
	if cfg.OpenAI.MaxTokens != 256 {
		t.Errorf("expected max_tokens 256, got %d", cfg.OpenAI.MaxTokens)
	}
	if cfg.Instructions.Session == "" || cfg.Instructions.Message == "" {
		t.Error("expected instruction refs to be populated")
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
openai:
  model: gpt-4o
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.OpenAI.Model != "gpt-4o" {
		t.Errorf("expected model 'gpt-4o', got %q", cfg.OpenAI.Model)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults survive partial configs.
	if cfg.OpenAI.APIKeyEnv != "OPENAI_API_KEY" {
		t.Errorf("expected default api_key_env, got %q", cfg.OpenAI.APIKeyEnv)
	}
	if cfg.Taxonomy.Path != "categories.yaml" {
		t.Errorf("expected default taxonomy path, got %q", cfg.Taxonomy.Path)
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := parse([]byte("openai: [not a map")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestResolveConfigPathExplicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	got, err := ResolveConfigPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != path {
		t.Errorf("expected %q, got %q", path, got)
	}
}

func TestResolveTaxonomyPathRelative(t *testing.T) {
	cfg := &Config{Taxonomy: Taxonomy{Path: "categories.yaml"}}
	got := cfg.ResolveTaxonomyPath("/etc/chatclass/config.yaml")
	want := "/etc/chatclass/categories.yaml"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestResolveTaxonomyPathAbsolute(t *testing.T) {
	cfg := &Config{Taxonomy: Taxonomy{Path: "/opt/cats.yaml"}}
	if got := cfg.ResolveTaxonomyPath("/etc/chatclass/config.yaml"); got != "/opt/cats.yaml" {
		t.Errorf("expected absolute path untouched, got %q", got)
	}
}
