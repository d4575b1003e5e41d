package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Provider.Type != "openai" {
		t.Errorf("Provider.Type = %q", cfg.Provider.Type)
	}
	if cfg.Pipeline.MaxChunkKB != 4000 {
		t.Errorf("MaxChunkKB = %d, want 4000", cfg.Pipeline.MaxChunkKB)
	}
	if cfg.Pipeline.ChunkConcurrency != 1 {
		t.Errorf("ChunkConcurrency = %d, want sequential default", cfg.Pipeline.ChunkConcurrency)
	}
	if len(cfg.Pipeline.RelevantKeywords) == 0 {
		t.Error("default keywords missing")
	}
	if cfg.Confidence.High <= cfg.Confidence.Medium || cfg.Confidence.Medium <= cfg.Confidence.Low {
		t.Errorf("confidence tiers not ordered: %+v", cfg.Confidence)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Setenv("CREEL_TEST_KEY", "sk-12345")

	tests := []struct {
		in   string
		want string
	}{
		{"${CREEL_TEST_KEY}", "sk-12345"},
		{"prefix-${CREEL_TEST_KEY}", "prefix-sk-12345"},
		{"no refs here", "no refs here"},
		{"${CREEL_TEST_UNSET}", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ResolveEnvVars(tt.in); got != tt.want {
			t.Errorf("ResolveEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Provider.Model != DefaultConfig().Provider.Model {
		t.Errorf("round trip model = %q", cfg.Provider.Model)
	}
	if cfg.Provider.APIKey != "${OPENAI_API_KEY}" {
		t.Errorf("api key placeholder = %q", cfg.Provider.APIKey)
	}
}
