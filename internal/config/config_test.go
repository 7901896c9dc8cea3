package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "config"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(base, "config", ConfigFileName), []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return base
}

func TestLoadMainConfigMissingFile(t *testing.T) {
	cfg, err := LoadMainConfig(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RPCTimeout != 10*time.Millisecond {
		t.Errorf("rpc timeout = %v, want 10ms", cfg.RPCTimeout)
	}
	if !cfg.IsRetryable(0) || !cfg.IsRetryable(11) || cfg.IsRetryable(13) {
		t.Errorf("unexpected retryable codes %v", cfg.RetryableCodes)
	}
}

func TestLoadMainConfigOverridesDefaults(t *testing.T) {
	base := writeConfig(t, `
rpc_timeout: 25ms
retryable_codes: [0, 11, 14]
log_level: debug
metrics_addr: 127.0.0.1:9100
id_mode: uuid
`)
	cfg, err := LoadMainConfig(base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RPCTimeout != 25*time.Millisecond {
		t.Errorf("rpc timeout = %v", cfg.RPCTimeout)
	}
	if cfg.RetryFlushInterval != 500*time.Millisecond {
		t.Errorf("retry flush interval lost its default: %v", cfg.RetryFlushInterval)
	}
	if !cfg.IsRetryable(14) {
		t.Errorf("code 14 should be retryable")
	}
	if cfg.IDMode != "uuid" || cfg.LogLevel != "debug" || cfg.ShardCount != 32 {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestLoadMainConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "rpc_timeout: [\n"},
		{"bad level", "log_level: loud\n"},
		{"bad id mode", "id_mode: sequential\n"},
		{"zero timeout", "rpc_timeout: 0s\n"},
		{"bad metrics addr", "metrics_addr: not an address\n"},
		{"zero shards", "shard_count: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadMainConfig(writeConfig(t, tt.content)); err == nil {
				t.Errorf("expected error for %q", tt.content)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
