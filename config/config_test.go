package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.APIListenAddr != ":8080" {
		t.Errorf("api_listen_addr = %q", cfg.APIListenAddr)
	}
	if cfg.WSListenAddr != ":8888" {
		t.Errorf("ws_listen_addr = %q", cfg.WSListenAddr)
	}
	if cfg.ChatTail != 300 {
		t.Errorf("chat_tail = %d", cfg.ChatTail)
	}
	if cfg.PostgresDSN != "" {
		t.Errorf("postgres_dsn must default to empty, got %q", cfg.PostgresDSN)
	}
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("WATCHPARTY_WS_LISTEN_ADDR", ":9999")
	t.Setenv("WATCHPARTY_CHAT_TAIL", "50")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.WSListenAddr != ":9999" {
		t.Errorf("ws_listen_addr = %q, want :9999", cfg.WSListenAddr)
	}
	if cfg.ChatTail != 50 {
		t.Errorf("chat_tail = %d, want 50", cfg.ChatTail)
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "api_listen_addr: \":7070\"\nlog_level: info\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.APIListenAddr != ":7070" {
		t.Errorf("api_listen_addr = %q, want :7070", cfg.APIListenAddr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log_level = %q, want info", cfg.LogLevel)
	}
	// untouched keys keep their defaults
	if cfg.WSListenAddr != ":8888" {
		t.Errorf("ws_listen_addr = %q, want :8888", cfg.WSListenAddr)
	}
}

func TestMissingConfigFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("explicitly named missing config file must fail")
	}
}
