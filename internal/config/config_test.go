package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BACKEND_URL", "")
	t.Setenv("CHAIN_ID", "")
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("POLL_TIMEOUT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Backend.BaseURL != defaultBackendURL {
		t.Errorf("Expected backend %s, got %s", defaultBackendURL, cfg.Backend.BaseURL)
	}
	if cfg.Chain.ChainId != defaultChainId {
		t.Errorf("Expected chain id %d, got %d", defaultChainId, cfg.Chain.ChainId)
	}
	if cfg.Watcher.PollInterval != 3*time.Second {
		t.Errorf("Expected poll interval 3s, got %v", cfg.Watcher.PollInterval)
	}
	if cfg.Watcher.Timeout != 5*time.Minute {
		t.Errorf("Expected poll timeout 5m, got %v", cfg.Watcher.Timeout)
	}
}

func TestLoadTrimsBackendSlash(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://api.example.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend.BaseURL != "https://api.example.com" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.Backend.BaseURL)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "three seconds")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for invalid POLL_INTERVAL")
	}
}

func TestLoadMissingRPCDoesNotFail(t *testing.T) {
	t.Setenv("CHAIN_RPC_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Chain.RPCURL != "" {
		t.Errorf("Expected empty RPC URL, got %s", cfg.Chain.RPCURL)
	}
}

func TestGetEnvInt64Fallback(t *testing.T) {
	t.Setenv("CHAIN_ID", "not-a-number")
	if got := getEnvInt64("CHAIN_ID", 42161); got != 42161 {
		t.Errorf("Expected fallback 42161, got %d", got)
	}
}
