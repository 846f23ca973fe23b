package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Chain.RPCURL != "https://mainnet.base.org" {
		t.Errorf("RPCURL = %q", cfg.Chain.RPCURL)
	}
	if cfg.Contracts.Escrow == "" || cfg.Contracts.Registry == "" {
		t.Errorf("contract defaults missing: %+v", cfg.Contracts)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("default level = %v, want info", cfg.SlogLevel())
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarm.yaml")
	body := "chain:\n  rpc_url: http://localhost:8545\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chain.RPCURL != "http://localhost:8545" {
		t.Errorf("RPCURL = %q", cfg.Chain.RPCURL)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", cfg.SlogLevel())
	}
	// Fields absent from the file keep their defaults.
	if cfg.Contracts.Escrow != "0xE2b1D96dfbd4E363888c4c4f314A473E7cA24D2f" {
		t.Errorf("escrow default lost: %q", cfg.Contracts.Escrow)
	}
}

func TestResolve_EnvironmentWins(t *testing.T) {
	t.Setenv("ESCROW_ADDRESS", "0x1111111111111111111111111111111111111111")
	t.Setenv("PRIVATE_KEY", "deadbeef")

	cfg, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Contracts.Escrow != "0x1111111111111111111111111111111111111111" {
		t.Errorf("escrow = %q, env override lost", cfg.Contracts.Escrow)
	}
	if cfg.PrivateKey != "deadbeef" {
		t.Errorf("private key not taken from environment")
	}
}

func TestLoad_MissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load of missing file did not error")
	}
}
