package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8080" {
		t.Fatalf("unexpected default rpc address %q", cfg.RPCAddress)
	}
	if cfg.NetworkName != "tokenmart-local" {
		t.Fatalf("unexpected default network name %q", cfg.NetworkName)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}
}

func TestLoadParsesOperator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "RPCAddress = \":9545\"\nDataDir = \"/tmp/mart\"\nOperatorAddress = \"0x0102030405060708090a0b0c0d0e0f1011121314\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":9545" {
		t.Fatalf("rpc address not honoured: %q", cfg.RPCAddress)
	}
	operator, err := cfg.Operator()
	if err != nil {
		t.Fatalf("operator: %v", err)
	}
	if operator[0] != 0x01 || operator[19] != 0x14 {
		t.Fatalf("operator mis-parsed: %x", operator)
	}
}

func TestLoadRejectsMalformedOperator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "OperatorAddress = \"0xdeadbeef\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected short operator address to be rejected")
	}
}
