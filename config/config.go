package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress      string `toml:"RPCAddress"`
	MetricsAddress  string `toml:"MetricsAddress"`
	DataDir         string `toml:"DataDir"`
	NetworkName     string `toml:"NetworkName"`
	OperatorAddress string `toml:"OperatorAddress"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "tokenmart-local"
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./tokenmart-data"
	}
	if _, err := cfg.Operator(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Operator parses the configured operator identity. An empty field yields the
// zero identity, leaving the marketplace uninitialized.
func (c *Config) Operator() ([20]byte, error) {
	var operator [20]byte
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(c.OperatorAddress), "0x"))
	if raw == "" {
		return operator, nil
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return operator, fmt.Errorf("config: invalid OperatorAddress: %w", err)
	}
	if len(decoded) != 20 {
		return operator, fmt.Errorf("config: OperatorAddress must be 20 bytes, got %d", len(decoded))
	}
	copy(operator[:], decoded)
	return operator, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:     ":8080",
		MetricsAddress: ":9090",
		DataDir:        "./tokenmart-data",
		NetworkName:    "tokenmart-local",
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
