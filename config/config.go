package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the savingsd runtime settings.
type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	OpsAddress  string `toml:"OpsAddress"`
	DataDir     string `toml:"DataDir"`
	Environment string `toml:"Environment"`
	CallBudget  uint64 `toml:"CallBudget"`

	// Hex-encoded 20-byte addresses.
	TreasuryAddress string `toml:"TreasuryAddress"`
	ModuleAddress   string `toml:"ModuleAddress"`
	HookAddress     string `toml:"HookAddress"`
}

const (
	defaultRPCAddress = ":8645"
	defaultOpsAddress = ":9090"
	defaultDataDir    = "./savingsd-data"
	defaultCallBudget = 5_000_000
)

// Load reads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = defaultRPCAddress
	}
	if strings.TrimSpace(c.OpsAddress) == "" {
		c.OpsAddress = defaultOpsAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
	if c.CallBudget == 0 {
		c.CallBudget = defaultCallBudget
	}
}

// Validate rejects malformed address fields early so the daemon fails at
// startup rather than on the first privileged call.
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"TreasuryAddress": c.TreasuryAddress,
		"ModuleAddress":   c.ModuleAddress,
		"HookAddress":     c.HookAddress,
	} {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := ParseAddress(value); err != nil {
			return fmt.Errorf("config: invalid %s: %w", name, err)
		}
	}
	return nil
}

// ParseAddress decodes a hex-encoded 20-byte address, with or without an 0x
// prefix.
func ParseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, err
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("address must be %d bytes, got %d", len(addr), len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

// Address returns the parsed form of a configured address field, or the zero
// address when the field is empty.
func (c *Config) Address(value string) [20]byte {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}
	}
	addr, err := ParseAddress(value)
	if err != nil {
		return [20]byte{}
	}
	return addr
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
