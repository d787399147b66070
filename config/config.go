package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"netyield/crypto"
)

// Config captures the daemon's runtime settings. Files may be TOML or YAML;
// the loader dispatches on the file extension.
type Config struct {
	ListenAddress string `toml:"ListenAddress" yaml:"listen"`
	DataDir       string `toml:"DataDir" yaml:"dataDir"`
	Env           string `toml:"Env" yaml:"env"`

	Ledger    LedgerConfig    `toml:"ledger" yaml:"ledger"`
	Roles     RolesConfig     `toml:"roles" yaml:"roles"`
	RateLimit RateLimitConfig `toml:"ratelimit" yaml:"rateLimit"`
}

// LedgerConfig describes the yield ledger's fixed collaterals.
type LedgerConfig struct {
	// UnderlyingAsset is the bech32 reference of the fungible asset the
	// ledger is initialized against.
	UnderlyingAsset string `toml:"UnderlyingAsset" yaml:"underlyingAsset"`
	// TokenSymbol is the display symbol of the asset collaborator.
	TokenSymbol string `toml:"TokenSymbol" yaml:"tokenSymbol"`
}

// RolesConfig seeds the capability sets checked by the mutating entry points.
type RolesConfig struct {
	Owners   []string `toml:"Owners" yaml:"owners"`
	Minters  []string `toml:"Minters" yaml:"minters"`
	Managers []string `toml:"Managers" yaml:"managers"`
}

// RateLimitConfig throttles mutating HTTP endpoints per client. Zero values
// leave the surface unthrottled.
type RateLimitConfig struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute" yaml:"requestsPerMinute"`
	Burst             int     `toml:"Burst" yaml:"burst"`
}

const (
	defaultListenAddress = "0.0.0.0:8546"
	defaultDataDir       = "./nyl-data"
	defaultTokenSymbol   = "NYA"
)

// Load reads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	if strings.TrimSpace(cfg.Ledger.TokenSymbol) == "" {
		cfg.Ledger.TokenSymbol = defaultTokenSymbol
	}
}

// Validate checks that every configured address parses and that the ledger has
// an underlying asset to initialize against.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.Ledger.UnderlyingAsset) == "" {
		return fmt.Errorf("config: ledger.UnderlyingAsset is required")
	}
	if _, err := crypto.DecodeAddress(cfg.Ledger.UnderlyingAsset); err != nil {
		return fmt.Errorf("config: ledger.UnderlyingAsset: %w", err)
	}
	if cfg.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("config: ratelimit.RequestsPerMinute must not be negative")
	}
	if cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("config: ratelimit.Burst must not be negative")
	}
	for _, group := range []struct {
		name    string
		entries []string
	}{
		{"roles.Owners", cfg.Roles.Owners},
		{"roles.Minters", cfg.Roles.Minters},
		{"roles.Managers", cfg.Roles.Managers},
	} {
		for _, entry := range group.entries {
			if _, err := crypto.DecodeAddress(entry); err != nil {
				return fmt.Errorf("config: %s entry %q: %w", group.name, entry, err)
			}
		}
	}
	return nil
}

// UnderlyingAssetAddress returns the parsed asset reference. Call Validate
// first.
func (cfg *Config) UnderlyingAssetAddress() (crypto.Address, error) {
	return crypto.DecodeAddress(cfg.Ledger.UnderlyingAsset)
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("config: create default %s: %w", path, err)
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: encode default %s: %w", path, err)
	}
	// The default file still needs an UnderlyingAsset before it validates;
	// return it as-is so the caller can report the missing field.
	return cfg, nil
}
