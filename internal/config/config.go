// Package config loads and validates the engine's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lumen-amm/lumen/internal/curve"
	"github.com/lumen-amm/lumen/internal/fees"
	"github.com/lumen-amm/lumen/internal/rewards"
)

// Config is the root configuration structure.
type Config struct {
	General GeneralConfig  `yaml:"general"`
	Engine  EngineConfig   `yaml:"engine"`
	Fees    fees.Config    `yaml:"fees"`
	Curve   curve.Params   `yaml:"curve"`
	Tiers   []rewards.Tier `yaml:"tiers"`
	Rewards RewardsConfig  `yaml:"rewards"`
	Stream  StreamConfig   `yaml:"stream"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
}

type EngineConfig struct {
	Admin         string `yaml:"admin"`
	QuoteToken    string `yaml:"quote_token"`
	MintAuthority string `yaml:"mint_authority"`
}

type RewardsConfig struct {
	ClaimCooldown time.Duration `yaml:"claim_cooldown"`
}

type StreamConfig struct {
	Enabled          bool   `yaml:"enabled"`
	ListenAddr       string `yaml:"listen_addr"`
	SubscriberBuffer int    `yaml:"subscriber_buffer"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate cross-checks the fee schedule against the tier table and the
// curve parameters against each other.
func (c *Config) Validate() error {
	table, err := rewards.NewTierTable(c.Tiers)
	if err != nil {
		return err
	}
	if err := c.Fees.Validate(table.MaxCashbackBPS()); err != nil {
		return err
	}
	if err := c.Curve.Validate(); err != nil {
		return err
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "lumen-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.Engine.Admin == "" {
		cfg.Engine.Admin = "admin"
	}
	if cfg.Engine.QuoteToken == "" {
		cfg.Engine.QuoteToken = "WSOL"
	}
	if cfg.Engine.MintAuthority == "" {
		cfg.Engine.MintAuthority = "mint-authority"
	}
	if cfg.Fees == (fees.Config{}) {
		cfg.Fees = fees.Config{
			FeeBPS:             150,
			CreatorFeeBPS:      30,
			L1ReferralFeeBPS:   30,
			L2ReferralFeeBPS:   3,
			L3ReferralFeeBPS:   2,
			RefereeDiscountBPS: 10,
			MigrationFeeBPS:    500,
		}
	}
	if cfg.Curve == (curve.Params{}) {
		cfg.Curve = curve.Params{
			InitialVirtualQuote:     30_000_000_000,
			InitialVirtualBase:      1_073_000_000_000_000,
			InitialBaseReserve:      793_100_000_000_000,
			MigrationBaseThreshold:  206_900_000_000_000,
			MigrationQuoteThreshold: 66_125_718_982,
		}
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = rewards.DefaultTiers()
	}
	if cfg.Rewards.ClaimCooldown == 0 {
		cfg.Rewards.ClaimCooldown = 7 * 24 * time.Hour
	}
	if cfg.Stream.ListenAddr == "" {
		cfg.Stream.ListenAddr = ":8475"
	}
	if cfg.Stream.SubscriberBuffer == 0 {
		cfg.Stream.SubscriberBuffer = 256
	}
}
