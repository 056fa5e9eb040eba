package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendingmarket/native/lending"
)

// Config describes a lending deployment: who governs it, who publishes prices
// and which markets exist at startup. Numeric values are decimal strings so
// 1e18-scaled mantissas survive TOML's int64 limit.
type Config struct {
	Admin           string         `toml:"Admin"`
	OracleAuthority string         `toml:"OracleAuthority"`
	BlockHeight     uint64         `toml:"BlockHeight"`
	Markets         []MarketConfig `toml:"Markets"`
}

// MarketConfig describes one market.
type MarketConfig struct {
	ID                  string `toml:"ID"`
	Underlying          string `toml:"Underlying"`
	Symbol              string `toml:"Symbol"`
	ReserveFactor       string `toml:"ReserveFactor"`
	InitialExchangeRate string `toml:"InitialExchangeRate"`
	CollateralFactor    string `toml:"CollateralFactor"`
	// Price is published by the oracle authority at startup when set.
	Price string `toml:"Price"`
	// Listed defaults to true.
	Listed *bool `toml:"Listed"`
	// InitialSupply is minted to Faucet on the in-memory underlying ledger.
	InitialSupply string           `toml:"InitialSupply"`
	Faucet        string           `toml:"Faucet"`
	RateModel     *RateModelConfig `toml:"RateModel"`
}

// RateModelConfig overrides the default kinked rate curve.
type RateModelConfig struct {
	BaseRatePerBlock       string `toml:"BaseRatePerBlock"`
	MultiplierPerBlock     string `toml:"MultiplierPerBlock"`
	JumpMultiplierPerBlock string `toml:"JumpMultiplierPerBlock"`
	Kink                   string `toml:"Kink"`
}

// Load decodes the TOML file at path, rejecting unknown keys, and validates it.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	}
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML from a string. It is used by tests and embedded defaults.
func Parse(data string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.Decode(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Admin = strings.TrimSpace(c.Admin)
	c.OracleAuthority = strings.TrimSpace(c.OracleAuthority)
	if c.OracleAuthority == "" {
		c.OracleAuthority = c.Admin
	}
	for i := range c.Markets {
		m := &c.Markets[i]
		m.ID = strings.TrimSpace(m.ID)
		m.Underlying = strings.TrimSpace(m.Underlying)
		m.Symbol = strings.TrimSpace(m.Symbol)
		if m.Listed == nil {
			listed := true
			m.Listed = &listed
		}
	}
}

// AdminAddress returns the parsed registry admin.
func (c *Config) AdminAddress() common.Address { return common.HexToAddress(c.Admin) }

// OracleAuthorityAddress returns the parsed oracle authority.
func (c *Config) OracleAuthorityAddress() common.Address {
	return common.HexToAddress(c.OracleAuthority)
}

// IsListed reports whether the market should be listed at startup.
func (m MarketConfig) IsListed() bool { return m.Listed == nil || *m.Listed }

// MarketID returns the parsed market identifier.
func (m MarketConfig) MarketID() common.Address { return common.HexToAddress(m.ID) }

// FaucetAddress returns the parsed faucet account.
func (m MarketConfig) FaucetAddress() common.Address { return common.HexToAddress(m.Faucet) }

// Params converts the market section into constructor parameters.
func (m MarketConfig) Params() (lending.MarketParams, error) {
	reserveFactor, err := parseAmount("ReserveFactor", m.ReserveFactor, true)
	if err != nil {
		return lending.MarketParams{}, err
	}
	initialRate, err := parseAmount("InitialExchangeRate", m.InitialExchangeRate, false)
	if err != nil {
		return lending.MarketParams{}, err
	}
	return lending.MarketParams{
		Underlying:          common.HexToAddress(m.Underlying),
		Symbol:              m.Symbol,
		ReserveFactor:       reserveFactor,
		InitialExchangeRate: initialRate,
	}, nil
}

// CollateralFactorValue parses CollateralFactor, defaulting to zero.
func (m MarketConfig) CollateralFactorValue() (*uint256.Int, error) {
	return parseAmount("CollateralFactor", m.CollateralFactor, true)
}

// PriceValue parses Price. It returns nil when no startup price is configured.
func (m MarketConfig) PriceValue() (*uint256.Int, error) {
	if strings.TrimSpace(m.Price) == "" {
		return nil, nil
	}
	return parseAmount("Price", m.Price, false)
}

// InitialSupplyValue parses InitialSupply, defaulting to zero.
func (m MarketConfig) InitialSupplyValue() (*uint256.Int, error) {
	return parseAmount("InitialSupply", m.InitialSupply, true)
}

// InterestModel builds the configured rate curve or the default one.
func (m MarketConfig) InterestModel() (*lending.InterestModel, error) {
	if m.RateModel == nil {
		return lending.DefaultInterestModel(), nil
	}
	defaults := lending.DefaultInterestModelParams()
	params := lending.InterestModelParams{}
	var err error
	if params.BaseRatePerBlock, err = parseOr("RateModel.BaseRatePerBlock", m.RateModel.BaseRatePerBlock, defaults.BaseRatePerBlock); err != nil {
		return nil, err
	}
	if params.MultiplierPerBlock, err = parseOr("RateModel.MultiplierPerBlock", m.RateModel.MultiplierPerBlock, defaults.MultiplierPerBlock); err != nil {
		return nil, err
	}
	if params.JumpMultiplierPerBlock, err = parseOr("RateModel.JumpMultiplierPerBlock", m.RateModel.JumpMultiplierPerBlock, defaults.JumpMultiplierPerBlock); err != nil {
		return nil, err
	}
	if params.Kink, err = parseOr("RateModel.Kink", m.RateModel.Kink, defaults.Kink); err != nil {
		return nil, err
	}
	return lending.NewInterestModel(params)
}

func parseOr(field, raw string, fallback *uint256.Int) (*uint256.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return parseAmount(field, raw, false)
}

func parseAmount(field, raw string, emptyIsZero bool) (*uint256.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	if trimmed == "" {
		if emptyIsZero {
			return new(uint256.Int), nil
		}
		return nil, fmt.Errorf("%s is required", field)
	}
	value, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid decimal %q: %w", field, raw, err)
	}
	return value, nil
}
