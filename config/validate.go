package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"lendingmarket/native/lending"
)

// Validate checks addresses, numeric fields and the protocol ceilings.
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.Admin) {
		return fmt.Errorf("Admin: invalid address %q", c.Admin)
	}
	if !common.IsHexAddress(c.OracleAuthority) {
		return fmt.Errorf("OracleAuthority: invalid address %q", c.OracleAuthority)
	}
	seen := make(map[common.Address]struct{}, len(c.Markets))
	for i, m := range c.Markets {
		if err := m.validate(); err != nil {
			return fmt.Errorf("Markets[%d]: %w", i, err)
		}
		id := m.MarketID()
		if _, dup := seen[id]; dup {
			return fmt.Errorf("Markets[%d]: duplicate ID %s", i, id.Hex())
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (m MarketConfig) validate() error {
	if !common.IsHexAddress(m.ID) || common.HexToAddress(m.ID) == (common.Address{}) {
		return fmt.Errorf("ID: invalid market address %q", m.ID)
	}
	if m.Underlying != "" && !common.IsHexAddress(m.Underlying) {
		return fmt.Errorf("Underlying: invalid address %q", m.Underlying)
	}
	if strings.TrimSpace(m.Symbol) == "" {
		return fmt.Errorf("Symbol is required")
	}
	params, err := m.Params()
	if err != nil {
		return err
	}
	if params.ReserveFactor.Gt(lending.ExpScale()) {
		return fmt.Errorf("ReserveFactor: %s exceeds 1e18", params.ReserveFactor.Dec())
	}
	if params.InitialExchangeRate.IsZero() {
		return fmt.Errorf("InitialExchangeRate must be positive")
	}
	factor, err := m.CollateralFactorValue()
	if err != nil {
		return err
	}
	if factor.Gt(lending.MaxCollateralFactor()) {
		return fmt.Errorf("CollateralFactor: %s exceeds %s", factor.Dec(), lending.MaxCollateralFactor().Dec())
	}
	if _, err := m.PriceValue(); err != nil {
		return err
	}
	supply, err := m.InitialSupplyValue()
	if err != nil {
		return err
	}
	if !supply.IsZero() && !common.IsHexAddress(m.Faucet) {
		return fmt.Errorf("Faucet: address required when InitialSupply is set")
	}
	if _, err := m.InterestModel(); err != nil {
		return err
	}
	return nil
}
