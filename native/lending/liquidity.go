package lending

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func sortAddresses(list []common.Address) {
	sort.Slice(list, func(i, j int) bool {
		return bytes.Compare(list[i].Bytes(), list[j].Bytes()) < 0
	})
}

// accountMarketsLocked returns the union of entered and borrowed markets in a
// stable order: entered markets first, then borrow-only markets, then extra.
func (r *Registry) accountMarketsLocked(account common.Address, extra common.Address) []common.Address {
	var out []common.Address
	if m := r.membershipOf(account, false); m != nil {
		out = append(out, m.entered...)
		for _, id := range m.borrowed {
			if !containsAddress(out, id) {
				out = append(out, id)
			}
		}
	}
	if extra != (common.Address{}) && !containsAddress(out, extra) {
		out = append(out, extra)
	}
	return out
}

// hypotheticalLiquidityLocked values the account's position as if it redeemed
// redeemShares from, or borrowed borrowAmount in, the modify market.
//
// Collateral is counted only for entered markets: shares are converted to
// underlying at the exchange rate, priced, then discounted by the collateral
// factor. Debt is priced in every market the account borrows from.
func (r *Registry) hypotheticalLiquidityLocked(account, modify common.Address, redeemShares, borrowAmount *uint256.Int) (LiquidityDetail, error) {
	collateral := zero()
	debt := zero()

	var entered []common.Address
	if m := r.membershipOf(account, false); m != nil {
		entered = m.entered
	}

	var extra common.Address
	if borrowAmount != nil && !borrowAmount.IsZero() {
		extra = modify
	}
	for _, id := range r.accountMarketsLocked(account, extra) {
		rec, ok := r.markets[id]
		if !ok {
			continue
		}
		price, err := r.price(id)
		if err != nil {
			return LiquidityDetail{}, err
		}
		snap, err := rec.market.accountSnapshotLocked(account)
		if err != nil {
			return LiquidityDetail{}, err
		}

		isCollateral := containsAddress(entered, id)
		if isCollateral {
			value, err := collateralValue(snap.Shares, snap.ExchangeRate, price, rec.collateralFactor)
			if err != nil {
				return LiquidityDetail{}, err
			}
			if collateral, err = add(collateral, value); err != nil {
				return LiquidityDetail{}, err
			}
		}

		owed, err := mulExp(snap.BorrowBalance, price)
		if err != nil {
			return LiquidityDetail{}, err
		}
		if debt, err = add(debt, owed); err != nil {
			return LiquidityDetail{}, err
		}

		if id != modify {
			continue
		}
		if isCollateral && redeemShares != nil && !redeemShares.IsZero() {
			effect, err := collateralValue(redeemShares, snap.ExchangeRate, price, rec.collateralFactor)
			if err != nil {
				return LiquidityDetail{}, err
			}
			if debt, err = add(debt, effect); err != nil {
				return LiquidityDetail{}, err
			}
		}
		if borrowAmount != nil && !borrowAmount.IsZero() {
			effect, err := mulExp(borrowAmount, price)
			if err != nil {
				return LiquidityDetail{}, err
			}
			if debt, err = add(debt, effect); err != nil {
				return LiquidityDetail{}, err
			}
		}
	}
	return LiquidityDetail{CollateralValue: collateral, DebtValue: debt}, nil
}

func collateralValue(shares, rate, price, factor *uint256.Int) (*uint256.Int, error) {
	underlying, err := mulExp(shares, rate)
	if err != nil {
		return nil, err
	}
	value, err := mulExp(underlying, price)
	if err != nil {
		return nil, err
	}
	return mulExp(value, factor)
}

// AccountLiquidity returns discounted collateral minus debt across every market
// the account entered or borrows from. A negative result is a shortfall. Any
// market without a price fails the whole computation.
func (r *Registry) AccountLiquidity(account common.Address) (*big.Int, error) {
	detail, err := r.AccountLiquidityDetail(account)
	if err != nil {
		return nil, err
	}
	return signedDifference(detail.CollateralValue, detail.DebtValue), nil
}

// AccountLiquidityDetail returns the collateral and debt aggregates behind
// AccountLiquidity.
func (r *Registry) AccountLiquidityDetail(account common.Address) (LiquidityDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hypotheticalLiquidityLocked(account, common.Address{}, zero(), zero())
}

// HypotheticalLiquidity returns the liquidity the account would have after
// redeeming redeemShares from, or borrowing borrowAmount in, market.
func (r *Registry) HypotheticalLiquidity(account, market common.Address, redeemShares, borrowAmount *uint256.Int) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.record(market); err != nil {
		return nil, err
	}
	detail, err := r.hypotheticalLiquidityLocked(account, market, clone(redeemShares), clone(borrowAmount))
	if err != nil {
		return nil, err
	}
	return signedDifference(detail.CollateralValue, detail.DebtValue), nil
}
