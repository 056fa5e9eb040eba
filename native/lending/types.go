package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Asset is the fungible token collaborator wrapped by a market. Any returned
// error aborts the enclosing market operation before state is committed.
type Asset interface {
	// TransferFrom moves amount from one account to another using the
	// spender's allowance.
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
	// Transfer moves amount out of the sender's own balance.
	Transfer(from, to common.Address, amount *uint256.Int) error
	// BalanceOf reports the balance held by account.
	BalanceOf(account common.Address) *uint256.Int
}

// PriceSource resolves the price of one unit of a market's underlying asset as
// a 1e18 mantissa. Implementations must fail rather than report zero for a
// market that has never been priced.
type PriceSource interface {
	GetPrice(market common.Address) (*uint256.Int, error)
}

// MarketParams are the initialisation inputs of a market. They are fixed for
// the market's lifetime.
type MarketParams struct {
	// Underlying identifies the wrapped asset.
	Underlying common.Address
	// Symbol is a display label (e.g. "cQOD").
	Symbol string
	// ReserveFactor is the share of accrued interest routed to reserves.
	ReserveFactor *uint256.Int
	// InitialExchangeRate is the underlying-per-share rate used while no
	// shares exist, scaled by 1e18.
	InitialExchangeRate *uint256.Int
}

// MarketState captures the accounting balances of a single market.
type MarketState struct {
	Underlying          common.Address
	Symbol              string
	TotalShares         *uint256.Int
	Cash                *uint256.Int
	TotalBorrows        *uint256.Int
	TotalReserves       *uint256.Int
	ReserveFactor       *uint256.Int
	BorrowIndex         *uint256.Int
	InitialExchangeRate *uint256.Int
	// AccrualBlock is the block height interest was last accrued at.
	AccrualBlock uint64
}

// Clone returns a deep copy of the market state.
func (s *MarketState) Clone() *MarketState {
	if s == nil {
		return nil
	}
	return &MarketState{
		Underlying:          s.Underlying,
		Symbol:              s.Symbol,
		TotalShares:         clone(s.TotalShares),
		Cash:                clone(s.Cash),
		TotalBorrows:        clone(s.TotalBorrows),
		TotalReserves:       clone(s.TotalReserves),
		ReserveFactor:       clone(s.ReserveFactor),
		BorrowIndex:         clone(s.BorrowIndex),
		InitialExchangeRate: clone(s.InitialExchangeRate),
		AccrualBlock:        s.AccrualBlock,
	}
}

// AccountPosition stores an account's holdings in one market.
type AccountPosition struct {
	Shares *uint256.Int
	// BorrowPrincipal is the debt recorded at the last borrow or repay.
	BorrowPrincipal *uint256.Int
	// BorrowIndexSnapshot is the market borrow index at the last borrow or repay.
	BorrowIndexSnapshot *uint256.Int
}

// Clone returns a deep copy of the position.
func (p *AccountPosition) Clone() *AccountPosition {
	if p == nil {
		return nil
	}
	return &AccountPosition{
		Shares:              clone(p.Shares),
		BorrowPrincipal:     clone(p.BorrowPrincipal),
		BorrowIndexSnapshot: clone(p.BorrowIndexSnapshot),
	}
}

func newAccountPosition() *AccountPosition {
	return &AccountPosition{
		Shares:              zero(),
		BorrowPrincipal:     zero(),
		BorrowIndexSnapshot: zero(),
	}
}

// AccountSnapshot is the read-only composite consumed by liquidity checks.
type AccountSnapshot struct {
	Shares        *uint256.Int
	BorrowBalance *uint256.Int
	ExchangeRate  *uint256.Int
}

// LiquidityDetail splits an account's liquidity into its two aggregates, both
// denominated in the oracle's price unit.
type LiquidityDetail struct {
	CollateralValue *uint256.Int
	DebtValue       *uint256.Int
}

// Shortfall reports whether debt exceeds discounted collateral.
func (d LiquidityDetail) Shortfall() bool {
	return d.DebtValue.Gt(d.CollateralValue)
}
