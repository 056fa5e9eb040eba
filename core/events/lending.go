package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// TypePriceUpdated is emitted whenever the oracle records a price.
	TypePriceUpdated = "lending.price_updated"
	// TypeMarketListed is emitted when the registry lists a market.
	TypeMarketListed = "lending.market_listed"
	// TypeMarketDelisted is emitted when the registry delists a market.
	TypeMarketDelisted = "lending.market_delisted"
	// TypeCollateralFactorUpdated is emitted when a listed market's factor changes.
	TypeCollateralFactorUpdated = "lending.collateral_factor_updated"
	// TypeMarketEntered is emitted the first time an account enters a market.
	TypeMarketEntered = "lending.market_entered"
	// TypeMarketExited is emitted when an account leaves a market.
	TypeMarketExited = "lending.market_exited"
	// TypeActionPaused is emitted when a per-market action switch flips.
	TypeActionPaused = "lending.action_paused"
	// TypeMint is emitted after shares are issued against deposited underlying.
	TypeMint = "lending.mint"
	// TypeRedeem is emitted after shares are burned for underlying.
	TypeRedeem = "lending.redeem"
	// TypeBorrow is emitted after underlying leaves a market as a loan.
	TypeBorrow = "lending.borrow"
	// TypeRepay is emitted after borrowed underlying returns to a market.
	TypeRepay = "lending.repay"
	// TypeAccrueInterest is emitted when interest accrual is committed by the host hook.
	TypeAccrueInterest = "lending.accrue_interest"
	// TypeReservesReduced is emitted when the admin withdraws reserves.
	TypeReservesReduced = "lending.reserves_reduced"
)

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// PriceUpdated records a new oracle price for a market.
type PriceUpdated struct {
	Market common.Address
	Price  *uint256.Int
}

func (PriceUpdated) EventType() string { return TypePriceUpdated }

func (e PriceUpdated) Event() *Record {
	return &Record{
		Type: TypePriceUpdated,
		Attributes: map[string]string{
			"market": e.Market.Hex(),
			"price":  amountString(e.Price),
		},
	}
}

// MarketListed records a market becoming eligible for user actions.
type MarketListed struct {
	Market           common.Address
	CollateralFactor *uint256.Int
}

func (MarketListed) EventType() string { return TypeMarketListed }

func (e MarketListed) Event() *Record {
	return &Record{
		Type: TypeMarketListed,
		Attributes: map[string]string{
			"market":           e.Market.Hex(),
			"collateralFactor": amountString(e.CollateralFactor),
		},
	}
}

// MarketDelisted records the terminal delisting of a market.
type MarketDelisted struct {
	Market common.Address
}

func (MarketDelisted) EventType() string { return TypeMarketDelisted }

func (e MarketDelisted) Event() *Record {
	return &Record{
		Type:       TypeMarketDelisted,
		Attributes: map[string]string{"market": e.Market.Hex()},
	}
}

// CollateralFactorUpdated records a collateral factor change on a listed market.
type CollateralFactorUpdated struct {
	Market    common.Address
	OldFactor *uint256.Int
	NewFactor *uint256.Int
}

func (CollateralFactorUpdated) EventType() string { return TypeCollateralFactorUpdated }

func (e CollateralFactorUpdated) Event() *Record {
	return &Record{
		Type: TypeCollateralFactorUpdated,
		Attributes: map[string]string{
			"market":    e.Market.Hex(),
			"oldFactor": amountString(e.OldFactor),
			"newFactor": amountString(e.NewFactor),
		},
	}
}

// MarketEntered records an account opting a market in as collateral.
type MarketEntered struct {
	Market  common.Address
	Account common.Address
}

func (MarketEntered) EventType() string { return TypeMarketEntered }

func (e MarketEntered) Event() *Record {
	return &Record{
		Type: TypeMarketEntered,
		Attributes: map[string]string{
			"market":  e.Market.Hex(),
			"account": e.Account.Hex(),
		},
	}
}

// MarketExited records an account removing a market from its collateral set.
type MarketExited struct {
	Market  common.Address
	Account common.Address
}

func (MarketExited) EventType() string { return TypeMarketExited }

func (e MarketExited) Event() *Record {
	return &Record{
		Type: TypeMarketExited,
		Attributes: map[string]string{
			"market":  e.Market.Hex(),
			"account": e.Account.Hex(),
		},
	}
}

// ActionPaused records a pause switch change.
type ActionPaused struct {
	Market common.Address
	Action string
	Paused bool
}

func (ActionPaused) EventType() string { return TypeActionPaused }

func (e ActionPaused) Event() *Record {
	return &Record{
		Type: TypeActionPaused,
		Attributes: map[string]string{
			"market": e.Market.Hex(),
			"action": e.Action,
			"paused": strconv.FormatBool(e.Paused),
		},
	}
}

// Mint records shares issued to a supplier.
type Mint struct {
	Market       common.Address
	Account      common.Address
	Amount       *uint256.Int
	SharesIssued *uint256.Int
}

func (Mint) EventType() string { return TypeMint }

func (e Mint) Event() *Record {
	return &Record{
		Type: TypeMint,
		Attributes: map[string]string{
			"market":       e.Market.Hex(),
			"account":      e.Account.Hex(),
			"amount":       amountString(e.Amount),
			"sharesIssued": amountString(e.SharesIssued),
		},
	}
}

// Redeem records shares burned by a supplier.
type Redeem struct {
	Market         common.Address
	Account        common.Address
	Amount         *uint256.Int
	SharesRedeemed *uint256.Int
}

func (Redeem) EventType() string { return TypeRedeem }

func (e Redeem) Event() *Record {
	return &Record{
		Type: TypeRedeem,
		Attributes: map[string]string{
			"market":         e.Market.Hex(),
			"account":        e.Account.Hex(),
			"amount":         amountString(e.Amount),
			"sharesRedeemed": amountString(e.SharesRedeemed),
		},
	}
}

// Borrow records a loan along with the resulting account and market totals.
type Borrow struct {
	Market              common.Address
	Account             common.Address
	Amount              *uint256.Int
	AccountTotalBorrows *uint256.Int
	MarketTotalBorrows  *uint256.Int
}

func (Borrow) EventType() string { return TypeBorrow }

func (e Borrow) Event() *Record {
	return &Record{
		Type: TypeBorrow,
		Attributes: map[string]string{
			"market":              e.Market.Hex(),
			"account":             e.Account.Hex(),
			"amount":              amountString(e.Amount),
			"accountTotalBorrows": amountString(e.AccountTotalBorrows),
			"marketTotalBorrows":  amountString(e.MarketTotalBorrows),
		},
	}
}

// Repay records debt returned to a market. Payer differs from Account when a
// third party repays on the borrower's behalf.
type Repay struct {
	Market                  common.Address
	Payer                   common.Address
	Account                 common.Address
	AmountRepaid            *uint256.Int
	AccountRemainingBorrows *uint256.Int
	MarketTotalBorrows      *uint256.Int
}

func (Repay) EventType() string { return TypeRepay }

func (e Repay) Event() *Record {
	return &Record{
		Type: TypeRepay,
		Attributes: map[string]string{
			"market":                  e.Market.Hex(),
			"payer":                   e.Payer.Hex(),
			"account":                 e.Account.Hex(),
			"amountRepaid":            amountString(e.AmountRepaid),
			"accountRemainingBorrows": amountString(e.AccountRemainingBorrows),
			"marketTotalBorrows":      amountString(e.MarketTotalBorrows),
		},
	}
}

// AccrueInterest records an interest accrual committed outside a user action.
type AccrueInterest struct {
	Market              common.Address
	InterestAccumulated *uint256.Int
	BorrowIndex         *uint256.Int
	TotalBorrows        *uint256.Int
}

func (AccrueInterest) EventType() string { return TypeAccrueInterest }

func (e AccrueInterest) Event() *Record {
	return &Record{
		Type: TypeAccrueInterest,
		Attributes: map[string]string{
			"market":              e.Market.Hex(),
			"interestAccumulated": amountString(e.InterestAccumulated),
			"borrowIndex":         amountString(e.BorrowIndex),
			"totalBorrows":        amountString(e.TotalBorrows),
		},
	}
}

// ReservesReduced records reserves withdrawn by the admin.
type ReservesReduced struct {
	Market        common.Address
	Recipient     common.Address
	Amount        *uint256.Int
	TotalReserves *uint256.Int
}

func (ReservesReduced) EventType() string { return TypeReservesReduced }

func (e ReservesReduced) Event() *Record {
	return &Record{
		Type: TypeReservesReduced,
		Attributes: map[string]string{
			"market":        e.Market.Hex(),
			"recipient":     e.Recipient.Hex(),
			"amount":        amountString(e.Amount),
			"totalReserves": amountString(e.TotalReserves),
		},
	}
}
