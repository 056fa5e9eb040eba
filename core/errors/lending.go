package errors

import stderrors "errors"

// Authorization and listing failures.
var (
	ErrNotAuthorized           = stderrors.New("lending: not authorized")
	ErrMarketNotListed         = stderrors.New("lending: market not listed")
	ErrMarketAlreadyListed     = stderrors.New("lending: market already listed")
	ErrMarketExists            = stderrors.New("lending: market already registered")
	ErrUnknownMarket           = stderrors.New("lending: unknown market")
	ErrInvalidMarket           = stderrors.New("lending: invalid market identifier")
	ErrCollateralFactorTooHigh = stderrors.New("lending: collateral factor too high")
	ErrReserveFactorTooHigh    = stderrors.New("lending: reserve factor too high")
	ErrInvalidRateModel        = stderrors.New("lending: invalid interest rate model")
	ErrActionPaused            = stderrors.New("lending: action paused")
)

// Oracle failures.
var (
	ErrPriceNotSet = stderrors.New("oracle: price not set")
)

// Solvency and liquidity failures.
var (
	ErrBorrowNotAllowed     = stderrors.New("lending: borrow not allowed")
	ErrRedeemNotAllowed     = stderrors.New("lending: redeem not allowed")
	ErrExitNotAllowed       = stderrors.New("lending: exit market not allowed")
	ErrInsufficientCash     = stderrors.New("lending: insufficient underlying cash")
	ErrInsufficientShares   = stderrors.New("lending: insufficient shares")
	ErrInsufficientReserves = stderrors.New("lending: insufficient reserves")
	ErrNoDebtToRepay        = stderrors.New("lending: no outstanding debt to repay")
)

// Composite denials surfaced to mint and redeem callers. They wrap the underlying
// cause so both match under errors.Is.
var (
	ErrCanNotMintTokens   = stderrors.New("lending: can not mint tokens")
	ErrCanNotRedeemTokens = stderrors.New("lending: can not redeem tokens")
)

// Arithmetic and accrual failures.
var (
	ErrZeroAmount        = stderrors.New("lending: amount must be positive")
	ErrMathOverflow      = stderrors.New("lending: arithmetic overflow")
	ErrMathUnderflow     = stderrors.New("lending: arithmetic underflow")
	ErrBorrowRateTooHigh = stderrors.New("lending: borrow rate too high")
	ErrClockRegressed    = stderrors.New("lending: block height moved backwards")
)

// Token ledger failures.
var (
	ErrInsufficientBalance   = stderrors.New("token: insufficient balance")
	ErrInsufficientAllowance = stderrors.New("token: insufficient allowance")
)
