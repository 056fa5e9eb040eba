package lending

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	lendingerrors "lendingmarket/core/errors"
	"lendingmarket/core/events"
	nativecommon "lendingmarket/native/common"
)

// Market is a single-asset lending pool. Suppliers deposit the underlying asset
// for interest-bearing shares; borrowers draw the underlying against collateral
// they hold in markets of the same registry.
//
// Every mutating call runs against a working copy of the market that is only
// committed once all checks and asset transfers succeed.
type Market struct {
	id       common.Address
	registry *Registry
	asset    Asset
	model    *InterestModel

	state     *MarketState
	positions map[common.Address]*AccountPosition

	pending *marketTx
}

type marketTx struct {
	state     *MarketState
	positions map[common.Address]*AccountPosition
	committed map[common.Address]*AccountPosition
}

func (tx *marketTx) position(account common.Address) *AccountPosition {
	if pos, ok := tx.positions[account]; ok {
		return pos
	}
	pos := tx.committed[account].Clone()
	if pos == nil {
		pos = newAccountPosition()
	}
	tx.positions[account] = pos
	return pos
}

// NewMarket validates params, initialises the market at the registry's current
// block height and registers it. The market still has to be listed by the
// registry admin before it accepts supply or borrowing.
func NewMarket(id common.Address, params MarketParams, registry *Registry, asset Asset, model *InterestModel) (*Market, error) {
	if registry == nil {
		return nil, fmt.Errorf("lending: registry must not be nil")
	}
	if asset == nil {
		return nil, fmt.Errorf("lending: asset must not be nil")
	}
	if model == nil {
		return nil, lendingerrors.ErrInvalidRateModel
	}
	initialRate := clone(params.InitialExchangeRate)
	if initialRate.IsZero() {
		return nil, fmt.Errorf("lending: initial exchange rate must be positive")
	}
	reserveFactor := clone(params.ReserveFactor)
	if reserveFactor.Gt(expScale) {
		return nil, lendingerrors.ErrReserveFactorTooHigh
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	m := &Market{
		id:       id,
		registry: registry,
		asset:    asset,
		model:    model,
		state: &MarketState{
			Underlying:          params.Underlying,
			Symbol:              params.Symbol,
			TotalShares:         zero(),
			Cash:                zero(),
			TotalBorrows:        zero(),
			TotalReserves:       zero(),
			ReserveFactor:       reserveFactor,
			BorrowIndex:         clone(expScale),
			InitialExchangeRate: initialRate,
			AccrualBlock:        registry.blockHeight,
		},
		positions: make(map[common.Address]*AccountPosition),
	}
	if err := registry.register(m); err != nil {
		return nil, err
	}
	registry.logger.Info("market registered", "market", id.Hex(), "symbol", params.Symbol)
	return m, nil
}

// ID returns the market identifier.
func (m *Market) ID() common.Address { return m.id }

// Registry returns the registry the market belongs to.
func (m *Market) Registry() *Registry { return m.registry }

// InterestModel returns the market's rate curve.
func (m *Market) InterestModel() *InterestModel { return m.model }

func (m *Market) label() string {
	if m.state != nil && m.state.Symbol != "" {
		return m.state.Symbol
	}
	return m.id.Hex()
}

func (m *Market) scope() string { return m.id.Hex() }

// begin opens a working copy accrued up to the registry clock.
func (m *Market) begin() (*marketTx, *accrual, error) {
	tx := &marketTx{
		state:     m.state.Clone(),
		positions: make(map[common.Address]*AccountPosition),
		committed: m.positions,
	}
	acc, err := m.accrue(tx.state, m.registry.blockHeight)
	if err != nil {
		return nil, nil, err
	}
	m.pending = tx
	return tx, acc, nil
}

func (m *Market) commit(tx *marketTx) {
	m.state = tx.state
	for account, pos := range tx.positions {
		m.positions[account] = pos
	}
	m.pending = nil
}

func (m *Market) rollback() { m.pending = nil }

func (m *Market) currentState() *MarketState {
	if m.pending != nil {
		return m.pending.state
	}
	return m.state
}

func (m *Market) currentPosition(account common.Address) *AccountPosition {
	if m.pending != nil {
		if pos, ok := m.pending.positions[account]; ok {
			return pos
		}
	}
	return m.positions[account]
}

type accrual struct {
	interest *uint256.Int
	elapsed  uint64
}

// accrue brings state forward to now. It mutates state in place; callers pass
// a working copy.
func (m *Market) accrue(state *MarketState, now uint64) (*accrual, error) {
	if now < state.AccrualBlock {
		return nil, fmt.Errorf("%w: accrual block %d, current %d", lendingerrors.ErrClockRegressed, state.AccrualBlock, now)
	}
	elapsed := now - state.AccrualBlock
	if elapsed == 0 {
		return &accrual{interest: zero()}, nil
	}
	rate, err := m.model.BorrowRateFor(state.Cash, state.TotalBorrows, state.TotalReserves)
	if err != nil {
		return nil, err
	}
	if rate.Gt(maxBorrowRatePerBlock) {
		return nil, fmt.Errorf("%w: %s per block", lendingerrors.ErrBorrowRateTooHigh, rate.Dec())
	}
	factor, err := mul(rate, uint256.NewInt(elapsed))
	if err != nil {
		return nil, err
	}
	interest, err := mulExp(state.TotalBorrows, factor)
	if err != nil {
		return nil, err
	}
	totalBorrows, err := add(state.TotalBorrows, interest)
	if err != nil {
		return nil, err
	}
	reserveCut, err := mulExp(interest, state.ReserveFactor)
	if err != nil {
		return nil, err
	}
	totalReserves, err := add(state.TotalReserves, reserveCut)
	if err != nil {
		return nil, err
	}
	indexDelta, err := mulExp(state.BorrowIndex, factor)
	if err != nil {
		return nil, err
	}
	borrowIndex, err := add(state.BorrowIndex, indexDelta)
	if err != nil {
		return nil, err
	}
	state.TotalBorrows = totalBorrows
	state.TotalReserves = totalReserves
	state.BorrowIndex = borrowIndex
	state.AccrualBlock = now
	return &accrual{interest: interest, elapsed: elapsed}, nil
}

// exchangeRate returns (cash + borrows - reserves) / shares, or the initial
// rate while no shares exist.
func exchangeRate(state *MarketState) (*uint256.Int, error) {
	if state.TotalShares == nil || state.TotalShares.IsZero() {
		return clone(state.InitialExchangeRate), nil
	}
	gross, err := add(clone(state.Cash), clone(state.TotalBorrows))
	if err != nil {
		return nil, err
	}
	net, err := sub(gross, clone(state.TotalReserves))
	if err != nil {
		return nil, err
	}
	return mulDiv(net, expScale, state.TotalShares)
}

// borrowBalance rebases the stored principal to the state's borrow index,
// rounding up.
func borrowBalance(state *MarketState, pos *AccountPosition) (*uint256.Int, error) {
	if pos == nil || pos.BorrowPrincipal == nil || pos.BorrowPrincipal.IsZero() {
		return zero(), nil
	}
	if pos.BorrowIndexSnapshot == nil || pos.BorrowIndexSnapshot.IsZero() {
		return clone(pos.BorrowPrincipal), nil
	}
	return mulDivUp(pos.BorrowPrincipal, state.BorrowIndex, pos.BorrowIndexSnapshot)
}

func (m *Market) emit(event events.Event) {
	m.registry.emitter.Emit(event)
}

// Mint deposits amount of the underlying from minter and credits shares at the
// current exchange rate. The market must be listed and minting unpaused.
func (m *Market) Mint(minter common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, lendingerrors.ErrZeroAmount
	}
	r := m.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	shares, err := m.mintLocked(minter, amount)
	r.observe(m, "mint", err)
	return shares, err
}

func (m *Market) mintLocked(minter common.Address, amount *uint256.Int) (*uint256.Int, error) {
	tx, _, err := m.begin()
	if err != nil {
		return nil, err
	}
	defer m.rollback()

	if err := nativecommon.Guard(m.registry.pauses, m.scope(), nativecommon.ActionMint); err != nil {
		return nil, err
	}
	if err := m.registry.mintAllowedLocked(m.id); err != nil {
		return nil, fmt.Errorf("%w: %w", lendingerrors.ErrCanNotMintTokens, err)
	}
	rate, err := exchangeRate(tx.state)
	if err != nil {
		return nil, err
	}
	shares, err := divExp(amount, rate)
	if err != nil {
		return nil, err
	}
	if shares.IsZero() {
		return nil, fmt.Errorf("%w: deposit below one share", lendingerrors.ErrZeroAmount)
	}
	totalShares, err := add(tx.state.TotalShares, shares)
	if err != nil {
		return nil, err
	}
	cash, err := add(tx.state.Cash, amount)
	if err != nil {
		return nil, err
	}
	pos := tx.position(minter)
	held, err := add(pos.Shares, shares)
	if err != nil {
		return nil, err
	}

	if err := m.asset.TransferFrom(m.id, minter, m.id, amount); err != nil {
		return nil, fmt.Errorf("lending: transfer in: %w", err)
	}

	tx.state.TotalShares = totalShares
	tx.state.Cash = cash
	pos.Shares = held
	m.commit(tx)
	m.emit(events.Mint{Market: m.id, Account: minter, Amount: clone(amount), SharesIssued: clone(shares)})
	return shares, nil
}

// Redeem burns shares and pays out the underlying they are worth.
func (m *Market) Redeem(redeemer common.Address, shares *uint256.Int) (*uint256.Int, error) {
	if shares == nil || shares.IsZero() {
		return nil, lendingerrors.ErrZeroAmount
	}
	r := m.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	amount, err := m.redeemLocked(redeemer, shares, nil)
	r.observe(m, "redeem", err)
	return amount, err
}

// RedeemUnderlying burns however many shares are needed to pay out amount of
// the underlying, rounding the burn up. It returns the shares burned.
func (m *Market) RedeemUnderlying(redeemer common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, lendingerrors.ErrZeroAmount
	}
	r := m.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	var burned *uint256.Int
	_, err := m.redeemLocked(redeemer, nil, func(rate *uint256.Int) (*uint256.Int, *uint256.Int, error) {
		shares, err := mulDivUp(amount, expScale, rate)
		if err != nil {
			return nil, nil, err
		}
		burned = shares
		return shares, clone(amount), nil
	})
	r.observe(m, "redeem", err)
	if err != nil {
		return nil, err
	}
	return burned, nil
}

type redeemSizer func(rate *uint256.Int) (shares, amount *uint256.Int, err error)

func (m *Market) redeemLocked(redeemer common.Address, shares *uint256.Int, sizer redeemSizer) (*uint256.Int, error) {
	tx, _, err := m.begin()
	if err != nil {
		return nil, err
	}
	defer m.rollback()

	rate, err := exchangeRate(tx.state)
	if err != nil {
		return nil, err
	}
	var amount *uint256.Int
	if sizer != nil {
		shares, amount, err = sizer(rate)
	} else {
		amount, err = mulExp(shares, rate)
	}
	if err != nil {
		return nil, err
	}

	pos := tx.position(redeemer)
	if pos.Shares.Lt(shares) {
		return nil, fmt.Errorf("%w: %w: holding %s, redeeming %s", lendingerrors.ErrCanNotRedeemTokens, lendingerrors.ErrInsufficientShares, pos.Shares.Dec(), shares.Dec())
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: redemption below one unit", lendingerrors.ErrZeroAmount)
	}
	if err := m.registry.redeemAllowedLocked(m.id, redeemer, shares); err != nil {
		return nil, fmt.Errorf("%w: %w", lendingerrors.ErrCanNotRedeemTokens, err)
	}
	if tx.state.Cash.Lt(amount) {
		return nil, lendingerrors.ErrInsufficientCash
	}

	totalShares, err := sub(tx.state.TotalShares, shares)
	if err != nil {
		return nil, err
	}
	cash, err := sub(tx.state.Cash, amount)
	if err != nil {
		return nil, err
	}
	held, err := sub(pos.Shares, shares)
	if err != nil {
		return nil, err
	}

	if err := m.asset.Transfer(m.id, redeemer, amount); err != nil {
		return nil, fmt.Errorf("lending: transfer out: %w", err)
	}

	tx.state.TotalShares = totalShares
	tx.state.Cash = cash
	pos.Shares = held
	m.commit(tx)
	m.emit(events.Redeem{Market: m.id, Account: redeemer, Amount: clone(amount), SharesRedeemed: clone(shares)})
	return amount, nil
}

// Borrow transfers amount of the underlying to borrower against the
// collateral it holds across the registry.
func (m *Market) Borrow(borrower common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return lendingerrors.ErrZeroAmount
	}
	r := m.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	err := m.borrowLocked(borrower, amount)
	r.observe(m, "borrow", err)
	return err
}

func (m *Market) borrowLocked(borrower common.Address, amount *uint256.Int) error {
	tx, _, err := m.begin()
	if err != nil {
		return err
	}
	defer m.rollback()

	if err := nativecommon.Guard(m.registry.pauses, m.scope(), nativecommon.ActionBorrow); err != nil {
		return err
	}
	if err := m.registry.borrowAllowedLocked(m.id, borrower, amount); err != nil {
		return err
	}
	if tx.state.Cash.Lt(amount) {
		return lendingerrors.ErrInsufficientCash
	}

	pos := tx.position(borrower)
	owed, err := borrowBalance(tx.state, pos)
	if err != nil {
		return err
	}
	accountBorrows, err := add(owed, amount)
	if err != nil {
		return err
	}
	totalBorrows, err := add(tx.state.TotalBorrows, amount)
	if err != nil {
		return err
	}
	cash, err := sub(tx.state.Cash, amount)
	if err != nil {
		return err
	}

	if err := m.asset.Transfer(m.id, borrower, amount); err != nil {
		return fmt.Errorf("lending: transfer out: %w", err)
	}

	pos.BorrowPrincipal = accountBorrows
	pos.BorrowIndexSnapshot = clone(tx.state.BorrowIndex)
	tx.state.TotalBorrows = totalBorrows
	tx.state.Cash = cash
	m.commit(tx)
	m.registry.recordBorrowLocked(m.id, borrower)
	m.emit(events.Borrow{
		Market:              m.id,
		Account:             borrower,
		Amount:              clone(amount),
		AccountTotalBorrows: clone(accountBorrows),
		MarketTotalBorrows:  clone(totalBorrows),
	})
	return nil
}

// RepayBorrow repays the caller's own debt. See RepayBorrowBehalf.
func (m *Market) RepayBorrow(payer common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return m.RepayBorrowBehalf(payer, payer, amount)
}

// RepayBorrowBehalf pulls up to amount of the underlying from payer and applies
// it to borrower's debt. Amounts above the outstanding balance are capped and
// the excess is never transferred. It returns the amount actually repaid.
func (m *Market) RepayBorrowBehalf(payer, borrower common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, lendingerrors.ErrZeroAmount
	}
	r := m.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	repaid, err := m.repayLocked(payer, borrower, amount)
	r.observe(m, "repay", err)
	return repaid, err
}

func (m *Market) repayLocked(payer, borrower common.Address, amount *uint256.Int) (*uint256.Int, error) {
	tx, _, err := m.begin()
	if err != nil {
		return nil, err
	}
	defer m.rollback()

	if err := m.registry.repayAllowedLocked(m.id); err != nil {
		return nil, err
	}
	pos := tx.position(borrower)
	owed, err := borrowBalance(tx.state, pos)
	if err != nil {
		return nil, err
	}
	if owed.IsZero() {
		return nil, lendingerrors.ErrNoDebtToRepay
	}
	repaid := minUint(amount, owed)
	remaining, err := sub(owed, repaid)
	if err != nil {
		return nil, err
	}
	totalBorrows := new(uint256.Int).Sub(tx.state.TotalBorrows, minUint(repaid, tx.state.TotalBorrows))
	cash, err := add(tx.state.Cash, repaid)
	if err != nil {
		return nil, err
	}

	if err := m.asset.TransferFrom(m.id, payer, m.id, repaid); err != nil {
		return nil, fmt.Errorf("lending: transfer in: %w", err)
	}

	pos.BorrowPrincipal = remaining
	pos.BorrowIndexSnapshot = clone(tx.state.BorrowIndex)
	tx.state.TotalBorrows = totalBorrows
	tx.state.Cash = cash
	m.commit(tx)
	if remaining.IsZero() {
		m.registry.clearBorrowLocked(m.id, borrower)
	}
	m.emit(events.Repay{
		Market:                  m.id,
		Payer:                   payer,
		Account:                 borrower,
		AmountRepaid:            clone(repaid),
		AccountRemainingBorrows: clone(remaining),
		MarketTotalBorrows:      clone(totalBorrows),
	})
	return repaid, nil
}

// AccrueInterest brings the market forward to the registry clock and commits
// the result.
func (m *Market) AccrueInterest() error {
	r := m.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	err := m.accrueLocked()
	r.observe(m, "accrue", err)
	return err
}

func (m *Market) accrueLocked() error {
	tx, acc, err := m.begin()
	if err != nil {
		return err
	}
	m.commit(tx)
	if acc.elapsed == 0 {
		return nil
	}
	m.emit(events.AccrueInterest{
		Market:              m.id,
		InterestAccumulated: clone(acc.interest),
		BorrowIndex:         clone(tx.state.BorrowIndex),
		TotalBorrows:        clone(tx.state.TotalBorrows),
	})
	return nil
}

// ReduceReserves sends amount of the accumulated reserves to recipient. Only
// the registry admin may call it.
func (m *Market) ReduceReserves(caller, recipient common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return lendingerrors.ErrZeroAmount
	}
	r := m.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	err := m.reduceReservesLocked(caller, recipient, amount)
	r.observe(m, "reduce_reserves", err)
	return err
}

func (m *Market) reduceReservesLocked(caller, recipient common.Address, amount *uint256.Int) error {
	if err := m.registry.authorize(caller); err != nil {
		return err
	}
	tx, _, err := m.begin()
	if err != nil {
		return err
	}
	defer m.rollback()

	if tx.state.TotalReserves.Lt(amount) {
		return lendingerrors.ErrInsufficientReserves
	}
	if tx.state.Cash.Lt(amount) {
		return lendingerrors.ErrInsufficientCash
	}
	reserves := new(uint256.Int).Sub(tx.state.TotalReserves, amount)
	cash := new(uint256.Int).Sub(tx.state.Cash, amount)

	if err := m.asset.Transfer(m.id, recipient, amount); err != nil {
		return fmt.Errorf("lending: transfer out: %w", err)
	}

	tx.state.TotalReserves = reserves
	tx.state.Cash = cash
	m.commit(tx)
	m.emit(events.ReservesReduced{Market: m.id, Recipient: recipient, Amount: clone(amount), TotalReserves: clone(reserves)})
	return nil
}

// ExchangeRate returns the stored underlying-per-share rate scaled by 1e18.
func (m *Market) ExchangeRate() (*uint256.Int, error) {
	m.registry.mu.Lock()
	defer m.registry.mu.Unlock()
	return exchangeRate(m.currentState())
}

// ExchangeRateCurrent returns the rate the market would report after accruing
// to the registry clock, without committing the accrual.
func (m *Market) ExchangeRateCurrent() (*uint256.Int, error) {
	m.registry.mu.Lock()
	defer m.registry.mu.Unlock()
	state := m.currentState().Clone()
	if _, err := m.accrue(state, m.registry.blockHeight); err != nil {
		return nil, err
	}
	return exchangeRate(state)
}

// AccountSnapshot returns the account's shares, stored borrow balance and the
// exchange rate, all as of the last accrual.
func (m *Market) AccountSnapshot(account common.Address) (AccountSnapshot, error) {
	m.registry.mu.Lock()
	defer m.registry.mu.Unlock()
	return m.accountSnapshotLocked(account)
}

func (m *Market) accountSnapshotLocked(account common.Address) (AccountSnapshot, error) {
	state := m.currentState()
	pos := m.currentPosition(account)
	owed, err := borrowBalance(state, pos)
	if err != nil {
		return AccountSnapshot{}, err
	}
	rate, err := exchangeRate(state)
	if err != nil {
		return AccountSnapshot{}, err
	}
	shares := zero()
	if pos != nil {
		shares = clone(pos.Shares)
	}
	return AccountSnapshot{Shares: shares, BorrowBalance: owed, ExchangeRate: rate}, nil
}

// BalanceOf returns the shares held by account.
func (m *Market) BalanceOf(account common.Address) *uint256.Int {
	m.registry.mu.Lock()
	defer m.registry.mu.Unlock()
	pos := m.currentPosition(account)
	if pos == nil {
		return zero()
	}
	return clone(pos.Shares)
}

// BalanceOfUnderlying values the account's shares at the stored exchange rate.
func (m *Market) BalanceOfUnderlying(account common.Address) (*uint256.Int, error) {
	snap, err := m.AccountSnapshot(account)
	if err != nil {
		return nil, err
	}
	return mulExp(snap.Shares, snap.ExchangeRate)
}

// BorrowBalanceStored returns the account's debt as of the last accrual.
func (m *Market) BorrowBalanceStored(account common.Address) (*uint256.Int, error) {
	m.registry.mu.Lock()
	defer m.registry.mu.Unlock()
	return borrowBalance(m.currentState(), m.currentPosition(account))
}

// BorrowBalanceCurrent returns the account's debt after accruing to the
// registry clock, without committing the accrual.
func (m *Market) BorrowBalanceCurrent(account common.Address) (*uint256.Int, error) {
	m.registry.mu.Lock()
	defer m.registry.mu.Unlock()
	state := m.currentState().Clone()
	if _, err := m.accrue(state, m.registry.blockHeight); err != nil {
		return nil, err
	}
	return borrowBalance(state, m.currentPosition(account))
}

// State returns a copy of the market balances.
func (m *Market) State() *MarketState {
	m.registry.mu.Lock()
	defer m.registry.mu.Unlock()
	return m.currentState().Clone()
}

// Position returns a copy of the account's stored position, or nil when the
// account never interacted with the market.
func (m *Market) Position(account common.Address) *AccountPosition {
	m.registry.mu.Lock()
	defer m.registry.mu.Unlock()
	return m.currentPosition(account).Clone()
}

// BorrowRatePerBlock evaluates the rate model on the stored balances.
func (m *Market) BorrowRatePerBlock() (*uint256.Int, error) {
	m.registry.mu.Lock()
	defer m.registry.mu.Unlock()
	s := m.currentState()
	return m.model.BorrowRateFor(s.Cash, s.TotalBorrows, s.TotalReserves)
}

// SupplyRatePerBlock evaluates the supplier rate on the stored balances.
func (m *Market) SupplyRatePerBlock() (*uint256.Int, error) {
	m.registry.mu.Lock()
	defer m.registry.mu.Unlock()
	s := m.currentState()
	return m.model.SupplyRateFor(s.Cash, s.TotalBorrows, s.TotalReserves, s.ReserveFactor)
}

// Listed reports whether the market currently accepts mints and borrows.
func (m *Market) Listed() bool {
	return m.registry.IsListed(m.id)
}

// CollateralFactor returns the factor assigned at listing.
func (m *Market) CollateralFactor() *uint256.Int {
	return m.registry.CollateralFactor(m.id)
}

func (m *Market) publishGaugesLocked() {
	state := m.currentState()
	rate, err := exchangeRate(state)
	if err != nil {
		rate = zero()
	}
	m.registry.metrics.SetMarketState(m.label(), toFloat(state.Cash), toFloat(state.TotalBorrows), toFloat(state.TotalReserves), toFloat(rate)/1e18)
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
