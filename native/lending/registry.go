package lending

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	lendingerrors "lendingmarket/core/errors"
	"lendingmarket/core/events"
	nativecommon "lendingmarket/native/common"
	"lendingmarket/observability/metrics"
)

type marketStatus uint8

const (
	statusRegistered marketStatus = iota
	statusListed
	statusDelisted
)

func (s marketStatus) String() string {
	switch s {
	case statusListed:
		return "listed"
	case statusDelisted:
		return "delisted"
	default:
		return "unlisted"
	}
}

type marketRecord struct {
	market           *Market
	status           marketStatus
	collateralFactor *uint256.Int
}

// membership is the ordered set of markets an account participates in.
type membership struct {
	entered  []common.Address
	borrowed []common.Address
}

func containsAddress(list []common.Address, target common.Address) bool {
	for _, addr := range list {
		if addr == target {
			return true
		}
	}
	return false
}

func removeAddress(list []common.Address, target common.Address) []common.Address {
	for i, addr := range list {
		if addr == target {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// Registry coordinates the markets of one lending deployment. It lists and
// delists markets, tracks collateral factors and account memberships, and is
// the authorization gate consulted by every risk-changing market operation.
//
// A single mutex serialises every public call on the registry and on the
// markets registered with it. Emitters run under that lock and must not call
// back into the registry.
type Registry struct {
	mu sync.Mutex

	admin       common.Address
	oracle      PriceSource
	markets     map[common.Address]*marketRecord
	order       []common.Address
	members     map[common.Address]*membership
	pauses      nativecommon.PauseSet
	blockHeight uint64

	emitter events.Emitter
	logger  *slog.Logger
	metrics *metrics.LendingMetrics
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithEmitter installs the event sink.
func WithEmitter(emitter events.Emitter) RegistryOption {
	return func(r *Registry) {
		if emitter != nil {
			r.emitter = emitter
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics installs the prometheus collectors.
func WithMetrics(m *metrics.LendingMetrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithBlockHeight seeds the registry clock.
func WithBlockHeight(height uint64) RegistryOption {
	return func(r *Registry) {
		r.blockHeight = height
	}
}

// NewRegistry constructs a registry governed by admin and priced by oracle.
func NewRegistry(admin common.Address, oracle PriceSource, opts ...RegistryOption) *Registry {
	r := &Registry{
		admin:   admin,
		oracle:  oracle,
		markets: make(map[common.Address]*marketRecord),
		members: make(map[common.Address]*membership),
		pauses:  nativecommon.PauseSet{},
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Admin returns the authority allowed to list and configure markets.
func (r *Registry) Admin() common.Address { return r.admin }

// SetBlockHeight records the host block height used by interest accrual.
func (r *Registry) SetBlockHeight(height uint64) {
	r.mu.Lock()
	r.blockHeight = height
	r.mu.Unlock()
}

// BlockHeight returns the current host block height.
func (r *Registry) BlockHeight() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blockHeight
}

func (r *Registry) register(m *Market) error {
	if m.id == (common.Address{}) {
		return lendingerrors.ErrInvalidMarket
	}
	if _, exists := r.markets[m.id]; exists {
		return fmt.Errorf("%w: %s", lendingerrors.ErrMarketExists, m.id.Hex())
	}
	r.markets[m.id] = &marketRecord{market: m, status: statusRegistered, collateralFactor: zero()}
	r.order = append(r.order, m.id)
	return nil
}

func (r *Registry) authorize(caller common.Address) error {
	if caller != r.admin {
		return lendingerrors.ErrNotAuthorized
	}
	return nil
}

func (r *Registry) record(market common.Address) (*marketRecord, error) {
	rec, ok := r.markets[market]
	if !ok {
		return nil, fmt.Errorf("%w: %s", lendingerrors.ErrUnknownMarket, market.Hex())
	}
	return rec, nil
}

// ListMarket marks a registered market as listed with the given collateral
// factor. Only the admin may list, and only once.
func (r *Registry) ListMarket(caller, market common.Address, collateralFactor *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorize(caller); err != nil {
		return err
	}
	rec, err := r.record(market)
	if err != nil {
		return err
	}
	factor := clone(collateralFactor)
	if factor.Gt(maxCollateralFactor) {
		return lendingerrors.ErrCollateralFactorTooHigh
	}
	if rec.status != statusRegistered {
		return fmt.Errorf("%w: %s is %s", lendingerrors.ErrMarketAlreadyListed, market.Hex(), rec.status)
	}
	rec.status = statusListed
	rec.collateralFactor = factor
	r.logger.Debug("market listed", "market", market.Hex(), "collateralFactor", factor.Dec())
	r.emitter.Emit(events.MarketListed{Market: market, CollateralFactor: clone(factor)})
	return nil
}

// DelistMarket moves a listed market to the terminal delisted state. Delisted
// markets reject mint and borrow but still accept redeem and repay.
func (r *Registry) DelistMarket(caller, market common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorize(caller); err != nil {
		return err
	}
	rec, err := r.record(market)
	if err != nil {
		return err
	}
	if rec.status != statusListed {
		return fmt.Errorf("%w: %s is %s", lendingerrors.ErrMarketNotListed, market.Hex(), rec.status)
	}
	rec.status = statusDelisted
	r.logger.Debug("market delisted", "market", market.Hex())
	r.emitter.Emit(events.MarketDelisted{Market: market})
	return nil
}

// SetCollateralFactor updates the factor of a listed market.
func (r *Registry) SetCollateralFactor(caller, market common.Address, collateralFactor *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorize(caller); err != nil {
		return err
	}
	rec, err := r.record(market)
	if err != nil {
		return err
	}
	if rec.status != statusListed {
		return fmt.Errorf("%w: %s", lendingerrors.ErrMarketNotListed, market.Hex())
	}
	factor := clone(collateralFactor)
	if factor.Gt(maxCollateralFactor) {
		return lendingerrors.ErrCollateralFactorTooHigh
	}
	old := rec.collateralFactor
	rec.collateralFactor = factor
	r.emitter.Emit(events.CollateralFactorUpdated{Market: market, OldFactor: clone(old), NewFactor: clone(factor)})
	return nil
}

// SetActionPaused flips a per-market pause switch.
func (r *Registry) SetActionPaused(caller, market common.Address, action nativecommon.Action, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorize(caller); err != nil {
		return err
	}
	if _, err := r.record(market); err != nil {
		return err
	}
	if !action.Valid() {
		return fmt.Errorf("lending: unknown action %q", action)
	}
	r.pauses.Set(market.Hex(), action, paused)
	r.emitter.Emit(events.ActionPaused{Market: market, Action: string(action), Paused: paused})
	return nil
}

// IsPaused reports whether the action is switched off for the market.
func (r *Registry) IsPaused(market common.Address, action nativecommon.Action) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pauses.IsPaused(market.Hex(), action)
}

func (r *Registry) membershipOf(account common.Address, create bool) *membership {
	m, ok := r.members[account]
	if !ok && create {
		m = &membership{}
		r.members[account] = m
	}
	return m
}

// JoinMarket adds a listed market to the account's collateral set. Joining a
// market the account already entered is a no-op.
func (r *Registry) JoinMarket(market, account common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.record(market)
	if err != nil {
		return err
	}
	if rec.status != statusListed {
		return fmt.Errorf("%w: %s", lendingerrors.ErrMarketNotListed, market.Hex())
	}
	m := r.membershipOf(account, true)
	if containsAddress(m.entered, market) {
		return nil
	}
	m.entered = append(m.entered, market)
	r.logger.Debug("market entered", "market", market.Hex(), "account", account.Hex())
	r.emitter.Emit(events.MarketEntered{Market: market, Account: account})
	return nil
}

// ExitMarket removes a market from the account's collateral set. It is refused
// while the account owes in that market or when the remaining collateral would
// no longer cover its debt.
func (r *Registry) ExitMarket(market, account common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.record(market)
	if err != nil {
		return err
	}
	m := r.membershipOf(account, false)
	if m == nil || !containsAddress(m.entered, market) {
		return nil
	}
	snap, err := rec.market.accountSnapshotLocked(account)
	if err != nil {
		return err
	}
	if !snap.BorrowBalance.IsZero() {
		return fmt.Errorf("%w: outstanding borrow in %s", lendingerrors.ErrExitNotAllowed, market.Hex())
	}
	detail, err := r.hypotheticalLiquidityLocked(account, market, snap.Shares, zero())
	if err != nil {
		return err
	}
	if detail.Shortfall() {
		return fmt.Errorf("%w: %w", lendingerrors.ErrExitNotAllowed, lendingerrors.ErrRedeemNotAllowed)
	}
	m.entered = removeAddress(m.entered, market)
	r.emitter.Emit(events.MarketExited{Market: market, Account: account})
	return nil
}

// Markets returns the registered market identifiers in registration order.
func (r *Registry) Markets() []common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]common.Address(nil), r.order...)
}

// Market looks up a registered market.
func (r *Registry) Market(id common.Address) (*Market, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.markets[id]
	if !ok {
		return nil, false
	}
	return rec.market, true
}

// AssetsIn returns the markets the account entered as collateral, in entry order.
func (r *Registry) AssetsIn(account common.Address) []common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.membershipOf(account, false)
	if m == nil {
		return nil
	}
	return append([]common.Address(nil), m.entered...)
}

// BorrowedIn returns the markets the account currently borrows from.
func (r *Registry) BorrowedIn(account common.Address) []common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.membershipOf(account, false)
	if m == nil {
		return nil
	}
	return append([]common.Address(nil), m.borrowed...)
}

// Accounts returns every account with a membership record.
func (r *Registry) Accounts() []common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accountsLocked()
}

func (r *Registry) accountsLocked() []common.Address {
	out := make([]common.Address, 0, len(r.members))
	for addr := range r.members {
		out = append(out, addr)
	}
	sortAddresses(out)
	return out
}

// IsListed reports whether the market currently accepts mints and borrows.
func (r *Registry) IsListed(market common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isListedLocked(market)
}

func (r *Registry) isListedLocked(market common.Address) bool {
	rec, ok := r.markets[market]
	return ok && rec.status == statusListed
}

// CollateralFactor returns the market's collateral factor (zero when unlisted).
func (r *Registry) CollateralFactor(market common.Address) *uint256.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.markets[market]
	if !ok {
		return zero()
	}
	return clone(rec.collateralFactor)
}

// mintAllowedLocked only requires the market to be listed.
func (r *Registry) mintAllowedLocked(market common.Address) error {
	if !r.isListedLocked(market) {
		return fmt.Errorf("%w: %s", lendingerrors.ErrMarketNotListed, market.Hex())
	}
	return nil
}

// redeemAllowedLocked checks that burning shares keeps the account solvent.
// Accounts that never entered the market as collateral may always redeem.
func (r *Registry) redeemAllowedLocked(market, account common.Address, shares *uint256.Int) error {
	rec, err := r.record(market)
	if err != nil {
		return err
	}
	if rec.status == statusRegistered {
		return fmt.Errorf("%w: %s", lendingerrors.ErrMarketNotListed, market.Hex())
	}
	m := r.membershipOf(account, false)
	if m == nil || !containsAddress(m.entered, market) {
		return nil
	}
	detail, err := r.hypotheticalLiquidityLocked(account, market, shares, zero())
	if err != nil {
		return err
	}
	if detail.Shortfall() {
		return lendingerrors.ErrRedeemNotAllowed
	}
	return nil
}

// borrowAllowedLocked checks listing, pricing and post-borrow solvency.
func (r *Registry) borrowAllowedLocked(market, account common.Address, amount *uint256.Int) error {
	if !r.isListedLocked(market) {
		return fmt.Errorf("%w: %s", lendingerrors.ErrMarketNotListed, market.Hex())
	}
	if _, err := r.price(market); err != nil {
		return err
	}
	detail, err := r.hypotheticalLiquidityLocked(account, market, zero(), amount)
	if err != nil {
		return err
	}
	if detail.Shortfall() {
		return lendingerrors.ErrBorrowNotAllowed
	}
	return nil
}

// repayAllowedLocked accepts listed and delisted markets.
func (r *Registry) repayAllowedLocked(market common.Address) error {
	rec, err := r.record(market)
	if err != nil {
		return err
	}
	if rec.status == statusRegistered {
		return fmt.Errorf("%w: %s", lendingerrors.ErrMarketNotListed, market.Hex())
	}
	return nil
}

func (r *Registry) recordBorrowLocked(market, account common.Address) {
	m := r.membershipOf(account, true)
	if !containsAddress(m.borrowed, market) {
		m.borrowed = append(m.borrowed, market)
	}
}

func (r *Registry) clearBorrowLocked(market, account common.Address) {
	m := r.membershipOf(account, false)
	if m == nil {
		return
	}
	m.borrowed = removeAddress(m.borrowed, market)
}

func (r *Registry) price(market common.Address) (*uint256.Int, error) {
	if r.oracle == nil {
		return nil, fmt.Errorf("%w: no oracle configured", lendingerrors.ErrPriceNotSet)
	}
	price, err := r.oracle.GetPrice(market)
	if err != nil {
		return nil, err
	}
	// A zero price would value collateral and debt at nothing.
	if price == nil || price.IsZero() {
		return nil, fmt.Errorf("%w: %s", lendingerrors.ErrPriceNotSet, market.Hex())
	}
	return price, nil
}

func (r *Registry) observe(m *Market, action string, err error) {
	if err != nil {
		r.logger.Debug("market action denied", "market", m.id.Hex(), "action", action, "err", err)
	} else {
		r.logger.Debug("market action committed", "market", m.id.Hex(), "action", action)
	}
	if r.metrics == nil {
		return
	}
	r.metrics.ObserveAction(m.label(), action, err)
	if err == nil {
		m.publishGaugesLocked()
	}
}
