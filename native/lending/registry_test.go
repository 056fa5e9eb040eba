package lending

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	lendingerrors "lendingmarket/core/errors"
	"lendingmarket/core/events"
	nativecommon "lendingmarket/native/common"
	"lendingmarket/storage"
)

func TestListMarket(t *testing.T) {
	f := newFixture(t)
	r := f.registry

	if err := r.ListMarket(outsider, marketA, factor80); !errors.Is(err, lendingerrors.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	unknown := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	if err := r.ListMarket(admin, unknown, factor80); !errors.Is(err, lendingerrors.ErrUnknownMarket) {
		t.Fatalf("expected ErrUnknownMarket, got %v", err)
	}
	if err := r.ListMarket(admin, marketA, e18(1)); !errors.Is(err, lendingerrors.ErrCollateralFactorTooHigh) {
		t.Fatalf("expected ErrCollateralFactorTooHigh, got %v", err)
	}
	if r.IsListed(marketA) {
		t.Fatalf("rejected listing must leave the market unlisted")
	}
	if err := r.ListMarket(admin, marketA, factor80); err != nil {
		t.Fatalf("list: %v", err)
	}
	ev, ok := f.events.Last(events.TypeMarketListed)
	if !ok {
		t.Fatalf("expected market listed event")
	}
	if listed := ev.(events.MarketListed); listed.Market != marketA || !listed.CollateralFactor.Eq(factor80) {
		t.Fatalf("unexpected event %+v", listed)
	}
	if err := r.ListMarket(admin, marketA, factor80); !errors.Is(err, lendingerrors.ErrMarketAlreadyListed) {
		t.Fatalf("expected ErrMarketAlreadyListed, got %v", err)
	}
	if err := r.ListMarket(admin, marketB, MaxCollateralFactor()); err != nil {
		t.Fatalf("listing at the ceiling should succeed: %v", err)
	}
	if got := r.CollateralFactor(marketA); !got.Eq(factor80) {
		t.Fatalf("unexpected collateral factor %s", got.Dec())
	}
	if markets := r.Markets(); len(markets) != 2 || markets[0] != marketA || markets[1] != marketB {
		t.Fatalf("unexpected market order %v", markets)
	}
}

func TestJoinMarketIsIdempotent(t *testing.T) {
	f := newFixture(t)
	if err := f.registry.JoinMarket(marketA, user1); !errors.Is(err, lendingerrors.ErrMarketNotListed) {
		t.Fatalf("expected ErrMarketNotListed, got %v", err)
	}
	f.ready(underlyingPrice)
	f.join(marketA, user1)
	f.join(marketA, user1)

	if entered := f.registry.AssetsIn(user1); len(entered) != 1 || entered[0] != marketA {
		t.Fatalf("unexpected entered set %v", entered)
	}
	count := 0
	for _, ev := range f.events.Events() {
		if ev.EventType() == events.TypeMarketEntered {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one market entered event, got %d", count)
	}
	if accounts := f.registry.Accounts(); len(accounts) != 1 || accounts[0] != user1 {
		t.Fatalf("unexpected accounts %v", accounts)
	}
}

func TestCollateralFactorDrivesLiquidity(t *testing.T) {
	f := newFixture(t).ready(underlyingPrice)
	f.supply(marketA, user1, e18(10))

	liquidity, err := f.registry.AccountLiquidity(user1)
	if err != nil {
		t.Fatalf("liquidity: %v", err)
	}
	if liquidity.Sign() != 0 {
		t.Fatalf("collateral outside the entered set must not count, got %s", liquidity)
	}

	f.join(marketA, user1)
	liquidity, err = f.registry.AccountLiquidity(user1)
	if err != nil {
		t.Fatalf("liquidity: %v", err)
	}
	if liquidity.String() != "20869511865018496" {
		t.Fatalf("unexpected liquidity %s", liquidity)
	}

	if err := f.registry.SetCollateralFactor(admin, marketA, mustUint("400000000000000000")); err != nil {
		t.Fatalf("set collateral factor: %v", err)
	}
	liquidity, err = f.registry.AccountLiquidity(user1)
	if err != nil {
		t.Fatalf("liquidity: %v", err)
	}
	if liquidity.String() != "10434755932509248" {
		t.Fatalf("unexpected liquidity after factor change %s", liquidity)
	}
	if err := f.registry.SetCollateralFactor(admin, marketA, e18(1)); !errors.Is(err, lendingerrors.ErrCollateralFactorTooHigh) {
		t.Fatalf("expected ErrCollateralFactorTooHigh, got %v", err)
	}
}

func TestLiquidityRequiresEveryPrice(t *testing.T) {
	f := newFixture(t)
	f.list(marketA, factor80)
	f.supply(marketA, user1, e18(10))
	f.join(marketA, user1)

	if _, err := f.registry.AccountLiquidity(user1); !errors.Is(err, lendingerrors.ErrPriceNotSet) {
		t.Fatalf("expected ErrPriceNotSet, got %v", err)
	}
	f.setPrice(marketA, underlyingPrice)
	if _, err := f.registry.AccountLiquidity(user1); err != nil {
		t.Fatalf("liquidity once priced: %v", err)
	}
}

func TestHypotheticalLiquidity(t *testing.T) {
	f := newFixture(t).ready(e18(1))
	shares := f.supply(marketA, user1, e18(10))
	f.join(marketA, user1)

	half := new(uint256.Int).Rsh(shares, 1)
	liquidity, err := f.registry.HypotheticalLiquidity(user1, marketA, half, nil)
	if err != nil {
		t.Fatalf("hypothetical redeem: %v", err)
	}
	if liquidity.Cmp(new(big.Int).Mul(big.NewInt(4), expScale.ToBig())) != 0 {
		t.Fatalf("expected 4e18 after redeeming half, got %s", liquidity)
	}

	liquidity, err = f.registry.HypotheticalLiquidity(user1, marketB, nil, e18(9))
	if err != nil {
		t.Fatalf("hypothetical borrow: %v", err)
	}
	if liquidity.Cmp(new(big.Int).Neg(expScale.ToBig())) != 0 {
		t.Fatalf("expected -1e18 after borrowing 9e18, got %s", liquidity)
	}

	unknown := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	if _, err := f.registry.HypotheticalLiquidity(user1, unknown, nil, nil); !errors.Is(err, lendingerrors.ErrUnknownMarket) {
		t.Fatalf("expected ErrUnknownMarket, got %v", err)
	}
}

func TestExitMarket(t *testing.T) {
	f := newFixture(t).ready(underlyingPrice)
	f.borrowSetup()

	if err := f.registry.ExitMarket(marketA, user2); !errors.Is(err, lendingerrors.ErrExitNotAllowed) {
		t.Fatalf("expected ErrExitNotAllowed while collateral backs debt, got %v", err)
	}

	// Borrowing from B did not enter B, so user2 owes there without being a member.
	if err := f.registry.ExitMarket(marketB, user2); err != nil {
		t.Fatalf("exit of a market never entered is a no-op: %v", err)
	}

	f.supply(marketB, user2, e18(1))
	f.join(marketB, user2)
	if err := f.registry.ExitMarket(marketB, user2); !errors.Is(err, lendingerrors.ErrExitNotAllowed) {
		t.Fatalf("expected ErrExitNotAllowed while owing in the market, got %v", err)
	}

	f.join(marketA, user1)
	if err := f.registry.ExitMarket(marketA, user1); err != nil {
		t.Fatalf("exit without debt: %v", err)
	}
	if entered := f.registry.AssetsIn(user1); len(entered) != 0 {
		t.Fatalf("expected empty entered set, got %v", entered)
	}
	if _, ok := f.events.Last(events.TypeMarketExited); !ok {
		t.Fatalf("expected market exited event")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	f := newFixture(t).ready(underlyingPrice)
	f.borrowSetup()
	if err := f.registry.SetActionPaused(admin, marketA, nativecommon.ActionBorrow, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	f.registry.SetBlockHeight(startHeight + 50)
	if err := f.markets[marketB].AccrueInterest(); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	db := storage.NewMemDB()
	root, err := f.registry.SaveSnapshot(db)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if root == (common.Hash{}) {
		t.Fatalf("expected a non-empty snapshot root")
	}

	restored := newFixture(t)
	ok, err := restored.registry.LoadSnapshot(db)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("expected snapshot to be found")
	}
	if restored.registry.BlockHeight() != startHeight+50 {
		t.Fatalf("unexpected block height %d", restored.registry.BlockHeight())
	}
	if !restored.registry.IsListed(marketA) || !restored.registry.CollateralFactor(marketB).Eq(factor80) {
		t.Fatalf("listing state not restored")
	}
	if !restored.registry.IsPaused(marketA, nativecommon.ActionBorrow) {
		t.Fatalf("pause switch not restored")
	}
	if entered := restored.registry.AssetsIn(user2); len(entered) != 1 || entered[0] != marketA {
		t.Fatalf("unexpected entered set %v", entered)
	}
	if borrowed := restored.registry.BorrowedIn(user2); len(borrowed) != 1 || borrowed[0] != marketB {
		t.Fatalf("unexpected borrowed set %v", borrowed)
	}

	want := f.markets[marketB].State()
	got := restored.markets[marketB].State()
	if !got.TotalBorrows.Eq(want.TotalBorrows) || !got.BorrowIndex.Eq(want.BorrowIndex) || got.AccrualBlock != want.AccrualBlock {
		t.Fatalf("market state mismatch: want %+v got %+v", want, got)
	}
	wantOwed, _ := f.markets[marketB].BorrowBalanceStored(user2)
	gotOwed, err := restored.markets[marketB].BorrowBalanceStored(user2)
	if err != nil || !gotOwed.Eq(wantOwed) {
		t.Fatalf("borrow balance mismatch: want %s got %v (%v)", wantOwed.Dec(), gotOwed, err)
	}

	root2, err := restored.registry.SaveSnapshot(storage.NewMemDB())
	if err != nil {
		t.Fatalf("re-save: %v", err)
	}
	if root2 != root {
		t.Fatalf("snapshot root changed across a round trip: %s != %s", root2.Hex(), root.Hex())
	}
}

func TestLoadSnapshotRequiresRegisteredMarkets(t *testing.T) {
	f := newFixture(t).ready(underlyingPrice)
	db := storage.NewMemDB()
	if _, err := f.registry.SaveSnapshot(db); err != nil {
		t.Fatalf("save: %v", err)
	}

	empty := NewRegistry(admin, f.oracle)
	if _, err := empty.LoadSnapshot(db); !errors.Is(err, lendingerrors.ErrUnknownMarket) {
		t.Fatalf("expected ErrUnknownMarket, got %v", err)
	}
	ok, err := empty.LoadSnapshot(storage.NewMemDB())
	if err != nil || ok {
		t.Fatalf("empty store should report no snapshot, got %v %v", ok, err)
	}
}

func TestOracleRejectsPricesForNonMarkets(t *testing.T) {
	f := newFixture(t)
	// The underlying asset address is not a market id.
	if err := f.oracle.SetPrice(admin, user1, underlyingPrice); !errors.Is(err, lendingerrors.ErrInvalidMarket) {
		t.Fatalf("expected ErrInvalidMarket, got %v", err)
	}
	if _, err := f.oracle.GetPrice(user1); !errors.Is(err, lendingerrors.ErrPriceNotSet) {
		t.Fatalf("rejected write must not record a price, got %v", err)
	}
	if err := f.oracle.SetPrice(admin, marketA, underlyingPrice); err != nil {
		t.Fatalf("registered but unlisted markets accept prices: %v", err)
	}
}
