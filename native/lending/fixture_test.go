package lending

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendingmarket/core/events"
	"lendingmarket/native/oracle"
	"lendingmarket/native/token"
)

const startHeight = 100

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	outsider = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	user1    = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	user2    = common.HexToAddress("0x00000000000000000000000000000000000000e2")
	marketA  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	marketB  = common.HexToAddress("0x00000000000000000000000000000000000000c2")

	underlyingPrice = uint256.NewInt(2608688983127312)
	initialRate     = mustUint("2000000000000000000000000000")
	reserveFactor   = mustUint("100000000000000000")
	factor80        = mustUint("800000000000000000")
)

func e18(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), expScale)
}

type fixture struct {
	t        *testing.T
	registry *Registry
	oracle   *oracle.PriceOracle
	events   *events.Recorder
	markets  map[common.Address]*Market
	assets   map[common.Address]*token.Ledger
}

// newFixture registers unlisted, unpriced markets A and B.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	rec := events.NewRecorder()
	var registry *Registry
	o := oracle.New(admin, oracle.WithEmitter(rec), oracle.WithMarketFilter(func(id common.Address) bool {
		_, ok := registry.Market(id)
		return ok
	}))
	registry = NewRegistry(admin, o, WithEmitter(rec), WithBlockHeight(startHeight))
	f := &fixture{
		t:        t,
		registry: registry,
		oracle:   o,
		events:   rec,
		markets:  make(map[common.Address]*Market),
		assets:   make(map[common.Address]*token.Ledger),
	}
	f.addMarket(marketA, "cQOD")
	f.addMarket(marketB, "cSHIVA")
	return f
}

func (f *fixture) addMarket(id common.Address, symbol string) *Market {
	f.t.Helper()
	ledger := token.NewLedger(symbol[1:])
	m, err := NewMarket(id, MarketParams{
		Symbol:              symbol,
		ReserveFactor:       reserveFactor,
		InitialExchangeRate: initialRate,
	}, f.registry, ledger, DefaultInterestModel())
	if err != nil {
		f.t.Fatalf("new market %s: %v", symbol, err)
	}
	f.markets[id] = m
	f.assets[id] = ledger
	return m
}

func (f *fixture) list(id common.Address, cf *uint256.Int) {
	f.t.Helper()
	if err := f.registry.ListMarket(admin, id, cf); err != nil {
		f.t.Fatalf("list %s: %v", id.Hex(), err)
	}
}

func (f *fixture) setPrice(id common.Address, price *uint256.Int) {
	f.t.Helper()
	if err := f.oracle.SetPrice(admin, id, price); err != nil {
		f.t.Fatalf("set price %s: %v", id.Hex(), err)
	}
}

// ready lists both markets at 0.8 and prices them identically.
func (f *fixture) ready(price *uint256.Int) *fixture {
	f.t.Helper()
	for _, id := range []common.Address{marketA, marketB} {
		f.list(id, factor80)
		f.setPrice(id, price)
	}
	return f
}

// fund mints underlying to account and approves the market to pull it.
func (f *fixture) fund(id, account common.Address, amount *uint256.Int) {
	f.t.Helper()
	ledger := f.assets[id]
	if err := ledger.Mint(account, amount); err != nil {
		f.t.Fatalf("fund: %v", err)
	}
	allowance := new(uint256.Int).Add(ledger.Allowance(account, id), amount)
	ledger.Approve(account, id, allowance)
}

func (f *fixture) supply(id, account common.Address, amount *uint256.Int) *uint256.Int {
	f.t.Helper()
	f.fund(id, account, amount)
	shares, err := f.markets[id].Mint(account, amount)
	if err != nil {
		f.t.Fatalf("mint %s into %s: %v", amount.Dec(), id.Hex(), err)
	}
	return shares
}

func (f *fixture) join(id, account common.Address) {
	f.t.Helper()
	if err := f.registry.JoinMarket(id, account); err != nil {
		f.t.Fatalf("join %s: %v", id.Hex(), err)
	}
}

// borrowSetup leaves user2 borrowing 5e18 of B against 10e18 supplied to A.
func (f *fixture) borrowSetup() {
	f.t.Helper()
	f.supply(marketA, user1, e18(10))
	f.supply(marketA, user2, e18(10))
	f.join(marketA, user2)
	f.supply(marketB, user1, e18(10))
	if err := f.markets[marketB].Borrow(user2, e18(5)); err != nil {
		f.t.Fatalf("borrow: %v", err)
	}
}
