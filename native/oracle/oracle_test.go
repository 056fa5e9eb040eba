package oracle

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	lendingerrors "lendingmarket/core/errors"
	"lendingmarket/core/events"
	"lendingmarket/storage"
)

var (
	authority = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	outsider  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	marketA   = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	marketB   = common.HexToAddress("0x00000000000000000000000000000000000000d4")
)

func TestSetPriceRequiresAuthority(t *testing.T) {
	o := New(authority)
	if err := o.SetPrice(outsider, marketA, uint256.NewInt(5)); !errors.Is(err, lendingerrors.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if _, err := o.GetPrice(marketA); !errors.Is(err, lendingerrors.ErrPriceNotSet) {
		t.Fatalf("rejected write must not record a price, got %v", err)
	}
}

func TestSetPriceRejectsZeroMarket(t *testing.T) {
	o := New(authority)
	if err := o.SetPrice(authority, common.Address{}, uint256.NewInt(5)); !errors.Is(err, lendingerrors.ErrInvalidMarket) {
		t.Fatalf("expected ErrInvalidMarket, got %v", err)
	}
}

func TestGetPriceDistinguishesUnsetFromZero(t *testing.T) {
	o := New(authority)
	if _, err := o.GetPrice(marketA); !errors.Is(err, lendingerrors.ErrPriceNotSet) {
		t.Fatalf("expected ErrPriceNotSet, got %v", err)
	}
	if err := o.SetPrice(authority, marketA, uint256.NewInt(0)); err != nil {
		t.Fatalf("set zero price: %v", err)
	}
	price, err := o.GetPrice(marketA)
	if err != nil {
		t.Fatalf("zero price should be readable: %v", err)
	}
	if !price.IsZero() {
		t.Fatalf("expected zero price, got %s", price.Dec())
	}
}

func TestSetPriceOverwritesAndEmits(t *testing.T) {
	rec := events.NewRecorder()
	o := New(authority, WithEmitter(rec))

	price := uint256.NewInt(2608688983127312)
	if err := o.SetPrice(authority, marketA, price); err != nil {
		t.Fatalf("set price: %v", err)
	}
	price.SetUint64(1)
	got, err := o.GetPrice(marketA)
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if got.Uint64() != 2608688983127312 {
		t.Fatalf("stored price aliased caller value: %s", got.Dec())
	}

	if err := o.SetPrice(authority, marketA, uint256.NewInt(7)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = o.GetPrice(marketA)
	if got.Uint64() != 7 {
		t.Fatalf("expected overwrite to 7, got %s", got.Dec())
	}

	if len(rec.Events()) != 2 {
		t.Fatalf("expected two events, got %d", len(rec.Events()))
	}
	last, ok := rec.Last(events.TypePriceUpdated)
	if !ok {
		t.Fatalf("missing price event")
	}
	evt := last.(events.PriceUpdated)
	if evt.Market != marketA || evt.Price.Uint64() != 7 {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	o := New(authority)
	if ok, err := o.Load(db); err != nil || ok {
		t.Fatalf("empty db should load nothing: ok=%v err=%v", ok, err)
	}
	_ = o.SetPrice(authority, marketA, uint256.NewInt(11))
	_ = o.SetPrice(authority, marketB, uint256.NewInt(0))
	if err := o.Save(db); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored := New(authority)
	ok, err := restored.Load(db)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if p, err := restored.GetPrice(marketA); err != nil || p.Uint64() != 11 {
		t.Fatalf("market A price: %v %v", p, err)
	}
	if p, err := restored.GetPrice(marketB); err != nil || !p.IsZero() {
		t.Fatalf("market B price: %v %v", p, err)
	}
}

func TestMarketFilterRejectsUnknownIDs(t *testing.T) {
	rec := events.NewRecorder()
	underlying := common.HexToAddress("0x00000000000000000000000000000000000000e5")
	o := New(authority, WithEmitter(rec), WithMarketFilter(func(id common.Address) bool {
		return id == marketA
	}))
	if err := o.SetPrice(authority, underlying, uint256.NewInt(2608688983127312)); !errors.Is(err, lendingerrors.ErrInvalidMarket) {
		t.Fatalf("expected ErrInvalidMarket, got %v", err)
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("rejected write must not emit, got %d events", len(rec.Events()))
	}
	if err := o.SetPrice(authority, marketA, uint256.NewInt(1)); err != nil {
		t.Fatalf("set price for market: %v", err)
	}
}
