package token

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	lendingerrors "lendingmarket/core/errors"
	"lendingmarket/storage"
)

var (
	alice = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	pool  = common.HexToAddress("0x00000000000000000000000000000000000000f0")
)

func TestTransferMovesBalance(t *testing.T) {
	l := NewLedger("QOD")
	if err := l.Mint(alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer(alice, bob, uint256.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := l.BalanceOf(alice).Uint64(); got != 60 {
		t.Fatalf("alice balance = %d", got)
	}
	if got := l.BalanceOf(bob).Uint64(); got != 40 {
		t.Fatalf("bob balance = %d", got)
	}
	if got := l.TotalSupply().Uint64(); got != 100 {
		t.Fatalf("supply = %d", got)
	}
	if err := l.Transfer(bob, alice, uint256.NewInt(41)); !errors.Is(err, lendingerrors.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	l := NewLedger("QOD")
	_ = l.Mint(alice, uint256.NewInt(100))

	if err := l.TransferFrom(pool, alice, pool, uint256.NewInt(10)); !errors.Is(err, lendingerrors.ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}

	l.Approve(alice, pool, uint256.NewInt(30))
	if err := l.TransferFrom(pool, alice, pool, uint256.NewInt(25)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	if got := l.Allowance(alice, pool).Uint64(); got != 5 {
		t.Fatalf("allowance = %d", got)
	}
	if got := l.BalanceOf(pool).Uint64(); got != 25 {
		t.Fatalf("pool balance = %d", got)
	}
	if err := l.TransferFrom(pool, alice, pool, uint256.NewInt(6)); !errors.Is(err, lendingerrors.ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
}

func TestTransferFromFailedMoveKeepsAllowance(t *testing.T) {
	l := NewLedger("QOD")
	_ = l.Mint(alice, uint256.NewInt(5))
	l.Approve(alice, pool, uint256.NewInt(50))
	if err := l.TransferFrom(pool, alice, pool, uint256.NewInt(10)); !errors.Is(err, lendingerrors.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := l.Allowance(alice, pool).Uint64(); got != 50 {
		t.Fatalf("allowance should be untouched, got %d", got)
	}
}

func TestTransferFromSelfNeedsNoAllowance(t *testing.T) {
	l := NewLedger("QOD")
	_ = l.Mint(alice, uint256.NewInt(5))
	if err := l.TransferFrom(alice, alice, bob, uint256.NewInt(5)); err != nil {
		t.Fatalf("self transferFrom: %v", err)
	}
	if got := l.BalanceOf(bob).Uint64(); got != 5 {
		t.Fatalf("bob balance = %d", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	key := []byte("ledger/QOD")

	l := NewLedger("QOD")
	_ = l.Mint(alice, uint256.NewInt(100))
	_ = l.Transfer(alice, bob, uint256.NewInt(30))
	l.Approve(alice, pool, uint256.NewInt(7))
	if err := l.Save(db, key); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored := NewLedger("QOD")
	ok, err := restored.Load(db, key)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got := restored.BalanceOf(alice).Uint64(); got != 70 {
		t.Fatalf("alice balance = %d", got)
	}
	if got := restored.BalanceOf(bob).Uint64(); got != 30 {
		t.Fatalf("bob balance = %d", got)
	}
	if got := restored.Allowance(alice, pool).Uint64(); got != 7 {
		t.Fatalf("allowance = %d", got)
	}
	if got := restored.TotalSupply().Uint64(); got != 100 {
		t.Fatalf("supply = %d", got)
	}

	missing, err := NewLedger("X").Load(db, []byte("absent"))
	if err != nil || missing {
		t.Fatalf("absent key: ok=%v err=%v", missing, err)
	}
}
