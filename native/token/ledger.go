package token

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	lendingerrors "lendingmarket/core/errors"
	"lendingmarket/storage"
)

// Ledger is an in-memory fungible token with ERC-20 style allowances. It backs
// market assets in the daemon and in tests.
type Ledger struct {
	mu         sync.Mutex
	symbol     string
	supply     *uint256.Int
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
}

// NewLedger returns an empty ledger.
func NewLedger(symbol string) *Ledger {
	return &Ledger{
		symbol:     symbol,
		supply:     new(uint256.Int),
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

// Symbol returns the display symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// Mint credits amount to account out of thin air.
func (l *Ledger) Mint(account common.Address, amount *uint256.Int) error {
	if amount == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	supply, overflow := new(uint256.Int).AddOverflow(l.supply, amount)
	if overflow {
		return lendingerrors.ErrMathOverflow
	}
	balance, overflow := new(uint256.Int).AddOverflow(l.balanceLocked(account), amount)
	if overflow {
		return lendingerrors.ErrMathOverflow
	}
	l.supply = supply
	l.balances[account] = balance
	return nil
}

// TotalSupply returns the minted total.
func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.supply)
}

// BalanceOf returns the balance of account.
func (l *Ledger) BalanceOf(account common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.balanceLocked(account))
}

// Approve sets the amount spender may move out of owner's balance.
func (l *Ledger) Approve(owner, spender common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byOwner, ok := l.allowances[owner]
	if !ok {
		byOwner = make(map[common.Address]*uint256.Int)
		l.allowances[owner] = byOwner
	}
	value := new(uint256.Int)
	if amount != nil {
		value.Set(amount)
	}
	byOwner[spender] = value
}

// Allowance returns what spender may still move out of owner's balance.
func (l *Ledger) Allowance(owner, spender common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.allowanceLocked(owner, spender))
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.moveLocked(from, to, amount)
}

// TransferFrom moves amount out of from's balance on behalf of spender,
// consuming allowance. An owner moving its own funds needs no allowance.
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount == nil {
		amount = new(uint256.Int)
	}
	if spender == from {
		return l.moveLocked(from, to, amount)
	}
	allowance := l.allowanceLocked(from, spender)
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: %s approved %s, need %s", lendingerrors.ErrInsufficientAllowance, from.Hex(), allowance.Dec(), amount.Dec())
	}
	if err := l.moveLocked(from, to, amount); err != nil {
		return err
	}
	l.allowances[from][spender] = new(uint256.Int).Sub(allowance, amount)
	return nil
}

func (l *Ledger) moveLocked(from, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	balance := l.balanceLocked(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, need %s", lendingerrors.ErrInsufficientBalance, from.Hex(), balance.Dec(), amount.Dec())
	}
	l.balances[from] = new(uint256.Int).Sub(balance, amount)
	l.balances[to] = new(uint256.Int).Add(l.balanceLocked(to), amount)
	return nil
}

func (l *Ledger) balanceLocked(account common.Address) *uint256.Int {
	if balance, ok := l.balances[account]; ok {
		return balance
	}
	return new(uint256.Int)
}

func (l *Ledger) allowanceLocked(owner, spender common.Address) *uint256.Int {
	if byOwner, ok := l.allowances[owner]; ok {
		if value, ok := byOwner[spender]; ok {
			return value
		}
	}
	return new(uint256.Int)
}

type storedBalance struct {
	Account common.Address
	Amount  *uint256.Int
}

type storedAllowance struct {
	Owner   common.Address
	Spender common.Address
	Amount  *uint256.Int
}

type storedLedger struct {
	Symbol     string
	Supply     *uint256.Int
	Balances   []storedBalance
	Allowances []storedAllowance
}

// Save writes the ledger under key.
func (l *Ledger) Save(db storage.Database, key []byte) error {
	l.mu.Lock()
	record := storedLedger{Symbol: l.symbol, Supply: new(uint256.Int).Set(l.supply)}
	for account, amount := range l.balances {
		if amount.IsZero() {
			continue
		}
		record.Balances = append(record.Balances, storedBalance{Account: account, Amount: new(uint256.Int).Set(amount)})
	}
	for owner, bySpender := range l.allowances {
		for spender, amount := range bySpender {
			if amount.IsZero() {
				continue
			}
			record.Allowances = append(record.Allowances, storedAllowance{Owner: owner, Spender: spender, Amount: new(uint256.Int).Set(amount)})
		}
	}
	l.mu.Unlock()

	sort.Slice(record.Balances, func(i, j int) bool {
		return bytes.Compare(record.Balances[i].Account.Bytes(), record.Balances[j].Account.Bytes()) < 0
	})
	sort.Slice(record.Allowances, func(i, j int) bool {
		a, b := record.Allowances[i], record.Allowances[j]
		if c := bytes.Compare(a.Owner.Bytes(), b.Owner.Bytes()); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Spender.Bytes(), b.Spender.Bytes()) < 0
	})
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return fmt.Errorf("token: encode ledger %s: %w", l.symbol, err)
	}
	return db.Put(key, encoded)
}

// Snapshot is a decoded ledger record ready to be applied with Restore.
type Snapshot struct {
	supply     *uint256.Int
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
}

// Load replaces the ledger contents with the record under key. It reports
// false when nothing was saved.
func (l *Ledger) Load(db storage.Database, key []byte) (bool, error) {
	snap, ok, err := l.ReadSnapshot(db, key)
	if err != nil || !ok {
		return ok, err
	}
	l.Restore(snap)
	return true, nil
}

// ReadSnapshot decodes the record under key without modifying the ledger.
func (l *Ledger) ReadSnapshot(db storage.Database, key []byte) (*Snapshot, bool, error) {
	data, err := db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var record storedLedger
	if err := rlp.DecodeBytes(data, &record); err != nil {
		return nil, false, fmt.Errorf("token: decode ledger %s: %w", l.symbol, err)
	}
	balances := make(map[common.Address]*uint256.Int, len(record.Balances))
	for _, b := range record.Balances {
		balances[b.Account] = b.Amount
	}
	allowances := make(map[common.Address]map[common.Address]*uint256.Int)
	for _, a := range record.Allowances {
		bySpender, ok := allowances[a.Owner]
		if !ok {
			bySpender = make(map[common.Address]*uint256.Int)
			allowances[a.Owner] = bySpender
		}
		bySpender[a.Spender] = a.Amount
	}
	supply := record.Supply
	if supply == nil {
		supply = new(uint256.Int)
	}
	return &Snapshot{supply: supply, balances: balances, allowances: allowances}, true, nil
}

// Restore replaces the ledger contents with snap.
func (l *Ledger) Restore(snap *Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.supply = snap.supply
	l.balances = snap.balances
	l.allowances = snap.allowances
}
