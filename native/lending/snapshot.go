package lending

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	lendingerrors "lendingmarket/core/errors"
	nativecommon "lendingmarket/native/common"
	"lendingmarket/storage"
)

var (
	registryIndexKey = ethcrypto.Keccak256([]byte("lending/registry"))
	marketKeyPrefix  = []byte("lending/market/")
)

func marketKey(id common.Address) []byte {
	buf := make([]byte, len(marketKeyPrefix)+common.AddressLength)
	copy(buf, marketKeyPrefix)
	copy(buf[len(marketKeyPrefix):], id.Bytes())
	return ethcrypto.Keccak256(buf)
}

type storedPosition struct {
	Account             common.Address
	Shares              *uint256.Int
	BorrowPrincipal     *uint256.Int
	BorrowIndexSnapshot *uint256.Int
}

type storedMarket struct {
	ID               common.Address
	Status           uint8
	CollateralFactor *uint256.Int
	TotalShares      *uint256.Int
	Cash             *uint256.Int
	TotalBorrows     *uint256.Int
	TotalReserves    *uint256.Int
	BorrowIndex      *uint256.Int
	AccrualBlock     uint64
	Positions        []storedPosition
}

type storedMembership struct {
	Account  common.Address
	Entered  []common.Address
	Borrowed []common.Address
}

type storedPause struct {
	Market common.Address
	Action string
}

type storedRegistry struct {
	BlockHeight uint64
	Markets     []common.Address
	MarketRoots []common.Hash
	Members     []storedMembership
	Pauses      []storedPause
}

// SaveSnapshot writes the registry and every market to db in a single batch and
// returns a keccak commitment over the written records.
func (r *Registry) SaveSnapshot(db storage.Database) (common.Hash, error) {
	if db == nil {
		return common.Hash{}, fmt.Errorf("lending: snapshot database must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := db.NewBatch()
	index := storedRegistry{BlockHeight: r.blockHeight}
	for _, id := range r.order {
		rec := r.markets[id]
		encoded, err := rlp.EncodeToBytes(rec.stored())
		if err != nil {
			return common.Hash{}, fmt.Errorf("lending: encode market %s: %w", id.Hex(), err)
		}
		batch.Put(marketKey(id), encoded)
		index.Markets = append(index.Markets, id)
		index.MarketRoots = append(index.MarketRoots, ethcrypto.Keccak256Hash(encoded))
	}
	for _, account := range r.accountsLocked() {
		m := r.members[account]
		if len(m.entered) == 0 && len(m.borrowed) == 0 {
			continue
		}
		index.Members = append(index.Members, storedMembership{
			Account:  account,
			Entered:  append([]common.Address(nil), m.entered...),
			Borrowed: append([]common.Address(nil), m.borrowed...),
		})
	}
	for _, id := range r.order {
		for _, action := range []nativecommon.Action{nativecommon.ActionMint, nativecommon.ActionBorrow} {
			if r.pauses.IsPaused(id.Hex(), action) {
				index.Pauses = append(index.Pauses, storedPause{Market: id, Action: string(action)})
			}
		}
	}
	encoded, err := rlp.EncodeToBytes(index)
	if err != nil {
		return common.Hash{}, fmt.Errorf("lending: encode registry: %w", err)
	}
	batch.Put(registryIndexKey, encoded)
	if err := batch.Write(); err != nil {
		return common.Hash{}, err
	}
	root := ethcrypto.Keccak256Hash(encoded)
	r.logger.Info("lending snapshot saved", "markets", len(index.Markets), "accounts", len(index.Members), "root", root.Hex())
	return root, nil
}

func (rec *marketRecord) stored() storedMarket {
	m := rec.market
	out := storedMarket{
		ID:               m.id,
		Status:           uint8(rec.status),
		CollateralFactor: clone(rec.collateralFactor),
		TotalShares:      clone(m.state.TotalShares),
		Cash:             clone(m.state.Cash),
		TotalBorrows:     clone(m.state.TotalBorrows),
		TotalReserves:    clone(m.state.TotalReserves),
		BorrowIndex:      clone(m.state.BorrowIndex),
		AccrualBlock:     m.state.AccrualBlock,
	}
	accounts := make([]common.Address, 0, len(m.positions))
	for account := range m.positions {
		accounts = append(accounts, account)
	}
	sortAddresses(accounts)
	for _, account := range accounts {
		pos := m.positions[account]
		out.Positions = append(out.Positions, storedPosition{
			Account:             account,
			Shares:              clone(pos.Shares),
			BorrowPrincipal:     clone(pos.BorrowPrincipal),
			BorrowIndexSnapshot: clone(pos.BorrowIndexSnapshot),
		})
	}
	return out
}

// LoadSnapshot restores balances, positions, listings and memberships saved by
// SaveSnapshot. Every market in the snapshot must already be registered; the
// immutable market parameters come from the live instances. It reports false
// when db holds no snapshot.
func (r *Registry) LoadSnapshot(db storage.Database) (bool, error) {
	if db == nil {
		return false, fmt.Errorf("lending: snapshot database must not be nil")
	}
	data, err := db.Get(registryIndexKey)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var index storedRegistry
	if err := rlp.DecodeBytes(data, &index); err != nil {
		return false, fmt.Errorf("lending: decode registry: %w", err)
	}
	if len(index.MarketRoots) != len(index.Markets) {
		return false, fmt.Errorf("lending: corrupt registry snapshot")
	}

	stored := make([]storedMarket, len(index.Markets))
	for i, id := range index.Markets {
		raw, err := db.Get(marketKey(id))
		if err != nil {
			return false, fmt.Errorf("lending: load market %s: %w", id.Hex(), err)
		}
		if ethcrypto.Keccak256Hash(raw) != index.MarketRoots[i] {
			return false, fmt.Errorf("lending: market %s snapshot does not match registry root", id.Hex())
		}
		if err := rlp.DecodeBytes(raw, &stored[i]); err != nil {
			return false, fmt.Errorf("lending: decode market %s: %w", id.Hex(), err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sm := range stored {
		if _, ok := r.markets[sm.ID]; !ok {
			return false, fmt.Errorf("%w: snapshot market %s", lendingerrors.ErrUnknownMarket, sm.ID.Hex())
		}
		if marketStatus(sm.Status) > statusDelisted {
			return false, fmt.Errorf("lending: market %s has invalid status %d", sm.ID.Hex(), sm.Status)
		}
	}
	for _, sm := range stored {
		rec := r.markets[sm.ID]
		rec.status = marketStatus(sm.Status)
		rec.collateralFactor = clone(sm.CollateralFactor)

		m := rec.market
		state := m.state.Clone()
		state.TotalShares = clone(sm.TotalShares)
		state.Cash = clone(sm.Cash)
		state.TotalBorrows = clone(sm.TotalBorrows)
		state.TotalReserves = clone(sm.TotalReserves)
		state.BorrowIndex = clone(sm.BorrowIndex)
		state.AccrualBlock = sm.AccrualBlock
		m.state = state
		m.positions = make(map[common.Address]*AccountPosition, len(sm.Positions))
		for _, p := range sm.Positions {
			m.positions[p.Account] = &AccountPosition{
				Shares:              clone(p.Shares),
				BorrowPrincipal:     clone(p.BorrowPrincipal),
				BorrowIndexSnapshot: clone(p.BorrowIndexSnapshot),
			}
		}
	}
	r.members = make(map[common.Address]*membership, len(index.Members))
	for _, sm := range index.Members {
		r.members[sm.Account] = &membership{
			entered:  append([]common.Address(nil), sm.Entered...),
			borrowed: append([]common.Address(nil), sm.Borrowed...),
		}
	}
	r.pauses = nativecommon.PauseSet{}
	for _, p := range index.Pauses {
		r.pauses.Set(p.Market.Hex(), nativecommon.Action(p.Action), true)
	}
	if index.BlockHeight > r.blockHeight {
		r.blockHeight = index.BlockHeight
	}
	r.logger.Info("lending snapshot restored", "markets", len(stored), "accounts", len(index.Members), "blockHeight", r.blockHeight)
	return true, nil
}
