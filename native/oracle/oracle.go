package oracle

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	lendingerrors "lendingmarket/core/errors"
	"lendingmarket/core/events"
	"lendingmarket/storage"
)

var pricesKey = ethcrypto.Keccak256([]byte("lending/oracle/prices"))

// PriceOracle stores one authoritative price per market, written only by the
// authority fixed at construction. Prices are 1e18 mantissas denominated in a
// common unit of account.
type PriceOracle struct {
	mu        sync.RWMutex
	authority common.Address
	prices    map[common.Address]*uint256.Int

	isMarket func(common.Address) bool
	emitter  events.Emitter
	logger   *slog.Logger
}

// Option customises a PriceOracle.
type Option func(*PriceOracle)

// WithEmitter installs the event sink used for PriceUpdated events.
func WithEmitter(emitter events.Emitter) Option {
	return func(o *PriceOracle) {
		if emitter != nil {
			o.emitter = emitter
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *PriceOracle) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMarketFilter restricts SetPrice to ids for which isMarket reports true.
func WithMarketFilter(isMarket func(common.Address) bool) Option {
	return func(o *PriceOracle) {
		o.isMarket = isMarket
	}
}

// New constructs an empty oracle writable only by authority.
func New(authority common.Address, opts ...Option) *PriceOracle {
	o := &PriceOracle{
		authority: authority,
		prices:    make(map[common.Address]*uint256.Int),
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Authority returns the only address allowed to publish prices.
func (o *PriceOracle) Authority() common.Address { return o.authority }

// SetPrice records price for market. Zero is a legitimate price.
func (o *PriceOracle) SetPrice(caller, market common.Address, price *uint256.Int) error {
	if caller != o.authority {
		return lendingerrors.ErrNotAuthorized
	}
	if market == (common.Address{}) {
		return lendingerrors.ErrInvalidMarket
	}
	if o.isMarket != nil && !o.isMarket(market) {
		return fmt.Errorf("%w: %s is not a market", lendingerrors.ErrInvalidMarket, market.Hex())
	}
	value := new(uint256.Int)
	if price != nil {
		value.Set(price)
	}

	o.mu.Lock()
	o.prices[market] = value
	o.mu.Unlock()

	o.logger.Debug("price updated", "market", market.Hex(), "price", value.Dec())
	o.emitter.Emit(events.PriceUpdated{Market: market, Price: new(uint256.Int).Set(value)})
	return nil
}

// GetPrice returns the last price recorded for market, or ErrPriceNotSet when
// none was ever recorded.
func (o *PriceOracle) GetPrice(market common.Address) (*uint256.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.prices[market]
	if !ok {
		return nil, fmt.Errorf("%w: %s", lendingerrors.ErrPriceNotSet, market.Hex())
	}
	return new(uint256.Int).Set(price), nil
}

// Prices returns a copy of every recorded price.
func (o *PriceOracle) Prices() map[common.Address]*uint256.Int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[common.Address]*uint256.Int, len(o.prices))
	for market, price := range o.prices {
		out[market] = new(uint256.Int).Set(price)
	}
	return out
}

// Restore replaces the recorded prices without emitting events. It is meant
// for loading persisted state at startup.
func (o *PriceOracle) Restore(prices map[common.Address]*uint256.Int) {
	next := make(map[common.Address]*uint256.Int, len(prices))
	for market, price := range prices {
		if market == (common.Address{}) || price == nil {
			continue
		}
		next[market] = new(uint256.Int).Set(price)
	}
	o.mu.Lock()
	o.prices = next
	o.mu.Unlock()
}

type storedPrice struct {
	Market common.Address
	Price  *uint256.Int
}

// Save persists the recorded prices under a fixed key.
func (o *PriceOracle) Save(db storage.Database) error {
	prices := o.Prices()
	list := make([]storedPrice, 0, len(prices))
	for market, price := range prices {
		list = append(list, storedPrice{Market: market, Price: price})
	}
	sort.Slice(list, func(i, j int) bool {
		return bytes.Compare(list[i].Market.Bytes(), list[j].Market.Bytes()) < 0
	})
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return fmt.Errorf("oracle: encode prices: %w", err)
	}
	return db.Put(pricesKey, encoded)
}

// ReadPrices decodes the prices written by Save without touching any oracle.
// It reports false when nothing was saved.
func ReadPrices(db storage.Database) (map[common.Address]*uint256.Int, bool, error) {
	data, err := db.Get(pricesKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var list []storedPrice
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return nil, false, fmt.Errorf("oracle: decode prices: %w", err)
	}
	prices := make(map[common.Address]*uint256.Int, len(list))
	for _, entry := range list {
		prices[entry.Market] = entry.Price
	}
	return prices, true, nil
}

// Load restores prices written by Save. It reports false when nothing was saved.
func (o *PriceOracle) Load(db storage.Database) (bool, error) {
	prices, ok, err := ReadPrices(db)
	if err != nil || !ok {
		return ok, err
	}
	o.Restore(prices)
	return true, nil
}
