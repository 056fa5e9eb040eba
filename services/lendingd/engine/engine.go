package engine

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"lendingmarket/config"
	"lendingmarket/core/events"
	"lendingmarket/native/lending"
	"lendingmarket/native/oracle"
	"lendingmarket/native/token"
	"lendingmarket/observability/metrics"
	"lendingmarket/storage"
)

// Options tune Build.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.LendingMetrics
	Emitter events.Emitter
	// BlockHeight overrides the configured starting height when non-zero.
	BlockHeight uint64
}

// Engine is a fully wired lending deployment: oracle, registry, markets and the
// in-memory ledgers backing each market's underlying.
type Engine struct {
	Oracle   *oracle.PriceOracle
	Registry *lending.Registry
	Markets  []*lending.Market
	Assets   map[common.Address]*token.Ledger

	logger  *slog.Logger
	metrics *metrics.LendingMetrics
}

// LogEmitter writes every event as a structured log line.
func LogEmitter(logger *slog.Logger) events.Emitter {
	return events.EmitterFunc(func(e events.Event) {
		recordable, ok := e.(events.Recordable)
		if !ok {
			logger.Info("lending event", "type", e.EventType())
			return
		}
		record := recordable.Event()
		args := make([]any, 0, 2+2*len(record.Attributes))
		args = append(args, "type", record.Type)
		for key, value := range record.Attributes {
			args = append(args, key, value)
		}
		logger.Info("lending event", args...)
	})
}

// Build constructs the engine described by cfg. Configured prices are
// published by the oracle authority and listed markets are listed by the admin.
func Build(cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine: config required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	height := cfg.BlockHeight
	if opts.BlockHeight != 0 {
		height = opts.BlockHeight
	}

	admin := cfg.AdminAddress()
	authority := cfg.OracleAuthorityAddress()
	var registry *lending.Registry
	priceOracle := oracle.New(authority,
		oracle.WithLogger(logger),
		oracle.WithEmitter(emitter),
		oracle.WithMarketFilter(func(id common.Address) bool {
			_, ok := registry.Market(id)
			return ok
		}),
	)
	registry = lending.NewRegistry(admin, priceOracle,
		lending.WithLogger(logger),
		lending.WithEmitter(emitter),
		lending.WithMetrics(opts.Metrics),
		lending.WithBlockHeight(height),
	)

	eng := &Engine{
		Oracle:   priceOracle,
		Registry: registry,
		Assets:   make(map[common.Address]*token.Ledger, len(cfg.Markets)),
		logger:   logger,
		metrics:  opts.Metrics,
	}
	for _, mc := range cfg.Markets {
		if err := eng.addMarket(admin, authority, mc); err != nil {
			return nil, fmt.Errorf("market %s: %w", mc.Symbol, err)
		}
	}
	return eng, nil
}

func (e *Engine) addMarket(admin, authority common.Address, mc config.MarketConfig) error {
	params, err := mc.Params()
	if err != nil {
		return err
	}
	model, err := mc.InterestModel()
	if err != nil {
		return err
	}
	id := mc.MarketID()
	ledger := token.NewLedger(mc.Symbol)
	supply, err := mc.InitialSupplyValue()
	if err != nil {
		return err
	}
	if !supply.IsZero() {
		if err := ledger.Mint(mc.FaucetAddress(), supply); err != nil {
			return err
		}
	}
	market, err := lending.NewMarket(id, params, e.Registry, ledger, model)
	if err != nil {
		return err
	}
	if mc.IsListed() {
		factor, err := mc.CollateralFactorValue()
		if err != nil {
			return err
		}
		if err := e.Registry.ListMarket(admin, id, factor); err != nil {
			return err
		}
	}
	price, err := mc.PriceValue()
	if err != nil {
		return err
	}
	if price != nil {
		if err := e.Oracle.SetPrice(authority, id, price); err != nil {
			return err
		}
	}
	e.Markets = append(e.Markets, market)
	e.Assets[id] = ledger
	return nil
}

// Market returns the market with the given id.
func (e *Engine) Market(id common.Address) (*lending.Market, bool) {
	return e.Registry.Market(id)
}

// Asset returns the ledger backing the market's underlying.
func (e *Engine) Asset(id common.Address) (*token.Ledger, bool) {
	ledger, ok := e.Assets[id]
	return ledger, ok
}

func assetKey(id common.Address) []byte {
	return ethcrypto.Keccak256(append([]byte("lending/asset/"), id.Bytes()...))
}

// Save persists registry, markets, prices and asset ledgers.
func (e *Engine) Save(db storage.Database) (common.Hash, error) {
	root, err := e.save(db)
	e.metrics.ObserveSnapshot("save", err)
	return root, err
}

func (e *Engine) save(db storage.Database) (common.Hash, error) {
	for _, market := range e.Markets {
		if err := e.Assets[market.ID()].Save(db, assetKey(market.ID())); err != nil {
			return common.Hash{}, err
		}
	}
	if err := e.Oracle.Save(db); err != nil {
		return common.Hash{}, err
	}
	return e.Registry.SaveSnapshot(db)
}

// Load restores state written by Save. It reports false when db is empty.
func (e *Engine) Load(db storage.Database) (bool, error) {
	ok, err := e.load(db)
	e.metrics.ObserveSnapshot("load", err)
	return ok, err
}

// load decodes prices and ledgers before the registry snapshot is applied, so
// a corrupt record leaves the engine untouched.
func (e *Engine) load(db storage.Database) (bool, error) {
	prices, havePrices, err := oracle.ReadPrices(db)
	if err != nil {
		return false, err
	}
	ledgers := make(map[common.Address]*token.Snapshot, len(e.Markets))
	for _, market := range e.Markets {
		snap, ok, err := e.Assets[market.ID()].ReadSnapshot(db, assetKey(market.ID()))
		if err != nil {
			return false, err
		}
		if ok {
			ledgers[market.ID()] = snap
		}
	}
	ok, err := e.Registry.LoadSnapshot(db)
	if err != nil || !ok {
		return ok, err
	}
	if havePrices {
		e.Oracle.Restore(prices)
	}
	for id, snap := range ledgers {
		e.Assets[id].Restore(snap)
	}
	return true, nil
}

// AdvanceClock moves the registry clock forward to height. Lower heights are
// ignored so a restored snapshot never observes time running backwards.
func (e *Engine) AdvanceClock(height uint64) bool {
	if height <= e.Registry.BlockHeight() {
		return false
	}
	e.Registry.SetBlockHeight(height)
	return true
}

// Liquidity pairs the signed liquidity with its components.
type Liquidity struct {
	Collateral *uint256.Int
	Debt       *uint256.Int
	Shortfall  bool
}

// AccountLiquidity wraps the registry computation for the API layer.
func (e *Engine) AccountLiquidity(account common.Address) (Liquidity, error) {
	detail, err := e.Registry.AccountLiquidityDetail(account)
	if err != nil {
		return Liquidity{}, err
	}
	return Liquidity{Collateral: detail.CollateralValue, Debt: detail.DebtValue, Shortfall: detail.Shortfall()}, nil
}
