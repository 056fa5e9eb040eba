package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	lendingerrors "lendingmarket/core/errors"
	"lendingmarket/native/lending"
	"lendingmarket/observability/logging"
	telemetry "lendingmarket/observability/otel"
	"lendingmarket/services/lendingd/engine"
)

// Config wires the HTTP surface.
type Config struct {
	Engine    *engine.Engine
	APITokens []string
	RateLimit RateLimit
	Logger    *slog.Logger
}

var errTooManyRequests = errors.New("rate limit exceeded")

type server struct {
	engine *engine.Engine
	tokens [][]byte
	logger *slog.Logger
}

// New returns the daemon's HTTP handler: unauthenticated /healthz and /metrics,
// and bearer-token protected read-only views under /v1.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("server: engine required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{engine: cfg.Engine, logger: logger}
	for _, token := range cfg.APITokens {
		if trimmed := strings.TrimSpace(token); trimmed != "" {
			s.tokens = append(s.tokens, []byte(trimmed))
		}
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		if cfg.RateLimit.Enabled() {
			r.Use(newRateLimiter(cfg.RateLimit).middleware)
		}
		r.Use(s.authenticate)
		r.Get("/markets", s.listMarkets)
		r.Get("/markets/{id}", s.getMarket)
		r.Get("/markets/{id}/accounts/{addr}", s.getPosition)
		r.Get("/accounts/{addr}/liquidity", s.getLiquidity)
	})
	return otelhttp.NewHandler(r, "lendingd"), nil
}

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// requestID propagates a caller supplied request id or assigns a fresh one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"requestID", requestIDFrom(r.Context()),
			logging.SafeAttr("authorization", r.Header.Get("Authorization")),
		)
	})
}

func (s *server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r.Header.Get("Authorization"))
		if token == "" {
			writeJSONError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		for _, allowed := range s.tokens {
			if subtle.ConstantTimeCompare(allowed, []byte(token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeJSONError(w, http.StatusUnauthorized, errors.New("invalid token"))
	})
}

func extractBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

type marketView struct {
	ID                 string `json:"id"`
	Symbol             string `json:"symbol"`
	Underlying         string `json:"underlying"`
	Listed             bool   `json:"listed"`
	CollateralFactor   string `json:"collateralFactor"`
	TotalShares        string `json:"totalShares"`
	Cash               string `json:"cash"`
	TotalBorrows       string `json:"totalBorrows"`
	TotalReserves      string `json:"totalReserves"`
	ReserveFactor      string `json:"reserveFactor"`
	BorrowIndex        string `json:"borrowIndex"`
	ExchangeRate       string `json:"exchangeRate"`
	BorrowRatePerBlock string `json:"borrowRatePerBlock"`
	SupplyRatePerBlock string `json:"supplyRatePerBlock"`
	AccrualBlock       uint64 `json:"accrualBlock"`
	Price              string `json:"price,omitempty"`
}

func (s *server) describe(m *lending.Market) (marketView, error) {
	state := m.State()
	rate, err := m.ExchangeRate()
	if err != nil {
		return marketView{}, err
	}
	borrowRate, err := m.BorrowRatePerBlock()
	if err != nil {
		return marketView{}, err
	}
	supplyRate, err := m.SupplyRatePerBlock()
	if err != nil {
		return marketView{}, err
	}
	view := marketView{
		ID:                 m.ID().Hex(),
		Symbol:             state.Symbol,
		Underlying:         state.Underlying.Hex(),
		Listed:             m.Listed(),
		CollateralFactor:   m.CollateralFactor().Dec(),
		TotalShares:        state.TotalShares.Dec(),
		Cash:               state.Cash.Dec(),
		TotalBorrows:       state.TotalBorrows.Dec(),
		TotalReserves:      state.TotalReserves.Dec(),
		ReserveFactor:      state.ReserveFactor.Dec(),
		BorrowIndex:        state.BorrowIndex.Dec(),
		ExchangeRate:       rate.Dec(),
		BorrowRatePerBlock: borrowRate.Dec(),
		SupplyRatePerBlock: supplyRate.Dec(),
		AccrualBlock:       state.AccrualBlock,
	}
	if price, err := s.engine.Oracle.GetPrice(m.ID()); err == nil {
		view.Price = price.Dec()
	}
	return view, nil
}

func (s *server) listMarkets(w http.ResponseWriter, r *http.Request) {
	ids := s.engine.Registry.Markets()
	out := make([]marketView, 0, len(ids))
	for _, id := range ids {
		market, ok := s.engine.Market(id)
		if !ok {
			continue
		}
		view, err := s.describe(market)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"blockHeight": s.engine.Registry.BlockHeight(),
		"markets":     out,
	})
}

func (s *server) marketParam(w http.ResponseWriter, r *http.Request) (*lending.Market, bool) {
	id, ok := parseAddress(chi.URLParam(r, "id"))
	if !ok {
		writeJSONError(w, http.StatusBadRequest, errors.New("invalid market id"))
		return nil, false
	}
	market, ok := s.engine.Market(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, lendingerrors.ErrUnknownMarket)
		return nil, false
	}
	return market, true
}

func (s *server) getMarket(w http.ResponseWriter, r *http.Request) {
	market, ok := s.marketParam(w, r)
	if !ok {
		return
	}
	view, err := s.describe(market)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type positionView struct {
	Market        string `json:"market"`
	Account       string `json:"account"`
	Shares        string `json:"shares"`
	Underlying    string `json:"underlying"`
	BorrowBalance string `json:"borrowBalance"`
	ExchangeRate  string `json:"exchangeRate"`
	Collateral    bool   `json:"collateral"`
	WalletBalance string `json:"walletBalance"`
}

func (s *server) getPosition(w http.ResponseWriter, r *http.Request) {
	market, ok := s.marketParam(w, r)
	if !ok {
		return
	}
	account, ok := parseAddress(chi.URLParam(r, "addr"))
	if !ok {
		writeJSONError(w, http.StatusBadRequest, errors.New("invalid account address"))
		return
	}
	_, span := telemetry.StartSpan(r.Context(), "lending.account_position",
		telemetry.MarketKey.String(market.ID().Hex()),
		telemetry.AccountKey.String(account.Hex()),
		telemetry.RequestIDKey.String(requestIDFrom(r.Context())),
	)
	defer span.End()

	snap, err := market.AccountSnapshot(account)
	if err != nil {
		telemetry.Fail(span, err)
		writeEngineError(w, err)
		return
	}
	underlying, err := market.BalanceOfUnderlying(account)
	if err != nil {
		telemetry.Fail(span, err)
		writeEngineError(w, err)
		return
	}
	collateral := false
	for _, id := range s.engine.Registry.AssetsIn(account) {
		if id == market.ID() {
			collateral = true
			break
		}
	}
	wallet := new(uint256.Int)
	if ledger, ok := s.engine.Asset(market.ID()); ok {
		wallet = ledger.BalanceOf(account)
	}
	writeJSON(w, http.StatusOK, positionView{
		Market:        market.ID().Hex(),
		Account:       account.Hex(),
		Shares:        snap.Shares.Dec(),
		Underlying:    underlying.Dec(),
		BorrowBalance: snap.BorrowBalance.Dec(),
		ExchangeRate:  snap.ExchangeRate.Dec(),
		Collateral:    collateral,
		WalletBalance: wallet.Dec(),
	})
}

type liquidityView struct {
	Account         string   `json:"account"`
	Liquidity       string   `json:"liquidity"`
	CollateralValue string   `json:"collateralValue"`
	DebtValue       string   `json:"debtValue"`
	Shortfall       bool     `json:"shortfall"`
	Entered         []string `json:"entered"`
	Borrowed        []string `json:"borrowed"`
}

func (s *server) getLiquidity(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddress(chi.URLParam(r, "addr"))
	if !ok {
		writeJSONError(w, http.StatusBadRequest, errors.New("invalid account address"))
		return
	}
	_, span := telemetry.StartSpan(r.Context(), "lending.account_liquidity",
		telemetry.AccountKey.String(account.Hex()),
		telemetry.RequestIDKey.String(requestIDFrom(r.Context())),
	)
	defer span.End()

	liq, err := s.engine.AccountLiquidity(account)
	if err != nil {
		telemetry.Fail(span, err)
		writeEngineError(w, err)
		return
	}
	net := new(uint256.Int)
	sign := ""
	if liq.Shortfall {
		net.Sub(liq.Debt, liq.Collateral)
		sign = "-"
	} else {
		net.Sub(liq.Collateral, liq.Debt)
	}
	writeJSON(w, http.StatusOK, liquidityView{
		Account:         account.Hex(),
		Liquidity:       sign + net.Dec(),
		CollateralValue: liq.Collateral.Dec(),
		DebtValue:       liq.Debt.Dec(),
		Shortfall:       liq.Shortfall,
		Entered:         hexList(s.engine.Registry.AssetsIn(account)),
		Borrowed:        hexList(s.engine.Registry.BorrowedIn(account)),
	})
}

func hexList(ids []common.Address) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Hex())
	}
	return out
}

func parseAddress(raw string) (common.Address, bool) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, lendingerrors.ErrPriceNotSet):
		status = http.StatusConflict
	case errors.Is(err, lendingerrors.ErrUnknownMarket):
		status = http.StatusNotFound
	}
	writeJSONError(w, status, err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}
