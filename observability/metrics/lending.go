package metrics

import (
	"errors"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	lendingerrors "lendingmarket/core/errors"
)

type LendingMetrics struct {
	actions       *prometheus.CounterVec
	cash          *prometheus.GaugeVec
	totalBorrows  *prometheus.GaugeVec
	totalReserves *prometheus.GaugeVec
	exchangeRate  *prometheus.GaugeVec
	snapshots     *prometheus.CounterVec
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

// Lending returns the process-wide lending collectors, registering them with
// the default prometheus registry on first use.
func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			actions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lending",
				Name:      "market_actions_total",
				Help:      "Market operations segmented by market, action and outcome.",
			}, []string{"market", "action", "outcome"}),
			cash: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lending",
				Name:      "market_cash",
				Help:      "Underlying held by the market, in base units.",
			}, []string{"market"}),
			totalBorrows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lending",
				Name:      "market_total_borrows",
				Help:      "Outstanding debt including accrued interest, in base units.",
			}, []string{"market"}),
			totalReserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lending",
				Name:      "market_total_reserves",
				Help:      "Protocol reserves carved out of accrued interest, in base units.",
			}, []string{"market"}),
			exchangeRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lending",
				Name:      "market_exchange_rate",
				Help:      "Underlying per share.",
			}, []string{"market"}),
			snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lending",
				Name:      "snapshots_total",
				Help:      "Snapshot saves and loads segmented by outcome.",
			}, []string{"op", "outcome"}),
		}
		prometheus.MustRegister(
			lendingRegistry.actions,
			lendingRegistry.cash,
			lendingRegistry.totalBorrows,
			lendingRegistry.totalReserves,
			lendingRegistry.exchangeRate,
			lendingRegistry.snapshots,
		)
	})
	return lendingRegistry
}

// Outcome maps an operation error onto a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, lendingerrors.ErrPriceNotSet):
		return "price_not_set"
	case errors.Is(err, lendingerrors.ErrBorrowNotAllowed),
		errors.Is(err, lendingerrors.ErrRedeemNotAllowed),
		errors.Is(err, lendingerrors.ErrExitNotAllowed):
		return "shortfall"
	case errors.Is(err, lendingerrors.ErrMarketNotListed):
		return "not_listed"
	case errors.Is(err, lendingerrors.ErrActionPaused):
		return "paused"
	case errors.Is(err, lendingerrors.ErrInsufficientCash):
		return "insufficient_cash"
	case errors.Is(err, lendingerrors.ErrNotAuthorized):
		return "unauthorized"
	default:
		return "error"
	}
}

func (m *LendingMetrics) ObserveAction(market, action string, err error) {
	if m == nil {
		return
	}
	market = strings.TrimSpace(market)
	if market == "" {
		market = "unknown"
	}
	m.actions.WithLabelValues(market, action, Outcome(err)).Inc()
}

func (m *LendingMetrics) SetMarketState(market string, cash, borrows, reserves, exchangeRate float64) {
	if m == nil {
		return
	}
	m.cash.WithLabelValues(market).Set(cash)
	m.totalBorrows.WithLabelValues(market).Set(borrows)
	m.totalReserves.WithLabelValues(market).Set(reserves)
	m.exchangeRate.WithLabelValues(market).Set(exchangeRate)
}

func (m *LendingMetrics) ObserveSnapshot(op string, err error) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(op, Outcome(err)).Inc()
}

// ActionCounter exposes the action counter for tests.
func (m *LendingMetrics) ActionCounter() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.actions
}

// CashGauge exposes the cash gauge for tests.
func (m *LendingMetrics) CashGauge() *prometheus.GaugeVec {
	if m == nil {
		return nil
	}
	return m.cash
}
