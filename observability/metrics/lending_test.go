package metrics

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	lendingerrors "lendingmarket/core/errors"
)

func TestOutcomeLabels(t *testing.T) {
	cases := map[string]error{
		"ok":                nil,
		"price_not_set":     fmt.Errorf("wrapped: %w", lendingerrors.ErrPriceNotSet),
		"shortfall":         lendingerrors.ErrBorrowNotAllowed,
		"not_listed":        fmt.Errorf("%w: %w", lendingerrors.ErrCanNotMintTokens, lendingerrors.ErrMarketNotListed),
		"paused":            lendingerrors.ErrActionPaused,
		"insufficient_cash": lendingerrors.ErrInsufficientCash,
		"unauthorized":      lendingerrors.ErrNotAuthorized,
		"error":             lendingerrors.ErrMathOverflow,
	}
	for want, err := range cases {
		if got := Outcome(err); got != want {
			t.Fatalf("Outcome(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestObserveActionCounts(t *testing.T) {
	m := Lending()
	counter := m.ActionCounter().WithLabelValues("cTEST", "mint", "ok")
	before := testutil.ToFloat64(counter)
	m.ObserveAction("cTEST", "mint", nil)
	m.ObserveAction("cTEST", "mint", nil)
	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Fatalf("expected two observations, got %v", got)
	}

	m.SetMarketState("cTEST", 10, 2, 1, 0.02)
	if got := testutil.ToFloat64(m.CashGauge().WithLabelValues("cTEST")); got != 10 {
		t.Fatalf("cash gauge = %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *LendingMetrics
	m.ObserveAction("x", "mint", nil)
	m.SetMarketState("x", 1, 1, 1, 1)
	m.ObserveSnapshot("save", nil)
}
