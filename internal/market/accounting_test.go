package market_test

import (
	"errors"
	"math"
	"testing"

	"BeliefMarket/internal/apperr"
	"BeliefMarket/internal/market"
)

// Bootstrap purchase: first buyer mints one share per unit of net currency.
func TestQuoteBuy_Bootstrap(t *testing.T) {
	q, err := market.QuoteBuy(100_000_000, 0, 0, 250)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Fee != 2_500_000 {
		t.Errorf("fee: got %d, want 2_500_000", q.Fee)
	}
	if q.Net != 97_500_000 {
		t.Errorf("net: got %d, want 97_500_000", q.Net)
	}
	if q.Shares != 97_500_000 {
		t.Errorf("shares: got %d, want 97_500_000", q.Shares)
	}
}

func TestQuoteBuy_ExistingPool(t *testing.T) {
	// price = floor(500M / 250M) = 2
	q, err := market.QuoteBuy(10_000, 500_000_000, 250_000_000, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Fee != 100 || q.Net != 9_900 {
		t.Errorf("fee/net: got %d/%d, want 100/9900", q.Fee, q.Net)
	}
	if q.Shares != 4_950 {
		t.Errorf("shares: got %d, want 4950", q.Shares)
	}
}

func TestQuoteBuy_ZeroAmount(t *testing.T) {
	_, err := market.QuoteBuy(0, 0, 0, 100)
	if !errors.Is(err, apperr.ErrInvalidAmount) {
		t.Errorf("got %v, want ErrInvalidAmount", err)
	}
}

// When pool < shares the average price floors to zero and share issuance is
// undefined.
func TestQuoteBuy_PriceFloorsToZero(t *testing.T) {
	_, err := market.QuoteBuy(1_000, 5, 10, 100)
	if !errors.Is(err, apperr.ErrMarketCalculationError) {
		t.Errorf("got %v, want ErrMarketCalculationError", err)
	}
}

// Net smaller than the share price mints zero shares; the trade is rejected
// rather than burning the buyer's funds.
func TestQuoteBuy_DustAmount(t *testing.T) {
	_, err := market.QuoteBuy(1, 500_000_000, 250_000_000, 100)
	if !errors.Is(err, apperr.ErrInvalidAmount) {
		t.Errorf("got %v, want ErrInvalidAmount", err)
	}
}

func TestQuoteSell(t *testing.T) {
	// price = 2; gross = 50M; fee = 0.5M at 100 bps
	q, err := market.QuoteSell(25_000_000, 500_000_000, 250_000_000, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Gross != 50_000_000 {
		t.Errorf("gross: got %d, want 50_000_000", q.Gross)
	}
	if q.Fee != 500_000 {
		t.Errorf("fee: got %d, want 500_000", q.Fee)
	}
	if q.Net != 49_500_000 {
		t.Errorf("net: got %d, want 49_500_000", q.Net)
	}
}

func TestQuoteSell_NoShares(t *testing.T) {
	_, err := market.QuoteSell(10, 0, 0, 100)
	if !errors.Is(err, apperr.ErrMarketCalculationError) {
		t.Errorf("got %v, want ErrMarketCalculationError", err)
	}
}

func TestQuoteSell_Overflow(t *testing.T) {
	_, err := market.QuoteSell(math.MaxUint64, math.MaxUint64, 1, 100)
	if !errors.Is(err, apperr.ErrArithmeticOverflow) {
		t.Errorf("got %v, want ErrArithmeticOverflow", err)
	}
}

func TestWinningsPerShare(t *testing.T) {
	if got := market.WinningsPerShare(1_000_000_000, 300_000_000); got != 3 {
		t.Errorf("got %d, want 3", got)
	}
	if got := market.WinningsPerShare(1_000_000_000, 0); got != 0 {
		t.Errorf("zero winning shares: got %d, want 0", got)
	}
}

func TestSplitFees_Exact(t *testing.T) {
	totals := []uint64{0, 1, 7, 99, 100, 101, 12_345_678, math.MaxUint64}
	for _, total := range totals {
		s := market.SplitFees(total)
		if s.Creator+s.Invitor+s.Platform != total {
			t.Errorf("total %d: shares %d+%d+%d do not sum exactly",
				total, s.Creator, s.Invitor, s.Platform)
		}
	}
	s := market.SplitFees(1_000)
	if s.Creator != 800 || s.Invitor != 100 || s.Platform != 100 {
		t.Errorf("1000: got %d/%d/%d, want 800/100/100", s.Creator, s.Invitor, s.Platform)
	}
}

func TestOdds_EmptyPool(t *testing.T) {
	if got := market.Odds([]uint64{0, 0}, 0); got != 0 {
		t.Errorf("empty pool odds: got %d, want 0", got)
	}
}

func TestOdds_Normalization(t *testing.T) {
	pools := []uint64{600_000_000, 300_000_000, 100_000_001}
	var sum uint64
	for i := range pools {
		sum += market.Odds(pools, i)
	}
	// Floor rounding may lose up to len(pools)-1 percentage points.
	if sum > 100 || sum < 100-uint64(len(pools)-1) {
		t.Errorf("odds sum %d outside floor tolerance of 100", sum)
	}
}
