package market

import (
	"BeliefMarket/internal/apperr"
	"BeliefMarket/internal/umath"
)

// Pure accounting functions. All of them operate on snapshotted pool/share
// values and have no side effects; the engine decides what to commit.

const feeDenominator = 10_000

// Fee split percentages. The platform share is derived as the remainder so
// the three shares always sum exactly to the input.
const (
	feeCreatorPercent = 80
	feeInvitorPercent = 10
)

// Odds returns the implied probability of outcome i as a whole percentage:
// pool[i] * 100 / totalPool. An empty market has no odds; the defined result
// is 0, not an error.
func Odds(pools []uint64, i int) uint64 {
	if i < 0 || i >= len(pools) {
		return 0
	}
	total, ok := umath.SumSlice(pools)
	if !ok || total == 0 {
		return 0
	}
	pct, _ := umath.MulDiv(pools[i], 100, total)
	return pct
}

// BuyQuote is the numeric effect of a buy before it is committed.
type BuyQuote struct {
	Fee    uint64
	Net    uint64
	Shares uint64
}

// QuoteBuy prices a purchase against the current pool state.
//
// The price is the pre-trade average cost basis floor(pool/shares), not a
// marginal curve. The first buyer on an outcome bootstraps at 1 share per
// currency unit.
func QuoteBuy(amountIn, outcomePool, outcomeShares uint64, feeBps uint16) (BuyQuote, error) {
	if amountIn == 0 {
		return BuyQuote{}, apperr.ErrInvalidAmount
	}
	fee, ok := umath.MulDiv(amountIn, uint64(feeBps), feeDenominator)
	if !ok {
		return BuyQuote{}, apperr.ErrArithmeticOverflow
	}
	net, ok := umath.Sub(amountIn, fee)
	if !ok {
		return BuyQuote{}, apperr.ErrArithmeticOverflow
	}

	var shares uint64
	if outcomeShares == 0 {
		shares = net
	} else {
		price, ok := umath.Div(outcomePool, outcomeShares)
		if !ok || price == 0 {
			return BuyQuote{}, apperr.ErrMarketCalculationError
		}
		shares, _ = umath.Div(net, price)
	}
	if shares == 0 {
		return BuyQuote{}, apperr.ErrInvalidAmount
	}
	return BuyQuote{Fee: fee, Net: net, Shares: shares}, nil
}

// SellQuote is the numeric effect of a sale before it is committed.
type SellQuote struct {
	Gross uint64
	Fee   uint64
	Net   uint64
}

// QuoteSell prices a redemption of shares against the current pool state.
// Callers still verify the seller's balance and pool liquidity before
// committing.
func QuoteSell(sharesToSell, outcomePool, outcomeShares uint64, feeBps uint16) (SellQuote, error) {
	if sharesToSell == 0 {
		return SellQuote{}, apperr.ErrInvalidAmount
	}
	price, ok := umath.Div(outcomePool, outcomeShares)
	if !ok || price == 0 {
		return SellQuote{}, apperr.ErrMarketCalculationError
	}
	gross, ok := umath.Mul(sharesToSell, price)
	if !ok {
		return SellQuote{}, apperr.ErrArithmeticOverflow
	}
	fee, ok := umath.MulDiv(gross, uint64(feeBps), feeDenominator)
	if !ok {
		return SellQuote{}, apperr.ErrArithmeticOverflow
	}
	net, ok := umath.Sub(gross, fee)
	if !ok {
		return SellQuote{}, apperr.ErrArithmeticOverflow
	}
	return SellQuote{Gross: gross, Fee: fee, Net: net}, nil
}

// WinningsPerShare returns floor(totalPool / totalWinningShares). A resolved
// market with zero winning shares is degenerate but legal; the per-share
// payout is then 0 and the pool is handled by the resolution sweep.
func WinningsPerShare(totalPool, totalWinningShares uint64) uint64 {
	q, ok := umath.Div(totalPool, totalWinningShares)
	if !ok {
		return 0
	}
	return q
}

// FeeShares is a fee total split between the three recipients.
type FeeShares struct {
	Creator  uint64
	Invitor  uint64
	Platform uint64
}

// SplitFees divides accumulated fees 80/10/10 between creator, invitor, and
// platform. The platform absorbs the floor-rounding remainder, so
// Creator+Invitor+Platform == total exactly.
func SplitFees(total uint64) FeeShares {
	creator, _ := umath.MulDiv(total, feeCreatorPercent, 100)
	invitor, _ := umath.MulDiv(total, feeInvitorPercent, 100)
	return FeeShares{
		Creator:  creator,
		Invitor:  invitor,
		Platform: total - creator - invitor,
	}
}
