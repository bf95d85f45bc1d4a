package custody

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"BeliefMarket/internal/apperr"
	"BeliefMarket/internal/umath"
)

// Custody moves currency between accounts. Implementations must report
// success or failure synchronously and must never partially transfer; the
// engine commits a ledger mutation only after every transfer it depends on
// has succeeded.
type Custody interface {
	Transfer(ctx context.Context, from, to string, amount uint64) error
}

// Leg is one transfer in a multi-leg settlement.
type Leg struct {
	From   string
	To     string
	Amount uint64
}

// Apply executes the legs in order. When a leg fails, every previously
// applied leg is reversed before the error is returned, so the caller
// observes all-or-nothing semantics across the group. Zero-amount legs are
// skipped. A failed reversal leaves funds on the wrong account; it is
// reported leg by leg so an operator can reconcile by hand.
func Apply(ctx context.Context, c Custody, legs []Leg, log zerolog.Logger) error {
	for i, leg := range legs {
		if leg.Amount == 0 {
			continue
		}
		if err := c.Transfer(ctx, leg.From, leg.To, leg.Amount); err != nil {
			for j := i - 1; j >= 0; j-- {
				if legs[j].Amount == 0 {
					continue
				}
				if rbErr := c.Transfer(ctx, legs[j].To, legs[j].From, legs[j].Amount); rbErr != nil {
					log.Error().Err(rbErr).
						Str("from", legs[j].To).
						Str("to", legs[j].From).
						Uint64("amount", legs[j].Amount).
						Msg("compensation transfer failed, funds stranded")
				}
			}
			return err
		}
	}
	return nil
}

// MemoryVault is an in-process custody implementation used by tests and the
// single-node deployment. Accounts spring into existence at first credit.
type MemoryVault struct {
	mu       sync.Mutex
	balances map[string]uint64
}

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{balances: make(map[string]uint64)}
}

// Mint credits an account out of thin air. Test and deposit-boundary use only.
func (v *MemoryVault) Mint(account string, amount uint64) {
	v.mu.Lock()
	v.balances[account] += amount
	v.mu.Unlock()
}

// Balance returns the current balance of an account.
func (v *MemoryVault) Balance(account string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[account]
}

func (v *MemoryVault) Transfer(_ context.Context, from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	src, ok := umath.Sub(v.balances[from], amount)
	if !ok {
		return apperr.ErrInsufficientFunds
	}
	dst, ok := umath.Add(v.balances[to], amount)
	if !ok {
		return apperr.ErrArithmeticOverflow
	}
	v.balances[from] = src
	v.balances[to] = dst
	return nil
}
