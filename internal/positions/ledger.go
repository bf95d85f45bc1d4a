package positions

import (
	"context"
	"fmt"
	"sync"

	"BeliefMarket/internal/apperr"
	"BeliefMarket/internal/umath"
)

// Ledger tracks each user's per-outcome share balance per market. The engine
// treats it as the external truth for sell/redeem balance checks: shares are
// added after a buy commits and removed before a sell/redeem pays out.
type Ledger interface {
	Balance(ctx context.Context, user, marketKey string, outcome uint8) (uint64, error)
	Add(ctx context.Context, user, marketKey string, outcome uint8, shares uint64) error
	Sub(ctx context.Context, user, marketKey string, outcome uint8, shares uint64) error
}

type posKey struct {
	user    string
	market  string
	outcome uint8
}

// MemoryLedger is the in-process Ledger used by tests and single-node runs.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[posKey]uint64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[posKey]uint64)}
}

func (l *MemoryLedger) Balance(_ context.Context, user, marketKey string, outcome uint8) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[posKey{user, marketKey, outcome}], nil
}

func (l *MemoryLedger) Add(_ context.Context, user, marketKey string, outcome uint8, shares uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := posKey{user, marketKey, outcome}
	next, ok := umath.Add(l.balances[key], shares)
	if !ok {
		return apperr.ErrArithmeticOverflow
	}
	l.balances[key] = next
	return nil
}

func (l *MemoryLedger) Sub(_ context.Context, user, marketKey string, outcome uint8, shares uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := posKey{user, marketKey, outcome}
	next, ok := umath.Sub(l.balances[key], shares)
	if !ok {
		return apperr.ErrInsufficientShares
	}
	l.balances[key] = next
	return nil
}

func fieldFor(outcome uint8) string {
	return fmt.Sprintf("outcome:%d", outcome)
}
