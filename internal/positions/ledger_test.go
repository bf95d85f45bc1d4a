package positions_test

import (
	"context"
	"errors"
	"testing"

	"BeliefMarket/internal/apperr"
	"BeliefMarket/internal/positions"
)

func TestMemoryLedger_AddSub(t *testing.T) {
	ctx := context.Background()
	l := positions.NewMemoryLedger()

	if err := l.Add(ctx, "alice", "mkt", 0, 100); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := l.Sub(ctx, "alice", "mkt", 0, 40); err != nil {
		t.Fatalf("sub: %v", err)
	}
	bal, err := l.Balance(ctx, "alice", "mkt", 0)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 60 {
		t.Errorf("balance: got %d, want 60", bal)
	}
}

func TestMemoryLedger_SubBelowZero(t *testing.T) {
	ctx := context.Background()
	l := positions.NewMemoryLedger()
	_ = l.Add(ctx, "alice", "mkt", 1, 10)

	err := l.Sub(ctx, "alice", "mkt", 1, 11)
	if !errors.Is(err, apperr.ErrInsufficientShares) {
		t.Errorf("got %v, want ErrInsufficientShares", err)
	}
	bal, _ := l.Balance(ctx, "alice", "mkt", 1)
	if bal != 10 {
		t.Errorf("failed sub changed balance: %d", bal)
	}
}

func TestMemoryLedger_OutcomesIndependent(t *testing.T) {
	ctx := context.Background()
	l := positions.NewMemoryLedger()
	_ = l.Add(ctx, "alice", "mkt", 0, 5)
	_ = l.Add(ctx, "alice", "mkt", 1, 7)

	b0, _ := l.Balance(ctx, "alice", "mkt", 0)
	b1, _ := l.Balance(ctx, "alice", "mkt", 1)
	if b0 != 5 || b1 != 7 {
		t.Errorf("got %d/%d, want 5/7", b0, b1)
	}
}
