package custody_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"BeliefMarket/internal/apperr"
	"BeliefMarket/internal/custody"
)

func TestMemoryVault_Transfer(t *testing.T) {
	v := custody.NewMemoryVault()
	v.Mint("alice", 100)

	if err := v.Transfer(context.Background(), "alice", "bob", 60); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if v.Balance("alice") != 40 || v.Balance("bob") != 60 {
		t.Errorf("balances: alice=%d bob=%d, want 40/60", v.Balance("alice"), v.Balance("bob"))
	}
}

func TestMemoryVault_InsufficientFunds(t *testing.T) {
	v := custody.NewMemoryVault()
	v.Mint("alice", 10)

	err := v.Transfer(context.Background(), "alice", "bob", 11)
	if !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Errorf("got %v, want ErrInsufficientFunds", err)
	}
	if v.Balance("alice") != 10 || v.Balance("bob") != 0 {
		t.Error("failed transfer moved funds")
	}
}

func TestApply_CompensatesOnFailure(t *testing.T) {
	v := custody.NewMemoryVault()
	v.Mint("payer", 100)

	legs := []custody.Leg{
		{From: "payer", To: "a", Amount: 50},
		{From: "payer", To: "b", Amount: 40},
		{From: "payer", To: "c", Amount: 20}, // fails: only 10 left
	}

	err := custody.Apply(context.Background(), v, legs, zerolog.Nop())
	if !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}

	if v.Balance("payer") != 100 || v.Balance("a") != 0 || v.Balance("b") != 0 {
		t.Errorf("compensation incomplete: payer=%d a=%d b=%d",
			v.Balance("payer"), v.Balance("a"), v.Balance("b"))
	}
}

func TestApply_SkipsZeroLegs(t *testing.T) {
	v := custody.NewMemoryVault()
	v.Mint("payer", 10)

	legs := []custody.Leg{
		{From: "payer", To: "a", Amount: 0},
		{From: "payer", To: "b", Amount: 10},
	}
	if err := custody.Apply(context.Background(), v, legs, zerolog.Nop()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if v.Balance("b") != 10 {
		t.Errorf("b=%d, want 10", v.Balance("b"))
	}
}

// blockedReturnVault refuses every credit back to the payer, so reversals
// cannot succeed.
type blockedReturnVault struct {
	*custody.MemoryVault
	payer string
}

func (v blockedReturnVault) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if to == v.payer {
		return apperr.ErrInsufficientFunds
	}
	return v.MemoryVault.Transfer(ctx, from, to, amount)
}

func TestApply_LogsFailedCompensation(t *testing.T) {
	mem := custody.NewMemoryVault()
	mem.Mint("payer", 50)
	v := blockedReturnVault{MemoryVault: mem, payer: "payer"}

	var buf bytes.Buffer
	log := zerolog.New(&buf)

	legs := []custody.Leg{
		{From: "payer", To: "a", Amount: 50},
		{From: "payer", To: "b", Amount: 10}, // fails: payer is empty
	}
	err := custody.Apply(context.Background(), v, legs, log)
	if !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}

	out := buf.String()
	if !strings.Contains(out, "compensation transfer failed") {
		t.Errorf("failed reversal not logged: %q", out)
	}
	if !strings.Contains(out, `"amount":50`) || !strings.Contains(out, `"to":"payer"`) {
		t.Errorf("log misses leg details: %q", out)
	}
}
