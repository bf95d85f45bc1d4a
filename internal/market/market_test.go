package market_test

import (
	"errors"
	"testing"
	"time"

	"BeliefMarket/internal/apperr"
	"BeliefMarket/internal/market"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func validResolveAt() time.Time { return testNow.Add(24 * time.Hour) }

func TestValidateParams(t *testing.T) {
	labels := []string{"Yes", "No"}

	tests := []struct {
		name      string
		outcomes  uint8
		labels    []string
		tags      []string
		feeBps    uint16
		resolveAt time.Time
		wantErr   error
	}{
		{"valid", 2, labels, nil, 250, validResolveAt(), nil},
		{"too few outcomes", 1, []string{"Yes"}, nil, 250, validResolveAt(), apperr.ErrInvalidOutcomeCount},
		{"too many outcomes", 11, labels, nil, 250, validResolveAt(), apperr.ErrInvalidOutcomeCount},
		{"label mismatch", 3, labels, nil, 250, validResolveAt(), apperr.ErrOutcomeCountMismatch},
		{"zero fee", 2, labels, nil, 0, validResolveAt(), apperr.ErrInvalidTradingFee},
		{"fee too high", 2, labels, nil, 501, validResolveAt(), apperr.ErrInvalidTradingFee},
		{"resolve too soon", 2, labels, nil, 250, testNow.Add(30 * time.Second), apperr.ErrInvalidResolutionTime},
		{"resolve too late", 2, labels, nil, 250, testNow.Add(11 * 365 * 24 * time.Hour), apperr.ErrInvalidResolutionTime},
		{"label too long", 2, []string{"Yes", "ThisLabelIsWayTooLongFor"}, nil, 250, validResolveAt(), apperr.ErrStringTooLong},
		{"empty label", 2, []string{"Yes", ""}, nil, 250, validResolveAt(), apperr.ErrStringTooLong},
		{"too many tags", 2, labels, []string{"a", "b", "c", "d", "e", "f"}, 250, validResolveAt(), apperr.ErrStringTooLong},
		{"tag too long", 2, labels, []string{"averyveryverylongtag"}, 250, validResolveAt(), apperr.ErrStringTooLong},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := market.ValidateParams(tc.outcomes, tc.labels, tc.tags, tc.feeBps, tc.resolveAt, testNow)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func newTestMarket(t *testing.T) *market.Market {
	t.Helper()
	return market.New("mkt-1", "alice", "bob", 2, []string{"Yes", "No"}, nil, 250, validResolveAt(), testNow)
}

func TestPhaseAt(t *testing.T) {
	m := newTestMarket(t)

	if p := m.PhaseAt(testNow); p != market.PhaseOpen {
		t.Errorf("before resolveAt: got %v, want Open", p)
	}
	if p := m.PhaseAt(m.ResolveAt.Add(time.Minute)); p != market.PhaseAwaitingResolution {
		t.Errorf("past resolveAt unresolved: got %v, want AwaitingResolution", p)
	}

	m.Resolved = true
	m.WinningOutcome = 0
	if p := m.PhaseAt(m.ResolveAt.Add(time.Minute)); p != market.PhaseResolved {
		t.Errorf("resolved: got %v, want Resolved", p)
	}

	m.CreatorPegClaimed = true
	if p := m.PhaseAt(m.ResolveAt.Add(time.Minute)); p != market.PhaseDrained {
		t.Errorf("fully paid out: got %v, want Drained", p)
	}
}

func TestClone_Independent(t *testing.T) {
	m := newTestMarket(t)
	m.OutcomePools[0] = 100

	c := m.Clone()
	c.OutcomePools[0] = 999
	c.OutcomeLabels[1] = "Maybe"

	if m.OutcomePools[0] != 100 {
		t.Error("clone mutation leaked into pool slice")
	}
	if m.OutcomeLabels[1] != "No" {
		t.Error("clone mutation leaked into label slice")
	}
}

func TestDrainPools_WinningFirst(t *testing.T) {
	m := newTestMarket(t)
	m.OutcomePools = []uint64{600_000_000, 400_000_000}

	if err := m.DrainPools(0, 900_000_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.OutcomePools[0] != 0 {
		t.Errorf("winning pool: got %d, want 0", m.OutcomePools[0])
	}
	if m.OutcomePools[1] != 100_000_000 {
		t.Errorf("losing pool: got %d, want 100_000_000", m.OutcomePools[1])
	}
}

func TestDrainPools_InsufficientLiquidity(t *testing.T) {
	m := newTestMarket(t)
	m.OutcomePools = []uint64{10, 20}

	err := m.DrainPools(0, 31)
	if !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Errorf("got %v, want ErrInsufficientFunds", err)
	}
}

func TestCheckInvariants(t *testing.T) {
	m := newTestMarket(t)
	if err := m.CheckInvariants(); err != nil {
		t.Fatalf("fresh market violates invariants: %v", err)
	}

	m.OutcomePools = m.OutcomePools[:1]
	if err := m.CheckInvariants(); err == nil {
		t.Error("truncated pools should violate invariants")
	}
}
