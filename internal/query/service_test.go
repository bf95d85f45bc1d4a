package query

import (
	"context"
	"testing"
	"time"

	"BeliefMarket/internal/market"
	"BeliefMarket/internal/positions"
	"BeliefMarket/internal/store"
)

func TestOddsPercent(t *testing.T) {
	cases := []struct {
		pools []uint64
		i     int
		want  string
	}{
		{[]uint64{600, 400}, 0, "60.00"},
		{[]uint64{600, 400}, 1, "40.00"},
		{[]uint64{1, 2}, 0, "33.33"},
		{[]uint64{0, 0}, 0, "0.00"},
		{[]uint64{100}, 3, "0.00"},
	}
	for _, tc := range cases {
		if got := oddsPercent(tc.pools, tc.i); got != tc.want {
			t.Errorf("oddsPercent(%v, %d) = %s, want %s", tc.pools, tc.i, got, tc.want)
		}
	}
}

func TestMarketReadModel(t *testing.T) {
	st := store.New()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	resolveAt := now.Add(24 * time.Hour)
	key := store.MarketKey("alice", resolveAt)

	err := st.Update(store.Scope{Market: key}, func(tx *store.Tx) error {
		m := market.New(key, "alice", "", 2, []string{"yes", "no"}, nil, 100, resolveAt, now)
		if err := tx.StageMarket(m); err != nil {
			return err
		}
		tx.Market.OutcomePools = []uint64{600, 400}
		tx.Market.OutcomeShares = []uint64{300, 400}
		return nil
	})
	if err != nil {
		t.Fatalf("seed market: %v", err)
	}

	pos := positions.NewMemoryLedger()
	if err := pos.Add(context.Background(), "bob", key, 0, 300); err != nil {
		t.Fatalf("seed position: %v", err)
	}

	svc := NewService(st, pos)
	resp, err := svc.Market(key, now)
	if err != nil {
		t.Fatalf("Market: %v", err)
	}
	if resp.TotalPool != 1000 {
		t.Errorf("total pool = %d, want 1000", resp.TotalPool)
	}
	if resp.Outcomes[0].Odds != "60.00" || resp.Outcomes[1].Odds != "40.00" {
		t.Errorf("odds = %s/%s", resp.Outcomes[0].Odds, resp.Outcomes[1].Odds)
	}
	if resp.Phase != "Open" {
		t.Errorf("phase = %s, want Open", resp.Phase)
	}

	held, err := svc.Positions(context.Background(), "bob", key)
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(held) != 1 || held[0].Shares != 300 || held[0].Label != "yes" {
		t.Errorf("positions = %+v", held)
	}
}
