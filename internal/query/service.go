package query

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"BeliefMarket/internal/market"
	"BeliefMarket/internal/positions"
	"BeliefMarket/internal/store"
)

// Service serves the read-only API surface from authoritative store
// snapshots. Writes never go through here.
type Service struct {
	store *store.Store
	pos   positions.Ledger
}

func NewService(st *store.Store, pos positions.Ledger) *Service {
	return &Service{store: st, pos: pos}
}

// oddsPercent formats an outcome's pool weight as a decimal percentage with
// two fractional digits, sidestepping the integer-percent truncation of the
// on-ledger odds helper.
func oddsPercent(pools []uint64, i int) string {
	var total decimal.Decimal
	for _, p := range pools {
		total = total.Add(decimal.NewFromUint64(p))
	}
	if total.IsZero() || i < 0 || i >= len(pools) {
		return "0.00"
	}
	return decimal.NewFromUint64(pools[i]).
		Mul(decimal.NewFromInt(100)).
		Div(total).
		StringFixed(2)
}

func marketResponse(m *market.Market, now time.Time) *MarketResponse {
	outcomes := make([]OutcomeResponse, m.NumOutcomes)
	for i := range outcomes {
		outcomes[i] = OutcomeResponse{
			Index:  uint8(i),
			Label:  m.OutcomeLabels[i],
			Pool:   m.OutcomePools[i],
			Shares: m.OutcomeShares[i],
			Odds:   oddsPercent(m.OutcomePools, i),
		}
	}

	resp := &MarketResponse{
		Key:           m.Key,
		Creator:       m.Creator,
		Invitor:       m.Invitor,
		NumOutcomes:   m.NumOutcomes,
		Outcomes:      outcomes,
		Tags:          m.Tags,
		TradingFeeBps: m.TradingFeeBps,
		Phase:         m.PhaseAt(now).String(),
		Resolved:      m.Resolved,
		CreatorPeg:    m.CreatorPegAmount,
		PegClaimed:    m.CreatorPegClaimed,
		ResolveAt:     m.ResolveAt,
		CreatedAt:     m.CreatedAt,
	}
	if m.Resolved {
		w := m.WinningOutcome
		resp.WinningOutcome = &w
	}
	// Totals are display-only; saturating on overflow beats failing a read.
	for i := range m.OutcomePools {
		resp.TotalPool += m.OutcomePools[i]
		resp.AccumulatedFees += m.AccumulatedFees[i]
	}
	return resp
}

// Market returns the read model for one market.
func (s *Service) Market(key string, now time.Time) (*MarketResponse, error) {
	m, err := s.store.Market(key)
	if err != nil {
		return nil, err
	}
	return marketResponse(m, now), nil
}

// Markets returns read models for every market, newest first.
func (s *Service) Markets(now time.Time) []*MarketResponse {
	ms := s.store.Markets()
	sort.Slice(ms, func(i, j int) bool { return ms[i].CreatedAt.After(ms[j].CreatedAt) })

	out := make([]*MarketResponse, len(ms))
	for i, m := range ms {
		out[i] = marketResponse(m, now)
	}
	return out
}

// Positions returns a user's nonzero holdings in one market.
func (s *Service) Positions(ctx context.Context, user, marketKey string) ([]PositionResponse, error) {
	m, err := s.store.Market(marketKey)
	if err != nil {
		return nil, err
	}

	var out []PositionResponse
	for i := uint8(0); i < m.NumOutcomes; i++ {
		shares, err := s.pos.Balance(ctx, user, marketKey, i)
		if err != nil {
			return nil, err
		}
		if shares == 0 {
			continue
		}
		out = append(out, PositionResponse{
			MarketKey: marketKey,
			Outcome:   i,
			Label:     m.OutcomeLabels[i],
			Shares:    shares,
		})
	}
	return out, nil
}

// Profile returns the public view of a user profile.
func (s *Service) Profile(owner string) (*ProfileResponse, error) {
	p, err := s.store.Profile(owner)
	if err != nil {
		return nil, err
	}
	return &ProfileResponse{
		Owner:        p.Owner,
		ReferralCode: p.ReferralCode,
		Invitor:      p.Invitor,
	}, nil
}
