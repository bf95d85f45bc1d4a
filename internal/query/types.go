package query

import "time"

// MarketResponse is the read model returned for a single market.
type MarketResponse struct {
	Key             string            `json:"key"`
	Creator         string            `json:"creator"`
	Invitor         string            `json:"invitor,omitempty"`
	NumOutcomes     uint8             `json:"num_outcomes"`
	Outcomes        []OutcomeResponse `json:"outcomes"`
	Tags            []string          `json:"tags,omitempty"`
	TradingFeeBps   uint16            `json:"trading_fee_bps"`
	Phase           string            `json:"phase"`
	Resolved        bool              `json:"resolved"`
	WinningOutcome  *uint8            `json:"winning_outcome,omitempty"`
	TotalPool       uint64            `json:"total_pool"`
	AccumulatedFees uint64            `json:"accumulated_fees"`
	CreatorPeg      uint64            `json:"creator_peg"`
	PegClaimed      bool              `json:"peg_claimed"`
	ResolveAt       time.Time         `json:"resolve_at"`
	CreatedAt       time.Time         `json:"created_at"`
}

// OutcomeResponse is one outcome's slice of the market.
type OutcomeResponse struct {
	Index  uint8  `json:"index"`
	Label  string `json:"label"`
	Pool   uint64 `json:"pool"`
	Shares uint64 `json:"shares"`
	Odds   string `json:"odds"` // decimal percentage, e.g. "60.00"
}

// PositionResponse is a user's holding on one outcome.
type PositionResponse struct {
	MarketKey string `json:"market_key"`
	Outcome   uint8  `json:"outcome"`
	Label     string `json:"label"`
	Shares    uint64 `json:"shares"`
}

// ProfileResponse is the public view of a user profile.
type ProfileResponse struct {
	Owner        string `json:"owner"`
	ReferralCode string `json:"referral_code"`
	Invitor      string `json:"invitor,omitempty"`
}
