package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type identifies a telemetry event. One event is emitted per successful
// mutating operation; failed operations emit nothing.
type Type int32

const (
	TypeMarketCreated Type = iota
	TypeSharesBought
	TypeSharesSold
	TypeMarketResolved
	TypeWinningsRedeemed
	TypeCreatorPegClaimed
	TypeFeesWithdrawn
	TypeProfileInitialized
	TypeInvitorSet
	TypePaused
	TypeUnpaused
)

func (t Type) String() string {
	switch t {
	case TypeMarketCreated:
		return "market_created"
	case TypeSharesBought:
		return "shares_bought"
	case TypeSharesSold:
		return "shares_sold"
	case TypeMarketResolved:
		return "market_resolved"
	case TypeWinningsRedeemed:
		return "winnings_redeemed"
	case TypeCreatorPegClaimed:
		return "creator_peg_claimed"
	case TypeFeesWithdrawn:
		return "fees_withdrawn"
	case TypeProfileInitialized:
		return "profile_initialized"
	case TypeInvitorSet:
		return "invitor_set"
	case TypePaused:
		return "paused"
	case TypeUnpaused:
		return "unpaused"
	default:
		return "unknown"
	}
}

// Envelope wraps one event with its identifying fields. Payload carries the
// operation-specific amounts, JSON-encodable.
type Envelope struct {
	EventID   uuid.UUID   `json:"event_id"`
	Type      Type        `json:"-"`
	TypeName  string      `json:"type"`
	MarketKey string      `json:"market_key,omitempty"`
	Actor     string      `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// NewEnvelope stamps a fresh envelope for an operation result.
func NewEnvelope(t Type, marketKey, actor string, at time.Time, payload interface{}) Envelope {
	return Envelope{
		EventID:   uuid.New(),
		Type:      t,
		TypeName:  t.String(),
		MarketKey: marketKey,
		Actor:     actor,
		Timestamp: at,
		Payload:   payload,
	}
}

// Payload shapes, one per event type.

type MarketCreated struct {
	Creator       string   `json:"creator"`
	NumOutcomes   uint8    `json:"num_outcomes"`
	OutcomeLabels []string `json:"outcome_labels"`
	TradingFeeBps uint16   `json:"trading_fee_bps"`
	ResolveAt     int64    `json:"resolve_at"`
}

type SharesBought struct {
	Buyer          string `json:"buyer"`
	OutcomeIndex   uint8  `json:"outcome_index"`
	AmountPaid     uint64 `json:"amount_paid"`
	Fee            uint64 `json:"fee"`
	SharesReceived uint64 `json:"shares_received"`
}

type SharesSold struct {
	Seller         string `json:"seller"`
	OutcomeIndex   uint8  `json:"outcome_index"`
	SharesSold     uint64 `json:"shares_sold"`
	Fee            uint64 `json:"fee"`
	AmountReceived uint64 `json:"amount_received"`
}

type MarketResolved struct {
	WinningOutcome uint8  `json:"winning_outcome"`
	SweptToFees    uint64 `json:"swept_to_fees,omitempty"`
}

type WinningsRedeemed struct {
	Winner         string `json:"winner"`
	SharesRedeemed uint64 `json:"shares_redeemed"`
	AmountRedeemed uint64 `json:"amount_redeemed"`
}

type CreatorPegClaimed struct {
	Creator string `json:"creator"`
	Amount  uint64 `json:"amount"`
}

type FeesWithdrawn struct {
	TotalAmount   uint64 `json:"total_amount"`
	CreatorShare  uint64 `json:"creator_share"`
	InvitorShare  uint64 `json:"invitor_share"`
	PlatformShare uint64 `json:"platform_share"`
}

type ProfileInitialized struct {
	Owner        string `json:"owner"`
	ReferralCode string `json:"referral_code"`
}

type InvitorSet struct {
	Owner   string `json:"owner"`
	Invitor string `json:"invitor"`
}

type PauseToggled struct {
	Paused bool `json:"paused"`
}

// Emitter consumes envelopes from the engine. Implementations must not
// block the caller for long; slow sinks buffer or drop.
type Emitter interface {
	Emit(ctx context.Context, env Envelope)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, env Envelope)

func (f EmitterFunc) Emit(ctx context.Context, env Envelope) { f(ctx, env) }

// Fanout broadcasts each envelope to every sink in order.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, env Envelope) {
	for _, e := range f {
		e.Emit(ctx, env)
	}
}
