package market

import (
	"time"

	"BeliefMarket/internal/apperr"
	"BeliefMarket/internal/umath"
)

const (
	MinOutcomes = 2
	MaxOutcomes = 10

	MinTradingFeeBps = 1
	MaxTradingFeeBps = 500

	MaxOutcomeLabelLen = 20
	MaxTagLen          = 15
	MaxTags            = 5

	// Resolution window relative to creation time.
	MinResolutionDelay = 60 * time.Second
	MaxResolutionDelay = 10 * 365 * 24 * time.Hour

	// Creation fee breakdown, 6-decimal units. The peg stays in the market
	// vault until the creator claims it after resolution; the rest is paid
	// out at creation time.
	CreationFee          uint64 = 5_000_000
	CreationFeePlatform  uint64 = 2_000_000
	CreationFeeInvitor   uint64 = 1_800_000
	CreationFeeReferrer  uint64 = 200_000
	CreatorPeg           uint64 = 1_000_000
)

// Phase is the lifecycle position of a market. Settling and Drained are
// implicit sub-states of Resolved; they fall out of the pool balances rather
// than a stored flag.
type Phase int32

const (
	PhaseOpen Phase = iota
	PhaseAwaitingResolution
	PhaseResolved
	PhaseDrained
)

func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "Open"
	case PhaseAwaitingResolution:
		return "AwaitingResolution"
	case PhaseResolved:
		return "Resolved"
	case PhaseDrained:
		return "Drained"
	default:
		return "Unknown"
	}
}

// Market is the central ledger entity: pooled stakes and issued shares per
// outcome, plus the resolution and fee bookkeeping around them.
type Market struct {
	Key     string
	Creator string
	Invitor string // empty when the creator has no invitor

	NumOutcomes   uint8
	OutcomeLabels []string
	OutcomePools  []uint64 // staked currency per outcome, exclusive of fees
	OutcomeShares []uint64 // issued shares per outcome
	Tags          []string

	TradingFeeBps uint16
	ResolveAt     time.Time
	CreatedAt     time.Time

	Resolved       bool
	WinningOutcome uint8 // valid only when Resolved

	CreatorPegAmount  uint64
	CreatorPegClaimed bool

	AccumulatedFees []uint64 // unsettled fee balance per outcome
}

// New builds an open market with zeroed pools. Callers validate parameters
// first via ValidateParams.
func New(key, creator, invitor string, numOutcomes uint8, labels, tags []string, feeBps uint16, resolveAt, now time.Time) *Market {
	n := int(numOutcomes)
	return &Market{
		Key:              key,
		Creator:          creator,
		Invitor:          invitor,
		NumOutcomes:      numOutcomes,
		OutcomeLabels:    append([]string(nil), labels...),
		OutcomePools:     make([]uint64, n),
		OutcomeShares:    make([]uint64, n),
		Tags:             append([]string(nil), tags...),
		TradingFeeBps:    feeBps,
		ResolveAt:        resolveAt,
		CreatedAt:        now,
		CreatorPegAmount: CreatorPeg,
		AccumulatedFees:  make([]uint64, n),
	}
}

// ValidateParams checks creation parameters against the market bounds.
func ValidateParams(numOutcomes uint8, labels, tags []string, feeBps uint16, resolveAt, now time.Time) error {
	if numOutcomes < MinOutcomes || numOutcomes > MaxOutcomes {
		return apperr.ErrInvalidOutcomeCount
	}
	if len(labels) != int(numOutcomes) {
		return apperr.ErrOutcomeCountMismatch
	}
	if feeBps < MinTradingFeeBps || feeBps > MaxTradingFeeBps {
		return apperr.ErrInvalidTradingFee
	}
	if !resolveAt.After(now.Add(MinResolutionDelay)) || !resolveAt.Before(now.Add(MaxResolutionDelay)) {
		return apperr.ErrInvalidResolutionTime
	}
	if len(tags) > MaxTags {
		return apperr.ErrStringTooLong
	}
	for _, label := range labels {
		if label == "" || len(label) > MaxOutcomeLabelLen {
			return apperr.ErrStringTooLong
		}
	}
	for _, tag := range tags {
		if len(tag) > MaxTagLen {
			return apperr.ErrStringTooLong
		}
	}
	return nil
}

// PhaseAt derives the lifecycle phase at the supplied time.
func (m *Market) PhaseAt(now time.Time) Phase {
	if !m.Resolved {
		if now.Before(m.ResolveAt) {
			return PhaseOpen
		}
		return PhaseAwaitingResolution
	}
	if m.drained() {
		return PhaseDrained
	}
	return PhaseResolved
}

func (m *Market) drained() bool {
	if !m.CreatorPegClaimed {
		return false
	}
	for i := range m.OutcomePools {
		if m.OutcomePools[i] != 0 || m.AccumulatedFees[i] != 0 {
			return false
		}
	}
	return true
}

// TotalPool sums all outcome pools.
func (m *Market) TotalPool() (uint64, error) {
	total, ok := umath.SumSlice(m.OutcomePools)
	if !ok {
		return 0, apperr.ErrArithmeticOverflow
	}
	return total, nil
}

// TotalFees sums all per-outcome fee balances.
func (m *Market) TotalFees() (uint64, error) {
	total, ok := umath.SumSlice(m.AccumulatedFees)
	if !ok {
		return 0, apperr.ErrArithmeticOverflow
	}
	return total, nil
}

// CheckOutcome bounds-checks an outcome index.
func (m *Market) CheckOutcome(idx uint8) error {
	if idx >= m.NumOutcomes {
		return apperr.ErrInvalidOutcomeIndex
	}
	return nil
}

// CheckInvariants verifies the structural invariants that must hold after
// every committed mutation. A violation is a programming error in the engine,
// not a caller fault.
func (m *Market) CheckInvariants() error {
	n := int(m.NumOutcomes)
	if len(m.OutcomeLabels) != n || len(m.OutcomePools) != n ||
		len(m.OutcomeShares) != n || len(m.AccumulatedFees) != n {
		return apperr.ErrOutcomeCountMismatch
	}
	if m.CreatorPegClaimed && !m.Resolved {
		return apperr.ErrMarketNotResolved
	}
	return nil
}

// Clone returns a deep copy. The engine mutates the clone and swaps it in
// only after every precondition and external transfer has succeeded.
func (m *Market) Clone() *Market {
	c := *m
	c.OutcomeLabels = append([]string(nil), m.OutcomeLabels...)
	c.OutcomePools = append([]uint64(nil), m.OutcomePools...)
	c.OutcomeShares = append([]uint64(nil), m.OutcomeShares...)
	c.Tags = append([]string(nil), m.Tags...)
	c.AccumulatedFees = append([]uint64(nil), m.AccumulatedFees...)
	return &c
}

// DrainPools removes amount from the pools, winning outcome first, then the
// remaining outcomes in ascending index order. Winners claim the losers'
// stake, so a winning redemption may draw past its own outcome's pool.
func (m *Market) DrainPools(winning uint8, amount uint64) error {
	take := func(i int, remaining uint64) uint64 {
		drawn := m.OutcomePools[i]
		if drawn > remaining {
			drawn = remaining
		}
		m.OutcomePools[i] -= drawn
		return drawn
	}

	remaining := amount
	remaining -= take(int(winning), remaining)
	for i := 0; i < int(m.NumOutcomes) && remaining > 0; i++ {
		if i == int(winning) {
			continue
		}
		remaining -= take(i, remaining)
	}
	if remaining != 0 {
		return apperr.ErrInsufficientFunds
	}
	return nil
}
