package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"BeliefMarket/internal/apperr"
	"BeliefMarket/internal/custody"
	"BeliefMarket/internal/event"
	"BeliefMarket/internal/market"
	"BeliefMarket/internal/observability"
	"BeliefMarket/internal/positions"
	"BeliefMarket/internal/state"
	"BeliefMarket/internal/store"
	"BeliefMarket/internal/umath"
)

// Engine executes the ledger's mutating operations. Every operation is a
// single checked-then-applied step: the guard set is evaluated under the
// entity locks, the numeric effect is computed on clones, external custody
// transfers run with compensation, and the clones commit only when the whole
// chain succeeded. A typed error means nothing changed.
//
// The engine never reads the wall clock directly; time arrives through the
// injected Clock so replay and tests stay deterministic.
type Engine struct {
	store     *store.Store
	custody   custody.Custody
	positions positions.Ledger
	clock     Clock
	emitter   event.Emitter
	log       zerolog.Logger
	metrics   *observability.Metrics
}

func NewEngine(
	st *store.Store,
	cust custody.Custody,
	pos positions.Ledger,
	clock Clock,
	emitter event.Emitter,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Engine {
	return &Engine{
		store:     st,
		custody:   cust,
		positions: pos,
		clock:     clock,
		emitter:   emitter,
		log:       log,
		metrics:   metrics,
	}
}

// Store exposes read-only snapshots for the query surface.
func (e *Engine) Store() *store.Store { return e.store }

// Positions exposes the position ledger for the query surface.
func (e *Engine) Positions() positions.Ledger { return e.positions }

// Clock exposes the engine's time source.
func (e *Engine) Clock() Clock { return e.clock }

func (e *Engine) finish(op string, start time.Time, err error) error {
	if e.metrics != nil {
		if err != nil {
			kind := "internal"
			if k, ok := apperr.KindOf(err); ok {
				kind = k.String()
			}
			e.metrics.OpsRejected.WithLabelValues(op, kind).Inc()
		} else {
			e.metrics.OpsApplied.WithLabelValues(op).Inc()
			e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		}
	}
	if err != nil {
		e.log.Debug().Str("op", op).Err(err).Msg("operation rejected")
	}
	return err
}

func (e *Engine) emit(ctx context.Context, env event.Envelope) {
	if e.emitter != nil {
		e.emitter.Emit(ctx, env)
	}
}

// guardNotPaused is the blanket guard shared by every mutating operation
// except Unpause.
func guardNotPaused(tx *store.Tx) error {
	if tx.Global == nil {
		return apperr.ErrGlobalNotInitialized
	}
	if tx.Global.Paused {
		return apperr.ErrProgramPaused
	}
	return nil
}

// InitGlobal installs the singleton config. Bootstrap operation: it is the
// one mutation that runs before the config exists, so it carries no pause
// guard.
func (e *Engine) InitGlobal(ctx context.Context, authority, platformWallet string) error {
	start := e.clock.Now()
	err := e.store.InitGlobal(&state.GlobalConfig{
		Authority:      authority,
		PlatformWallet: platformWallet,
	})
	if err == nil {
		e.log.Info().Str("authority", authority).Msg("global config initialized")
	}
	return e.finish("init_global", start, err)
}

// InitUser creates a participant profile with a globally unique referral code.
func (e *Engine) InitUser(ctx context.Context, owner, referralCode string) error {
	start := e.clock.Now()

	if referralCode == "" {
		return e.finish("init_user", start, apperr.ErrReferralCodeInvalid)
	}
	if len(referralCode) > state.MaxReferralCodeLen {
		return e.finish("init_user", start, apperr.ErrStringTooLong)
	}

	err := e.store.Update(store.Scope{Global: true, Profile: owner}, func(tx *store.Tx) error {
		if err := guardNotPaused(tx); err != nil {
			return err
		}
		return tx.StageProfile(&state.UserProfile{Owner: owner, ReferralCode: referralCode})
	})
	if err == nil {
		e.emit(ctx, event.NewEnvelope(event.TypeProfileInitialized, "", owner, start,
			event.ProfileInitialized{Owner: owner, ReferralCode: referralCode}))
	}
	return e.finish("init_user", start, err)
}

// SetInvitor binds the caller to the owner of the given referral code. The
// binding is one-shot and immutable.
func (e *Engine) SetInvitor(ctx context.Context, owner, referralCode string) error {
	start := e.clock.Now()
	var invitor string

	err := e.store.Update(store.Scope{Global: true, Profile: owner}, func(tx *store.Tx) error {
		if err := guardNotPaused(tx); err != nil {
			return err
		}
		if tx.Profile == nil {
			return apperr.ErrProfileNotInitialized
		}
		if tx.Profile.HasInvitor() {
			return apperr.ErrInvitorAlreadySet
		}
		resolved, err := tx.ResolveCode(referralCode)
		if err != nil {
			return err
		}
		if resolved == owner {
			return apperr.ErrCannotInviteYourself
		}
		tx.Profile.Invitor = resolved
		invitor = resolved
		return nil
	})
	if err == nil {
		e.emit(ctx, event.NewEnvelope(event.TypeInvitorSet, "", owner, start,
			event.InvitorSet{Owner: owner, Invitor: invitor}))
	}
	return e.finish("set_invitor", start, err)
}

// CreateParams are the caller-supplied market parameters.
type CreateParams struct {
	NumOutcomes   uint8
	OutcomeLabels []string
	Tags          []string
	TradingFeeBps uint16
	ResolveAt     time.Time
}

// CreateMarket opens a new market. The creator pays the fixed creation fee:
// the platform and invitor shares settle immediately, the peg is deposited
// into the market vault and stays claimable until after resolution.
func (e *Engine) CreateMarket(ctx context.Context, creator string, p CreateParams) (*market.Market, error) {
	start := e.clock.Now()
	now := start

	if err := market.ValidateParams(p.NumOutcomes, p.OutcomeLabels, p.Tags, p.TradingFeeBps, p.ResolveAt, now); err != nil {
		return nil, e.finish("create_market", start, err)
	}

	key := store.MarketKey(creator, p.ResolveAt)
	var created *market.Market

	err := e.store.Update(store.Scope{Global: true, Market: key, Profile: creator}, func(tx *store.Tx) error {
		if err := guardNotPaused(tx); err != nil {
			return err
		}
		if tx.Profile == nil {
			return apperr.ErrProfileNotInitialized
		}

		invitor := tx.Profile.Invitor
		m := market.New(key, creator, invitor, p.NumOutcomes, p.OutcomeLabels, p.Tags, p.TradingFeeBps, p.ResolveAt, now)
		if err := tx.StageMarket(m); err != nil {
			return err
		}

		// Creation fee settlement. The referrer share is folded into the
		// platform leg: referrer identities are not modeled in this ledger.
		platformShare := market.CreationFeePlatform + market.CreationFeeReferrer
		invitorShare := market.CreationFeeInvitor
		if invitor == "" {
			platformShare += invitorShare
			invitorShare = 0
		}
		legs := []custody.Leg{
			{From: creator, To: tx.Global.PlatformWallet, Amount: platformShare},
			{From: creator, To: invitor, Amount: invitorShare},
			{From: creator, To: store.VaultAccount(key), Amount: market.CreatorPeg},
		}
		if err := custody.Apply(ctx, e.custody, legs, e.log); err != nil {
			return err
		}

		created = m.Clone()
		return m.CheckInvariants()
	})
	if err != nil {
		return nil, e.finish("create_market", start, err)
	}

	if e.metrics != nil {
		e.metrics.MarketsCreated.Inc()
		e.metrics.MarketsOpen.Inc()
	}
	e.emit(ctx, event.NewEnvelope(event.TypeMarketCreated, key, creator, start, event.MarketCreated{
		Creator:       creator,
		NumOutcomes:   p.NumOutcomes,
		OutcomeLabels: p.OutcomeLabels,
		TradingFeeBps: p.TradingFeeBps,
		ResolveAt:     p.ResolveAt.Unix(),
	}))
	e.log.Info().Str("market", key).Str("creator", creator).Msg("market created")
	return created, e.finish("create_market", start, nil)
}

// Buy stakes currency on an outcome, minting shares at the pre-trade average
// price. The full trading fee accrues into the market's fee balance; the
// pool grows by the net stake only, keeping the vault reconciliation
// vault == pools + fees + unclaimed peg.
func (e *Engine) Buy(ctx context.Context, buyer, marketKey string, outcome uint8, amount uint64) (market.BuyQuote, error) {
	start := e.clock.Now()
	var quote market.BuyQuote

	err := e.store.Update(store.Scope{Global: true, Market: marketKey}, func(tx *store.Tx) error {
		if err := guardNotPaused(tx); err != nil {
			return err
		}
		m := tx.Market
		if m == nil {
			return apperr.ErrMarketNotFound
		}
		if err := m.CheckOutcome(outcome); err != nil {
			return err
		}
		if m.Resolved {
			return apperr.ErrMarketAlreadyResolved
		}

		q, err := market.QuoteBuy(amount, m.OutcomePools[outcome], m.OutcomeShares[outcome], m.TradingFeeBps)
		if err != nil {
			return err
		}

		pool, ok := umath.Add(m.OutcomePools[outcome], q.Net)
		if !ok {
			return apperr.ErrArithmeticOverflow
		}
		shares, ok := umath.Add(m.OutcomeShares[outcome], q.Shares)
		if !ok {
			return apperr.ErrArithmeticOverflow
		}
		fees, ok := umath.Add(m.AccumulatedFees[outcome], q.Fee)
		if !ok {
			return apperr.ErrArithmeticOverflow
		}

		// Two-phase: custody first, then the position ledger, commit last.
		if err := e.custody.Transfer(ctx, buyer, store.VaultAccount(marketKey), amount); err != nil {
			return err
		}
		if err := e.positions.Add(ctx, buyer, marketKey, outcome, q.Shares); err != nil {
			// Roll the stake back; the trade never happened.
			if rbErr := e.custody.Transfer(ctx, store.VaultAccount(marketKey), buyer, amount); rbErr != nil {
				e.log.Error().Err(rbErr).
					Str("market", marketKey).
					Str("from", store.VaultAccount(marketKey)).
					Str("to", buyer).
					Uint64("amount", amount).
					Msg("stake refund failed, funds stranded in vault")
			}
			return err
		}

		m.OutcomePools[outcome] = pool
		m.OutcomeShares[outcome] = shares
		m.AccumulatedFees[outcome] = fees
		quote = q
		return m.CheckInvariants()
	})
	if err != nil {
		return market.BuyQuote{}, e.finish("buy", start, err)
	}

	if e.metrics != nil {
		e.metrics.VolumeStaked.WithLabelValues("buy").Add(float64(amount))
		e.metrics.FeesAccrued.Add(float64(quote.Fee))
	}
	e.emit(ctx, event.NewEnvelope(event.TypeSharesBought, marketKey, buyer, start, event.SharesBought{
		Buyer:          buyer,
		OutcomeIndex:   outcome,
		AmountPaid:     amount,
		Fee:            quote.Fee,
		SharesReceived: quote.Shares,
	}))
	return quote, e.finish("buy", start, nil)
}

// Sell redeems shares at the pre-trade average price while the market is
// still unresolved. The pool shrinks by the gross value; the fee portion
// moves into the market's fee balance and the seller receives the net.
func (e *Engine) Sell(ctx context.Context, seller, marketKey string, outcome uint8, shares uint64) (market.SellQuote, error) {
	start := e.clock.Now()
	var quote market.SellQuote

	err := e.store.Update(store.Scope{Global: true, Market: marketKey}, func(tx *store.Tx) error {
		if err := guardNotPaused(tx); err != nil {
			return err
		}
		m := tx.Market
		if m == nil {
			return apperr.ErrMarketNotFound
		}
		if err := m.CheckOutcome(outcome); err != nil {
			return err
		}
		if m.Resolved {
			return apperr.ErrMarketAlreadyResolved
		}
		if m.OutcomeShares[outcome] < shares {
			return apperr.ErrInsufficientShares
		}

		held, err := e.positions.Balance(ctx, seller, marketKey, outcome)
		if err != nil {
			return err
		}
		if held < shares {
			return apperr.ErrInsufficientShares
		}

		q, err := market.QuoteSell(shares, m.OutcomePools[outcome], m.OutcomeShares[outcome], m.TradingFeeBps)
		if err != nil {
			return err
		}
		if q.Gross > m.OutcomePools[outcome] {
			return apperr.ErrInsufficientFunds
		}
		fees, ok := umath.Add(m.AccumulatedFees[outcome], q.Fee)
		if !ok {
			return apperr.ErrArithmeticOverflow
		}

		// Position ledger first (atomic check-and-decrement), then custody.
		if err := e.positions.Sub(ctx, seller, marketKey, outcome, shares); err != nil {
			return err
		}
		if err := e.custody.Transfer(ctx, store.VaultAccount(marketKey), seller, q.Net); err != nil {
			if rbErr := e.positions.Add(ctx, seller, marketKey, outcome, shares); rbErr != nil {
				e.log.Error().Err(rbErr).
					Str("market", marketKey).
					Str("account", seller).
					Uint8("outcome", outcome).
					Uint64("shares", shares).
					Msg("position restore failed after payout failure")
			}
			return err
		}

		m.OutcomePools[outcome] -= q.Gross
		m.OutcomeShares[outcome] -= shares
		m.AccumulatedFees[outcome] = fees
		quote = q
		return m.CheckInvariants()
	})
	if err != nil {
		return market.SellQuote{}, e.finish("sell", start, err)
	}

	if e.metrics != nil {
		e.metrics.VolumeStaked.WithLabelValues("sell").Add(float64(quote.Net))
		e.metrics.FeesAccrued.Add(float64(quote.Fee))
	}
	e.emit(ctx, event.NewEnvelope(event.TypeSharesSold, marketKey, seller, start, event.SharesSold{
		Seller:         seller,
		OutcomeIndex:   outcome,
		SharesSold:     shares,
		Fee:            quote.Fee,
		AmountReceived: quote.Net,
	}))
	return quote, e.finish("sell", start, nil)
}

// Resolve sets the winning outcome. Authority-only, once, and only after the
// market's resolution time. Resolving to an outcome nobody backed sweeps the
// locked pools into the fee balance so the value is distributed by the
// ordinary fee withdrawal instead of stranding in the vault.
func (e *Engine) Resolve(ctx context.Context, caller, marketKey string, winning uint8) error {
	start := e.clock.Now()
	now := start
	var swept uint64

	err := e.store.Update(store.Scope{Global: true, Market: marketKey}, func(tx *store.Tx) error {
		if err := guardNotPaused(tx); err != nil {
			return err
		}
		if caller != tx.Global.Authority {
			return apperr.ErrUnauthorized
		}
		m := tx.Market
		if m == nil {
			return apperr.ErrMarketNotFound
		}
		if err := m.CheckOutcome(winning); err != nil {
			return err
		}
		if now.Before(m.ResolveAt) {
			return apperr.ErrResolutionTimeNotReached
		}
		if m.Resolved {
			return apperr.ErrMarketAlreadyResolved
		}

		m.Resolved = true
		m.WinningOutcome = winning

		if m.OutcomeShares[winning] == 0 {
			for i := range m.OutcomePools {
				fees, ok := umath.Add(m.AccumulatedFees[i], m.OutcomePools[i])
				if !ok {
					return apperr.ErrArithmeticOverflow
				}
				swept += m.OutcomePools[i]
				m.AccumulatedFees[i] = fees
				m.OutcomePools[i] = 0
			}
		}
		return m.CheckInvariants()
	})
	if err != nil {
		return e.finish("resolve", start, err)
	}

	if e.metrics != nil {
		e.metrics.MarketsResolved.Inc()
		e.metrics.MarketsOpen.Dec()
	}
	e.emit(ctx, event.NewEnvelope(event.TypeMarketResolved, marketKey, caller, start, event.MarketResolved{
		WinningOutcome: winning,
		SweptToFees:    swept,
	}))
	e.log.Info().Str("market", marketKey).Uint8("winning_outcome", winning).Msg("market resolved")
	return e.finish("resolve", start, nil)
}

// Redeem pays out winning shares at floor(totalPool / winningShares). The
// payout draws on the whole pool: winners claim the losers' stake.
func (e *Engine) Redeem(ctx context.Context, caller, marketKey string, shares uint64) (uint64, error) {
	start := e.clock.Now()
	var payout uint64

	err := e.store.Update(store.Scope{Global: true, Market: marketKey}, func(tx *store.Tx) error {
		if err := guardNotPaused(tx); err != nil {
			return err
		}
		m := tx.Market
		if m == nil {
			return apperr.ErrMarketNotFound
		}
		if !m.Resolved {
			return apperr.ErrMarketNotResolved
		}
		if shares == 0 {
			return apperr.ErrNoWinningsToRedeem
		}
		winning := m.WinningOutcome

		held, err := e.positions.Balance(ctx, caller, marketKey, winning)
		if err != nil {
			return err
		}
		if held == 0 {
			return apperr.ErrNoWinningsToRedeem
		}
		if held < shares {
			return apperr.ErrInsufficientShares
		}

		total, err := m.TotalPool()
		if err != nil {
			return err
		}
		perShare := market.WinningsPerShare(total, m.OutcomeShares[winning])
		amount, ok := umath.Mul(shares, perShare)
		if !ok {
			return apperr.ErrArithmeticOverflow
		}
		if amount == 0 {
			return apperr.ErrNoWinningsToRedeem
		}

		if err := e.positions.Sub(ctx, caller, marketKey, winning, shares); err != nil {
			return err
		}
		if err := e.custody.Transfer(ctx, store.VaultAccount(marketKey), caller, amount); err != nil {
			if rbErr := e.positions.Add(ctx, caller, marketKey, winning, shares); rbErr != nil {
				e.log.Error().Err(rbErr).
					Str("market", marketKey).
					Str("account", caller).
					Uint8("outcome", winning).
					Uint64("shares", shares).
					Msg("position restore failed after payout failure")
			}
			return err
		}

		m.OutcomeShares[winning] -= shares
		if err := m.DrainPools(winning, amount); err != nil {
			return err
		}
		payout = amount
		return m.CheckInvariants()
	})
	if err != nil {
		return 0, e.finish("redeem", start, err)
	}

	if e.metrics != nil {
		e.metrics.VolumeRedeemed.Add(float64(payout))
	}
	e.emit(ctx, event.NewEnvelope(event.TypeWinningsRedeemed, marketKey, caller, start, event.WinningsRedeemed{
		Winner:         caller,
		SharesRedeemed: shares,
		AmountRedeemed: payout,
	}))
	return payout, e.finish("redeem", start, nil)
}

// ClaimPeg returns the creation peg to the creator, once, after resolution.
func (e *Engine) ClaimPeg(ctx context.Context, caller, marketKey string) (uint64, error) {
	start := e.clock.Now()
	var amount uint64

	err := e.store.Update(store.Scope{Global: true, Market: marketKey}, func(tx *store.Tx) error {
		if err := guardNotPaused(tx); err != nil {
			return err
		}
		m := tx.Market
		if m == nil {
			return apperr.ErrMarketNotFound
		}
		if caller != m.Creator {
			return apperr.ErrUserNotAuthorized
		}
		if !m.Resolved {
			return apperr.ErrMarketNotResolved
		}
		if m.CreatorPegClaimed {
			return apperr.ErrCreatorPegAlreadyClaimed
		}
		if m.CreatorPegAmount == 0 {
			return apperr.ErrInvalidAmount
		}

		if err := e.custody.Transfer(ctx, store.VaultAccount(marketKey), m.Creator, m.CreatorPegAmount); err != nil {
			return err
		}
		m.CreatorPegClaimed = true
		amount = m.CreatorPegAmount
		return m.CheckInvariants()
	})
	if err != nil {
		return 0, e.finish("claim_peg", start, err)
	}

	e.emit(ctx, event.NewEnvelope(event.TypeCreatorPegClaimed, marketKey, caller, start, event.CreatorPegClaimed{
		Creator: caller,
		Amount:  amount,
	}))
	return amount, e.finish("claim_peg", start, nil)
}

// WithdrawFees distributes the accumulated trading fees 80/10/10 between
// creator, invitor, and platform, with the platform absorbing the rounding
// remainder. The invitor share routes to the platform when the market has no
// invitor. Any caller may trigger the withdrawal; the recipients are fixed.
func (e *Engine) WithdrawFees(ctx context.Context, caller, marketKey string) (market.FeeShares, error) {
	start := e.clock.Now()
	var split market.FeeShares
	var total uint64

	err := e.store.Update(store.Scope{Global: true, Market: marketKey}, func(tx *store.Tx) error {
		if err := guardNotPaused(tx); err != nil {
			return err
		}
		m := tx.Market
		if m == nil {
			return apperr.ErrMarketNotFound
		}
		if !m.Resolved {
			return apperr.ErrCannotWithdrawUnresolved
		}
		var err error
		total, err = m.TotalFees()
		if err != nil {
			return err
		}
		if total == 0 {
			return apperr.ErrNoFeesToWithdraw
		}

		split = market.SplitFees(total)
		invitorShare := split.Invitor
		platformShare := split.Platform
		if m.Invitor == "" {
			platformShare += invitorShare
			invitorShare = 0
		}

		vault := store.VaultAccount(marketKey)
		legs := []custody.Leg{
			{From: vault, To: m.Creator, Amount: split.Creator},
			{From: vault, To: m.Invitor, Amount: invitorShare},
			{From: vault, To: tx.Global.PlatformWallet, Amount: platformShare},
		}
		if err := custody.Apply(ctx, e.custody, legs, e.log); err != nil {
			return err
		}

		for i := range m.AccumulatedFees {
			m.AccumulatedFees[i] = 0
		}
		return m.CheckInvariants()
	})
	if err != nil {
		return market.FeeShares{}, e.finish("withdraw_fees", start, err)
	}

	if e.metrics != nil {
		e.metrics.FeesWithdrawn.Add(float64(total))
	}
	e.emit(ctx, event.NewEnvelope(event.TypeFeesWithdrawn, marketKey, caller, start, event.FeesWithdrawn{
		TotalAmount:   total,
		CreatorShare:  split.Creator,
		InvitorShare:  split.Invitor,
		PlatformShare: split.Platform,
	}))
	return split, e.finish("withdraw_fees", start, nil)
}

// Pause halts every mutating operation except Unpause.
func (e *Engine) Pause(ctx context.Context, caller string) error {
	start := e.clock.Now()

	err := e.store.Update(store.Scope{Global: true}, func(tx *store.Tx) error {
		if err := guardNotPaused(tx); err != nil {
			return err
		}
		if caller != tx.Global.Authority {
			return apperr.ErrUnauthorized
		}
		tx.Global.Paused = true
		return nil
	})
	if err == nil {
		e.emit(ctx, event.NewEnvelope(event.TypePaused, "", caller, start, event.PauseToggled{Paused: true}))
		e.log.Warn().Msg("program paused")
	}
	return e.finish("pause", start, err)
}

// Unpause lifts the pause flag. It is the only mutating operation permitted
// while paused. Unpausing an unpaused program is a no-op.
func (e *Engine) Unpause(ctx context.Context, caller string) error {
	start := e.clock.Now()
	var changed bool

	err := e.store.Update(store.Scope{Global: true}, func(tx *store.Tx) error {
		if tx.Global == nil {
			return apperr.ErrGlobalNotInitialized
		}
		if caller != tx.Global.Authority {
			return apperr.ErrUnauthorized
		}
		changed = tx.Global.Paused
		tx.Global.Paused = false
		return nil
	})
	if err == nil && changed {
		e.emit(ctx, event.NewEnvelope(event.TypeUnpaused, "", caller, start, event.PauseToggled{Paused: false}))
		e.log.Info().Msg("program unpaused")
	}
	return e.finish("unpause", start, err)
}
