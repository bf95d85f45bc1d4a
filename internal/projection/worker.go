package projection

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"BeliefMarket/internal/event"
	"BeliefMarket/internal/market"
	"BeliefMarket/internal/store"
)

const (
	summaryKeyPrefix = "summary:"
	marketIndexKey   = "markets:index"
	summaryTTL       = 24 * time.Hour
)

// Summary is the cached read model of one market, refreshed after every
// committed mutation that touches it.
type Summary struct {
	Key            string    `json:"key"`
	Creator        string    `json:"creator"`
	OutcomeLabels  []string  `json:"outcome_labels"`
	Tags           []string  `json:"tags,omitempty"`
	OutcomePools   []uint64  `json:"outcome_pools"`
	OutcomeShares  []uint64  `json:"outcome_shares"`
	Odds           []uint64  `json:"odds"`
	TradingFeeBps  uint16    `json:"trading_fee_bps"`
	Phase          string    `json:"phase"`
	Resolved       bool      `json:"resolved"`
	WinningOutcome uint8     `json:"winning_outcome,omitempty"`
	ResolveAt      time.Time `json:"resolve_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Worker maintains Redis read models from the telemetry stream. The feed
// channel is non-blocking at the producer: if this worker falls behind the
// cache goes stale, and the next event for the market refreshes it from the
// authoritative store.
type Worker struct {
	rdb *redis.Client
	st  *store.Store
	in  <-chan event.Envelope
	log zerolog.Logger
}

func NewWorker(rdb *redis.Client, st *store.Store, in <-chan event.Envelope, log zerolog.Logger) *Worker {
	return &Worker{rdb: rdb, st: st, in: in, log: log}
}

// Run consumes envelopes until ctx is cancelled or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-w.in:
			if !ok {
				return nil
			}
			if env.MarketKey == "" {
				continue
			}
			if err := w.refresh(ctx, env.MarketKey, env.Timestamp); err != nil {
				// Eventually consistent: a later event retries the refresh.
				w.log.Warn().Err(err).Str("market", env.MarketKey).Msg("summary refresh failed")
			}
		}
	}
}

func (w *Worker) refresh(ctx context.Context, marketKey string, at time.Time) error {
	m, err := w.st.Market(marketKey)
	if err != nil {
		return err
	}

	odds := make([]uint64, m.NumOutcomes)
	for i := range odds {
		odds[i] = market.Odds(m.OutcomePools, i)
	}

	s := Summary{
		Key:            m.Key,
		Creator:        m.Creator,
		OutcomeLabels:  m.OutcomeLabels,
		Tags:           m.Tags,
		OutcomePools:   m.OutcomePools,
		OutcomeShares:  m.OutcomeShares,
		Odds:           odds,
		TradingFeeBps:  m.TradingFeeBps,
		Phase:          m.PhaseAt(at).String(),
		Resolved:       m.Resolved,
		WinningOutcome: m.WinningOutcome,
		ResolveAt:      m.ResolveAt,
		UpdatedAt:      at,
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}

	pipe := w.rdb.TxPipeline()
	pipe.Set(ctx, summaryKeyPrefix+marketKey, raw, summaryTTL)
	pipe.SAdd(ctx, marketIndexKey, marketKey)
	_, err = pipe.Exec(ctx)
	return err
}

// Rebuild repopulates the cache for every market in the store. Used at
// startup so reads are warm before the first event arrives.
func (w *Worker) Rebuild(ctx context.Context, at time.Time) error {
	for _, m := range w.st.Markets() {
		if err := w.refresh(ctx, m.Key, at); err != nil {
			return err
		}
	}
	return nil
}

// Summary reads one cached market summary.
func (w *Worker) Summary(ctx context.Context, marketKey string) (*Summary, error) {
	raw, err := w.rdb.Get(ctx, summaryKeyPrefix+marketKey).Bytes()
	if err != nil {
		return nil, err
	}
	var s Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
