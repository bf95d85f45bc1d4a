package store

import (
	"fmt"
	"sync"
	"time"

	"BeliefMarket/internal/apperr"
	"BeliefMarket/internal/market"
	"BeliefMarket/internal/state"
)

// MarketKey derives the deterministic storage key for a market. Creator plus
// resolution timestamp is unique per the addressing contract: one creator
// cannot open two markets resolving at the same instant.
func MarketKey(creator string, resolveAt time.Time) string {
	return fmt.Sprintf("market:%s:%d", creator, resolveAt.Unix())
}

// VaultAccount is the custody account holding a market's funds.
func VaultAccount(marketKey string) string {
	return marketKey + ":vault"
}

// box pairs an entity with its exclusive-access lock.
type box[T any] struct {
	mu  sync.Mutex
	val T
}

// Store holds the ledger entities. Each entity is guarded by its own lock;
// operations that touch several entities acquire them in the fixed order
// global -> market -> profile, which keeps cross-entity operations
// deadlock-free.
type Store struct {
	mu       sync.Mutex // guards the maps and the referral-code index
	global   box[*state.GlobalConfig]
	markets  map[string]*box[*market.Market]
	profiles map[string]*box[*state.UserProfile]
	codes    map[string]string // referral code -> owner
}

func New() *Store {
	return &Store{
		markets:  make(map[string]*box[*market.Market]),
		profiles: make(map[string]*box[*state.UserProfile]),
		codes:    make(map[string]string),
	}
}

// Scope names the entities an operation will observe or mutate. Every lock
// in the scope is held for the whole check-then-apply step.
type Scope struct {
	Global  bool
	Market  string // market key, empty for none
	Profile string // profile owner, empty for none
}

// Tx is a locked view over the scoped entities. The fields are deep clones;
// mutations touch only the clones until Update commits them, so a failed
// operation leaves every entity untouched.
type Tx struct {
	Global  *state.GlobalConfig
	Market  *market.Market
	Profile *state.UserProfile

	s          *Store
	stagedCode string
}

// StageProfile stages a new profile for insertion at commit. Fails when the
// owner already has one or the referral code is taken.
func (tx *Tx) StageProfile(p *state.UserProfile) error {
	if tx.Profile != nil {
		return apperr.ErrProfileAlreadyExists
	}
	tx.s.mu.Lock()
	_, taken := tx.s.codes[p.ReferralCode]
	tx.s.mu.Unlock()
	if taken {
		return apperr.ErrReferralCodeInUse
	}
	tx.Profile = p
	tx.stagedCode = p.ReferralCode
	return nil
}

// StageMarket stages a new market for insertion at commit.
func (tx *Tx) StageMarket(m *market.Market) error {
	if tx.Market != nil {
		return apperr.ErrInvalidResolutionTime // key collision: same creator, same resolveAt
	}
	tx.Market = m
	return nil
}

// ResolveCode maps a referral code to its owner identity.
func (tx *Tx) ResolveCode(code string) (string, error) {
	tx.s.mu.Lock()
	owner, ok := tx.s.codes[code]
	tx.s.mu.Unlock()
	if !ok {
		return "", apperr.ErrReferralCodeInvalid
	}
	return owner, nil
}

// lockBox returns the locked box for key, creating an empty one when absent.
// A waiter can be queued on a box that a failed create deletes from the map
// before the waiter acquires it; after locking, the map entry is revalidated
// and the acquisition retried, so a commit can never land in a box the map
// no longer points to.
func lockBox[T any](mu *sync.Mutex, m map[string]*box[T], key string) (*box[T], bool) {
	for {
		mu.Lock()
		b := m[key]
		created := false
		if b == nil {
			b = &box[T]{}
			m[key] = b
			created = true
		}
		mu.Unlock()

		b.mu.Lock()
		mu.Lock()
		current := m[key] == b
		mu.Unlock()
		if current {
			return b, created
		}
		b.mu.Unlock()
	}
}

// Update runs fn against a locked, cloned view of the scoped entities and
// commits the clones only when fn returns nil. Either the full mutation
// lands or nothing changes.
func (s *Store) Update(scope Scope, fn func(tx *Tx) error) error {
	var (
		marketBox  *box[*market.Market]
		profileBox *box[*state.UserProfile]
		newMarket  bool
		newProfile bool
	)

	// Fixed acquisition order: global -> market -> profile.
	if scope.Global {
		s.global.mu.Lock()
		defer s.global.mu.Unlock()
	}
	if scope.Market != "" {
		marketBox, newMarket = lockBox(&s.mu, s.markets, scope.Market)
		defer marketBox.mu.Unlock()
	}
	if scope.Profile != "" {
		profileBox, newProfile = lockBox(&s.mu, s.profiles, scope.Profile)
		defer profileBox.mu.Unlock()
	}

	tx := &Tx{s: s}
	if scope.Global && s.global.val != nil {
		tx.Global = s.global.val.Clone()
	}
	if marketBox != nil && marketBox.val != nil {
		tx.Market = marketBox.val.Clone()
	}
	if profileBox != nil && profileBox.val != nil {
		tx.Profile = profileBox.val.Clone()
	}

	err := fn(tx)
	if err != nil {
		// Abort: drop eagerly created empty boxes so failed creates leave
		// no residue.
		s.mu.Lock()
		if newMarket && marketBox.val == nil {
			delete(s.markets, scope.Market)
		}
		if newProfile && profileBox.val == nil {
			delete(s.profiles, scope.Profile)
		}
		s.mu.Unlock()
		return err
	}

	if scope.Global {
		s.global.val = tx.Global
	}
	if marketBox != nil {
		marketBox.val = tx.Market
	}
	if profileBox != nil {
		profileBox.val = tx.Profile
	}
	if tx.stagedCode != "" {
		s.mu.Lock()
		s.codes[tx.stagedCode] = tx.Profile.Owner
		s.mu.Unlock()
	}
	return nil
}

// InitGlobal installs the singleton config. Fails once one exists.
func (s *Store) InitGlobal(cfg *state.GlobalConfig) error {
	s.global.mu.Lock()
	defer s.global.mu.Unlock()
	if s.global.val != nil {
		return apperr.ErrGlobalAlreadyInitialized
	}
	s.global.val = cfg.Clone()
	return nil
}

// Global returns a snapshot of the config.
func (s *Store) Global() (*state.GlobalConfig, error) {
	s.global.mu.Lock()
	defer s.global.mu.Unlock()
	if s.global.val == nil {
		return nil, apperr.ErrGlobalNotInitialized
	}
	return s.global.val.Clone(), nil
}

// Market returns a snapshot of one market.
func (s *Store) Market(key string) (*market.Market, error) {
	s.mu.Lock()
	b := s.markets[key]
	s.mu.Unlock()
	if b == nil {
		return nil, apperr.ErrMarketNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.val == nil {
		return nil, apperr.ErrMarketNotFound
	}
	return b.val.Clone(), nil
}

// Markets returns snapshots of every market. Order is unspecified.
func (s *Store) Markets() []*market.Market {
	s.mu.Lock()
	boxes := make([]*box[*market.Market], 0, len(s.markets))
	for _, b := range s.markets {
		boxes = append(boxes, b)
	}
	s.mu.Unlock()

	out := make([]*market.Market, 0, len(boxes))
	for _, b := range boxes {
		b.mu.Lock()
		if b.val != nil {
			out = append(out, b.val.Clone())
		}
		b.mu.Unlock()
	}
	return out
}

// Profile returns a snapshot of one user profile.
func (s *Store) Profile(owner string) (*state.UserProfile, error) {
	s.mu.Lock()
	b := s.profiles[owner]
	s.mu.Unlock()
	if b == nil {
		return nil, apperr.ErrProfileNotInitialized
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.val == nil {
		return nil, apperr.ErrProfileNotInitialized
	}
	return b.val.Clone(), nil
}
