package store_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"BeliefMarket/internal/apperr"
	"BeliefMarket/internal/market"
	"BeliefMarket/internal/state"
	"BeliefMarket/internal/store"
)

func TestInitGlobal_Once(t *testing.T) {
	s := store.New()
	cfg := &state.GlobalConfig{Authority: "auth", PlatformWallet: "platform"}

	if err := s.InitGlobal(cfg); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if err := s.InitGlobal(cfg); !errors.Is(err, apperr.ErrGlobalAlreadyInitialized) {
		t.Errorf("second init: got %v, want ErrGlobalAlreadyInitialized", err)
	}
}

func TestUpdate_AbortLeavesStateUnchanged(t *testing.T) {
	s := store.New()
	now := time.Now()
	resolveAt := now.Add(time.Hour)
	key := store.MarketKey("alice", resolveAt)

	m := market.New(key, "alice", "", 2, []string{"Yes", "No"}, nil, 100, resolveAt, now)
	if err := s.Update(store.Scope{Market: key}, func(tx *store.Tx) error {
		return tx.StageMarket(m)
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	err := s.Update(store.Scope{Market: key}, func(tx *store.Tx) error {
		tx.Market.OutcomePools[0] = 999
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}

	got, err := s.Market(key)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got.OutcomePools[0] != 0 {
		t.Errorf("aborted mutation leaked: pool = %d", got.OutcomePools[0])
	}
}

func TestUpdate_FailedCreateLeavesNoResidue(t *testing.T) {
	s := store.New()
	err := s.Update(store.Scope{Market: "market:x:1"}, func(tx *store.Tx) error {
		return apperr.ErrInvalidAmount
	})
	if !errors.Is(err, apperr.ErrInvalidAmount) {
		t.Fatalf("got %v", err)
	}
	if _, err := s.Market("market:x:1"); !errors.Is(err, apperr.ErrMarketNotFound) {
		t.Errorf("phantom market after failed create: %v", err)
	}
}

func TestStageProfile_CodeUniqueness(t *testing.T) {
	s := store.New()

	init := func(owner, code string) error {
		return s.Update(store.Scope{Profile: owner}, func(tx *store.Tx) error {
			return tx.StageProfile(&state.UserProfile{Owner: owner, ReferralCode: code})
		})
	}

	if err := init("alice", "ALICE"); err != nil {
		t.Fatalf("first profile: %v", err)
	}
	if err := init("bob", "ALICE"); !errors.Is(err, apperr.ErrReferralCodeInUse) {
		t.Errorf("duplicate code: got %v, want ErrReferralCodeInUse", err)
	}
	if err := init("alice", "ALICE2"); !errors.Is(err, apperr.ErrProfileAlreadyExists) {
		t.Errorf("duplicate profile: got %v, want ErrProfileAlreadyExists", err)
	}
}

func TestResolveCode(t *testing.T) {
	s := store.New()
	_ = s.Update(store.Scope{Profile: "alice"}, func(tx *store.Tx) error {
		return tx.StageProfile(&state.UserProfile{Owner: "alice", ReferralCode: "ALICE"})
	})

	err := s.Update(store.Scope{Profile: "bob"}, func(tx *store.Tx) error {
		owner, err := tx.ResolveCode("ALICE")
		if err != nil {
			return err
		}
		if owner != "alice" {
			t.Errorf("resolved owner: got %q, want alice", owner)
		}
		_, err = tx.ResolveCode("NOPE")
		if !errors.Is(err, apperr.ErrReferralCodeInvalid) {
			t.Errorf("unknown code: got %v, want ErrReferralCodeInvalid", err)
		}
		return apperr.ErrInvalidAmount // abort, nothing to commit
	})
	if !errors.Is(err, apperr.ErrInvalidAmount) {
		t.Fatalf("got %v", err)
	}
}

// A failed create must not orphan a concurrent create on the same key: the
// second writer queues on the box the first one eagerly inserted, the abort
// deletes that box, and the second writer's commit must still end up
// reachable through the map.
func TestUpdate_FailedCreateDoesNotOrphanConcurrentCreate(t *testing.T) {
	s := store.New()
	now := time.Now()
	resolveAt := now.Add(time.Hour)
	key := store.MarketKey("alice", resolveAt)

	entered := make(chan struct{})
	abortErr := make(chan error, 1)
	go func() {
		abortErr <- s.Update(store.Scope{Market: key}, func(tx *store.Tx) error {
			close(entered)
			// Give the second writer time to queue on the box lock before
			// the abort deletes the box.
			time.Sleep(50 * time.Millisecond)
			return apperr.ErrInsufficientFunds
		})
	}()

	<-entered
	createErr := make(chan error, 1)
	go func() {
		createErr <- s.Update(store.Scope{Market: key}, func(tx *store.Tx) error {
			m := market.New(key, "alice", "", 2, []string{"Yes", "No"}, nil, 100, resolveAt, now)
			return tx.StageMarket(m)
		})
	}()

	if err := <-abortErr; !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("aborted update: got %v, want ErrInsufficientFunds", err)
	}
	if err := <-createErr; err != nil {
		t.Fatalf("concurrent create: %v", err)
	}
	if _, err := s.Market(key); err != nil {
		t.Errorf("committed market unreachable: %v", err)
	}
}

// Concurrent increments through Update must serialize per entity.
func TestUpdate_SerializesPerEntity(t *testing.T) {
	s := store.New()
	now := time.Now()
	resolveAt := now.Add(time.Hour)
	key := store.MarketKey("alice", resolveAt)
	m := market.New(key, "alice", "", 2, []string{"Yes", "No"}, nil, 100, resolveAt, now)
	_ = s.Update(store.Scope{Market: key}, func(tx *store.Tx) error { return tx.StageMarket(m) })

	const workers = 16
	const iters = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < iters; i++ {
				_ = s.Update(store.Scope{Market: key}, func(tx *store.Tx) error {
					tx.Market.OutcomePools[0]++
					return nil
				})
			}
		}()
	}
	wg.Wait()

	got, _ := s.Market(key)
	if got.OutcomePools[0] != workers*iters {
		t.Errorf("lost updates: got %d, want %d", got.OutcomePools[0], workers*iters)
	}
}
