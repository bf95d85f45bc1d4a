package core

import "time"

// Clock abstracts the engine's time source so resolution windows can be
// exercised deterministically in tests.
type Clock interface {
	Now() time.Time
}

// WallClock reads the system clock.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now().UTC() }

// FixedClock returns a settable instant. Test helper.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }
