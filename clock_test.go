package avdecc

import "time"

// fakeClock is a manually-advanced Clock for deterministic timeout tests:
// the core has no internal suspension points, so tests drive time forward
// explicitly rather than sleeping.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }
