package coordinator

import "time"

// SetNow overrides the coordinator's clock in tests.
func (c *Coordinator) SetNow(now func() time.Time) {
	c.now = now
}

// SetNow overrides the replay guard's clock in tests.
func (g *ReplayGuard) SetNow(now func() time.Time) {
	g.now = now
}
