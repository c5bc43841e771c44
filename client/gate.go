package client

import "github.com/MrEthical07/shopauth/permission"

// Gate answers whether a UI element guarded by a requirement should be
// shown. It hides by default: no snapshot, an anonymous session, a snapshot
// older than MaxSnapshotAge or an expired access token all deny. The server
// still decides; the gate only avoids showing actions that will be refused.
type Gate struct {
	c *Coordinator
}

// Gate returns the capability gate over c's snapshot.
func (c *Coordinator) Gate() *Gate {
	return &Gate{c: c}
}

func (g *Gate) Allows(req permission.Requirement) bool {
	if g == nil || g.c == nil {
		return false
	}
	c := g.c
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := c.sess.Snapshot
	if c.sess.State == StateAnonymous || snap == nil {
		return false
	}
	now := c.now()
	if now.Sub(snap.FetchedAt) > c.maxSnapshotAge {
		return false
	}
	if !c.sess.AccessExpiresAt.IsZero() && !now.Before(c.sess.AccessExpiresAt) {
		return false
	}
	return req.SatisfiedBy(permission.EffectiveFrom(snap.Roles, snap.Permissions))
}
