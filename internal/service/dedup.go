package service

import (
	"sync"
	"time"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// reAlertStep is how many percentage points of net profit an opportunity must
// gain over its last alert to be re-alerted inside the cooldown.
const reAlertStep = 0.5

type alertRecord struct {
	at        time.Time
	netProfit float64
}

// Cooldown suppresses repeated alerts for the same route (pair, buy venue,
// sell venue) within a window. It is safe for concurrent use.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]alertRecord
	now    func() time.Time
}

// NewCooldown returns a Cooldown with the given window. A zero window lets
// every alert through.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{
		window: window,
		last:   make(map[string]alertRecord),
		now:    time.Now,
	}
}

// Allow reports whether opp should be alerted and, if so, records it.
func (c *Cooldown) Allow(opp domain.Opportunity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := opp.DedupKey()
	now := c.now()
	if prev, ok := c.last[key]; ok && now.Sub(prev.at) < c.window &&
		opp.NetProfitPercentage < prev.netProfit+reAlertStep {
		return false
	}
	c.last[key] = alertRecord{at: now, netProfit: opp.NetProfitPercentage}
	return true
}

// Prune forgets routes whose window has passed.
func (c *Cooldown) Prune() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, rec := range c.last {
		if now.Sub(rec.at) >= c.window {
			delete(c.last, key)
		}
	}
}

func (c *Cooldown) tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}
