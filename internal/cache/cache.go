// Package cache provides the last-known balance per account.
//
// The cache holds at most one entry per account and never expires entries on
// its own: freshness is the caller's concern. Reads never block on the
// network.
package cache

import (
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache defines the interface for balance caching operations.
type Cache interface {
	// Get retrieves a cached balance entry with its age.
	Get(account string) (*Entry, bool, time.Duration)

	// Put stores the balance for an account, replacing any previous entry.
	Put(account string, amountUnits uint64)

	// Invalidate removes the entry for an account.
	Invalidate(account string)
}

// Compile-time interface check
var _ Cache = (*BalanceCache)(nil)

// Entry is a single cached balance.
type Entry struct {
	Account     string    `json:"account"`
	AmountUnits uint64    `json:"amount_units"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Option configures a BalanceCache.
type Option func(*BalanceCache)

// WithNow overrides the time source used to stamp and age entries.
func WithNow(now func() time.Time) Option {
	return func(c *BalanceCache) {
		if now != nil {
			c.now = now
		}
	}
}

// BalanceCache stores cached balances keyed by account name.
// It is safe for concurrent use.
type BalanceCache struct {
	items *gocache.Cache
	now   func() time.Time
}

// NewBalanceCache creates a new empty balance cache.
func NewBalanceCache(opts ...Option) *BalanceCache {
	c := &BalanceCache{
		// No expiration and no janitor: staleness is not enforced here.
		items: gocache.New(gocache.NoExpiration, 0),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a cached balance entry.
// Returns the entry, whether it exists, and its age.
func (c *BalanceCache) Get(account string) (*Entry, bool, time.Duration) {
	v, ok := c.items.Get(account)
	if !ok {
		return nil, false, 0
	}
	entry := v.(Entry) //nolint:errcheck,forcetypeassert // only Entry values are stored
	return &entry, true, c.now().Sub(entry.UpdatedAt)
}

// Put stores the balance for an account. Last write wins.
func (c *BalanceCache) Put(account string, amountUnits uint64) {
	c.items.Set(account, Entry{
		Account:     account,
		AmountUnits: amountUnits,
		UpdatedAt:   c.now(),
	}, gocache.NoExpiration)
}

// Invalidate removes the entry for an account. Missing entries are ignored.
func (c *BalanceCache) Invalidate(account string) {
	c.items.Delete(account)
}

// Size returns the number of cache entries.
func (c *BalanceCache) Size() int {
	return c.items.ItemCount()
}

// Entries returns a copy of every entry sorted by account name.
func (c *BalanceCache) Entries() []Entry {
	items := c.items.Items()
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if e, ok := item.Object.(Entry); ok {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Account < entries[j].Account })
	return entries
}

// Restore loads entries as-is, keeping their original timestamps. Entries
// already present for the same account are overwritten.
func (c *BalanceCache) Restore(entries []Entry) {
	for _, e := range entries {
		if e.Account == "" {
			continue
		}
		c.items.Set(e.Account, e, gocache.NoExpiration)
	}
}

// Prune removes entries older than maxAge and returns how many were removed.
func (c *BalanceCache) Prune(maxAge time.Duration) int {
	cutoff := c.now().Add(-maxAge)
	removed := 0
	for key, item := range c.items.Items() {
		if e, ok := item.Object.(Entry); ok && e.UpdatedAt.Before(cutoff) {
			c.items.Delete(key)
			removed++
		}
	}
	return removed
}
