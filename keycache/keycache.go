// Package keycache caches FHE public keys in two tiers: a volatile in-process
// map for O(1) repeat lookups, and a durable store.Store so a key fetched once
// survives process restarts. Entries expire by age (24h by default) in both
// tiers; reads fall through volatile -> persistent and promote on hit.
//
// Store I/O never surfaces to callers: a failing persistent tier degrades to
// cache misses plus a diagnostic log line. The volatile tier stays
// authoritative for the rest of the process lifetime, so losing the durable
// side only costs a re-fetch from the key authority.
package keycache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KittyEmmerich/dapp/codec"
	"github.com/KittyEmmerich/dapp/internal/opt"
	"github.com/KittyEmmerich/dapp/logging"
	"github.com/KittyEmmerich/dapp/store"
)

// DefaultTTL is how long a stored public key stays valid in either tier.
const DefaultTTL = 24 * time.Hour

const defaultSweep = time.Hour

// Entry is one cached key. Entries are immutable; a refresh writes a new
// Entry with a fresh StoredAt rather than mutating in place.
type Entry struct {
	Value    string    `json:"value" msgpack:"value"`
	StoredAt time.Time `json:"storedAt" msgpack:"storedAt"`
}

// Table is the persisted shape: canonical key -> entry. The whole table is
// serialized under a single store key so a write can merge against the
// current contents instead of clobbering unrelated entries.
type Table = map[string]Entry

// Stats is a read-only snapshot for diagnostics. The valid/expired split
// describes the persistent tier.
type Stats struct {
	VolatileEntries   int
	PersistentEntries int
	ValidEntries      int
	ExpiredEntries    int
}

// Options tune the key cache. Only Namespace and Store are required.
type Options struct {
	// Required
	Namespace string // isolates this cache's table key in a shared store
	Store     store.Store

	Codec         codec.Codec[Table] // nil => JSON
	Logger        logging.Logger     // nil => NopLogger
	TTL           time.Duration      // 0 => DefaultTTL (24h)
	SweepInterval time.Duration      // background expiry cleanup; 0 => 1h
	NoSweeper     bool               // disable the background cleanup goroutine
	Now           func() time.Time   // injectable clock; nil => time.Now
}

// Cache is the two-tier expiring key cache.
type Cache struct {
	tableKey string
	store    store.Store
	codec    codec.Codec[Table]
	log      logging.Logger
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	volatile map[string]Entry

	// background cleanup
	ticker    *time.Ticker
	stopCh    chan struct{}
	closeWg   sync.WaitGroup
	closeOnce sync.Once
}

func New(opts Options) (*Cache, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("keycache: store is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("keycache: namespace is required")
	}

	c := &Cache{
		tableKey: "keycache:" + opts.Namespace,
		store:    opts.Store,
		volatile: make(map[string]Entry),
	}

	if opts.Codec != nil {
		c.codec = opts.Codec
	} else {
		c.codec = codec.JSON[Table]{}
	}
	if opts.Now != nil {
		c.now = opts.Now
	} else {
		c.now = time.Now
	}
	if opts.Logger != nil {
		c.log = opts.Logger
	} else {
		c.log = logging.NopLogger{}
	}
	c.ttl = opt.Coalesce[time.Duration](opts.TTL, DefaultTTL)

	if !opts.NoSweeper {
		sweep := opt.Coalesce[time.Duration](opts.SweepInterval, defaultSweep)
		c.ticker = time.NewTicker(sweep)
		c.stopCh = make(chan struct{})
		c.closeWg.Add(1)
		go c.sweepLoop()
	}
	return c, nil
}

// Close stops the background sweeper and closes the underlying store.
func (c *Cache) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		if c.stopCh != nil {
			close(c.stopCh)
			c.closeWg.Wait()
			if c.ticker != nil {
				c.ticker.Stop()
			}
		}
	})
	if c.store != nil {
		return c.store.Close(ctx)
	}
	return nil
}

func (c *Cache) sweepLoop() {
	defer c.closeWg.Done()
	for {
		select {
		case <-c.ticker.C:
			c.CleanupExpired(context.Background())
		case <-c.stopCh:
			return
		}
	}
}

// Get returns the cached key value, or false when nothing valid is stored.
// The volatile tier is consulted first; a miss (or an expired volatile entry)
// falls through to the persistent table, and a valid persistent hit is
// promoted into the volatile tier. Get never fails: persistent-tier I/O or
// decode problems degrade to a miss.
func (c *Cache) Get(ctx context.Context, key Key) (string, bool) {
	k := key.Canonical()
	now := c.now()

	c.mu.Lock()
	if e, ok := c.volatile[k]; ok {
		if c.valid(e, now) {
			c.mu.Unlock()
			return e.Value, true
		}
		delete(c.volatile, k) // expired; drop on read
	}
	c.mu.Unlock()

	tab, ok := c.loadTable(ctx)
	if !ok {
		return "", false
	}
	e, ok := tab[k]
	if !ok || !c.valid(e, now) {
		return "", false
	}

	// promote so the next lookup stays in-process
	c.mu.Lock()
	c.volatile[k] = e
	c.mu.Unlock()
	return e.Value, true
}

// Set stores value under key in both tiers. The volatile write always takes
// effect; the persistent write is a read-merge-write of the whole table (a
// failed load is treated as an empty table) so unrelated keys written by
// anyone else are preserved. Persistent failures are logged and swallowed.
func (c *Cache) Set(ctx context.Context, key Key, value string) {
	k := key.Canonical()
	e := Entry{Value: value, StoredAt: c.now()}

	c.mu.Lock()
	c.volatile[k] = e
	c.mu.Unlock()

	tab, ok := c.loadTable(ctx)
	if !ok {
		tab = make(Table, 1)
	}
	tab[k] = e
	c.writeTable(ctx, tab)
}

// CleanupExpired removes entries older than the TTL from both tiers and
// reports how many were pruned from the persistent table. The persistent
// table is rewritten only when something actually expired, so running it
// twice back to back is a no-op the second time.
func (c *Cache) CleanupExpired(ctx context.Context) int {
	now := c.now()

	removed := 0
	if tab, ok := c.loadTable(ctx); ok {
		kept := make(Table, len(tab))
		for k, e := range tab {
			if c.valid(e, now) {
				kept[k] = e
			} else {
				removed++
			}
		}
		if removed > 0 {
			c.writeTable(ctx, kept)
			c.log.Debug("pruned expired persisted keys", logging.Fields{"removed": removed, "kept": len(kept)})
		}
	}

	c.mu.Lock()
	for k, e := range c.volatile {
		if !c.valid(e, now) {
			delete(c.volatile, k)
		}
	}
	c.mu.Unlock()
	return removed
}

// ClearAll empties the volatile tier and deletes the persistent table.
func (c *Cache) ClearAll(ctx context.Context) {
	c.mu.Lock()
	c.volatile = make(map[string]Entry)
	c.mu.Unlock()

	if err := c.store.Delete(ctx, c.tableKey); err != nil {
		c.log.Warn("failed to delete persisted key table", logging.Fields{"err": err})
	}
}

// Stats reports tier sizes and the persistent valid/expired split. It has no
// side effects; expired entries are counted, not removed.
func (c *Cache) Stats(ctx context.Context) Stats {
	now := c.now()

	var st Stats
	c.mu.Lock()
	st.VolatileEntries = len(c.volatile)
	c.mu.Unlock()

	if tab, ok := c.loadTable(ctx); ok {
		st.PersistentEntries = len(tab)
		for _, e := range tab {
			if c.valid(e, now) {
				st.ValidEntries++
			} else {
				st.ExpiredEntries++
			}
		}
	}
	return st
}

func (c *Cache) valid(e Entry, now time.Time) bool {
	return now.Sub(e.StoredAt) < c.ttl
}

// loadTable reads and decodes the persistent table. Any failure degrades to
// (nil, false) with a diagnostic; callers decide whether that means "miss"
// (Get) or "empty table" (Set).
func (c *Cache) loadTable(ctx context.Context) (Table, bool) {
	raw, ok, err := c.store.Get(ctx, c.tableKey)
	if err != nil {
		c.log.Warn("persisted key table read failed", logging.Fields{"err": err})
		return nil, false
	}
	if !ok {
		return nil, false
	}
	tab, err := c.codec.Decode(raw)
	if err != nil {
		c.log.Warn("persisted key table corrupt", logging.Fields{"err": err})
		return nil, false
	}
	return tab, true
}

func (c *Cache) writeTable(ctx context.Context, tab Table) {
	raw, err := c.codec.Encode(tab)
	if err != nil {
		c.log.Warn("key table encode failed", logging.Fields{"err": err})
		return
	}
	if err := c.store.Set(ctx, c.tableKey, raw); err != nil {
		c.log.Warn("key table write failed; volatile tier still holds the key", logging.Fields{"err": err})
	}
}
