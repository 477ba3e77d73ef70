package keycache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/KittyEmmerich/dapp/codec"
	"github.com/KittyEmmerich/dapp/store"
)

type memStore struct {
	mu      sync.Mutex
	m       map[string][]byte
	gets    int
	sets    int
	failGet bool
	failSet bool
}

var _ store.Store = (*memStore)(nil)

func newMemStore() *memStore { return &memStore{m: make(map[string][]byte)} }

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.failGet {
		return nil, false, errors.New("store down")
	}
	b, ok := s.m[key]
	return b, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if s.failSet {
		return errors.New("store down")
	}
	s.m[key] = append([]byte(nil), value...)
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *memStore) Close(_ context.Context) error { return nil }

func (s *memStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func (s *memStore) setCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

func (s *memStore) raw(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.m[key]
	return b, ok
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, ms store.Store, clk *fakeClock, mod func(*Options)) *Cache {
	t.Helper()
	opts := Options{
		Namespace: "fhe",
		Store:     ms,
		Now:       clk.Now,
		NoSweeper: true,
	}
	if mod != nil {
		mod(&opts)
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestCanonicalSubstitutesDefaultAuthority(t *testing.T) {
	absent := Key{ChainID: 9000}
	explicit := Key{ChainID: 9000, Authority: DefaultAuthority}
	if absent.Canonical() != explicit.Canonical() {
		t.Fatalf("absent and default authority differ: %q vs %q", absent.Canonical(), explicit.Canonical())
	}
	upper := Key{ChainID: 9000, Authority: "0xABCDEF"}
	lower := Key{ChainID: 9000, Authority: "0xabcdef"}
	if upper.Canonical() != lower.Canonical() {
		t.Fatalf("authority case should not matter: %q vs %q", upper.Canonical(), lower.Canonical())
	}
	if upper.Canonical() == absent.Canonical() {
		t.Fatalf("distinct authorities should not collide")
	}
}

// TestVolatileHitSkipsStore: a set followed by a get is served from the
// volatile tier without another persistent read.
func TestVolatileHitSkipsStore(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	clk := newFakeClock()
	c := newTestCache(t, ms, clk, nil)
	defer c.Close(ctx)

	key := Key{ChainID: 42}
	c.Set(ctx, key, "pub123")

	before := ms.getCount()
	v, ok := c.Get(ctx, key)
	if !ok || v != "pub123" {
		t.Fatalf("Get: ok=%v v=%q", ok, v)
	}
	if got := ms.getCount(); got != before {
		t.Fatalf("volatile hit touched the store: %d reads -> %d", before, got)
	}
}

// TestTTLExpiry: an entry is valid strictly before storedAt+TTL and absent
// from then on, in both tiers.
func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	clk := newFakeClock()
	c := newTestCache(t, ms, clk, nil)
	defer c.Close(ctx)

	key := Key{ChainID: 1}
	c.Set(ctx, key, "k")

	clk.Advance(DefaultTTL - time.Second)
	if _, ok := c.Get(ctx, key); !ok {
		t.Fatalf("entry expired early")
	}

	clk.Advance(2 * time.Second)
	if v, ok := c.Get(ctx, key); ok {
		t.Fatalf("expired entry still served from volatile tier: %q", v)
	}

	// A fresh cache over the same store sees only the persistent copy, which
	// is just as expired.
	c2 := newTestCache(t, ms, clk, nil)
	if v, ok := c2.Get(ctx, key); ok {
		t.Fatalf("expired entry still served from persistent tier: %q", v)
	}
}

// TestPromotionFromPersistent: a value present only in the persistent tier
// is returned by Get and promoted, so the next lookup stays in-process.
func TestPromotionFromPersistent(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	clk := newFakeClock()

	writer := newTestCache(t, ms, clk, nil)
	key := Key{ChainID: 7, Authority: "0xAA"}
	writer.Set(ctx, key, "persisted")

	// Fresh cache over the same store: empty volatile tier.
	reader := newTestCache(t, ms, clk, nil)
	v, ok := reader.Get(ctx, key)
	if !ok || v != "persisted" {
		t.Fatalf("Get from persistent: ok=%v v=%q", ok, v)
	}

	reader.mu.Lock()
	e, promoted := reader.volatile[key.Canonical()]
	reader.mu.Unlock()
	if !promoted || e.Value != "persisted" {
		t.Fatalf("entry was not promoted: promoted=%v e=%+v", promoted, e)
	}

	before := ms.getCount()
	if _, ok := reader.Get(ctx, key); !ok {
		t.Fatalf("second Get missed")
	}
	if ms.getCount() != before {
		t.Fatalf("promoted entry still read the store")
	}
}

// TestMergePreservesUnrelated: rewriting key A leaves B's and C's persisted
// entries exactly as they were.
func TestMergePreservesUnrelated(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	clk := newFakeClock()
	c := newTestCache(t, ms, clk, nil)
	defer c.Close(ctx)

	a, b2, c3 := Key{ChainID: 1}, Key{ChainID: 2}, Key{ChainID: 3}
	c.Set(ctx, a, "A1")
	clk.Advance(time.Minute)
	c.Set(ctx, b2, "B")
	clk.Advance(time.Minute)
	c.Set(ctx, c3, "C")

	before := loadRawTable(t, ms, c)

	clk.Advance(time.Minute)
	c.Set(ctx, a, "A2")

	after := loadRawTable(t, ms, c)
	if after[a.Canonical()].Value != "A2" {
		t.Fatalf("A was not rewritten: %+v", after[a.Canonical()])
	}
	for _, k := range []Key{b2, c3} {
		pre, post := before[k.Canonical()], after[k.Canonical()]
		if pre.Value != post.Value || !pre.StoredAt.Equal(post.StoredAt) {
			t.Fatalf("unrelated key %q changed: %+v -> %+v", k.Canonical(), pre, post)
		}
	}
}

func loadRawTable(t *testing.T, ms *memStore, c *Cache) Table {
	t.Helper()
	raw, ok := ms.raw(c.tableKey)
	if !ok {
		t.Fatalf("no persisted table at %q", c.tableKey)
	}
	tab, err := codec.JSON[Table]{}.Decode(raw)
	if err != nil {
		t.Fatalf("decode table: %v", err)
	}
	return tab
}

// TestCleanupIdempotent: a second CleanupExpired with no time passing prunes
// nothing and does not rewrite the table.
func TestCleanupIdempotent(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	clk := newFakeClock()
	c := newTestCache(t, ms, clk, nil)
	defer c.Close(ctx)

	c.Set(ctx, Key{ChainID: 1}, "old")
	clk.Advance(25 * time.Hour)
	c.Set(ctx, Key{ChainID: 2}, "fresh")

	if removed := c.CleanupExpired(ctx); removed != 1 {
		t.Fatalf("first cleanup removed %d, want 1", removed)
	}
	writes := ms.setCount()
	if removed := c.CleanupExpired(ctx); removed != 0 {
		t.Fatalf("second cleanup removed %d, want 0", removed)
	}
	if ms.setCount() != writes {
		t.Fatalf("idempotent cleanup rewrote the table")
	}

	if _, ok := c.Get(ctx, Key{ChainID: 2}); !ok {
		t.Fatalf("fresh entry lost by cleanup")
	}
	if _, ok := c.Get(ctx, Key{ChainID: 1}); ok {
		t.Fatalf("expired entry survived cleanup")
	}
}

// TestExpiredEntryReporting: an entry stored 25h ago is absent on read and
// shows up under ExpiredEntries in stats.
func TestExpiredEntryReporting(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	clk := newFakeClock()
	c := newTestCache(t, ms, clk, nil)
	defer c.Close(ctx)

	key := Key{ChainID: 5}
	tab := Table{key.Canonical(): Entry{Value: "K1", StoredAt: clk.Now().Add(-25 * time.Hour)}}
	raw, err := codec.JSON[Table]{}.Encode(tab)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := ms.Set(ctx, c.tableKey, raw); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	if v, ok := c.Get(ctx, key); ok {
		t.Fatalf("expired persisted entry returned: %q", v)
	}
	st := c.Stats(ctx)
	if st.PersistentEntries != 1 || st.ExpiredEntries != 1 || st.ValidEntries != 0 {
		t.Fatalf("stats = %+v, want 1 persistent / 1 expired / 0 valid", st)
	}
}

// TestStoreFailureDegradesToMiss: a broken store makes Get miss instead of
// failing, and Set still leaves the volatile tier serving the value.
func TestStoreFailureDegradesToMiss(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	ms.failGet = true
	ms.failSet = true
	clk := newFakeClock()
	c := newTestCache(t, ms, clk, nil)
	defer c.Close(ctx)

	key := Key{ChainID: 11}
	if _, ok := c.Get(ctx, key); ok {
		t.Fatalf("Get succeeded against a broken store")
	}

	c.Set(ctx, key, "volatile-only")
	if v, ok := c.Get(ctx, key); !ok || v != "volatile-only" {
		t.Fatalf("volatile tier lost the value: ok=%v v=%q", ok, v)
	}
}

func TestCorruptTableDegradesToMiss(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	clk := newFakeClock()
	c := newTestCache(t, ms, clk, nil)
	defer c.Close(ctx)

	if err := ms.Set(ctx, c.tableKey, []byte("not a table")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok := c.Get(ctx, Key{ChainID: 1}); ok {
		t.Fatalf("Get succeeded on corrupt table")
	}

	// A write replaces the corrupt table entirely (load failure => empty).
	c.Set(ctx, Key{ChainID: 1}, "clean")
	tab := loadRawTable(t, ms, c)
	if len(tab) != 1 {
		t.Fatalf("corrupt table not replaced: %v", tab)
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	clk := newFakeClock()
	c := newTestCache(t, ms, clk, nil)
	defer c.Close(ctx)

	c.Set(ctx, Key{ChainID: 1}, "a")
	c.Set(ctx, Key{ChainID: 2}, "b")
	c.ClearAll(ctx)

	if _, ok := c.Get(ctx, Key{ChainID: 1}); ok {
		t.Fatalf("entry survived ClearAll")
	}
	if _, ok := ms.raw(c.tableKey); ok {
		t.Fatalf("persisted table survived ClearAll")
	}
	if st := c.Stats(ctx); st.VolatileEntries != 0 || st.PersistentEntries != 0 {
		t.Fatalf("stats after ClearAll: %+v", st)
	}
}

func TestStatsSplit(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	clk := newFakeClock()
	c := newTestCache(t, ms, clk, nil)
	defer c.Close(ctx)

	c.Set(ctx, Key{ChainID: 1}, "old")
	clk.Advance(25 * time.Hour)
	c.Set(ctx, Key{ChainID: 2}, "fresh")

	st := c.Stats(ctx)
	if st.PersistentEntries != 2 || st.ValidEntries != 1 || st.ExpiredEntries != 1 {
		t.Fatalf("stats = %+v, want 2 persistent / 1 valid / 1 expired", st)
	}
	// Volatile still holds both; stats counts entries, it does not prune.
	if st.VolatileEntries != 2 {
		t.Fatalf("volatile entries = %d, want 2", st.VolatileEntries)
	}
}

// TestBackgroundSweeper: the sweeper goroutine prunes expired entries
// without an explicit CleanupExpired call.
func TestBackgroundSweeper(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	clk := newFakeClock()
	c := newTestCache(t, ms, clk, func(o *Options) {
		o.NoSweeper = false
		o.SweepInterval = 10 * time.Millisecond
	})
	defer c.Close(ctx)

	c.Set(ctx, Key{ChainID: 1}, "doomed")
	clk.Advance(25 * time.Hour)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := c.Stats(ctx); st.PersistentEntries == 0 && st.VolatileEntries == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sweeper never pruned the expired entry: %+v", c.Stats(ctx))
}

func TestMsgpackTableCodec(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore()
	clk := newFakeClock()
	c := newTestCache(t, ms, clk, func(o *Options) {
		o.Codec = codec.Msgpack[Table]{}
	})
	defer c.Close(ctx)

	key := Key{ChainID: 9}
	c.Set(ctx, key, "packed")

	// Fresh cache over the same store decodes the msgpack table.
	c2 := newTestCache(t, ms, clk, func(o *Options) {
		o.Codec = codec.Msgpack[Table]{}
	})
	if v, ok := c2.Get(ctx, key); !ok || v != "packed" {
		t.Fatalf("msgpack round trip: ok=%v v=%q", ok, v)
	}
}
