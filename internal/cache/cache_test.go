package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"order-engine/internal/config"
	"order-engine/internal/model"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTTLCacheExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New[string](Config{TTL: time.Minute, Now: clock.Now})

	c.Set("a", "1")
	clock.Advance(59 * time.Second)
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("Get(a) before expiry = %q, %v; want 1, true", v, ok)
	}

	clock.Advance(time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("Get(a) at expiry returned a value, want miss")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after expired read", c.Len())
	}
}

func TestTTLCacheEvictsOldestInsertion(t *testing.T) {
	clock := newFakeClock()
	c := New[int](Config{TTL: time.Hour, MaxEntries: 2, Now: clock.Now})

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // reads do not refresh insertion order
	c.Set("c", 3)

	if _, ok := c.Get("a"); ok {
		t.Error("a should have been evicted as oldest insertion")
	}
	for _, k := range []string{"b", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s missing, want present", k)
		}
	}

	// Re-setting b makes c the oldest
	c.Set("b", 20)
	c.Set("d", 4)
	if _, ok := c.Get("c"); ok {
		t.Error("c should have been evicted after b was re-inserted")
	}
	if v, _ := c.Get("b"); v != 20 {
		t.Errorf("b = %d, want 20", v)
	}
}

func TestTTLCachePurge(t *testing.T) {
	clock := newFakeClock()
	c := New[int](Config{TTL: time.Minute, Now: clock.Now})
	c.Set("short", 1)
	c.SetWithTTL("long", 2, time.Hour)

	clock.Advance(2 * time.Minute)
	if n := c.Purge(); n != 1 {
		t.Errorf("Purge() = %d, want 1", n)
	}
	if left, ok := c.TTL("long"); !ok || left != 58*time.Minute {
		t.Errorf("TTL(long) = %v, %v; want 58m, true", left, ok)
	}
}

func TestGetOrLoadSingleFlight(t *testing.T) {
	c := New[string](Config{TTL: time.Minute})

	var loads atomic.Int32
	release := make(chan struct{})
	load := func(ctx context.Context) (string, error) {
		loads.Add(1)
		<-release
		return "value", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "k", load)
			if err != nil {
				t.Errorf("GetOrLoad error: %v", err)
			}
			results[i] = v
		}(i)
	}

	// Give goroutines time to pile up on the same key
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := loads.Load(); n != 1 {
		t.Errorf("load called %d times, want 1", n)
	}
	for i, v := range results {
		if v != "value" {
			t.Errorf("results[%d] = %q, want value", i, v)
		}
	}
}

func TestGetOrLoadErrorNotCached(t *testing.T) {
	c := New[int](Config{TTL: time.Minute})
	boom := errors.New("boom")

	_, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("GetOrLoad error = %v, want boom", err)
	}
	v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Errorf("GetOrLoad = %d, %v; want 7, nil", v, err)
	}
}

// memStore is an in-memory Store for tier tests.
type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttl     map[string]time.Duration
	gets    int
	failGet bool
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttl: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.failGet {
		return nil, 0, errors.New("connection refused")
	}
	d, ok := m.data[key]
	if !ok {
		return nil, 0, model.ErrCacheMiss
	}
	return d, m.ttl[key], nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttl[key] = ttl
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestTieredSharedHitRepopulatesLocal(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	shared := newMemStore()
	shared.Set(ctx, "p:prod001", []byte(`{"name":"Pizza"}`), 30*time.Second)

	type item struct {
		Name string `json:"name"`
	}
	tier := NewTiered[item](Config{TTL: 5 * time.Minute, Now: clock.Now}, shared, "p:", nil)

	got, ok := tier.Get(ctx, "prod001")
	if !ok || got.Name != "Pizza" {
		t.Fatalf("Get = %+v, %v; want Pizza, true", got, ok)
	}
	// Local copy expires with the shared entry, not the longer local TTL
	if left, ok := tier.Local().TTL("prod001"); !ok || left != 30*time.Second {
		t.Errorf("local TTL = %v, %v; want 30s", left, ok)
	}

	tier.Get(ctx, "prod001")
	if shared.gets != 1 {
		t.Errorf("shared gets = %d, want 1 (second read served locally)", shared.gets)
	}
}

func TestTieredSharedFailureFallsBackToLoader(t *testing.T) {
	shared := newMemStore()
	shared.failGet = true
	tier := NewTiered[int](Config{TTL: time.Minute}, shared, "", nil)

	v, err := tier.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Fatalf("GetOrLoad = %d, %v; want 42, nil", v, err)
	}
	if _, ok := shared.data["k"]; !ok {
		t.Error("loaded value was not written through to the shared tier")
	}
}

type countingSource struct {
	calls atomic.Int32
	inner SecretSource
}

func (c *countingSource) Open(ctx context.Context, id string, t config.Tenant) (string, error) {
	c.calls.Add(1)
	return c.inner.Open(ctx, id, t)
}

func TestCredentialCacheDecryptsOncePerWindow(t *testing.T) {
	clock := newFakeClock()
	src := &countingSource{inner: StaticSource{"acme": "s3cret"}}
	tenants := map[string]config.Tenant{"acme": {Subdomain: "acme-shop"}}
	creds := NewCredentialCache(tenants, src, Config{TTL: 15 * time.Minute, Now: clock.Now}, nil)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		cred, err := creds.Get(ctx, "acme")
		if err != nil {
			t.Fatalf("Get error: %v", err)
		}
		if cred.Secret != "s3cret" || cred.Subdomain != "acme-shop" {
			t.Errorf("credential = %+v, want acme-shop/s3cret", cred)
		}
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("source opened %d times, want 1", n)
	}

	clock.Advance(15 * time.Minute)
	cred, _ := creds.Get(ctx, "acme")
	if n := src.calls.Load(); n != 2 {
		t.Errorf("source opened %d times after expiry, want 2", n)
	}
	if cred.Expired(clock.Now()) {
		t.Error("fresh credential reports expired")
	}

	if _, err := creds.Get(ctx, "ghost"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Get(ghost) error = %v, want ErrNotFound", err)
	}
}

func TestSealedSourceRoundTrip(t *testing.T) {
	src, err := NewSealedSource("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	if err != nil {
		t.Fatalf("NewSealedSource: %v", err)
	}
	sealed, err := src.Seal("tenant-api-secret")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	got, err := src.Open(context.Background(), "acme", config.Tenant{SealedSecret: sealed})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != "tenant-api-secret" {
		t.Errorf("Open = %q, want tenant-api-secret", got)
	}

	other, _ := NewSealedSource("ff0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	if _, err := other.Open(context.Background(), "acme", config.Tenant{SealedSecret: sealed}); err == nil {
		t.Error("Open with wrong key = nil error, want failure")
	}

	if _, err := NewSealedSource("abcd"); err == nil {
		t.Error("NewSealedSource(short key) = nil error, want failure")
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), RedisOptions{Addr: mr.Addr(), PoolSize: 4, Prefix: "order-engine-test:"})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return mr, store
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestRedis(t)

	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, model.ErrCacheMiss) {
		t.Errorf("Get(missing) error = %v, want ErrCacheMiss", err)
	}

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("order-engine-test:k") {
		t.Error("key not written under the store prefix")
	}
	data, ttl, err := store.Get(ctx, "k")
	if err != nil || string(data) != "v" || ttl <= 0 || ttl > time.Minute {
		t.Errorf("Get(k) = %q, %v, %v; want v, (0,1m], nil", data, ttl, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, _, err := store.Get(ctx, "k"); !errors.Is(err, model.ErrCacheMiss) {
		t.Errorf("Get(expired) error = %v, want ErrCacheMiss", err)
	}

	// A key written without expiry is refilled rather than trusted forever.
	mr.Set("order-engine-test:raw", "v")
	if _, _, err := store.Get(ctx, "raw"); !errors.Is(err, model.ErrCacheMiss) {
		t.Errorf("Get(no expiry) error = %v, want ErrCacheMiss", err)
	}

	store.Set(ctx, "gone", []byte("v"), time.Minute)
	if err := store.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if mr.Exists("order-engine-test:gone") {
		t.Error("Delete left the key in redis")
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, store := newTestRedis(t)
	mr.Close()

	_, _, err := store.Get(context.Background(), "k")
	if err == nil || errors.Is(err, model.ErrCacheMiss) {
		t.Errorf("Get with redis down = %v, want a connection error", err)
	}
}

func TestTieredOverRedisSharesEntries(t *testing.T) {
	ctx := context.Background()
	_, store := newTestRedis(t)

	type item struct {
		Name string `json:"name"`
	}
	writer := NewTiered[item](Config{TTL: time.Minute}, store, "p:", nil)
	reader := NewTiered[item](Config{TTL: time.Minute}, store, "p:", nil)

	writer.Set(ctx, "prod001", item{Name: "Pizza"})

	var loads atomic.Int32
	got, err := reader.GetOrLoad(ctx, "prod001", func(context.Context) (item, error) {
		loads.Add(1)
		return item{}, errors.New("should come from redis")
	})
	if err != nil || got.Name != "Pizza" {
		t.Fatalf("GetOrLoad = %+v, %v; want Pizza, nil", got, err)
	}
	if loads.Load() != 0 {
		t.Errorf("loader called %d times, want 0", loads.Load())
	}
	if _, ok := reader.Local().Get("prod001"); !ok {
		t.Error("shared hit did not repopulate the local tier")
	}
}
