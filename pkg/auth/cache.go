package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	bberr "github.com/ssimonitch/back-burn-core/pkg/errors"
)

// SnapshotStore persists key-set snapshots outside process memory so a
// freshly started instance can warm its cache without an immediate provider
// fetch. The Redis-backed implementation lives in pkg/clients/redis.
//
// The store is strictly off the per-request path: snapshot writes happen
// after a successful refresh, reads happen only during [KeySetCache.Warm].
type SnapshotStore interface {
	// LoadSnapshot returns the most recently saved key-set document and
	// the time it was fetched from the provider. A store with no snapshot
	// returns (nil, zero time, nil).
	LoadSnapshot(ctx context.Context) (raw []byte, fetchedAt time.Time, err error)

	// SaveSnapshot persists a key-set document and its fetch time.
	SaveSnapshot(ctx context.Context, raw []byte, fetchedAt time.Time) error
}

// cachedKeySet pairs an immutable key-set snapshot with the time it was
// obtained from the provider.
type cachedKeySet struct {
	set       *KeySet
	fetchedAt time.Time
}

// KeySetCache holds the process-local view of the provider's key set. Reads
// ([KeySetCache.Lookup]) are lock-cheap and never perform I/O; writes happen
// only through [KeySetCache.Refresh], which replaces the whole snapshot
// atomically so concurrent readers observe either the old set or the new
// set, never a partially updated one.
//
// Refresh is single-flighted: when many goroutines request a refresh at
// once (the usual picture seconds after the provider rotates keys), exactly
// one fetch goes upstream and every caller shares its outcome.
//
// KeySetCache is safe for concurrent use by multiple goroutines.
type KeySetCache struct {
	fetcher KeySetFetcher
	clock   Clock
	ttl     time.Duration
	store   SnapshotStore // optional
	logger  *slog.Logger

	// fetchTimeout bounds the upstream fetch performed by Refresh. The
	// fetch runs on a context detached from the triggering caller so a
	// canceled request cannot abort a refresh other waiters depend on.
	fetchTimeout time.Duration

	mu       sync.RWMutex
	snapshot *cachedKeySet

	flight singleflight.Group
}

// refreshKey is the single-flight key for refresh calls. There is one
// upstream endpoint per cache, so all refreshes collapse onto one flight.
const refreshKey = "keyset-refresh"

// defaultFetchTimeout bounds a single upstream key-set fetch.
const defaultFetchTimeout = 10 * time.Second

// KeySetCacheOption configures optional behavior of a [KeySetCache].
type KeySetCacheOption func(*KeySetCache)

// WithSnapshotStore attaches a persistent snapshot store used by
// [KeySetCache.Warm] and written through after successful refreshes.
func WithSnapshotStore(store SnapshotStore) KeySetCacheOption {
	return func(c *KeySetCache) { c.store = store }
}

// WithCacheLogger sets the logger used for non-fatal cache events (snapshot
// store failures). Defaults to slog.Default().
func WithCacheLogger(logger *slog.Logger) KeySetCacheOption {
	return func(c *KeySetCache) { c.logger = logger }
}

// withFetchTimeout overrides the upstream fetch bound; used by tests.
func withFetchTimeout(d time.Duration) KeySetCacheOption {
	return func(c *KeySetCache) { c.fetchTimeout = d }
}

// NewKeySetCache creates an empty cache over the given fetcher. The ttl
// controls only snapshot-staleness decisions (whether a warm-start snapshot
// is usable, whether Fresh reports true); a known kid is always served from
// the snapshot regardless of age, since the provider keeps retired keys
// published during the overlap window.
func NewKeySetCache(fetcher KeySetFetcher, clock Clock, ttl time.Duration, opts ...KeySetCacheOption) *KeySetCache {
	if clock == nil {
		clock = SystemClock{}
	}
	c := &KeySetCache{
		fetcher:      fetcher,
		clock:        clock,
		ttl:          ttl,
		logger:       slog.Default(),
		fetchTimeout: defaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the key material for the given kid from the current
// snapshot. It never performs I/O; a miss is a signal for the caller to
// decide whether a refresh is warranted.
func (c *KeySetCache) Lookup(kid string) (KeyMaterial, bool) {
	c.mu.RLock()
	snap := c.snapshot
	c.mu.RUnlock()

	if snap == nil {
		return KeyMaterial{}, false
	}
	return snap.set.Lookup(kid)
}

// Fresh reports whether the cache holds a snapshot younger than the TTL.
func (c *KeySetCache) Fresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.snapshot == nil {
		return false
	}
	return c.clock.Now().Sub(c.snapshot.fetchedAt) < c.ttl
}

// Refresh fetches the current key set from the provider and atomically
// replaces the cached snapshot. Concurrent callers are coalesced into a
// single upstream fetch; each caller receives that shared fetch's outcome.
//
// The fetch itself runs detached from the triggering caller's context
// (bounded by the cache's fetch timeout) so that one canceled request does
// not abort a refresh that other coalesced waiters are relying on. The
// triggering caller still honors its own ctx: if ctx is done before the
// shared fetch completes, Refresh returns ctx.Err()-wrapped failure while
// the fetch continues for the remaining waiters.
//
// On failure the previous snapshot, if any, is retained.
func (c *KeySetCache) Refresh(ctx context.Context) error {
	ch := c.flight.DoChan(refreshKey, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		set, err := c.fetcher.Fetch(fetchCtx)
		if err != nil {
			return nil, err
		}

		now := c.clock.Now()
		c.mu.Lock()
		c.snapshot = &cachedKeySet{set: set, fetchedAt: now}
		c.mu.Unlock()

		c.persistSnapshot(set, now)
		return nil, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return bberr.Wrap(res.Err, bberr.CodeUnavailableUpstream,
				"auth: key-set refresh failed")
		}
		return nil
	case <-ctx.Done():
		return bberr.Wrap(ctx.Err(), bberr.CodeUnavailableUpstream,
			"auth: key-set refresh abandoned by caller")
	}
}

// Warm seeds the cache from the snapshot store, if one is configured.
// Snapshots older than the TTL are ignored: a stale warm start would let
// the first requests after a rotation skip the refresh they need. Warm
// failures are non-fatal; the cache simply starts cold.
func (c *KeySetCache) Warm(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	raw, fetchedAt, err := c.store.LoadSnapshot(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "key-set snapshot load failed; starting cold",
			slog.String("error", err.Error()))
		return nil
	}
	if raw == nil {
		return nil
	}
	if c.clock.Now().Sub(fetchedAt) >= c.ttl {
		return nil
	}

	set, err := ParseKeySet(raw)
	if err != nil {
		c.logger.WarnContext(ctx, "key-set snapshot unparsable; starting cold",
			slog.String("error", err.Error()))
		return nil
	}

	c.mu.Lock()
	// A refresh that raced ahead of Warm always wins.
	if c.snapshot == nil {
		c.snapshot = &cachedKeySet{set: set, fetchedAt: fetchedAt}
	}
	c.mu.Unlock()

	return nil
}

// persistSnapshot writes a freshly fetched snapshot to the store. Failures
// are logged, not returned: persistence is an optimization for the next
// process start, never a dependency of the refresh that just succeeded.
func (c *KeySetCache) persistSnapshot(set *KeySet, fetchedAt time.Time) {
	if c.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.store.SaveSnapshot(ctx, set.Document(), fetchedAt); err != nil {
		c.logger.WarnContext(ctx, "key-set snapshot save failed",
			slog.String("error", err.Error()))
	}
}
