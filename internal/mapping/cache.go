package mapping

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of keys CachedStore keeps when no size is given.
const DefaultCacheSize = 4096

// CachedStore memoises Get results of another Store in an LRU cache.
// The cache is purged whenever records are inserted through it, and a
// lookup that overlaps an insert is not cached.
type CachedStore struct {
	Store
	cache *lru.Cache[string, []Record]

	mu        sync.Mutex
	gen       uint64 // bumped at the start and end of every insert
	inserting int
}

// NewCachedStore wraps store with an LRU cache of size keys.
func NewCachedStore(store Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, []Record](size)
	if err != nil {
		return nil, fmt.Errorf("creating lookup cache: %w", err)
	}
	return &CachedStore{Store: store, cache: c}, nil
}

// Get returns cached records for obfuscated, consulting the wrapped store on a miss.
func (c *CachedStore) Get(ctx context.Context, obfuscated string) ([]Record, error) {
	if recs, ok := c.cache.Get(obfuscated); ok {
		cacheLookups.WithLabelValues("hit").Inc()
		return slices.Clone(recs), nil
	}
	cacheLookups.WithLabelValues("miss").Inc()

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	recs, err := c.Store.Get(ctx, obfuscated)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen && c.inserting == 0 {
		c.cache.Add(obfuscated, slices.Clone(recs))
	}
	c.mu.Unlock()
	return recs, nil
}

func (c *CachedStore) beginInsert() {
	c.mu.Lock()
	c.gen++
	c.inserting++
	c.mu.Unlock()
}

func (c *CachedStore) endInsert() {
	c.mu.Lock()
	c.cache.Purge()
	c.gen++
	c.inserting--
	c.mu.Unlock()
}

// Insert forwards to the wrapped store and drops every cached lookup.
func (c *CachedStore) Insert(ctx context.Context, records iter.Seq2[Record, error]) (int, error) {
	c.beginInsert()
	defer c.endInsert()
	return c.Store.Insert(ctx, records)
}

// InsertSource forwards to the wrapped store when it tracks sources and
// falls back to Insert otherwise. The cache is purged either way.
func (c *CachedStore) InsertSource(ctx context.Context, source string, records iter.Seq2[Record, error]) (int, error) {
	c.beginInsert()
	defer c.endInsert()
	if si, ok := c.Store.(SourceInserter); ok {
		return si.InsertSource(ctx, source, records)
	}
	return c.Store.Insert(ctx, records)
}

// Stats forwards to the wrapped store when it supports it.
func (c *CachedStore) Stats(ctx context.Context) (Stats, error) {
	sp, ok := c.Store.(StatsProvider)
	if !ok {
		return Stats{}, fmt.Errorf("store %T does not report stats", c.Store)
	}
	return sp.Stats(ctx)
}

// Export forwards to the wrapped store when it supports it.
func (c *CachedStore) Export(ctx context.Context) iter.Seq2[SourcedRecord, error] {
	ex, ok := c.Store.(Exporter)
	if !ok {
		return func(yield func(SourcedRecord, error) bool) {
			yield(SourcedRecord{}, fmt.Errorf("store %T cannot export records", c.Store))
		}
	}
	return ex.Export(ctx)
}

// Len returns the number of cached keys.
func (c *CachedStore) Len() int { return c.cache.Len() }
