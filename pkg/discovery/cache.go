package discovery

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	// DefaultCacheCapacity bounds distinct executor configurations held at
	// once.
	DefaultCacheCapacity = 64
	// DefaultCacheTTL is how long a discovery result stays fresh.
	DefaultCacheTTL = 5 * time.Minute
)

// CacheKey identifies one cached discovery result. Path is empty for the
// global scope; CmdKey folds in everything about the executor configuration
// that changes what the agent would report.
type CacheKey struct {
	Path   string
	CmdKey string
	Kind   string
}

type cacheEntry struct {
	cachedAt time.Time
	options  Options
}

// Cache is a TTL-bounded LRU of discovery results. Expiry is checked on
// read; an expired entry is evicted and reported as a miss.
type Cache struct {
	mu  sync.Mutex
	lru *simplelru.LRU[CacheKey, cacheEntry]
	ttl time.Duration
}

// NewCache creates a cache with the given capacity and TTL.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	lru, _ := simplelru.NewLRU[CacheKey, cacheEntry](capacity, nil)
	return &Cache{lru: lru, ttl: ttl}
}

var (
	sharedCache     *Cache
	sharedCacheOnce sync.Once
)

// SharedCache returns the process-wide discovery cache.
func SharedCache() *Cache {
	sharedCacheOnce.Do(func() {
		sharedCache = NewCache(DefaultCacheCapacity, DefaultCacheTTL)
	})
	return sharedCache
}

// Get returns the cached options for key, or false on miss or expiry.
func (c *Cache) Get(key CacheKey) (Options, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lru.Get(key)
	if !ok {
		return Options{}, false
	}
	if time.Since(entry.cachedAt) > c.ttl {
		c.lru.Remove(key)
		return Options{}, false
	}
	return entry.options, true
}

// Put stores options under key, refreshing its TTL.
func (c *Cache) Put(key CacheKey, options Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, cacheEntry{cachedAt: time.Now(), options: options})
}

// Len reports the number of live entries, expired ones included until read.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// InvalidateKind drops every cached result for one executor kind, across all
// scopes and command configurations. Used when on-disk command definitions
// change under a watched directory.
func (c *Cache) InvalidateKind(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.lru.Keys() {
		if key.Kind == kind {
			c.lru.Remove(key)
		}
	}
}

// Scope names the directories a discovery request is made for. Workdir is
// the task worktree; RepoPath is the repository it was created from. Either
// may be empty.
type Scope struct {
	Workdir  string
	RepoPath string
}

// Lookup consults the cache for the most specific scope available.
//
// A fresh entry at the request's own scope is a hit: the caller can answer
// without running discovery. Otherwise broader scopes (repo, then global)
// provide provisional data to show while discovery runs, and TargetPath
// records where the eventual result should be written back.
type Lookup struct {
	// Hit holds the exact-scope result when Fresh is true.
	Hit   Options
	Fresh bool
	// TargetPath is the scope path the refreshed result belongs to; empty
	// means global.
	TargetPath string
	// Provisional is the best stale-scope guess, loading flags set.
	Provisional Options
}

// Resolve performs the scope fallback for one discovery request.
func (c *Cache) Resolve(kind, cmdKey string, scope Scope, defaults Options) Lookup {
	key := func(path string) CacheKey {
		return CacheKey{Path: path, CmdKey: cmdKey, Kind: kind}
	}

	switch {
	case scope.Workdir != "":
		if cached, ok := c.Get(key(scope.Workdir)); ok {
			return Lookup{Hit: cached.WithLoading(false), Fresh: true}
		}
		provisional, ok := Options{}, false
		if scope.RepoPath != "" {
			provisional, ok = c.Get(key(scope.RepoPath))
		}
		if !ok {
			provisional, ok = c.Get(key(""))
		}
		if !ok {
			provisional = defaults
		}
		return Lookup{TargetPath: scope.Workdir, Provisional: provisional.WithLoading(true)}

	case scope.RepoPath != "":
		if cached, ok := c.Get(key(scope.RepoPath)); ok {
			return Lookup{Hit: cached.WithLoading(false), Fresh: true}
		}
		provisional, ok := c.Get(key(""))
		if !ok {
			provisional = defaults
		}
		return Lookup{TargetPath: scope.RepoPath, Provisional: provisional.WithLoading(true)}

	default:
		if cached, ok := c.Get(key("")); ok {
			return Lookup{Hit: cached.WithLoading(false), Fresh: true}
		}
		return Lookup{Provisional: defaults.WithLoading(true)}
	}
}

// WriteBack stores a completed discovery result at its originating scope and
// at the global scope, so unscoped requests benefit too.
func (c *Cache) WriteBack(kind, cmdKey, targetPath string, options Options) {
	if targetPath != "" {
		c.Put(CacheKey{Path: targetPath, CmdKey: cmdKey, Kind: kind}, options)
	}
	c.Put(CacheKey{CmdKey: cmdKey, Kind: kind}, options)
}
