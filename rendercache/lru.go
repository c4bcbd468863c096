package rendercache

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Backend is the get/set/invalidate contract a render cache offers to
// the pricing layer.
type Backend interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, tags []string)

	// Generation returns a token that changes whenever any of tags is
	// invalidated. Read it before computing a value.
	Generation(tags ...string) uint64

	// SetIfCurrent stores value only if no tag was invalidated since gen
	// was read, and reports whether it did.
	SetIfCurrent(key string, value []byte, tags []string, gen uint64) bool

	// InvalidateTags drops every entry carrying any of tags and returns how
	// many entries were removed.
	InvalidateTags(tags ...string) int
}

type entry struct {
	value []byte
	tags  []string
}

// LRU is a size-bounded Backend with a tag index
type LRU struct {
	size  int
	cache *lru.Cache[string, entry]

	mu      sync.Mutex
	byTag   map[string]map[string]struct{}
	gens    map[string]uint64
	indexed int // total keys across byTag, including evicted ones
}

// NewLRU creates a cache holding at most size entries
func NewLRU(size int) (*LRU, error) {
	cache, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create render cache: %w", err)
	}
	return &LRU{
		size:  size,
		cache: cache,
		byTag: make(map[string]map[string]struct{}),
		gens:  make(map[string]uint64),
	}, nil
}

func (c *LRU) Get(key string) ([]byte, bool) {
	e, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (c *LRU) Set(key string, value []byte, tags []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value, tags)
}

func (c *LRU) Generation(tags ...string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation(tags)
}

func (c *LRU) SetIfCurrent(key string, value []byte, tags []string, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation(tags) != gen {
		return false
	}
	c.set(key, value, tags)
	return true
}

// generation must be called with c.mu held. Per-tag counters only grow, so
// their sum changes whenever any one of them does.
func (c *LRU) generation(tags []string) uint64 {
	var sum uint64
	for _, tag := range tags {
		sum += c.gens[tag]
	}
	return sum
}

// set must be called with c.mu held
func (c *LRU) set(key string, value []byte, tags []string) {
	if old, ok := c.cache.Peek(key); ok {
		c.untag(key, old.tags)
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	c.cache.Add(key, entry{value: stored, tags: append([]string(nil), tags...)})

	for _, tag := range tags {
		keys, ok := c.byTag[tag]
		if !ok {
			keys = make(map[string]struct{})
			c.byTag[tag] = keys
		}
		if _, seen := keys[key]; !seen {
			keys[key] = struct{}{}
			c.indexed++
		}
	}

	// Evicted keys stay in the index until pruned.
	if c.indexed > 2*c.size {
		c.prune()
	}
}

func (c *LRU) InvalidateTags(tags ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, tag := range tags {
		c.gens[tag]++
		for key := range c.byTag[tag] {
			if e, ok := c.cache.Peek(key); ok {
				c.untag(key, e.tags)
				c.cache.Remove(key)
				removed++
			}
		}
		c.indexed -= len(c.byTag[tag])
		delete(c.byTag, tag)
	}
	return removed
}

// Len returns the number of cached entries
func (c *LRU) Len() int {
	return c.cache.Len()
}

// untag must be called with c.mu held
func (c *LRU) untag(key string, tags []string) {
	for _, tag := range tags {
		keys, ok := c.byTag[tag]
		if !ok {
			continue
		}
		if _, present := keys[key]; present {
			delete(keys, key)
			c.indexed--
		}
		if len(keys) == 0 {
			delete(c.byTag, tag)
		}
	}
}

// prune must be called with c.mu held
func (c *LRU) prune() {
	for tag, keys := range c.byTag {
		for key := range keys {
			if !c.cache.Contains(key) {
				delete(keys, key)
				c.indexed--
			}
		}
		if len(keys) == 0 {
			delete(c.byTag, tag)
		}
	}
}
