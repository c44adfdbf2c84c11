package resolver

import (
	"sync"

	"github.com/solatis/qualify/internal/conditions"
)

// cache maps context signatures to memos. The outer map is guarded by an
// RWMutex; each memo has its own lock so different contexts resolve in
// parallel.
type cache struct {
	mu          sync.RWMutex
	memos       map[string]*memo
	maxContexts int
	metrics     Metrics
}

func newCache(maxContexts int, metrics Metrics) *cache {
	return &cache{
		memos:       make(map[string]*memo),
		maxContexts: maxContexts,
		metrics:     metrics,
	}
}

func (c *cache) memo(signature string) *memo {
	c.mu.RLock()
	m, ok := c.memos[signature]
	c.mu.RUnlock()
	if ok {
		return m
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.memos[signature]; ok {
		return m
	}
	if c.maxContexts > 0 && len(c.memos) >= c.maxContexts {
		c.memos = make(map[string]*memo)
		if c.metrics != nil {
			c.metrics.CacheReset()
		}
	}
	m = newMemo()
	c.memos[signature] = m
	return m
}

func (c *cache) reset() {
	c.mu.Lock()
	c.memos = make(map[string]*memo)
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.CacheReset()
	}
}

func (c *cache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.memos)
}

func (c *cache) hit(table string) {
	if c.metrics != nil {
		c.metrics.CacheHit(table)
	}
}

func (c *cache) miss(table string) {
	if c.metrics != nil {
		c.metrics.CacheMiss(table)
	}
}

// memo holds results for one context signature.
type memo struct {
	mu         sync.Mutex
	conditions map[int]conditions.MatchResult
	decisions  map[int][]rankedSet
	values     map[int]any
}

func newMemo() *memo {
	return &memo{
		conditions: make(map[int]conditions.MatchResult),
		decisions:  make(map[int][]rankedSet),
		values:     make(map[int]any),
	}
}

func (m *memo) condition(i int) (conditions.MatchResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.conditions[i]
	return r, ok
}

func (m *memo) storeCondition(i int, r conditions.MatchResult) {
	m.mu.Lock()
	m.conditions[i] = r
	m.mu.Unlock()
}

// decision returns a shared slice; callers must not modify it.
func (m *memo) decision(i int) ([]rankedSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.decisions[i]
	return r, ok
}

func (m *memo) storeDecision(i int, r []rankedSet) {
	m.mu.Lock()
	m.decisions[i] = r
	m.mu.Unlock()
}

func (m *memo) composed(resource int) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[resource]
	return v, ok
}

func (m *memo) storeComposed(resource int, v any) {
	m.mu.Lock()
	m.values[resource] = v
	m.mu.Unlock()
}
