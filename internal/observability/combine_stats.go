// Package observability tracks preprocessing graph evaluation statistics:
// per-node recompute counts, cache hits, and time spent.
package observability

import (
	"sort"
	"sync"
	"time"
)

// CombineStats collects per-node evaluation statistics across Combine calls.
// All methods are O(1) and thread-safe.
type CombineStats struct {
	mu    sync.RWMutex
	nodes map[string]*NodeStats
}

// NodeStats holds the evaluation counters of one graph node.
type NodeStats struct {
	PK            string
	Evaluations   int64
	CacheHits     int64
	TotalDuration time.Duration
	LastEvaluated time.Time
}

// NewCombineStats creates an empty statistics tracker.
func NewCombineStats() *CombineStats {
	return &CombineStats{nodes: make(map[string]*NodeStats)}
}

// RecordEvaluation records a full recompute of a node.
func (c *CombineStats) RecordEvaluation(pk string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.get(pk)
	stats.Evaluations++
	stats.TotalDuration += d
	stats.LastEvaluated = time.Now()
}

// RecordCacheHit records a node output served from cache.
func (c *CombineStats) RecordCacheHit(pk string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.get(pk).CacheHits++
}

// Node returns a copy of one node's counters.
func (c *CombineStats) Node(pk string) (NodeStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats, ok := c.nodes[pk]
	if !ok {
		return NodeStats{}, false
	}
	return *stats, true
}

// Top returns the n most expensive nodes by total evaluation time.
func (c *CombineStats) Top(n int) []NodeStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n <= 0 || len(c.nodes) == 0 {
		return []NodeStats{}
	}

	stats := make([]NodeStats, 0, len(c.nodes))
	for _, s := range c.nodes {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].TotalDuration > stats[j].TotalDuration
	})
	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Reset clears all counters.
func (c *CombineStats) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nodes = make(map[string]*NodeStats)
}

func (c *CombineStats) get(pk string) *NodeStats {
	stats, ok := c.nodes[pk]
	if !ok {
		stats = &NodeStats{PK: pk}
		c.nodes[pk] = stats
	}
	return stats
}
