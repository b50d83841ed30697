// Package cache provides a short-TTL in-memory cache for per-agent
// metric detection results. Detection walks every step of every recent
// execution, so callers analyzing the same agent repeatedly (trend runs,
// dashboard refreshes) should not redo it within the window.
package cache

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowlens-ai/flowlens/internal/model"
)

// DetectionCache caches the detected key metric per agent.
// Call Close to stop the background eviction goroutine.
type DetectionCache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]cachedDetection
	ttl     time.Duration
	done    chan struct{}
}

type cachedDetection struct {
	metric    model.DetectedMetric
	expiresAt time.Time
}

func NewDetectionCache(ttl time.Duration) *DetectionCache {
	c := &DetectionCache{
		entries: make(map[uuid.UUID]cachedDetection),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go c.evictLoop()
	return c
}

// Get returns the cached detection and true if a valid entry exists.
func (c *DetectionCache) Get(agentID uuid.UUID) (model.DetectedMetric, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[agentID]
	if !ok || time.Now().After(entry.expiresAt) {
		return model.DetectedMetric{}, false
	}
	return entry.metric, true
}

// Set stores a detection with the configured TTL.
func (c *DetectionCache) Set(agentID uuid.UUID, m model.DetectedMetric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[agentID] = cachedDetection{
		metric:    m,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Invalidate drops the agent's entry, if any. Called after new metrics
// land so the next analysis re-detects against fresh data.
func (c *DetectionCache) Invalidate(agentID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, agentID)
}

// Close stops the background eviction goroutine.
func (c *DetectionCache) Close() {
	close(c.done)
}

func (c *DetectionCache) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *DetectionCache) evictExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
		}
	}
}
