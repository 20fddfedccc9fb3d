package telemetry

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/verdantlabs/hydrocore/internal/device"
)

// CachedValue is the most recent observed value for one metric.
type CachedValue struct {
	Value     any
	Timestamp time.Time
}

// ValueCache holds the latest value per device/metric pair. It is the
// fast path for rule evaluation and state queries, avoiding a database
// round trip on every read.
//
// All methods are safe for concurrent use.
type ValueCache struct {
	mu     sync.RWMutex
	values map[string]map[string]CachedValue
}

// NewValueCache creates an empty cache.
func NewValueCache() *ValueCache {
	return &ValueCache{
		values: make(map[string]map[string]CachedValue),
	}
}

// Set records the latest value for a device metric.
func (c *ValueCache) Set(deviceKey, metricKey string, value any, timestamp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	metrics, ok := c.values[deviceKey]
	if !ok {
		metrics = make(map[string]CachedValue)
		c.values[deviceKey] = metrics
	}
	metrics[metricKey] = CachedValue{Value: value, Timestamp: timestamp}
}

// Get returns the cached value for a device metric, if present.
func (c *ValueCache) Get(deviceKey, metricKey string) (CachedValue, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	metrics, ok := c.values[deviceKey]
	if !ok {
		return CachedValue{}, false
	}
	v, ok := metrics[metricKey]
	return v, ok
}

// Float returns the cached value as a float64 when it is numeric.
func (c *ValueCache) Float(deviceKey, metricKey string) (float64, bool) {
	v, ok := c.Get(deviceKey, metricKey)
	if !ok {
		return 0, false
	}
	switch n := v.Value.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Device returns a copy of all cached values for one device.
func (c *ValueCache) Device(deviceKey string) map[string]CachedValue {
	c.mu.RLock()
	defer c.mu.RUnlock()

	metrics, ok := c.values[deviceKey]
	if !ok {
		return nil
	}
	out := make(map[string]CachedValue, len(metrics))
	for k, v := range metrics {
		out[k] = v
	}
	return out
}

// Snapshot returns a copy of the full cache contents.
func (c *ValueCache) Snapshot() map[string]map[string]CachedValue {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]map[string]CachedValue, len(c.values))
	for deviceKey, metrics := range c.values {
		dm := make(map[string]CachedValue, len(metrics))
		for k, v := range metrics {
			dm[k] = v
		}
		out[deviceKey] = dm
	}
	return out
}

// Warm seeds the cache from the latest persisted reading per metric.
// Values are stored JSON encoded in the readings table; entries that
// fail to decode are skipped.
func (c *ValueCache) Warm(readings []device.LatestReading) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range readings {
		var value any
		if err := json.Unmarshal([]byte(r.Value), &value); err != nil {
			continue
		}
		metrics, ok := c.values[r.DeviceKey]
		if !ok {
			metrics = make(map[string]CachedValue)
			c.values[r.DeviceKey] = metrics
		}
		metrics[r.MetricKey] = CachedValue{Value: value, Timestamp: r.Timestamp}
	}
}
