package telemetry

import (
	"testing"
	"time"

	"github.com/verdantlabs/hydrocore/internal/device"
)

func TestValueCacheSetGet(t *testing.T) {
	cache := NewValueCache()
	now := time.Now().UTC()

	cache.Set("grow1", "temperature", 21.5, now)

	v, ok := cache.Get("grow1", "temperature")
	if !ok {
		t.Fatal("Get() returned false for cached value")
	}
	if v.Value != 21.5 || !v.Timestamp.Equal(now) {
		t.Errorf("Get() = %+v", v)
	}

	if _, ok := cache.Get("grow1", "humidity"); ok {
		t.Error("Get() returned true for missing metric")
	}
	if _, ok := cache.Get("ghost", "temperature"); ok {
		t.Error("Get() returned true for missing device")
	}
}

func TestValueCacheFloat(t *testing.T) {
	cache := NewValueCache()
	now := time.Now().UTC()
	cache.Set("grow1", "temperature", 21.5, now)
	cache.Set("grow1", "relay1", "on", now)

	f, ok := cache.Float("grow1", "temperature")
	if !ok || f != 21.5 {
		t.Errorf("Float() = %v, %v; want 21.5, true", f, ok)
	}
	if _, ok := cache.Float("grow1", "relay1"); ok {
		t.Error("Float() = true for string value, want false")
	}
	if _, ok := cache.Float("grow1", "missing"); ok {
		t.Error("Float() = true for missing metric, want false")
	}
}

func TestValueCacheDeviceCopy(t *testing.T) {
	cache := NewValueCache()
	now := time.Now().UTC()
	cache.Set("grow1", "temperature", 21.5, now)

	snapshot := cache.Device("grow1")
	snapshot["temperature"] = CachedValue{Value: 99.0, Timestamp: now}

	v, _ := cache.Get("grow1", "temperature")
	if v.Value != 21.5 {
		t.Error("cache mutated through Device() copy")
	}

	if cache.Device("ghost") != nil {
		t.Error("Device() for unknown device should be nil")
	}
}

func TestValueCacheWarm(t *testing.T) {
	cache := NewValueCache()
	now := time.Now().UTC()

	cache.Warm([]device.LatestReading{
		{DeviceKey: "grow1", MetricKey: "temperature", Timestamp: now, Value: "21.5"},
		{DeviceKey: "grow1", MetricKey: "relay1", Timestamp: now, Value: `"on"`},
		{DeviceKey: "grow1", MetricKey: "broken", Timestamp: now, Value: "{not json"},
	})

	if f, ok := cache.Float("grow1", "temperature"); !ok || f != 21.5 {
		t.Errorf("temperature = %v, %v; want 21.5, true", f, ok)
	}
	v, ok := cache.Get("grow1", "relay1")
	if !ok || v.Value != "on" {
		t.Errorf("relay1 = %v, %v; want on, true", v.Value, ok)
	}
	if _, ok := cache.Get("grow1", "broken"); ok {
		t.Error("undecodable value should be skipped")
	}
}
