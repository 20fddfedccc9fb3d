package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger is the logging surface the registry needs. logging.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards everything; the default until SetLogger is called.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device and metric management with caching.
// It wraps a Repository and adds an in-memory cache keyed by device key.
//
// The cache is populated on startup via RefreshCache() and kept in sync by
// the mutating operations. Telemetry mutation funnels through the single
// ingestion goroutine, but reads may come from any goroutine, so the cache
// is lock-guarded and hands out deep copies only.
type Registry struct {
	repo    Repository
	cache   map[string]*Device // Cached devices by device key
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry wraps a repository with the cache layer.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger replaces the no-op default.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache rebuilds the cache from the repository. Called once at
// startup before telemetry starts flowing.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		r.cache[devices[i].Key] = devices[i].DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice returns a deep copy of the device with the given key, or
// ErrDeviceNotFound. A cache miss falls through to the repository so a
// device created on another path is still found.
func (r *Registry) GetDevice(ctx context.Context, key string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[key]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := r.repo.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[key] = d.DeepCopy()
	r.cacheMu.Unlock()

	return d, nil
}

// ListDevices returns deep copies of every known device.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	if len(r.cache) > 0 {
		devices := make([]Device, 0, len(r.cache))
		for _, d := range r.cache {
			devices = append(devices, *d.DeepCopy())
		}
		r.cacheMu.RUnlock()
		return devices, nil
	}
	r.cacheMu.RUnlock()

	return r.repo.List(ctx)
}

// DeviceCount returns the number of cached devices.
func (r *Registry) DeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// SingleKnownDevice returns the key of the only registered device, if
// exactly one exists. Legacy firmware omits identity from some topics; when
// the installation has a single hub, those messages are attributed to it.
func (r *Registry) SingleKnownDevice() (string, bool) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) != 1 {
		return "", false
	}
	for key := range r.cache {
		return key, true
	}
	return "", false
}

// EnsureDevice registers the device if unknown, otherwise refreshes
// last_seen and reactivates it. Returns a deep copy of the stored device
// and whether it was newly created.
func (r *Registry) EnsureDevice(ctx context.Context, key string) (*Device, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyDeviceKey
	}

	r.cacheMu.RLock()
	_, known := r.cache[key]
	r.cacheMu.RUnlock()

	d, err := r.repo.EnsureDevice(ctx, key, time.Now().UTC())
	if err != nil {
		return nil, false, err
	}

	r.cacheMu.Lock()
	r.cache[key] = d.DeepCopy()
	r.cacheMu.Unlock()

	if !known {
		r.logger.Info("device registered", "device", key)
	}
	return d, !known, nil
}

// SyncMetrics reconciles a device's metrics with discovery definitions.
//
// Idempotent: existing metrics get display_name/unit updates, missing ones
// are created. A definition whose type differs from the stored metric is
// skipped with a warning and reported as ErrMetricTypeConflict in the
// returned error map; the stored metric wins.
//
// Returns the device's metrics (after sync) keyed by metric key, and a map
// of per-definition errors (empty when everything applied cleanly).
func (r *Registry) SyncMetrics(ctx context.Context, deviceKey string, defs map[string]MetricDef) (map[string]*Metric, map[string]error, error) {
	d, err := r.GetDevice(ctx, deviceKey)
	if err != nil {
		return nil, nil, err
	}

	defErrs := make(map[string]error)
	for key, def := range defs {
		existing, ok := d.Metrics[key]
		if ok {
			if existing.Type != def.Type {
				r.logger.Warn("metric type conflict ignored",
					"device", deviceKey,
					"metric", key,
					"stored", existing.Type,
					"announced", def.Type,
				)
				defErrs[key] = fmt.Errorf("%w: %s is %s, announced as %s",
					ErrMetricTypeConflict, key, existing.Type, def.Type)
				continue
			}
			if existing.DisplayName != def.DisplayName || existing.Unit != def.Unit {
				if err := r.repo.UpdateMetricInfo(ctx, existing.ID, def.DisplayName, def.Unit); err != nil {
					defErrs[key] = err
					continue
				}
				existing.DisplayName = def.DisplayName
				existing.Unit = def.Unit
			}
			continue
		}

		m := &Metric{
			DeviceID:    d.ID,
			Key:         key,
			DisplayName: def.DisplayName,
			Unit:        def.Unit,
			Type:        def.Type,
			Mode:        ModeManual,
		}
		if err := r.repo.CreateMetric(ctx, m); err != nil {
			defErrs[key] = err
			continue
		}
		d.Metrics[key] = m
		r.logger.Debug("metric created", "device", deviceKey, "metric", key, "type", def.Type)
	}

	r.cacheMu.Lock()
	r.cache[deviceKey] = d.DeepCopy()
	r.cacheMu.Unlock()

	return d.Metrics, defErrs, nil
}

// ResolveOrCreateMetric returns the metric for (deviceKey, metricKey),
// creating it from def when absent. Lookup order: cache, store, synthesize.
// An existing metric with a different type returns ErrMetricTypeConflict.
func (r *Registry) ResolveOrCreateMetric(ctx context.Context, deviceKey, metricKey string, def MetricDef) (*Metric, error) {
	d, err := r.GetDevice(ctx, deviceKey)
	if err != nil {
		return nil, err
	}

	if m, ok := d.Metrics[metricKey]; ok {
		if m.Type != def.Type {
			return nil, fmt.Errorf("%w: %s is %s, requested as %s",
				ErrMetricTypeConflict, metricKey, m.Type, def.Type)
		}
		return m, nil
	}

	m := &Metric{
		DeviceID:    d.ID,
		Key:         metricKey,
		DisplayName: def.DisplayName,
		Unit:        def.Unit,
		Type:        def.Type,
		Mode:        ModeManual,
	}
	if err := r.repo.CreateMetric(ctx, m); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[deviceKey]; ok {
		updated := cached.DeepCopy()
		if updated.Metrics == nil {
			updated.Metrics = make(map[string]*Metric)
		}
		mc := *m
		updated.Metrics[metricKey] = &mc
		r.cache[deviceKey] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("metric synthesized", "device", deviceKey, "metric", metricKey, "type", def.Type)
	return m, nil
}

// ActuatorModes returns the control mode of every actuator on the given
// devices (all devices when none specified), keyed device key → actuator
// key → mode.
func (r *Registry) ActuatorModes(ctx context.Context, deviceKeys ...string) (map[string]map[string]ControlMode, error) {
	var devices []Device
	if len(deviceKeys) == 0 {
		var err error
		devices, err = r.ListDevices(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		for _, key := range deviceKeys {
			d, err := r.GetDevice(ctx, key)
			if err != nil {
				return nil, err
			}
			devices = append(devices, *d)
		}
	}

	modes := make(map[string]map[string]ControlMode, len(devices))
	for i := range devices {
		d := &devices[i]
		actuators := make(map[string]ControlMode)
		for key, m := range d.Metrics {
			if m.Type == MetricTypeActuator {
				actuators[key] = m.Mode
			}
		}
		modes[d.Key] = actuators
	}
	return modes, nil
}

// SetActuatorMode switches an actuator between manual and auto control.
// Returns ErrNotActuator when the metric is a sensor.
func (r *Registry) SetActuatorMode(ctx context.Context, deviceKey, actuatorKey string, mode ControlMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidControlMode, mode)
	}

	d, err := r.GetDevice(ctx, deviceKey)
	if err != nil {
		return err
	}

	m, ok := d.Metrics[actuatorKey]
	if !ok {
		return ErrMetricNotFound
	}
	if m.Type != MetricTypeActuator {
		return fmt.Errorf("%w: %s/%s", ErrNotActuator, deviceKey, actuatorKey)
	}

	if err := r.repo.SetMetricMode(ctx, m.ID, mode); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[deviceKey]; ok {
		updated := cached.DeepCopy()
		if um, ok := updated.Metrics[actuatorKey]; ok {
			um.Mode = mode
		}
		r.cache[deviceKey] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Info("actuator mode changed", "device", deviceKey, "actuator", actuatorKey, "mode", mode)
	return nil
}

// ActuatorMode returns the control mode of one actuator.
func (r *Registry) ActuatorMode(ctx context.Context, deviceKey, actuatorKey string) (ControlMode, error) {
	d, err := r.GetDevice(ctx, deviceKey)
	if err != nil {
		return "", err
	}
	m, ok := d.Metrics[actuatorKey]
	if !ok {
		return "", ErrMetricNotFound
	}
	if m.Type != MetricTypeActuator {
		return "", fmt.Errorf("%w: %s/%s", ErrNotActuator, deviceKey, actuatorKey)
	}
	return m.Mode, nil
}

// UpdateDeviceInfo updates descriptive fields and refreshes the cache.
func (r *Registry) UpdateDeviceInfo(ctx context.Context, key, name, description string, metadata map[string]any) error {
	if err := r.repo.UpdateDeviceInfo(ctx, key, name, description, metadata); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[key]; ok {
		updated := cached.DeepCopy()
		updated.Name = name
		updated.Description = description
		updated.Metadata = metadata
		r.cache[key] = updated
	}
	r.cacheMu.Unlock()
	return nil
}

// MarkInactiveBefore deactivates devices not seen since cutoff and returns
// their keys. Cache entries are updated in place.
func (r *Registry) MarkInactiveBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	keys, err := r.repo.MarkInactiveBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	r.cacheMu.Lock()
	for _, key := range keys {
		if cached, ok := r.cache[key]; ok {
			updated := cached.DeepCopy()
			updated.IsActive = false
			r.cache[key] = updated
		}
	}
	r.cacheMu.Unlock()

	r.logger.Info("devices marked inactive", "count", len(keys))
	return keys, nil
}
