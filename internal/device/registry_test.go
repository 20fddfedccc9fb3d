package device

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// mockRepository is an in-memory Repository for registry tests.
type mockRepository struct {
	devices map[string]*Device
	nextID  int64

	ensureCalls int
	failEnsure  error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		devices: make(map[string]*Device),
		nextID:  1,
	}
}

func (m *mockRepository) GetByKey(_ context.Context, key string) (*Device, error) {
	d, ok := m.devices[key]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (m *mockRepository) List(_ context.Context) ([]Device, error) {
	var out []Device
	for _, d := range m.devices {
		out = append(out, *d.DeepCopy())
	}
	return out, nil
}

func (m *mockRepository) EnsureDevice(_ context.Context, key string, seenAt time.Time) (*Device, error) {
	m.ensureCalls++
	if m.failEnsure != nil {
		return nil, m.failEnsure
	}
	if d, ok := m.devices[key]; ok {
		d.LastSeen = seenAt
		d.IsActive = true
		return d.DeepCopy(), nil
	}
	d := &Device{
		ID:         m.nextID,
		Key:        key,
		Name:       key,
		DeviceType: DefaultDeviceType,
		IsActive:   true,
		LastSeen:   seenAt,
		CreatedAt:  seenAt,
		Metrics:    make(map[string]*Metric),
	}
	m.nextID++
	m.devices[key] = d
	return d.DeepCopy(), nil
}

func (m *mockRepository) UpdateDeviceInfo(_ context.Context, key, name, description string, metadata map[string]any) error {
	d, ok := m.devices[key]
	if !ok {
		return ErrDeviceNotFound
	}
	d.Name = name
	d.Description = description
	d.Metadata = metadata
	return nil
}

func (m *mockRepository) CreateMetric(_ context.Context, metric *Metric) error {
	if !metric.Type.Valid() {
		return ErrInvalidMetricType
	}
	if metric.Mode == "" {
		metric.Mode = ModeManual
	}
	metric.ID = m.nextID
	m.nextID++
	for _, d := range m.devices {
		if d.ID == metric.DeviceID {
			mc := *metric
			d.Metrics[metric.Key] = &mc
			return nil
		}
	}
	return ErrDeviceNotFound
}

func (m *mockRepository) UpdateMetricInfo(_ context.Context, id int64, displayName, unit string) error {
	for _, d := range m.devices {
		for _, metric := range d.Metrics {
			if metric.ID == id {
				metric.DisplayName = displayName
				metric.Unit = unit
				return nil
			}
		}
	}
	return ErrMetricNotFound
}

func (m *mockRepository) SetMetricMode(_ context.Context, id int64, mode ControlMode) error {
	for _, d := range m.devices {
		for _, metric := range d.Metrics {
			if metric.ID == id {
				metric.Mode = mode
				return nil
			}
		}
	}
	return ErrMetricNotFound
}

func (m *mockRepository) InsertReading(_ context.Context, _ int64, _ time.Time, _ string) error {
	return nil
}

func (m *mockRepository) LatestPerMetric(_ context.Context) ([]LatestReading, error) {
	return nil, nil
}

func (m *mockRepository) MarkInactiveBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	var keys []string
	for key, d := range m.devices {
		if d.IsActive && d.LastSeen.Before(cutoff) {
			d.IsActive = false
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *mockRepository) DeleteReadingsBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func TestRegistryEnsureDevice(t *testing.T) {
	repo := newMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	d, created, err := registry.EnsureDevice(ctx, "grow1")
	if err != nil {
		t.Fatalf("EnsureDevice() error = %v", err)
	}
	if !created {
		t.Error("created = false for new device, want true")
	}
	if d.Key != "grow1" {
		t.Errorf("Key = %q, want grow1", d.Key)
	}

	_, created, err = registry.EnsureDevice(ctx, "grow1")
	if err != nil {
		t.Fatalf("second EnsureDevice() error = %v", err)
	}
	if created {
		t.Error("created = true for known device, want false")
	}
	if registry.DeviceCount() != 1 {
		t.Errorf("DeviceCount() = %d, want 1", registry.DeviceCount())
	}
}

func TestRegistryEnsureDeviceEmptyKey(t *testing.T) {
	registry := NewRegistry(newMockRepository())

	_, _, err := registry.EnsureDevice(context.Background(), "")
	if !errors.Is(err, ErrEmptyDeviceKey) {
		t.Errorf("EnsureDevice(\"\") error = %v, want ErrEmptyDeviceKey", err)
	}
}

func TestRegistryGetDeviceReturnsDeepCopy(t *testing.T) {
	repo := newMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	if _, _, err := registry.EnsureDevice(ctx, "grow1"); err != nil {
		t.Fatalf("EnsureDevice() error = %v", err)
	}
	if _, _, err := registry.SyncMetrics(ctx, "grow1", map[string]MetricDef{
		"relay1": {Type: MetricTypeActuator},
	}); err != nil {
		t.Fatalf("SyncMetrics() error = %v", err)
	}

	d1, err := registry.GetDevice(ctx, "grow1")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}

	// Mutating the returned copy must not leak into the cache.
	d1.Name = "tampered"
	d1.Metrics["relay1"].Mode = ModeAuto

	d2, err := registry.GetDevice(ctx, "grow1")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if d2.Name == "tampered" {
		t.Error("cache name mutated through returned copy")
	}
	if d2.Metrics["relay1"].Mode == ModeAuto {
		t.Error("cache metric mutated through returned copy")
	}
}

func TestSyncMetricsIdempotent(t *testing.T) {
	repo := newMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	if _, _, err := registry.EnsureDevice(ctx, "grow1"); err != nil {
		t.Fatalf("EnsureDevice() error = %v", err)
	}

	defs := map[string]MetricDef{
		"temperature": {DisplayName: "Temperature", Unit: "°C", Type: MetricTypeSensor},
		"relay1":      {DisplayName: "Pump", Type: MetricTypeActuator},
	}

	metrics, defErrs, err := registry.SyncMetrics(ctx, "grow1", defs)
	if err != nil {
		t.Fatalf("SyncMetrics() error = %v", err)
	}
	if len(defErrs) != 0 {
		t.Errorf("defErrs = %v, want none", defErrs)
	}
	if len(metrics) != 2 {
		t.Fatalf("got %d metrics, want 2", len(metrics))
	}

	// Second sync with updated display data changes info, creates nothing new.
	defs["temperature"] = MetricDef{DisplayName: "Air Temp", Unit: "°C", Type: MetricTypeSensor}
	metrics, defErrs, err = registry.SyncMetrics(ctx, "grow1", defs)
	if err != nil {
		t.Fatalf("second SyncMetrics() error = %v", err)
	}
	if len(defErrs) != 0 {
		t.Errorf("defErrs = %v, want none", defErrs)
	}
	if metrics["temperature"].DisplayName != "Air Temp" {
		t.Errorf("DisplayName = %q, want Air Temp", metrics["temperature"].DisplayName)
	}
}

func TestSyncMetricsTypeConflict(t *testing.T) {
	repo := newMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	if _, _, err := registry.EnsureDevice(ctx, "grow1"); err != nil {
		t.Fatalf("EnsureDevice() error = %v", err)
	}

	if _, _, err := registry.SyncMetrics(ctx, "grow1", map[string]MetricDef{
		"relay1": {Type: MetricTypeActuator},
	}); err != nil {
		t.Fatalf("SyncMetrics() error = %v", err)
	}

	// Re-announcing relay1 as a sensor must be rejected.
	metrics, defErrs, err := registry.SyncMetrics(ctx, "grow1", map[string]MetricDef{
		"relay1": {Type: MetricTypeSensor},
	})
	if err != nil {
		t.Fatalf("SyncMetrics() error = %v", err)
	}
	if !errors.Is(defErrs["relay1"], ErrMetricTypeConflict) {
		t.Errorf("defErrs[relay1] = %v, want ErrMetricTypeConflict", defErrs["relay1"])
	}
	if metrics["relay1"].Type != MetricTypeActuator {
		t.Errorf("stored type = %q, want actuator preserved", metrics["relay1"].Type)
	}
}

func TestResolveOrCreateMetric(t *testing.T) {
	repo := newMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	if _, _, err := registry.EnsureDevice(ctx, "grow1"); err != nil {
		t.Fatalf("EnsureDevice() error = %v", err)
	}

	def := MetricDef{Type: MetricTypeSensor}

	m1, err := registry.ResolveOrCreateMetric(ctx, "grow1", "humidity", def)
	if err != nil {
		t.Fatalf("ResolveOrCreateMetric() error = %v", err)
	}
	if m1.ID == 0 {
		t.Error("expected synthesized metric to have an ID")
	}

	// Resolving again returns the same metric without creating.
	m2, err := registry.ResolveOrCreateMetric(ctx, "grow1", "humidity", def)
	if err != nil {
		t.Fatalf("second ResolveOrCreateMetric() error = %v", err)
	}
	if m2.ID != m1.ID {
		t.Errorf("second resolve created a new metric: %d != %d", m2.ID, m1.ID)
	}

	// Conflicting type is rejected.
	_, err = registry.ResolveOrCreateMetric(ctx, "grow1", "humidity", MetricDef{Type: MetricTypeActuator})
	if !errors.Is(err, ErrMetricTypeConflict) {
		t.Errorf("error = %v, want ErrMetricTypeConflict", err)
	}
}

func TestSetActuatorMode(t *testing.T) {
	repo := newMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	if _, _, err := registry.EnsureDevice(ctx, "grow1"); err != nil {
		t.Fatalf("EnsureDevice() error = %v", err)
	}
	if _, _, err := registry.SyncMetrics(ctx, "grow1", map[string]MetricDef{
		"relay1":      {Type: MetricTypeActuator},
		"temperature": {Type: MetricTypeSensor},
	}); err != nil {
		t.Fatalf("SyncMetrics() error = %v", err)
	}

	if err := registry.SetActuatorMode(ctx, "grow1", "relay1", ModeAuto); err != nil {
		t.Fatalf("SetActuatorMode() error = %v", err)
	}

	mode, err := registry.ActuatorMode(ctx, "grow1", "relay1")
	if err != nil {
		t.Fatalf("ActuatorMode() error = %v", err)
	}
	if mode != ModeAuto {
		t.Errorf("mode = %q, want auto", mode)
	}

	// Sensors cannot have a control mode.
	err = registry.SetActuatorMode(ctx, "grow1", "temperature", ModeAuto)
	if !errors.Is(err, ErrNotActuator) {
		t.Errorf("SetActuatorMode(sensor) error = %v, want ErrNotActuator", err)
	}

	err = registry.SetActuatorMode(ctx, "grow1", "ghost", ModeAuto)
	if !errors.Is(err, ErrMetricNotFound) {
		t.Errorf("SetActuatorMode(unknown) error = %v, want ErrMetricNotFound", err)
	}

	err = registry.SetActuatorMode(ctx, "grow1", "relay1", "hybrid")
	if !errors.Is(err, ErrInvalidControlMode) {
		t.Errorf("SetActuatorMode(invalid mode) error = %v, want ErrInvalidControlMode", err)
	}
}

func TestActuatorModes(t *testing.T) {
	repo := newMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		key := fmt.Sprintf("grow%d", i)
		if _, _, err := registry.EnsureDevice(ctx, key); err != nil {
			t.Fatalf("EnsureDevice(%s) error = %v", key, err)
		}
		if _, _, err := registry.SyncMetrics(ctx, key, map[string]MetricDef{
			"relay1":      {Type: MetricTypeActuator},
			"temperature": {Type: MetricTypeSensor},
		}); err != nil {
			t.Fatalf("SyncMetrics(%s) error = %v", key, err)
		}
	}

	modes, err := registry.ActuatorModes(ctx)
	if err != nil {
		t.Fatalf("ActuatorModes() error = %v", err)
	}
	if len(modes) != 2 {
		t.Fatalf("got %d devices, want 2", len(modes))
	}
	for key, actuators := range modes {
		if len(actuators) != 1 {
			t.Errorf("%s: got %d actuators, want 1 (sensors excluded)", key, len(actuators))
		}
		if actuators["relay1"] != ModeManual {
			t.Errorf("%s/relay1 mode = %q, want manual default", key, actuators["relay1"])
		}
	}

	// Filtered by device key.
	modes, err = registry.ActuatorModes(ctx, "grow1")
	if err != nil {
		t.Fatalf("ActuatorModes(grow1) error = %v", err)
	}
	if len(modes) != 1 {
		t.Errorf("got %d devices, want 1", len(modes))
	}
}

func TestSingleKnownDevice(t *testing.T) {
	repo := newMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	if _, ok := registry.SingleKnownDevice(); ok {
		t.Error("SingleKnownDevice() = true with no devices, want false")
	}

	if _, _, err := registry.EnsureDevice(ctx, "grow1"); err != nil {
		t.Fatalf("EnsureDevice() error = %v", err)
	}
	key, ok := registry.SingleKnownDevice()
	if !ok || key != "grow1" {
		t.Errorf("SingleKnownDevice() = %q, %v; want grow1, true", key, ok)
	}

	if _, _, err := registry.EnsureDevice(ctx, "grow2"); err != nil {
		t.Fatalf("EnsureDevice() error = %v", err)
	}
	if _, ok := registry.SingleKnownDevice(); ok {
		t.Error("SingleKnownDevice() = true with two devices, want false")
	}
}

func TestRegistryMarkInactiveBefore(t *testing.T) {
	repo := newMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	if _, _, err := registry.EnsureDevice(ctx, "grow1"); err != nil {
		t.Fatalf("EnsureDevice() error = %v", err)
	}

	// Backdate the repo row so the sweep catches it.
	repo.devices["grow1"].LastSeen = time.Now().Add(-time.Hour)

	keys, err := registry.MarkInactiveBefore(ctx, time.Now().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("MarkInactiveBefore() error = %v", err)
	}
	if len(keys) != 1 || keys[0] != "grow1" {
		t.Fatalf("MarkInactiveBefore() = %v, want [grow1]", keys)
	}

	d, err := registry.GetDevice(ctx, "grow1")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if d.IsActive {
		t.Error("IsActive = true after sweep, want false (cache updated)")
	}
}
