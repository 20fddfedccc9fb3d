package core

import (
	"context"
	"testing"
	"time"

	"github.com/verdantlabs/hydrocore/internal/control"
	"github.com/verdantlabs/hydrocore/internal/device"
	"github.com/verdantlabs/hydrocore/internal/events"
	"github.com/verdantlabs/hydrocore/internal/infrastructure/mqtt"
	"github.com/verdantlabs/hydrocore/internal/telemetry"
)

type memRepo struct {
	devices map[string]*device.Device
	nextID  int64
}

func newMemRepo() *memRepo {
	return &memRepo{devices: make(map[string]*device.Device), nextID: 1}
}

func (m *memRepo) GetByKey(_ context.Context, key string) (*device.Device, error) {
	d, ok := m.devices[key]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (m *memRepo) List(_ context.Context) ([]device.Device, error) {
	var out []device.Device
	for _, d := range m.devices {
		out = append(out, *d.DeepCopy())
	}
	return out, nil
}

func (m *memRepo) EnsureDevice(_ context.Context, key string, seenAt time.Time) (*device.Device, error) {
	if d, ok := m.devices[key]; ok {
		d.LastSeen = seenAt
		d.IsActive = true
		return d.DeepCopy(), nil
	}
	d := &device.Device{
		ID: m.nextID, Key: key, Name: key, IsActive: true,
		LastSeen: seenAt, CreatedAt: seenAt,
		Metrics: make(map[string]*device.Metric),
	}
	m.nextID++
	m.devices[key] = d
	return d.DeepCopy(), nil
}

func (m *memRepo) UpdateDeviceInfo(_ context.Context, key, name, description string, metadata map[string]any) error {
	d, ok := m.devices[key]
	if !ok {
		return device.ErrDeviceNotFound
	}
	d.Name, d.Description, d.Metadata = name, description, metadata
	return nil
}

func (m *memRepo) CreateMetric(_ context.Context, metric *device.Metric) error {
	metric.ID = m.nextID
	m.nextID++
	for _, d := range m.devices {
		if d.ID == metric.DeviceID {
			mc := *metric
			d.Metrics[metric.Key] = &mc
			return nil
		}
	}
	return device.ErrDeviceNotFound
}

func (m *memRepo) UpdateMetricInfo(_ context.Context, id int64, displayName, unit string) error {
	for _, d := range m.devices {
		for _, metric := range d.Metrics {
			if metric.ID == id {
				metric.DisplayName, metric.Unit = displayName, unit
				return nil
			}
		}
	}
	return device.ErrMetricNotFound
}

func (m *memRepo) SetMetricMode(_ context.Context, id int64, mode device.ControlMode) error {
	for _, d := range m.devices {
		for _, metric := range d.Metrics {
			if metric.ID == id {
				metric.Mode = mode
				return nil
			}
		}
	}
	return device.ErrMetricNotFound
}

func (m *memRepo) InsertReading(_ context.Context, _ int64, _ time.Time, _ string) error {
	return nil
}

func (m *memRepo) LatestPerMetric(_ context.Context) ([]device.LatestReading, error) {
	return nil, nil
}

func (m *memRepo) MarkInactiveBefore(_ context.Context, _ time.Time) ([]string, error) {
	return nil, nil
}

func (m *memRepo) DeleteReadingsBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type nullTransport struct{}

func (nullTransport) Publish(string, []byte, byte, bool) error { return nil }

func newTestCore(t *testing.T) (*Core, *device.Registry, *telemetry.ValueCache) {
	t.Helper()
	registry := device.NewRegistry(newMemRepo())
	cache := telemetry.NewValueCache()
	publisher := control.NewPublisher(nullTransport{}, mqtt.NewTopics(""), 1, 100.0, nil)
	controller := control.NewController(registry, publisher, nil)
	return New(registry, cache, controller, events.NewBroker()), registry, cache
}

func TestCoreListDevices(t *testing.T) {
	c, registry, _ := newTestCore(t)
	ctx := context.Background()

	if _, _, err := registry.EnsureDevice(ctx, "grow1"); err != nil {
		t.Fatal(err)
	}

	devices, err := c.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 1 || devices[0].Key != "grow1" {
		t.Errorf("devices = %+v", devices)
	}
}

func TestCoreLatestReadings(t *testing.T) {
	c, _, cache := newTestCore(t)
	now := time.Now()
	cache.Set("grow1", "ph", 5.8, now)
	cache.Set("grow2", "ec", 2.1, now)

	all := c.LatestReadings()
	if len(all) != 2 {
		t.Errorf("got %d devices, want 2", len(all))
	}

	one := c.LatestReadings("grow1")
	if len(one) != 1 || one["grow1"]["ph"].Value != 5.8 {
		t.Errorf("filtered readings = %+v", one)
	}

	if len(c.LatestReadings("ghost")) != 0 {
		t.Error("unknown device should yield nothing")
	}
}

func TestCoreControlRoundTrip(t *testing.T) {
	c, registry, _ := newTestCore(t)
	ctx := context.Background()

	if _, _, err := registry.EnsureDevice(ctx, "grow1"); err != nil {
		t.Fatal(err)
	}
	if _, err := registry.ResolveOrCreateMetric(ctx, "grow1", "relay1", device.MetricDef{
		Type: device.MetricTypeActuator,
	}); err != nil {
		t.Fatal(err)
	}

	if err := c.SetActuatorMode(ctx, "grow1", "relay1", device.ModeAuto); err != nil {
		t.Fatalf("SetActuatorMode() error = %v", err)
	}
	modes, err := c.ActuatorModes(ctx, "grow1")
	if err != nil {
		t.Fatal(err)
	}
	if modes["grow1"]["relay1"] != device.ModeAuto {
		t.Errorf("modes = %+v", modes)
	}

	// User command blocked in auto without force, allowed with it.
	result := c.ControlBatch(ctx, []control.Command{
		{DeviceID: "grow1", Actuator: "relay1", State: "on"},
	}, control.SourceUser, false)
	if len(result.Blocked) != 1 {
		t.Errorf("result = %+v, want blocked", result)
	}

	result = c.ControlBatch(ctx, []control.Command{
		{DeviceID: "grow1", Actuator: "relay1", State: "on"},
	}, control.SourceUser, true)
	if len(result.Processed) != 1 {
		t.Errorf("result = %+v, want processed", result)
	}
}

func TestCoreSubscribe(t *testing.T) {
	c, _, _ := newTestCore(t)
	sub := c.Subscribe()
	defer c.Unsubscribe(sub)
	if sub == nil || sub.C == nil {
		t.Fatal("Subscribe() returned unusable subscriber")
	}
}
