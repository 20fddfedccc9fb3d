package device

import (
	"time"
)

// MetricType classifies what a metric measures or drives.
type MetricType string

// Metric types.
const (
	// MetricTypeSensor is a measured value (temperature, ph, ...).
	MetricTypeSensor MetricType = "sensor"

	// MetricTypeActuator is a controllable output (relay, pump, light).
	MetricTypeActuator MetricType = "actuator"
)

// Valid reports whether the metric type is recognised.
func (t MetricType) Valid() bool {
	return t == MetricTypeSensor || t == MetricTypeActuator
}

// ControlMode determines who may drive an actuator.
type ControlMode string

// Control modes.
const (
	// ModeManual allows user and AI commands; automation is blocked.
	ModeManual ControlMode = "manual"

	// ModeAuto allows automation; users need force, AI is blocked.
	ModeAuto ControlMode = "auto"
)

// Valid reports whether the control mode is recognised.
func (m ControlMode) Valid() bool {
	return m == ModeManual || m == ModeAuto
}

// DefaultDeviceType is assigned to devices created from telemetry alone.
const DefaultDeviceType = "sensor-hub"

// Device is a registered sensor hub and its known metrics.
type Device struct {
	// ID is the database row ID.
	ID int64 `json:"id"`

	// Key is the stable external identifier ("grow1"). Immutable.
	Key string `json:"device_key"`

	// Name is a human-friendly label, defaults to the key.
	Name string `json:"name"`

	// Description is free-form operator notes.
	Description string `json:"description"`

	// DeviceType categorises the hardware (default "sensor-hub").
	DeviceType string `json:"device_type"`

	// Metadata holds firmware-supplied extras (version, IP, ...).
	Metadata map[string]any `json:"metadata,omitempty"`

	// IsActive is false once the inactivity sweep gives up on the device.
	IsActive bool `json:"is_active"`

	// LastSeen is the time of the most recent message from the device.
	LastSeen time.Time `json:"last_seen"`

	CreatedAt time.Time `json:"created_at"`

	// Metrics are the device's known metrics keyed by metric key.
	Metrics map[string]*Metric `json:"metrics,omitempty"`
}

// Metric is one named value a device reports or exposes for control.
type Metric struct {
	ID       int64 `json:"id"`
	DeviceID int64 `json:"device_id"`

	// Key identifies the metric within its device ("temperature", "relay1").
	Key string `json:"metric_key"`

	DisplayName string `json:"display_name"`
	Unit        string `json:"unit"`

	// Type never changes after creation.
	Type MetricType `json:"metric_type"`

	// Mode is meaningful for actuators only.
	Mode ControlMode `json:"control_mode"`

	CreatedAt time.Time `json:"created_at"`
}

// MetricDef describes a metric as announced by discovery or synthesized
// from telemetry.
type MetricDef struct {
	DisplayName string
	Unit        string
	Type        MetricType
}

// Reading is one stored sample. Value is JSON-encoded so both numeric
// sensor values and string actuator states fit one column.
type Reading struct {
	ID        int64     `json:"id"`
	MetricID  int64     `json:"metric_id"`
	Timestamp time.Time `json:"timestamp"`
	Value     string    `json:"value"`
}

// LatestReading is a reading joined with its device and metric keys,
// used to warm the value cache at startup.
type LatestReading struct {
	DeviceKey string
	MetricKey string
	Timestamp time.Time
	Value     string
}

// DeepCopy returns a copy sharing no mutable state with the original.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d

	if d.Metadata != nil {
		cpy.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			cpy.Metadata[k] = v
		}
	}

	if d.Metrics != nil {
		cpy.Metrics = make(map[string]*Metric, len(d.Metrics))
		for k, m := range d.Metrics {
			mc := *m
			cpy.Metrics[k] = &mc
		}
	}

	return &cpy
}

// Sensors returns the device's sensor metric keys, unordered.
func (d *Device) Sensors() []string {
	return d.metricKeys(MetricTypeSensor)
}

// Actuators returns the device's actuator metric keys, unordered.
func (d *Device) Actuators() []string {
	return d.metricKeys(MetricTypeActuator)
}

func (d *Device) metricKeys(t MetricType) []string {
	keys := make([]string, 0, len(d.Metrics))
	for k, m := range d.Metrics {
		if m.Type == t {
			keys = append(keys, k)
		}
	}
	return keys
}
