// Package device provides the device and metric registry for Hydrocore.
//
// Devices are ESP32 sensor hubs identified by a stable device key ("grow1").
// Each device owns a set of metrics: sensors (measured values) and actuators
// (controllable relays). Devices and metrics are created automatically from
// discovery announcements and telemetry; nothing needs pre-provisioning.
//
// # Architecture
//
// The package follows a layered design:
//
//	Registry (cached, thread-safe)
//	    ↓
//	Repository (interface)
//	    ↓
//	SQLiteRepository (persistence)
//
// The Registry hands out deep copies only, so callers can never mutate the
// cache through a returned value. Telemetry mutation funnels through the
// single ingestion goroutine; reads may come from anywhere.
//
// # Key invariants
//
//   - device_key is immutable once created.
//   - metric_type never changes after creation. Conflicting discovery or
//     telemetry is rejected with ErrMetricTypeConflict and the stored
//     metric is preserved.
//   - Actuators carry a control_mode (manual/auto) deciding who may drive
//     them; sensors do not.
package device
