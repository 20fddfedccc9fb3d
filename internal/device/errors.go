package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device key does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrMetricNotFound is returned when a metric key does not exist on a device.
	ErrMetricNotFound = errors.New("device: metric not found")

	// ErrMetricTypeConflict is returned when telemetry or discovery tries to
	// redefine an existing metric with a different type. The stored metric is
	// preserved.
	ErrMetricTypeConflict = errors.New("device: metric type conflict")

	// ErrInvalidMetricType is returned when a metric type value is not recognised.
	ErrInvalidMetricType = errors.New("device: invalid metric type")

	// ErrInvalidControlMode is returned when a control mode value is not recognised.
	ErrInvalidControlMode = errors.New("device: invalid control mode")

	// ErrNotActuator is returned when an actuator-only operation targets a sensor.
	ErrNotActuator = errors.New("device: metric is not an actuator")

	// ErrEmptyDeviceKey is returned when a device key is blank.
	ErrEmptyDeviceKey = errors.New("device: key cannot be empty")
)
