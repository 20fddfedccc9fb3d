package influxdb

import "errors"

var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled means the mirror is off in config. Callers handle it by
	// running without Influx, not by failing startup.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
