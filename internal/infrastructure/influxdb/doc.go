// Package influxdb provides the time-series mirror for Hydrocore readings.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking writes, and health monitoring.
//
// # Purpose
//
// SQLite remains the source of truth for devices, metrics, and readings.
// This package mirrors every accepted reading into InfluxDB so Grafana-style
// dashboards can chart sensor curves and relay activity without touching the
// relational store. The mirror is optional (config-gated) and ingestion never
// blocks on it.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without the mirror
//	}
//	defer client.Close()
//
//	client.WriteReading("grow1", "temperature", 21.5, time.Now())
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
