package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// readingsMeasurement is the measurement every mirrored reading lands in.
const readingsMeasurement = "readings"

// WriteReading mirrors an accepted reading as a time-series point.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Calls on a disconnected client are silently dropped so ingestion never
// depends on the mirror being up.
//
// Parameters:
//   - deviceKey: Device identifier (e.g., "grow1")
//   - metricKey: Metric identifier (e.g., "temperature")
//   - value: The numeric value to record
//   - timestamp: The reading's batch timestamp
//
// Example:
//
//	client.WriteReading("grow1", "temperature", 21.5, time.Now())
func (c *Client) WriteReading(deviceKey, metricKey string, value float64, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		readingsMeasurement,
		map[string]string{
			"device_key": deviceKey,
			"metric_key": metricKey,
		},
		map[string]interface{}{
			"value": value,
		},
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteActuatorState mirrors an actuator state change as a 0/1 point so
// dashboards can overlay relay activity on sensor curves.
func (c *Client) WriteActuatorState(deviceKey, actuatorKey string, on bool, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	state := 0.0
	if on {
		state = 1.0
	}

	point := write.NewPoint(
		readingsMeasurement,
		map[string]string{
			"device_key": deviceKey,
			"metric_key": actuatorKey,
		},
		map[string]interface{}{
			"state": state,
		},
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
