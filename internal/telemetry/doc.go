// Package telemetry turns raw MQTT traffic into persisted readings and
// registry updates.
//
// The Ingestor owns a bounded queue fed by the MQTT network callback;
// one goroutine drains it serially so handlers never race each other.
// Messages are decoded (JSON first, plain text only for the legacy
// status topic), routed by exact topic then wildcard decomposition, and
// dispatched to sensor, relay, status, discovery and heartbeat
// handlers. The ValueCache keeps the latest value per device metric for
// fast-path reads by the automation engine and state queries.
//
// Malformed input never escapes a handler: undecodable payloads,
// missing device identity and empty metric sets are dropped with an
// error event, and per-metric persistence failures do not abort the
// rest of the message.
package telemetry
