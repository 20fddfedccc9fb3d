package mqtt

import "fmt"

// DefaultBaseTopic is the topic prefix used when none is configured.
// Matches the firmware shipped on the sensor hubs.
const DefaultBaseTopic = "esp32"

// Legacy fixed topics published by early firmware revisions. These carry no
// device segment so the ingestor falls back to payload identity.
const (
	// TopicLegacyData is the shared sensor data topic.
	TopicLegacyData = "esp32/data"

	// TopicLegacyRelayStatus is the shared relay state topic.
	TopicLegacyRelayStatus = "esp32/relay/status"

	// TopicCriticalRelays is the topic for relay states flagged critical.
	TopicCriticalRelays = "esp32/critical_relays"

	// TopicLegacyStatus is the shared device status topic.
	// Payloads here may be plain text rather than JSON.
	TopicLegacyStatus = "esp32/status"
)

// Topics builds MQTT topic strings for a configured base prefix.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.NewTopics("esp32")
//	topics.Control("grow1") // "esp32/grow1/control"
type Topics struct {
	Base string
}

// NewTopics returns a Topics builder for the given base prefix.
// An empty base falls back to DefaultBaseTopic.
func NewTopics(base string) Topics {
	if base == "" {
		base = DefaultBaseTopic
	}
	return Topics{Base: base}
}

// Data returns the per-device sensor data topic.
//
// Example: esp32/grow1/data
func (t Topics) Data(deviceKey string) string {
	return fmt.Sprintf("%s/%s/data", t.Base, deviceKey)
}

// Status returns the per-device status topic.
//
// Example: esp32/grow1/status
func (t Topics) Status(deviceKey string) string {
	return fmt.Sprintf("%s/%s/status", t.Base, deviceKey)
}

// Discovery returns the per-device capability announcement topic.
//
// Example: esp32/grow1/discovery
func (t Topics) Discovery(deviceKey string) string {
	return fmt.Sprintf("%s/%s/discovery", t.Base, deviceKey)
}

// Heartbeat returns the per-device heartbeat topic.
//
// Example: esp32/grow1/heartbeat
func (t Topics) Heartbeat(deviceKey string) string {
	return fmt.Sprintf("%s/%s/heartbeat", t.Base, deviceKey)
}

// RelayStatus returns the per-device relay state topic.
//
// Example: esp32/grow1/relay/status
func (t Topics) RelayStatus(deviceKey string) string {
	return fmt.Sprintf("%s/%s/relay/status", t.Base, deviceKey)
}

// Control returns the per-device actuator command topic.
//
// Example: esp32/grow1/control
func (t Topics) Control(deviceKey string) string {
	return fmt.Sprintf("%s/%s/control", t.Base, deviceKey)
}

// DiscoveryRequest returns the broadcast topic that asks every device to
// re-announce its capabilities.
//
// Example: esp32/discovery/request
func (t Topics) DiscoveryRequest() string {
	return fmt.Sprintf("%s/discovery/request", t.Base)
}

// SystemStatus returns the topic carrying this service's online/offline
// status, including the Last Will message.
//
// Example: esp32/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.Base)
}

// AllData returns a pattern matching every per-device data topic.
//
// Pattern: esp32/+/data
func (t Topics) AllData() string {
	return fmt.Sprintf("%s/+/data", t.Base)
}

// AllStatus returns a pattern matching every per-device status topic.
//
// Pattern: esp32/+/status
func (t Topics) AllStatus() string {
	return fmt.Sprintf("%s/+/status", t.Base)
}

// AllDiscovery returns a pattern matching every per-device discovery topic.
//
// Pattern: esp32/+/discovery
func (t Topics) AllDiscovery() string {
	return fmt.Sprintf("%s/+/discovery", t.Base)
}

// AllHeartbeats returns a pattern matching every per-device heartbeat topic.
//
// Pattern: esp32/+/heartbeat
func (t Topics) AllHeartbeats() string {
	return fmt.Sprintf("%s/+/heartbeat", t.Base)
}

// AllRelayStatus returns a pattern matching every per-device relay topic.
//
// Pattern: esp32/+/relay/status
func (t Topics) AllRelayStatus() string {
	return fmt.Sprintf("%s/+/relay/status", t.Base)
}

// LegacyData returns the shared data topic for firmware without a device
// segment. The base prefix is honoured so test brokers can be namespaced.
func (t Topics) LegacyData() string {
	return fmt.Sprintf("%s/data", t.Base)
}

// LegacyRelayStatus returns the shared relay state topic.
func (t Topics) LegacyRelayStatus() string {
	return fmt.Sprintf("%s/relay/status", t.Base)
}

// SubscriptionSet returns every inbound topic the ingestor listens on.
func (t Topics) SubscriptionSet() []string {
	return []string{
		t.LegacyData(),
		t.LegacyRelayStatus(),
		TopicCriticalRelays,
		TopicLegacyStatus,
		t.AllData(),
		t.AllStatus(),
		t.AllDiscovery(),
		t.AllHeartbeats(),
		t.AllRelayStatus(),
	}
}
