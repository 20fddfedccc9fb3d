package telemetry

import (
	"context"
	"strings"

	"github.com/verdantlabs/hydrocore/internal/infrastructure/mqtt"
)

// reservedTopicSegments are path segments that can never be a device
// key when decomposing a wildcard topic.
var reservedTopicSegments = map[string]struct{}{
	"data":            {},
	"status":          {},
	"relay":           {},
	"discovery":       {},
	"heartbeat":       {},
	"critical_relays": {},
}

// dispatch decodes one dequeued message and routes it to a handler.
// Exact topics are matched first; anything else goes through wildcard
// decomposition. Unroutable topics are logged at debug and ignored.
func (i *Ingestor) dispatch(ctx context.Context, topic string, payload []byte) {
	data, err := decodePayload(topic, payload)
	if err != nil {
		i.logger.Warn("dropping undecodable payload", "topic", topic, "error", err)
		return
	}

	switch topic {
	case i.topics.LegacyData():
		i.handleSensorData(ctx, topic, data)
	case i.topics.LegacyRelayStatus():
		i.handleRelayStatus(ctx, topic, data)
	case mqtt.TopicCriticalRelays:
		i.handleCriticalRelay(ctx, topic, data)
	case mqtt.TopicLegacyStatus:
		i.handleDeviceStatus(ctx, topic, data)
	default:
		i.routeWildcard(ctx, topic, data)
	}
}

// routeWildcard decomposes {base}/{device}/{type}[/...] topics and
// dispatches on the message type segment.
func (i *Ingestor) routeWildcard(ctx context.Context, topic string, data any) {
	parts := strings.Split(topic, "/")
	baseParts := strings.Split(i.topics.Base, "/")

	if len(parts) < len(baseParts)+2 {
		i.logger.Debug("unroutable topic", "topic", topic)
		return
	}
	for n, segment := range baseParts {
		if parts[n] != segment {
			i.logger.Debug("topic outside base", "topic", topic)
			return
		}
	}

	messageType := parts[len(baseParts)+1]
	switch messageType {
	case "data":
		i.handleSensorData(ctx, topic, data)
	case "status":
		i.handleDeviceStatus(ctx, topic, data)
	case "discovery":
		i.handleDiscovery(ctx, topic, data)
	case "heartbeat":
		i.handleHeartbeat(ctx, topic, data)
	case "relay":
		if len(parts) >= len(baseParts)+3 && parts[len(baseParts)+2] == "status" {
			i.handleRelayStatus(ctx, topic, data)
			return
		}
		i.logger.Debug("unroutable relay topic", "topic", topic)
	default:
		i.logger.Debug("unroutable topic", "topic", topic, "message_type", messageType)
	}
}

// deviceKeyFromTopic extracts the device segment from a wildcard topic,
// or "" when the topic carries no usable device key.
func deviceKeyFromTopic(base, topic string) string {
	parts := strings.Split(topic, "/")
	baseParts := strings.Split(base, "/")

	if len(parts) <= len(baseParts) {
		return ""
	}
	for n, segment := range baseParts {
		if parts[n] != segment {
			return ""
		}
	}

	candidate := parts[len(baseParts)]
	if _, reserved := reservedTopicSegments[candidate]; reserved {
		return ""
	}
	return candidate
}
