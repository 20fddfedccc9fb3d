package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/verdantlabs/hydrocore/internal/infrastructure/mqtt"
)

// plainTextTopics lists topics whose payloads may legitimately be bare
// strings. Firmware publishes simple "online"/"offline" markers on the
// legacy status topic.
var plainTextTopics = map[string]struct{}{
	mqtt.TopicLegacyStatus: {},
}

// mergedClusters are sensor groups whose nested readings take the
// parent's place in the flat map instead of being prefixed. The bme680
// combines temperature, humidity, pressure and gas in one cluster and
// devices report them nested under the chip name.
var mergedClusters = map[string]struct{}{
	"bme680": {},
}

// decodePayload parses a raw message body. JSON is tried first; a bare
// string is accepted only for topics on the plain-text allow-list.
func decodePayload(topic string, payload []byte) (any, error) {
	var data any
	if err := json.Unmarshal(payload, &data); err != nil {
		if _, ok := plainTextTopics[topic]; ok {
			return string(payload), nil
		}
		return nil, fmt.Errorf("decode payload on %s: %w", topic, err)
	}
	return data, nil
}

// flattenSensorValues reduces a decoded sensor payload to flat
// metric_key -> value pairs. One level of nesting is folded in: merged
// cluster keys contribute their children directly, other nested objects
// prefix the parent key. The device_id field and non-scalar values are
// skipped.
func flattenSensorValues(data map[string]any) map[string]any {
	flat := make(map[string]any)
	for key, value := range data {
		if key == "device_id" {
			continue
		}
		switch v := value.(type) {
		case float64, bool, string:
			flat[key] = v
		case map[string]any:
			_, merge := mergedClusters[key]
			for subKey, subVal := range v {
				switch subVal.(type) {
				case float64, bool, string:
					if merge {
						flat[subKey] = subVal
					} else {
						flat[key+"_"+subKey] = subVal
					}
				}
			}
		}
	}
	return flat
}

// normalizeState maps a raw actuator state to the canonical "on"/"off"
// form. Unrecognized values are passed through lowercased so they stay
// visible downstream rather than disappearing.
func normalizeState(raw any) string {
	switch v := raw.(type) {
	case bool:
		if v {
			return "on"
		}
		return "off"
	case string:
		switch lowered := strings.ToLower(strings.TrimSpace(v)); lowered {
		case "on", "true", "1":
			return "on"
		case "off", "false", "0":
			return "off"
		default:
			return lowered
		}
	case float64:
		if v != 0 {
			return "on"
		}
		return "off"
	default:
		return fmt.Sprintf("%v", raw)
	}
}
