package mqtt

import "testing"

func TestTopics(t *testing.T) {
	topics := NewTopics("esp32")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"data", topics.Data("grow1"), "esp32/grow1/data"},
		{"status", topics.Status("grow1"), "esp32/grow1/status"},
		{"discovery", topics.Discovery("grow1"), "esp32/grow1/discovery"},
		{"heartbeat", topics.Heartbeat("grow1"), "esp32/grow1/heartbeat"},
		{"relay status", topics.RelayStatus("grow1"), "esp32/grow1/relay/status"},
		{"control", topics.Control("grow1"), "esp32/grow1/control"},
		{"discovery request", topics.DiscoveryRequest(), "esp32/discovery/request"},
		{"system status", topics.SystemStatus(), "esp32/system/status"},
		{"all data", topics.AllData(), "esp32/+/data"},
		{"all status", topics.AllStatus(), "esp32/+/status"},
		{"all discovery", topics.AllDiscovery(), "esp32/+/discovery"},
		{"all heartbeats", topics.AllHeartbeats(), "esp32/+/heartbeat"},
		{"all relay status", topics.AllRelayStatus(), "esp32/+/relay/status"},
		{"legacy data", topics.LegacyData(), "esp32/data"},
		{"legacy relay status", topics.LegacyRelayStatus(), "esp32/relay/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestNewTopicsDefaultsBase(t *testing.T) {
	topics := NewTopics("")
	if topics.Base != DefaultBaseTopic {
		t.Errorf("Base = %q, want %q", topics.Base, DefaultBaseTopic)
	}
}

func TestSubscriptionSet(t *testing.T) {
	topics := NewTopics("hydro")

	set := topics.SubscriptionSet()
	if len(set) != 9 {
		t.Fatalf("SubscriptionSet() returned %d topics, want 9", len(set))
	}

	want := map[string]bool{
		"hydro/data":            true,
		"hydro/relay/status":    true,
		"esp32/critical_relays": true,
		"esp32/status":          true,
		"hydro/+/data":          true,
		"hydro/+/status":        true,
		"hydro/+/discovery":     true,
		"hydro/+/heartbeat":     true,
		"hydro/+/relay/status":  true,
	}
	for _, topic := range set {
		if !want[topic] {
			t.Errorf("unexpected topic %q in subscription set", topic)
		}
	}
}
