// Package mqtt provides MQTT client connectivity for Hydrocore.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Hydrocore uses MQTT as the message bus between the core and the ESP32
// sensor hubs in the grow room. The broker decouples the core from firmware
// revisions: hubs publish telemetry and consume control commands without
// knowing anything about the core's internals.
//
//	Hydrocore ↔ MQTT Broker ↔ ESP32 sensor hubs
//
// # Security Considerations
//
//   - TLS is recommended for non-LAN deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllData(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish(topics.Control("grow1"),
//	    []byte(`{"device_id":"grow1","actuator":"relay1","state":"on"}`), 1, false)
package mqtt
