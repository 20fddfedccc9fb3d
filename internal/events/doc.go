// Package events provides the in-process event broadcast for Hydrocore.
//
// The ingestor and automation engine publish reading, device, and error
// events; external surfaces (the HTTP/WebSocket layer, loggers, tests)
// subscribe through buffered channels.
//
// Delivery is best-effort: each subscriber has a bounded queue and events
// are dropped per-subscriber when it fills. Publishing never blocks, so a
// stuck consumer cannot stall telemetry ingestion.
//
//	broker := events.NewBroker(events.WithLogger(logger))
//	sub := broker.Subscribe()
//	defer broker.Unsubscribe(sub)
//
//	for event := range sub.C {
//	    // forward to clients
//	}
package events
