package telemetry

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/verdantlabs/hydrocore/internal/device"
	"github.com/verdantlabs/hydrocore/internal/events"
	"github.com/verdantlabs/hydrocore/internal/infrastructure/mqtt"
)

// defaultQueueSize bounds the inbound message queue. The MQTT network
// callback drops messages when the queue is full rather than blocking.
const defaultQueueSize = 1024

// Logger abstracts structured logging for the telemetry package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// InfluxWriter mirrors readings to a time-series store. Writes are
// fire-and-forget; a nil writer disables mirroring.
type InfluxWriter interface {
	WriteReading(deviceKey, metricKey string, value float64, timestamp time.Time)
	WriteActuatorState(deviceKey, actuatorKey string, on bool, timestamp time.Time)
}

// Transport is the subset of the MQTT client the ingestor needs.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	RequestDiscovery() error
}

type message struct {
	topic   string
	payload []byte
}

// Config assembles an Ingestor's collaborators.
type Config struct {
	Registry   *device.Registry
	Repository device.Repository
	Cache      *ValueCache
	Broker     *events.Broker
	Influx     InfluxWriter
	Topics     mqtt.Topics
	QoS        byte
	QueueSize  int
	Logger     Logger
}

// Ingestor consumes raw MQTT messages, resolves device and metric
// identity, persists readings and keeps the value cache current. A
// single goroutine drains the queue; handlers never run concurrently
// with each other.
type Ingestor struct {
	registry *device.Registry
	repo     device.Repository
	cache    *ValueCache
	broker   *events.Broker
	influx   InfluxWriter
	topics   mqtt.Topics
	qos      byte
	logger   Logger

	queue   chan message
	dropped atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewIngestor creates an ingestor. Registry, Repository, Cache and
// Broker are required; Influx and Logger are optional.
func NewIngestor(cfg Config) *Ingestor {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Ingestor{
		registry: cfg.Registry,
		repo:     cfg.Repository,
		cache:    cfg.Cache,
		broker:   cfg.Broker,
		influx:   cfg.Influx,
		topics:   cfg.Topics,
		qos:      cfg.QoS,
		logger:   logger,
		queue:    make(chan message, queueSize),
		done:     make(chan struct{}),
	}
}

// Attach subscribes the ingestor to the full inbound topic set and
// broadcasts a discovery ping so devices announce themselves.
func (i *Ingestor) Attach(t Transport) error {
	for _, topic := range i.topics.SubscriptionSet() {
		if err := t.Subscribe(topic, i.qos, func(topic string, payload []byte) error {
			i.Enqueue(topic, payload)
			return nil
		}); err != nil {
			return err
		}
	}
	return t.RequestDiscovery()
}

// Enqueue pushes a raw message onto the processing queue. When the
// queue is full the message is counted and dropped so the caller, the
// MQTT network goroutine, never blocks.
func (i *Ingestor) Enqueue(topic string, payload []byte) {
	select {
	case i.queue <- message{topic: topic, payload: payload}:
	default:
		n := i.dropped.Add(1)
		i.logger.Warn("ingest queue full, dropping message", "topic", topic, "dropped_total", n)
	}
}

// Dropped reports how many messages were discarded on a full queue.
func (i *Ingestor) Dropped() uint64 {
	return i.dropped.Load()
}

// Start launches the single drain goroutine.
func (i *Ingestor) Start(ctx context.Context) {
	i.startOnce.Do(func() {
		i.wg.Add(1)
		go i.run(ctx)
	})
}

// Stop terminates the drain goroutine and waits for it to exit.
func (i *Ingestor) Stop() {
	i.stopOnce.Do(func() {
		close(i.done)
	})
	i.wg.Wait()
}

func (i *Ingestor) run(ctx context.Context) {
	defer i.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-i.done:
			return
		case msg := <-i.queue:
			i.dispatch(ctx, msg.topic, msg.payload)
		}
	}
}

// WarmCache seeds the value cache from the latest persisted readings.
func (i *Ingestor) WarmCache(ctx context.Context) error {
	latest, err := i.repo.LatestPerMetric(ctx)
	if err != nil {
		return err
	}
	i.cache.Warm(latest)
	i.logger.Info("value cache warmed", "entries", len(latest))
	return nil
}

// RunInactivitySweep periodically marks devices inactive when they have
// not been seen within timeout, emitting a device event per transition.
// Blocks until ctx is cancelled.
func (i *Ingestor) RunInactivitySweep(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-i.done:
			return
		case <-ticker.C:
			i.sweepInactive(ctx, timeout)
		}
	}
}

func (i *Ingestor) sweepInactive(ctx context.Context, timeout time.Duration) {
	cutoff := time.Now().UTC().Add(-timeout)
	keys, err := i.registry.MarkInactiveBefore(ctx, cutoff)
	if err != nil {
		i.logger.Error("inactivity sweep failed", "error", err)
		return
	}
	for _, key := range keys {
		i.logger.Info("device marked inactive", "device", key)
		i.publishDeviceEvent(ctx, key)
	}
}

// deviceIdentity derives the device key for a message: payload
// device_id first, then the topic, then the single-known-device
// fallback for identity-less legacy messages. Returns "" when no
// identity can be established.
func (i *Ingestor) deviceIdentity(topic string, data any) string {
	if m, ok := data.(map[string]any); ok {
		if s, ok := m["device_id"].(string); ok && s != "" {
			return s
		}
	}
	if key := deviceKeyFromTopic(i.topics.Base, topic); key != "" {
		return key
	}
	if key, ok := i.registry.SingleKnownDevice(); ok {
		return key
	}
	return ""
}

func (i *Ingestor) publishMissingDeviceID(topic string, data any) {
	i.logger.Warn("message missing device_id, payload ignored", "topic", topic)
	context := map[string]any{"topic": topic}
	if m, ok := data.(map[string]any); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		context["payload_keys"] = keys
	}
	i.broker.Publish(events.New(events.TypeError, events.ErrorPayload{
		Code:    events.CodeMissingDeviceID,
		Message: "message missing device_id; payload ignored",
		Context: context,
	}))
}

// handleSensorData processes one sensor telemetry message: flatten,
// resolve metrics, persist readings at a shared timestamp, mirror to
// Influx, update the cache and publish a single reading event.
func (i *Ingestor) handleSensorData(ctx context.Context, topic string, data any) {
	payload, ok := data.(map[string]any)
	if !ok {
		i.logger.Warn("sensor data payload is not an object", "topic", topic)
		return
	}

	deviceKey := i.deviceIdentity(topic, payload)
	if deviceKey == "" {
		i.publishMissingDeviceID(topic, payload)
		return
	}

	sensors := flattenSensorValues(payload)
	if len(sensors) == 0 {
		i.logger.Warn("sensor data contained no usable values", "topic", topic, "device", deviceKey)
		i.broker.Publish(events.New(events.TypeError, events.ErrorPayload{
			Code:    events.CodeEmptySensorPayload,
			Message: "sensor data contained no usable values; payload ignored",
			Context: map[string]any{"topic": topic, "device_id": deviceKey},
		}))
		return
	}

	if _, created, err := i.registry.EnsureDevice(ctx, deviceKey); err != nil {
		i.logger.Error("failed to ensure device", "device", deviceKey, "error", err)
		return
	} else if created {
		i.logger.Info("registered new device from telemetry", "device", deviceKey)
	}

	timestamp := time.Now().UTC()
	for metricKey, value := range sensors {
		i.persistReading(ctx, topic, deviceKey, metricKey, value, timestamp,
			device.MetricTypeSensor, events.CodeSensorPersistFailed)
	}

	i.broker.Publish(events.New(events.TypeReading, events.ReadingPayload{
		DeviceID:  deviceKey,
		Timestamp: timestamp,
		Sensors:   sensors,
	}))
	i.logger.Debug("processed sensor data", "device", deviceKey, "metrics", len(sensors))
}

// handleRelayStatus processes actuator state reports. Keys are filtered
// to the relay naming convention and states normalized to "on"/"off".
func (i *Ingestor) handleRelayStatus(ctx context.Context, topic string, data any) {
	payload, ok := data.(map[string]any)
	if !ok {
		i.logger.Warn("relay status payload is not an object", "topic", topic)
		return
	}

	deviceKey := i.deviceIdentity(topic, payload)
	if deviceKey == "" {
		i.publishMissingDeviceID(topic, payload)
		return
	}

	states := make(map[string]string)
	for key, value := range payload {
		if key == "device_id" || !strings.HasPrefix(key, "relay") {
			continue
		}
		states[key] = normalizeState(value)
	}
	if len(states) == 0 {
		return
	}

	i.persistActuatorStates(ctx, topic, deviceKey, states)
}

// handleCriticalRelay processes the legacy single-relay update shape
// {"relay": "relayN", "state": ...}.
func (i *Ingestor) handleCriticalRelay(ctx context.Context, topic string, data any) {
	payload, ok := data.(map[string]any)
	if !ok {
		i.logger.Warn("critical relay payload is not an object", "topic", topic)
		return
	}

	deviceKey := i.deviceIdentity(topic, payload)
	if deviceKey == "" {
		i.publishMissingDeviceID(topic, payload)
		return
	}

	relayKey, _ := payload["relay"].(string)
	if !strings.HasPrefix(relayKey, "relay") {
		return
	}

	states := map[string]string{relayKey: normalizeState(payload["state"])}
	i.persistActuatorStates(ctx, topic, deviceKey, states)
}

// persistActuatorStates stores normalized relay states, mirrors them to
// Influx, updates the cache and publishes one reading event.
func (i *Ingestor) persistActuatorStates(ctx context.Context, topic, deviceKey string, states map[string]string) {
	if _, created, err := i.registry.EnsureDevice(ctx, deviceKey); err != nil {
		i.logger.Error("failed to ensure device", "device", deviceKey, "error", err)
		return
	} else if created {
		i.logger.Info("registered new device from relay status", "device", deviceKey)
	}

	timestamp := time.Now().UTC()
	for relayKey, state := range states {
		i.persistReading(ctx, topic, deviceKey, relayKey, state, timestamp,
			device.MetricTypeActuator, events.CodeRelayPersistFailed)
	}

	i.broker.Publish(events.New(events.TypeReading, events.ReadingPayload{
		DeviceID:  deviceKey,
		Timestamp: timestamp,
		Actuators: states,
	}))
	i.logger.Debug("processed relay status", "device", deviceKey, "relays", len(states))
}

// persistReading resolves one metric, inserts its reading, mirrors it
// and updates the cache. Failures are contained per metric so the rest
// of the message still lands.
func (i *Ingestor) persistReading(ctx context.Context, topic, deviceKey, metricKey string, value any, timestamp time.Time, metricType device.MetricType, failureCode string) {
	metric, err := i.registry.ResolveOrCreateMetric(ctx, deviceKey, metricKey, device.MetricDef{
		DisplayName: metricKey,
		Type:        metricType,
	})
	if err != nil {
		i.logger.Warn("no metric for value, skipping reading",
			"device", deviceKey, "metric", metricKey, "error", err)
		return
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		i.logger.Warn("unencodable reading value", "device", deviceKey, "metric", metricKey)
		return
	}

	if err := i.repo.InsertReading(ctx, metric.ID, timestamp, string(encoded)); err != nil {
		i.logger.Error("failed to persist reading",
			"device", deviceKey, "metric", metricKey, "error", err)
		i.broker.Publish(events.New(events.TypeError, events.ErrorPayload{
			Code:    failureCode,
			Message: "failed to persist reading; continuing with live stream",
			Context: map[string]any{"topic": topic, "device_id": deviceKey, "metric_key": metricKey},
		}))
	}

	i.mirrorToInflux(deviceKey, metricKey, value, timestamp, metricType)
	i.cache.Set(deviceKey, metricKey, value, timestamp)
}

func (i *Ingestor) mirrorToInflux(deviceKey, metricKey string, value any, timestamp time.Time, metricType device.MetricType) {
	if i.influx == nil {
		return
	}
	if metricType == device.MetricTypeActuator {
		if state, ok := value.(string); ok && (state == "on" || state == "off") {
			i.influx.WriteActuatorState(deviceKey, metricKey, state == "on", timestamp)
		}
		return
	}
	switch v := value.(type) {
	case float64:
		i.influx.WriteReading(deviceKey, metricKey, v, timestamp)
	case bool:
		n := 0.0
		if v {
			n = 1.0
		}
		i.influx.WriteReading(deviceKey, metricKey, n, timestamp)
	}
}

// handleDeviceStatus refreshes last_seen for status messages. Payloads
// may be plain strings on the legacy status topic.
func (i *Ingestor) handleDeviceStatus(ctx context.Context, topic string, data any) {
	deviceKey := i.deviceIdentity(topic, data)
	if deviceKey == "" {
		i.publishMissingDeviceID(topic, data)
		return
	}

	if _, _, err := i.registry.EnsureDevice(ctx, deviceKey); err != nil {
		i.logger.Error("failed to refresh device from status", "device", deviceKey, "error", err)
		return
	}
	i.logger.Debug("device status received", "device", deviceKey, "topic", topic)
}

// handleHeartbeat refreshes last_seen only. Capability data arrives via
// discovery, never heartbeats.
func (i *Ingestor) handleHeartbeat(ctx context.Context, topic string, data any) {
	deviceKey := i.deviceIdentity(topic, data)
	if deviceKey == "" {
		i.publishMissingDeviceID(topic, data)
		return
	}

	if _, created, err := i.registry.EnsureDevice(ctx, deviceKey); err != nil {
		i.logger.Error("failed to refresh device from heartbeat", "device", deviceKey, "error", err)
		return
	} else if created {
		i.logger.Info("heartbeat from unknown device, awaiting discovery", "device", deviceKey)
	} else {
		i.logger.Debug("heartbeat received", "device", deviceKey)
	}
}

// handleDiscovery processes a full capability announcement: device
// info, sensor and actuator definitions, then a device event.
func (i *Ingestor) handleDiscovery(ctx context.Context, topic string, data any) {
	payload, ok := data.(map[string]any)
	if !ok {
		i.logger.Warn("discovery payload is not an object", "topic", topic)
		return
	}

	deviceKey := i.deviceIdentity(topic, payload)
	if deviceKey == "" {
		i.publishMissingDeviceID(topic, payload)
		return
	}

	dev, created, err := i.registry.EnsureDevice(ctx, deviceKey)
	if err != nil {
		i.logger.Error("failed to ensure device from discovery", "device", deviceKey, "error", err)
		return
	}
	if created {
		i.logger.Info("discovered new device", "device", deviceKey)
	}

	name := stringField(payload, "name")
	if name == "" {
		name = stringField(payload, "device_name")
	}
	if name == "" {
		name = dev.Name
	}
	description := stringField(payload, "description")
	if description == "" {
		description = dev.Description
	}
	if err := i.registry.UpdateDeviceInfo(ctx, deviceKey, name, description, payload); err != nil {
		i.logger.Warn("failed to update device info", "device", deviceKey, "error", err)
	}

	defs := make(map[string]device.MetricDef)
	normalizeSensorDefs(payload["sensors"], defs)
	normalizeActuatorDefs(payload["actuators"], defs)

	if len(defs) > 0 {
		if _, defErrs, err := i.registry.SyncMetrics(ctx, deviceKey, defs); err != nil {
			i.logger.Error("failed to sync capabilities", "device", deviceKey, "error", err)
		} else {
			for key, defErr := range defErrs {
				i.logger.Warn("capability definition rejected",
					"device", deviceKey, "metric", key, "error", defErr)
			}
		}
	}

	i.publishDeviceEvent(ctx, deviceKey)
}

func (i *Ingestor) publishDeviceEvent(ctx context.Context, deviceKey string) {
	dev, err := i.registry.GetDevice(ctx, deviceKey)
	if err != nil {
		i.logger.Warn("cannot publish device event", "device", deviceKey, "error", err)
		return
	}

	sensors := dev.Sensors()
	actuators := dev.Actuators()
	sort.Strings(sensors)
	sort.Strings(actuators)
	i.broker.Publish(events.New(events.TypeDevice, events.DevicePayload{
		DeviceID:  dev.Key,
		IsActive:  dev.IsActive,
		LastSeen:  dev.LastSeen,
		Sensors:   sensors,
		Actuators: actuators,
	}))
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// normalizeSensorDefs accepts both discovery shapes for sensors: a map
// keyed by sensor id, or a list of {id, label, unit} objects.
func normalizeSensorDefs(raw any, defs map[string]device.MetricDef) {
	add := func(id string, meta map[string]any) {
		if id == "" {
			return
		}
		if _, exists := defs[id]; exists {
			return
		}
		def := device.MetricDef{DisplayName: id, Type: device.MetricTypeSensor}
		if meta != nil {
			if label := stringField(meta, "label"); label != "" {
				def.DisplayName = label
			}
			def.Unit = stringField(meta, "unit")
		}
		defs[id] = def
	}

	switch v := raw.(type) {
	case map[string]any:
		for id, info := range v {
			meta, _ := info.(map[string]any)
			add(id, meta)
		}
	case []any:
		for _, item := range v {
			meta, ok := item.(map[string]any)
			if !ok {
				continue
			}
			add(stringField(meta, "id"), meta)
		}
	}
}

// normalizeActuatorDefs accepts both discovery shapes for actuators: a
// list of {id, label, unit} objects, or a map keyed by actuator id.
func normalizeActuatorDefs(raw any, defs map[string]device.MetricDef) {
	add := func(id string, meta map[string]any) {
		if id == "" {
			return
		}
		if _, exists := defs[id]; exists {
			return
		}
		def := device.MetricDef{DisplayName: id, Type: device.MetricTypeActuator}
		if meta != nil {
			if label := stringField(meta, "label"); label != "" {
				def.DisplayName = label
			}
			def.Unit = stringField(meta, "unit")
		}
		defs[id] = def
	}

	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			meta, ok := item.(map[string]any)
			if !ok {
				continue
			}
			id := stringField(meta, "id")
			if id == "" {
				id = stringField(meta, "key")
			}
			add(id, meta)
		}
	case map[string]any:
		for id, info := range v {
			meta, _ := info.(map[string]any)
			add(id, meta)
		}
	}
}
