package core

import (
	"context"

	"github.com/verdantlabs/hydrocore/internal/control"
	"github.com/verdantlabs/hydrocore/internal/device"
	"github.com/verdantlabs/hydrocore/internal/events"
	"github.com/verdantlabs/hydrocore/internal/telemetry"
)

// Core is the assembled inbound surface of the telemetry and control
// engine. External collaborators, the HTTP layer among them, consume
// these methods and the event broker; nothing else in the system is
// reachable from outside.
type Core struct {
	registry   *device.Registry
	cache      *telemetry.ValueCache
	controller *control.Controller
	broker     *events.Broker
}

// New assembles a core from its built parts.
func New(registry *device.Registry, cache *telemetry.ValueCache, controller *control.Controller, broker *events.Broker) *Core {
	return &Core{
		registry:   registry,
		cache:      cache,
		controller: controller,
		broker:     broker,
	}
}

// ListDevices returns all registered devices with their metrics.
func (c *Core) ListDevices(ctx context.Context) ([]device.Device, error) {
	return c.registry.ListDevices(ctx)
}

// LatestReadings returns the most recent value per metric from the
// fast-path cache, keyed device key then metric key. With no arguments
// every device is included.
func (c *Core) LatestReadings(deviceKeys ...string) map[string]map[string]telemetry.CachedValue {
	if len(deviceKeys) == 0 {
		return c.cache.Snapshot()
	}
	out := make(map[string]map[string]telemetry.CachedValue, len(deviceKeys))
	for _, key := range deviceKeys {
		if values := c.cache.Device(key); values != nil {
			out[key] = values
		}
	}
	return out
}

// ControlBatch validates, arbitrates and publishes a batch of actuator
// commands, returning the full outcome partition.
func (c *Core) ControlBatch(ctx context.Context, commands []control.Command, source control.Source, force bool) control.BatchResult {
	return c.controller.ControlBatch(ctx, commands, source, force)
}

// ActuatorModes reports actuator control modes, optionally filtered to
// specific devices.
func (c *Core) ActuatorModes(ctx context.Context, deviceKeys ...string) (map[string]map[string]device.ControlMode, error) {
	return c.controller.ActuatorModes(ctx, deviceKeys...)
}

// SetActuatorMode switches an actuator between manual and auto.
func (c *Core) SetActuatorMode(ctx context.Context, deviceKey, actuatorKey string, mode device.ControlMode) error {
	return c.controller.SetActuatorMode(ctx, deviceKey, actuatorKey, mode)
}

// Subscribe registers an event consumer. Callers must Unsubscribe when
// done or the broker keeps their queue alive.
func (c *Core) Subscribe() *events.Subscriber {
	return c.broker.Subscribe()
}

// Unsubscribe removes an event consumer and closes its channel.
func (c *Core) Unsubscribe(sub *events.Subscriber) {
	c.broker.Unsubscribe(sub)
}
