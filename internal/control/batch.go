package control

import (
	"context"
	"errors"
	"strings"

	"github.com/verdantlabs/hydrocore/internal/device"
)

// Command is one requested actuator state change.
type Command struct {
	DeviceID string `json:"device_id"`
	Actuator string `json:"actuator"`
	State    string `json:"state"`
}

// BlockedCommand is a command the arbiter refused, with the reason.
type BlockedCommand struct {
	Command
	Reason string `json:"reason"`
}

// BatchResult partitions a control batch by outcome. Every command in
// the request appears in exactly one list.
type BatchResult struct {
	Processed []Command        `json:"processed"`
	Skipped   []Command        `json:"skipped"`
	Missing   []Command        `json:"missing"`
	Blocked   []BlockedCommand `json:"blocked"`
}

// DeviceStore is the registry subset the controller consults.
type DeviceStore interface {
	GetDevice(ctx context.Context, key string) (*device.Device, error)
	ActuatorModes(ctx context.Context, deviceKeys ...string) (map[string]map[string]device.ControlMode, error)
	SetActuatorMode(ctx context.Context, deviceKey, actuatorKey string, mode device.ControlMode) error
}

// Controller validates and arbitrates actuator commands before handing
// them to the rate-limited publisher.
type Controller struct {
	registry  DeviceStore
	publisher *Publisher
	logger    Logger
}

// NewController wires a controller to its registry and publisher.
func NewController(registry DeviceStore, publisher *Publisher, logger Logger) *Controller {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Controller{registry: registry, publisher: publisher, logger: logger}
}

// ControlBatch executes a batch of actuator commands for one source.
//
// Commands are deduplicated by (device, actuator) with the last command
// winning; superseded duplicates land in Skipped. Each survivor is
// validated against the registry (unknown device or actuator → Missing)
// and the permission arbiter (denied → Blocked with reason), then
// forwarded to the publisher. Permission denials are normal outcomes,
// not errors.
func (c *Controller) ControlBatch(ctx context.Context, commands []Command, source Source, force bool) BatchResult {
	var result BatchResult

	winner := make(map[string]int, len(commands))
	for n, cmd := range commands {
		winner[cmd.DeviceID+"/"+cmd.Actuator] = n
	}

	for n, cmd := range commands {
		if winner[cmd.DeviceID+"/"+cmd.Actuator] != n {
			result.Skipped = append(result.Skipped, cmd)
			continue
		}

		dev, err := c.registry.GetDevice(ctx, cmd.DeviceID)
		if err != nil {
			if !errors.Is(err, device.ErrDeviceNotFound) {
				c.logger.Error("registry lookup failed",
					"device", cmd.DeviceID, "error", err)
			}
			result.Missing = append(result.Missing, cmd)
			continue
		}
		metric, ok := dev.Metrics[cmd.Actuator]
		if !ok || metric.Type != device.MetricTypeActuator {
			result.Missing = append(result.Missing, cmd)
			continue
		}

		allowed, reason := Allowed(metric.Mode, source, force)
		if !allowed {
			c.logger.Info("actuator command blocked",
				"device", cmd.DeviceID, "actuator", cmd.Actuator,
				"source", source, "reason", reason)
			result.Blocked = append(result.Blocked, BlockedCommand{Command: cmd, Reason: reason})
			continue
		}

		state := strings.ToLower(strings.TrimSpace(cmd.State))
		if state != "on" && state != "off" {
			result.Blocked = append(result.Blocked, BlockedCommand{
				Command: cmd,
				Reason:  "unsupported state, expected on or off",
			})
			continue
		}

		if err := c.publisher.PublishActuator(cmd.DeviceID, cmd.Actuator, state); err != nil {
			c.logger.Error("actuator command publish failed",
				"device", cmd.DeviceID, "actuator", cmd.Actuator, "error", err)
			result.Blocked = append(result.Blocked, BlockedCommand{
				Command: cmd,
				Reason:  "publish failed: " + err.Error(),
			})
			continue
		}
		result.Processed = append(result.Processed, cmd)
	}

	return result
}

// ActuatorModes reports the control mode of every actuator, optionally
// filtered to specific devices.
func (c *Controller) ActuatorModes(ctx context.Context, deviceKeys ...string) (map[string]map[string]device.ControlMode, error) {
	return c.registry.ActuatorModes(ctx, deviceKeys...)
}

// SetActuatorMode switches an actuator between manual and auto.
// Sensors are rejected.
func (c *Controller) SetActuatorMode(ctx context.Context, deviceKey, actuatorKey string, mode device.ControlMode) error {
	return c.registry.SetActuatorMode(ctx, deviceKey, actuatorKey, mode)
}
