package control

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/verdantlabs/hydrocore/internal/infrastructure/mqtt"
)

// DefaultPublishRateHz caps per-topic control publishes at two per
// second, matching what the relay firmware comfortably absorbs.
const DefaultPublishRateHz = 2.0

// Logger abstracts structured logging for the control package.
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

// Transport is the publish-side subset of the MQTT client.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// topicLimiter holds the rate-limit state for one control topic. All
// fields are guarded by the Publisher mutex.
type topicLimiter struct {
	lastPublish    time.Time
	pending        map[string]string
	flushScheduled bool
}

// Publisher sends actuator commands with a per-topic rate limit.
//
// When the minimum inter-publish interval has elapsed the command goes
// out immediately. Otherwise it is merged into a per-topic accumulator,
// last write wins per actuator, and a single deferred flush is
// scheduled for the remaining wait. A flush sends one command when a
// single actuator accumulated, or one batched payload when several did,
// so hardware never sees more than rateHz publishes per second per
// topic while still receiving the latest desired state.
type Publisher struct {
	transport Transport
	topics    mqtt.Topics
	qos       byte
	interval  time.Duration
	logger    Logger

	mu       sync.Mutex
	limiters map[string]*topicLimiter
}

// NewPublisher creates a rate-limited publisher. rateHz <= 0 falls back
// to DefaultPublishRateHz.
func NewPublisher(transport Transport, topics mqtt.Topics, qos byte, rateHz float64, logger Logger) *Publisher {
	if rateHz <= 0 {
		rateHz = DefaultPublishRateHz
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Publisher{
		transport: transport,
		topics:    topics,
		qos:       qos,
		interval:  time.Duration(float64(time.Second) / rateHz),
		logger:    logger,
		limiters:  make(map[string]*topicLimiter),
	}
}

// Interval returns the minimum time between publishes on one topic.
func (p *Publisher) Interval() time.Duration {
	return p.interval
}

// PublishActuator requests an actuator state change on a device. The
// command is published immediately when the topic's rate limit allows,
// otherwise coalesced into the next deferred flush. Only immediate
// publishes can fail synchronously; deferred failures are logged.
func (p *Publisher) PublishActuator(deviceKey, actuatorKey, state string) error {
	topic := p.topics.Control(deviceKey)

	p.mu.Lock()
	lim, ok := p.limiters[topic]
	if !ok {
		lim = &topicLimiter{pending: make(map[string]string)}
		p.limiters[topic] = lim
	}

	now := time.Now()
	if now.Sub(lim.lastPublish) >= p.interval {
		lim.lastPublish = now
		p.mu.Unlock()
		return p.publishSingle(topic, deviceKey, actuatorKey, state)
	}

	lim.pending[actuatorKey] = state
	if !lim.flushScheduled {
		lim.flushScheduled = true
		wait := p.interval - now.Sub(lim.lastPublish)
		time.AfterFunc(wait, func() {
			p.flush(topic, deviceKey)
		})
	}
	p.mu.Unlock()

	p.logger.Debug("actuator command coalesced",
		"device", deviceKey, "actuator", actuatorKey, "state", state)
	return nil
}

// flush drains a topic's accumulator. Flushing an empty accumulator is
// a no-op, so stale timers are harmless.
func (p *Publisher) flush(topic, deviceKey string) {
	p.mu.Lock()
	lim, ok := p.limiters[topic]
	if !ok {
		p.mu.Unlock()
		return
	}
	lim.flushScheduled = false
	pending := lim.pending
	lim.pending = make(map[string]string)
	if len(pending) == 0 {
		p.mu.Unlock()
		return
	}
	lim.lastPublish = time.Now()
	p.mu.Unlock()

	var err error
	if len(pending) == 1 {
		for actuator, state := range pending {
			err = p.publishSingle(topic, deviceKey, actuator, state)
		}
	} else {
		err = p.publishBatched(topic, deviceKey, pending)
	}
	if err != nil {
		p.logger.Error("deferred control publish failed",
			"topic", topic, "commands", len(pending), "error", err)
	}
}

type controlPayload struct {
	DeviceID string `json:"device_id"`
	Actuator string `json:"actuator"`
	State    string `json:"state"`
	Relay    int    `json:"relay,omitempty"`
}

type commandPayload struct {
	Actuator string `json:"actuator"`
	State    string `json:"state"`
}

type batchedControlPayload struct {
	DeviceID string           `json:"device_id"`
	Commands []commandPayload `json:"commands"`
}

func (p *Publisher) publishSingle(topic, deviceKey, actuatorKey, state string) error {
	payload := controlPayload{
		DeviceID: deviceKey,
		Actuator: actuatorKey,
		State:    state,
		Relay:    relayNumber(actuatorKey),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := p.transport.Publish(topic, body, p.qos, false); err != nil {
		return err
	}
	p.logger.Info("actuator command published",
		"device", deviceKey, "actuator", actuatorKey, "state", state)
	return nil
}

func (p *Publisher) publishBatched(topic, deviceKey string, pending map[string]string) error {
	keys := make([]string, 0, len(pending))
	for actuator := range pending {
		keys = append(keys, actuator)
	}
	sort.Strings(keys)

	payload := batchedControlPayload{DeviceID: deviceKey}
	for _, actuator := range keys {
		payload.Commands = append(payload.Commands, commandPayload{
			Actuator: actuator,
			State:    pending[actuator],
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := p.transport.Publish(topic, body, p.qos, false); err != nil {
		return err
	}
	p.logger.Info("batched actuator commands published",
		"device", deviceKey, "commands", len(payload.Commands))
	return nil
}

// relayNumber extracts the numeric suffix from relayN keys, 0 when the
// key does not follow the convention.
func relayNumber(actuatorKey string) int {
	suffix := strings.TrimPrefix(actuatorKey, "relay")
	if suffix == actuatorKey {
		return 0
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
