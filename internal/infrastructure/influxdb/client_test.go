package influxdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/verdantlabs/hydrocore/internal/infrastructure/config"
)

func TestConnectDisabled(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: false}

	_, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestDisconnectedWritesAreNoOps(t *testing.T) {
	c := &Client{}

	// Must not panic or block.
	c.WriteReading("grow1", "temperature", 21.5, time.Now())
	c.WriteActuatorState("grow1", "relay1", true, time.Now())
	c.WritePoint("custom", nil, map[string]interface{}{"v": 1.0}, time.Now())
	c.Flush()
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := &Client{}

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestCloseNilClient(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}
