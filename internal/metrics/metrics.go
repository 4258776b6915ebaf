// Package metrics sends counters and timings of desk actions to statsd.
package metrics

import (
	"fmt"
	"strategy-desk/internal/models"
	"time"

	"github.com/cactus/go-statsd-client/statsd"
	"go.uber.org/zap"
)

// Client wraps a statsd statter. A nil statter turns every call into a no-op, so a
// Client is always safe to use, including a nil *Client.
type Client struct {
	statter statsd.Statter
	log     *zap.Logger
}

// New connects to the statsd host of cfg. An empty host or a failed connect disables stats.
func New(cfg models.MetricsConfig, log *zap.Logger) *Client {
	c := &Client{log: log}
	if cfg.StatsdHost == "" {
		log.Info("StatsD host not configured, metrics disabled")
		return c
	}

	addr := fmt.Sprintf("%s:%d", cfg.StatsdHost, cfg.StatsdPort)
	log.Info("connecting", zap.String("address", addr))
	client, err := statsd.NewClientWithConfig(&statsd.ClientConfig{
		Address:       addr,
		Prefix:        cfg.Prefix,
		FlushInterval: 1000 * time.Millisecond,
	})
	if err != nil {
		log.Error("StatsD init error, disabling stats", zap.Error(err))
		return c
	}
	c.statter = client
	log.Info("StatsD init successful.")
	return c
}

// WithStatter builds a client on an existing statter.
func WithStatter(s statsd.Statter, log *zap.Logger) *Client {
	return &Client{statter: s, log: log}
}

// Enabled reports whether stats are sent anywhere.
func (c *Client) Enabled() bool {
	return c != nil && c.statter != nil
}

func (c *Client) Inc(stat string) {
	if !c.Enabled() {
		return
	}
	if err := c.statter.Inc(stat, 1, 1.0); err != nil {
		c.log.Error("Error on Statsd Inc", zap.Error(err))
	}
}

func (c *Client) Timing(stat string, d time.Duration) {
	if !c.Enabled() {
		return
	}
	if err := c.statter.TimingDuration(stat, d, 1.0); err != nil {
		c.log.Error("Error on Statsd TimingDuration", zap.Error(err))
	}
}

func (c *Client) Gauge(stat string, value int64) {
	if !c.Enabled() {
		return
	}
	if err := c.statter.Gauge(stat, value, 1.0); err != nil {
		c.log.Error("Error on Statsd Gauge", zap.Error(err))
	}
}

// Close flushes and closes the statter.
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.statter.Close()
}
