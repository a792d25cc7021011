package natsbridge

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ivgotcrazy/jukey-sub001/config"
	"github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/metric"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int32

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Conn is a NATS connection that tracks its status
type Conn struct {
	*nats.Conn
	status  atomic.Int32
	logger  *slog.Logger
	metrics *metric.Metrics
}

// Status returns the current connection status
func (c *Conn) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

func (c *Conn) setStatus(s ConnectionStatus) {
	c.status.Store(int32(s))
	if c.metrics != nil {
		c.metrics.RecordBridgeStatus(s == StatusConnected)
	}
}

// Connect dials the servers of cfg. The connection reconnects on its own; status
// changes are logged and exported as the bridge connection gauge.
func Connect(ctx context.Context, cfg config.NATSConfig, clientName string,
	logger *slog.Logger, registry *metric.MetricsRegistry,
) (*Conn, error) {
	if !cfg.Enabled() {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Bridge", "Connect", "server URL check")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Conn{logger: logger.With("component", "natsbridge")}
	if registry != nil {
		c.metrics = registry.CoreMetrics()
	}

	opts := c.connectionOptions(cfg, clientName)
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	// Attempt connection with context timeout
	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(strings.Join(cfg.URLs, ","), opts...)
		done <- result{conn, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, errors.WrapTransient(errors.Join(errors.ErrConnectionLost, r.err), "Bridge", "Connect", "establish connection")
		}
		c.Conn = r.conn
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, errors.WrapTransient(errors.Join(errors.ErrConnectionTimeout, ctx.Err()), "Bridge", "Connect", "connection cancelled")
	}

	c.setStatus(StatusConnected)
	c.logger.Info("Connected to NATS", "url", c.ConnectedUrlRedacted())
	return c, nil
}

// connectionOptions builds NATS connection options from the configuration
func (c *Conn) connectionOptions(cfg config.NATSConfig, clientName string) []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.setStatus(StatusReconnecting)
			c.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.setStatus(StatusConnected)
			c.logger.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.setStatus(StatusDisconnected)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			c.logger.Error("NATS error", "error", err)
		}),
	}

	// Add authentication if configured
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	if clientName != "" {
		opts = append(opts, nats.Name(clientName))
	}
	return opts
}

// Close drains and closes the connection
func (c *Conn) Close() {
	if c.Conn == nil {
		return
	}
	if err := c.Drain(); err != nil {
		c.logger.Debug("NATS drain failed", "error", err)
		c.Conn.Close()
	}
}
