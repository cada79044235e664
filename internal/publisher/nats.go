package publisher

import (
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Snapshots broadcasts published snapshot bytes to a NATS subject, letting
// downstream consumers pick up new snapshots without polling the file.
type Snapshots struct {
	nc      *nats.Conn
	subject string
	metrics Metrics
	logger  *slog.Logger
}

// Metrics is the subset of the metrics collector the publisher reports to.
type Metrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
}

// Connect dials the NATS server. The returned publisher is ready to use.
func Connect(url, subject string, m Metrics, logger *slog.Logger) (*Snapshots, error) {
	nc, err := nats.Connect(url,
		nats.Name("xml2pb"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Snapshots{nc: nc, subject: subject, metrics: m, logger: logger}, nil
}

// Publish sends one serialized snapshot. Errors are reported to metrics and
// returned; the caller treats them as non-fatal.
func (p *Snapshots) Publish(data []byte) error {
	if err := p.nc.Publish(p.subject, data); err != nil {
		p.metrics.NATSPublishErrInc()
		return fmt.Errorf("publish snapshot: %w", err)
	}
	p.metrics.NATSPublishedInc()
	return nil
}

// Close drains and closes the connection.
func (p *Snapshots) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}
