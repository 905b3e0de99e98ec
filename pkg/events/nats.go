package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/atharvakapadnis/ctOS/pkg/log"
)

// DefaultSubjectPrefix is the NATS subject prefix for mirrored events.
// The full subject is <prefix>.<instance>.<event type>.
const DefaultSubjectPrefix = "ctos.events"

// NATSPublisher mirrors broker events to a NATS subject so external
// systems (chat notifiers, dashboards, CI) can observe deployments
// without talking to the controller process.
type NATSPublisher struct {
	conn   *nats.Conn
	broker *Broker
	sub    Subscriber
	prefix string
	doneCh chan struct{}
}

// NewNATSPublisher connects to the NATS server at url and subscribes to
// the broker. An empty prefix falls back to DefaultSubjectPrefix.
func NewNATSPublisher(url, prefix string, broker *Broker) (*NATSPublisher, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	conn, err := nats.Connect(url, nats.Name("ctos-deploy"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	return &NATSPublisher{
		conn:   conn,
		broker: broker,
		prefix: prefix,
		doneCh: make(chan struct{}),
	}, nil
}

// Start begins forwarding broker events to NATS
func (p *NATSPublisher) Start() {
	p.sub = p.broker.Subscribe()
	go p.run()
}

// Close stops forwarding and drains the NATS connection
func (p *NATSPublisher) Close() {
	if p.sub != nil {
		p.broker.Unsubscribe(p.sub)
		<-p.doneCh
	}
	if err := p.conn.Drain(); err != nil {
		logger := log.WithComponent("events")
		logger.Warn().Err(err).Msg("failed to drain NATS connection")
	}
}

func (p *NATSPublisher) run() {
	defer close(p.doneCh)
	logger := log.WithComponent("events")

	for event := range p.sub {
		data, err := json.Marshal(event)
		if err != nil {
			logger.Error().Err(err).Str("event", string(event.Type)).Msg("failed to marshal event")
			continue
		}

		subject := fmt.Sprintf("%s.%s.%s", p.prefix, event.Instance, event.Type)
		if err := p.conn.Publish(subject, data); err != nil {
			// Event mirroring is best-effort; the broker remains the
			// source of truth for in-process consumers
			logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish event to NATS")
		}
	}
}
