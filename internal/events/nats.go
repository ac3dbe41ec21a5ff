package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// ErrNoSubject is returned when the publisher is configured without a subject prefix.
var ErrNoSubject = errors.New("events: empty nats subject")

// natsConn is the subset of *nats.Conn the publisher uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events as JSON on "<subject>.<kind>".
type NATSPublisher struct {
	conn    natsConn
	subject string
}

// NewNATS connects to the NATS server at url.
func NewNATS(url, subject string) (*NATSPublisher, error) {
	if subject == "" {
		return nil, ErrNoSubject
	}
	nc, err := nats.Connect(url, nats.Name("linechat"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{conn: nc, subject: subject}, nil
}

// Publish marshals ev and publishes it. NATS buffers the write, so this does not block on the network.
func (p *NATSPublisher) Publish(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject+"."+string(ev.Kind), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close flushes pending events and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
