// Package publish forwards monitor snapshots to a NATS subject.
package publish

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jpalmerr/dnsmonitor/internal/store"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "dnsmonitor.snapshot"

// Conn is the subset of *nats.Conn used by [Publisher].
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher sends every snapshot as a JSON message.
type Publisher struct {
	conn    Conn
	subject string
}

// New wraps an established connection.
func New(conn Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: conn, subject: subject}
}

// Connect dials the NATS server at url and returns a publisher for subject.
// name identifies the connection on the server. The connection reconnects
// on its own for as long as the publisher lives.
func Connect(url, subject, name string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return New(nc, subject), nil
}

// Subject returns the subject snapshots are published to.
func (p *Publisher) Subject() string {
	return p.subject
}

// Publish encodes snap and sends it.
func (p *Publisher) Publish(snap store.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
