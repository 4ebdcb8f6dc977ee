// Package events publishes Nexus run events onto a NATS subject so an
// external dashboard or audit log can subscribe without coupling to the
// coordinator process itself.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/nexusdev/nexus/internal/eventlog"
)

// SubjectPrefix events are published under: <prefix>.<event kind>.
const SubjectPrefix = "nexus.events"

// Bus publishes eventlog.Event values to NATS. A nil Bus (which Connect
// returns for an empty URL) is a no-op, so wiring it in is safe even
// when no broker is configured.
type Bus struct {
	conn *nats.Conn
}

// Connect dials url (e.g. "nats://localhost:4222"). An empty url returns
// a nil *Bus, not an error, so callers can treat "no broker configured"
// and "broker unreachable" differently.
func Connect(url string) (*Bus, error) {
	if url == "" {
		return nil, nil
	}
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("events: connect to %s: %w", url, err)
	}
	return &Bus{conn: conn}, nil
}

// Publish encodes evt as JSON and publishes it to SubjectPrefix.<kind>. A
// nil Bus silently drops the event.
func (b *Bus) Publish(evt eventlog.Event) error {
	if b == nil || b.conn == nil {
		return nil
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: marshal event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", SubjectPrefix, evt.Kind)
	if err := b.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("events: publish to %s: %w", subject, err)
	}
	return nil
}

// Close closes the underlying NATS connection.
func (b *Bus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	b.conn.Close()
}
