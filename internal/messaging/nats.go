// Package messaging publishes post-mutation events to NATS for the rest of
// the skill-tracking platform (achievement engine, activity feed). Publishing
// is fire-and-forget: a broker outage never fails a send or a read.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/skilltrack/messenger/internal/chat"
)

// NATS subjects consumed by downstream services.
const (
	SubjectMessageSent = "skilltrack.dm.sent"
	SubjectMessageRead = "skilltrack.dm.read"
)

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "skilltrack-messenger",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// Publisher wraps the NATS connection for downstream event publishing.
// It implements the dispatcher's Hook interface.
type Publisher struct {
	conn *nats.Conn
}

// sentEvent is the wire payload for SubjectMessageSent.
type sentEvent struct {
	MessageID  int64 `json:"message_id"`
	SenderID   int64 `json:"sender_id"`
	ReceiverID int64 `json:"receiver_id"`
	SentAt     int64 `json:"sent_at"`
}

// readEvent is the wire payload for SubjectMessageRead.
type readEvent struct {
	ReaderID   int64   `json:"reader_id"`
	PeerID     int64   `json:"peer_id"`
	MessageIDs []int64 `json:"message_ids"`
	ReadAt     int64   `json:"read_at"`
}

// NewPublisher connects to NATS with the given config and returns a ready
// publisher. It returns an error if the initial connection fails.
func NewPublisher(config Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Publisher{conn: nc}, nil
}

// MessageSent publishes a sent-message event. Failures are logged and
// swallowed.
func (p *Publisher) MessageSent(m *chat.Message) {
	p.publish(SubjectMessageSent, sentEvent{
		MessageID:  m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		SentAt:     m.CreatedAt.Unix(),
	})
}

// MessagesRead publishes a read-transition event. Failures are logged and
// swallowed.
func (p *Publisher) MessagesRead(readerID, peerID int64, ids []int64) {
	p.publish(SubjectMessageRead, readEvent{
		ReaderID:   readerID,
		PeerID:     peerID,
		MessageIDs: ids,
		ReadAt:     time.Now().Unix(),
	})
}

func (p *Publisher) publish(subject string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[nats] encode %s: %v", subject, err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		log.Printf("[nats] publish %s: %v", subject, err)
	}
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}
	log.Printf("[nats] publisher closed")
}
