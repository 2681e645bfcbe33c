package amqp

import (
	"encoding/json"
	"time"

	"cashflow/internal/ledger"
)

// EventMessage is the body published for every ledger event: the stored
// envelope plus the time it was handed to the broker.
type EventMessage struct {
	ledger.Envelope
	PublishedAt time.Time `json:"published_at"`
}

// NewEventMessage wraps an envelope for publishing.
func NewEventMessage(env ledger.Envelope) *EventMessage {
	return &EventMessage{
		Envelope:    env,
		PublishedAt: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventMessageFromJSON parses a message body. A message without ledger id or
// sequence number is rejected.
func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.LedgerID == "" || msg.Seq == 0 {
		return nil, errMissingPosition
	}
	return &msg, nil
}
