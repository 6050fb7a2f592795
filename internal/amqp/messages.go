package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"tracker/internal/core"
)

// Op names the change a RecordChangedMessage reports.
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
)

// RecordChangedMessage tells consumers that a record of Kind changed.
// It carries no payload; consumers reload the snapshot they need.
// MonthKey is the month the record falls in, empty when unknown.
type RecordChangedMessage struct {
	Kind      core.Kind `json:"kind"`
	ID        string    `json:"id"`
	Op        Op        `json:"op"`
	MonthKey  string    `json:"monthKey,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRecordChangedMessage(kind core.Kind, id string, op Op, monthKey string) *RecordChangedMessage {
	return &RecordChangedMessage{
		Kind:      kind,
		ID:        id,
		Op:        op,
		MonthKey:  monthKey,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordChangedMessageFromJSON parses and validates a message body.
func RecordChangedMessageFromJSON(data []byte) (*RecordChangedMessage, error) {
	var msg RecordChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidKind, msg.Kind)
	}
	switch msg.Op {
	case OpCreated, OpUpdated, OpDeleted:
	default:
		return nil, fmt.Errorf("unknown op %q", msg.Op)
	}
	return &msg, nil
}
