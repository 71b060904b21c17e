package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind represents the type of sync message
type Kind string

const (
	KindStart Kind = "START"
	KindPause Kind = "PAUSE"
	KindGoto  Kind = "GOTO"
	KindPing  Kind = "PING"
	KindPong  Kind = "PONG"
)

var ErrUnknownKind = errors.New("unknown message kind")

// Message is the envelope for every sync message exchanged inside a session
type Message struct {
	Kind      Kind            `json:"kind"`
	SessionID string          `json:"session_id"`
	SenderID  string          `json:"sender_id"`
	SentAtMs  int64           `json:"sent_at_ms"` // sender clock, informational only
	Data      json.RawMessage `json:"data,omitempty"`
}

// New builds an envelope around a payload.
func New(kind Kind, sessionID, senderID string, sentAt time.Time, payload any) (Message, error) {
	msg := Message{
		Kind:      kind,
		SessionID: sessionID,
		SenderID:  senderID,
		SentAtMs:  sentAt.UnixMilli(),
	}
	if payload == nil {
		return msg, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	msg.Data = data
	return msg, nil
}

// Encode serializes the envelope for the wire.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return data, nil
}

// Decode parses a wire envelope. The payload is left raw; see ParsePayload.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.Kind == "" || msg.SenderID == "" {
		return Message{}, fmt.Errorf("incomplete message envelope (kind=%q sender=%q)", msg.Kind, msg.SenderID)
	}
	return msg, nil
}

// ParsePayload parses message data into the appropriate payload struct
func ParsePayload(msg Message) (any, error) {
	switch msg.Kind {
	case KindStart:
		var payload StartPayload
		if err := unmarshalData(msg, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case KindPause:
		return PausePayload{}, nil

	case KindGoto:
		var payload GotoPayload
		if err := unmarshalData(msg, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case KindPing:
		var payload PingPayload
		if err := unmarshalData(msg, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case KindPong:
		var payload PongPayload
		if err := unmarshalData(msg, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, msg.Kind)
	}
}

func unmarshalData(msg Message, v any) error {
	if len(msg.Data) == 0 {
		return fmt.Errorf("%s message has no payload", msg.Kind)
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", msg.Kind, err)
	}
	return nil
}
