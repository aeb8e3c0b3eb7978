// Package protocol defines the closed set of messages exchanged with peers,
// their JSON wire form, and the batching queue used for outbound delivery.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/query"
)

// ErrUnknownMessage is returned when decoding a message whose type is not
// part of the protocol.
var ErrUnknownMessage = errors.New("unknown message type")

// MessageType is the wire discriminant.
type MessageType string

const (
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
	TypeTransaction MessageType = "transaction"
	TypeBatch       MessageType = "batch"
)

// Message is one of SubscribeMessage, UnsubscribeMessage,
// TransactionMessage or BatchMessage. The set is closed.
type Message interface {
	Type() MessageType
	message()
}

// SubscribeMessage asks for updates to a query.
type SubscribeMessage struct {
	Query query.Query
}

// UnsubscribeMessage cancels a SubscribeMessage with the same query.
type UnsubscribeMessage struct {
	Query query.Query
}

// TransactionMessage carries facts to apply, or facts to mirror.
type TransactionMessage struct {
	Transaction datalog.Transaction
}

// BatchMessage coalesces several non-batch messages, in order.
type BatchMessage struct {
	Messages []Message
}

func (SubscribeMessage) Type() MessageType   { return TypeSubscribe }
func (UnsubscribeMessage) Type() MessageType { return TypeUnsubscribe }
func (TransactionMessage) Type() MessageType { return TypeTransaction }
func (BatchMessage) Type() MessageType       { return TypeBatch }

func (SubscribeMessage) message()   {}
func (UnsubscribeMessage) message() {}
func (TransactionMessage) message() {}
func (BatchMessage) message()       {}

type queryWire struct {
	Type  MessageType `json:"type"`
	Query query.Query `json:"query"`
}

type transactionWire struct {
	Type        MessageType         `json:"type"`
	Transaction datalog.Transaction `json:"transaction"`
}

type batchWire struct {
	Type     MessageType       `json:"type"`
	Messages []json.RawMessage `json:"messages"`
}

// MarshalJSON encodes {"type":"subscribe","query":...}.
func (m SubscribeMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(queryWire{Type: TypeSubscribe, Query: m.Query})
}

// MarshalJSON encodes {"type":"unsubscribe","query":...}.
func (m UnsubscribeMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(queryWire{Type: TypeUnsubscribe, Query: m.Query})
}

// MarshalJSON encodes {"type":"transaction","transaction":...}.
func (m TransactionMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionWire{Type: TypeTransaction, Transaction: m.Transaction})
}

// MarshalJSON encodes {"type":"batch","messages":[...]}.
func (m BatchMessage) MarshalJSON() ([]byte, error) {
	w := batchWire{Type: TypeBatch, Messages: make([]json.RawMessage, len(m.Messages))}
	for i, inner := range m.Messages {
		if inner.Type() == TypeBatch {
			return nil, fmt.Errorf("batch message %d: nested batch", i)
		}
		data, err := json.Marshal(inner)
		if err != nil {
			return nil, fmt.Errorf("batch message %d: %w", i, err)
		}
		w.Messages[i] = data
	}
	return json.Marshal(w)
}

// Encode returns the wire form of m.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses one message. An unrecognised type yields ErrUnknownMessage.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	if head.Type != TypeBatch {
		return decodeBasic(head.Type, data)
	}

	var w batchWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	batch := BatchMessage{Messages: make([]Message, len(w.Messages))}
	for i, raw := range w.Messages {
		head.Type = ""
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, fmt.Errorf("decode batch message %d: %w", i, err)
		}
		if head.Type == TypeBatch {
			return nil, fmt.Errorf("decode batch message %d: nested batch", i)
		}
		m, err := decodeBasic(head.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("decode batch message %d: %w", i, err)
		}
		batch.Messages[i] = m
	}
	return batch, nil
}

func decodeBasic(t MessageType, data []byte) (Message, error) {
	switch t {
	case TypeSubscribe, TypeUnsubscribe:
		var w queryWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t, err)
		}
		if t == TypeSubscribe {
			return SubscribeMessage{Query: w.Query}, nil
		}
		return UnsubscribeMessage{Query: w.Query}, nil
	case TypeTransaction:
		var w transactionWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t, err)
		}
		return TransactionMessage{Transaction: w.Transaction}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, t)
	}
}

// Coalesce wraps several messages in one BatchMessage. A single message is
// returned as is; nested batches are flattened.
func Coalesce(msgs []Message) Message {
	var flat []Message
	for _, m := range msgs {
		if b, ok := m.(BatchMessage); ok {
			flat = append(flat, b.Messages...)
			continue
		}
		flat = append(flat, m)
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return BatchMessage{Messages: flat}
}
