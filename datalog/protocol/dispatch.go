package protocol

import "fmt"

// Handler receives decoded messages, one method per message type.
type Handler interface {
	HandleSubscribe(SubscribeMessage) error
	HandleUnsubscribe(UnsubscribeMessage) error
	HandleTransaction(TransactionMessage) error
}

// Dispatch routes m to h. A batch is dispatched message by message, in
// order, stopping at the first error. A value outside the closed message
// set is a programming error and panics.
func Dispatch(h Handler, m Message) error {
	switch m := m.(type) {
	case SubscribeMessage:
		return h.HandleSubscribe(m)
	case UnsubscribeMessage:
		return h.HandleUnsubscribe(m)
	case TransactionMessage:
		return h.HandleTransaction(m)
	case BatchMessage:
		for i, inner := range m.Messages {
			if err := Dispatch(h, inner); err != nil {
				return fmt.Errorf("batch message %d: %w", i, err)
			}
		}
		return nil
	default:
		panic(fmt.Sprintf("protocol: unhandled message %T", m))
	}
}
