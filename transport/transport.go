// Package transport moves protocol envelopes between agents. The transport
// is deliberately dumb: it carries opaque text between addresses and leaves
// parsing to the protocol package, so swapping the in-memory loop for a real
// messaging network changes no agent code.
package transport

import (
	"context"
	"time"
)

// Message is one delivered payload. Content is opaque to the transport;
// agents put protocol envelopes or plain conversation text in it. An empty
// To addresses every subscriber.
type Message struct {
	ID      string    `json:"id"`
	From    string    `json:"from"`
	To      string    `json:"to,omitempty"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sentAt"`
}

// Broadcast reports whether the message targets all subscribers.
func (m *Message) Broadcast() bool { return m.To == "" }

// Handler processes messages delivered to a subscribed address.
type Handler func(ctx context.Context, msg *Message) error

// Transport delivers messages between agent addresses.
type Transport interface {
	// Send delivers msg to its recipient, or to every subscriber when the
	// To field is empty.
	Send(ctx context.Context, msg *Message) error

	// Subscribe registers a handler for messages addressed to address.
	// The returned function unsubscribes it.
	Subscribe(address string, handler Handler) (unsubscribe func())

	// History returns up to limit recent messages visible to address, in
	// chronological order.
	History(address string, limit int) ([]*Message, error)
}
