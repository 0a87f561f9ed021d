// Package message defines the envelope exchanged between peers.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Header names carried on inbound HTTP requests.
const (
	HeaderUID       = "herald-uid"
	HeaderSenderUID = "herald-sender-uid"
	HeaderSubject   = "herald-subject"
	HeaderPort      = "herald-port"
)

// Envelope is one decoded message: routing headers plus an arbitrary
// payload. Ownership transfers to the routing core on delivery.
type Envelope struct {
	// UID identifies this message across the overlay.
	UID string

	// Sender is the identity of the peer that sent the message.
	Sender string

	// Subject is the routing topic of the message.
	Subject string

	// Timestamp is when the envelope was received locally.
	Timestamp time.Time

	// Content is the decoded payload.
	Content any

	// Extra carries transport headers not covered by the fields above.
	Extra map[string]string
}

// New builds an envelope for a locally originated message with a fresh UID.
func New(sender, subject string, content any) *Envelope {
	return &Envelope{
		UID:       uuid.NewString(),
		Sender:    sender,
		Subject:   subject,
		Timestamp: time.Now(),
		Content:   content,
	}
}

// Handler is the routing core's inbound entry point.
type Handler interface {
	HandleMessage(env *Envelope)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(env *Envelope)

// HandleMessage calls f(env).
func (f HandlerFunc) HandleMessage(env *Envelope) {
	f(env)
}
