package webmail

import (
	"errors"

	"github.com/mailbridge/ombx-bridge/internal/email"
)

// ErrAttachmentsUnsupported is returned when an outgoing message carries
// attachments; the webmail send endpoint used here cannot upload files.
var ErrAttachmentsUnsupported = errors.New("webmail: attachments not supported")

// BodyType distinguishes plain-text from HTML message bodies.
type BodyType int

const (
	BodyPlain BodyType = iota
	BodyHTML
)

// ContentType returns the MIME type the server expects for the body.
func (t BodyType) ContentType() string {
	if t == BodyHTML {
		return "text/html"
	}
	return "text/plain"
}

// Recipient is one destination address. An absent display name is nil,
// never the empty string, so it serializes as JSON null.
type Recipient struct {
	Email string  `json:"email"`
	Name  *string `json:"name"`
}

// OutgoingMessage is a message ready for the send endpoint. Construct it
// with NewOutgoingMessage; direct construction skips the attachment check.
type OutgoingMessage struct {
	To       []Recipient
	Cc       []Recipient
	Bcc      []Recipient
	Subject  string
	BodyType BodyType
	Body     string
}

// NewOutgoingMessage converts a parsed email into the shape the send
// endpoint accepts. Messages with attachments are rejected here, before any
// network activity. The body is HTML when the parsed message carries an
// HTML part, plain text otherwise.
func NewOutgoingMessage(msg *email.Email) (*OutgoingMessage, error) {
	if len(msg.Attachments) > 0 {
		return nil, ErrAttachmentsUnsupported
	}

	out := &OutgoingMessage{
		To:      mapRecipients(msg.To),
		Cc:      mapRecipients(msg.Cc),
		Bcc:     mapRecipients(msg.Bcc),
		Subject: msg.Subject,
	}

	if msg.HTML != "" {
		out.BodyType = BodyHTML
		out.Body = msg.HTML
	} else {
		out.BodyType = BodyPlain
		out.Body = msg.Text
	}

	return out, nil
}

func mapRecipients(addrs []email.Address) []Recipient {
	// Non-nil even when empty: the server payload wants [] rather than null.
	recipients := make([]Recipient, 0, len(addrs))
	for _, addr := range addrs {
		r := Recipient{Email: addr.Address}
		if addr.Name != "" {
			name := addr.Name
			r.Name = &name
		}
		recipients = append(recipients, r)
	}
	return recipients
}

// sendPayload is the JSON document posted in the `message` form field of the
// send endpoint.
type sendPayload struct {
	To            []Recipient `json:"to"`
	Cc            []Recipient `json:"cc"`
	Bcc           []Recipient `json:"bcc"`
	Subject       string      `json:"subject"`
	Type          string      `json:"type"`
	MessageString string      `json:"message_string"`
	JoinedFiles   []string    `json:"joinedfiles"`
}

func buildSendPayload(msg *OutgoingMessage) *sendPayload {
	return &sendPayload{
		To:            nonNil(msg.To),
		Cc:            nonNil(msg.Cc),
		Bcc:           nonNil(msg.Bcc),
		Subject:       msg.Subject,
		Type:          msg.BodyType.ContentType(),
		MessageString: msg.Body,
		JoinedFiles:   []string{},
	}
}

func nonNil(recipients []Recipient) []Recipient {
	if recipients == nil {
		return []Recipient{}
	}
	return recipients
}
