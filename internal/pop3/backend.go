// Package pop3 implements a POP3 server that delegates all mailbox access
// to a PostOffice backend.
package pop3

import (
	"context"
	"io"
)

// Message is one entry of an open mailbox.
type Message interface {
	// ID is the 1-based message number within this session.
	ID() int

	// UIDL is the stable unique identifier reported to UIDL.
	UIDL() string

	// Size is the message size in octets as reported by STAT and LIST.
	Size() int

	// Deleted reports whether the message was marked for deletion in this
	// session.
	Deleted() bool
}

// Mailbox is one authenticated session's view of a user's mail. Retrieve
// and Delete take effect on the backing store only when Close commits the
// session.
type Mailbox interface {
	ListMessages() ([]Message, error)
	Retrieve(ctx context.Context, msg Message) (io.Reader, error)
	Delete(msg Message) error
	Reset()
	Close() error
}

// PostOffice authenticates users and opens their mailboxes.
type PostOffice interface {
	Name() string
	OpenMailbox(ctx context.Context, user, pass string) (Mailbox, error)
}
