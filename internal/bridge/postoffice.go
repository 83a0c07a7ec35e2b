package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mailbridge/ombx-bridge/internal/pop3"
	"github.com/mailbridge/ombx-bridge/internal/webmail"
)

// inboxMailbox is the only mailbox exposed over POP3.
const inboxMailbox = "INBOX"

// PostOffice implements pop3.PostOffice over per-connection webmail
// sessions.
type PostOffice struct {
	newClient   ClientFactory
	maxMessages int
}

// NewPostOffice creates a PostOffice that lists at most maxMessages inbox
// messages per session.
func NewPostOffice(factory ClientFactory, maxMessages int) *PostOffice {
	return &PostOffice{
		newClient:   factory,
		maxMessages: maxMessages,
	}
}

// Name identifies the backend in server logs.
func (p *PostOffice) Name() string {
	return "webmail"
}

// OpenMailbox logs user (of the form name@domain) into a fresh webmail
// session and captures the inbox listing in ascending date order.
func (p *PostOffice) OpenMailbox(ctx context.Context, user, pass string) (pop3.Mailbox, error) {
	name, domain, err := splitAddress(user)
	if err != nil {
		return nil, err
	}

	client, err := p.newClient()
	if err != nil {
		return nil, err
	}
	if err := client.Login(ctx, domain, name, pass); err != nil {
		return nil, err
	}

	descriptors, err := client.FetchMessages(ctx, inboxMailbox, 1, p.maxMessages)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", inboxMailbox, err)
	}

	entries := make([]*mailboxEntry, len(descriptors))
	for i, desc := range descriptors {
		entries[i] = &mailboxEntry{
			id:   i + 1,
			ref:  webmail.MessageRef{Mailbox: inboxMailbox, UID: desc.UID},
			seen: desc.Seen,
		}
	}

	return &mailbox{
		client:  client,
		user:    user,
		entries: entries,
	}, nil
}

// mailboxEntry is one inbox message as seen by a POP3 session.
type mailboxEntry struct {
	id        int
	ref       webmail.MessageRef
	seen      bool
	retrieved bool
	deleted   bool
}

func (e *mailboxEntry) ID() int { return e.id }

func (e *mailboxEntry) UIDL() string { return strconv.Itoa(e.ref.UID) }

// Size is always 0: the maillist endpoint does not deliver message sizes.
// TODO: fetch each message once up front if a client turns out to require
// accurate scan listings.
func (e *mailboxEntry) Size() int { return 0 }

func (e *mailboxEntry) Deleted() bool { return e.deleted }

// mailbox implements pop3.Mailbox over one authenticated webmail session.
type mailbox struct {
	client  Client
	user    string
	entries []*mailboxEntry

	// updateDone is closed when the background seen/trash update finishes;
	// only tests wait on it.
	updateDone chan struct{}
}

func (m *mailbox) ListMessages() ([]pop3.Message, error) {
	messages := make([]pop3.Message, len(m.entries))
	for i, e := range m.entries {
		messages[i] = e
	}
	return messages, nil
}

// Retrieve downloads the raw message source and marks the entry as read for
// the update phase.
func (m *mailbox) Retrieve(ctx context.Context, msg pop3.Message) (io.Reader, error) {
	entry, ok := msg.(*mailboxEntry)
	if !ok {
		return nil, fmt.Errorf("foreign message %d", msg.ID())
	}

	source, err := m.client.FetchMessage(ctx, entry.ref)
	if err != nil {
		return nil, err
	}
	entry.retrieved = true
	return strings.NewReader(source), nil
}

func (m *mailbox) Delete(msg pop3.Message) error {
	entry, ok := msg.(*mailboxEntry)
	if !ok {
		return fmt.Errorf("foreign message %d", msg.ID())
	}
	entry.deleted = true
	return nil
}

func (m *mailbox) Reset() {
	for _, e := range m.entries {
		e.deleted = false
	}
}

// Close commits the session from a detached goroutine: retrieved messages
// are marked seen, deleted ones are trashed. The POP3 client already got its
// acknowledgement, so failures here are only observable in the logs.
func (m *mailbox) Close() error {
	var seen, deleted []webmail.MessageRef
	for _, e := range m.entries {
		switch {
		case e.deleted:
			deleted = append(deleted, e.ref)
		case e.retrieved && !e.seen:
			seen = append(seen, e.ref)
		}
	}

	m.updateDone = make(chan struct{})
	go func() {
		defer close(m.updateDone)
		ctx := context.Background()

		count, err := m.client.MarkAsSeen(ctx, seen)
		if err != nil {
			slog.Error("POP3 failed to mark messages as seen",
				"user", m.user,
				"error", err,
			)
			return
		}
		slog.Info("POP3 marked messages as seen",
			"user", m.user,
			"count", count,
		)

		count, err = m.client.TrashMessages(ctx, deleted)
		if err != nil {
			slog.Error("POP3 failed to delete messages",
				"user", m.user,
				"error", err,
			)
			return
		}
		slog.Info("POP3 deleted messages",
			"user", m.user,
			"count", count,
		)
	}()

	return nil
}
