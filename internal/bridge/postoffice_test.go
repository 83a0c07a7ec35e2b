package bridge

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/mailbridge/ombx-bridge/internal/webmail"
)

// stubClient records webmail calls and serves canned responses.
type stubClient struct {
	loginDomain string
	loginUser   string
	loginPass   string
	loginErr    error

	descriptors []webmail.MessageDescriptor
	listErr     error

	messages map[webmail.MessageRef]string
	fetched  []webmail.MessageRef

	seen    [][]webmail.MessageRef
	seenErr error
	trashed [][]webmail.MessageRef

	sent    []*webmail.OutgoingMessage
	sendErr error
}

func (c *stubClient) Login(_ context.Context, domain, username, password string) error {
	c.loginDomain = domain
	c.loginUser = username
	c.loginPass = password
	return c.loginErr
}

func (c *stubClient) FetchMessages(_ context.Context, _ string, _, _ int) ([]webmail.MessageDescriptor, error) {
	return c.descriptors, c.listErr
}

func (c *stubClient) FetchMessage(_ context.Context, ref webmail.MessageRef) (string, error) {
	c.fetched = append(c.fetched, ref)
	source, ok := c.messages[ref]
	if !ok {
		return "", errors.New("no such message")
	}
	return source, nil
}

func (c *stubClient) MarkAsSeen(_ context.Context, refs []webmail.MessageRef) (int, error) {
	c.seen = append(c.seen, refs)
	if c.seenErr != nil {
		return 0, c.seenErr
	}
	return len(refs), nil
}

func (c *stubClient) TrashMessages(_ context.Context, refs []webmail.MessageRef) (int, error) {
	c.trashed = append(c.trashed, refs)
	return len(refs), nil
}

func (c *stubClient) Send(_ context.Context, msg *webmail.OutgoingMessage) error {
	c.sent = append(c.sent, msg)
	return c.sendErr
}

func factoryFor(client *stubClient) ClientFactory {
	return func() (Client, error) { return client, nil }
}

func inboxRef(uid int) webmail.MessageRef {
	return webmail.MessageRef{Mailbox: "INBOX", UID: uid}
}

func TestOpenMailbox_InvalidAddress(t *testing.T) {
	t.Parallel()

	called := false
	po := NewPostOffice(func() (Client, error) {
		called = true
		return nil, errors.New("unreachable")
	}, 100)

	if _, err := po.OpenMailbox(context.Background(), "not-an-address", "pw"); err == nil {
		t.Fatal("expected error for invalid address")
	}
	if called {
		t.Error("client factory should not run for an invalid address")
	}
}

func TestOpenMailbox_LoginError(t *testing.T) {
	t.Parallel()

	loginErr := &webmail.Error{Kind: webmail.KindAuthenticationFailed, Detail: "bad creds"}
	client := &stubClient{loginErr: loginErr}
	po := NewPostOffice(factoryFor(client), 100)

	_, err := po.OpenMailbox(context.Background(), "alice@example.org", "pw")
	if !webmail.IsAuthenticationFailed(err) {
		t.Fatalf("got %v, want authentication failure", err)
	}
	if client.loginDomain != "example.org" || client.loginUser != "alice" || client.loginPass != "pw" {
		t.Errorf("login called with %q %q %q", client.loginDomain, client.loginUser, client.loginPass)
	}
}

func TestOpenMailbox_Listing(t *testing.T) {
	t.Parallel()

	client := &stubClient{
		descriptors: []webmail.MessageDescriptor{
			{UID: 41, Mailbox: "INBOX", Seen: true},
			{UID: 57, Mailbox: "INBOX", Seen: false},
		},
	}
	po := NewPostOffice(factoryFor(client), 100)

	mbox, err := po.OpenMailbox(context.Background(), "alice@example.org", "pw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	messages, err := mbox.ListMessages()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].ID() != 1 || messages[0].UIDL() != "41" {
		t.Errorf("first message: id=%d uidl=%q", messages[0].ID(), messages[0].UIDL())
	}
	if messages[1].ID() != 2 || messages[1].UIDL() != "57" {
		t.Errorf("second message: id=%d uidl=%q", messages[1].ID(), messages[1].UIDL())
	}
}

func TestRetrieve(t *testing.T) {
	t.Parallel()

	client := &stubClient{
		descriptors: []webmail.MessageDescriptor{{UID: 41, Mailbox: "INBOX"}},
		messages: map[webmail.MessageRef]string{
			inboxRef(41): "Subject: hi\r\n\r\nbody\r\n",
		},
	}
	po := NewPostOffice(factoryFor(client), 100)

	mbox, err := po.OpenMailbox(context.Background(), "alice@example.org", "pw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	messages, _ := mbox.ListMessages()

	r, err := mbox.Retrieve(context.Background(), messages[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	source, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(source) != "Subject: hi\r\n\r\nbody\r\n" {
		t.Errorf("source: got %q", source)
	}
	if len(client.fetched) != 1 || client.fetched[0] != inboxRef(41) {
		t.Errorf("fetched: got %v", client.fetched)
	}
}

// waitForUpdate closes the mailbox and blocks until the background
// seen/trash commit has finished.
func waitForUpdate(t *testing.T, mbox *mailbox) {
	t.Helper()
	if err := mbox.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case <-mbox.updateDone:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for background update")
	}
}

func TestClose_CommitsSeenAndDeleted(t *testing.T) {
	t.Parallel()

	client := &stubClient{
		descriptors: []webmail.MessageDescriptor{
			{UID: 1, Mailbox: "INBOX", Seen: false},
			{UID: 2, Mailbox: "INBOX", Seen: true},
			{UID: 3, Mailbox: "INBOX", Seen: false},
		},
		messages: map[webmail.MessageRef]string{
			inboxRef(1): "first",
			inboxRef(2): "second",
		},
	}
	po := NewPostOffice(factoryFor(client), 100)

	opened, err := po.OpenMailbox(context.Background(), "alice@example.org", "pw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mbox := opened.(*mailbox)
	messages, _ := mbox.ListMessages()

	// Read messages 1 and 2, delete message 3.
	if _, err := mbox.Retrieve(context.Background(), messages[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mbox.Retrieve(context.Background(), messages[1]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mbox.Delete(messages[2]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitForUpdate(t, mbox)

	// Message 2 was already seen upstream, so only message 1 gets marked.
	if len(client.seen) != 1 || len(client.seen[0]) != 1 || client.seen[0][0] != inboxRef(1) {
		t.Errorf("MarkAsSeen: got %v", client.seen)
	}
	if len(client.trashed) != 1 || len(client.trashed[0]) != 1 || client.trashed[0][0] != inboxRef(3) {
		t.Errorf("TrashMessages: got %v", client.trashed)
	}
}

func TestClose_SeenErrorSkipsTrash(t *testing.T) {
	t.Parallel()

	client := &stubClient{
		descriptors: []webmail.MessageDescriptor{
			{UID: 1, Mailbox: "INBOX", Seen: false},
			{UID: 2, Mailbox: "INBOX", Seen: false},
		},
		messages: map[webmail.MessageRef]string{
			inboxRef(1): "first",
		},
		seenErr: &webmail.Error{Kind: webmail.KindLoginRequired, Detail: "expired"},
	}
	po := NewPostOffice(factoryFor(client), 100)

	opened, err := po.OpenMailbox(context.Background(), "alice@example.org", "pw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mbox := opened.(*mailbox)
	messages, _ := mbox.ListMessages()

	if _, err := mbox.Retrieve(context.Background(), messages[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mbox.Delete(messages[1]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitForUpdate(t, mbox)

	if len(client.seen) != 1 {
		t.Errorf("MarkAsSeen calls: got %d, want 1", len(client.seen))
	}
	if len(client.trashed) != 0 {
		t.Errorf("TrashMessages should not run after a failed mark-as-seen, got %v", client.trashed)
	}
}

func TestReset_RestoresDeleted(t *testing.T) {
	t.Parallel()

	client := &stubClient{
		descriptors: []webmail.MessageDescriptor{{UID: 1, Mailbox: "INBOX"}},
	}
	po := NewPostOffice(factoryFor(client), 100)

	opened, err := po.OpenMailbox(context.Background(), "alice@example.org", "pw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mbox := opened.(*mailbox)
	messages, _ := mbox.ListMessages()

	if err := mbox.Delete(messages[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !messages[0].Deleted() {
		t.Error("message should be marked deleted")
	}
	mbox.Reset()
	if messages[0].Deleted() {
		t.Error("reset should clear the deletion mark")
	}

	waitForUpdate(t, mbox)
	if len(client.trashed) != 1 || len(client.trashed[0]) != 0 {
		t.Errorf("TrashMessages: got %v, want one empty batch", client.trashed)
	}
}

func TestSplitAddress(t *testing.T) {
	t.Parallel()

	name, domain, err := splitAddress("alice@example.org")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "alice" || domain != "example.org" {
		t.Errorf("got %q %q", name, domain)
	}

	for _, bad := range []string{"", "alice", "@example.org", "alice@", "a@b@c"} {
		if _, _, err := splitAddress(bad); err == nil {
			t.Errorf("splitAddress(%q): expected error", bad)
		}
	}
}
