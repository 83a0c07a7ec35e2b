// Package bridge adapts POP3 and SMTP protocol sessions onto the webmail
// client: each protocol connection authenticates its own webmail session and
// drives it through the Client interface.
package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/mailbridge/ombx-bridge/internal/webmail"
)

// Client is the set of webmail operations the protocol adapters drive.
// *webmail.Client implements it; tests substitute counting stubs.
type Client interface {
	Login(ctx context.Context, domain, username, password string) error
	FetchMessages(ctx context.Context, mailbox string, rangeStart, rangeEnd int) ([]webmail.MessageDescriptor, error)
	FetchMessage(ctx context.Context, ref webmail.MessageRef) (string, error)
	MarkAsSeen(ctx context.Context, refs []webmail.MessageRef) (int, error)
	TrashMessages(ctx context.Context, refs []webmail.MessageRef) (int, error)
	Send(ctx context.Context, msg *webmail.OutgoingMessage) error
}

// ClientFactory creates one fresh, unauthenticated webmail session. Every
// protocol connection gets its own: cookie jars and CSRF tokens must never
// be shared across users.
type ClientFactory func() (Client, error)

// NewClientFactory returns a factory producing webmail clients for baseURL,
// each with a user agent picked from the browser pool.
func NewClientFactory(baseURL string) ClientFactory {
	return func() (Client, error) {
		return webmail.New(baseURL, webmail.RandomUserAgent())
	}
}

// splitAddress splits a login of the form user@domain. Both halves must be
// non-empty.
func splitAddress(addr string) (name, domain string, err error) {
	parts := strings.Split(addr, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid email address: %q", addr)
	}
	return parts[0], parts[1], nil
}
