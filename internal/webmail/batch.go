package webmail

import (
	"strconv"
	"strings"
)

// MessageRef identifies one message on the server.
type MessageRef struct {
	Mailbox string
	UID     int
}

// MailboxGroup holds the uids of one mailbox in their original input order.
type MailboxGroup struct {
	Mailbox string
	UIDs    []int
}

// MailboxBatch is an ordered partition of message references by mailbox.
// Mailboxes appear in order of first appearance in the input.
type MailboxBatch []MailboxGroup

// GroupByMailbox partitions refs by mailbox for the server's per-mailbox
// bulk endpoints. It performs no I/O.
func GroupByMailbox(refs []MessageRef) MailboxBatch {
	var batch MailboxBatch
	index := make(map[string]int)

	for _, ref := range refs {
		i, ok := index[ref.Mailbox]
		if !ok {
			i = len(batch)
			index[ref.Mailbox] = i
			batch = append(batch, MailboxGroup{Mailbox: ref.Mailbox})
		}
		batch[i].UIDs = append(batch[i].UIDs, ref.UID)
	}

	return batch
}

// joinUIDs renders uids in the `-`-delimited form the bulk-action form
// fields expect.
func joinUIDs(uids []int) string {
	parts := make([]string, len(uids))
	for i, uid := range uids {
		parts[i] = strconv.Itoa(uid)
	}
	return strings.Join(parts, "-")
}
