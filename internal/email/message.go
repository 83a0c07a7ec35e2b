// Package email defines the parsed email data model shared by the protocol
// adapters and the webmail client.
package email

// Address is one mailbox address with its optional display name.
type Address struct {
	Name    string
	Address string
}

// Email is a parsed email message. HTML is empty for plain-text messages;
// a non-empty HTML body takes precedence over Text when the message is
// handed to the webmail server.
type Email struct {
	From        []Address
	To          []Address
	Cc          []Address
	Bcc         []Address
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// Attachment is a file attached to an email message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}
