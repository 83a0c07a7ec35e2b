// Package parser turns raw RFC 5322 message sources into the email data
// model, with typed address lists and separated plain/HTML bodies.
package parser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-message/mail"

	_ "github.com/emersion/go-message/charset"

	"github.com/mailbridge/ombx-bridge/internal/email"
)

// Parse reads one message from r. The first text/plain and the first
// text/html inline parts become the bodies; attachment parts are collected
// as-is. Unrecognized inline parts are logged and skipped.
func Parse(r io.Reader) (*email.Email, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	result := &email.Email{
		From: addressList(mr.Header, "From"),
		To:   addressList(mr.Header, "To"),
		Cc:   addressList(mr.Header, "Cc"),
		Bcc:  addressList(mr.Header, "Bcc"),
	}
	result.Subject, _ = mr.Header.Subject()

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read message part: %w", err)
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			mediaType, _, _ := header.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("read part body: %w", err)
			}
			switch {
			case strings.HasPrefix(mediaType, "text/plain"):
				if result.Text == "" {
					result.Text = string(body)
				}
			case strings.HasPrefix(mediaType, "text/html"):
				if result.HTML == "" {
					result.HTML = string(body)
				}
			default:
				slog.Warn("skipping unrecognized inline part",
					"content_type", mediaType,
				)
			}
		case *mail.AttachmentHeader:
			content, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("read attachment: %w", err)
			}
			filename, _ := header.Filename()
			mediaType, _, _ := header.ContentType()
			result.Attachments = append(result.Attachments, email.Attachment{
				Filename:    filename,
				ContentType: mediaType,
				Content:     content,
			})
		}
	}

	return result, nil
}

func addressList(header mail.Header, field string) []email.Address {
	list, err := header.AddressList(field)
	if err != nil || len(list) == 0 {
		return nil
	}
	addrs := make([]email.Address, 0, len(list))
	for _, addr := range list {
		addrs = append(addrs, email.Address{
			Name:    addr.Name,
			Address: addr.Address,
		})
	}
	return addrs
}
