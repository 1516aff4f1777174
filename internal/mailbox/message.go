package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Message is a parsed email reduced to what report capture needs.
type Message struct {
	From        string
	Subject     string
	Attachments []Attachment
}

type Attachment struct {
	Name    string
	Content []byte
}

// ParseMessage reads a raw RFC 822 message. Parts with a filename are
// attachments whatever their disposition.
func ParseMessage(raw []byte) (Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return Message{}, fmt.Errorf("parse message: %w", err)
	}
	defer mr.Close()

	var msg Message
	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		msg.From = addrs[0].Address
	} else {
		msg.From = mr.Header.Get("From")
	}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = mr.Header.Get("Subject")
	}

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return Message{}, fmt.Errorf("read message part: %w", err)
		}
		if p == nil {
			continue
		}

		name := partFilename(p.Header)
		if name == "" {
			continue
		}
		content, err := io.ReadAll(p.Body)
		if err != nil {
			return Message{}, fmt.Errorf("read attachment %q: %w", name, err)
		}
		msg.Attachments = append(msg.Attachments, Attachment{Name: name, Content: content})
	}
	return msg, nil
}

func partFilename(h mail.PartHeader) string {
	switch h := h.(type) {
	case *mail.AttachmentHeader:
		if name, err := h.Filename(); err == nil && name != "" {
			return name
		}
		if _, params, err := h.ContentType(); err == nil {
			return params["name"]
		}
	case *mail.InlineHeader:
		if _, params, err := h.ContentDisposition(); err == nil && params["filename"] != "" {
			return params["filename"]
		}
		if _, params, err := h.ContentType(); err == nil {
			return params["name"]
		}
	}
	return ""
}
