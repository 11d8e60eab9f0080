// Package email defines the message model handed to delivery providers and
// renders it as an RFC 5322 MIME document.
package email

// Email is a single outbound message. The dispatcher builds one per recipient,
// so To normally holds exactly one address.
type Email struct {
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	TextBody    string
	HtmlBody    string
	Attachments []Attachment
	MessageID   string
}

// Attachment represents a file attached to an email message.
// Content is shared between all messages of a batch and must not be mutated.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// TotalAttachmentSize returns the sum of all attachment sizes in bytes.
func (e *Email) TotalAttachmentSize() int {
	total := 0
	for _, att := range e.Attachments {
		total += len(att.Content)
	}
	return total
}
