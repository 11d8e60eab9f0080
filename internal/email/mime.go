package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// base64LineLength is the maximum encoded line length per RFC 2045.
const base64LineLength = 76

// NewMessageID returns a globally unique Message-ID for the given sender domain.
func NewMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = strings.Trim(from[at+1:], "> ")
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// BuildMIME renders msg as a raw MIME message sent from sender.
//
// The body is a multipart/alternative with text and HTML parts when both are
// present. Text parts are quoted-printable; attachments are base64 and wrap
// the body in multipart/mixed.
func BuildMIME(sender string, msg *Email) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", sender)
	if len(msg.To) > 0 {
		fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	}
	if len(msg.Cc) > 0 {
		fmt.Fprintf(&buf, "Cc: %s\r\n", strings.Join(msg.Cc, ", "))
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	if msg.MessageID != "" {
		fmt.Fprintf(&buf, "Message-ID: %s\r\n", msg.MessageID)
	}
	buf.WriteString("MIME-Version: 1.0\r\n")

	bodyHeader, bodyContent, err := renderBody(msg)
	if err != nil {
		return nil, err
	}

	if len(msg.Attachments) == 0 {
		writeHeader(&buf, bodyHeader)
		buf.WriteString("\r\n")
		buf.Write(bodyContent)
		return buf.Bytes(), nil
	}

	mixed := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed.Boundary())

	part, err := mixed.CreatePart(bodyHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create body part: %w", err)
	}
	if _, err := part.Write(bodyContent); err != nil {
		return nil, fmt.Errorf("failed to write body part: %w", err)
	}

	for _, att := range msg.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		attHeader := make(textproto.MIMEHeader)
		attHeader.Set("Content-Type", contentType)
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition",
			mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename}))

		part, err := mixed.CreatePart(attHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment part: %w", err)
		}
		if _, err := part.Write([]byte(encodeBase64WithLineBreaks(att.Content))); err != nil {
			return nil, fmt.Errorf("failed to write attachment %q: %w", att.Filename, err)
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return buf.Bytes(), nil
}

// renderBody returns the headers and encoded content of the message body:
// a multipart/alternative when both text and HTML are set, otherwise a single
// quoted-printable part.
func renderBody(msg *Email) (textproto.MIMEHeader, []byte, error) {
	if msg.HtmlBody == "" || msg.TextBody == "" {
		contentType, content := "text/plain; charset=UTF-8", msg.TextBody
		if msg.HtmlBody != "" {
			contentType, content = "text/html; charset=UTF-8", msg.HtmlBody
		}
		encoded, err := encodeQuotedPrintable(content)
		if err != nil {
			return nil, nil, err
		}
		return textHeader(contentType), encoded, nil
	}

	var body bytes.Buffer
	alt := multipart.NewWriter(&body)
	for _, p := range []struct{ contentType, content string }{
		{"text/plain; charset=UTF-8", msg.TextBody},
		{"text/html; charset=UTF-8", msg.HtmlBody},
	} {
		part, err := alt.CreatePart(textHeader(p.contentType))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create alternative part: %w", err)
		}
		encoded, err := encodeQuotedPrintable(p.content)
		if err != nil {
			return nil, nil, err
		}
		if _, err := part.Write(encoded); err != nil {
			return nil, nil, fmt.Errorf("failed to write alternative part: %w", err)
		}
	}
	if err := alt.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to close alternative writer: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Type", mime.FormatMediaType("multipart/alternative", map[string]string{"boundary": alt.Boundary()}))
	return header, body.Bytes(), nil
}

func textHeader(contentType string) textproto.MIMEHeader {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Type", contentType)
	header.Set("Content-Transfer-Encoding", "quoted-printable")
	return header
}

// writeHeader writes header fields in a stable order.
func writeHeader(buf *bytes.Buffer, header textproto.MIMEHeader) {
	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range header[k] {
			fmt.Fprintf(buf, "%s: %s\r\n", k, v)
		}
	}
}

// encodeQuotedPrintable encodes s with soft line breaks so that no encoded
// line exceeds 76 characters.
func encodeQuotedPrintable(s string) ([]byte, error) {
	var buf bytes.Buffer
	w := quotedprintable.NewWriter(&buf)
	if _, err := w.Write([]byte(s)); err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeBase64WithLineBreaks encodes bytes to base64 with 76-character line breaks per RFC 2045.
func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var lines []string
	for i := 0; i < len(encoded); i += base64LineLength {
		end := min(i+base64LineLength, len(encoded))
		lines = append(lines, encoded[i:end])
	}
	return strings.Join(lines, "\r\n")
}
