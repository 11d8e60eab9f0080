// Package composer is the client side of a bulk send: it holds the draft,
// validates recipients locally and submits the batch to the server.
package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/shineum/bulkmail-lite/internal/recipients"
)

// sendPath is the server endpoint for a bulk send.
const sendPath = "/api/send-emails"

// defaultTimeout bounds one submission. Batches are sent sequentially on the
// server, so this is deliberately generous.
const defaultTimeout = 10 * time.Minute

// ServerError is a non-2xx response from the server.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// File is an uploaded template or attachment.
type File struct {
	Name    string
	Content []byte
}

// SendResult is the outcome reported by the server.
type SendResult struct {
	Message string `json:"message"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

// sendResponse mirrors the server's success body.
type sendResponse struct {
	Message  string `json:"message"`
	Progress struct {
		Current int `json:"current"`
		Total   int `json:"total"`
	} `json:"progress"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Config holds the configuration for creating a Composer.
type Config struct {
	// ServerURL is the base URL of the bulk mail server.
	ServerURL string

	// HTTPClient defaults to a client with Timeout.
	HTTPClient *http.Client

	Timeout time.Duration
}

// Composer holds one draft. It is not safe for concurrent use.
type Composer struct {
	serverURL  string
	httpClient *http.Client

	recipientText string
	subject       string
	message       string
	template      *File
	attachments   []File
}

// New creates a Composer for the server at cfg.ServerURL.
func New(cfg Config) (*Composer, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("composer: server URL is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Composer{
		serverURL:  strings.TrimRight(cfg.ServerURL, "/"),
		httpClient: client,
	}, nil
}

// SetRecipients stores the raw recipient text. It is validated on Submit.
func (c *Composer) SetRecipients(text string) {
	c.recipientText = text
}

// Recipients returns the current recipient text.
func (c *Composer) Recipients() string {
	return c.recipientText
}

// ImportRecipients replaces the recipient text with the normalized content
// of an imported list file.
func (c *Composer) ImportRecipients(content string) {
	c.recipientText = recipients.Normalize(content)
}

// SetSubject sets the subject line.
func (c *Composer) SetSubject(subject string) { c.subject = subject }

// SetMessage sets the plain-text message.
func (c *Composer) SetMessage(message string) { c.message = message }

// Message returns the plain-text message.
func (c *Composer) Message() string { return c.message }

// SetTemplate sets the HTML template uploaded with the batch.
func (c *Composer) SetTemplate(name string, content []byte) {
	c.template = &File{Name: name, Content: content}
}

// TemplateName returns the template file name, or "" when none is set.
func (c *Composer) TemplateName() string {
	if c.template == nil {
		return ""
	}
	return c.template.Name
}

// Template returns the template file, or nil.
func (c *Composer) Template() *File {
	return c.template
}

// AddAttachment appends a file to the batch.
func (c *Composer) AddAttachment(name string, content []byte) {
	c.attachments = append(c.attachments, File{Name: name, Content: content})
}

// AttachmentNames returns the attachment file names in upload order.
func (c *Composer) AttachmentNames() []string {
	names := make([]string, len(c.attachments))
	for i, a := range c.attachments {
		names[i] = a.Name
	}
	return names
}

// Validate parses the recipient text and checks every entry. On failure the
// error is a *recipients.ValidationError listing the offending entries.
func (c *Composer) Validate() ([]string, error) {
	list := recipients.Parse(c.recipientText)
	if err := recipients.Validate(list); err != nil {
		return nil, err
	}
	return list, nil
}

// Submit validates the draft and posts it to the server in one request.
// Nothing is sent when validation fails.
func (c *Composer) Submit(ctx context.Context) (SendResult, error) {
	list, err := c.Validate()
	if err != nil {
		return SendResult{}, err
	}

	body, contentType, err := c.encode(list)
	if err != nil {
		return SendResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+sendPath, body)
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serverErr := &ServerError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var er errorResponse
		if jsonErr := json.Unmarshal(raw, &er); jsonErr == nil && er.Error != "" {
			serverErr.Message = er.Error
		}
		return SendResult{}, serverErr
	}

	var sr sendResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return SendResult{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return SendResult{Message: sr.Message, Current: sr.Progress.Current, Total: sr.Progress.Total}, nil
}

// encode builds the multipart form body.
func (c *Composer) encode(list []string) (*bytes.Buffer, string, error) {
	emails, err := json.Marshal(list)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode recipients: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range []struct{ name, value string }{
		{"emails", string(emails)},
		{"subject", c.subject},
		{"message", c.message},
	} {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f.name, err)
		}
	}

	if c.template != nil {
		if err := writeFile(w, "emailTemplate", *c.template, "text/html"); err != nil {
			return nil, "", err
		}
	}
	for _, att := range c.attachments {
		if err := writeFile(w, "attachments", att, "application/octet-stream"); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFile(w *multipart.Writer, field string, f File, contentType string) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		field, quoteEscaper.Replace(f.Name)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", field, err)
	}
	if _, err := part.Write(f.Content); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.Name, err)
	}
	return nil
}
