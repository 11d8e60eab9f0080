// Package resend implements a Provider backed by the Resend HTTP API.
package resend

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v2"

	"github.com/shineum/bulkmail-lite/internal/email"
)

// EmailsAPI is the subset of the Resend client used by ResendProvider.
type EmailsAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendProviderConfig holds the configuration for creating a ResendProvider.
type ResendProviderConfig struct {
	APIKey string
	Sender string
}

// ResendProvider sends each email with one Resend API call.
type ResendProvider struct {
	emails EmailsAPI
	sender string
}

// New creates a new ResendProvider.
func New(cfg ResendProviderConfig) (*ResendProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("resend: api key is required")
	}
	if cfg.Sender == "" {
		return nil, errors.New("resend: sender is required")
	}
	return NewWithClient(resend.NewClient(cfg.APIKey).Emails, cfg.Sender), nil
}

// NewWithClient creates a ResendProvider with a custom client (for testing).
func NewWithClient(emails EmailsAPI, sender string) *ResendProvider {
	return &ResendProvider{emails: emails, sender: sender}
}

// Send delivers msg through the Resend emails endpoint.
func (p *ResendProvider) Send(ctx context.Context, msg *email.Email) error {
	params := &resend.SendEmailRequest{
		From:    p.sender,
		To:      msg.To,
		Cc:      msg.Cc,
		Bcc:     msg.Bcc,
		Subject: msg.Subject,
		Html:    msg.HtmlBody,
		Text:    msg.TextBody,
	}
	if msg.MessageID != "" {
		params.Headers = map[string]string{"Message-ID": msg.MessageID}
	}
	for _, att := range msg.Attachments {
		params.Attachments = append(params.Attachments, &resend.Attachment{
			Content:     att.Content,
			Filename:    att.Filename,
			ContentType: att.ContentType,
		})
	}

	resp, err := p.emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}
	if resp == nil || resp.Id == "" {
		return errors.New("resend: empty response id")
	}
	return nil
}

// Name returns the provider name.
func (p *ResendProvider) Name() string {
	return "resend"
}
