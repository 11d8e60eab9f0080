// Package dispatch sends one message to every recipient of a batch, in order,
// and reports how many deliveries succeeded.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/shineum/bulkmail-lite/internal/email"
	"github.com/shineum/bulkmail-lite/internal/provider"
	"github.com/shineum/bulkmail-lite/internal/recipients"
)

// Placeholder is the token in an HTML template that is replaced by the
// plain-text message.
const Placeholder = "{{message}}"

var (
	// ErrInvalidRequest is returned when a batch is rejected before any send
	// attempt because its recipient list is missing, malformed or empty.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInternal is returned when the request could not be prepared, for
	// example when an attachment cannot be read.
	ErrInternal = errors.New("internal error")
)

// State is a step of the per-request lifecycle.
type State string

const (
	StateReceived     State = "received"
	StateValidated    State = "validated"
	StateBodyResolved State = "body_resolved"
	StateSending      State = "sending"
	StateCompleted    State = "completed"
	StateRejected     State = "rejected"
)

// Request is one bulk send. It must not be modified while Dispatch runs.
type Request struct {
	Recipients []string
	Subject    string
	Body       string

	// Template is the raw HTML template, or nil when none was uploaded.
	Template *string

	Attachments []email.Attachment
}

// Validate checks the recipient list. Every failure wraps ErrInvalidRequest;
// syntax failures additionally wrap a *recipients.ValidationError.
func (r *Request) Validate() error {
	if len(r.Recipients) == 0 {
		return fmt.Errorf("%w: recipient list is empty", ErrInvalidRequest)
	}
	if err := recipients.Validate(r.Recipients); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// Result summarizes a completed batch.
type Result struct {
	SuccessCount int
	Total        int
}

// Failed returns the number of recipients whose delivery failed.
func (r Result) Failed() int {
	return r.Total - r.SuccessCount
}

// Summary returns the human-readable completion message.
func (r Result) Summary() string {
	return fmt.Sprintf("Successfully sent %d out of %d emails", r.SuccessCount, r.Total)
}

// ResolveBody returns the HTML body for a batch. With a template every
// occurrence of Placeholder is replaced by message; without one the message
// itself is used.
func ResolveBody(template *string, message string) string {
	if template == nil {
		return message
	}
	return strings.ReplaceAll(*template, Placeholder, message)
}

// Config holds the configuration for creating a Dispatcher.
type Config struct {
	// Provider delivers each message. Required.
	Provider provider.Provider

	// From is the sender address placed on every message.
	From string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Dispatcher runs batches against a single provider.
type Dispatcher struct {
	provider provider.Provider
	from     string
	logger   *slog.Logger
}

// New creates a Dispatcher with the given configuration.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Provider == nil {
		return nil, errors.New("dispatch: provider is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		provider: cfg.Provider,
		from:     cfg.From,
		logger:   logger,
	}, nil
}

// Provider returns the provider used for delivery.
func (d *Dispatcher) Provider() provider.Provider {
	return d.provider
}

// Dispatch validates req and then sends one message per recipient, strictly
// sequentially and in input order. A failed send is logged and counted; it
// never stops the remaining recipients. The returned error is non-nil only
// when the batch was rejected before the first send.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (Result, error) {
	log := d.logger.With("batch_id", uuid.NewString())
	log.Debug("batch state", "state", StateReceived, "recipients", len(req.Recipients))

	if err := req.Validate(); err != nil {
		log.Info("batch state", "state", StateRejected, "error", err)
		return Result{}, err
	}
	log.Debug("batch state", "state", StateValidated)

	base := d.baseMessage(req, ResolveBody(req.Template, req.Body))
	log.Debug("batch state", "state", StateBodyResolved,
		"template", req.Template != nil,
		"attachments", len(req.Attachments),
		"attachment_bytes", base.TotalAttachmentSize(),
	)

	result := fold(req.Recipients, Result{Total: len(req.Recipients)}, func(acc Result, i int, rcpt string) Result {
		log.Debug("batch state", "state", StateSending, "index", i, "recipient", rcpt)
		if err := d.provider.Send(ctx, addressTo(base, rcpt)); err != nil {
			log.Error("failed to send email",
				"recipient", rcpt,
				"provider", d.provider.Name(),
				"throttled", throttled(err),
				"error", err,
			)
			return acc
		}
		acc.SuccessCount++
		return acc
	})

	log.Info("batch state", "state", StateCompleted,
		"sent", result.SuccessCount,
		"failed", result.Failed(),
		"total", result.Total,
	)
	return result, nil
}

// baseMessage builds the content shared by every message of the batch.
func (d *Dispatcher) baseMessage(req *Request, html string) *email.Email {
	return &email.Email{
		From:        d.from,
		Subject:     req.Subject,
		TextBody:    req.Body,
		HtmlBody:    html,
		Attachments: req.Attachments,
	}
}

// addressTo returns a copy of base for a single recipient with a fresh
// Message-ID.
func addressTo(base *email.Email, rcpt string) *email.Email {
	msg := *base
	msg.To = []string{rcpt}
	msg.MessageID = email.NewMessageID(base.From)
	return &msg
}

// throttled reports whether err carries a provider rate-limit rejection.
func throttled(err error) bool {
	var t interface{ Throttled() bool }
	return errors.As(err, &t) && t.Throttled()
}

// fold applies fn to every element of list in order, threading the
// accumulator through each call.
func fold[T, A any](list []T, acc A, fn func(A, int, T) A) A {
	for i, item := range list {
		acc = fn(acc, i, item)
	}
	return acc
}
