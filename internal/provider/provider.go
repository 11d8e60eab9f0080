// Package provider defines the interface for email delivery backends.
package provider

import (
	"context"

	"github.com/shineum/bulkmail-lite/internal/email"
)

// Provider is the interface that email delivery backends must implement.
// A provider is constructed once at startup and shared by every request.
type Provider interface {
	// Send makes exactly one delivery attempt for msg.
	// It returns an error if the delivery fails.
	Send(ctx context.Context, msg *email.Email) error

	// Name returns the human-readable name of this provider.
	Name() string
}

// Func adapts a plain function to the Provider interface.
type Func func(ctx context.Context, msg *email.Email) error

// Send calls f(ctx, msg).
func (f Func) Send(ctx context.Context, msg *email.Email) error {
	return f(ctx, msg)
}

// Name returns "func".
func (f Func) Name() string {
	return "func"
}
