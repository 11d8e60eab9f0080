package ses

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/shineum/bulkmail-lite/internal/email"
	"github.com/shineum/bulkmail-lite/internal/provider"
)

// mockSESClient implements SendEmailAPI for testing.
type mockSESClient struct {
	sendFn    func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendFn != nil {
		return m.sendFn(ctx, params, optFns...)
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

var _ provider.Provider = (*SESProvider)(nil)

func TestName(t *testing.T) {
	t.Parallel()
	p := NewWithClient("sender@example.com", &mockSESClient{})
	if got := p.Name(); got != "ses" {
		t.Errorf("Name(): got %q, want %q", got, "ses")
	}
}

func TestSend_SimpleTextEmail(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("sender@example.com", mock)

	msg := &email.Email{
		From:     "sender@example.com",
		To:       []string{"to@example.com"},
		Subject:  "Test Subject",
		TextBody: "Hello, World!",
	}

	if err := p.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}

	input := mock.lastInput
	if input.Content.Simple == nil {
		t.Fatal("expected simple email content, got nil")
	}
	if got := *input.FromEmailAddress; got != "sender@example.com" {
		t.Errorf("FromEmailAddress: got %q, want %q", got, "sender@example.com")
	}
	if got := *input.Content.Simple.Subject.Data; got != "Test Subject" {
		t.Errorf("Subject: got %q, want %q", got, "Test Subject")
	}
	if got := *input.Content.Simple.Body.Text.Data; got != "Hello, World!" {
		t.Errorf("TextBody: got %q, want %q", got, "Hello, World!")
	}
	if input.Content.Simple.Body.Html != nil {
		t.Error("expected no HTML body")
	}
}

func TestSend_TextAndHtmlEmail(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("sender@example.com", mock)

	msg := &email.Email{
		To:       []string{"to@example.com"},
		Subject:  "HTML Test",
		TextBody: "Plain text fallback",
		HtmlBody: "<h1>Plain text fallback</h1>",
	}

	if err := p.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := mock.lastInput.Content.Simple.Body
	if got := *body.Html.Data; got != "<h1>Plain text fallback</h1>" {
		t.Errorf("HtmlBody: got %q", got)
	}
	if got := *body.Text.Data; got != "Plain text fallback" {
		t.Errorf("TextBody: got %q", got)
	}
	if got := *body.Html.Charset; got != "UTF-8" {
		t.Errorf("HTML charset: got %q, want %q", got, "UTF-8")
	}
}

func TestSend_SingleRecipientDestination(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("sender@example.com", mock)

	msg := &email.Email{
		To:       []string{"only@example.com"},
		Subject:  "One",
		TextBody: "Hello",
	}

	if err := p.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dest := mock.lastInput.Destination
	if len(dest.ToAddresses) != 1 || dest.ToAddresses[0] != "only@example.com" {
		t.Errorf("ToAddresses: got %v, want [only@example.com]", dest.ToAddresses)
	}
	if len(dest.CcAddresses) != 0 || len(dest.BccAddresses) != 0 {
		t.Errorf("expected no Cc/Bcc, got %v / %v", dest.CcAddresses, dest.BccAddresses)
	}
}

func TestSend_WithAttachments(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	p := NewWithClient("sender@example.com", mock)

	msg := &email.Email{
		To:        []string{"to@example.com"},
		Subject:   "With Attachment",
		TextBody:  "See attachment",
		HtmlBody:  "See attachment",
		MessageID: "<msg-123@example.com>",
		Attachments: []email.Attachment{
			{
				Filename:    "test.txt",
				ContentType: "text/plain",
				Content:     []byte("file content"),
			},
		},
	}

	if err := p.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	input := mock.lastInput
	if input.Content.Raw == nil {
		t.Fatal("expected raw email content for attachment, got nil")
	}
	if input.Content.Simple != nil {
		t.Error("expected no simple content when using raw message")
	}
	if got := input.Destination.ToAddresses; len(got) != 1 || got[0] != "to@example.com" {
		t.Errorf("raw destination: got %v", got)
	}

	rawStr := string(input.Content.Raw.Data)
	checks := []struct {
		name     string
		contains string
	}{
		{"From header", "From: sender@example.com"},
		{"To header", "To: to@example.com"},
		{"Subject header", "Subject: With Attachment"},
		{"Message-ID header", "Message-ID: <msg-123@example.com>"},
		{"multipart boundary", "multipart/mixed"},
		{"alternative body", "multipart/alternative"},
		{"attachment filename", "test.txt"},
		{"base64 encoding", "Content-Transfer-Encoding: base64"},
	}
	for _, check := range checks {
		if !strings.Contains(rawStr, check.contains) {
			t.Errorf("raw message missing %s: expected to contain %q", check.name, check.contains)
		}
	}
}

func TestSend_ErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, errors.New("throttled")
		},
	}
	p := NewWithClient("sender@example.com", mock)

	msg := &email.Email{
		To:       []string{"to@example.com"},
		Subject:  "Fail Test",
		TextBody: "Hello",
	}

	err := p.Send(context.Background(), msg)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "throttled") {
		t.Errorf("error should wrap the SES error, got %q", err.Error())
	}
	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}
}

func TestSend_PassesContext(t *testing.T) {
	t.Parallel()

	type ctxKey struct{}
	var seen any
	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			seen = ctx.Value(ctxKey{})
			return &sesv2.SendEmailOutput{}, nil
		},
	}
	p := NewWithClient("sender@example.com", mock)

	ctx := context.WithValue(context.Background(), ctxKey{}, "batch-1")
	if err := p.Send(ctx, &email.Email{To: []string{"to@example.com"}, TextBody: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != "batch-1" {
		t.Errorf("context value: got %v, want %q", seen, "batch-1")
	}
}

func TestBuildSimpleInput_EmptyBodies(t *testing.T) {
	t.Parallel()

	input := buildSimpleInput("sender@example.com", &email.Email{
		To:      []string{"to@example.com"},
		Subject: "Empty",
	})

	if input.Content.Simple.Body.Html != nil || input.Content.Simple.Body.Text != nil {
		t.Error("expected no body content for empty message")
	}
	if got := *input.Content.Simple.Subject.Charset; got != "UTF-8" {
		t.Errorf("Subject charset: got %q, want %q", got, "UTF-8")
	}
}
