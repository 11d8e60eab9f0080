// Package smtp implements a Provider that relays emails through an SMTP
// submission server such as smtp.gmail.com.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/shineum/bulkmail-lite/internal/email"
)

// implicitTLSPort is the SMTPS port where TLS starts before the greeting.
const implicitTLSPort = 465

// defaultTimeout bounds one SMTP conversation when the context has no deadline.
const defaultTimeout = 30 * time.Second

// SMTPProviderConfig holds the configuration for creating an SMTPProvider.
type SMTPProviderConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	// Sender is the From address and envelope sender.
	Sender string

	// TLSConfig overrides the client TLS configuration used for STARTTLS and
	// implicit TLS. ServerName defaults to Host.
	TLSConfig *tls.Config

	// Timeout bounds one conversation; defaults to 30 seconds.
	Timeout time.Duration
}

// SMTPProvider opens one SMTP connection per message.
type SMTPProvider struct {
	addr      string
	host      string
	port      int
	sender    string
	auth      smtp.Auth
	tlsConfig *tls.Config
	timeout   time.Duration
	dialer    net.Dialer
}

// New creates a new SMTPProvider with the given configuration.
func New(cfg SMTPProviderConfig) (*SMTPProvider, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp: host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("smtp: invalid port %d", cfg.Port)
	}
	if cfg.Sender == "" {
		return nil, errors.New("smtp: sender is required")
	}

	tlsConfig := cfg.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	tlsConfig = tlsConfig.Clone()
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = cfg.Host
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	p := &SMTPProvider{
		addr:      net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		host:      cfg.Host,
		port:      cfg.Port,
		sender:    cfg.Sender,
		tlsConfig: tlsConfig,
		timeout:   timeout,
	}
	if cfg.Username != "" {
		p.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return p, nil
}

// Send delivers msg in a single SMTP transaction.
func (p *SMTPProvider) Send(ctx context.Context, msg *email.Email) error {
	raw, err := email.BuildMIME(p.sender, msg)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	rcpts := make([]string, 0, len(msg.To)+len(msg.Cc)+len(msg.Bcc))
	rcpts = append(rcpts, msg.To...)
	rcpts = append(rcpts, msg.Cc...)
	rcpts = append(rcpts, msg.Bcc...)
	if len(rcpts) == 0 {
		return errors.New("smtp: message has no recipients")
	}

	return p.deliver(ctx, rcpts, raw)
}

// Name returns the provider name.
func (p *SMTPProvider) Name() string {
	return "smtp"
}

func (p *SMTPProvider) deliver(ctx context.Context, rcpts []string, raw []byte) error {
	conn, err := p.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", p.addr, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(p.timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, p.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP handshake failed: %w", err)
	}
	defer client.Close()

	if p.port != implicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(p.tlsConfig); err != nil {
				return fmt.Errorf("STARTTLS failed: %w", err)
			}
		}
	}

	if p.auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(p.auth); err != nil {
				return fmt.Errorf("AUTH failed: %w", err)
			}
		}
	}

	if err := client.Mail(p.sender); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	for _, rcpt := range rcpts {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s failed: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message rejected: %w", err)
	}

	return client.Quit()
}

func (p *SMTPProvider) dial(ctx context.Context) (net.Conn, error) {
	if p.port == implicitTLSPort {
		d := &tls.Dialer{NetDialer: &p.dialer, Config: p.tlsConfig}
		return d.DialContext(ctx, "tcp", p.addr)
	}
	return p.dialer.DialContext(ctx, "tcp", p.addr)
}
