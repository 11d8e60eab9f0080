// Package main is the entry point for the bulk mail server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/shineum/bulkmail-lite/internal/config"
	"github.com/shineum/bulkmail-lite/internal/dispatch"
	"github.com/shineum/bulkmail-lite/internal/httpapi"
	"github.com/shineum/bulkmail-lite/internal/provider"
	"github.com/shineum/bulkmail-lite/internal/provider/graph"
	"github.com/shineum/bulkmail-lite/internal/provider/resend"
	"github.com/shineum/bulkmail-lite/internal/provider/ses"
	"github.com/shineum/bulkmail-lite/internal/provider/smtp"
	"github.com/shineum/bulkmail-lite/internal/provider/stdout"
	bmtls "github.com/shineum/bulkmail-lite/internal/tls"
)

// defaultSender is used by the stdout provider when no from address is set.
const defaultSender = "noreply@localhost"

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	envFile := flag.String("env-file", ".env", "path to a .env file loaded before configuration")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		slog.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging.Level)

	tlsConfig, err := bmtls.ServerConfig(cfg.TLS, tlsHosts(cfg.Server.Listen)...)
	if err != nil {
		slog.Error("failed to setup TLS", "error", err)
		os.Exit(1)
	}

	tlsMode := "disabled"
	switch {
	case tlsConfig == nil:
	case cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "":
		tlsMode = "file"
	default:
		tlsMode = "self-signed"
	}

	prov, sender, err := selectProvider(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to configure provider", "error", err)
		os.Exit(1)
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		Provider: prov,
		From:     sender,
		Logger:   slog.Default(),
	})
	if err != nil {
		slog.Error("failed to create dispatcher", "error", err)
		os.Exit(1)
	}

	server := httpapi.New(httpapi.ServerConfig{
		ListenAddr:   cfg.Server.Listen,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		TLSConfig:    tlsConfig,
		Dispatcher:   dispatcher,
		Logger:       slog.Default(),
	})

	slog.Info("starting bulkmail-lite",
		"listen", cfg.Server.Listen,
		"provider", prov.Name(),
		"sender", sender,
		"tls_mode", tlsMode,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, initiating shutdown", "signal", sig)
		cancel()
	}()

	if err := server.ListenAndServe(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("bulkmail-lite stopped")
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// tlsHosts returns the SANs for a self-signed certificate. A wildcard listen
// address falls back to the defaults.
func tlsHosts(listen string) []string {
	host, _, err := net.SplitHostPort(listen)
	if err != nil || host == "" || host == "0.0.0.0" || host == "::" {
		return nil
	}
	return []string{host}
}

// selectProvider chooses the email delivery backend based on configuration
// and returns it with the sender address used on outgoing messages.
// An explicit provider name takes precedence; otherwise the first configured
// backend wins (graph, ses, resend, smtp), falling back to stdout.
func selectProvider(ctx context.Context, cfg *config.Config) (provider.Provider, string, error) {
	name := cfg.Provider
	if name == "" {
		name = detectProvider(cfg)
		slog.Info("provider auto-detected", "provider", name)
	}

	switch name {
	case "smtp":
		if !cfg.SMTPConfigured() {
			return nil, "", errors.New("SMTP provider selected but SMTP_HOST and MAIL_FROM (or EMAIL_USER and EMAIL_PASSWORD) are required")
		}
		slog.Info("using SMTP provider",
			"host", cfg.SMTP.Host,
			"port", cfg.SMTP.Port,
			"auth_enabled", cfg.AuthEnabled(),
			"sender", cfg.Mail.From,
		)
		p, err := smtp.New(smtp.SMTPProviderConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			Sender:   cfg.Mail.From,
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to create SMTP provider: %w", err)
		}
		return p, cfg.Mail.From, nil

	case "ses":
		if !cfg.SESConfigured() {
			return nil, "", errors.New("SES provider selected but SES_REGION and SES_SENDER are required")
		}
		slog.Info("using AWS SES provider",
			"region", cfg.SES.Region,
			"sender", cfg.SES.Sender,
		)
		p, err := ses.New(ctx, ses.SESProviderConfig{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          cfg.SES.Sender,
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to create SES provider: %w", err)
		}
		return p, cfg.SES.Sender, nil

	case "graph":
		if !cfg.GraphConfigured() {
			return nil, "", errors.New("graph provider selected but GRAPH_TENANT_ID, GRAPH_CLIENT_ID, GRAPH_CLIENT_SECRET, and GRAPH_SENDER are required")
		}
		slog.Info("using Microsoft Graph provider",
			"sender", cfg.Graph.Sender,
		)
		return graph.New(graph.GraphProviderConfig{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Sender:       cfg.Graph.Sender,
		}), cfg.Graph.Sender, nil

	case "resend":
		if !cfg.ResendConfigured() {
			return nil, "", errors.New("resend provider selected but RESEND_API_KEY and MAIL_FROM are required")
		}
		slog.Info("using Resend provider",
			"sender", cfg.Mail.From,
		)
		p, err := resend.New(resend.ResendProviderConfig{
			APIKey: cfg.Resend.APIKey,
			Sender: cfg.Mail.From,
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to create Resend provider: %w", err)
		}
		return p, cfg.Mail.From, nil

	case "stdout":
		slog.Info("using stdout provider")
		sender := cfg.Mail.From
		if sender == "" {
			sender = defaultSender
		}
		return stdout.New(), sender, nil

	default:
		return nil, "", fmt.Errorf("unknown provider %q", name)
	}
}

func detectProvider(cfg *config.Config) string {
	switch {
	case cfg.GraphConfigured():
		return "graph"
	case cfg.SESConfigured():
		return "ses"
	case cfg.ResendConfigured():
		return "resend"
	case cfg.SMTPConfigured():
		return "smtp"
	default:
		return "stdout"
	}
}
