// Package main is the command-line composer for bulk sends.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/shineum/bulkmail-lite/internal/composer"
	"github.com/shineum/bulkmail-lite/internal/config"
	"github.com/shineum/bulkmail-lite/internal/dispatch"
	"github.com/shineum/bulkmail-lite/internal/eml"
)

const progressWidth = 30

// fileList collects a repeatable flag.
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bulkmail", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configPath  = fs.String("config", "", "path to YAML configuration file (optional)")
		envFile     = fs.String("env-file", ".env", "path to a .env file loaded before configuration")
		to          = fs.String("to", "", "comma-separated recipient addresses")
		importPath  = fs.String("import", "", "text or CSV file of recipients, separated by newlines or commas")
		emlPath     = fs.String("eml", "", "saved message (.eml) providing recipients, subject, bodies and attachments not set by other flags")
		subject     = fs.String("subject", "", "email subject")
		message     = fs.String("message", "", "plain-text message")
		messageFile = fs.String("message-file", "", "read the message from a file")
		tmplPath    = fs.String("template", "", "HTML template; every {{message}} is replaced by the message")
		preview     = fs.String("preview", "", "write the rendered template to this file and exit without sending")
		serverURL   = fs.String("server", "", "bulk mail server URL (overrides BULKMAIL_SERVER_URL)")
		attachments fileList
	)
	fs.Var(&attachments, "attach", "file to attach (repeatable)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	errOut := color.New(color.FgRed)

	if err := config.LoadDotEnv(*envFile); err != nil {
		errOut.Fprintln(stderr, err)
		return 1
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		errOut.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Logging.Level)}))

	if *serverURL != "" {
		cfg.Client.ServerURL = *serverURL
	}
	c, err := composer.New(composer.Config{ServerURL: cfg.Client.ServerURL, Timeout: cfg.Client.Timeout})
	if err != nil {
		errOut.Fprintln(stderr, err)
		return 1
	}

	if err := fillDraft(c, draft{
		to:          *to,
		importPath:  *importPath,
		emlPath:     *emlPath,
		subject:     *subject,
		message:     *message,
		messageFile: *messageFile,
		tmplPath:    *tmplPath,
		attachments: attachments,
	}); err != nil {
		errOut.Fprintln(stderr, err)
		return 1
	}

	if *preview != "" {
		if err := writePreview(c, *preview); err != nil {
			errOut.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintf(stdout, "Template preview written to %s\n", *preview)
		return 0
	}

	if name := c.TemplateName(); name != "" {
		fmt.Fprintf(stdout, "Template: %s\n", name)
	}
	if names := c.AttachmentNames(); len(names) > 0 {
		fmt.Fprintf(stdout, "Attachments: %s\n", strings.Join(names, ", "))
	}

	return submit(ctx, c, stdout, stderr, logger)
}

type draft struct {
	to          string
	importPath  string
	emlPath     string
	subject     string
	message     string
	messageFile string
	tmplPath    string
	attachments []string
}

// fillDraft loads recipients, body, template and attachments into c.
// Explicit flags win over the content of a saved message.
func fillDraft(c *composer.Composer, d draft) error {
	if d.emlPath != "" {
		if err := applySavedMessage(&d, c); err != nil {
			return err
		}
	}

	c.SetRecipients(d.to)
	if d.importPath != "" {
		content, err := os.ReadFile(d.importPath)
		if err != nil {
			return fmt.Errorf("failed to read recipient file: %w", err)
		}
		c.ImportRecipients(string(content))
	}

	c.SetSubject(d.subject)
	body, err := messageBody(d.message, d.messageFile)
	if err != nil {
		return err
	}
	c.SetMessage(body)

	if d.tmplPath != "" {
		content, err := os.ReadFile(d.tmplPath)
		if err != nil {
			return fmt.Errorf("failed to read template: %w", err)
		}
		c.SetTemplate(filepath.Base(d.tmplPath), content)
	}

	for _, path := range d.attachments {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read attachment: %w", err)
		}
		c.AddAttachment(filepath.Base(path), content)
	}
	return nil
}

// applySavedMessage fills the unset parts of d from a saved message and
// attaches its files to c.
func applySavedMessage(d *draft, c *composer.Composer) error {
	raw, err := os.ReadFile(d.emlPath)
	if err != nil {
		return fmt.Errorf("failed to read saved message: %w", err)
	}
	msg, err := eml.Parse(raw)
	if err != nil {
		return err
	}

	if d.to == "" && d.importPath == "" {
		d.to = strings.Join(msg.Recipients, ", ")
	}
	if d.subject == "" {
		d.subject = msg.Subject
	}
	if d.message == "" && d.messageFile == "" {
		d.message = strings.TrimSpace(msg.Text)
	}
	if d.tmplPath == "" && msg.HTML != "" {
		name := strings.TrimSuffix(filepath.Base(d.emlPath), filepath.Ext(d.emlPath)) + ".html"
		c.SetTemplate(name, []byte(msg.HTML))
	}
	for _, att := range msg.Attachments {
		c.AddAttachment(att.Filename, att.Content)
	}
	return nil
}

func messageBody(message, messageFile string) (string, error) {
	if messageFile == "" {
		return message, nil
	}
	content, err := os.ReadFile(messageFile)
	if err != nil {
		return "", fmt.Errorf("failed to read message file: %w", err)
	}
	return string(content), nil
}

// writePreview renders the template with the message the way the server
// will and writes it to path.
func writePreview(c *composer.Composer, path string) error {
	tmpl := c.Template()
	if tmpl == nil {
		return errors.New("-preview requires -template")
	}
	raw := string(tmpl.Content)
	return os.WriteFile(path, []byte(dispatch.ResolveBody(&raw, c.Message())), 0644)
}

func submit(ctx context.Context, c *composer.Composer, stdout, stderr io.Writer, logger *slog.Logger) int {
	if strings.TrimSpace(c.Recipients()) == "" {
		color.New(color.FgRed).Fprintln(stderr, "no recipients: use -to or -import")
		return 1
	}

	if _, err := c.Validate(); err != nil {
		color.New(color.FgRed).Fprintln(stderr, err.Error())
		return 1
	}

	fmt.Fprintln(stdout, "Sending emails...")

	result, err := c.Submit(ctx)
	if err != nil {
		logger.Debug("send failed", "error", err)
		color.New(color.FgRed).Fprintln(stderr, "Failed to send emails. Please try again.")
		return 1
	}

	logger.Debug("send completed", "message", result.Message)
	fmt.Fprintln(stdout, composer.ProgressBar(result, progressWidth))
	status := color.New(color.FgGreen)
	if result.Current < result.Total {
		status = color.New(color.FgYellow)
	}
	status.Fprintln(stdout, composer.RenderStatus(result))
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
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
