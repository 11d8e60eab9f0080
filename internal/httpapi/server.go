package httpapi

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/shineum/bulkmail-lite/internal/dispatch"
	bmtls "github.com/shineum/bulkmail-lite/internal/tls"
)

// shutdownTimeout is the maximum time to wait for in-flight requests
// during graceful shutdown.
const shutdownTimeout = 30 * time.Second

// SendPath is the bulk send endpoint.
const SendPath = "/api/send-emails"

// ServerConfig holds the configuration for an HTTP server.
type ServerConfig struct {
	// ListenAddr is the address to listen on (e.g., ":3000").
	ListenAddr string

	// BodyLimit caps the request body size in bytes, attachments included.
	BodyLimit int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// TLSConfig enables HTTPS when non-nil.
	TLSConfig *tls.Config

	Dispatcher *dispatch.Dispatcher
	Logger     *slog.Logger
}

// Server serves the send endpoint until its context is cancelled.
type Server struct {
	config ServerConfig
	app    *fiber.App
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// New creates a new Server with the given configuration.
func New(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               "bulkmail-lite",
		BodyLimit:             cfg.BodyLimit,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})

	h := NewHandler(cfg.Dispatcher, logger)
	app.Use(requestLogger(logger))
	app.Get("/healthz", h.Health)
	app.Post(SendPath, h.SendEmails)
	app.All(SendPath, methodNotAllowed)

	return &Server{config: cfg, app: app, logger: logger}
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled. On cancellation it stops accepting new connections and waits up
// to 30 seconds for in-flight requests to complete.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	ln = bmtls.NewListener(ln, s.config.TLSConfig)

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("HTTP server listening",
		"addr", ln.Addr().String(),
		"provider", s.config.Dispatcher.Provider().Name(),
		"tls_enabled", s.config.TLSConfig != nil,
		"body_limit", s.config.BodyLimit,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		s.logger.Warn("shutdown timeout reached, forcing close")
	}
	return <-errCh
}

// Addr returns the listener address, or empty string if not listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// requestLogger logs every completed request. Errors from the chain are
// rendered first so the logged status is the one sent.
func requestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		logger.Info("request completed",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", c.IP(),
		)
		return nil
	}
}

// errorHandler renders errors that escape a handler, such as an oversized
// body or an unknown route, in the same JSON shape as handler errors.
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := msgSendFailed
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			msg = fe.Message
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("unhandled request error", "path", c.Path(), "error", err)
		}
		return c.Status(code).JSON(ErrorResponse{Error: msg})
	}
}
