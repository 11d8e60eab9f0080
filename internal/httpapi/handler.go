// Package httpapi exposes the dispatcher over HTTP using fiber.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/shineum/bulkmail-lite/internal/dispatch"
	"github.com/shineum/bulkmail-lite/internal/email"
	"github.com/shineum/bulkmail-lite/internal/recipients"
)

// Multipart field names of the send request.
const (
	fieldEmails      = "emails"
	fieldSubject     = "subject"
	fieldMessage     = "message"
	fieldTemplate    = "emailTemplate"
	fieldAttachments = "attachments"
)

// Error messages returned to the caller.
const (
	msgInvalidList      = "Invalid email list"
	msgInvalidAddresses = "Invalid email address(es): "
	msgSendFailed       = "Failed to send emails"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Progress carries the final counts of a batch.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// SendResponse is the body of a successful send.
type SendResponse struct {
	Message  string   `json:"message"`
	Progress Progress `json:"progress"`
}

// HealthResponse is the body of the health check.
type HealthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
}

// Handler serves the bulk send endpoint.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// NewHandler creates a Handler backed by d.
func NewHandler(d *dispatch.Dispatcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{dispatcher: d, logger: logger}
}

// SendEmails handles POST /api/send-emails.
func (h *Handler) SendEmails(c *fiber.Ctx) error {
	req, err := parseRequest(c)
	if err != nil {
		return h.writeError(c, err)
	}

	result, err := h.dispatcher.Dispatch(c.UserContext(), req)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(SendResponse{
		Message:  result.Summary(),
		Progress: Progress{Current: result.SuccessCount, Total: result.Total},
	})
}

// Health handles GET /healthz.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{Status: "ok", Provider: h.dispatcher.Provider().Name()})
}

// writeError maps dispatch errors to status codes.
func (h *Handler) writeError(c *fiber.Ctx, err error) error {
	var verr *recipients.ValidationError
	switch {
	case errors.As(err, &verr):
		h.logger.Info("rejected send request", "invalid", verr.Invalid)
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: msgInvalidAddresses + strings.Join(verr.Invalid, ", "),
		})
	case errors.Is(err, dispatch.ErrInvalidRequest):
		h.logger.Info("rejected send request", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msgInvalidList})
	default:
		h.logger.Error("error sending emails", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: msgSendFailed})
	}
}

// parseRequest reads the multipart form into a dispatch.Request. Attachments
// and the template are read fully into memory.
func parseRequest(c *fiber.Ctx) (*dispatch.Request, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read form: %v", dispatch.ErrInternal, err)
	}

	list, err := parseEmails(form.Value[fieldEmails])
	if err != nil {
		return nil, err
	}

	req := &dispatch.Request{
		Recipients: list,
		Subject:    firstValue(form.Value[fieldSubject]),
		Body:       firstValue(form.Value[fieldMessage]),
	}

	if files := form.File[fieldTemplate]; len(files) > 0 {
		content, err := readFile(files[0])
		if err != nil {
			return nil, err
		}
		tmpl := string(content)
		req.Template = &tmpl
	}

	for _, fh := range form.File[fieldAttachments] {
		att, err := readAttachment(fh)
		if err != nil {
			return nil, err
		}
		req.Attachments = append(req.Attachments, att)
	}

	return req, nil
}

// parseEmails decodes the JSON-encoded recipient array.
func parseEmails(values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: missing %s field", dispatch.ErrInvalidRequest, fieldEmails)
	}
	var list []string
	if err := json.Unmarshal([]byte(values[0]), &list); err != nil {
		return nil, fmt.Errorf("%w: %s is not a JSON array of strings: %v", dispatch.ErrInvalidRequest, fieldEmails, err)
	}
	return list, nil
}

func readAttachment(fh *multipart.FileHeader) (email.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return email.Attachment{}, fmt.Errorf("%w: failed to open attachment %q: %v", dispatch.ErrInternal, fh.Filename, err)
	}
	defer f.Close()
	return dispatch.ReadAttachment(fh.Filename, fh.Header.Get(fiber.HeaderContentType), f)
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %q: %v", dispatch.ErrInternal, fh.Filename, err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %q: %v", dispatch.ErrInternal, fh.Filename, err)
	}
	return content, nil
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// methodNotAllowed answers any other method on the send endpoint.
func methodNotAllowed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAllow, http.MethodPost)
	return c.Status(fiber.StatusMethodNotAllowed).JSON(ErrorResponse{Error: "Method not allowed"})
}
