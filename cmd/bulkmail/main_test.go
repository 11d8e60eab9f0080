package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliResult struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) cliResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	base := []string{"-env-file", filepath.Join(t.TempDir(), "missing.env")}
	code := run(context.Background(), append(base, args...), &stdout, &stderr)
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// fakeServer answers every send with the given status and body.
func fakeServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRun_Success(t *testing.T) {
	srv, calls := fakeServer(t, http.StatusOK, `{"message":"Successfully sent 2 out of 2 emails","progress":{"current":2,"total":2}}`)

	res := runCLI(t,
		"-server", srv.URL,
		"-to", "a@x.com, b@y.com",
		"-subject", "Hi",
		"-message", "Hello",
		"-template", writeFile(t, "news.html", "<p>{{message}}</p>"),
		"-attach", writeFile(t, "a.txt", "A"),
		"-attach", writeFile(t, "b.txt", "B"),
	)

	assert.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Template: news.html")
	assert.Contains(t, res.stdout, "Attachments: a.txt, b.txt")
	assert.Contains(t, res.stdout, "Sending emails...")
	assert.Contains(t, res.stdout, "2 out of 2 emails sent successfully!")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRun_ImportFile(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		got = append(got, r.FormValue("emails"))
		io.WriteString(w, `{"message":"ok","progress":{"current":3,"total":3}}`)
	}))
	defer srv.Close()

	res := runCLI(t,
		"-server", srv.URL,
		"-import", writeFile(t, "list.csv", "a@x.com\nb@y.com,c@z.com\n\n"),
		"-message", "m",
	)

	assert.Equal(t, 0, res.code, res.stderr)
	require.Len(t, got, 1)
	assert.Equal(t, `["a@x.com","b@y.com","c@z.com"]`, got[0])
}

func TestRun_InvalidRecipients(t *testing.T) {
	srv, calls := fakeServer(t, http.StatusOK, `{}`)

	res := runCLI(t, "-server", srv.URL, "-to", "a@x.com, not-an-email, b@y.com")

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Invalid email(s): not-an-email")
	assert.NotContains(t, res.stdout, "Sending emails...")
	assert.Zero(t, calls.Load())
}

func TestRun_InvalidImportedRecipientsSkipSendingState(t *testing.T) {
	srv, calls := fakeServer(t, http.StatusOK, `{}`)

	res := runCLI(t,
		"-server", srv.URL,
		"-import", writeFile(t, "list.txt", "a@x.com\nbroken@\n"),
		"-message", "m",
	)

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Invalid email(s): broken@")
	assert.Empty(t, res.stdout)
	assert.Zero(t, calls.Load())
}

func TestRun_NoRecipients(t *testing.T) {
	srv, calls := fakeServer(t, http.StatusOK, `{}`)

	res := runCLI(t, "-server", srv.URL, "-message", "m")

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "no recipients")
	assert.Zero(t, calls.Load())
}

func TestRun_ServerFailure(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusInternalServerError, `{"error":"Failed to send emails"}`)

	res := runCLI(t, "-server", srv.URL, "-to", "a@x.com")

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Failed to send emails. Please try again.")
}

func TestRun_Preview(t *testing.T) {
	srv, calls := fakeServer(t, http.StatusOK, `{}`)
	out := filepath.Join(t.TempDir(), "preview.html")

	res := runCLI(t,
		"-server", srv.URL,
		"-to", "a@x.com",
		"-message", "Big news",
		"-template", writeFile(t, "t.html", "<h1>{{message}}</h1>{{message}}"),
		"-preview", out,
	)

	assert.Equal(t, 0, res.code, res.stderr)
	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Big news</h1>Big news", string(content))
	assert.Zero(t, calls.Load())
}

func TestRun_PreviewRequiresTemplate(t *testing.T) {
	res := runCLI(t, "-server", "http://unused", "-preview", filepath.Join(t.TempDir(), "p.html"))

	assert.Equal(t, 1, res.code)
	assert.True(t, strings.Contains(res.stderr, "-preview requires -template"))
}

func TestRun_MissingAttachment(t *testing.T) {
	res := runCLI(t, "-server", "http://unused", "-to", "a@x.com", "-attach", "/nonexistent/file.pdf")

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "failed to read attachment")
}

func TestRun_BadFlag(t *testing.T) {
	res := runCLI(t, "-no-such-flag")
	assert.Equal(t, 2, res.code)
}

func TestRun_SavedMessage(t *testing.T) {
	type received struct {
		emails, subject, message, template string
		attachments                        []string
	}
	var got received
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		got.emails = r.FormValue("emails")
		got.subject = r.FormValue("subject")
		got.message = r.FormValue("message")
		if fhs := r.MultipartForm.File["emailTemplate"]; len(fhs) == 1 {
			got.template = fhs[0].Filename
		}
		for _, fh := range r.MultipartForm.File["attachments"] {
			got.attachments = append(got.attachments, fh.Filename)
		}
		io.WriteString(w, `{"message":"ok","progress":{"current":2,"total":2}}`)
	}))
	defer srv.Close()

	saved := writeFile(t, "launch.eml", strings.Join([]string{
		"To: a@x.com",
		"Cc: b@y.com",
		"Subject: Launch day",
		"Content-Type: multipart/mixed; boundary=b1",
		"",
		"--b1",
		"Content-Type: multipart/alternative; boundary=b2",
		"",
		"--b2",
		"Content-Type: text/plain",
		"",
		"We are live",
		"--b2",
		"Content-Type: text/html",
		"",
		"<h1>{{message}}</h1>",
		"--b2--",
		"--b1",
		"Content-Type: text/plain; name=\"notes.txt\"",
		"Content-Disposition: attachment; filename=\"notes.txt\"",
		"",
		"notes",
		"--b1--",
	}, "\r\n"))

	res := runCLI(t, "-server", srv.URL, "-eml", saved, "-subject", "Override")

	assert.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, `["a@x.com","b@y.com"]`, got.emails)
	assert.Equal(t, "Override", got.subject)
	assert.Equal(t, "We are live", got.message)
	assert.Equal(t, "launch.html", got.template)
	assert.Equal(t, []string{"notes.txt"}, got.attachments)
}
