package dispatch

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/shineum/bulkmail-lite/internal/email"
)

// sniffLen is the number of bytes http.DetectContentType looks at.
const sniffLen = 512

// ReadAttachment reads an uploaded file fully into memory.
//
// The content type is taken from declared when it is specific, otherwise
// from the file extension, otherwise from the content itself.
func ReadAttachment(filename, declared string, r io.Reader) (email.Attachment, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return email.Attachment{}, fmt.Errorf("%w: failed to read attachment %q: %v", ErrInternal, filename, err)
	}
	return email.Attachment{
		Filename:    filepath.Base(filename),
		ContentType: detectContentType(filename, declared, content),
		Content:     content,
	}, nil
}

func detectContentType(filename, declared string, content []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(filepath.Ext(filename)); byExt != "" {
		return byExt
	}
	return http.DetectContentType(content[:min(len(content), sniffLen)])
}
