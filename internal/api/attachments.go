package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

const maxAttachmentBytes = 20 << 20

// extractAttachments pulls the plain text out of uploaded PDF attachments,
// in upload order, each prefixed with its filename.
func extractAttachments(files []*multipart.FileHeader) (string, error) {
	var parts []string
	for _, fh := range files {
		if !strings.EqualFold(filepath.Ext(fh.Filename), ".pdf") {
			return "", fmt.Errorf("unsupported attachment %s: only PDF is accepted", fh.Filename)
		}
		if fh.Size > maxAttachmentBytes {
			return "", fmt.Errorf("attachment %s too large", fh.Filename)
		}

		text, err := pdfAttachmentText(fh)
		if err != nil {
			return "", fmt.Errorf("attachment %s: %w", fh.Filename, err)
		}
		if text != "" {
			parts = append(parts, fmt.Sprintf("Attachment %s:\n%s", fh.Filename, text))
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// pdfAttachmentText spools the upload to a temp file (the PDF reader needs
// random access) and extracts its plain text.
func pdfAttachmentText(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("opening upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "murmur-attachment-*.pdf")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, src); err != nil {
		return "", fmt.Errorf("spooling upload: %w", err)
	}

	f, reader, err := pdf.Open(tmp.Name())
	if err != nil {
		return "", fmt.Errorf("parsing pdf: %w", err)
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	var b strings.Builder
	if _, err := io.Copy(&b, plain); err != nil {
		return "", fmt.Errorf("reading text: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}
