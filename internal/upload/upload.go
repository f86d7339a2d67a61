package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotPDF is returned when an uploaded file fails the extension whitelist.
var ErrNotPDF = errors.New("only PDF files are allowed")

// File is an upload written to disk.
type File struct {
	Name string // sanitized original filename
	Path string // on-disk location
}

// Save validates the upload against the PDF whitelist and writes it into dir
// under a sanitized filename. The size limit is enforced earlier at the HTTP
// boundary via http.MaxBytesReader.
func Save(fh *multipart.FileHeader, dir string) (*File, error) {
	if !IsPDF(fh.Filename) {
		return nil, ErrNotPDF
	}

	name := SanitizeFilename(fh.Filename)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload: create dir: %w", err)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("upload: open: %w", err)
	}
	defer src.Close()

	path := filepath.Join(dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("upload: create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("upload: write file: %w", err)
	}

	return &File{Name: name, Path: path}, nil
}

// IsPDF checks the extension whitelist.
func IsPDF(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// SanitizeFilename removes path components and dangerous characters so the
// result is safe to join onto a directory.
func SanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "\x00", "")
	name = strings.TrimLeft(name, ".")
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	if name == "" || name == "_" {
		name = "attachment.pdf"
	}
	return name
}
