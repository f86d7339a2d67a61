package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mailroom/internal/upload"
)

// ErrTemplateNotFound is returned by Get and Update for unknown names.
var ErrTemplateNotFound = errors.New("template not found")

// Template is a reusable subject/body pair with an optional PDF attachment.
type Template struct {
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	AttachmentName string `json:"attachment_name,omitempty"`
}

// TemplateStore keeps the template table in memory and persists it to a
// single JSON file after every mutation. Attachment files live in a sibling
// directory keyed by generated filename; the store is the sole writer of
// both.
type TemplateStore struct {
	mu             sync.Mutex
	path           string
	attachmentsDir string
	templates      map[string]Template
	loadErr        error
}

// NewTemplateStore loads the backing file at path. A missing file starts an
// empty table; a corrupt or unreadable file also starts empty but the error
// is logged and kept visible through LoadErr rather than swallowed.
func NewTemplateStore(path, attachmentsDir string) (*TemplateStore, error) {
	if err := os.MkdirAll(attachmentsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create attachments dir: %w", err)
	}

	s := &TemplateStore{
		path:           path,
		attachmentsDir: attachmentsDir,
		templates:      make(map[string]Template),
	}
	s.load()
	return s, nil
}

func (s *TemplateStore) load() {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("template store: no existing templates file", "path", s.path)
		return
	}
	if err != nil {
		s.loadErr = fmt.Errorf("read templates file: %w", err)
		slog.Error("template store: load failed, starting empty", "path", s.path, "err", err)
		return
	}
	if err := json.Unmarshal(data, &s.templates); err != nil {
		s.loadErr = fmt.Errorf("parse templates file: %w", err)
		s.templates = make(map[string]Template)
		slog.Error("template store: parse failed, starting empty", "path", s.path, "err", err)
		return
	}
	slog.Info("template store: loaded", "count", len(s.templates), "path", s.path)
}

// LoadErr reports the startup load failure, if any.
func (s *TemplateStore) LoadErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// List returns all template names, sorted.
func (s *TemplateStore) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the template stored under name.
func (s *TemplateStore) Get(name string) (Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpl, ok := s.templates[name]
	if !ok {
		return Template{}, ErrTemplateNotFound
	}
	return tmpl, nil
}

// Save stores or overwrites a template. att, when non-nil, is a validated
// PDF upload that is moved into the attachments directory under
// "<name>_<original>". Saving without an attachment clears any previous
// reference and removes its file; the reference is set if and only if a
// valid PDF was supplied.
func (s *TemplateStore) Save(name, subject, body string, att *upload.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpl := Template{Subject: subject, Body: body}

	if att != nil {
		filename := name + "_" + att.Name
		dest := filepath.Join(s.attachmentsDir, filename)
		if err := os.Rename(att.Path, dest); err != nil {
			return fmt.Errorf("store attachment: %w", err)
		}
		tmpl.AttachmentName = filename
	}

	if prev, ok := s.templates[name]; ok && prev.AttachmentName != "" && prev.AttachmentName != tmpl.AttachmentName {
		s.removeAttachment(prev.AttachmentName)
	}

	s.templates[name] = tmpl
	return s.persist()
}

// Update replaces subject and body only; the attachment reference is left
// untouched.
func (s *TemplateStore) Update(name, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpl, ok := s.templates[name]
	if !ok {
		return ErrTemplateNotFound
	}
	tmpl.Subject = subject
	tmpl.Body = body
	s.templates[name] = tmpl
	return s.persist()
}

// Delete removes a template and its attachment file. Deleting an unknown
// name or a template whose attachment file is already gone is not an error.
func (s *TemplateStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpl, ok := s.templates[name]
	if !ok {
		return nil
	}
	if tmpl.AttachmentName != "" {
		s.removeAttachment(tmpl.AttachmentName)
	}
	delete(s.templates, name)
	return s.persist()
}

// Resolve returns the sendable content of a stored template along with the
// absolute path of its attachment ("" when it has none).
func (s *TemplateStore) Resolve(name string) (subject, body, attachmentPath string, err error) {
	tmpl, err := s.Get(name)
	if err != nil {
		return "", "", "", err
	}
	return tmpl.Subject, tmpl.Body, s.AttachmentPath(tmpl), nil
}

// AttachmentPath returns the on-disk path of a template's attachment, or ""
// when it has none.
func (s *TemplateStore) AttachmentPath(tmpl Template) string {
	if tmpl.AttachmentName == "" {
		return ""
	}
	return filepath.Join(s.attachmentsDir, tmpl.AttachmentName)
}

func (s *TemplateStore) removeAttachment(filename string) {
	path := filepath.Join(s.attachmentsDir, filename)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("template store: attachment removal failed", "path", path, "err", err)
	}
}

func (s *TemplateStore) persist() error {
	data, err := json.MarshalIndent(s.templates, "", "    ")
	if err != nil {
		return fmt.Errorf("encode templates: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write templates file: %w", err)
	}
	return nil
}
