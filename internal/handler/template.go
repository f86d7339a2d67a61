package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mailroom/internal/store"
	"github.com/mailroom/internal/upload"
)

// TemplateHandler exposes template CRUD over the template store.
type TemplateHandler struct {
	BaseHandler
	store          *store.TemplateStore
	uploadDir      string
	maxUploadBytes int64
}

func NewTemplateHandler(logger *slog.Logger, s *store.TemplateStore, uploadDir string, maxUploadBytes int64) *TemplateHandler {
	return &TemplateHandler{
		BaseHandler:    BaseHandler{Logger: logger},
		store:          s,
		uploadDir:      uploadDir,
		maxUploadBytes: maxUploadBytes,
	}
}

// List returns all template names.
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := h.writeJSON(w, http.StatusOK, envelope{
		"success":   true,
		"templates": h.store.List(),
	}); err != nil {
		h.logError(r, err)
	}
}

// Get returns one template's content by name.
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tmpl, err := h.store.Get(name)
	if err != nil {
		h.fail(w, r, http.StatusNotFound, "Template not found")
		return
	}
	if err := h.writeJSON(w, http.StatusOK, envelope{
		"success":  true,
		"template": tmpl,
	}); err != nil {
		h.logError(r, err)
	}
}

// Save creates or overwrites a template from a multipart form with an
// optional PDF attachment.
func (h *TemplateHandler) Save(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.fail(w, r, http.StatusBadRequest, "Form too large or invalid")
		return
	}
	defer r.MultipartForm.RemoveAll()

	name := r.FormValue("name")
	subject := r.FormValue("subject")
	body := r.FormValue("body")
	if name == "" || subject == "" || body == "" {
		h.fail(w, r, http.StatusBadRequest, "Missing required fields")
		return
	}

	var att *upload.File
	if fhs := r.MultipartForm.File["attachment"]; len(fhs) > 0 {
		f, err := upload.Save(fhs[0], h.uploadDir)
		if err != nil {
			if errors.Is(err, upload.ErrNotPDF) {
				h.fail(w, r, http.StatusBadRequest, "Only PDF files are allowed")
				return
			}
			h.serverErrorResponse(w, r, err)
			return
		}
		att = f
	}

	if err := h.store.Save(name, subject, body, att); err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	h.Logger.Info("template saved", "name", name, "attachment", att != nil)
	h.ok(w, r, "Template saved successfully")
}

// Update replaces a template's subject and body, leaving its attachment
// untouched.
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := h.readJSON(w, r, &req); err != nil {
		h.fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" || req.Subject == "" || req.Body == "" {
		h.fail(w, r, http.StatusBadRequest, "Missing required fields")
		return
	}

	if err := h.store.Update(req.Name, req.Subject, req.Body); err != nil {
		if errors.Is(err, store.ErrTemplateNotFound) {
			h.fail(w, r, http.StatusNotFound, "Template not found")
			return
		}
		h.serverErrorResponse(w, r, err)
		return
	}

	h.Logger.Info("template updated", "name", req.Name)
	h.ok(w, r, "Template updated successfully")
}

// Delete removes a template and its attachment file. Deleting is idempotent.
func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := h.readJSON(w, r, &req); err != nil {
		h.fail(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		h.fail(w, r, http.StatusBadRequest, "Missing required fields")
		return
	}

	if err := h.store.Delete(req.Name); err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}

	h.Logger.Info("template deleted", "name", req.Name)
	h.ok(w, r, "Template deleted successfully")
}
