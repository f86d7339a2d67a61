package handler

import (
	"html/template"
	"log/slog"
	"net/http"
)

// PageHandler renders the embedded form pages.
type PageHandler struct {
	BaseHandler
	templates *template.Template
}

func NewPageHandler(logger *slog.Logger, tmpl *template.Template) *PageHandler {
	return &PageHandler{BaseHandler: BaseHandler{Logger: logger}, templates: tmpl}
}

// Page returns a handler rendering the named template.
func (h *PageHandler) Page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.templates.ExecuteTemplate(w, name, nil); err != nil {
			h.Logger.Error("page render failed", "page", name, "err", err)
		}
	}
}
