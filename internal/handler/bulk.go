package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mailroom/internal/bulk"
	"github.com/mailroom/internal/sheet"
	"github.com/mailroom/internal/upload"
)

// BulkHandler streams per-recipient progress for spreadsheet and quick-add
// batches as newline-delimited JSON.
type BulkHandler struct {
	BaseHandler
	orchestrator   *bulk.Orchestrator
	uploadDir      string
	maxUploadBytes int64
}

func NewBulkHandler(logger *slog.Logger, o *bulk.Orchestrator, uploadDir string, maxUploadBytes int64) *BulkHandler {
	return &BulkHandler{
		BaseHandler:    BaseHandler{Logger: logger},
		orchestrator:   o,
		uploadDir:      uploadDir,
		maxUploadBytes: maxUploadBytes,
	}
}

// SendBulk mails every row of an uploaded spreadsheet with a stored template.
func (h *BulkHandler) SendBulk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.fail(w, r, http.StatusBadRequest, "Form too large or invalid")
		return
	}
	defer r.MultipartForm.RemoveAll()

	templateName := r.FormValue("template")
	if templateName == "" {
		h.fail(w, r, http.StatusBadRequest, "Missing template")
		return
	}

	fhs := r.MultipartForm.File["excelFile"]
	if len(fhs) == 0 {
		h.fail(w, r, http.StatusBadRequest, "Missing spreadsheet file")
		return
	}
	f, err := fhs[0].Open()
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	defer f.Close()

	rows, err := sheet.Parse(f, fhs[0].Filename)
	if err != nil {
		h.Logger.Warn("bulk: spreadsheet rejected", "file", fhs[0].Filename, "err", err)
		h.fail(w, r, http.StatusBadRequest, "Error processing bulk emails: "+err.Error())
		return
	}

	uploadPath, ok := h.saveAttachment(w, r)
	if !ok {
		return
	}

	recipients := make([]bulk.Recipient, len(rows))
	for i, row := range rows {
		recipients[i] = bulk.Recipient{Name: row.Name, Email: row.Email}
	}

	h.Logger.Info("bulk send started", "template", templateName, "recipients", len(recipients))
	h.stream(w, r, bulk.Request{
		Recipients:   recipients,
		TemplateName: templateName,
		UploadPath:   uploadPath,
		Mode:         bulk.Spreadsheet,
	})
}

// SendQuickAdd mails a manually entered recipient list with either custom
// content or a stored template.
func (h *BulkHandler) SendQuickAdd(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.fail(w, r, http.StatusBadRequest, "Form too large or invalid")
		return
	}
	defer r.MultipartForm.RemoveAll()

	recipients, err := ParseRecipients(r.MultipartForm.Value)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err.Error())
		return
	}

	req := bulk.Request{Recipients: recipients, Mode: bulk.QuickAdd}

	contentType := r.FormValue("contentType")
	if contentType == "" {
		contentType = "custom"
	}
	if contentType == "custom" {
		req.Subject = r.FormValue("subject")
		req.Body = r.FormValue("body")
	} else {
		req.TemplateName = r.FormValue("template")
		if req.TemplateName == "" {
			h.fail(w, r, http.StatusBadRequest, "Missing template")
			return
		}
	}

	uploadPath, ok := h.saveAttachment(w, r)
	if !ok {
		return
	}
	req.UploadPath = uploadPath

	h.Logger.Info("quick-add send started", "contentType", contentType, "recipients", len(recipients))
	h.stream(w, r, req)
}

// saveAttachment stores the optional shared batch attachment. The second
// return value is false when a response has already been written.
func (h *BulkHandler) saveAttachment(w http.ResponseWriter, r *http.Request) (string, bool) {
	fhs := r.MultipartForm.File["attachment"]
	if len(fhs) == 0 {
		return "", true
	}
	f, err := upload.Save(fhs[0], h.uploadDir)
	if err != nil {
		if errors.Is(err, upload.ErrNotPDF) {
			h.fail(w, r, http.StatusBadRequest, "Only PDF files are allowed")
		} else {
			h.serverErrorResponse(w, r, err)
		}
		return "", false
	}
	return f.Path, true
}

// stream adapts the orchestrator's event channel into chunked
// newline-delimited JSON, flushing after every event so the client observes
// progress as each recipient completes.
func (h *BulkHandler) stream(w http.ResponseWriter, r *http.Request, req bulk.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, canFlush := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for ev := range h.orchestrator.Run(r.Context(), req) {
		if err := enc.Encode(ev); err != nil {
			h.Logger.Warn("progress write failed, client gone", "err", err)
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}
