package handler

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mailroom/internal/mailer"
	"github.com/mailroom/internal/scheduler"
	"github.com/mailroom/internal/store"
	"github.com/mailroom/internal/upload"
)

// Sender dispatches a single email.
type Sender interface {
	Send(recipient, subject, body, attachmentPath string) error
}

// SendHandler handles immediate and scheduled single sends.
type SendHandler struct {
	BaseHandler
	templates      *store.TemplateStore
	sender         Sender
	scheduler      *scheduler.Scheduler
	uploadDir      string
	maxUploadBytes int64
}

func NewSendHandler(logger *slog.Logger, templates *store.TemplateStore, sender Sender, sched *scheduler.Scheduler, uploadDir string, maxUploadBytes int64) *SendHandler {
	return &SendHandler{
		BaseHandler:    BaseHandler{Logger: logger},
		templates:      templates,
		sender:         sender,
		scheduler:      sched,
		uploadDir:      uploadDir,
		maxUploadBytes: maxUploadBytes,
	}
}

// Send processes a single-send form. A schedule_time field defers the send
// through the scheduler; otherwise dispatch happens inline. A named template
// contributes its attachment as a fallback when no upload is supplied.
func (h *SendHandler) Send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.fail(w, r, http.StatusBadRequest, "Form too large or invalid")
		return
	}
	defer r.MultipartForm.RemoveAll()

	recipient := r.FormValue("recipient")
	subject := r.FormValue("subject")
	body := r.FormValue("body")
	if recipient == "" || subject == "" || body == "" {
		h.fail(w, r, http.StatusBadRequest, "Missing required fields")
		return
	}

	templateAttachment := h.resolveTemplateAttachment(r.FormValue("template"))

	var uploadPath string
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
		uploadPath = f.Path
	}

	// explicit upload wins over the template's attachment
	attachment := uploadPath
	if attachment == "" {
		attachment = templateAttachment
	}

	if scheduleTime := r.FormValue("schedule_time"); scheduleTime != "" {
		h.schedule(w, r, recipient, subject, body, attachment, scheduleTime)
		return
	}

	err := h.sender.Send(recipient, subject, body, attachment)

	// the upload was for this request only; template attachments stay
	if uploadPath != "" && uploadPath != templateAttachment {
		if rmErr := os.Remove(uploadPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			h.Logger.Warn("temp attachment cleanup failed", "path", uploadPath, "err", rmErr)
		}
	}

	if err != nil {
		h.sendFailure(w, r, err)
		return
	}

	h.Logger.Info("email sent", "recipient", recipient)
	h.ok(w, r, "Email sent successfully!")
}

func (h *SendHandler) schedule(w http.ResponseWriter, r *http.Request, recipient, subject, body, attachment, scheduleTime string) {
	when, err := parseScheduleTime(scheduleTime)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "Invalid schedule time format")
		return
	}

	// the temp upload is kept on disk; the scheduler reads it at fire time
	id, err := h.scheduler.Schedule(scheduler.Job{
		Recipient:      recipient,
		Subject:        subject,
		Body:           body,
		ScheduledTime:  when,
		AttachmentPath: attachment,
	})
	if err != nil {
		if errors.Is(err, scheduler.ErrPastSchedule) {
			h.fail(w, r, http.StatusBadRequest, "Schedule time must be in the future")
			return
		}
		h.serverErrorResponse(w, r, err)
		return
	}

	h.Logger.Info("email scheduled", "id", id, "recipient", recipient, "at", when)
	h.ok(w, r, fmt.Sprintf("Email scheduled for %s", when.Format("2006-01-02 15:04")))
}

// resolveTemplateAttachment returns the attachment path of a named template
// when the template exists and its file is present on disk. A missing file
// is logged and the send proceeds without it.
func (h *SendHandler) resolveTemplateAttachment(name string) string {
	if name == "" {
		return ""
	}
	tmpl, err := h.templates.Get(name)
	if err != nil {
		h.Logger.Warn("send: unknown template, ignoring", "template", name)
		return ""
	}
	path := h.templates.AttachmentPath(tmpl)
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		h.Logger.Warn("send: template attachment missing", "template", name, "path", path)
		return ""
	}
	return path
}

func (h *SendHandler) sendFailure(w http.ResponseWriter, r *http.Request, err error) {
	var smtpErr *mailer.SMTPError
	switch {
	case errors.Is(err, mailer.ErrInvalidRecipient),
		errors.Is(err, mailer.ErrAuthFailed),
		errors.As(err, &smtpErr):
		h.fail(w, r, http.StatusBadRequest, err.Error())
	default:
		h.logError(r, err)
		h.fail(w, r, http.StatusInternalServerError, err.Error())
	}
}

// parseScheduleTime accepts the datetime-local formats the form submits,
// with or without seconds, interpreted in server-local time.
func parseScheduleTime(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid schedule time %q", value)
}
