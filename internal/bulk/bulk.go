package bulk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
)

// Mode selects the personalization and reporting rules for a batch.
type Mode int

const (
	// Spreadsheet batches substitute [name] only.
	Spreadsheet Mode = iota
	// QuickAdd batches additionally convert newlines to <br> and prepend a
	// greeting line.
	QuickAdd
)

// Recipient is one entry of a batch, in source order.
type Recipient struct {
	Name  string
	Email string
}

// Status is a per-recipient outcome with a human-readable message.
type Status struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Event is one progress record of a batch stream. Terminal failure events
// (unknown template, empty batch) carry only a Status.
type Event struct {
	Progress float64 `json:"progress,omitempty"`
	Current  int     `json:"current,omitempty"`
	Total    int     `json:"total,omitempty"`
	Status   Status  `json:"status"`
}

// Sender dispatches a single email.
type Sender interface {
	Send(recipient, subject, body, attachmentPath string) error
}

// TemplateSource resolves a stored template into sendable content.
type TemplateSource interface {
	Resolve(name string) (subject, body, attachmentPath string, err error)
}

// Request describes one batch. When TemplateName is set the template's
// subject/body/attachment are used; otherwise Subject and Body apply.
// UploadPath is a shared temporary attachment for the whole batch; it takes
// precedence over the template's attachment and is deleted when the batch
// finishes unless it aliases the template attachment path.
type Request struct {
	Recipients   []Recipient
	TemplateName string
	Subject      string
	Body         string
	UploadPath   string
	Mode         Mode
}

// Orchestrator processes batches sequentially and reports per-recipient
// progress. A batch in progress cannot be cancelled other than through the
// context; it runs to completion in source order.
type Orchestrator struct {
	sender    Sender
	templates TemplateSource
	logger    *slog.Logger
}

func New(sender Sender, templates TemplateSource, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{sender: sender, templates: templates, logger: logger}
}

// Run starts the batch on its own goroutine and returns the event stream.
// The channel is closed when the batch completes or ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, req Request) <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		o.run(ctx, req, ch)
	}()
	return ch
}

func (o *Orchestrator) run(ctx context.Context, req Request, ch chan<- Event) {
	subject, body := req.Subject, req.Body
	attachment := req.UploadPath
	templateAttachment := ""

	if req.TemplateName != "" {
		var err error
		var tmplAtt string
		subject, body, tmplAtt, err = o.templates.Resolve(req.TemplateName)
		if err != nil {
			emit(ctx, ch, Event{Status: Status{Success: false, Message: "Template not found"}})
			return
		}
		templateAttachment = tmplAtt
		if attachment == "" {
			attachment = templateAttachment
		}
	}

	defer o.cleanup(req.UploadPath, templateAttachment)

	total := len(req.Recipients)
	if total == 0 {
		emit(ctx, ch, Event{Status: Status{Success: false, Message: "No recipients found"}})
		return
	}

	for i, r := range req.Recipients {
		ev := Event{
			Progress: float64(i+1) / float64(total) * 100,
			Current:  i + 1,
			Total:    total,
		}

		if r.Email == "" {
			ev.Status = Status{Success: false, Message: fmt.Sprintf("Email to %s: missing email address", label(r, req.Mode))}
		} else {
			subj, bod := Personalize(subject, body, r.Name, req.Mode)
			if err := o.sender.Send(r.Email, subj, bod, attachment); err != nil {
				o.logger.Warn("batch send failed", "recipient", r.Email, "err", err)
				ev.Status = Status{Success: false, Message: fmt.Sprintf("Email to %s: %v", label(r, req.Mode), err)}
			} else {
				ev.Status = Status{Success: true, Message: fmt.Sprintf("Email to %s: Success", label(r, req.Mode))}
			}
		}

		if !emit(ctx, ch, ev) {
			return
		}
	}
}

// cleanup deletes the batch's shared temporary upload. A template's own
// attachment is never deleted here, including when the upload aliases it.
func (o *Orchestrator) cleanup(uploadPath, templateAttachment string) {
	if uploadPath == "" || uploadPath == templateAttachment {
		return
	}
	if err := os.Remove(uploadPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		o.logger.Warn("temp attachment cleanup failed", "path", uploadPath, "err", err)
	}
}

// Personalize substitutes the [name] token in subject and body. QuickAdd
// batches also convert newlines to <br> and prepend "Hello {name},". A
// recipient without a name gets the content verbatim.
func Personalize(subject, body, name string, mode Mode) (string, string) {
	if name == "" {
		return subject, body
	}
	subject = strings.ReplaceAll(subject, "[name]", name)
	body = strings.ReplaceAll(body, "[name]", name)
	if mode == QuickAdd {
		body = strings.ReplaceAll(body, "\n", "<br>")
		body = "Hello " + name + ",<br><br>" + body
	}
	return subject, body
}

// label formats a recipient for status lines: quick-add shows "name (email)",
// the spreadsheet path just the email.
func label(r Recipient, mode Mode) string {
	if mode == QuickAdd && r.Name != "" {
		return fmt.Sprintf("%s (%s)", r.Name, r.Email)
	}
	if r.Email == "" {
		return "unknown"
	}
	return r.Email
}

func emit(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
