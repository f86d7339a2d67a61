package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mailroom/internal/handler"
	"github.com/mailroom/internal/middleware"
	"github.com/mailroom/internal/web"
)

func (app *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)

	maxUpload := app.config.MaxUploadBytes()

	// Pages
	pages := handler.NewPageHandler(app.logger, web.Templates)
	r.Get("/", pages.Page("index.html"))
	r.Get("/email-form", pages.Page("email_form.html"))
	r.Get("/manage-templates", pages.Page("manage_templates.html"))
	r.Get("/bulk-email", pages.Page("bulk_email.html"))
	r.Get("/scheduled-emails", pages.Page("scheduled_emails.html"))
	r.Get("/quick-add", pages.Page("quick_add.html"))

	// Health check
	r.Get("/api/health", handler.Health(app.templates))

	// Single send: throttled to one immediate/scheduled request per window
	// per source; bulk and cancellation paths are exempt.
	sendHandler := handler.NewSendHandler(app.logger, app.templates, app.dispatcher, app.scheduler, app.config.UploadDir, maxUpload)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Throttle(app.config.RateLimitWindow))
		r.Post("/send-email", sendHandler.Send)
	})

	// Templates
	templateHandler := handler.NewTemplateHandler(app.logger, app.templates, app.config.UploadDir, maxUpload)
	r.Get("/get-templates", templateHandler.List)
	r.Get("/get-template/{name}", templateHandler.Get)
	r.Post("/save-template", templateHandler.Save)
	r.Post("/update-template", templateHandler.Update)
	r.Post("/delete-template", templateHandler.Delete)

	// Bulk sends with streamed progress
	bulkHandler := handler.NewBulkHandler(app.logger, app.orchestrator, app.config.UploadDir, maxUpload)
	r.Post("/send-bulk-email", bulkHandler.SendBulk)
	r.Post("/send-quick-add-emails", bulkHandler.SendQuickAdd)

	// Scheduled sends
	scheduleHandler := handler.NewScheduleHandler(app.logger, app.scheduler)
	r.Get("/get-scheduled-emails", scheduleHandler.List)
	r.Post("/cancel-scheduled-email/{id}", scheduleHandler.Cancel)

	return r
}
