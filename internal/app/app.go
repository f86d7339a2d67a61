package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mailroom/internal/bulk"
	"github.com/mailroom/internal/config"
	"github.com/mailroom/internal/mailer"
	"github.com/mailroom/internal/scheduler"
	"github.com/mailroom/internal/store"
)

type App struct {
	config       *config.Config
	logger       *slog.Logger
	templates    *store.TemplateStore
	dispatcher   *mailer.Dispatcher
	scheduler    *scheduler.Scheduler
	orchestrator *bulk.Orchestrator
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg)

	templates, err := store.NewTemplateStore(cfg.TemplatesFile, cfg.AttachmentsDir)
	if err != nil {
		return nil, fmt.Errorf("template store: %w", err)
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	dispatcher, err := mailer.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SenderEmail, cfg.SenderPassword)
	if err != nil {
		return nil, fmt.Errorf("mailer: %w", err)
	}

	return &App{
		config:       cfg,
		logger:       logger,
		templates:    templates,
		dispatcher:   dispatcher,
		scheduler:    scheduler.New(dispatcher, logger),
		orchestrator: bulk.New(dispatcher, templates, logger),
	}, nil
}

func (app *App) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", app.config.Port),
		Handler:     app.routes(),
		IdleTimeout: time.Minute,
		ReadTimeout: 30 * time.Second,
		// no WriteTimeout: bulk progress streams stay open as long as the
		// batch runs
		ErrorLog: slog.NewLogLogger(app.logger.Handler(), slog.LevelError),
	}

	g.Go(func() error {
		app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done() // OS signal or server failure

		app.logger.Info("shutting down server")
		app.scheduler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	app.logger.Info("stopped server")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	slog.SetDefault(logger)
	return logger
}
