package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		SenderEmail:     "sender@example.org",
		SenderPassword:  "app-password",
		MaxUploadSizeMB: 16,
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	c := validConfig()
	c.SenderEmail = ""
	if err := c.Validate(); err == nil {
		t.Error("missing sender email accepted")
	}

	c = validConfig()
	c.SenderPassword = ""
	if err := c.Validate(); err == nil {
		t.Error("missing sender password accepted")
	}

	c = validConfig()
	c.MaxUploadSizeMB = 0
	if err := c.Validate(); err == nil {
		t.Error("zero upload limit accepted")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SENDER_EMAIL", "sender@example.org")
	t.Setenv("SENDER_PASSWORD", "app-password")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.SMTPHost != "smtp.gmail.com" || cfg.SMTPPort != 587 {
		t.Errorf("SMTP defaults = %s:%d", cfg.SMTPHost, cfg.SMTPPort)
	}
	if cfg.RateLimitWindow != time.Minute {
		t.Errorf("RateLimitWindow = %v", cfg.RateLimitWindow)
	}
	if !cfg.IsDevelopment() {
		t.Error("default env is not development")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SENDER_EMAIL", "sender@example.org")
	t.Setenv("SENDER_PASSWORD", "app-password")
	t.Setenv("PORT", "9090")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.SMTPPort != 465 {
		t.Errorf("overrides not applied: port=%s smtp=%d", cfg.Port, cfg.SMTPPort)
	}
	if cfg.RateLimitWindow != 30*time.Second {
		t.Errorf("RateLimitWindow = %v", cfg.RateLimitWindow)
	}
}

func TestLoadRequiresCredentials(t *testing.T) {
	t.Setenv("SENDER_EMAIL", "")
	t.Setenv("SENDER_PASSWORD", "")

	if _, err := Load(); err == nil {
		t.Error("Load succeeded without SMTP credentials")
	}
}

func TestMaxUploadBytes(t *testing.T) {
	c := validConfig()
	if got := c.MaxUploadBytes(); got != 16<<20 {
		t.Errorf("MaxUploadBytes() = %d", got)
	}
}
