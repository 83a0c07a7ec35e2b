package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.POP3.Listen != ":2110" {
		t.Errorf("POP3.Listen: got %q, want :2110", cfg.POP3.Listen)
	}
	if cfg.SMTP.Listen != ":2587" {
		t.Errorf("SMTP.Listen: got %q, want :2587", cfg.SMTP.Listen)
	}
	if cfg.SMTP.Hostname != "localhost" {
		t.Errorf("SMTP.Hostname: got %q, want localhost", cfg.SMTP.Hostname)
	}
	if cfg.Webmail.BaseURL != "https://app.openmailbox.org" {
		t.Errorf("Webmail.BaseURL: got %q", cfg.Webmail.BaseURL)
	}
	if cfg.Webmail.MaxList != 100 {
		t.Errorf("Webmail.MaxList: got %d, want 100", cfg.Webmail.MaxList)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level: got %q, want info", cfg.Logging.Level)
	}
	if !cfg.POP3Enabled() || !cfg.SMTPEnabled() {
		t.Error("both listeners should be enabled by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
pop3:
  listen: ":1110"
smtp:
  listen: "no"
  hostname: mail.example.org
webmail:
  base_url: https://webmail.example.org
  max_list: 25
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.POP3.Listen != ":1110" {
		t.Errorf("POP3.Listen: got %q, want :1110", cfg.POP3.Listen)
	}
	if cfg.SMTPEnabled() {
		t.Error("SMTP should be disabled by the \"no\" sentinel")
	}
	if cfg.SMTP.Hostname != "mail.example.org" {
		t.Errorf("SMTP.Hostname: got %q", cfg.SMTP.Hostname)
	}
	if cfg.Webmail.BaseURL != "https://webmail.example.org" {
		t.Errorf("Webmail.BaseURL: got %q", cfg.Webmail.BaseURL)
	}
	if cfg.Webmail.MaxList != 25 {
		t.Errorf("Webmail.MaxList: got %d, want 25", cfg.Webmail.MaxList)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level: got %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POP3_LISTEN", "no")
	t.Setenv("WEBMAIL_BASE_URL", "https://left.example.org")
	t.Setenv("WEBMAIL_MAX_LIST", "7")
	t.Setenv("LOG_LEVEL", "WARN")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.POP3Enabled() {
		t.Error("POP3 should be disabled via POP3_LISTEN=no")
	}
	if cfg.Webmail.BaseURL != "https://left.example.org" {
		t.Errorf("Webmail.BaseURL: got %q", cfg.Webmail.BaseURL)
	}
	if cfg.Webmail.MaxList != 7 {
		t.Errorf("Webmail.MaxList: got %d, want 7", cfg.Webmail.MaxList)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level: got %q, want warn", cfg.Logging.Level)
	}
}

func TestEnvOverrides_InvalidMaxListIgnored(t *testing.T) {
	t.Setenv("WEBMAIL_MAX_LIST", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Webmail.MaxList != 100 {
		t.Errorf("Webmail.MaxList: got %d, want default 100", cfg.Webmail.MaxList)
	}
}
