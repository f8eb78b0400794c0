package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("DATABASE_FILE", "")
	t.Setenv("DATABASE_DSN", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "users.db" {
		t.Fatalf("unexpected database defaults: %+v", cfg.Database)
	}
	if len(cfg.Chat.Domains) != 4 {
		t.Fatalf("expected 4 default domains, got %v", cfg.Chat.Domains)
	}
	if cfg.Chat.QuestionCount != 7 {
		t.Fatalf("question count = %d", cfg.Chat.QuestionCount)
	}
	if got := cfg.FineTune.Command; len(got) != 2 || got[0] != "python" || got[1] != "finetune.py" {
		t.Fatalf("unexpected command %v", got)
	}
	if cfg.Dataset.Pairing != "consecutive" {
		t.Fatalf("pairing = %q", cfg.Dataset.Pairing)
	}
	if cfg.Scheduler.CredentialRefresh != "@every 1m" {
		t.Fatalf("credential refresh = %q", cfg.Scheduler.CredentialRefresh)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: "9090"
database:
  driver: mysql
  dsn: "root:pw@tcp(localhost:3306)/tune"
chat:
  domains: ["ექიმი"]
finetune:
  mode: kafka
  timeout: 30m
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("DATABASE_FILE", "/data/users.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("port = %q", cfg.Server.Port)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Fatalf("api key not taken from OPENAI_API_KEY: %q", cfg.LLM.APIKey)
	}
	if cfg.Database.DSN != "/data/users.db" {
		t.Fatalf("dsn not taken from DATABASE_FILE: %q", cfg.Database.DSN)
	}
	if cfg.Database.Driver != "mysql" {
		t.Fatalf("driver = %q", cfg.Database.Driver)
	}
	if len(cfg.Chat.Domains) != 1 || cfg.Chat.Domains[0] != "ექიმი" {
		t.Fatalf("domains = %v", cfg.Chat.Domains)
	}
	if cfg.FineTune.Mode != "kafka" || cfg.FineTune.Timeout != 30*time.Minute {
		t.Fatalf("finetune = %+v", cfg.FineTune)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
