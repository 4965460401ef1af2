package config

import (
	"os"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpFile.Close()
	return tmpFile.Name()
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  driver: "sqlite"
  dsn: "test.db"
llm:
  api_url: "https://llm.test/api/v1"
  api_key: "test-key"
  model: "test-model"
  pdf_engine: "mistral-ocr"
  timeout_seconds: 30
worker:
  poll_interval_seconds: 1
  error_backoff_seconds: 2
  lock_file: "/tmp/worker.lock"
auth:
  jwt_secret: "test-secret"
  token_expire_hours: 48
log:
  level: "debug"
  format: "json"
users:
  - username: "testuser"
    password: "testpass"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Database.DSN != "test.db" {
		t.Errorf("Expected dsn test.db, got %s", cfg.Database.DSN)
	}
	if cfg.LLM.Model != "test-model" {
		t.Errorf("Expected model test-model, got %s", cfg.LLM.Model)
	}
	if cfg.LLM.PDFEngine != "mistral-ocr" {
		t.Errorf("Expected pdf engine mistral-ocr, got %s", cfg.LLM.PDFEngine)
	}
	if cfg.Worker.PollIntervalSeconds != 1 {
		t.Errorf("Expected poll interval 1, got %d", cfg.Worker.PollIntervalSeconds)
	}
	if cfg.Auth.TokenExpireHours != 48 {
		t.Errorf("Expected 48 expire hours, got %d", cfg.Auth.TokenExpireHours)
	}
	if len(cfg.Users) != 1 || cfg.Users[0].Username != "testuser" {
		t.Errorf("Expected one testuser, got %+v", cfg.Users)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: "secret"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Expected default driver sqlite, got %s", cfg.Database.Driver)
	}
	if cfg.Worker.PollIntervalSeconds != 5 {
		t.Errorf("Expected default poll interval 5, got %d", cfg.Worker.PollIntervalSeconds)
	}
	if cfg.Worker.ErrorBackoffSeconds != 10 {
		t.Errorf("Expected default error backoff 10, got %d", cfg.Worker.ErrorBackoffSeconds)
	}
	if cfg.LLM.PDFEngine != "pdf-text" {
		t.Errorf("Expected default pdf engine, got %s", cfg.LLM.PDFEngine)
	}
	if cfg.LLM.TimeoutSeconds != 120 {
		t.Errorf("Expected default timeout 120, got %d", cfg.LLM.TimeoutSeconds)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PLAYAPP_LLM_API_KEY", "env-key")
	t.Setenv("PLAYAPP_DATABASE_DSN", "env.db")
	t.Setenv("PLAYAPP_SERVER_PORT", "7070")

	path := writeConfig(t, `
server:
  port: 9090
llm:
  api_key: "file-key"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("Expected env override for api key, got %s", cfg.LLM.APIKey)
	}
	if cfg.Database.DSN != "env.db" {
		t.Errorf("Expected env override for dsn, got %s", cfg.Database.DSN)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Expected env override for port, got %d", cfg.Server.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestFindUser(t *testing.T) {
	cfg := &Config{Users: []User{
		{Username: "alice", Password: "a"},
		{Username: "bob", Password: "b"},
	}}

	if user := cfg.FindUser("bob"); user == nil || user.Password != "b" {
		t.Errorf("Expected to find bob, got %+v", user)
	}
	if user := cfg.FindUser("carol"); user != nil {
		t.Errorf("Expected nil for unknown user, got %+v", user)
	}
}
