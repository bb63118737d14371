// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "test-secret"

messaging:
  max_message_length: 4000
  subscriber_buffer: 64
  send_timeout: "5s"

cors:
  allowed_origins:
    - "https://app.vukalink.com"
    - "http://localhost:5173"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Auth.JWTSecret != "test-secret" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "test-secret")
	}
	if cfg.Messaging.MaxMessageLength != 4000 {
		t.Errorf("Messaging.MaxMessageLength = %d, want 4000", cfg.Messaging.MaxMessageLength)
	}
	if cfg.Messaging.SubscriberBuffer != 64 {
		t.Errorf("Messaging.SubscriberBuffer = %d, want 64", cfg.Messaging.SubscriberBuffer)
	}
	if cfg.Messaging.SendTimeout != 5*time.Second {
		t.Errorf("Messaging.SendTimeout = %v, want 5s", cfg.Messaging.SendTimeout)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[0] != "https://app.vukalink.com" {
		t.Errorf("CORS.AllowedOrigins = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "secret-from-env")

	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "${TEST_JWT_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "secret-from-env" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "secret-from-env")
	}
}

func TestLoad_UnsetEnvVarExpandsToEmpty(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "${DEFINITELY_NOT_SET_VAR_12345}"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() should fail validation when the secret expands to empty")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("error = %v, want mention of jwt_secret", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "s"

messaging:
  send_timeout: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() should fail on invalid duration")
	}
	if !strings.Contains(err.Error(), "send_timeout") {
		t.Errorf("error = %v, want mention of send_timeout", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "server: [unclosed")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() should fail on malformed YAML")
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing http_addr",
			cfg:     Config{Database: DatabaseConfig{Path: "./db"}, Auth: AuthConfig{JWTSecret: "s"}},
			wantErr: "server.http_addr",
		},
		{
			name:    "missing database path",
			cfg:     Config{Server: ServerConfig{HTTPAddr: ":8080"}, Auth: AuthConfig{JWTSecret: "s"}},
			wantErr: "database.path",
		},
		{
			name:    "missing jwt secret",
			cfg:     Config{Server: ServerConfig{HTTPAddr: ":8080"}, Database: DatabaseConfig{Path: "./db"}},
			wantErr: "auth.jwt_secret",
		},
		{
			name: "negative max message length",
			cfg: Config{
				Server:    ServerConfig{HTTPAddr: ":8080"},
				Database:  DatabaseConfig{Path: "./db"},
				Auth:      AuthConfig{JWTSecret: "s"},
				Messaging: MessagingConfig{MaxMessageLength: -1},
			},
			wantErr: "max_message_length",
		},
		{
			name: "negative subscriber buffer",
			cfg: Config{
				Server:    ServerConfig{HTTPAddr: ":8080"},
				Database:  DatabaseConfig{Path: "./db"},
				Auth:      AuthConfig{JWTSecret: "s"},
				Messaging: MessagingConfig{SubscriberBuffer: -1},
			},
			wantErr: "subscriber_buffer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should have returned an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_DefaultsAreOptional(t *testing.T) {
	cfg := Config{
		Server:   ServerConfig{HTTPAddr: ":8080"},
		Database: DatabaseConfig{Path: "./db"},
		Auth:     AuthConfig{JWTSecret: "s"},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}
