package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalYAML = `
source:
  type: firebird
  host: fb-server
  database: /dados/LOJA.FDB
  user: SYSDBA
  password: masterkey
destination:
  type: mssql
  host: sql-server
  database: LOJA
  user: sa
  password: secret
`

func TestLoadBytesDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("LoadBytes failed: %v", err)
	}

	if cfg.Source.Port != 3050 {
		t.Errorf("source port: expected 3050, got %d", cfg.Source.Port)
	}
	if cfg.Destination.Port != 1433 {
		t.Errorf("destination port: expected 1433, got %d", cfg.Destination.Port)
	}
	if cfg.Source.Charset != "NONE" {
		t.Errorf("source charset: expected NONE, got %q", cfg.Source.Charset)
	}
	if cfg.Destination.Encrypt != "true" {
		t.Errorf("destination encrypt: expected true, got %q", cfg.Destination.Encrypt)
	}
	if cfg.Settings.PageSize != 5000 {
		t.Errorf("page_size: expected 5000, got %d", cfg.Settings.PageSize)
	}
	if cfg.Settings.Workers != 4 {
		t.Errorf("workers: expected 4, got %d", cfg.Settings.Workers)
	}
	if cfg.Settings.RepairMode != "fail-fast" {
		t.Errorf("repair_mode: expected fail-fast, got %q", cfg.Settings.RepairMode)
	}
	if cfg.Settings.ByteFallback != "replace" {
		t.Errorf("byte_fallback: expected replace, got %q", cfg.Settings.ByteFallback)
	}
	if cfg.Model != nil {
		t.Errorf("model: expected nil when absent, got %+v", cfg.Model)
	}
}

func TestLoadBytesEnvExpansion(t *testing.T) {
	os.Setenv("TEST_FB_PASSWORD", "env-masterkey")
	defer os.Unsetenv("TEST_FB_PASSWORD")

	yaml := strings.Replace(minimalYAML, "password: masterkey", "password: ${TEST_FB_PASSWORD}", 1)
	cfg, err := LoadBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("LoadBytes failed: %v", err)
	}
	if cfg.Source.Password != "env-masterkey" {
		t.Errorf("expected env-expanded password, got %q", cfg.Source.Password)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s string) string
		wantErr string
	}{
		{
			name:    "missing destination host",
			mutate:  func(s string) string { return strings.Replace(s, "host: sql-server", "host: \"\"", 1) },
			wantErr: "destination.host is required",
		},
		{
			name:    "missing source database",
			mutate:  func(s string) string { return strings.Replace(s, "database: /dados/LOJA.FDB", "database: \"\"", 1) },
			wantErr: "source.database is required",
		},
		{
			name:    "unknown engine",
			mutate:  func(s string) string { return strings.Replace(s, "type: mssql", "type: oracle", 1) },
			wantErr: "destination.type must be",
		},
		{
			name:    "non-firebird source",
			mutate:  func(s string) string { return strings.Replace(s, "type: firebird", "type: mssql", 1) },
			wantErr: "source.type must be 'firebird'",
		},
		{
			name:    "bad repair mode",
			mutate:  func(s string) string { return s + "\nsettings:\n  repair_mode: retry\n" },
			wantErr: "settings.repair_mode",
		},
		{
			name:    "bad byte fallback",
			mutate:  func(s string) string { return s + "\nsettings:\n  byte_fallback: panic\n" },
			wantErr: "settings.byte_fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes([]byte(tt.mutate(minimalYAML)))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestFirebirdDSN(t *testing.T) {
	e := &Endpoint{
		Type:     EngineFirebird,
		Host:     "fb-server",
		Port:     3050,
		Database: "/dados/LOJA.FDB",
		User:     "SYSDBA",
		Password: "master@key",
		Charset:  "NONE",
	}
	dsn := e.DSN()
	if !strings.HasPrefix(dsn, "SYSDBA:master%40key@fb-server:3050//dados/LOJA.FDB") {
		t.Errorf("unexpected firebird DSN: %q", dsn)
	}
	if !strings.Contains(dsn, "charset=NONE") {
		t.Errorf("firebird DSN missing charset: %q", dsn)
	}
}

func TestMSSQLDSNURLEncoding(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		password string
		database string
		wantUser string
		wantPass string
		wantDB   string
	}{
		{
			name:     "plain credentials",
			user:     "sa",
			password: "secret",
			database: "LOJA",
			wantUser: "sa",
			wantPass: "secret",
			wantDB:   "LOJA",
		},
		{
			name:     "password with @",
			user:     "sa",
			password: "pass@word",
			database: "LOJA",
			wantUser: "sa",
			wantPass: "pass%40word",
			wantDB:   "LOJA",
		},
		{
			name:     "password with colon and slash",
			user:     "sa",
			password: "pa:ss/word",
			database: "LOJA",
			wantUser: "sa",
			wantPass: "pa%3Ass%2Fword",
			wantDB:   "LOJA",
		},
		{
			name:     "database with spaces",
			user:     "sa",
			password: "secret",
			database: "my db",
			wantUser: "sa",
			wantPass: "secret",
			wantDB:   "my+db", // QueryEscape uses + for spaces
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Endpoint{
				Type:     EngineMSSQL,
				Host:     "localhost",
				Port:     1433,
				Database: tt.database,
				User:     tt.user,
				Password: tt.password,
				Encrypt:  "true",
			}
			dsn := e.DSN()

			if !strings.Contains(dsn, tt.wantUser+":") {
				t.Errorf("MSSQL DSN missing encoded user %q in %q", tt.wantUser, dsn)
			}
			if !strings.Contains(dsn, ":"+tt.wantPass+"@") {
				t.Errorf("MSSQL DSN missing encoded password %q in %q", tt.wantPass, dsn)
			}
			if !strings.Contains(dsn, "database="+tt.wantDB) {
				t.Errorf("MSSQL DSN missing encoded database %q in %q", tt.wantDB, dsn)
			}
		})
	}
}

func TestSanitized(t *testing.T) {
	yaml := minimalYAML + `
model:
  type: mssql
  host: sql-server
  database: MODELO
  user: sa
  password: model-secret
slack:
  enabled: true
  webhook_url: https://hooks.slack.com/services/T/B/X
`
	cfg, err := LoadBytes([]byte(yaml))
	if err != nil {
		t.Fatalf("LoadBytes failed: %v", err)
	}

	s := cfg.Sanitized()
	if s.Source.Password != "[REDACTED]" || s.Destination.Password != "[REDACTED]" {
		t.Errorf("endpoint passwords not redacted: %q / %q", s.Source.Password, s.Destination.Password)
	}
	if s.Model.Password != "[REDACTED]" {
		t.Errorf("model password not redacted: %q", s.Model.Password)
	}
	if s.Slack.WebhookURL != "[REDACTED]" {
		t.Errorf("webhook not redacted: %q", s.Slack.WebhookURL)
	}

	// Originals untouched
	if cfg.Source.Password != "masterkey" || cfg.Model.Password != "model-secret" {
		t.Errorf("Sanitized mutated original config")
	}
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot get home directory")
	}
	result := expandTilde("~/some/path")
	expected := filepath.Join(home, "some/path")
	if result != expected {
		t.Errorf("expandTilde: expected %q, got %q", expected, result)
	}
	if got := expandTilde("/abs/path"); got != "/abs/path" {
		t.Errorf("expandTilde mangled absolute path: %q", got)
	}
}
