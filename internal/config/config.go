package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Engine names accepted in endpoint blocks.
const (
	EngineFirebird = "firebird"
	EngineMSSQL    = "mssql"
)

// expandTilde expands ~ or ~/ at the start of a path to the user's home directory
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// Config holds all configuration for the migration tool
type Config struct {
	Source      Endpoint    `yaml:"source"`
	Destination Endpoint    `yaml:"destination"`
	Model       *Endpoint   `yaml:"model,omitempty"`
	Settings    Settings    `yaml:"settings"`
	Slack       SlackConfig `yaml:"slack"`
}

// Endpoint holds connection settings for one database.
type Endpoint struct {
	Type     string `yaml:"type"`     // "firebird" or "mssql"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"` // file path for Firebird, database name for MSSQL
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// MSSQL only
	TrustServerCert bool   `yaml:"trust_server_cert"`
	Encrypt         string `yaml:"encrypt"`           // disable, false, true (default: true)

	// Firebird only
	Charset string `yaml:"charset"` // connection charset (default: NONE, bytes pass through)
}

// SlackConfig holds Slack notification settings
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
	Username   string `yaml:"username"`
	Enabled    bool   `yaml:"enabled"`
}

// Settings holds migration behavior settings.
type Settings struct {
	PageSize         int      `yaml:"page_size"`         // rows fetched per source page
	Workers          int      `yaml:"workers"`           // concurrent table migrations
	RepairMode       string   `yaml:"repair_mode"`       // "fail-fast" or "wait"
	ManageGuard      bool     `yaml:"manage_guard"`
	ClearDestination bool     `yaml:"clear_destination"` // delete destination rows before copying
	ByteFallback     string   `yaml:"byte_fallback"`     // "replace" or "keep-bytes"
	IncludeTables    []string `yaml:"include_tables"`    // only migrate these tables (glob patterns)
	ExcludeTables    []string `yaml:"exclude_tables"`    // skip these tables (glob patterns)
	ReportDir        string   `yaml:"report_dir"`        // HTML report output directory
	DataDir          string   `yaml:"data_dir"`          // run journal directory
	Progress         bool     `yaml:"progress"`          // terminal progress bars
}

// LoadOptions controls configuration loading behavior.
type LoadOptions struct {
	SuppressWarnings bool
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	return LoadWithOptions(path, LoadOptions{})
}

// LoadWithOptions reads configuration from a YAML file with options.
func LoadWithOptions(path string, opts LoadOptions) (*Config, error) {
	// Check file permissions before reading (warns if insecure)
	if warning := checkFilePermissions(path); warning != "" && !opts.SuppressWarnings {
		fmt.Fprint(os.Stderr, warning)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return LoadBytes(data)
}

// LoadBytes reads configuration from YAML bytes.
func LoadBytes(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// DefaultDataDir returns the default data directory for the run journal.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".fb-mssql-migrate")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	if err := os.Chmod(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

func applyEndpointDefaults(e *Endpoint) {
	if e == nil {
		return
	}
	if e.Type == "" {
		e.Type = EngineMSSQL
	}
	if e.Port == 0 {
		switch e.Type {
		case EngineFirebird:
			e.Port = 3050
		default:
			e.Port = 1433
		}
	}
	if e.Encrypt == "" {
		e.Encrypt = "true"
	}
	if e.Charset == "" {
		e.Charset = "NONE"
	}
	if e.Type == EngineFirebird {
		e.Database = expandTilde(e.Database)
	}
}

func (c *Config) applyDefaults() {
	if c.Source.Type == "" {
		c.Source.Type = EngineFirebird
	}
	applyEndpointDefaults(&c.Source)
	applyEndpointDefaults(&c.Destination)
	applyEndpointDefaults(c.Model)

	if c.Settings.PageSize == 0 {
		c.Settings.PageSize = 5000
	}
	if c.Settings.Workers == 0 {
		c.Settings.Workers = 4
	}
	if c.Settings.Workers < 1 {
		c.Settings.Workers = 1
	}
	if c.Settings.RepairMode == "" {
		c.Settings.RepairMode = "fail-fast"
	}
	if c.Settings.ByteFallback == "" {
		c.Settings.ByteFallback = "replace"
	}
	if c.Settings.ReportDir == "" {
		c.Settings.ReportDir = "logs"
	} else {
		c.Settings.ReportDir = expandTilde(c.Settings.ReportDir)
	}
	if c.Settings.DataDir == "" {
		home, _ := os.UserHomeDir()
		c.Settings.DataDir = filepath.Join(home, ".fb-mssql-migrate")
	} else {
		c.Settings.DataDir = expandTilde(c.Settings.DataDir)
	}
}

func validateEndpoint(name string, e *Endpoint) error {
	if e == nil {
		return nil
	}
	switch e.Type {
	case EngineFirebird, EngineMSSQL:
	default:
		return fmt.Errorf("%s.type must be '%s' or '%s', got '%s'", name, EngineFirebird, EngineMSSQL, e.Type)
	}
	if e.Host == "" {
		return fmt.Errorf("%s.host is required", name)
	}
	if e.Database == "" {
		return fmt.Errorf("%s.database is required", name)
	}
	return nil
}

func (c *Config) validate() error {
	if err := validateEndpoint("source", &c.Source); err != nil {
		return err
	}
	if c.Source.Type != EngineFirebird {
		return fmt.Errorf("source.type must be '%s': no other source engine is supported", EngineFirebird)
	}
	if err := validateEndpoint("destination", &c.Destination); err != nil {
		return err
	}
	if err := validateEndpoint("model", c.Model); err != nil {
		return err
	}
	if c.Settings.PageSize < 1 {
		return fmt.Errorf("settings.page_size must be positive, got %d", c.Settings.PageSize)
	}
	switch c.Settings.RepairMode {
	case "fail-fast", "wait":
	default:
		return fmt.Errorf("settings.repair_mode must be 'fail-fast' or 'wait', got '%s'", c.Settings.RepairMode)
	}
	switch c.Settings.ByteFallback {
	case "replace", "keep-bytes":
	default:
		return fmt.Errorf("settings.byte_fallback must be 'replace' or 'keep-bytes', got '%s'", c.Settings.ByteFallback)
	}
	return nil
}

// DSN returns the driver connection string for the endpoint.
func (e *Endpoint) DSN() string {
	if e.Type == EngineFirebird {
		return buildFirebirdDSN(e.Host, e.Port, e.Database, e.User, e.Password, e.Charset)
	}
	return buildMSSQLDSN(e.Host, e.Port, e.Database, e.User, e.Password, e.Encrypt, e.TrustServerCert)
}

// buildFirebirdDSN builds a connection string for github.com/nakagami/firebirdsql:
// user:password@host:port/path_to_db?charset=...
func buildFirebirdDSN(host string, port int, database, user, password, charset string) string {
	dsn := fmt.Sprintf("%s:%s@%s:%d/%s", user, url.QueryEscape(password), host, port, database)
	if charset != "" {
		dsn += "?charset=" + url.QueryEscape(charset)
	}
	return dsn
}

// buildMSSQLDSN builds a connection string for github.com/microsoft/go-mssqldb.
func buildMSSQLDSN(host string, port int, database, user, password, encrypt string, trustServerCert bool) string {
	trustCert := "false"
	if trustServerCert {
		trustCert = "true"
	}
	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s&encrypt=%s&TrustServerCertificate=%s",
		url.QueryEscape(user), url.QueryEscape(password), host, port, url.QueryEscape(database), encrypt, trustCert)
}

// Sanitized returns a copy of the config with sensitive fields redacted
func (c *Config) Sanitized() *Config {
	sanitized := *c // shallow copy

	sanitized.Source.Password = "[REDACTED]"
	sanitized.Destination.Password = "[REDACTED]"
	if c.Model != nil {
		model := *c.Model
		model.Password = "[REDACTED]"
		sanitized.Model = &model
	}
	if sanitized.Slack.WebhookURL != "" {
		sanitized.Slack.WebhookURL = "[REDACTED]"
	}

	return &sanitized
}
