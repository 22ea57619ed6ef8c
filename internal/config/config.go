// ABOUTME: Configuration loading and parsing for certgate
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// MinAdminSecretLength is the shortest accepted auth.admin_secret.
const MinAdminSecretLength = 16

// Config represents the complete certgate configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" toml:"server"`
	Database     DatabaseConfig     `yaml:"database" toml:"database"`
	Keys         KeysConfig         `yaml:"keys" toml:"keys"`
	Auth         AuthConfig         `yaml:"auth" toml:"auth"`
	Certificates CertificatesConfig `yaml:"certificates" toml:"certificates"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr     string        `yaml:"http_addr" toml:"http_addr"`
	ReadTimeout  time.Duration `yaml:"-" toml:"-"`
	WriteTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ReadTimeoutRaw  string `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeoutRaw string `yaml:"write_timeout" toml:"write_timeout"`
}

// DatabaseConfig holds revocation store configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // sqlite | bbolt
	Path   string `yaml:"path" toml:"path"`
}

// KeysConfig holds authority key pair configuration
type KeysConfig struct {
	Dir       string `yaml:"dir" toml:"dir"`
	Bits      int    `yaml:"bits" toml:"bits"`
	OnCorrupt string `yaml:"on_corrupt" toml:"on_corrupt"` // fail | regenerate
}

// AuthConfig holds the admin gate configuration
type AuthConfig struct {
	AdminSecret string `yaml:"admin_secret" toml:"admin_secret"`
}

// CertificatesConfig holds credential payload labels and lifetime bounds
type CertificatesConfig struct {
	Issuer              string   `yaml:"issuer" toml:"issuer"`
	DefaultLifetimeDays int      `yaml:"default_lifetime_days" toml:"default_lifetime_days"`
	MaxLifetimeDays     int      `yaml:"max_lifetime_days" toml:"max_lifetime_days"`
	Permissions         []string `yaml:"permissions" toml:"permissions"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a Config with every default applied and no admin secret.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, formatFor(path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Format names a config file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Parse decodes, defaults and validates raw config content.
func Parse(data []byte, format Format) (*Config, error) {
	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "localhost:8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(DataDir(), "certgate.db")
	}

	if c.Keys.Dir == "" {
		c.Keys.Dir = filepath.Join(DataDir(), "keys")
	}
	if c.Keys.Bits == 0 {
		c.Keys.Bits = 2048
	}
	if c.Keys.OnCorrupt == "" {
		c.Keys.OnCorrupt = "fail"
	}

	if c.Certificates.Issuer == "" {
		c.Certificates.Issuer = "Joinery Project Manager"
	}
	if c.Certificates.DefaultLifetimeDays == 0 {
		c.Certificates.DefaultLifetimeDays = 365
	}
	if c.Certificates.MaxLifetimeDays == 0 {
		c.Certificates.MaxLifetimeDays = 3650
	}
	if len(c.Certificates.Permissions) == 0 {
		c.Certificates.Permissions = []string{"project_access", "financial_view"}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	switch c.Database.Driver {
	case "sqlite", "bbolt":
	default:
		return fmt.Errorf("database.driver must be sqlite or bbolt, got %q", c.Database.Driver)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Keys.Dir == "" {
		return fmt.Errorf("keys.dir is required")
	}
	if c.Keys.Bits < 2048 {
		return fmt.Errorf("keys.bits must be at least 2048, got %d", c.Keys.Bits)
	}
	switch c.Keys.OnCorrupt {
	case "fail", "regenerate":
	default:
		return fmt.Errorf("keys.on_corrupt must be fail or regenerate, got %q", c.Keys.OnCorrupt)
	}

	if len(c.Auth.AdminSecret) < MinAdminSecretLength {
		return fmt.Errorf("auth.admin_secret must be at least %d characters (set CERTGATE_ADMIN_SECRET)", MinAdminSecretLength)
	}

	if c.Certificates.DefaultLifetimeDays < 1 {
		return fmt.Errorf("certificates.default_lifetime_days must be positive")
	}
	if c.Certificates.MaxLifetimeDays < c.Certificates.DefaultLifetimeDays {
		return fmt.Errorf("certificates.max_lifetime_days (%d) is below default_lifetime_days (%d)",
			c.Certificates.MaxLifetimeDays, c.Certificates.DefaultLifetimeDays)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.ReadTimeoutRaw != "" {
		cfg.Server.ReadTimeout, err = time.ParseDuration(cfg.Server.ReadTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing read_timeout %q: %w", cfg.Server.ReadTimeoutRaw, err)
		}
	}

	if cfg.Server.WriteTimeoutRaw != "" {
		cfg.Server.WriteTimeout, err = time.ParseDuration(cfg.Server.WriteTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing write_timeout %q: %w", cfg.Server.WriteTimeoutRaw, err)
		}
	}

	return nil
}

// Path returns the config file location.
// Priority: CERTGATE_CONFIG env var > XDG_CONFIG_HOME/certgate/certgate.yaml > ~/.config/certgate/certgate.yaml
func Path() string {
	if envPath := os.Getenv("CERTGATE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "certgate.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "certgate", "certgate.yaml")
}

// DataDir returns the directory for the database and key files.
// Priority: XDG_DATA_HOME/certgate > ~/.local/share/certgate
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "certgate")
}
