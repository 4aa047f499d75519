// Package config defines the keypanel configuration file and its defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the name `config init` writes and viper looks for.
const DefaultFileName = "keypanel.yaml"

// File represents the top-level keypanel configuration file.
type File struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Keys    KeysConfig    `yaml:"keys"`
	MCP     MCPConfig     `yaml:"mcp"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host              string     `yaml:"host"`
	Port              int        `yaml:"port" validate:"min=1,max=65535"`
	MaxBodySize       string     `yaml:"max_body_size" validate:"bytesize"`
	ShutdownTimeout   string     `yaml:"shutdown_timeout" validate:"duration"`
	ValidateRateLimit int        `yaml:"validate_rate_limit" validate:"min=0"` // per minute, 0 = off
	RateLimit         int        `yaml:"rate_limit" validate:"min=0"`          // all of /api, per minute, 0 = off
	Metrics           bool       `yaml:"metrics"`
	CORS              CORSConfig `yaml:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// StorageConfig selects the database that holds apps, keys and settings.
type StorageConfig struct {
	Driver  string `yaml:"driver" validate:"oneof=sqlite postgres mysql"`
	DSN     string `yaml:"dsn" validate:"required_unless=Driver sqlite"`
	DataDir string `yaml:"data_dir"` // sqlite only
}

// AuthConfig controls the optional admin token gate.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  string `yaml:"token_ttl" validate:"duration"`
}

// KeysConfig controls the expired-key janitor.
type KeysConfig struct {
	PruneAfter    string `yaml:"prune_after" validate:"duration"` // "0" disables pruning
	PruneInterval string `yaml:"prune_interval" validate:"duration"`
}

// MCPConfig controls the MCP server started by `keypanel mcp`.
type MCPConfig struct {
	Transport string `yaml:"transport" validate:"oneof=stdio http"`
	Port      int    `yaml:"port" validate:"min=1,max=65535"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns a File pre-filled with sensible defaults.
func Default() *File {
	return &File{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			MaxBodySize:       "1MB",
			ShutdownTimeout:   "30s",
			ValidateRateLimit: 120,
			Metrics:           true,
			CORS: CORSConfig{
				Origins: []string{"*"},
			},
		},
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Auth: AuthConfig{
			TokenTTL: "24h",
		},
		Keys: KeysConfig{
			PruneAfter:    "0",
			PruneInterval: "1h",
		},
		MCP: MCPConfig{
			Transport: "stdio",
			Port:      3001,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFile reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before
// parsing. Fields missing from the file keep their defaults.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to path. It refuses to
// overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	header := "# keypanel configuration\n# Values may reference environment variables as ${VAR}.\n\n"
	return os.WriteFile(path, append([]byte(header), data...), 0600)
}

// Validate checks every field against its validate tag. All violations are
// reported together, named by their dotted config key.
func (f *File) Validate() error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, fieldError(fe))
	}
	return errors.Join(errs...)
}

// FromViper assembles a File from the layered viper settings so that flag
// and env overrides are validated the same way as the file.
func FromViper(v *viper.Viper) *File {
	return &File{
		Server: ServerConfig{
			Host:              v.GetString("server.host"),
			Port:              v.GetInt("server.port"),
			MaxBodySize:       v.GetString("server.max_body_size"),
			ShutdownTimeout:   v.GetString("server.shutdown_timeout"),
			ValidateRateLimit: v.GetInt("server.validate_rate_limit"),
			RateLimit:         v.GetInt("server.rate_limit"),
			Metrics:           v.GetBool("server.metrics"),
			CORS:              CORSConfig{Origins: v.GetStringSlice("server.cors.origins")},
		},
		Storage: StorageConfig{
			Driver:  v.GetString("storage.driver"),
			DSN:     v.GetString("storage.dsn"),
			DataDir: v.GetString("storage.data_dir"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
			TokenTTL:  v.GetString("auth.token_ttl"),
		},
		Keys: KeysConfig{
			PruneAfter:    v.GetString("keys.prune_after"),
			PruneInterval: v.GetString("keys.prune_interval"),
		},
		MCP: MCPConfig{
			Transport: v.GetString("mcp.transport"),
			Port:      v.GetInt("mcp.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
}

// SetDefaults registers every default value with v under the same dotted
// keys the file uses, so flags, env vars and the file all layer over them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.validate_rate_limit", d.Server.ValidateRateLimit)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.metrics", d.Server.Metrics)
	v.SetDefault("server.cors.origins", d.Server.CORS.Origins)
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.dsn", d.Storage.DSN)
	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("keys.prune_after", d.Keys.PruneAfter)
	v.SetDefault("keys.prune_interval", d.Keys.PruneInterval)
	v.SetDefault("mcp.transport", d.MCP.Transport)
	v.SetDefault("mcp.port", d.MCP.Port)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// ParseDuration accepts Go durations plus a whole-day suffix ("30d"). An
// empty string or "0" is zero.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q: negative", s)
	}
	return d, nil
}

// ParseByteSize parses sizes such as "512", "64KB" or "1MB". Units are
// powers of 1024.
func ParseByteSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	mult := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	} {
		if num, ok := strings.CutSuffix(s, unit.suffix); ok {
			s, mult = strings.TrimSpace(num), unit.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}
