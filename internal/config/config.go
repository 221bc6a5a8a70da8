// Package config provides functionality for managing configuration options
// for the application using command-line flags, a config file and
// environment variables.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/datavtar/localfirst/internal/ai"
	"gopkg.in/yaml.v3"
)

// S3Options configures the s3 medium.
type S3Options struct {
	Bucket    string `json:"bucket" yaml:"bucket" toml:"bucket"`
	Region    string `json:"region" yaml:"region" toml:"region"`
	Endpoint  string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	Prefix    string `json:"prefix" yaml:"prefix" toml:"prefix"`
	PathStyle bool   `json:"path_style" yaml:"path_style" toml:"path_style"`
}

// AIOptions configures the external text/vision collaborator.
type AIOptions struct {
	BaseURL  string `json:"base_url" yaml:"base_url" toml:"base_url"`
	TokenURL string `json:"token_url" yaml:"token_url" toml:"token_url"`
	Username string `json:"username" yaml:"username" toml:"username"`
	Password string `json:"password" yaml:"password" toml:"password"`
	APIKey   string `json:"api_key" yaml:"api_key" toml:"api_key"`
	Scope    string `json:"scope" yaml:"scope" toml:"scope"`
	Model    string `json:"model" yaml:"model" toml:"model"`
	// TimeoutRaw is a Go duration string such as "30s".
	TimeoutRaw string        `json:"timeout" yaml:"timeout" toml:"timeout"`
	Timeout    time.Duration `json:"-" yaml:"-" toml:"-"`
}

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"port" yaml:"port" toml:"port"`

	// Medium selects the persistence driver: memory, file, sqlite, postgres, s3 or remote.
	Medium string `json:"medium" yaml:"medium" toml:"medium"`

	// DataDir is the directory used by the file medium.
	DataDir string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`

	// SQLitePath is the database file used by the sqlite medium.
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path" toml:"sqlite_path"`

	// DatabaseDSN holds the PostgreSQL connection string for the postgres medium.
	DatabaseDSN string `json:"database_dsn" yaml:"database_dsn" toml:"database_dsn"`

	// RemoteURL is the base URL of a server used by the remote medium.
	RemoteURL string `json:"remote_url" yaml:"remote_url" toml:"remote_url"`

	S3 S3Options `json:"s3" yaml:"s3" toml:"s3"`
	AI AIOptions `json:"ai" yaml:"ai" toml:"ai"`

	// LogLevel is a zap level name.
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tls_cert" yaml:"tls_cert" toml:"tls_cert"`
	TLSKey  string `json:"tls_key" yaml:"tls_key" toml:"tls_key"`

	// RetentionRaw is how long postgres tombstones are kept, e.g. "720h".
	RetentionRaw string        `json:"tombstone_retention" yaml:"tombstone_retention" toml:"tombstone_retention"`
	Retention    time.Duration `json:"-" yaml:"-" toml:"-"`

	// Config is the path to the config file.
	Config string `json:"-" yaml:"-" toml:"-"`
}

// Default returns the options used when nothing is configured.
func Default() *Options {
	return &Options{
		Port:         "localhost:8080",
		Medium:       "file",
		DataDir:      "data",
		SQLitePath:   "localfirst.db",
		LogLevel:     "info",
		RetentionRaw: "720h",
		AI:           AIOptions{TimeoutRaw: "30s"},
	}
}

// Parse reads configuration from os.Args and the environment and exits the
// process on invalid input.
func Parse() *Options {
	opts, err := Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return opts
}

// Load builds Options from args, then the config file, then environment
// variables; later sources win.
func Load(args []string) (*Options, error) {
	options := Default()

	fs := flag.NewFlagSet("localfirst", flag.ContinueOnError)
	fs.StringVar(&options.Port, "a", options.Port, "run on ip:port server")
	fs.StringVar(&options.Medium, "m", options.Medium, "persistence medium: memory|file|sqlite|postgres|s3|remote")
	fs.StringVar(&options.DataDir, "data", options.DataDir, "data directory for the file medium")
	fs.StringVar(&options.SQLitePath, "sqlite", options.SQLitePath, "sqlite database path")
	fs.StringVar(&options.DatabaseDSN, "d", "", "postgres dsn")
	fs.StringVar(&options.RemoteURL, "remote", "", "remote medium base URL")
	fs.StringVar(&options.TLSCert, "tls-cert", "", "TLS certificate file")
	fs.StringVar(&options.TLSKey, "tls-key", "", "TLS key file")
	fs.StringVar(&options.LogLevel, "log-level", options.LogLevel, "log level")
	fs.StringVar(&options.Config, "config", "config.json", "path to config file")
	fs.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			if err := loadFile(options.Config, options); err != nil {
				return nil, err
			}
		}
	}

	applyEnv(options)

	if err := options.normalize(); err != nil {
		return nil, err
	}
	return options, nil
}

func loadFile(path string, options *Options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal([]byte(expanded), options)
	case ".toml":
		_, err = toml.Decode(expanded, options)
	default:
		err = json.Unmarshal([]byte(expanded), options)
	}
	if err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	return nil
}

func applyEnv(options *Options) {
	set := func(dst *string, name string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	set(&options.Port, "SERVER_ADDRESS")
	set(&options.Medium, "MEDIUM")
	set(&options.DatabaseDSN, "DATABASE_DSN")
	set(&options.RemoteURL, "REMOTE_URL")
	set(&options.S3.Bucket, "S3_BUCKET")
	set(&options.S3.Region, "S3_REGION")
	set(&options.S3.Endpoint, "S3_ENDPOINT")
	set(&options.AI.BaseURL, "AI_BASE_URL")
	set(&options.AI.TokenURL, "AI_TOKEN_URL")
	set(&options.AI.Username, "AI_USERNAME")
	set(&options.AI.Password, "AI_PASSWORD")
	set(&options.AI.APIKey, "AI_API_KEY")
	set(&options.AI.Scope, "AI_SCOPE")
	set(&options.AI.Model, "AI_MODEL")
	set(&options.TLSCert, "TLS_CERT")
	set(&options.TLSKey, "TLS_KEY")
	set(&options.LogLevel, "LOG_LEVEL")
}

func (o *Options) normalize() error {
	o.Medium = strings.ToLower(strings.TrimSpace(o.Medium))
	switch o.Medium {
	case "memory", "file", "sqlite", "postgres", "s3", "remote":
	default:
		return fmt.Errorf("unknown medium %q", o.Medium)
	}

	var err error
	if o.RetentionRaw != "" {
		if o.Retention, err = time.ParseDuration(o.RetentionRaw); err != nil {
			return fmt.Errorf("invalid tombstone_retention: %w", err)
		}
	}
	if o.AI.TimeoutRaw != "" {
		if o.AI.Timeout, err = time.ParseDuration(o.AI.TimeoutRaw); err != nil {
			return fmt.Errorf("invalid ai.timeout: %w", err)
		}
	}
	return nil
}

// AIConfig returns the collaborator settings in the form the ai client takes.
func (o *Options) AIConfig() ai.Config {
	return ai.Config{
		BaseURL:  o.AI.BaseURL,
		TokenURL: o.AI.TokenURL,
		Username: o.AI.Username,
		Password: o.AI.Password,
		APIKey:   o.AI.APIKey,
		Scope:    o.AI.Scope,
		Model:    o.AI.Model,
		Timeout:  o.AI.Timeout,
	}
}
