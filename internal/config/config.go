// Package config loads the docstore server configuration.
//
// Values are layered: built-in defaults, then the YAML file, then the .env
// file of the data directory, then the process environment. Command line
// flags are applied last by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the data directory.
const FileName = "docstore.yaml"

// Environment variables overriding the configuration.
const (
	EnvListen     = "DOCSTORE_LISTEN"
	EnvLogLevel   = "DOCSTORE_LOG_LEVEL"
	EnvAuthSecret = "DOCSTORE_AUTH_SECRET"
	EnvMetrics    = "DOCSTORE_METRICS"
)

// MinSecretLen is the minimum length of auth.secret.
const MinSecretLen = 32

// Config is the server configuration.
type Config struct {
	Listen          string  `yaml:"listen"`
	DataDir         string  `yaml:"data_dir"`
	LogLevel        string  `yaml:"log_level"`
	IDScheme        string  `yaml:"id_scheme"`
	InitialCapacity int     `yaml:"initial_capacity"`
	Limits          Limits  `yaml:"limits"`
	Auth            Auth    `yaml:"auth"`
	Geo             Geo     `yaml:"geo"`
	History         History `yaml:"history"`
	MetricsAddr     string  `yaml:"metrics_addr"`
	Watch           bool    `yaml:"watch"`
}

// Limits bounds resource usage of clients.
type Limits struct {
	MaxConnections    int           `yaml:"max_connections"`
	MaxRequestBytes   int           `yaml:"max_request_bytes"`
	IOTimeout         time.Duration `yaml:"io_timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Burst             int           `yaml:"burst"`
}

// Auth configures request tokens. Authentication is disabled when Secret is
// empty.
type Auth struct {
	Secret string `yaml:"secret"`
}

// Geo configures connection admission by country.
type Geo struct {
	DB             string   `yaml:"db"`
	AllowCountries []string `yaml:"allow_countries"`
}

// History configures git history of collection files.
type History struct {
	Enabled     bool   `yaml:"enabled"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:          ":8080",
		DataDir:         "./data",
		LogLevel:        "info",
		IDScheme:        "timestamp",
		InitialCapacity: 8,
		Limits: Limits{
			MaxConnections:  100,
			MaxRequestBytes: 1 << 20,
			IOTimeout:       60 * time.Second,
		},
		Watch: true,
	}
}

// Load returns the configuration for dataDir.
//
// path is the YAML file to read; when empty, <dataDir>/docstore.yaml is used
// if present. A missing default file is not an error; a missing explicit one
// is.
func Load(dataDir, path string) (*Config, error) {
	c := Default()
	c.DataDir = dataDir
	explicit := path != ""
	if !explicit {
		path = filepath.Join(dataDir, FileName)
	}
	f, err := os.Open(path) //nolint:gosec // G304: path is operator supplied
	switch {
	case err == nil:
		err = c.decode(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	env, err := readEnv(filepath.Join(c.DataDir, ".env"))
	if err != nil {
		return nil, err
	}
	c.applyEnv(env)
	return c, nil
}

// Parse decodes YAML data on top of the defaults.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := c.decode(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) decode(r io.Reader) error {
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// readEnv returns the variables of the .env file at path merged with the
// process environment, which wins.
func readEnv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		env = map[string]string{}
	}
	for _, k := range []string{EnvListen, EnvLogLevel, EnvAuthSecret, EnvMetrics} {
		if v, ok := os.LookupEnv(k); ok {
			env[k] = v
		}
	}
	return env, nil
}

func (c *Config) applyEnv(env map[string]string) {
	if v, ok := env[EnvListen]; ok {
		c.Listen = v
	}
	if v, ok := env[EnvLogLevel]; ok {
		c.LogLevel = v
	}
	if v, ok := env[EnvAuthSecret]; ok {
		c.Auth.Secret = v
	}
	if v, ok := env[EnvMetrics]; ok {
		c.MetricsAddr = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen is empty"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is empty"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	switch c.IDScheme {
	case "", "timestamp", "ksid":
	default:
		errs = append(errs, fmt.Errorf("unknown id_scheme %q", c.IDScheme))
	}
	if c.InitialCapacity < 0 {
		errs = append(errs, errors.New("initial_capacity must not be negative"))
	}
	if c.Limits.MaxConnections <= 0 {
		errs = append(errs, errors.New("limits.max_connections must be positive"))
	}
	if c.Limits.MaxRequestBytes <= 0 {
		errs = append(errs, errors.New("limits.max_request_bytes must be positive"))
	}
	if c.Limits.IOTimeout < 0 {
		errs = append(errs, errors.New("limits.io_timeout must not be negative"))
	}
	if c.Limits.RequestsPerMinute < 0 || c.Limits.Burst < 0 {
		errs = append(errs, errors.New("limits.requests_per_minute and limits.burst must not be negative"))
	}
	if c.Auth.Secret != "" && len(c.Auth.Secret) < MinSecretLen {
		errs = append(errs, fmt.Errorf("auth.secret must be at least %d bytes", MinSecretLen))
	}
	if len(c.Geo.AllowCountries) != 0 && c.Geo.DB == "" {
		errs = append(errs, errors.New("geo.allow_countries requires geo.db"))
	}
	return errors.Join(errs...)
}
