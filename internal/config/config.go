package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvEndpoint     = "EDINET_API_ENDPOINT"
	EnvAPIKey       = "EDINET_API_KEY"
	EnvFrom         = "EDINET_FROM"
	EnvTo           = "EDINET_TO"
	EnvOutputRoot   = "EDINET_OUTPUT_ROOT"
	EnvManifest     = "EDINET_MANIFEST"
	EnvRequestDelay = "EDINET_REQUEST_DELAY"
	EnvHTTPTimeout  = "EDINET_HTTP_TIMEOUT"
	EnvDocTypes     = "EDINET_DOC_TYPES"
	EnvDatabaseURL  = "DATABASE_URL"
	EnvPort         = "PORT"
)

// Defaults used when the environment leaves a value unset. The scan window
// covers one Japanese fiscal year.
const (
	DefaultFrom         = "2024-04-01"
	DefaultTo           = "2025-03-31"
	DefaultOutputRoot   = "xbrl-files"
	DefaultManifest     = "documents.json"
	DefaultRequestDelay = 50 * time.Millisecond
	DefaultDocTypes     = "120,140,160"
	DefaultPort         = "8080"
)

// DateLayout is the registry's calendar date format
const DateLayout = "2006-01-02"

// Error reports a missing or malformed configuration value
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s %s", e.Key, e.Reason)
}

// Config is built once at process entry and handed to constructors
type Config struct {
	Endpoint     string
	APIKey       string
	From         time.Time
	To           time.Time
	OutputRoot   string
	ManifestPath string
	RequestDelay time.Duration
	HTTPTimeout  time.Duration
	DocTypes     []string
	DatabaseURL  string
	Port         string
}

// Load reads an optional .env file from the working directory and then
// builds the configuration from the process environment.
func Load() (*Config, error) {
	if err := loadDotenv(); err != nil {
		return nil, err
	}
	return FromEnv(os.Getenv)
}

// LoadOffline is Load for commands that never contact the registry, so the
// credentials may be absent.
func LoadOffline() (*Config, error) {
	if err := loadDotenv(); err != nil {
		return nil, err
	}
	return fromEnv(os.Getenv, false)
}

func loadDotenv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// FromEnv builds the configuration from a lookup function
func FromEnv(getenv func(string) string) (*Config, error) {
	return fromEnv(getenv, true)
}

func fromEnv(getenv func(string) string, requireCredentials bool) (*Config, error) {
	var errs []error

	cfg := &Config{
		Endpoint:     strings.TrimRight(strings.TrimSpace(getenv(EnvEndpoint)), "/"),
		APIKey:       strings.TrimSpace(getenv(EnvAPIKey)),
		OutputRoot:   withDefault(getenv(EnvOutputRoot), DefaultOutputRoot),
		ManifestPath: withDefault(getenv(EnvManifest), DefaultManifest),
		DatabaseURL:  getenv(EnvDatabaseURL),
		Port:         withDefault(getenv(EnvPort), DefaultPort),
		DocTypes:     ParseList(withDefault(getenv(EnvDocTypes), DefaultDocTypes)),
	}

	if requireCredentials {
		if cfg.Endpoint == "" {
			errs = append(errs, &Error{Key: EnvEndpoint, Reason: "is required"})
		}
		if cfg.APIKey == "" {
			errs = append(errs, &Error{Key: EnvAPIKey, Reason: "is required"})
		}
	}

	var err error
	if cfg.From, err = ParseDate(withDefault(getenv(EnvFrom), DefaultFrom)); err != nil {
		errs = append(errs, &Error{Key: EnvFrom, Reason: err.Error()})
	}
	if cfg.To, err = ParseDate(withDefault(getenv(EnvTo), DefaultTo)); err != nil {
		errs = append(errs, &Error{Key: EnvTo, Reason: err.Error()})
	}
	if cfg.RequestDelay, err = parseDuration(getenv(EnvRequestDelay), DefaultRequestDelay); err != nil {
		errs = append(errs, &Error{Key: EnvRequestDelay, Reason: err.Error()})
	}
	if cfg.HTTPTimeout, err = parseDuration(getenv(EnvHTTPTimeout), 0); err != nil {
		errs = append(errs, &Error{Key: EnvHTTPTimeout, Reason: err.Error()})
	}
	if len(cfg.DocTypes) == 0 {
		errs = append(errs, &Error{Key: EnvDocTypes, Reason: "must list at least one code"})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// ParseDate parses a YYYY-MM-DD date in UTC
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("is not a YYYY-MM-DD date: %q", s)
	}
	return t, nil
}

// ParseList splits a comma separated value, dropping blanks
func ParseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("is not a duration: %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative: %q", s)
	}
	return d, nil
}

func withDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
