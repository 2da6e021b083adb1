// Package config provides YAML configuration parsing for keepalive.
//
// This package enables running keepalive as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	tokens_file: np_tokens.txt
//	session_url: https://api.example.com/api/auth/session
//	ping_urls:
//	  - https://nw.example.com/api/network/ping
//	  - https://nw2.example.com/api/network/ping
//	ping_interval: 60s
//	token_delay: 10s
//	mode: sequential
//	status_port: 9090
//	headers:
//	  X-Client: ${CLIENT_NAME:-keepalive}
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Run modes.
const (
	ModeSequential = "sequential"
	ModePool       = "pool"
)

const (
	defaultTokensFile       = "np_tokens.txt"
	defaultPingInterval     = 60 * time.Second
	defaultRequestTimeout   = 10 * time.Second
	defaultMaxRetries       = 3
	defaultBackoffBase      = time.Second
	defaultTokenDelay       = 10 * time.Second
	defaultPoolConcurrency  = 4
	defaultFailureThreshold = 2
	defaultProtocolVersion  = "2.2.7"

	// minPingInterval keeps a typo from hammering the service.
	minPingInterval = time.Second
	maxMaxRetries   = 10
)

// Config is the root configuration structure for keepalive.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// TokensFile is the newline-delimited token file. Defaults to
	// "np_tokens.txt". Supports environment variable substitution.
	TokensFile string `yaml:"tokens_file"`

	// SessionURL is the session-info endpoint.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	SessionURL string `yaml:"session_url"`

	// PingURLs are tried in order on every ping.
	PingURLs []string `yaml:"ping_urls"`

	// PingInterval is the wait between pings. Defaults to 60s.
	PingInterval Duration `yaml:"ping_interval"`

	// RequestTimeout bounds one HTTP attempt. Defaults to 10s.
	RequestTimeout Duration `yaml:"request_timeout"`

	// MaxRetries is the number of attempts per API call. Defaults to 3.
	MaxRetries int `yaml:"max_retries"`

	// BackoffBase is the wait after the first failed attempt. Defaults to 1s.
	BackoffBase Duration `yaml:"backoff_base"`

	// TokenDelay is the pause between tokens in sequential mode.
	// Defaults to 10s; "0s" disables it.
	TokenDelay *Duration `yaml:"token_delay"`

	// Mode is "sequential" (default) or "pool".
	Mode string `yaml:"mode"`

	// Concurrency is the pool size in pool mode. Defaults to 4.
	Concurrency int `yaml:"concurrency"`

	// FailureThreshold escalates a failure streak. Defaults to 2; 0 disables.
	FailureThreshold *int `yaml:"failure_threshold"`

	// ProtocolVersion is sent in ping payloads. Defaults to "2.2.7".
	ProtocolVersion string `yaml:"protocol_version"`

	// Referer overrides the Referer header.
	Referer string `yaml:"referer"`

	// Headers are extra request headers. Values support environment
	// variable substitution.
	Headers map[string]string `yaml:"headers"`

	// MaxPings ends each session after that many pings. 0 means unlimited.
	MaxPings int `yaml:"max_pings"`

	// StatusPort enables the status server. 0 leaves it off.
	StatusPort int `yaml:"status_port"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in tokens_file, session_url, ping_urls
// and header values. Defaults are applied before validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.TokensFile == "" {
		c.TokensFile = defaultTokensFile
	}
	if c.PingInterval == 0 {
		c.PingInterval = Duration(defaultPingInterval)
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = Duration(defaultRequestTimeout)
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = Duration(defaultBackoffBase)
	}
	if c.TokenDelay == nil {
		d := Duration(defaultTokenDelay)
		c.TokenDelay = &d
	}
	if c.Mode == "" {
		c.Mode = ModeSequential
	}
	if c.Mode == ModePool && c.Concurrency == 0 {
		c.Concurrency = defaultPoolConcurrency
	}
	if c.FailureThreshold == nil {
		n := defaultFailureThreshold
		c.FailureThreshold = &n
	}
	if c.ProtocolVersion == "" {
		c.ProtocolVersion = defaultProtocolVersion
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	expanded, err := expandEnvVars(c.TokensFile)
	if err != nil {
		return fmt.Errorf("tokens_file: %w", err)
	}
	c.TokensFile = expanded

	if c.SessionURL == "" {
		return errors.New("session_url is required")
	}
	if c.SessionURL, err = expandURL(c.SessionURL); err != nil {
		return fmt.Errorf("session_url: %w", err)
	}

	if len(c.PingURLs) == 0 {
		return errors.New("at least one ping_url must be defined")
	}
	for i := range c.PingURLs {
		if c.PingURLs[i] == "" {
			return fmt.Errorf("ping_urls[%d]: url is required", i)
		}
		if c.PingURLs[i], err = expandURL(c.PingURLs[i]); err != nil {
			return fmt.Errorf("ping_urls[%d]: %w", i, err)
		}
	}

	for k, v := range c.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		c.Headers[k] = expanded
	}

	if c.PingInterval.Duration() < minPingInterval {
		return fmt.Errorf("ping_interval must be at least %s, got %s", minPingInterval, c.PingInterval.Duration())
	}
	if c.RequestTimeout.Duration() < time.Second {
		return fmt.Errorf("request_timeout must be at least 1s, got %s", c.RequestTimeout.Duration())
	}
	if c.MaxRetries < 1 || c.MaxRetries > maxMaxRetries {
		return fmt.Errorf("max_retries must be between 1 and %d, got %d", maxMaxRetries, c.MaxRetries)
	}
	if c.BackoffBase.Duration() <= 0 {
		return fmt.Errorf("backoff_base must be positive, got %s", c.BackoffBase.Duration())
	}
	if c.TokenDelay.Duration() < 0 {
		return fmt.Errorf("token_delay cannot be negative, got %s", c.TokenDelay.Duration())
	}

	switch c.Mode {
	case ModeSequential:
		if c.Concurrency > 1 {
			return fmt.Errorf("concurrency %d requires mode %q", c.Concurrency, ModePool)
		}
	case ModePool:
		if c.Concurrency < 1 {
			return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
		}
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeSequential, ModePool, c.Mode)
	}

	if *c.FailureThreshold < 0 {
		return fmt.Errorf("failure_threshold cannot be negative, got %d", *c.FailureThreshold)
	}
	if c.MaxPings < 0 {
		return fmt.Errorf("max_pings cannot be negative, got %d", c.MaxPings)
	}
	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return fmt.Errorf("status_port must be between 0 and 65535, got %d", c.StatusPort)
	}

	return nil
}

// expandURL expands environment variables in raw and checks it is an
// absolute http(s) URL.
func expandURL(raw string) (string, error) {
	expanded, err := expandEnvVars(raw)
	if err != nil {
		return "", err
	}

	parsedURL, err := url.Parse(expanded)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return "", errors.New("url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return "", fmt.Errorf("url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return "", errors.New("url must have a host")
	}
	return expanded, nil
}
