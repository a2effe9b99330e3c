// Package config loads the server configuration from server.toml and the
// documented environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrInvalidPort           = errors.New("invalid PORT value")
)

// CurrentVersion of the config file.
const CurrentVersion = 1

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version        int            `koanf:"version"`
	Server         Server         `koanf:"server"`
	Debug          Debug          `koanf:"debug"`
	CDN            CDN            `koanf:"cdn"`
	Spaces         Spaces         `koanf:"spaces"`
	PostgreSQL     PostgreSQL     `koanf:"postgresql"`
	Redis          Redis          `koanf:"redis"`
	CircuitBreaker CircuitBreaker `koanf:"circuit_breaker"`
	Retry          Retry          `koanf:"retry"`
	Cache          Cache          `koanf:"cache"`
	Queue          Queue          `koanf:"queue"`
}

// Server contains HTTP listener configuration.
type Server struct {
	// Listen host.
	Host string `koanf:"host"`
	// Listen port.
	Port int `koanf:"port"`
	// TLS certificate path; TLS is enabled when both paths are set.
	CertFile string `koanf:"cert_file"`
	// TLS private key path.
	KeyFile string `koanf:"key_file"`
	// Upstream request timeout in milliseconds.
	RequestTimeout int `koanf:"request_timeout"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Enable pprof debugging.
	EnablePprof bool `koanf:"enable_pprof"`
	// pprof server port.
	PprofPort int `koanf:"pprof_port"`
}

// CDN contains the part-sprite origin configuration.
type CDN struct {
	// Base URL part sprites are fetched from (item-sprite/<ref>.webp).
	BaseURL string `koanf:"base_url"`
}

// Spaces contains the S3-compatible object-store configuration.
type Spaces struct {
	// S3 endpoint host.
	Endpoint string `koanf:"endpoint"`
	// Access key ID.
	AccessKey string `koanf:"access_key"`
	// Secret access key.
	SecretKey string `koanf:"secret_key"`
	// Bucket name.
	Bucket string `koanf:"bucket"`
	// Region, if the provider requires one.
	Region string `koanf:"region"`
	// Use TLS for connections.
	UseSSL bool `koanf:"use_ssl"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains the optional response-cache backend configuration.
type Redis struct {
	// Enable the CDN response cache middleware.
	Enabled bool `koanf:"enabled"`
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// CircuitBreaker contains circuit breaker configuration shared by the CDN
// client and the object-store client.
type CircuitBreaker struct {
	// Maximum requests allowed through while half-open.
	MaxRequests uint32 `koanf:"max_requests"`
	// Closed-state counter reset period in milliseconds.
	Interval int `koanf:"interval"`
	// Open-state duration in milliseconds before probing.
	Timeout int `koanf:"timeout"`
	// Consecutive failures before the breaker opens.
	FailureThreshold uint32 `koanf:"failure_threshold"`
}

// Retry contains retry configuration for CDN fetches.
type Retry struct {
	// Maximum retry attempts.
	MaxRetries uint64 `koanf:"max_retries"`
	// Initial retry delay in milliseconds.
	Delay int `koanf:"delay"`
	// Maximum retry delay in milliseconds.
	MaxDelay int `koanf:"max_delay"`
}

// Cache contains the local cache tier configuration.
type Cache struct {
	// Root directory for the avatars/ and cache/ directories.
	Dir string `koanf:"dir"`
	// Directory holding the body base sheets.
	BasesDir string `koanf:"bases_dir"`
	// Result memory tier entry bound.
	ResultMaxEntries int `koanf:"result_max_entries"`
	// Result memory tier byte budget.
	ResultMaxBytes int64 `koanf:"result_max_bytes"`
	// Result memory TTL in minutes, refreshed on access.
	ResultTTLMinutes int `koanf:"result_ttl_minutes"`
	// Part memory tier entry bound.
	PartMaxEntries int `koanf:"part_max_entries"`
	// Part memory tier byte budget.
	PartMaxBytes int64 `koanf:"part_max_bytes"`
	// Part memory TTL in minutes.
	PartTTLMinutes int `koanf:"part_ttl_minutes"`
	// Concurrent part fetch limit.
	PartFetchLimit int64 `koanf:"part_fetch_limit"`
	// Disk entry age limit in days before the sweeper removes it.
	DiskMaxAgeDays int `koanf:"disk_max_age_days"`
}

// Queue contains render coordinator configuration.
type Queue struct {
	// Queue capacity before submissions are rejected.
	Capacity int `koanf:"capacity"`
	// Concurrent render workers.
	Workers int `koanf:"workers"`
	// Per-job timeout in seconds.
	JobTimeout int `koanf:"job_timeout"`
	// Attempts per job including the first.
	MaxAttempts int `koanf:"max_attempts"`
	// Initial retry delay in seconds.
	RetryDelay int `koanf:"retry_delay"`
}

// LoadConfig loads the configuration from the first server.toml found in the
// search paths, then applies environment overrides. Returns the config along
// with the used config directory.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".avatard",
		homeDir + "/.avatard/config",
		"/etc/avatard/config",
		"/app/config",
		"config",
		".",
	}

	var usedConfigPath string

	for _, path := range configPaths {
		configPath := path + "/server.toml"
		if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
			usedConfigPath = path
			break
		}
	}

	if usedConfigPath == "" {
		return nil, "", fmt.Errorf("%w: server.toml", ErrConfigFileNotFound)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Version == 0 {
		return nil, "", fmt.Errorf("%w: server.toml", ErrConfigVersionMissing)
	}

	if config.Version != CurrentVersion {
		return nil, "", fmt.Errorf("%w: server.toml (got: %d, expected: %d)",
			ErrConfigVersionMismatch, config.Version, CurrentVersion)
	}

	if err := config.applyEnvOverrides(); err != nil {
		return nil, "", err
	}

	return &config, usedConfigPath, nil
}

// applyEnvOverrides maps the documented deployment environment variables
// over the file configuration.
func (c *Config) applyEnvOverrides() error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("%w: %q", ErrInvalidPort, port)
		}

		c.Server.Port = p
	}

	for env, target := range map[string]*string{
		"DO_SPACE_ENDPOINT": &c.CDN.BaseURL,
		"DO_ENDPOINT":       &c.Spaces.Endpoint,
		"DO_SPACE_ID":       &c.Spaces.AccessKey,
		"DO_SPACE_KEY":      &c.Spaces.SecretKey,
		"DO_SPACE_NAME":     &c.Spaces.Bucket,
		"TLS_CERT_FILE":     &c.Server.CertFile,
		"TLS_KEY_FILE":      &c.Server.KeyFile,
	} {
		if v := os.Getenv(env); v != "" {
			*target = v
		}
	}

	return nil
}
