// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Server    ServerConfig
	Worker    WorkerConfig
	Media     MediaConfig
	Queue     QueueConfig
	Inbox     InboxConfig
	RateLimit RateLimitConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
	// DataDir is the parent of the default image and database locations.
	DataDir string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// StorageConfig holds content store configuration.
type StorageConfig struct {
	BasePath string
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver       string // sqlite or postgres; selects the SQL dialect
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	ApplySchema  bool
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 3000)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 60s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
	BodyLimit    int64         // Max upload body in bytes (default: 20 MiB)
	CDNBaseURL   string
	CORSOrigins  []string
}

// WorkerConfig sizes the CPU pool used for hashing and metadata extraction.
type WorkerConfig struct {
	Concurrency int
}

// MediaConfig holds metadata extraction configuration.
type MediaConfig struct {
	// FFprobePath is empty when no ffprobe binary is available.
	FFprobePath string
}

// QueueConfig holds background job configuration. An empty RedisAddr
// disables background jobs.
type QueueConfig struct {
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	QueueName       string
	RefreshInterval time.Duration
}

// Enabled reports whether background jobs are configured.
func (q QueueConfig) Enabled() bool {
	return q.RedisAddr != ""
}

// InboxConfig holds watch-folder configuration. An empty Path disables it.
type InboxConfig struct {
	Path        string
	SettleDelay time.Duration
}

// RateLimitConfig holds upload rate limiting configuration.
type RateLimitConfig struct {
	UploadsPerMinute int
	Burst            int
}

// LoadConfig loads configuration from the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("buru", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataDir := fs.String("data-dir", "", "Base directory for default storage locations")
	imageDir := fs.String("image-dir", "", "Content store root")

	dbDriver := fs.String("db-driver", "", "Database driver (sqlite, postgres)")
	dbURL := fs.String("database-url", "", "Database DSN or sqlite file path")

	serverPort := fs.String("port", "", "Server port (default: 3000)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 60s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	cdnBaseURL := fs.String("cdn-base-url", "", "Base URL of served content")

	workers := fs.String("workers", "", "CPU worker pool size (default: number of CPUs)")
	ffprobePath := fs.String("ffprobe-path", "", "Path to ffprobe binary (default: auto-detect)")
	redisAddr := fs.String("redis-addr", "", "Redis address for background jobs (empty disables)")
	inboxPath := fs.String("inbox", "", "Watch folder to archive from (empty disables)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
			DataDir:     getConfigValue(*dataDir, "DATA_DIR", ""),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			BasePath: getConfigValue(*imageDir, "IMAGE_DIR", ""),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(getConfigValue(*dbDriver, "DATABASE_DRIVER", "sqlite")),
			DSN:          getConfigValue(*dbURL, "DATABASE_URL", ""),
			MaxOpenConns: getIntConfigValue("", "DATABASE_MAX_OPEN_CONNS", 4),
			MaxIdleConns: getIntConfigValue("", "DATABASE_MAX_IDLE_CONNS", 2),
			ApplySchema:  getBoolConfigValue("", "DATABASE_APPLY_SCHEMA", true),
		},
		Server: ServerConfig{
			Port:        getConfigValue(*serverPort, "PORT", "3000"),
			BodyLimit:   int64(getIntConfigValue("", "BODY_LIMIT", 20<<20)),
			CDNBaseURL:  getConfigValue(*cdnBaseURL, "CDN_BASE_URL", "http://localhost:3000/files"),
			CORSOrigins: splitList(getConfigValue("", "CORS_ORIGINS", "*")),
		},
		Worker: WorkerConfig{
			Concurrency: getIntConfigValue(*workers, "WORKER_CONCURRENCY", runtime.NumCPU()),
		},
		Media: MediaConfig{
			FFprobePath: getConfigValue(*ffprobePath, "FFPROBE_PATH", ""),
		},
		Queue: QueueConfig{
			RedisAddr:     getConfigValue(*redisAddr, "REDIS_ADDR", ""),
			RedisPassword: getConfigValue("", "REDIS_PASSWORD", ""),
			RedisDB:       getIntConfigValue("", "REDIS_DB", 0),
			QueueName:     getConfigValue("", "QUEUE_NAME", "buru"),
		},
		Inbox: InboxConfig{
			Path: getConfigValue(*inboxPath, "INBOX_PATH", ""),
		},
		RateLimit: RateLimitConfig{
			UploadsPerMinute: getIntConfigValue("", "UPLOAD_RATE_PER_MINUTE", 60),
			Burst:            getIntConfigValue("", "UPLOAD_RATE_BURST", 20),
		},
	}

	// Parse durations.
	durations := []struct {
		flagValue string
		envKey    string
		def       string
		dst       *time.Duration
	}{
		{*readTimeout, "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{*writeTimeout, "SERVER_WRITE_TIMEOUT", "60s", &cfg.Server.WriteTimeout},
		{*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
		{"", "TAG_REFRESH_INTERVAL", "1h", &cfg.Queue.RefreshInterval},
		{"", "INBOX_SETTLE_DELAY", "2s", &cfg.Inbox.SettleDelay},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.def)
		v, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.envKey, raw, err)
		}
		*d.dst = v
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	cfg.resolveFFprobe(*ffprobePath != "" || os.Getenv("FFPROBE_PATH") != "")

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Storage.BasePath == "" {
		return errors.New("image directory cannot be empty after expansion")
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database driver: %s (must be sqlite or postgres)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_URL is required for %s", c.Database.Driver)
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("DATABASE_MAX_OPEN_CONNS must be positive, got %d", c.Database.MaxOpenConns)
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("DATABASE_MAX_IDLE_CONNS cannot be negative, got %d", c.Database.MaxIdleConns)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Server.BodyLimit < 1 {
		return fmt.Errorf("BODY_LIMIT must be positive, got %d", c.Server.BodyLimit)
	}
	if c.RateLimit.UploadsPerMinute < 1 || c.RateLimit.Burst < 1 {
		return errors.New("upload rate and burst must be positive")
	}
	if c.Queue.RefreshInterval < 0 {
		return errors.New("TAG_REFRESH_INTERVAL cannot be negative")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandPaths resolves the data directory and everything defaulting into it.
func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	if c.App.DataDir, err = expandPath(c.App.DataDir, filepath.Join(homeDir, "Buru")); err != nil {
		return fmt.Errorf("invalid data dir: %w", err)
	}
	if c.Storage.BasePath, err = expandPath(c.Storage.BasePath, filepath.Join(c.App.DataDir, "images")); err != nil {
		return fmt.Errorf("invalid image dir: %w", err)
	}
	if c.Inbox.Path != "" {
		if c.Inbox.Path, err = expandPath(c.Inbox.Path, ""); err != nil {
			return fmt.Errorf("invalid inbox path: %w", err)
		}
	}

	// Only sqlite DSNs are file paths.
	if c.Database.Driver == "sqlite" {
		def := filepath.Join(c.App.DataDir, "buru.db")
		if strings.HasPrefix(c.Database.DSN, "file:") {
			return nil
		}
		if c.Database.DSN, err = expandPath(c.Database.DSN, def); err != nil {
			return fmt.Errorf("invalid database path: %w", err)
		}
	}
	return nil
}

// resolveFFprobe looks ffprobe up on PATH unless a path was configured.
func (c *Config) resolveFFprobe(explicit bool) {
	if explicit {
		return
	}
	if p, err := exec.LookPath("ffprobe"); err == nil {
		c.Media.FFprobePath = p
	}
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// splitList splits a comma separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
