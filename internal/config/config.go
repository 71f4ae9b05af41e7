// ABOUTME: Configuration loading with storage backend selection
// ABOUTME: Reads HCL files and SYNDICATE_* env vars via aconfig, validates, and opens storage

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfighcl"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/harper/syndicate/internal/storage"
	"github.com/harper/syndicate/internal/timeutil"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "SYNDICATE"

// Config stores syndicate configuration.
type Config struct {
	// Backend selects the storage backend: "sqlite" (default) or "postgres".
	Backend string `hcl:"backend" env:"BACKEND" default:"sqlite" validate:"oneof=sqlite postgres"`

	// DataDir is the root directory for the SQLite database and registry.
	// Supports ~ expansion. Defaults to ~/.local/share/syndicate.
	DataDir string `hcl:"data_dir" env:"DATA_DIR"`

	// DatabaseDSN is the Postgres connection string.
	DatabaseDSN string `hcl:"database_dsn" env:"DATABASE_DSN" validate:"required_if=Backend postgres"`

	// FeedsFile is the feed registry (.yaml or .opml). Defaults to DataDir/feeds.yaml.
	FeedsFile string `hcl:"feeds_file" env:"FEEDS_FILE"`

	// FullContent selects the full item content for bodies instead of the excerpt.
	FullContent bool `hcl:"full_content" env:"FULL_CONTENT"`

	PollInterval   time.Duration `hcl:"poll_interval" env:"POLL_INTERVAL" default:"1h" validate:"gt=0"`
	SweepInterval  time.Duration `hcl:"sweep_interval" env:"SWEEP_INTERVAL" default:"24h" validate:"gt=0"`
	Retention      string        `hcl:"retention" env:"RETENTION" default:"30d"`
	MaxConcurrency int           `hcl:"max_concurrency" env:"MAX_CONCURRENCY" default:"4" validate:"min=1,max=64"`

	// RedisURL enables the shared poll lease when several daemons run.
	RedisURL string        `hcl:"redis_url" env:"REDIS_URL"`
	LeaseTTL time.Duration `hcl:"lease_ttl" env:"LEASE_TTL" default:"10m" validate:"gt=0"`

	HTTPTimeout time.Duration `hcl:"http_timeout" env:"HTTP_TIMEOUT" default:"30s" validate:"gt=0"`
	HTTPRetries int           `hcl:"http_retries" env:"HTTP_RETRIES" default:"2" validate:"min=0,max=10"`

	ListenAddr string `hcl:"listen_addr" env:"LISTEN_ADDR" default:"127.0.0.1:8080"`

	LogLevel  string `hcl:"log_level" env:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error disabled"`
	LogOutput string `hcl:"log_output" env:"LOG_OUTPUT" default:"stderr"`
	LogPretty bool   `hcl:"log_pretty" env:"LOG_PRETTY"`
}

// GetBackend returns the configured backend, defaulting to "sqlite".
func (c *Config) GetBackend() string {
	if c.Backend == "" {
		return "sqlite"
	}
	return c.Backend
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return defaultDataDir()
	}
	return ExpandPath(c.DataDir)
}

// GetFeedsFile returns the registry path, defaulting to feeds.yaml in the data directory.
func (c *Config) GetFeedsFile() string {
	if c.FeedsFile == "" {
		return filepath.Join(c.GetDataDir(), DefaultFeedsFilename)
	}
	return ExpandPath(c.FeedsFile)
}

// GetRetention parses the configured expiry retention window.
func (c *Config) GetRetention() (time.Duration, error) {
	return timeutil.ParseRetention(c.Retention)
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
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

// OpenStorage creates a Store implementation based on the configured backend.
func (c *Config) OpenStorage(ctx context.Context) (storage.Store, error) {
	switch c.GetBackend() {
	case "sqlite":
		return storage.NewSQLiteStore(filepath.Join(c.GetDataDir(), DefaultDBFilename))
	case "postgres":
		return storage.NewPostgresStore(ctx, c.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unknown backend: %q", c.Backend)
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.GetRetention(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// GetConfigPath returns the default config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "syndicate", "config.hcl")
}

// Load reads .env, then the config files, then SYNDICATE_* variables, and
// validates the result. An explicit path replaces the default search list.
// Missing files are not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	files := []string{GetConfigPath(), "./syndicate.hcl"}
	if path != "" {
		files = []string{ExpandPath(path)}
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		EnvPrefix: EnvPrefix,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".hcl": aconfighcl.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config as HCL to path, creating parent directories.
// The file is written to a temp file and renamed into place.
func (c *Config) Save(path string) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var b strings.Builder
	str := func(key, val string) {
		if val != "" {
			fmt.Fprintf(&b, "%s = %s\n", key, strconv.Quote(val))
		}
	}
	dur := func(key string, val time.Duration) {
		if val > 0 {
			fmt.Fprintf(&b, "%s = %s\n", key, strconv.Quote(val.String()))
		}
	}
	num := func(key string, val int) {
		fmt.Fprintf(&b, "%s = %d\n", key, val)
	}

	str("backend", c.GetBackend())
	str("data_dir", c.DataDir)
	str("database_dsn", c.DatabaseDSN)
	str("feeds_file", c.FeedsFile)
	fmt.Fprintf(&b, "full_content = %t\n", c.FullContent)
	dur("poll_interval", c.PollInterval)
	dur("sweep_interval", c.SweepInterval)
	str("retention", c.Retention)
	num("max_concurrency", c.MaxConcurrency)
	str("redis_url", c.RedisURL)
	dur("lease_ttl", c.LeaseTTL)
	dur("http_timeout", c.HTTPTimeout)
	num("http_retries", c.HTTPRetries)
	str("listen_addr", c.ListenAddr)
	str("log_level", c.LogLevel)
	str("log_output", c.LogOutput)
	fmt.Fprintf(&b, "log_pretty = %t\n", c.LogPretty)

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.hcl")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(b.String()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// defaultDataDir returns the standard XDG data directory for syndicate.
func defaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "syndicate")
}
