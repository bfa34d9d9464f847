package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"hockeysdk-go/internal/cstmerr"
	"hockeysdk-go/internal/logging"

	"github.com/spf13/viper"
)

// DatabaseConfig holds all database connection parameters for the postgres store backend.
type DatabaseConfig struct {
	Host         string        `mapstructure:"db_host"`
	Port         int           `mapstructure:"db_port"`
	User         string        `mapstructure:"db_user"`
	Password     string        `mapstructure:"db_password"`
	DBName       string        `mapstructure:"db_name"`
	SSLMode      string        `mapstructure:"db_sslmode"`
	ReadTimeout  time.Duration `mapstructure:"db_read_timeout"`
	WriteTimeout time.Duration `mapstructure:"db_write_timeout"`
}

// StoreConfig selects where the SDK keeps its small persistent state
// (version cache, usage time, crash preferences, unsent telemetry).
type StoreConfig struct {
	Backend    string         `mapstructure:"backend"` // memory, leveldb or postgres
	Path       string         `mapstructure:"path"`
	MemorySize int            `mapstructure:"memory_size"`
	Database   DatabaseConfig `mapstructure:"database"`
}

// UpdateConfig controls the update check and prompt flow.
type UpdateConfig struct {
	CachingEnabled          bool   `mapstructure:"caching_enabled"`
	DialogRequired          bool   `mapstructure:"dialog_required"`
	PreferEmbedded          bool   `mapstructure:"prefer_embedded"`
	ExpiryDate              string `mapstructure:"expiry_date"`
	CheckInstalledFromStore bool   `mapstructure:"check_installed_from_store"`
	InstalledFromStore      bool   `mapstructure:"installed_from_store"`
	PollIntervalSeconds     uint64 `mapstructure:"poll_interval_seconds"`
	DownloadDir             string `mapstructure:"download_dir"`
}

// CrashConfig controls crash report collection and upload.
type CrashConfig struct {
	Dir      string `mapstructure:"dir"`
	AutoSend bool   `mapstructure:"auto_send"`
	UserID   string `mapstructure:"user_id"`
	Contact  string `mapstructure:"contact"`
}

// TelemetryConfig is the passive settings bag handed to the telemetry client.
type TelemetryConfig struct {
	Disabled         bool          `mapstructure:"disabled"`
	EndpointURL      string        `mapstructure:"endpoint_url"`
	MaxBatchCount    int           `mapstructure:"max_batch_count"`
	MaxBatchInterval time.Duration `mapstructure:"max_batch_interval"`
	SessionInterval  time.Duration `mapstructure:"session_interval"`
	UserID           string        `mapstructure:"user_id"`
	AutoSessions     bool          `mapstructure:"auto_sessions"`
	AutoPageViews    bool          `mapstructure:"auto_page_views"`
}

// Config matches the structure of the config file and environment variables.
type Config struct {
	AppIdentifier string `mapstructure:"app_identifier"`
	ServerURL     string `mapstructure:"server_url"`
	PackageName   string `mapstructure:"package_name"`
	VersionCode   int    `mapstructure:"version_code"`
	VersionName   string `mapstructure:"version_name"`
	VersionFile   string `mapstructure:"version_file"`
	DeviceID      string `mapstructure:"device_id"`
	OSVersion     string `mapstructure:"os_version"`
	DeviceModel   string `mapstructure:"device_model"`
	DeviceOEM     string `mapstructure:"device_oem"`
	Language      string `mapstructure:"language"`

	Update    UpdateConfig    `mapstructure:"update"`
	Crash     CrashConfig     `mapstructure:"crash"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Store     StoreConfig     `mapstructure:"store"`
	Log       logging.Options `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_identifier", "")
	v.SetDefault("server_url", "https://sdk.hockeyapp.net/")
	v.SetDefault("version_code", 0)
	v.SetDefault("version_file", "")
	v.SetDefault("device_id", "")
	v.SetDefault("package_name", "hockeysdk-go")
	v.SetDefault("version_name", "1.0")
	v.SetDefault("os_version", "1.0")
	v.SetDefault("device_model", "generic")
	v.SetDefault("device_oem", "unknown")
	v.SetDefault("language", "en")

	v.SetDefault("update.caching_enabled", true)
	v.SetDefault("update.dialog_required", true)
	v.SetDefault("update.prefer_embedded", false)
	v.SetDefault("update.poll_interval_seconds", 300)
	v.SetDefault("update.download_dir", os.TempDir())

	v.SetDefault("crash.dir", "./crashes")
	v.SetDefault("crash.auto_send", false)
	v.SetDefault("crash.user_id", "")
	v.SetDefault("crash.contact", "")

	v.SetDefault("telemetry.endpoint_url", "https://gate.hockeyapp.net/v2/track")
	v.SetDefault("telemetry.max_batch_count", 100)
	v.SetDefault("telemetry.max_batch_interval", "15s")
	v.SetDefault("telemetry.session_interval", "20s")
	v.SetDefault("telemetry.user_id", "")
	v.SetDefault("telemetry.auto_sessions", true)
	v.SetDefault("telemetry.auto_page_views", true)
	v.SetDefault("telemetry.disabled", false)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.path", "./hockey.db")
	v.SetDefault("store.memory_size", 256)
	v.SetDefault("store.database.db_host", "localhost")
	v.SetDefault("store.database.db_port", 5432)
	v.SetDefault("store.database.db_user", "postgres")
	v.SetDefault("store.database.db_name", "hockey")
	v.SetDefault("store.database.db_sslmode", "disable")
	v.SetDefault("store.database.db_read_timeout", "5s")
	v.SetDefault("store.database.db_write_timeout", "5s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
}

// Load reads the configuration using Viper.
// An empty configPath searches the usual locations for config.toml.
// Environment variables prefixed with HOCKEY override file values.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/hockey/")
		v.AddConfigPath("$HOME/.hockey")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("HOCKEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("store.database.db_password", "HOCKEY_DB_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		// An explicit path that does not exist surfaces as a PathError, not ConfigFileNotFoundError.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || errors.Is(err, fs.ErrNotExist) {
			logging.Logger().Info("Config file not found, using defaults and environment variables.")
		} else {
			return nil, cstmerr.NewFileIOError("failed to read config file", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, cstmerr.NewConfigError("failed to unmarshal config", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logging.Logger().Infof("Configuration loaded. App: %s, Server URL: %s", config.AppIdentifier, config.ServerURL)
	return &config, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return cstmerr.NewConfigError("server_url must not be empty", nil)
	}
	if !strings.HasSuffix(c.ServerURL, "/") {
		c.ServerURL += "/"
	}
	if c.Telemetry.MaxBatchCount < 0 {
		return cstmerr.NewConfigError("telemetry.max_batch_count must not be negative", nil)
	}
	if c.Update.ExpiryDate != "" {
		if _, err := c.ExpiryDate(); err != nil {
			return cstmerr.NewConfigError("update.expiry_date must be RFC3339", err)
		}
	}
	return nil
}

// ExpiryDate returns the configured build expiry, or the zero time when none is set.
func (c *Config) ExpiryDate() (time.Time, error) {
	if c.Update.ExpiryDate == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, c.Update.ExpiryDate)
}

// GetCurrentVersion returns the running version code. A configured
// version_code wins; otherwise it is read from version_file, where a missing
// or empty file means version 0.
func GetCurrentVersion(cfg *Config) (int, error) {
	if cfg.VersionCode > 0 || cfg.VersionFile == "" {
		return cfg.VersionCode, nil
	}
	if _, err := os.Stat(cfg.VersionFile); os.IsNotExist(err) {
		logging.Logger().Infof("Version file %s not found, assuming version 0.", cfg.VersionFile)
		return 0, nil
	}

	versionData, err := os.ReadFile(cfg.VersionFile)
	if err != nil {
		return 0, fmt.Errorf("failed to read current version file %s: %w", cfg.VersionFile, err)
	}

	trimmedVersionData := bytes.TrimSpace(versionData)
	if len(trimmedVersionData) == 0 {
		logging.Logger().Infof("Version file %s is empty, assuming version 0.", cfg.VersionFile)
		return 0, nil
	}

	var version int
	_, err = fmt.Sscanf(string(trimmedVersionData), "%d", &version)
	if err != nil {
		return 0, fmt.Errorf("invalid version format in version file %s ('%s'): %w", cfg.VersionFile, string(trimmedVersionData), err)
	}
	return version, nil
}
