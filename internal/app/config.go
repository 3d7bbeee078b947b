package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/matchctl/internal/credstore"
	"github.com/florianilch/matchctl/internal/identity"
	"github.com/florianilch/matchctl/internal/observability"
	"github.com/florianilch/matchctl/internal/refresh"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// StorageType represents the different backends supported for the stored session.
type StorageType string

const (
	StorageTypeFile    StorageType = "file"
	StorageTypeEnv     StorageType = "env"
	StorageTypeKeyring StorageType = "keyring"
	StorageTypeMemory  StorageType = "memory"
)

// keyringService is the service name sessions are stored under in the OS keyring.
const keyringService = "matchctl-session"

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigLogExporter     = observability.ExporterNone
	DefaultConfigServerHost      = "127.0.0.1"
	DefaultConfigServerPort      = 4100
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigStorage         = StorageTypeFile
	DefaultConfigIdentityTimeout = identity.DefaultTimeout
	DefaultConfigRefreshTimeout  = refresh.DefaultTimeout
)

// ServerConfig holds configuration of the local gateway.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// APIConfig holds the platform API configuration.
type APIConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
}

// IdentityConfig holds the identity provider configuration.
type IdentityConfig struct {
	// BaseURL defaults to the API base URL.
	BaseURL string        `json:"base_url" validate:"required,url"`
	Timeout time.Duration `json:"timeout" validate:"gt=0"`
}

// RefreshConfig holds token refresh configuration.
type RefreshConfig struct {
	// Timeout bounds a single refresh request, independent of the requests waiting on it.
	Timeout time.Duration `json:"timeout" validate:"gt=0"`
}

// StorageConfig describes where the session is persisted.
type StorageConfig struct {
	Type StorageType `json:"type" validate:"required,oneof=file env keyring memory"`

	// Backend-specific settings (only the ones matching Type are used)
	Dir          string `json:"dir,omitempty"`            // For file storage: directory holding one file per slot
	KeyringUser  string `json:"keyring_user,omitempty"`   // For keyring storage: user identifier
	EnvTokensKey string `json:"env_tokens_key,omitempty"` // For env storage: variable holding the tokens record
	EnvUserKey   string `json:"env_user_key,omitempty"`   // For env storage: variable holding the user record
}

// NewBackend creates the credential backend described by the storage configuration.
func (s *StorageConfig) NewBackend() (credstore.Backend, error) {
	switch s.Type {
	case StorageTypeFile:
		return credstore.NewFileBackend(s.Dir)
	case StorageTypeEnv:
		env, err := credstore.NewEnvBackend(s.EnvTokensKey, s.EnvUserKey)
		if err != nil {
			return nil, err
		}
		// Refreshed tokens live in memory on top of the environment.
		return credstore.NewOverlayBackend(env), nil
	case StorageTypeKeyring:
		return credstore.NewKeyringBackend(keyringService, s.KeyringUser)
	case StorageTypeMemory:
		return credstore.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", s.Type)
	}
}

// Writable reports whether login and refresh write through to the configured storage.
// Env storage keeps them in an in-memory overlay instead.
func (s *StorageConfig) Writable() bool {
	return s.Type != StorageTypeEnv
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel    slog.Level             `json:"log_level"`
	LogFormat   LogFormat              `json:"log_format" validate:"oneof=text json"`
	LogExporter observability.Exporter `json:"log_exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
	Server      ServerConfig           `json:"server"`
	Shutdown    ShutdownConfig         `json:"shutdown"`
	API         APIConfig              `json:"api"`
	Identity    IdentityConfig         `json:"identity"`
	Refresh     RefreshConfig          `json:"refresh"`
	Storage     StorageConfig          `json:"storage"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.LogExporter == "" {
		c.LogExporter = DefaultConfigLogExporter
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Identity.BaseURL == "" {
		c.Identity.BaseURL = c.API.BaseURL
	}
	if c.Identity.Timeout == 0 {
		c.Identity.Timeout = DefaultConfigIdentityTimeout
	}
	if c.Refresh.Timeout == 0 {
		c.Refresh.Timeout = DefaultConfigRefreshTimeout
	}
	if c.Storage.Type == "" {
		c.Storage.Type = DefaultConfigStorage
	}

	// Dynamic defaults based on storage type
	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.Dir == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("storage.dir required (auto-detect failed: %w)", err)
			}
			c.Storage.Dir = filepath.Join(configDir, "matchctl", "session")
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("storage.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Storage.KeyringUser = currentUser.Username
		}
	case StorageTypeEnv, StorageTypeMemory:
		// env keys must be explicitly configured (no sensible default)
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return err
	}

	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir required for file storage")
		}
	case StorageTypeEnv:
		if c.Storage.EnvTokensKey == "" || c.Storage.EnvUserKey == "" {
			return errors.New("storage.env_tokens_key and storage.env_user_key required for env storage")
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringUser == "" {
			return errors.New("storage.keyring_user required for keyring storage")
		}
	}

	return nil
}
