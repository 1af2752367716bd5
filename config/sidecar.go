// Package config loads settings for the storage sidecar (environment only)
// and the conversion CLI (defaults, optional TOML file, environment).
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"docrelay/utils"
)

// Sidecar holds the storage sidecar settings.
type Sidecar struct {
	StoragePath  string
	ListenPort   int
	PublicURL    string // empty means derive from the request Host
	MaxUploadMB  int
	UploadSecret string // empty means uploads are not authenticated
	DrainTimeout time.Duration
	LogLevel     string
	LogFile      string
}

// DefaultSidecar returns the built-in sidecar settings.
func DefaultSidecar() Sidecar {
	return Sidecar{
		StoragePath:  "/var/lib/docrelay/storage",
		ListenPort:   8000,
		MaxUploadMB:  512,
		DrainTimeout: 2 * time.Second,
		LogLevel:     "info",
	}
}

// LoadSidecar reads the sidecar settings from the environment.
func LoadSidecar() (Sidecar, error) {
	cfg := DefaultSidecar()

	envString(&cfg.StoragePath, "DOCRELAY_STORAGE_PATH", "STORAGE_PATH")
	envString(&cfg.PublicURL, "DOCRELAY_PUBLIC_URL")
	envString(&cfg.UploadSecret, "DOCRELAY_UPLOAD_SECRET")
	envString(&cfg.LogLevel, "DOCRELAY_LOG_LEVEL")
	envString(&cfg.LogFile, "DOCRELAY_LOG_FILE")
	if err := envInt(&cfg.ListenPort, "DOCRELAY_LISTEN_PORT", "LISTEN_PORT"); err != nil {
		return cfg, err
	}
	if err := envInt(&cfg.MaxUploadMB, "DOCRELAY_MAX_UPLOAD_MB"); err != nil {
		return cfg, err
	}
	if err := envDuration(&cfg.DrainTimeout, "DOCRELAY_DRAIN_TIMEOUT"); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate checks the sidecar settings.
func (c Sidecar) Validate() error {
	if c.StoragePath == "" {
		return fmt.Errorf("storage path must not be empty")
	}
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return fmt.Errorf("listen port %d out of range", c.ListenPort)
	}
	if c.MaxUploadMB < 0 {
		return fmt.Errorf("max upload size must not be negative")
	}
	if c.DrainTimeout <= 0 {
		return fmt.Errorf("drain timeout must be positive")
	}
	if c.PublicURL != "" {
		if err := validateHTTPURL("public URL", c.PublicURL); err != nil {
			return err
		}
	}
	if c.UploadSecret != "" && len(c.UploadSecret) < utils.MinUploadSecretLen {
		return fmt.Errorf("upload secret must be at least %d bytes", utils.MinUploadSecretLen)
	}
	return nil
}

// ListenAddr is the address the sidecar binds.
func (c Sidecar) ListenAddr() string {
	return ":" + strconv.Itoa(c.ListenPort)
}

// MaxUploadBytes converts the upload limit; zero disables it.
func (c Sidecar) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func validateHTTPURL(what, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s %q: %w", what, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s %q must be an absolute http(s) URL", what, raw)
	}
	return nil
}
