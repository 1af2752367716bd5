package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"docrelay/utils"

	"github.com/pelletier/go-toml/v2"
)

// S3 holds the s3 stager settings.
type S3 struct {
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	Endpoint  string `toml:"endpoint"`
	Expires   string `toml:"expires"`
}

// GCS holds the gcs stager settings.
type GCS struct {
	CredentialsJSON string `toml:"credentials_json"` // base64 or raw JSON
	CredentialsFile string `toml:"credentials_file"`
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	Expires         string `toml:"expires"`
}

// SFTP holds the sftp stager settings.
type SFTP struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	User       string `toml:"user"`
	Password   string `toml:"password"`
	PrivateKey string `toml:"private_key"`
	HostKey    string `toml:"host_key"`
	RemoteDir  string `toml:"remote_dir"`
	PublicURL  string `toml:"public_url"`
}

// Direct holds the directServe stager settings.
type Direct struct {
	BaseDir   string `toml:"base_dir"`
	PublicURL string `toml:"public_url"`
}

// Converter holds the conversion CLI settings.
type Converter struct {
	EngineURL           string `toml:"engine_url"`
	JWTSecret           string `toml:"jwt_secret"`
	StorageURL          string `toml:"storage_url"`
	UploadSecret        string `toml:"upload_secret"`
	Stager              string `toml:"stager"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	PollAttempts        int    `toml:"poll_attempts"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	DataDir             string `toml:"data_dir"`
	LogLevel            string `toml:"log_level"`

	S3     S3     `toml:"s3"`
	GCS    GCS    `toml:"gcs"`
	SFTP   SFTP   `toml:"sftp"`
	Direct Direct `toml:"direct"`
}

var stagerTypes = map[string]bool{
	"sidecar":     true,
	"directServe": true,
	"s3":          true,
	"gcs":         true,
	"sftp":        true,
}

// DefaultConverter returns the built-in CLI settings.
func DefaultConverter() Converter {
	return Converter{
		EngineURL:           "http://localhost:8080",
		StorageURL:          "http://localhost:8000",
		Stager:              "sidecar",
		TimeoutSeconds:      300,
		PollIntervalSeconds: 1,
		DataDir:             GetDataDir(),
		LogLevel:            "info",
		SFTP:                SFTP{Port: 22},
	}
}

// LoadConverter layers defaults, the TOML file and the environment. An
// explicit path must exist; otherwise DOCRELAY_CONFIG and then the user
// config directory are tried and skipped when absent. The returned path is
// the file that was read, or "".
func LoadConverter(path string) (Converter, string, error) {
	cfg := DefaultConverter()

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return cfg, "", err
	}
	if resolved != "" {
		if err := decodeFile(resolved, &cfg); err != nil {
			return cfg, "", err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, resolved, err
	}
	return cfg, resolved, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("stat config: %w", err)
		}
		return path, nil
	}

	if env, ok := lookupEnv("DOCRELAY_CONFIG"); ok {
		return existing(env)
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", nil
	}
	return existing(filepath.Join(dir, "docrelay", "config.toml"))
}

func existing(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("stat config: %w", err)
	}
	return path, nil
}

func decodeFile(path string, cfg *Converter) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Converter) applyEnv() error {
	envString(&c.EngineURL, "DOCRELAY_ENGINE_URL")
	envString(&c.JWTSecret, "DOCRELAY_JWT_SECRET")
	envString(&c.StorageURL, "DOCRELAY_STORAGE_URL")
	envString(&c.UploadSecret, "DOCRELAY_UPLOAD_SECRET")
	envString(&c.Stager, "DOCRELAY_STAGER")
	envString(&c.DataDir, "DOCRELAY_DATA_DIR")
	envString(&c.LogLevel, "DOCRELAY_LOG_LEVEL")

	if err := envInt(&c.PollAttempts, "DOCRELAY_POLL_ATTEMPTS"); err != nil {
		return err
	}

	timeout := c.Timeout()
	if err := envDuration(&timeout, "DOCRELAY_TIMEOUT"); err != nil {
		return err
	}
	c.TimeoutSeconds = WholeSeconds(timeout)

	interval := c.PollInterval()
	if err := envDuration(&interval, "DOCRELAY_POLL_INTERVAL"); err != nil {
		return err
	}
	c.PollIntervalSeconds = WholeSeconds(interval)
	return nil
}

// WholeSeconds rounds d to the nearest second. Positive durations under a
// second become one second rather than zero.
func WholeSeconds(d time.Duration) int {
	secs := int(d.Round(time.Second) / time.Second)
	if secs == 0 && d > 0 {
		return 1
	}
	return secs
}

// ApplyArgs overrides the engine URL, JWT secret and storage URL from
// positional arguments, in that order. Missing or empty values keep the
// current setting.
func (c *Converter) ApplyArgs(args []string) {
	targets := []*string{&c.EngineURL, &c.JWTSecret, &c.StorageURL}
	for i, arg := range args {
		if i >= len(targets) {
			break
		}
		if arg = strings.TrimSpace(arg); arg != "" {
			*targets[i] = arg
		}
	}
}

// Timeout bounds one whole conversion.
func (c Converter) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c Converter) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Validate checks the CLI settings for the selected stager.
func (c Converter) Validate() error {
	if err := validateHTTPURL("engine URL", c.EngineURL); err != nil {
		return err
	}
	if !stagerTypes[c.Stager] {
		return fmt.Errorf("unknown stager %q", c.Stager)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.PollAttempts < 0 {
		return fmt.Errorf("poll attempts must not be negative")
	}
	if c.UploadSecret != "" && len(c.UploadSecret) < utils.MinUploadSecretLen {
		return fmt.Errorf("upload secret must be at least %d bytes", utils.MinUploadSecretLen)
	}

	switch c.Stager {
	case "sidecar":
		return validateHTTPURL("storage URL", c.StorageURL)
	case "directServe":
		if c.Direct.BaseDir == "" {
			return fmt.Errorf("direct.base_dir is required for the directServe stager")
		}
		return validateHTTPURL("direct.public_url", c.Direct.PublicURL)
	case "s3":
		if c.S3.Bucket == "" || c.S3.Region == "" {
			return fmt.Errorf("s3.bucket and s3.region are required for the s3 stager")
		}
	case "gcs":
		if c.GCS.Bucket == "" || (c.GCS.CredentialsJSON == "" && c.GCS.CredentialsFile == "") {
			return fmt.Errorf("gcs.bucket and gcs credentials are required for the gcs stager")
		}
	case "sftp":
		if c.SFTP.Host == "" || c.SFTP.User == "" || c.SFTP.RemoteDir == "" {
			return fmt.Errorf("sftp.host, sftp.user and sftp.remote_dir are required for the sftp stager")
		}
		return validateHTTPURL("sftp.public_url", c.SFTP.PublicURL)
	}
	return nil
}

// AccessInfo flattens the selected stager's settings into the key/value
// form the writer backends take.
func (c Converter) AccessInfo() (map[string]string, error) {
	switch c.Stager {
	case "sidecar":
		return map[string]string{
			"url":          c.StorageURL,
			"uploadSecret": c.UploadSecret,
		}, nil
	case "directServe":
		return map[string]string{
			"baseDir":   c.Direct.BaseDir,
			"publicUrl": c.Direct.PublicURL,
		}, nil
	case "s3":
		return map[string]string{
			"accessKey": c.S3.AccessKey,
			"secretKey": c.S3.SecretKey,
			"region":    c.S3.Region,
			"bucket":    c.S3.Bucket,
			"prefix":    c.S3.Prefix,
			"endpoint":  c.S3.Endpoint,
			"expires":   c.S3.Expires,
		}, nil
	case "gcs":
		creds := c.GCS.CredentialsJSON
		if creds == "" && c.GCS.CredentialsFile != "" {
			data, err := os.ReadFile(c.GCS.CredentialsFile)
			if err != nil {
				return nil, fmt.Errorf("read gcs credentials: %w", err)
			}
			creds = string(data)
		}
		return map[string]string{
			"credentialsJSON": creds,
			"bucket":          c.GCS.Bucket,
			"prefix":          c.GCS.Prefix,
			"expires":         c.GCS.Expires,
		}, nil
	case "sftp":
		return map[string]string{
			"host":       c.SFTP.Host,
			"port":       strconv.Itoa(c.SFTP.Port),
			"user":       c.SFTP.User,
			"password":   c.SFTP.Password,
			"privateKey": c.SFTP.PrivateKey,
			"hostKey":    c.SFTP.HostKey,
			"remoteDir":  c.SFTP.RemoteDir,
			"publicUrl":  c.SFTP.PublicURL,
		}, nil
	default:
		return nil, fmt.Errorf("unknown stager %q", c.Stager)
	}
}
