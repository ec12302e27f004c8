// Package config holds the runtime configuration shared by every component.
//
// The configuration is a single immutable value passed explicitly to each
// constructor; components never reach into globals or inherit settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/surgtrack/curator/internal/uid"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML support ("30s", "2m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Principal identifies the acting user for this process. Every mutation is
// stamped with its uid, and the session layer checks it against the USERS
// table before any write.
type Principal struct {
	// UID is the principal's uid. Empty means a fresh uid is generated
	// when the store is bootstrapped; an explicit value must be a valid
	// uid.
	UID  string `yaml:"uid"`
	Name string `yaml:"name"`
	// Role is recorded in the USERS table at bootstrap. Only ADMIN may
	// bootstrap a store or create tables.
	Role string `yaml:"role"`
}

// Remote configures the connection to the research repository.
type Remote struct {
	BaseURL string   `yaml:"base_url"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout"`
}

// Config is the full runtime configuration.
type Config struct {
	Remote Remote `yaml:"remote"`

	// DocumentPath is the remote path of the store document.
	DocumentPath string `yaml:"document"`

	// BackupPrefix is the remote path prefix under which pre-push backups
	// are written.
	BackupPrefix string `yaml:"backup_prefix"`

	// BackupRetention caps the number of retained backups; after a
	// successful push the oldest backups beyond the cap are pruned.
	// 0 keeps every backup.
	BackupRetention int `yaml:"backup_retention"`

	// LocalCacheDir is where the serialized document is saved locally.
	LocalCacheDir string `yaml:"local_cache_dir"`

	Principal Principal `yaml:"principal"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the baseline configuration a config file is merged over.
func Default() Config {
	return Config{
		Remote: Remote{
			Timeout: Duration(30 * time.Second),
		},
		DocumentPath:    "config/tables.json",
		BackupPrefix:    "config/backups/",
		BackupRetention: 0,
		LocalCacheDir:   "cache",
		LogLevel:        "info",
	}
}

// Load reads and validates a YAML configuration file merged over Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency. The remote
// base URL is checked by the commands that need it, not here, so offline
// use (fingerprinting, uid generation) works without one.
func (c *Config) Validate() error {
	if c.DocumentPath == "" {
		return errors.New("document path is required")
	}
	if strings.HasPrefix(c.DocumentPath, "/") {
		return errors.New("document path must be relative")
	}
	if c.BackupPrefix == "" {
		return errors.New("backup_prefix is required")
	}
	if c.BackupRetention < 0 {
		return errors.New("backup_retention must be non-negative")
	}
	if c.Remote.Timeout <= 0 {
		return errors.New("remote.timeout must be positive")
	}
	if c.Principal.UID != "" && !uid.IsValid(c.Principal.UID) {
		return fmt.Errorf("principal.uid %q is not a valid uid", c.Principal.UID)
	}
	return nil
}
