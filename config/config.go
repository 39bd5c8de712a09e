// Package config loads pwmgr settings.
//
// Settings come from a single YAML file named by the --config flag or the
// PWMGR_CONFIG environment variable. Without a file every field takes its
// default, and command-line flags override whatever the file says.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fahmaliyi/pwmgr/vault"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "PWMGR_CONFIG"

const dirName = ".pwmgr"

type Config struct {
	// StorePath is the JSON credential store.
	StorePath string `yaml:"store_path"`

	// FingerprintPath holds the master password fingerprint.
	FingerprintPath string `yaml:"fingerprint_path"`

	// RevealDuration is how long a decrypted password stays on screen.
	RevealDuration time.Duration `yaml:"reveal_duration"`

	// ClipboardTimeout is how long a copied password stays on the clipboard.
	ClipboardTimeout time.Duration `yaml:"clipboard_timeout"`

	// Fingerprint selects how a new fingerprint is written when the master
	// password is first set or rotated. Existing files are read whatever
	// their scheme.
	Fingerprint FingerprintConfig `yaml:"fingerprint"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

type FingerprintConfig struct {
	Scheme vault.FingerprintScheme `yaml:"scheme"`
	Argon2 vault.Argon2Params      `yaml:"argon2"`
}

// Default returns the configuration used when no file is given, rooted at
// ~/.pwmgr.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("config: resolving home directory: %w", err)
	}
	dir := filepath.Join(home, dirName)
	return &Config{
		StorePath:        filepath.Join(dir, "credentials.json"),
		FingerprintPath:  filepath.Join(dir, "master.key"),
		RevealDuration:   10 * time.Second,
		ClipboardTimeout: 30 * time.Second,
		Fingerprint: FingerprintConfig{
			Scheme: vault.SchemeSHA256,
			Argon2: vault.DefaultArgon2Params(),
		},
		LogLevel: "warn",
	}, nil
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path means defaults only. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.StorePath, err = expandHome(cfg.StorePath)
	if err != nil {
		return nil, err
	}
	cfg.FingerprintPath, err = expandHome(cfg.FingerprintPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Validate checks field values, not whether the paths exist.
func (c *Config) Validate() error {
	if c.StorePath == "" {
		return errors.New("store_path is empty")
	}
	if c.FingerprintPath == "" {
		return errors.New("fingerprint_path is empty")
	}
	if c.RevealDuration <= 0 {
		return fmt.Errorf("reveal_duration must be positive, got %s", c.RevealDuration)
	}
	if c.ClipboardTimeout <= 0 {
		return fmt.Errorf("clipboard_timeout must be positive, got %s", c.ClipboardTimeout)
	}
	switch c.Fingerprint.Scheme {
	case vault.SchemeSHA256:
	case vault.SchemeArgon2id:
		if err := c.Fingerprint.Argon2.Validate(); err != nil {
			return fmt.Errorf("fingerprint.argon2: %w", err)
		}
	default:
		return fmt.Errorf("unknown fingerprint.scheme %q (want %q or %q)",
			c.Fingerprint.Scheme, vault.SchemeSHA256, vault.SchemeArgon2id)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return level, nil
}

// FingerprintOptions is the vault view of the fingerprint settings.
func (c *Config) FingerprintOptions() vault.FingerprintOptions {
	return vault.FingerprintOptions{
		Scheme: c.Fingerprint.Scheme,
		Argon2: c.Fingerprint.Argon2,
	}
}
