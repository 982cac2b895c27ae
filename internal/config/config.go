package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Daemon contains process-level settings.
type Daemon struct {
	PollInterval float64 `toml:"poll_interval"`
	Timezone     string  `toml:"timezone"`
	LogDir       string  `toml:"log_dir"`
	LogLevel     string  `toml:"log_level"`
	LogFormat    string  `toml:"log_format"`
}

// API contains the HTTP API bind address.
type API struct {
	Bind string `toml:"bind"`
}

// MQTT contains broker connection settings for the recording command channel.
type MQTT struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	ClientID    string `toml:"client_id"`
	TopicPrefix string `toml:"topic_prefix"`
}

// Recorder contains the video recorder HTTP endpoint and export tuning.
type Recorder struct {
	URL                 string `toml:"url"`
	RequestTimeout      int    `toml:"request_timeout"`
	ExportTimeout       int    `toml:"export_timeout"`
	ExportPollInterval  int    `toml:"export_poll_interval"`
	ExportBufferSeconds int    `toml:"export_buffer_seconds"`
}

// Instrument contains the status source HTTP endpoint.
type Instrument struct {
	URL            string `toml:"url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Sessions contains session storage directories.
type Sessions struct {
	DataDir   string `toml:"data_dir"`
	ExportDir string `toml:"export_dir"`
}

// Config encapsulates all configuration values for sessiond.
//
// Configuration sections by subsystem:
//   - Daemon: polling cadence, timezone, and log output
//   - API: HTTP status/metadata API bind address
//   - MQTT: recording command channel broker
//   - Recorder: export API endpoint and timing
//   - Instrument: recording status source endpoint
//   - Sessions: sidecar and export directories
//   - Cameras: chamber_N keys mapped to recorder camera names
//   - Operators: advisory list of known operator names
type Config struct {
	Daemon     Daemon            `toml:"daemon"`
	API        API               `toml:"api"`
	MQTT       MQTT              `toml:"mqtt"`
	Recorder   Recorder          `toml:"recorder"`
	Instrument Instrument        `toml:"instrument"`
	Sessions   Sessions          `toml:"sessions"`
	Cameras    map[string]string `toml:"cameras"`
	Operators  []string          `toml:"operators"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sessiond/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("sessiond.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Daemon.LogDir, c.Sessions.DataDir, c.Sessions.ExportDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PollInterval returns the poll cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Daemon.PollInterval * float64(time.Second))
}

// BrokerAddr returns the MQTT broker URI.
func (c *Config) BrokerAddr() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTT.Host, c.MQTT.Port)
}

// Location resolves the configured timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Daemon.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SampleConfig returns the embedded sample configuration text.
func SampleConfig() string {
	return sampleConfig
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
