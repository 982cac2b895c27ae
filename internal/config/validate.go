package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if c.Daemon.PollInterval <= 0 {
		problems = append(problems, "daemon.poll_interval must be positive")
	}
	if _, err := time.LoadLocation(c.Daemon.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("daemon.timezone: unknown zone %q", c.Daemon.Timezone))
	}
	if c.API.Bind == "" {
		problems = append(problems, "api.bind is required")
	}
	if c.MQTT.Host == "" {
		problems = append(problems, "mqtt.host is required")
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		problems = append(problems, "mqtt.port must be between 1 and 65535")
	}
	if c.Recorder.URL == "" {
		problems = append(problems, "recorder.url is required")
	}
	if c.Recorder.ExportTimeout <= 0 {
		problems = append(problems, "recorder.export_timeout must be positive")
	}
	if c.Recorder.ExportPollInterval <= 0 {
		problems = append(problems, "recorder.export_poll_interval must be positive")
	}
	if c.Recorder.ExportBufferSeconds < 0 {
		problems = append(problems, "recorder.export_buffer_seconds must not be negative")
	}
	if c.Instrument.URL == "" {
		problems = append(problems, "instrument.url is required")
	}
	if c.Sessions.DataDir == "" {
		problems = append(problems, "sessions.data_dir is required")
	}
	if len(c.Cameras) == 0 {
		problems = append(problems, "cameras: at least one chamber mapping is required")
	}
	for key := range c.Cameras {
		if !strings.HasPrefix(key, "chamber_") {
			problems = append(problems, fmt.Sprintf("cameras: key %q must use the chamber_<n> form", key))
		}
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
