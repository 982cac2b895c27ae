package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Daemon.LogDir, err = expandPath(c.Daemon.LogDir); err != nil {
		return err
	}
	if c.Sessions.DataDir, err = expandPath(c.Sessions.DataDir); err != nil {
		return err
	}
	if c.Sessions.ExportDir, err = expandPath(c.Sessions.ExportDir); err != nil {
		return err
	}

	c.Daemon.Timezone = strings.TrimSpace(c.Daemon.Timezone)
	c.Daemon.LogLevel = strings.ToLower(strings.TrimSpace(c.Daemon.LogLevel))
	c.Daemon.LogFormat = strings.ToLower(strings.TrimSpace(c.Daemon.LogFormat))
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.MQTT.Host = strings.TrimSpace(c.MQTT.Host)
	c.MQTT.ClientID = strings.TrimSpace(c.MQTT.ClientID)
	c.MQTT.TopicPrefix = strings.Trim(strings.TrimSpace(c.MQTT.TopicPrefix), "/")
	c.Recorder.URL = strings.TrimRight(strings.TrimSpace(c.Recorder.URL), "/")
	c.Instrument.URL = strings.TrimRight(strings.TrimSpace(c.Instrument.URL), "/")

	cameras := make(map[string]string, len(c.Cameras))
	for key, value := range c.Cameras {
		trimmedKey := strings.TrimSpace(key)
		trimmedValue := strings.TrimSpace(value)
		if trimmedKey == "" || trimmedValue == "" {
			return fmt.Errorf("cameras: empty chamber key or camera name")
		}
		cameras[trimmedKey] = trimmedValue
	}
	c.Cameras = cameras

	operators := make([]string, 0, len(c.Operators))
	for _, name := range c.Operators {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			operators = append(operators, trimmed)
		}
	}
	c.Operators = operators

	return nil
}
